package outbox

import (
	"regexp"
	"unicode/utf8"
)

const (
	maxErrorLength = 512
	truncatedTail  = "... (truncated)"
	redacted       = "[REDACTED]"
)

var sensitivePatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*`), "Bearer " + redacted},
	{regexp.MustCompile(`(?i)\b(api[-_ ]?key|token|secret|password)\s*[:=]\s*([^\s,;]+)`), "$1=" + redacted},
	{regexp.MustCompile(`(?i)\b[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}\b`), redacted},
}

// SanitizeError redacts credentials and email addresses from an error message
// and bounds its length before it is shown to administrators.
func SanitizeError(msg string) string {
	for _, p := range sensitivePatterns {
		msg = p.re.ReplaceAllString(msg, p.repl)
	}
	if len(msg) > maxErrorLength {
		cut := maxErrorLength - len(truncatedTail)
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + truncatedTail
	}
	return msg
}
