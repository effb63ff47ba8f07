package reporter

import (
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled bool

// Init configures sentry. An empty dsn leaves reporting disabled.
func Init(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return err
	}
	enabled = true
	return nil
}

// Capture sends err with the given tags. It is a no-op when sentry is disabled.
func Capture(err error, tags map[string]string) {
	if !enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Flush waits for queued reports.
func Flush(timeout time.Duration) {
	if enabled {
		sentry.Flush(timeout)
	}
}
