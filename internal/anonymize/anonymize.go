// Package anonymize hashes or masks personal data before it leaves a tenant.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/d60-Lab/clearstack/internal/model"
)

// AnonymizedUser is the user shape embedded in outbound payloads. Exactly one of
// Email and EmailHash is set.
type AnonymizedUser struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	EmailHash string `json:"email_hash,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// User returns the identifying fields of u, anonymized when enabled is true.
func User(u model.User, enabled bool) AnonymizedUser {
	if !enabled {
		return AnonymizedUser{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
	}
	return AnonymizedUser{
		ID:        u.ID,
		EmailHash: HashEmail(u.Email),
		FirstName: Mask(u.FirstName),
		LastName:  Mask(u.LastName),
	}
}

// HashEmail is the unsalted SHA-256 of the normalized email, hex encoded. It is
// stable so the receiver can cross-reference users without seeing the address.
func HashEmail(email string) string {
	return Hash(email, "")
}

// Hash returns hex(SHA256(salt + lower(trim(value)))).
func Hash(value, salt string) string {
	sum := sha256.Sum256([]byte(salt + strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])
}

// Mask keeps the first character and replaces the rest with asterisks.
// A single character becomes "*".
func Mask(name string) string {
	r := []rune(name)
	switch len(r) {
	case 0:
		return ""
	case 1:
		return "*"
	}
	return string(r[0]) + strings.Repeat("*", len(r)-1)
}

// Fields hashes the string values of the given keys in doc with the salted
// helper. Non-string and missing keys are left alone. doc is modified in place
// and returned.
func Fields(doc map[string]any, keys []string, salt string) map[string]any {
	for _, k := range keys {
		if v, ok := doc[k].(string); ok && v != "" {
			doc[k] = Hash(v, salt)
		}
	}
	return doc
}
