package session

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// PrivacyFilter controls how session identifiers appear in process logs.
// Observers always see their own session id; only the server log is
// affected. The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskSessionIDs bool
}

// LogID returns the identifier to print for id.
func (f *PrivacyFilter) LogID(id string) string {
	if f == nil || !f.MaskSessionIDs || id == "" {
		return id
	}
	return shortHash(id)
}

// IsNoop reports whether the filter leaves identifiers untouched.
func (f *PrivacyFilter) IsNoop() bool {
	return f == nil || !f.MaskSessionIDs
}

// shortHash returns a truncated BLAKE3 hex digest for an opaque identifier.
func shortHash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}
