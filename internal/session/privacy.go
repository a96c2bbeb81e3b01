package session

import (
	"crypto/sha256"
	"fmt"
)

// PrivacyFilter masks identifiers in events and snapshots before they leave
// the process through the status feed. Player tokens double as orchestrator
// reservation ids, so they are worth hiding from dashboards. The zero value
// is a no-op filter.
type PrivacyFilter struct {
	MaskTokens     bool
	MaskSessionIDs bool
}

// ApplyEvent returns a copy of the event with sensitive fields masked. The
// original is never modified.
func (f *PrivacyFilter) ApplyEvent(e Event) Event {
	if f.MaskTokens && e.Token != "" {
		e.Token = shortHash(e.Token)
	}
	if f.MaskSessionIDs && e.SessionID != "" {
		e.SessionID = shortHash(e.SessionID)
	}
	return e
}

// ApplySnapshot returns a copy of the snapshot with the session id masked
// when configured.
func (f *PrivacyFilter) ApplySnapshot(s Snapshot) Snapshot {
	if f.MaskSessionIDs && s.ID != "" {
		s.ID = shortHash(s.ID)
	}
	return s
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskTokens && !f.MaskSessionIDs
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
