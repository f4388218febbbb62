package realtime

import (
	"time"

	"securechat/cmd/identity/ids"
)

// NewSessionID returns a ULID used as feed session id.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id, so envelopes sort by time in logs.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
