package identity

import (
	"time"

	"securechat/cmd/identity/ids"

	"github.com/google/uuid"
)

// NewULID returns a new ULID (26-char string).
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewGuestID returns a user id for an account-less guest ("guest-<uuid>").
func NewGuestID() string {
	return "guest-" + uuid.NewString()
}
