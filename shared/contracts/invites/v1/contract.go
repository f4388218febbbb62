// Package v1 is the wire contract of the invite notification feed.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	Version = 1

	// Subprotocol must be offered by clients during the WebSocket handshake.
	Subprotocol = "securechat.invites.v1"

	// Server to client.
	TypeHello        = "hello"
	TypeNotification = "notification"
	TypeInviteEvent  = "invite_event"
	TypeError        = "error"

	// Client to server.
	TypeSubscribe = "subscribe"
)

var AllowedTypes = map[string]struct{}{
	TypeHello:        {},
	TypeNotification: {},
	TypeInviteEvent:  {},
	TypeError:        {},
	TypeSubscribe:    {},
}

// Envelope wraps every frame. ChannelID is empty for frames that are not
// scoped to a channel.
type Envelope struct {
	V         int             `json:"v"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	ChannelID string          `json:"channel_id,omitempty"`
	TS        time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := AllowedTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.TS.IsZero() {
		return errors.New("missing ts")
	}
	if e.Payload == nil {
		return errors.New("missing payload")
	}
	return nil
}
