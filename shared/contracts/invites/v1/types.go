package v1

import "time"

type HelloPayload struct {
	SessionID string `json:"session_id"`
	ChannelID string `json:"channel_id,omitempty"`
}

// SubscribePayload switches the connection to another channel. An empty
// channel id subscribes to every channel.
type SubscribePayload struct {
	ChannelID string `json:"channel_id"`
}

type NotificationPayload struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Tone        string    `json:"tone,omitempty"`
	At          time.Time `json:"at"`
}

type InviteEventPayload struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	Subtype    string    `json:"subtype,omitempty"`
	InviteID   string    `json:"invite_id,omitempty"`
	InviteCode string    `json:"invite_code,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Method     string    `json:"method,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
