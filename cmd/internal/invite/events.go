package invite

import (
	"iter"
	"slices"
	"time"
)

// EventType is the lifecycle step an Event records.
type EventType string

const (
	EventCreated  EventType = "created"
	EventSent     EventType = "sent"
	EventAccepted EventType = "accepted"
	EventExpired  EventType = "expired"
	EventRevoked  EventType = "revoked"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventSent, EventAccepted, EventExpired, EventRevoked:
		return true
	}
	return false
}

// Subtype qualifies a sent event.
type Subtype string

const (
	SubtypeEmailInvite  Subtype = "email_invite"
	SubtypeLinkShare    Subtype = "link_share"
	SubtypeDirectInvite Subtype = "direct_invite"
)

// Event is one entry of a channel history or of the global analytics log.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Subtype    Subtype   `json:"subtype,omitempty"`
	InviteID   string    `json:"inviteId,omitempty"`
	InviteCode string    `json:"inviteCode,omitempty"`
	ChannelID  string    `json:"channelId"`
	Timestamp  time.Time `json:"timestamp"`
	Recipient  string    `json:"recipient,omitempty"`
	Method     string    `json:"method,omitempty"`
}

// Validate checks the fields every event must carry.
func (e Event) Validate() error {
	switch {
	case !e.Type.Valid():
		return ValidationError{Field: "type", Value: string(e.Type), Reason: "unknown event type"}
	case e.Timestamp.IsZero():
		return ValidationError{Field: "timestamp", Reason: "required"}
	case e.ChannelID == "":
		return ValidationError{Field: "channelId", Reason: "required"}
	}
	return nil
}

// EventLog is an append-only list of events in insertion order.
type EventLog struct {
	events []Event
}

// NewEventLog wraps events. The slice is copied.
func NewEventLog(events []Event) *EventLog {
	return &EventLog{events: slices.Clone(events)}
}

// Append validates e and adds it at the end.
func (l *EventLog) Append(e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	l.events = append(l.events, e)
	return nil
}

// Len returns the number of events.
func (l *EventLog) Len() int { return len(l.events) }

// Events returns a copy in insertion order.
func (l *EventLog) Events() []Event { return slices.Clone(l.events) }

// Oldest yields events in insertion order. Analytics export uses this order.
func (l *EventLog) Oldest() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, e := range l.events {
			if !yield(e) {
				return
			}
		}
	}
}

// Newest yields events in reverse insertion order, for display.
func (l *EventLog) Newest() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for i := len(l.events) - 1; i >= 0; i-- {
			if !yield(l.events[i]) {
				return
			}
		}
	}
}

// ForChannel filters seq to events of channelID. An empty channelID keeps everything.
func ForChannel(seq iter.Seq[Event], channelID string) iter.Seq[Event] {
	if channelID == "" {
		return seq
	}
	return func(yield func(Event) bool) {
		for e := range seq {
			if e.ChannelID != channelID {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Has reports whether the log holds an event of type t for inviteID.
func (l *EventLog) Has(t EventType, inviteID string) bool {
	return slices.ContainsFunc(l.events, func(e Event) bool {
		return e.Type == t && e.InviteID == inviteID
	})
}
