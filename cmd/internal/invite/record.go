package invite

import (
	"fmt"
	"time"
)

const (
	DefaultExpiresInDays = 7
	MinExpiresInDays     = 1
	MaxExpiresInDays     = 30

	day = 24 * time.Hour
)

// Settings is a channel's invite policy. New values apply only to invites
// created after the change.
type Settings struct {
	MaxUses            int  `json:"maxUses"`
	ExpiresIn          int  `json:"expiresIn"`
	RequireApproval    bool `json:"requireApproval"`
	AllowGuests        bool `json:"allowGuests"`
	SendWelcomeMessage bool `json:"sendWelcomeMessage"`
}

// DefaultSettings returns the policy used for channels that never saved one.
func DefaultSettings() Settings {
	return Settings{
		MaxUses:            0,
		ExpiresIn:          DefaultExpiresInDays,
		RequireApproval:    false,
		AllowGuests:        true,
		SendWelcomeMessage: true,
	}
}

// Validate checks the ranges an admin may choose.
func (s Settings) Validate() error {
	if s.MaxUses < 0 {
		return ValidationError{Field: "maxUses", Value: fmt.Sprint(s.MaxUses), Reason: "must be zero (unlimited) or positive"}
	}
	if s.ExpiresIn < MinExpiresInDays || s.ExpiresIn > MaxExpiresInDays {
		return ValidationError{Field: "expiresIn", Value: fmt.Sprint(s.ExpiresIn), Reason: "must be between 1 and 30 days"}
	}
	return nil
}

// TTL is the lifetime of invites issued under s.
func (s Settings) TTL() time.Duration {
	return time.Duration(s.ExpiresIn) * day
}

// Kind says how an invite was issued.
type Kind string

const (
	KindLink   Kind = "link"
	KindEmail  Kind = "email"
	KindDirect Kind = "direct"
)

// Record is an issued, redeemable invite.
//
// There is no stored status: Status derives it from IsActive, ExpiresAt,
// CurrentUses and MaxUses.
type Record struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channelId"`
	Code            string    `json:"code"`
	Link            string    `json:"link"`
	Kind            Kind      `json:"kind"`
	Email           string    `json:"email,omitempty"`
	RecipientID     string    `json:"recipientId,omitempty"`
	CreatedBy       string    `json:"createdBy,omitempty"`
	Message         string    `json:"customMessage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	MaxUses         int       `json:"maxUses"`
	CurrentUses     int       `json:"currentUses"`
	RequireApproval bool      `json:"requireApproval"`
	AllowGuests     bool      `json:"allowGuests"`
	IsActive        bool      `json:"isActive"`
}

// Issuer is whoever creates an invite. Name is shown to applicants as "invited by".
type Issuer struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
}

// NewRecordInput describes a record to mint.
type NewRecordInput struct {
	ID        string
	ChannelID string
	Code      string
	Link      string
	Kind      Kind
	Settings  Settings
	Issuer    Issuer
	CreatedAt time.Time
}

// NewRecord mints an active record. Settings are trusted as given: range
// checks belong to whoever accepted them from an admin.
func NewRecord(in NewRecordInput) Record {
	kind := in.Kind
	if kind == "" {
		kind = KindLink
	}
	maxUses := in.Settings.MaxUses
	if maxUses < 0 {
		maxUses = 0
	}
	return Record{
		ID:              in.ID,
		ChannelID:       in.ChannelID,
		Code:            in.Code,
		Link:            in.Link,
		Kind:            kind,
		CreatedBy:       in.Issuer.Name,
		CreatedAt:       in.CreatedAt,
		ExpiresAt:       in.CreatedAt.Add(in.Settings.TTL()),
		MaxUses:         maxUses,
		CurrentUses:     0,
		RequireApproval: in.Settings.RequireApproval,
		AllowGuests:     in.Settings.AllowGuests,
		IsActive:        true,
	}
}

// Status is the derived lifecycle state of a record.
type Status int

const (
	StatusActive Status = iota
	StatusRevoked
	StatusExpired
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRevoked:
		return "revoked"
	case StatusExpired:
		return "expired"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// MarshalText renders the status label.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status derives the record state at now. Revocation wins over expiry, and
// expiry wins over exhaustion.
func (r Record) Status(now time.Time) Status {
	switch {
	case !r.IsActive:
		return StatusRevoked
	case !now.Before(r.ExpiresAt):
		return StatusExpired
	case r.MaxUses > 0 && r.CurrentUses >= r.MaxUses:
		return StatusExhausted
	default:
		return StatusActive
	}
}

// Usable reports whether the record can be redeemed at now.
func (r Record) Usable(now time.Time) bool {
	return r.Status(now) == StatusActive
}

// Check returns the redemption error for the record at now, or nil.
func (r Record) Check(now time.Time) error {
	switch r.Status(now) {
	case StatusRevoked:
		return noLongerValid(ErrRevoked)
	case StatusExpired:
		return noLongerValid(ErrExpired)
	case StatusExhausted:
		return noLongerValid(ErrExhausted)
	default:
		return nil
	}
}

// Outcome is the result of a successful redemption.
type Outcome int

const (
	// Approved grants membership immediately.
	Approved Outcome = iota + 1
	// PendingApproval files the applicant for admin review.
	PendingApproval
)

func (o Outcome) String() string {
	switch o {
	case Approved:
		return "approved"
	case PendingApproval:
		return "pending_approval"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome label.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Redeem consumes one use of the record. On failure the record is unchanged.
func (r *Record) Redeem(now time.Time) (Outcome, error) {
	if err := r.Check(now); err != nil {
		return 0, err
	}
	r.CurrentUses++
	if r.RequireApproval {
		return PendingApproval, nil
	}
	return Approved, nil
}

// Revoke deactivates the record. It reports whether anything changed.
func (r *Record) Revoke() bool {
	if !r.IsActive {
		return false
	}
	r.IsActive = false
	return true
}

// RemainingUses returns the uses left, or -1 when unlimited.
func (r Record) RemainingUses() int {
	if r.MaxUses == 0 {
		return -1
	}
	if left := r.MaxUses - r.CurrentUses; left > 0 {
		return left
	}
	return 0
}
