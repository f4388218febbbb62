package invite

import (
	"strings"
	"time"

	"securechat/cmd/identity"
)

// PendingMember is an applicant whose redemption succeeded but who waits for
// an admin decision.
type PendingMember struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Avatar      string    `json:"avatar"`
	Email       string    `json:"email,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
	InviteCode  string    `json:"inviteCode"`
	InvitedBy   string    `json:"invitedBy"`
	Message     string    `json:"message,omitempty"`
	Guest       bool      `json:"isGuest,omitempty"`
}

// IsGuest reports whether the applicant joined without an account.
func (p PendingMember) IsGuest() bool {
	return p.Guest || strings.HasPrefix(p.UserID, "guest-")
}

// DefaultRole is the role granted to everyone admitted through an invite.
const DefaultRole = "member"

// MembershipGrant is handed to the roster when an applicant becomes a member.
type MembershipGrant struct {
	ChannelID  string    `json:"channelId"`
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Avatar     string    `json:"avatar"`
	Guest      bool      `json:"isGuest,omitempty"`
	Role       string    `json:"role"`
	InviteCode string    `json:"inviteCode"`
	InvitedBy  string    `json:"invitedBy,omitempty"`
	GrantedAt  time.Time `json:"grantedAt"`
}

func grantFor(channelID string, p PendingMember, now time.Time) MembershipGrant {
	return MembershipGrant{
		ChannelID:  channelID,
		UserID:     p.UserID,
		Username:   p.Username,
		Avatar:     p.Avatar,
		Guest:      p.IsGuest(),
		Role:       DefaultRole,
		InviteCode: p.InviteCode,
		InvitedBy:  p.InvitedBy,
		GrantedAt:  now,
	}
}

// AcceptInput is a request to join a channel with an invite code. Exactly one
// of User and Guest identifies the applicant; User wins when both are set.
type AcceptInput struct {
	ChannelID string
	Code      string
	User      *identity.User
	Guest     *identity.Guest
	Email     string
	Message   string
}

// AcceptResult is the outcome of a successful Accept.
type AcceptResult struct {
	Outcome Outcome          `json:"outcome"`
	Invite  Record           `json:"invite"`
	Grant   *MembershipGrant `json:"grant,omitempty"`
	Pending *PendingMember   `json:"pending,omitempty"`
}
