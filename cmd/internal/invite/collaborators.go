package invite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"securechat/cmd/identity"
)

// Channel is the read-only view of a chat channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// ChannelLookup resolves channel metadata for messages and notifications.
type ChannelLookup interface {
	Channel(ctx context.Context, channelID string) (Channel, error)
}

type fallbackChannels struct{}

func (fallbackChannels) Channel(_ context.Context, channelID string) (Channel, error) {
	return Channel{ID: channelID, Name: channelID}, nil
}

// Roster owns the real member list of a channel. The Service hands it every
// final membership decision; errors are logged and never undo invite state.
type Roster interface {
	OnInviteMember(ctx context.Context, channelID, userID string, inv Record) error
	OnUpdateInviteSettings(ctx context.Context, channelID string, s Settings) error
	OnAcceptInvite(ctx context.Context, ch Channel, grant MembershipGrant) error
	OnDeclineInvite(ctx context.Context, channelID, code string) error
	OnApproveMember(ctx context.Context, channelID string, m PendingMember) error
	OnRejectMember(ctx context.Context, channelID string, m PendingMember, reason string) error
}

// NopRoster accepts every hand-off and does nothing.
type NopRoster struct{}

func (NopRoster) OnInviteMember(context.Context, string, string, Record) error   { return nil }
func (NopRoster) OnUpdateInviteSettings(context.Context, string, Settings) error { return nil }
func (NopRoster) OnAcceptInvite(context.Context, Channel, MembershipGrant) error { return nil }
func (NopRoster) OnDeclineInvite(context.Context, string, string) error          { return nil }
func (NopRoster) OnApproveMember(context.Context, string, PendingMember) error   { return nil }
func (NopRoster) OnRejectMember(context.Context, string, PendingMember, string) error {
	return nil
}

// Tone is the visual weight of a notification.
type Tone string

const (
	ToneInfo        Tone = "info"
	ToneSuccess     Tone = "success"
	ToneDestructive Tone = "destructive"
)

// Notification is a toast shown to the acting user.
type Notification struct {
	ChannelID   string    `json:"channelId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Tone        Tone      `json:"tone,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier is a fire-and-forget presentation sink. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
	Publish(ctx context.Context, e Event)
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}
func (NopNotifier) Publish(context.Context, Event)       {}

// InviteEmail is one outgoing email invitation.
type InviteEmail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Link    string `json:"link"`
}

// Mailer delivers email invites. Delivery is best effort.
type Mailer interface {
	SendInvite(ctx context.Context, msg InviteEmail) error
}

// NopMailer discards messages.
type NopMailer struct{}

func (NopMailer) SendInvite(context.Context, InviteEmail) error { return nil }

// BuildInviteMessage renders the email for an invite to ch. A blank custom
// message falls back to the stock text.
func BuildInviteMessage(ch Channel, to, link, custom string) InviteEmail {
	name := strings.TrimSpace(ch.Name)
	if name == "" {
		name = ch.ID
	}
	body := strings.TrimSpace(custom)
	if body == "" {
		body = fmt.Sprintf("You've been invited to join the %s channel on SecureChat!", name)
	}
	return InviteEmail{
		To:      to,
		Subject: "Invitation to " + name,
		Body:    body,
		Link:    link,
	}
}

// Resolver looks an invite code up. It is the only asynchronous step of
// acceptance: one call, no retries. Unknown codes return ErrNotFound.
type Resolver interface {
	Resolve(ctx context.Context, channelID, code string) (Record, error)
}

// Applicant is who is trying to join, derived from AcceptInput.
type Applicant struct {
	UserID   string
	Username string
	Avatar   string
	Guest    bool
}

func applicantFrom(in AcceptInput) (Applicant, error) {
	if in.User != nil {
		u := *in.User
		if strings.TrimSpace(u.ID) == "" {
			return Applicant{}, ValidationError{Field: "user.id", Reason: "required"}
		}
		name := identity.NormalizeDisplayName(u.Username)
		if name == "" {
			return Applicant{}, ValidationError{Field: "user.username", Reason: "required"}
		}
		return Applicant{UserID: u.ID, Username: name, Avatar: u.Avatar}, nil
	}
	if in.Guest != nil {
		name := identity.NormalizeDisplayName(in.Guest.Name)
		if name == "" {
			return Applicant{}, ValidationError{Field: "guest.name", Value: in.Guest.Name, Reason: "display name required"}
		}
		avatar := strings.TrimSpace(in.Guest.Avatar)
		if avatar == "" {
			avatar = identity.DefaultGuestAvatar
		}
		return Applicant{UserID: identity.NewGuestID(), Username: name, Avatar: avatar, Guest: true}, nil
	}
	return Applicant{}, ValidationError{Field: "applicant", Reason: "user or guest required"}
}
