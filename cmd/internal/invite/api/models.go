package inviteapi

import (
	"time"

	"securechat/cmd/internal/invite"
)

type settingsBody struct {
	MaxUses            int  `json:"max_uses"`
	ExpiresIn          int  `json:"expires_in"`
	RequireApproval    bool `json:"require_approval"`
	AllowGuests        bool `json:"allow_guests"`
	SendWelcomeMessage bool `json:"send_welcome_message"`
}

func (b settingsBody) toSettings() invite.Settings {
	return invite.Settings{
		MaxUses:            b.MaxUses,
		ExpiresIn:          b.ExpiresIn,
		RequireApproval:    b.RequireApproval,
		AllowGuests:        b.AllowGuests,
		SendWelcomeMessage: b.SendWelcomeMessage,
	}
}

func toSettingsBody(s invite.Settings) settingsBody {
	return settingsBody{
		MaxUses:            s.MaxUses,
		ExpiresIn:          s.ExpiresIn,
		RequireApproval:    s.RequireApproval,
		AllowGuests:        s.AllowGuests,
		SendWelcomeMessage: s.SendWelcomeMessage,
	}
}

type emailInviteRequest struct {
	Emails  []string `json:"emails"`
	Message string   `json:"message"`
}

type shareRequest struct {
	Method string `json:"method"`
}

type directInviteRequest struct {
	UserID string `json:"user_id"`
}

type acceptRequest struct {
	Guest *struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"guest"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type inviteResponse struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	Code            string    `json:"code"`
	Link            string    `json:"link"`
	Kind            string    `json:"kind"`
	Email           string    `json:"email,omitempty"`
	RecipientID     string    `json:"recipient_id,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ExpiresIn       string    `json:"expires_in"`
	MaxUses         int       `json:"max_uses"`
	CurrentUses     int       `json:"current_uses"`
	RequireApproval bool      `json:"require_approval"`
	AllowGuests     bool      `json:"allow_guests"`
	Status          string    `json:"status"`
	Primary         bool      `json:"primary,omitempty"`
}

func toInviteResponse(r invite.Record, now time.Time, primary string) inviteResponse {
	return inviteResponse{
		ID:              r.ID,
		ChannelID:       r.ChannelID,
		Code:            r.Code,
		Link:            r.Link,
		Kind:            string(r.Kind),
		Email:           r.Email,
		RecipientID:     r.RecipientID,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
		ExpiresIn:       invite.FormatExpiry(r.ExpiresAt, now),
		MaxUses:         r.MaxUses,
		CurrentUses:     r.CurrentUses,
		RequireApproval: r.RequireApproval,
		AllowGuests:     r.AllowGuests,
		Status:          r.Status(now).String(),
		Primary:         primary != "" && r.ID == primary,
	}
}

type invitesResponse struct {
	ChannelID string           `json:"channel_id"`
	Invites   []inviteResponse `json:"invites"`
	Settings  settingsBody     `json:"settings"`
}

type emailInviteResponse struct {
	Sent    []inviteResponse  `json:"sent"`
	Skipped []skippedResponse `json:"skipped"`
}

type skippedResponse struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type eventResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Subtype    string    `json:"subtype,omitempty"`
	InviteID   string    `json:"invite_id,omitempty"`
	InviteCode string    `json:"invite_code,omitempty"`
	ChannelID  string    `json:"channel_id"`
	Recipient  string    `json:"recipient,omitempty"`
	Method     string    `json:"method,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func toEventResponses(events []invite.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID,
			Type:       string(e.Type),
			Subtype:    string(e.Subtype),
			InviteID:   e.InviteID,
			InviteCode: e.InviteCode,
			ChannelID:  e.ChannelID,
			Recipient:  e.Recipient,
			Method:     e.Method,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}

type eventsResponse struct {
	Events []eventResponse `json:"events"`
}

type pendingMemberResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Avatar      string    `json:"avatar"`
	Email       string    `json:"email,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	InviteCode  string    `json:"invite_code"`
	InvitedBy   string    `json:"invited_by,omitempty"`
	Message     string    `json:"message,omitempty"`
	IsGuest     bool      `json:"is_guest"`
}

func toPendingResponse(m invite.PendingMember) pendingMemberResponse {
	return pendingMemberResponse{
		ID:          m.ID,
		UserID:      m.UserID,
		Username:    m.Username,
		Avatar:      m.Avatar,
		Email:       m.Email,
		RequestedAt: m.RequestedAt,
		InviteCode:  m.InviteCode,
		InvitedBy:   m.InvitedBy,
		Message:     m.Message,
		IsGuest:     m.IsGuest(),
	}
}

type pendingMembersResponse struct {
	Members []pendingMemberResponse `json:"members"`
}

type grantResponse struct {
	ChannelID  string    `json:"channel_id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Avatar     string    `json:"avatar"`
	IsGuest    bool      `json:"is_guest"`
	Role       string    `json:"role"`
	InviteCode string    `json:"invite_code"`
	InvitedBy  string    `json:"invited_by,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}

func toGrantResponse(g invite.MembershipGrant) grantResponse {
	return grantResponse{
		ChannelID:  g.ChannelID,
		UserID:     g.UserID,
		Username:   g.Username,
		Avatar:     g.Avatar,
		IsGuest:    g.Guest,
		Role:       g.Role,
		InviteCode: g.InviteCode,
		InvitedBy:  g.InvitedBy,
		GrantedAt:  g.GrantedAt,
	}
}

type acceptResponse struct {
	Outcome string                 `json:"outcome"`
	Grant   *grantResponse         `json:"grant,omitempty"`
	Pending *pendingMemberResponse `json:"pending,omitempty"`
}

type decisionResponse struct {
	Found  bool                   `json:"found"`
	Grant  *grantResponse         `json:"grant,omitempty"`
	Member *pendingMemberResponse `json:"member,omitempty"`
}

type bulkResponse struct {
	Count int `json:"count"`
}
