package invite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Accept redeems code for the applicant in in. The code is looked up through
// the Resolver, then redeemed against the channel state. An approved
// redemption is handed to the roster; one that needs approval is filed as a
// PendingMember.
//
// Every redemption failure matches ErrNoLongerValid; the concrete kind is
// logged and stays reachable through errors.Is.
func (s *Service) Accept(ctx context.Context, in AcceptInput) (res AcceptResult, err error) {
	ctx, span := s.span(ctx, "Accept", in.ChannelID)
	defer func() { endSpan(span, err) }()
	defer func() {
		if err != nil && (IsNoLongerValid(err) || errors.Is(err, ErrGuestsNotAllowed)) {
			s.metrics.redemption(ErrorKind(err))
			s.log.Info("invite.accept.reject", "channel_id", in.ChannelID, "reason", ErrorKind(err))
		}
	}()

	if err := checkChannel(ctx, in.ChannelID); err != nil {
		return AcceptResult{}, err
	}
	code := strings.TrimSpace(in.Code)
	if !ValidCode(code) {
		return AcceptResult{}, ValidationError{Field: "code", Value: in.Code, Reason: "must be 8 characters A-Z or 0-9"}
	}
	applicant, err := applicantFrom(in)
	if err != nil {
		return AcceptResult{}, err
	}
	message := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return AcceptResult{}, ValidationError{Field: "message", Reason: fmt.Sprintf("longer than %d characters", s.maxMessageLen)}
	}

	resolved, err := s.resolver.Resolve(ctx, in.ChannelID, code)
	if err != nil {
		return AcceptResult{}, err
	}
	if resolved.ChannelID != in.ChannelID || resolved.Code != code {
		return AcceptResult{}, noLongerValid(ErrNotFound)
	}

	s.mu.Lock()
	res, accepted, err := s.redeemLocked(ctx, in, code, applicant, message, resolved)
	s.mu.Unlock()
	if err != nil {
		return AcceptResult{}, err
	}

	s.metrics.redemption(res.Outcome.String())
	s.log.Info("invite.accept", "channel_id", in.ChannelID, "invite_id", res.Invite.ID, "outcome", res.Outcome.String(), "guest", applicant.Guest)
	s.publish(ctx, accepted)

	ch := s.channel(ctx, in.ChannelID)
	if res.Grant != nil {
		if err := s.roster.OnAcceptInvite(ctx, ch, *res.Grant); err != nil {
			s.log.Error("invite.accept.handoff.fail", "err", err, "channel_id", in.ChannelID)
		}
		s.notify(ctx, in.ChannelID, ToneSuccess, "Welcome to "+ch.Name, "You've successfully joined the channel")
	} else {
		s.notify(ctx, in.ChannelID, ToneInfo, "Request Sent", "Your request to join "+ch.Name+" is awaiting approval")
	}
	return res, nil
}

func (s *Service) redeemLocked(ctx context.Context, in AcceptInput, code string, applicant Applicant, message string, resolved Record) (AcceptResult, Event, error) {
	st, err := s.loadChannel(ctx, in.ChannelID)
	if err != nil {
		return AcceptResult{}, Event{}, err
	}
	i := st.find(resolved.ID)
	if i < 0 {
		// The resolver knows a record this store has never seen; adopt it so
		// its use count is tracked from here on.
		st.Pending = append(st.Pending, resolved)
		i = len(st.Pending) - 1
	}
	rec := &st.Pending[i]
	now := s.now()

	if applicant.Guest && !rec.AllowGuests {
		if err := rec.Check(now); err != nil {
			return AcceptResult{}, Event{}, err
		}
		return AcceptResult{}, Event{}, ErrGuestsNotAllowed
	}
	outcome, err := rec.Redeem(now)
	if err != nil {
		return AcceptResult{}, Event{}, err
	}

	accepted, err := s.event(EventAccepted, *rec, now)
	if err != nil {
		return AcceptResult{}, Event{}, err
	}
	accepted.Recipient = applicant.Username

	res := AcceptResult{Outcome: outcome, Invite: *rec}
	var members []PendingMember
	if outcome == PendingApproval {
		if members, err = s.loadPending(ctx, in.ChannelID); err != nil {
			return AcceptResult{}, Event{}, err
		}
		id, err := s.newID(now)
		if err != nil {
			return AcceptResult{}, Event{}, err
		}
		pm := PendingMember{
			ID:          id,
			UserID:      applicant.UserID,
			Username:    applicant.Username,
			Avatar:      applicant.Avatar,
			Email:       strings.TrimSpace(in.Email),
			RequestedAt: now,
			InviteCode:  code,
			InvitedBy:   rec.CreatedBy,
			Message:     message,
			Guest:       applicant.Guest,
		}
		members = append(members, pm)
		res.Pending = &pm
	} else {
		grant := MembershipGrant{
			ChannelID:  in.ChannelID,
			UserID:     applicant.UserID,
			Username:   applicant.Username,
			Avatar:     applicant.Avatar,
			Guest:      applicant.Guest,
			Role:       DefaultRole,
			InviteCode: code,
			InvitedBy:  rec.CreatedBy,
			GrantedAt:  now,
		}
		res.Grant = &grant
	}

	// The consumed use is stored before the applicant is filed.
	if err := s.commitChannel(ctx, in.ChannelID, &st, accepted); err != nil {
		return AcceptResult{}, Event{}, err
	}
	if res.Pending != nil {
		if err := s.savePending(ctx, in.ChannelID, members); err != nil {
			return AcceptResult{}, Event{}, err
		}
	}
	if err := s.recordAnalytics(ctx, accepted); err != nil {
		return AcceptResult{}, Event{}, err
	}
	return res, accepted, nil
}

// Decline tells the roster the applicant turned the invitation down. Invite
// state does not change.
func (s *Service) Decline(ctx context.Context, channelID, code string) (err error) {
	ctx, span := s.span(ctx, "Decline", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return ValidationError{Field: "code", Value: code, Reason: "must be 8 characters A-Z or 0-9"}
	}
	if err := s.roster.OnDeclineInvite(ctx, channelID, code); err != nil {
		s.log.Error("invite.decline.handoff.fail", "err", err, "channel_id", channelID)
	}
	s.log.Info("invite.decline", "channel_id", channelID)
	s.notify(ctx, channelID, ToneInfo, "Invitation Declined", "You can always join later if you change your mind")
	return nil
}
