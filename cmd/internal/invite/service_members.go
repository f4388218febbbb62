package invite

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// PendingMembers returns the applicants waiting for approval, oldest first.
func (s *Service) PendingMembers(ctx context.Context, channelID string) ([]PendingMember, error) {
	if err := checkChannel(ctx, channelID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	members, err := s.loadPending(ctx, channelID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []PendingMember{}
	}
	return members, nil
}

// takePending removes pendingID from the channel's pending list and persists
// the rest. found is false when the id is not pending, which is not an error:
// two admins may decide on the same applicant.
func (s *Service) takePending(ctx context.Context, channelID, pendingID string) (PendingMember, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.loadPending(ctx, channelID)
	if err != nil {
		return PendingMember{}, false, err
	}
	i := slices.IndexFunc(members, func(m PendingMember) bool { return m.ID == pendingID })
	if i < 0 {
		return PendingMember{}, false, nil
	}
	m := members[i]
	if err := s.savePending(ctx, channelID, slices.Delete(members, i, i+1)); err != nil {
		return PendingMember{}, false, err
	}
	return m, true, nil
}

// takeAllPending clears the channel's pending list and returns what was in it.
func (s *Service) takeAllPending(ctx context.Context, channelID string) ([]PendingMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.loadPending(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	if err := s.savePending(ctx, channelID, nil); err != nil {
		return nil, err
	}
	return members, nil
}

// Approve removes an applicant from the pending list and hands the grant to
// the roster. Approving an id that is not pending returns found=false.
func (s *Service) Approve(ctx context.Context, channelID, pendingID string) (grant MembershipGrant, found bool, err error) {
	ctx, span := s.span(ctx, "Approve", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return MembershipGrant{}, false, err
	}

	m, found, err := s.takePending(ctx, channelID, pendingID)
	if err != nil || !found {
		return MembershipGrant{}, false, err
	}
	grant = grantFor(channelID, m, s.now())
	if err := s.roster.OnApproveMember(ctx, channelID, m); err != nil {
		s.log.Error("invite.pending.approve.handoff.fail", "err", err, "channel_id", channelID, "pending_id", pendingID)
	}
	s.log.Info("invite.pending.approve", "channel_id", channelID, "pending_id", pendingID)
	s.notify(ctx, channelID, ToneSuccess, "Member Approved", m.Username+" has been approved to join the channel")
	return grant, true, nil
}

// Reject removes an applicant from the pending list without a grant. The
// reason is passed to the roster as given.
func (s *Service) Reject(ctx context.Context, channelID, pendingID, reason string) (m PendingMember, found bool, err error) {
	ctx, span := s.span(ctx, "Reject", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return PendingMember{}, false, err
	}

	m, found, err = s.takePending(ctx, channelID, pendingID)
	if err != nil || !found {
		return PendingMember{}, false, err
	}
	if err := s.roster.OnRejectMember(ctx, channelID, m, strings.TrimSpace(reason)); err != nil {
		s.log.Error("invite.pending.reject.handoff.fail", "err", err, "channel_id", channelID, "pending_id", pendingID)
	}
	s.log.Info("invite.pending.reject", "channel_id", channelID, "pending_id", pendingID)
	s.notify(ctx, channelID, ToneInfo, "Member Rejected", m.Username+"'s request has been rejected")
	return m, true, nil
}

// ApproveAll clears the pending list, then hands each applicant to the roster.
// Hand-off failures are logged together; the list stays cleared.
func (s *Service) ApproveAll(ctx context.Context, channelID string) (grants []MembershipGrant, err error) {
	ctx, span := s.span(ctx, "ApproveAll", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return nil, err
	}

	members, err := s.takeAllPending(ctx, channelID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var failed []error
	grants = make([]MembershipGrant, 0, len(members))
	for _, m := range members {
		grants = append(grants, grantFor(channelID, m, now))
		if err := s.roster.OnApproveMember(ctx, channelID, m); err != nil {
			failed = append(failed, fmt.Errorf("approve %s: %w", m.ID, err))
		}
	}
	if len(failed) > 0 {
		s.log.Error("invite.pending.approve_all.handoff.fail", "err", errors.Join(failed...), "channel_id", channelID, "failed", len(failed))
	}
	s.log.Info("invite.pending.approve_all", "channel_id", channelID, "count", len(members))
	if len(members) > 0 {
		s.notify(ctx, channelID, ToneSuccess, "All Members Approved", fmt.Sprintf("%d member(s) approved", len(members)))
	}
	return grants, nil
}

// RejectAll clears the pending list, then tells the roster about each
// rejected applicant.
func (s *Service) RejectAll(ctx context.Context, channelID, reason string) (rejected []PendingMember, err error) {
	ctx, span := s.span(ctx, "RejectAll", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return nil, err
	}

	members, err := s.takeAllPending(ctx, channelID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	var failed []error
	for _, m := range members {
		if err := s.roster.OnRejectMember(ctx, channelID, m, reason); err != nil {
			failed = append(failed, fmt.Errorf("reject %s: %w", m.ID, err))
		}
	}
	if len(failed) > 0 {
		s.log.Error("invite.pending.reject_all.handoff.fail", "err", errors.Join(failed...), "channel_id", channelID, "failed", len(failed))
	}
	s.log.Info("invite.pending.reject_all", "channel_id", channelID, "count", len(members))
	if len(members) > 0 {
		s.notify(ctx, channelID, ToneInfo, "All Requests Rejected", fmt.Sprintf("%d membership request(s) rejected", len(members)))
	}
	if members == nil {
		members = []PendingMember{}
	}
	return members, nil
}
