package invite

import (
	"context"
	"errors"
	"testing"
	"time"

	"securechat/cmd/identity"
	"securechat/cmd/internal/kv"

	"github.com/stretchr/testify/require"
)

func TestCreate_ExpiresAfterSettingsDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	require.True(t, rec.ExpiresAt.Equal(t0.Add(7*24*time.Hour)))
	require.True(t, rec.IsActive)
	require.Equal(t, 0, rec.CurrentUses)
	require.Equal(t, "Admin", rec.CreatedBy)
	require.True(t, ValidCode(rec.Code))
	require.Equal(t, BuildLink("c1", rec.Code), rec.Link)

	history, err := f.svc.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, EventCreated, history[0].Type)
	require.Equal(t, rec.ID, history[0].InviteID)
}

func TestAccept_ExpiryScenario(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Create(context.Background(), "c1", weekly, admin)
	require.NoError(t, err)

	f.clock.Set(t0.Add(6 * 24 * time.Hour))
	res, err := f.accept(t, "c1", rec.Code, alice)
	require.NoError(t, err)
	require.Equal(t, Approved, res.Outcome)
	require.NotNil(t, res.Grant)
	require.Equal(t, alice.ID, res.Grant.UserID)
	require.Len(t, f.roster.ops("accept"), 1)

	f.clock.Set(t0.Add(8 * 24 * time.Hour))
	_, err = f.accept(t, "c1", rec.Code, bob)
	require.ErrorIs(t, err, ErrExpired)
	require.ErrorIs(t, err, ErrNoLongerValid)
	require.Len(t, f.roster.ops("accept"), 1)
}

func TestAccept_UseLimitScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7, MaxUses: 2}, admin)
	require.NoError(t, err)

	for i, u := range []*identity.User{alice, bob} {
		res, err := f.accept(t, "c1", rec.Code, u)
		require.NoError(t, err)
		require.Equal(t, i+1, res.Invite.CurrentUses)
	}

	_, err = f.accept(t, "c1", rec.Code, &identity.User{ID: "u-carol", Username: "carol"})
	require.ErrorIs(t, err, ErrExhausted)
	require.True(t, IsNoLongerValid(err))

	snap, err := f.svc.Invites(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, snap.Invites, 1)
	require.Equal(t, 2, snap.Invites[0].CurrentUses)
}

func TestAccept_UnlimitedNeverExhausts(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Create(context.Background(), "c1", weekly, admin)
	require.NoError(t, err)

	for range 25 {
		_, err := f.accept(t, "c1", rec.Code, alice)
		require.NoError(t, err)
	}
}

func TestRevoke_BlocksRedemptionAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)

	revoked, err := f.svc.Revoke(ctx, "c1", rec.ID)
	require.NoError(t, err)
	require.False(t, revoked.IsActive)

	_, err = f.accept(t, "c1", rec.Code, alice)
	require.ErrorIs(t, err, ErrRevoked)

	again, err := f.svc.Revoke(ctx, "c1", rec.ID)
	require.NoError(t, err)
	require.Equal(t, revoked, again)

	history, err := f.svc.History(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, countEvents(history, EventRevoked))

	_, err = f.svc.Revoke(ctx, "c1", "no-such-invite")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccept_RevokedWinsOverExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, "c1", rec.ID)
	require.NoError(t, err)

	f.clock.Advance(30 * 24 * time.Hour)
	_, err = f.accept(t, "c1", rec.Code, alice)
	require.ErrorIs(t, err, ErrRevoked)
	require.NotErrorIs(t, err, ErrExpired)
}

func TestAccept_CodeErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.accept(t, "c1", "bad", alice)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.True(t, IsValidation(err))
	require.False(t, IsNoLongerValid(err))

	_, err = f.accept(t, "c1", "ZZZZ9999", alice)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, ErrNoLongerValid)
	require.Equal(t, "not_found", ErrorKind(err))
}

func TestAccept_CodeFromOtherChannelIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Create(context.Background(), "c1", weekly, admin)
	require.NoError(t, err)

	_, err = f.accept(t, "c2", rec.Code, alice)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccept_Guests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	closed, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7}, admin)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, AcceptInput{ChannelID: "c1", Code: open.Code, Guest: &identity.Guest{Name: "   "}})
	require.True(t, IsValidation(err))

	res, err := f.svc.Accept(ctx, AcceptInput{ChannelID: "c1", Code: open.Code, Guest: &identity.Guest{Name: "  Night   Owl "}})
	require.NoError(t, err)
	require.Equal(t, "Night Owl", res.Grant.Username)
	require.Equal(t, identity.DefaultGuestAvatar, res.Grant.Avatar)
	require.True(t, res.Grant.Guest)

	_, err = f.svc.Accept(ctx, AcceptInput{ChannelID: "c1", Code: closed.Code, Guest: &identity.Guest{Name: "Owl"}})
	require.ErrorIs(t, err, ErrGuestsNotAllowed)

	snap, err := f.svc.Invites(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 0, snap.Invites[1].CurrentUses)
}

func TestSendEmailInvites_SkipsInvalidAddresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SendEmailInvites(ctx, "c1", []string{"a@x.com", "not-an-email", "b@x.com ", "  "}, "see you there", admin)
	require.NoError(t, err)
	require.Len(t, res.Sent, 2)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, "not-an-email", res.Skipped[0].Value)
	require.Equal(t, "a@x.com", res.Sent[0].Email)
	require.Equal(t, "b@x.com", res.Sent[1].Email)
	require.Equal(t, KindEmail, res.Sent[0].Kind)
	require.Equal(t, "see you there", res.Sent[0].Message)

	require.Len(t, f.mailer.sent, 2)
	require.Equal(t, "b@x.com", f.mailer.sent[1].To)
	require.Equal(t, "see you there", f.mailer.sent[1].Body)
	require.Equal(t, res.Sent[1].Link, f.mailer.sent[1].Link)

	history, err := f.svc.History(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, countEvents(history, EventCreated))
	require.Equal(t, 2, countEvents(history, EventSent))
	for _, e := range history {
		if e.Type == EventSent {
			require.Equal(t, SubtypeEmailInvite, e.Subtype)
			require.NotEmpty(t, e.Recipient)
		}
	}
}

func TestSendEmailInvites_NoValidAddressPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SendEmailInvites(ctx, "c1", []string{"nope", ""}, "", admin)
	require.True(t, IsValidation(err))
	require.Len(t, res.Skipped, 1)

	_, err = f.store.Get(ctx, ChannelKey("c1"))
	require.True(t, kv.IsNotFound(err))
	require.Empty(t, f.mailer.sent)
}

func TestSendEmailInvites_Limits(t *testing.T) {
	f := newFixture(t, WithLimits(2, 10))
	ctx := context.Background()

	_, err := f.svc.SendEmailInvites(ctx, "c1", []string{"a@x.com", "b@x.com", "c@x.com"}, "", admin)
	require.True(t, IsValidation(err))

	_, err = f.svc.SendEmailInvites(ctx, "c1", []string{"a@x.com"}, "this message is too long", admin)
	require.True(t, IsValidation(err))
}

func TestRequireApproval_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7, RequireApproval: true}, admin)
	require.NoError(t, err)

	res, err := f.svc.Accept(ctx, AcceptInput{ChannelID: "c1", Code: rec.Code, User: alice, Message: "hi!"})
	require.NoError(t, err)
	require.Equal(t, PendingApproval, res.Outcome)
	require.Nil(t, res.Grant)
	require.NotNil(t, res.Pending)
	require.Equal(t, "Admin", res.Pending.InvitedBy)
	require.Equal(t, "hi!", res.Pending.Message)
	require.Empty(t, f.roster.ops("accept"))

	history, err := f.svc.History(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, EventAccepted, history[0].Type)

	pending, err := f.svc.PendingMembers(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	grant, found, err := f.svc.Approve(ctx, "c1", pending[0].ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, alice.ID, grant.UserID)
	require.Len(t, f.roster.ops("approve"), 1)

	pending, err = f.svc.PendingMembers(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, pending)

	res, err = f.accept(t, "c1", rec.Code, bob)
	require.NoError(t, err)
	m, found, err := f.svc.Reject(ctx, "c1", res.Pending.ID, "  not today ")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, bob.ID, m.UserID)

	rejects := f.roster.ops("reject")
	require.Len(t, rejects, 1)
	require.Equal(t, "not today", rejects[0].Reason)
	require.Len(t, f.roster.ops("approve"), 1)
	require.Empty(t, f.roster.ops("accept"))

	pending, err = f.svc.PendingMembers(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestApproveReject_UnknownIDIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7, RequireApproval: true}, admin)
	require.NoError(t, err)
	_, err = f.accept(t, "c1", rec.Code, alice)
	require.NoError(t, err)

	_, found, err := f.svc.Approve(ctx, "c1", "ghost")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = f.svc.Reject(ctx, "c1", "ghost", "")
	require.NoError(t, err)
	require.False(t, found)

	pending, err := f.svc.PendingMembers(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Empty(t, f.roster.ops("approve"))
	require.Empty(t, f.roster.ops("reject"))
}

func TestApproveAll_ClearsEvenWhenHandoffFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7, RequireApproval: true}, admin)
	require.NoError(t, err)
	for _, u := range []*identity.User{alice, bob} {
		_, err := f.accept(t, "c1", rec.Code, u)
		require.NoError(t, err)
	}

	f.roster.fail = errors.New("roster offline")
	grants, err := f.svc.ApproveAll(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	require.Len(t, f.roster.ops("approve"), 2)

	pending, err := f.svc.PendingMembers(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRejectAll_NotifiesEachMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7, RequireApproval: true}, admin)
	require.NoError(t, err)
	for _, u := range []*identity.User{alice, bob} {
		_, err := f.accept(t, "c1", rec.Code, u)
		require.NoError(t, err)
	}

	rejected, err := f.svc.RejectAll(ctx, "c1", "full")
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	require.Len(t, f.roster.ops("reject"), 2)
	require.Empty(t, f.roster.ops("approve"))

	rejected, err = f.svc.RejectAll(ctx, "c1", "")
	require.NoError(t, err)
	require.Empty(t, rejected)
}

func TestRegenerate_KeepsOlderCodesValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CurrentLink(ctx, "c1", admin)
	require.NoError(t, err)
	same, err := f.svc.CurrentLink(ctx, "c1", admin)
	require.NoError(t, err)
	require.Equal(t, first.ID, same.ID)

	emailed, err := f.svc.SendEmailInvites(ctx, "c1", []string{"a@x.com"}, "", admin)
	require.NoError(t, err)

	second, err := f.svc.Regenerate(ctx, "c1", admin)
	require.NoError(t, err)
	require.NotEqual(t, first.Code, second.Code)

	current, err := f.svc.CurrentLink(ctx, "c1", admin)
	require.NoError(t, err)
	require.Equal(t, second.ID, current.ID)

	_, err = f.accept(t, "c1", first.Code, alice)
	require.ErrorIs(t, err, ErrRevoked)
	_, err = f.accept(t, "c1", emailed.Sent[0].Code, alice)
	require.NoError(t, err)
	_, err = f.accept(t, "c1", second.Code, bob)
	require.NoError(t, err)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.Invites(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), snap.Settings)
	require.True(t, snap.Settings.AllowGuests)

	old, err := f.svc.CurrentLink(ctx, "c1", admin)
	require.NoError(t, err)

	_, err = f.svc.UpdateSettings(ctx, "c1", Settings{ExpiresIn: 31})
	require.True(t, IsValidation(err))
	_, err = f.svc.UpdateSettings(ctx, "c1", Settings{ExpiresIn: 3, MaxUses: -1})
	require.True(t, IsValidation(err))

	_, err = f.svc.UpdateSettings(ctx, "c1", Settings{ExpiresIn: 1, MaxUses: 5, RequireApproval: true})
	require.NoError(t, err)
	require.Len(t, f.roster.ops("settings"), 1)

	fresh, err := f.svc.Regenerate(ctx, "c1", admin)
	require.NoError(t, err)
	require.Equal(t, 5, fresh.MaxUses)
	require.True(t, fresh.RequireApproval)
	require.True(t, fresh.ExpiresAt.Equal(t0.Add(24*time.Hour)))

	require.Equal(t, 0, old.MaxUses)
	require.False(t, old.RequireApproval)
}

func TestShareAndDirectInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shared, err := f.svc.ShareLink(ctx, "c1", "native_share", admin)
	require.NoError(t, err)

	direct, err := f.svc.DirectInvite(ctx, "c1", "u-bob", admin)
	require.NoError(t, err)
	require.Equal(t, KindDirect, direct.Kind)
	require.Equal(t, "u-bob", direct.RecipientID)
	require.Len(t, f.roster.ops("invite"), 1)

	_, err = f.svc.DirectInvite(ctx, "c1", " ", admin)
	require.True(t, IsValidation(err))

	history, err := f.svc.History(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, SubtypeDirectInvite, history[0].Subtype)
	require.Equal(t, SubtypeLinkShare, history[2].Subtype)
	require.Equal(t, "native_share", history[2].Method)
	require.Equal(t, shared.ID, history[2].InviteID)
}

func TestDecline_LeavesStateAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)

	require.NoError(t, f.svc.Decline(ctx, "c1", rec.Code))
	require.Len(t, f.roster.ops("decline"), 1)
	require.True(t, IsValidation(f.svc.Decline(ctx, "c1", "x")))

	snap, err := f.svc.Invites(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 0, snap.Invites[0].CurrentUses)
}

func TestHistoryAndAnalyticsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Create(ctx, "c2", weekly, admin)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Revoke(ctx, "c1", a.ID)
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, EventRevoked, history[0].Type)
	require.Equal(t, EventCreated, history[1].Type)

	all, err := f.svc.Analytics(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c1", all[0].ChannelID)
	require.Equal(t, "c2", all[1].ChannelID)
	require.Equal(t, EventRevoked, all[2].Type)

	c1, err := f.svc.Analytics(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, c1, 2)
	require.Equal(t, EventCreated, c1[0].Type)
}

func TestPersistence_LenientByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.failSet = true
	rec, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Code)

	f.store.failSet = false
	snap, err := f.svc.Invites(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, snap.Invites)
}

func TestPersistence_Strict(t *testing.T) {
	f := newFixture(t, WithStrictPersistence(true))
	ctx := context.Background()

	f.store.failSet = true
	_, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.ErrorIs(t, err, ErrStorage)
	require.Equal(t, "storage", ErrorKind(err))
}

func TestPersistence_StrictAcceptFilesNothingWhenUseIsNotStored(t *testing.T) {
	f := newFixture(t, WithStrictPersistence(true))
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7, MaxUses: 1, RequireApproval: true}, admin)
	require.NoError(t, err)

	f.store.failPrefix = channelKeyPrefix
	for range 3 {
		_, err := f.accept(t, "c1", rec.Code, alice)
		require.ErrorIs(t, err, ErrStorage)
	}
	f.store.failPrefix = ""

	pending, err := f.svc.PendingMembers(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, pending)
	snap, err := f.svc.Invites(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 0, snap.Invites[0].CurrentUses)

	res, err := f.accept(t, "c1", rec.Code, alice)
	require.NoError(t, err)
	require.Equal(t, PendingApproval, res.Outcome)

	_, err = f.accept(t, "c1", rec.Code, bob)
	require.ErrorIs(t, err, ErrExhausted)

	pending, err = f.svc.PendingMembers(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestApprove_GrantsMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)

	res, err := f.accept(t, "c1", rec.Code, alice)
	require.NoError(t, err)
	require.NotNil(t, res.Grant)
	require.Equal(t, DefaultRole, res.Grant.Role)

	gated, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 7, RequireApproval: true}, admin)
	require.NoError(t, err)
	res, err = f.accept(t, "c1", gated.Code, bob)
	require.NoError(t, err)
	grant, found, err := f.svc.Approve(ctx, "c1", res.Pending.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "member", grant.Role)
}

func TestPersistence_CorruptStateIsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, ChannelKey("c1"), []byte("{not json")))

	snap, err := f.svc.Invites(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, snap.Invites)
	require.Equal(t, DefaultSettings(), snap.Settings)

	_, err = f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
}

func TestCreate_RetriesCodeCollisions(t *testing.T) {
	codes := []string{"AAAA1111", "AAAA1111", "BBBB2222"}
	i := 0
	f := newFixture(t, WithCodeGenerator(CodeFunc(func() (string, error) {
		c := codes[i]
		i++
		return c, nil
	})))
	ctx := context.Background()

	first, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	require.Equal(t, "AAAA1111", first.Code)
	require.Equal(t, "BBBB2222", second.Code)
}

func TestStoreResolver_IsReplaceable(t *testing.T) {
	remote := Record{
		ID: "remote-1", ChannelID: "c9", Code: "REMOTE01",
		ExpiresAt: t0.Add(time.Hour), IsActive: true, AllowGuests: true,
	}
	f := newFixture(t, WithResolver(ResolverFunc(func(_ context.Context, channelID, code string) (Record, error) {
		if channelID == remote.ChannelID && code == remote.Code {
			return remote, nil
		}
		return Record{}, noLongerValid(ErrNotFound)
	})))
	ctx := context.Background()

	res, err := f.accept(t, "c9", "REMOTE01", alice)
	require.NoError(t, err)
	require.Equal(t, 1, res.Invite.CurrentUses)

	snap, err := f.svc.Invites(ctx, "c9")
	require.NoError(t, err)
	require.Len(t, snap.Invites, 1)
	require.Equal(t, 1, snap.Invites[0].CurrentUses)
}

func TestNotifierReceivesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, "c1", weekly, admin)
	require.NoError(t, err)
	_, err = f.accept(t, "c1", rec.Code, alice)
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 2)
	require.Equal(t, EventAccepted, f.notifier.events[1].Type)
	require.NotEmpty(t, f.notifier.toasts)
}
