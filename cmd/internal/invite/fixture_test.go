package invite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"securechat/cmd/identity"
	"securechat/cmd/internal/kv"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seqCodes() CodeGenerator {
	var mu sync.Mutex
	n := 0
	return CodeFunc(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("CODE%04d", n), nil
	})
}

func seqIDs() func(time.Time) (string, error) {
	var mu sync.Mutex
	n := 0
	return func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%04d", n), nil
	}
}

type rosterCall struct {
	Op        string
	ChannelID string
	UserID    string
	Reason    string
}

type recordingRoster struct {
	mu    sync.Mutex
	calls []rosterCall
	fail  error
}

func (r *recordingRoster) add(c rosterCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.fail
}

func (r *recordingRoster) ops(op string) []rosterCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []rosterCall
	for _, c := range r.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingRoster) OnInviteMember(_ context.Context, channelID, userID string, _ Record) error {
	return r.add(rosterCall{Op: "invite", ChannelID: channelID, UserID: userID})
}

func (r *recordingRoster) OnUpdateInviteSettings(_ context.Context, channelID string, _ Settings) error {
	return r.add(rosterCall{Op: "settings", ChannelID: channelID})
}

func (r *recordingRoster) OnAcceptInvite(_ context.Context, ch Channel, g MembershipGrant) error {
	return r.add(rosterCall{Op: "accept", ChannelID: ch.ID, UserID: g.UserID})
}

func (r *recordingRoster) OnDeclineInvite(_ context.Context, channelID, code string) error {
	return r.add(rosterCall{Op: "decline", ChannelID: channelID, Reason: code})
}

func (r *recordingRoster) OnApproveMember(_ context.Context, channelID string, m PendingMember) error {
	return r.add(rosterCall{Op: "approve", ChannelID: channelID, UserID: m.UserID})
}

func (r *recordingRoster) OnRejectMember(_ context.Context, channelID string, m PendingMember, reason string) error {
	return r.add(rosterCall{Op: "reject", ChannelID: channelID, UserID: m.UserID, Reason: reason})
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []InviteEmail
}

func (m *recordingMailer) SendInvite(_ context.Context, msg InviteEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []Notification
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, x Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, x)
}

func (n *recordingNotifier) Publish(_ context.Context, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

// flakyStore fails writes while failSet is set, or only writes to keys
// starting with failPrefix when that is non-empty.
type flakyStore struct {
	*kv.MemoryStore
	mu         sync.Mutex
	failSet    bool
	failPrefix string
}

var errDiskFull = errors.New("disk full")

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failSet || (f.failPrefix != "" && strings.HasPrefix(key, f.failPrefix))
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.MemoryStore.Set(ctx, key, value)
}

type fixture struct {
	svc      *Service
	store    *flakyStore
	clock    *fakeClock
	roster   *recordingRoster
	mailer   *recordingMailer
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    &flakyStore{MemoryStore: kv.NewMemoryStore()},
		clock:    &fakeClock{now: t0},
		roster:   &recordingRoster{},
		mailer:   &recordingMailer{},
		notifier: &recordingNotifier{},
	}
	base := []Option{
		WithClock(f.clock.Now),
		WithCodeGenerator(seqCodes()),
		WithIDs(seqIDs()),
		WithRoster(f.roster),
		WithMailer(f.mailer),
		WithNotifier(f.notifier),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	svc, err := NewService(f.store, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

var (
	alice  = &identity.User{ID: "u-alice", Username: "alice", Avatar: "🦊"}
	bob    = &identity.User{ID: "u-bob", Username: "bob", Avatar: "🐻"}
	admin  = Issuer{UserID: "u-admin", Name: "Admin"}
	weekly = Settings{ExpiresIn: 7, MaxUses: 0, AllowGuests: true}
)

func (f *fixture) accept(t *testing.T, channelID, code string, u *identity.User) (AcceptResult, error) {
	t.Helper()
	return f.svc.Accept(context.Background(), AcceptInput{ChannelID: channelID, Code: code, User: u})
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
