package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"securechat/cmd/identity"
	"securechat/cmd/internal/kv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxEmailBatch = 50
	defaultMaxMessageLen = 512

	codeAttempts = 5
)

var errCodeCollision = errors.New("could not generate a unique invite code")

// Service runs the invite lifecycle of every channel on top of a key-value
// store. All mutations are serialized; collaborators are called after the
// state has been written.
type Service struct {
	store    kv.Store
	codes    CodeGenerator
	linker   Linker
	now      func() time.Time
	newID    func(time.Time) (string, error)
	roster   Roster
	notifier Notifier
	mailer   Mailer
	channels ChannelLookup
	resolver Resolver
	log      *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer

	strict        bool
	maxEmailBatch int
	maxMessageLen int

	mu sync.Mutex
}

// Option configures the Service.
type Option func(*Service) error

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *Service) error {
		if g == nil {
			return ErrInvalidInput
		}
		s.codes = g
		return nil
	}
}

// WithLinker sets the base used for shareable links.
func WithLinker(l Linker) Option {
	return func(s *Service) error {
		s.linker = l
		return nil
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return ErrInvalidInput
		}
		s.now = now
		return nil
	}
}

// WithIDs sets the record/event id source.
func WithIDs(newID func(time.Time) (string, error)) Option {
	return func(s *Service) error {
		if newID == nil {
			return ErrInvalidInput
		}
		s.newID = newID
		return nil
	}
}

func WithRoster(r Roster) Option {
	return func(s *Service) error {
		if r == nil {
			return ErrInvalidInput
		}
		s.roster = r
		return nil
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) error {
		if n == nil {
			return ErrInvalidInput
		}
		s.notifier = n
		return nil
	}
}

func WithMailer(m Mailer) Option {
	return func(s *Service) error {
		if m == nil {
			return ErrInvalidInput
		}
		s.mailer = m
		return nil
	}
}

func WithChannels(c ChannelLookup) Option {
	return func(s *Service) error {
		if c == nil {
			return ErrInvalidInput
		}
		s.channels = c
		return nil
	}
}

// WithResolver replaces the store-backed code lookup.
func WithResolver(r Resolver) Option {
	return func(s *Service) error {
		if r == nil {
			return ErrInvalidInput
		}
		s.resolver = r
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) error {
		if t != nil {
			s.tracer = t
		}
		return nil
	}
}

// WithStrictPersistence makes failed writes return an error wrapping
// ErrStorage instead of only being logged.
func WithStrictPersistence(strict bool) Option {
	return func(s *Service) error {
		s.strict = strict
		return nil
	}
}

// WithLimits bounds email batches and custom message length (in runes).
func WithLimits(maxEmailBatch, maxMessageLen int) Option {
	return func(s *Service) error {
		if maxEmailBatch <= 0 || maxMessageLen <= 0 {
			return ErrInvalidInput
		}
		s.maxEmailBatch = maxEmailBatch
		s.maxMessageLen = maxMessageLen
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store kv.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:         store,
		codes:         RandomCodes{},
		now:           func() time.Time { return time.Now().UTC() },
		newID:         identity.NewULID,
		roster:        NopRoster{},
		notifier:      NopNotifier{},
		mailer:        NopMailer{},
		channels:      fallbackChannels{},
		log:           slog.Default(),
		tracer:        otel.Tracer("securechat/invite"),
		maxEmailBatch: defaultMaxEmailBatch,
		maxMessageLen: defaultMaxMessageLen,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.resolver == nil {
		s.resolver = StoreResolver{Store: store}
	}
	return s, nil
}

func (s *Service) span(ctx context.Context, op, channelID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "invite."+op, trace.WithAttributes(attribute.String("channel.id", channelID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	span.End()
}

func checkChannel(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(channelID) == "" {
		return ValidationError{Field: "channelId", Reason: "required"}
	}
	return nil
}

func (s *Service) channel(ctx context.Context, channelID string) Channel {
	ch, err := s.channels.Channel(ctx, channelID)
	if err != nil || ch.ID == "" {
		return Channel{ID: channelID, Name: channelID}
	}
	return ch
}

func (s *Service) notify(ctx context.Context, channelID string, tone Tone, title, desc string) {
	s.notifier.Notify(ctx, Notification{
		ChannelID:   channelID,
		Title:       title,
		Description: desc,
		Tone:        tone,
		At:          s.now(),
	})
}

func (s *Service) publish(ctx context.Context, events ...Event) {
	for _, e := range events {
		s.notifier.Publish(ctx, e)
	}
}

func (s *Service) event(t EventType, rec Record, now time.Time) (Event, error) {
	id, err := s.newID(now)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         id,
		Type:       t,
		InviteID:   rec.ID,
		InviteCode: rec.Code,
		ChannelID:  rec.ChannelID,
		Timestamp:  now,
	}, nil
}

func (s *Service) sentEvent(sub Subtype, rec Record, recipient, method string, now time.Time) (Event, error) {
	e, err := s.event(EventSent, rec, now)
	if err != nil {
		return Event{}, err
	}
	e.Subtype = sub
	e.Recipient = recipient
	e.Method = method
	return e, nil
}

// mint creates a record with a code that is unique within the channel. The
// record is added to st; nothing is persisted.
func (s *Service) mint(st *channelState, channelID string, kind Kind, settings Settings, issuer Issuer, now time.Time) (Record, error) {
	var code string
	for range codeAttempts {
		c, err := s.codes.NewCode()
		if err != nil {
			return Record{}, err
		}
		if !ValidCode(c) {
			return Record{}, fmt.Errorf("code generator returned %q: %w", c, ErrInvalidInput)
		}
		if !st.hasCode(c) {
			code = c
			break
		}
	}
	if code == "" {
		return Record{}, errCodeCollision
	}
	id, err := s.newID(now)
	if err != nil {
		return Record{}, err
	}
	rec := NewRecord(NewRecordInput{
		ID:        id,
		ChannelID: channelID,
		Code:      code,
		Link:      s.linker.Build(channelID, code),
		Kind:      kind,
		Settings:  settings,
		Issuer:    issuer,
		CreatedAt: now,
	})
	st.Pending = append(st.Pending, rec)
	return rec, nil
}

// Create issues a link invite under settings. Settings are not range checked
// here; UpdateSettings is where admin input is validated.
func (s *Service) Create(ctx context.Context, channelID string, settings Settings, issuer Issuer) (rec Record, err error) {
	ctx, span := s.span(ctx, "Create", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		return Record{}, err
	}
	now := s.now()
	rec, err = s.mint(&st, channelID, KindLink, settings, issuer, now)
	if err != nil {
		return Record{}, err
	}
	created, err := s.event(EventCreated, rec, now)
	if err != nil {
		return Record{}, err
	}
	if err := s.recordEvents(ctx, channelID, &st, created); err != nil {
		return Record{}, err
	}
	s.log.Info("invite.create", "channel_id", channelID, "invite_id", rec.ID, "kind", rec.Kind)
	s.publish(ctx, created)
	return rec, nil
}

// ensurePrimary returns the usable primary link record of st, minting one
// when there is none. The returned events must be recorded by the caller.
func (s *Service) ensurePrimary(st *channelState, channelID string, issuer Issuer, now time.Time) (Record, []Event, error) {
	if rec, ok := st.primary(); ok && rec.Usable(now) {
		return rec, nil, nil
	}
	rec, err := s.mint(st, channelID, KindLink, st.settings(), issuer, now)
	if err != nil {
		return Record{}, nil, err
	}
	st.Primary = rec.ID
	created, err := s.event(EventCreated, rec, now)
	if err != nil {
		return Record{}, nil, err
	}
	return rec, []Event{created}, nil
}

// CurrentLink returns the channel's primary shareable invite, creating one
// when none is usable.
func (s *Service) CurrentLink(ctx context.Context, channelID string, issuer Issuer) (rec Record, err error) {
	ctx, span := s.span(ctx, "CurrentLink", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		s.mu.Unlock()
		return Record{}, err
	}
	rec, events, err := s.ensurePrimary(&st, channelID, issuer, s.now())
	if err == nil && len(events) > 0 {
		err = s.recordEvents(ctx, channelID, &st, events...)
	}
	s.mu.Unlock()
	if err != nil {
		return Record{}, err
	}
	s.publish(ctx, events...)
	return rec, nil
}

// Regenerate revokes the current primary link and issues a new one from the
// channel settings. Codes handed out earlier by email, direct invite or older
// links stay redeemable.
func (s *Service) Regenerate(ctx context.Context, channelID string, issuer Issuer) (rec Record, err error) {
	ctx, span := s.span(ctx, "Regenerate", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		s.mu.Unlock()
		return Record{}, err
	}
	now := s.now()
	var events []Event
	if i := st.find(st.Primary); i >= 0 && st.Pending[i].Revoke() {
		revoked, err := s.event(EventRevoked, st.Pending[i], now)
		if err != nil {
			s.mu.Unlock()
			return Record{}, err
		}
		events = append(events, revoked)
	}
	rec, err = s.mint(&st, channelID, KindLink, st.settings(), issuer, now)
	if err == nil {
		st.Primary = rec.ID
		var created Event
		if created, err = s.event(EventCreated, rec, now); err == nil {
			events = append(events, created)
			err = s.recordEvents(ctx, channelID, &st, events...)
		}
	}
	s.mu.Unlock()
	if err != nil {
		return Record{}, err
	}

	s.log.Info("invite.regenerate", "channel_id", channelID, "invite_id", rec.ID)
	s.publish(ctx, events...)
	s.notify(ctx, channelID, ToneSuccess, "New Invite Link Generated", "Previous link has been deactivated")
	return rec, nil
}

// Revoke deactivates an invite. Revoking an already revoked invite changes
// nothing and records no event. Unknown ids return ErrNotFound.
func (s *Service) Revoke(ctx context.Context, channelID, inviteID string) (rec Record, err error) {
	ctx, span := s.span(ctx, "Revoke", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		s.mu.Unlock()
		return Record{}, err
	}
	i := st.find(inviteID)
	if i < 0 {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("revoke %s: %w", inviteID, ErrNotFound)
	}
	var revoked Event
	changed := st.Pending[i].Revoke()
	if changed {
		if revoked, err = s.event(EventRevoked, st.Pending[i], s.now()); err == nil {
			err = s.recordEvents(ctx, channelID, &st, revoked)
		}
	}
	rec = st.Pending[i]
	s.mu.Unlock()
	if err != nil {
		return Record{}, err
	}

	if changed {
		s.log.Info("invite.revoke", "channel_id", channelID, "invite_id", inviteID)
		s.publish(ctx, revoked)
	}
	s.notify(ctx, channelID, ToneInfo, "Invite Revoked", "The invitation has been revoked and can no longer be used")
	return rec, nil
}

// EmailResult reports an email batch: the invites issued and the addresses
// skipped as invalid.
type EmailResult struct {
	Sent    []Record          `json:"sent"`
	Skipped []ValidationError `json:"skipped,omitempty"`
}

// SendEmailInvites issues one email invite per valid address. Blank entries
// are ignored, malformed ones are skipped and reported. When no address is
// valid nothing is persisted and a ValidationError is returned.
func (s *Service) SendEmailInvites(ctx context.Context, channelID string, emails []string, message string, issuer Issuer) (res EmailResult, err error) {
	ctx, span := s.span(ctx, "SendEmailInvites", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return EmailResult{}, err
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return EmailResult{}, ValidationError{Field: "message", Reason: fmt.Sprintf("longer than %d characters", s.maxMessageLen)}
	}

	var valid []string
	for _, raw := range emails {
		addr := identity.NormalizeEmail(raw)
		if addr == "" {
			continue
		}
		if !identity.ValidEmail(addr) {
			res.Skipped = append(res.Skipped, ValidationError{Field: "email", Value: addr, Reason: "not a valid email address"})
			continue
		}
		valid = append(valid, addr)
	}
	if len(valid) == 0 {
		return res, ValidationError{Field: "emails", Reason: "no valid email addresses"}
	}
	if len(valid) > s.maxEmailBatch {
		return EmailResult{}, ValidationError{Field: "emails", Value: fmt.Sprint(len(valid)), Reason: fmt.Sprintf("at most %d addresses per batch", s.maxEmailBatch)}
	}

	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		s.mu.Unlock()
		return EmailResult{}, err
	}
	now := s.now()
	settings := st.settings()
	var events []Event
	for _, addr := range valid {
		var rec Record
		rec, err = s.mint(&st, channelID, KindEmail, settings, issuer, now)
		if err != nil {
			break
		}
		rec.Email = addr
		rec.Message = message
		st.Pending[len(st.Pending)-1] = rec

		var created, sent Event
		if created, err = s.event(EventCreated, rec, now); err != nil {
			break
		}
		if sent, err = s.sentEvent(SubtypeEmailInvite, rec, addr, "", now); err != nil {
			break
		}
		events = append(events, created, sent)
		res.Sent = append(res.Sent, rec)
	}
	if err == nil {
		err = s.recordEvents(ctx, channelID, &st, events...)
	}
	s.mu.Unlock()
	if err != nil {
		return EmailResult{}, err
	}

	s.log.Info("invite.email.send", "channel_id", channelID, "sent", len(res.Sent), "skipped", len(res.Skipped))
	s.publish(ctx, events...)

	ch := s.channel(ctx, channelID)
	for _, rec := range res.Sent {
		msg := BuildInviteMessage(ch, rec.Email, rec.Link, rec.Message)
		if err := s.mailer.SendInvite(ctx, msg); err != nil {
			s.log.Error("invite.email.deliver.fail", "err", err, "channel_id", channelID, "invite_id", rec.ID)
		}
	}
	s.notify(ctx, channelID, ToneSuccess, "Email Invites Sent", plural(len(res.Sent), "email invitation"))
	return res, nil
}

// ShareLink records that the primary link was shared through method
// (for example "native_share" or "clipboard") and returns it.
func (s *Service) ShareLink(ctx context.Context, channelID, method string, issuer Issuer) (rec Record, err error) {
	ctx, span := s.span(ctx, "ShareLink", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return Record{}, err
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = "link"
	}

	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		s.mu.Unlock()
		return Record{}, err
	}
	now := s.now()
	var events []Event
	rec, events, err = s.ensurePrimary(&st, channelID, issuer, now)
	if err == nil {
		var shared Event
		if shared, err = s.sentEvent(SubtypeLinkShare, rec, "", method, now); err == nil {
			events = append(events, shared)
			err = s.recordEvents(ctx, channelID, &st, events...)
		}
	}
	s.mu.Unlock()
	if err != nil {
		return Record{}, err
	}

	s.publish(ctx, events...)
	s.notify(ctx, channelID, ToneSuccess, "Invite Shared", "Invitation has been shared successfully")
	return rec, nil
}

// DirectInvite issues an invite addressed to an existing user and hands it to
// the roster.
func (s *Service) DirectInvite(ctx context.Context, channelID, userID string, issuer Issuer) (rec Record, err error) {
	ctx, span := s.span(ctx, "DirectInvite", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return Record{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Record{}, ValidationError{Field: "userId", Reason: "required"}
	}

	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		s.mu.Unlock()
		return Record{}, err
	}
	now := s.now()
	var events []Event
	rec, err = s.mint(&st, channelID, KindDirect, st.settings(), issuer, now)
	if err == nil {
		rec.RecipientID = userID
		st.Pending[len(st.Pending)-1] = rec
		var created, sent Event
		if created, err = s.event(EventCreated, rec, now); err == nil {
			if sent, err = s.sentEvent(SubtypeDirectInvite, rec, userID, "", now); err == nil {
				events = append(events, created, sent)
				err = s.recordEvents(ctx, channelID, &st, events...)
			}
		}
	}
	s.mu.Unlock()
	if err != nil {
		return Record{}, err
	}

	s.publish(ctx, events...)
	if err := s.roster.OnInviteMember(ctx, channelID, userID, rec); err != nil {
		s.log.Error("invite.direct.handoff.fail", "err", err, "channel_id", channelID, "user_id", userID)
	}
	return rec, nil
}

// UpdateSettings validates and stores the channel policy. Existing invites
// keep the policy they were created with.
func (s *Service) UpdateSettings(ctx context.Context, channelID string, settings Settings) (out Settings, err error) {
	ctx, span := s.span(ctx, "UpdateSettings", channelID)
	defer func() { endSpan(span, err) }()
	if err := checkChannel(ctx, channelID); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err == nil {
		st.Settings = &settings
		err = s.saveChannel(ctx, channelID, st)
	}
	s.mu.Unlock()
	if err != nil {
		return Settings{}, err
	}

	s.log.Info("invite.settings.update", "channel_id", channelID, "max_uses", settings.MaxUses, "expires_in", settings.ExpiresIn)
	if err := s.roster.OnUpdateInviteSettings(ctx, channelID, settings); err != nil {
		s.log.Error("invite.settings.handoff.fail", "err", err, "channel_id", channelID)
	}
	return settings, nil
}

// Snapshot is the invite state of one channel.
type Snapshot struct {
	ChannelID string   `json:"channelId"`
	Invites   []Record `json:"invites"`
	Settings  Settings `json:"settings"`
	Primary   string   `json:"primary,omitempty"`
}

// Invites returns the channel's issued invites and settings.
func (s *Service) Invites(ctx context.Context, channelID string) (Snapshot, error) {
	if err := checkChannel(ctx, channelID); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}
	invites := st.Pending
	if invites == nil {
		invites = []Record{}
	}
	return Snapshot{ChannelID: channelID, Invites: invites, Settings: st.settings(), Primary: st.Primary}, nil
}

// History returns the channel's events, newest first.
func (s *Service) History(ctx context.Context, channelID string) ([]Event, error) {
	if err := checkChannel(ctx, channelID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := slices.Collect(NewEventLog(st.History).Newest())
	if out == nil {
		out = []Event{}
	}
	return out, nil
}

// Analytics returns the global event log in insertion order, optionally
// restricted to one channel.
func (s *Service) Analytics(ctx context.Context, channelID string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	events, err := s.loadAnalytics(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := slices.Collect(ForChannel(NewEventLog(events).Oldest(), channelID))
	if out == nil {
		out = []Event{}
	}
	return out, nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("Sent 1 %s", noun)
	}
	return fmt.Sprintf("Sent %d %ss", n, noun)
}
