package invite

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"securechat/cmd/internal/kv"
)

const (
	channelKeyPrefix = "channel-invites-"
	pendingKeyPrefix = "channel-pending-members-"

	// AnalyticsKey holds the global, cross-channel event log.
	AnalyticsKey = "securechat-invite-analytics"
)

// ChannelKey is the store key of a channel's invite state.
func ChannelKey(channelID string) string { return channelKeyPrefix + channelID }

// PendingKey is the store key of a channel's pending members.
func PendingKey(channelID string) string { return pendingKeyPrefix + channelID }

func channelIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, channelKeyPrefix)
	return id, ok && id != ""
}

// channelState is the persisted value under ChannelKey. Settings is a pointer
// so that state written before any settings change decodes to the defaults.
type channelState struct {
	Pending  []Record  `json:"pending"`
	History  []Event   `json:"history"`
	Settings *Settings `json:"settings,omitempty"`
	Primary  string    `json:"primary,omitempty"`
}

func (st *channelState) settings() Settings {
	if st.Settings == nil {
		return DefaultSettings()
	}
	return *st.Settings
}

func (st *channelState) find(inviteID string) int {
	return slices.IndexFunc(st.Pending, func(r Record) bool { return r.ID == inviteID })
}

func (st *channelState) findCode(code string) int {
	// Newest wins if a code was ever reused.
	for i := len(st.Pending) - 1; i >= 0; i-- {
		if st.Pending[i].Code == code {
			return i
		}
	}
	return -1
}

func (st *channelState) hasCode(code string) bool { return st.findCode(code) >= 0 }

func (st *channelState) primary() (Record, bool) {
	if st.Primary == "" {
		return Record{}, false
	}
	i := st.find(st.Primary)
	if i < 0 {
		return Record{}, false
	}
	return st.Pending[i], true
}

// readJSON decodes key into v. A missing key leaves v untouched. Backend
// errors are returned wrapped in ErrStorage; undecodable values are logged and
// treated as missing.
func (s *Service) readJSON(ctx context.Context, key string, v any) error {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if kv.IsNotFound(err) {
			return nil
		}
		s.log.Error("invite.state.load.fail", "err", err, "key", key)
		return fmt.Errorf("%w: load %s: %v", ErrStorage, key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.log.Warn("invite.state.corrupt", "err", err, "key", key)
	}
	return nil
}

// writeJSON stores v under key. Failures are logged and counted; only strict
// persistence turns them into errors.
func (s *Service) writeJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err == nil {
		err = s.store.Set(ctx, key, raw)
	}
	if err == nil {
		return nil
	}
	s.log.Error("invite.persist.fail", "err", err, "key", key, "strict", s.strict)
	s.metrics.persistFailure()
	if s.strict {
		return fmt.Errorf("%w: save %s: %v", ErrStorage, key, err)
	}
	return nil
}

func (s *Service) loadChannel(ctx context.Context, channelID string) (channelState, error) {
	var st channelState
	if err := s.readJSON(ctx, ChannelKey(channelID), &st); err != nil {
		return channelState{}, err
	}
	return st, nil
}

func (s *Service) saveChannel(ctx context.Context, channelID string, st channelState) error {
	if st.Pending == nil {
		st.Pending = []Record{}
	}
	if st.History == nil {
		st.History = []Event{}
	}
	settings := st.settings()
	st.Settings = &settings
	return s.writeJSON(ctx, ChannelKey(channelID), st)
}

func (s *Service) loadPending(ctx context.Context, channelID string) ([]PendingMember, error) {
	var members []PendingMember
	if err := s.readJSON(ctx, PendingKey(channelID), &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Service) savePending(ctx context.Context, channelID string, members []PendingMember) error {
	if members == nil {
		members = []PendingMember{}
	}
	return s.writeJSON(ctx, PendingKey(channelID), members)
}

func (s *Service) loadAnalytics(ctx context.Context) ([]Event, error) {
	var events []Event
	if err := s.readJSON(ctx, AnalyticsKey, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// recordEvents appends events to the channel history held in st and to the
// global analytics log, then writes both back.
func (s *Service) recordEvents(ctx context.Context, channelID string, st *channelState, events ...Event) error {
	if err := s.commitChannel(ctx, channelID, st, events...); err != nil {
		return err
	}
	return s.recordAnalytics(ctx, events...)
}

// commitChannel appends events to the channel history and writes the channel
// document. Writes to other keys that depend on it go after this succeeds.
func (s *Service) commitChannel(ctx context.Context, channelID string, st *channelState, events ...Event) error {
	log := NewEventLog(st.History)
	for _, e := range events {
		if err := log.Append(e); err != nil {
			return err
		}
	}
	st.History = log.Events()
	return s.saveChannel(ctx, channelID, *st)
}

func (s *Service) recordAnalytics(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		s.metrics.event(e)
	}

	analytics, err := s.loadAnalytics(ctx)
	if err != nil {
		// Writing only the new events would overwrite the unread log.
		s.metrics.persistFailure()
		if s.strict {
			return err
		}
		return nil
	}
	return s.writeJSON(ctx, AnalyticsKey, append(analytics, events...))
}
