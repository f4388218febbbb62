package invite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRecord(s Settings) Record {
	return NewRecord(NewRecordInput{
		ID:        "r1",
		ChannelID: "c1",
		Code:      "ABCD1234",
		Link:      BuildLink("c1", "ABCD1234"),
		Settings:  s,
		CreatedAt: t0,
	})
}

func TestRecord_UnlimitedNeverExhausted(t *testing.T) {
	rec := newTestRecord(Settings{ExpiresIn: 7})
	now := t0.Add(time.Hour)
	for i := range 500 {
		_, err := rec.Redeem(now)
		require.NoError(t, err, "use %d", i+1)
	}
	require.Equal(t, 500, rec.CurrentUses)
	require.Equal(t, -1, rec.RemainingUses())
}

func TestRecord_RequireApprovalAlwaysPending(t *testing.T) {
	rec := newTestRecord(Settings{ExpiresIn: 7, MaxUses: 3, RequireApproval: true})
	for range 3 {
		out, err := rec.Redeem(t0)
		require.NoError(t, err)
		require.Equal(t, PendingApproval, out)
	}
	_, err := rec.Redeem(t0)
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 3, rec.CurrentUses)
	require.Equal(t, 0, rec.RemainingUses())
}

func TestRecord_StatusPrecedence(t *testing.T) {
	expiredAndFull := newTestRecord(Settings{ExpiresIn: 1, MaxUses: 1})
	expiredAndFull.CurrentUses = 1
	late := t0.Add(48 * time.Hour)

	tests := []struct {
		name    string
		rec     Record
		revoke  bool
		want    Status
		wantErr error
	}{
		{name: "active", rec: newTestRecord(Settings{ExpiresIn: 7}), want: StatusActive},
		{name: "exhausted", rec: func() Record { r := newTestRecord(Settings{ExpiresIn: 7, MaxUses: 1}); r.CurrentUses = 1; return r }(), want: StatusExhausted, wantErr: ErrExhausted},
		{name: "expired beats exhausted", rec: expiredAndFull, want: StatusExpired, wantErr: ErrExpired},
		{name: "revoked beats expired", rec: expiredAndFull, revoke: true, want: StatusRevoked, wantErr: ErrRevoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			if tt.revoke {
				require.True(t, rec.Revoke())
			}
			now := t0
			if tt.want != StatusActive && tt.want != StatusExhausted {
				now = late
			}
			require.Equal(t, tt.want, rec.Status(now))

			before := rec
			_, err := rec.Redeem(now)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrNoLongerValid)
			require.Equal(t, before, rec)
		})
	}
}

func TestRecord_ExpiresExactlyAtDeadline(t *testing.T) {
	rec := newTestRecord(Settings{ExpiresIn: 7})
	require.True(t, rec.Usable(rec.ExpiresAt.Add(-time.Nanosecond)))
	require.False(t, rec.Usable(rec.ExpiresAt))
}

func TestRecord_RevokeOnce(t *testing.T) {
	rec := newTestRecord(Settings{ExpiresIn: 7})
	require.True(t, rec.Revoke())
	require.False(t, rec.Revoke())
	require.False(t, rec.IsActive)
}

func TestSettings_Validate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
	require.NoError(t, Settings{ExpiresIn: 30}.Validate())
	require.True(t, IsValidation(Settings{ExpiresIn: 0}.Validate()))
	require.True(t, IsValidation(Settings{ExpiresIn: 7, MaxUses: -2}.Validate()))
}

func TestFormatExpiry(t *testing.T) {
	tests := []struct {
		left time.Duration
		want string
	}{
		{0, "Expired"},
		{-time.Hour, "Expired"},
		{3*24*time.Hour + 4*time.Hour + 10*time.Minute, "3d 4h"},
		{5*time.Hour + 12*time.Minute, "5h 12m"},
		{42*time.Minute + 30*time.Second, "42m"},
		{30 * time.Second, "0m"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatExpiry(t0.Add(tt.left), t0), "left=%s", tt.left)
	}
}
