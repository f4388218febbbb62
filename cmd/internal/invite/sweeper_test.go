package invite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweepExpired_RecordsOncePerInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 1}, admin)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "c1", Settings{ExpiresIn: 30}, admin)
	require.NoError(t, err)
	gone, err := f.svc.Create(ctx, "c2", Settings{ExpiresIn: 1}, admin)
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, "c2", gone.ID)
	require.NoError(t, err)

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.clock.Advance(2 * 24 * time.Hour)
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	history, err := f.svc.History(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, EventExpired, history[0].Type)
	require.Equal(t, short.ID, history[0].InviteID)
	require.Equal(t, 1, countEvents(history, EventExpired))

	c2, err := f.svc.History(ctx, "c2")
	require.NoError(t, err)
	require.Zero(t, countEvents(c2, EventExpired))
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.svc.Create(ctx, "c1", Settings{ExpiresIn: 1}, admin)
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)

	_, err = NewSweeper(f.svc, 0, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	w, err := NewSweeper(f.svc, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		history, err := f.svc.History(ctx, "c1")
		return err == nil && countEvents(history, EventExpired) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
