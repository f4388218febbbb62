package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// SweepExpired appends one expired event for every active invite whose
// expiry has passed and that has no expired event yet. It returns the number
// of events recorded; running it again records nothing new.
func (s *Service) SweepExpired(ctx context.Context) (swept int, err error) {
	ctx, span := s.span(ctx, "SweepExpired", "")
	defer func() { endSpan(span, err) }()

	keys, err := s.store.Keys(ctx, channelKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: list channels: %v", ErrStorage, err)
	}
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		channelID, ok := channelIDFromKey(key)
		if !ok {
			continue
		}
		n, err := s.sweepChannel(ctx, channelID)
		swept += n
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", channelID, err))
		}
	}
	s.metrics.sweptExpired(swept)
	return swept, errors.Join(errs...)
}

func (s *Service) sweepChannel(ctx context.Context, channelID string) (int, error) {
	s.mu.Lock()
	st, err := s.loadChannel(ctx, channelID)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	now := s.now()
	history := NewEventLog(st.History)
	var events []Event
	for _, rec := range st.Pending {
		if rec.Status(now) != StatusExpired || history.Has(EventExpired, rec.ID) {
			continue
		}
		e, err := s.event(EventExpired, rec, now)
		if err != nil {
			s.mu.Unlock()
			return 0, err
		}
		events = append(events, e)
	}
	if len(events) > 0 {
		err = s.recordEvents(ctx, channelID, &st, events...)
	}
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events...)
	return len(events), nil
}

// Sweeper runs SweepExpired on a schedule.
type Sweeper struct {
	svc       *Service
	interval  time.Duration
	log       *slog.Logger
	scheduler *gocron.Scheduler
}

// NewSweeper builds a sweeper for svc. It does nothing until Start.
func NewSweeper(svc *Service, interval time.Duration, log *slog.Logger) (*Sweeper, error) {
	if svc == nil || interval <= 0 {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{svc: svc, interval: interval, log: log}, nil
}

// Start schedules the sweep and returns immediately. Overlapping runs are
// skipped.
func (w *Sweeper) Start(ctx context.Context) error {
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	if _, err := sched.Every(w.interval).Do(w.run, ctx); err != nil {
		return fmt.Errorf("schedule expiry sweep: %w", err)
	}
	sched.StartAsync()
	w.scheduler = sched
	w.log.Info("invite.sweeper.start", "interval", w.interval.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (w *Sweeper) Stop() {
	if w.scheduler == nil {
		return
	}
	w.scheduler.Stop()
	w.log.Info("invite.sweeper.stop")
}

func (w *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := w.svc.SweepExpired(ctx)
	if err != nil {
		w.log.Error("invite.sweeper.fail", "err", err, "swept", n)
		return
	}
	if n > 0 {
		w.log.Info("invite.sweeper.run", "swept", n)
	}
}
