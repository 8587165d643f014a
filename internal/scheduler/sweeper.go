// Package scheduler runs the periodic expiration sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/staybook/hotel-reservations/internal/model"
)

type reservationExpirer interface {
	ExpireEnded(ctx context.Context, now time.Time) ([]model.Reservation, error)
}

// Sweeper closes out reservations whose stay has ended.  It runs once on
// start and then on every tick until the context is cancelled.
type Sweeper struct {
	lifecycle reservationExpirer
	interval  time.Duration
	log       *logrus.Logger
	now       func() time.Time
}

func NewSweeper(lifecycle reservationExpirer, interval time.Duration, log *logrus.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{lifecycle: lifecycle, interval: interval, log: log, now: time.Now}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("sweeper started")
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	expired, err := s.lifecycle.ExpireEnded(ctx, s.now().UTC())
	if err != nil {
		s.log.WithError(err).Error("sweeper: failed to expire ended reservations")
		return
	}
	if len(expired) > 0 {
		s.log.WithField("count", len(expired)).Info("sweeper: reservations expired")
	}
}
