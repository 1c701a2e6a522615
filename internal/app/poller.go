package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/grid"
)

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = 30 * time.Second
)

// refresher is the part of *grid.Grid the poller drives.
type refresher interface {
	Refresh(ctx context.Context) error
}

// Poller refreshes a grid on a fixed cadence and on demand. Consecutive
// failures stretch the cadence exponentially up to maxBackoff.
type Poller struct {
	target   refresher
	interval time.Duration
	logger   *zap.Logger
	kick     chan struct{}
	done     chan struct{}
}

// StartPoller launches the refresh loop and returns immediately. A zero
// interval disables the cadence; the loop then only reacts to Kick.
func StartPoller(ctx context.Context, target refresher, interval time.Duration, logger *zap.Logger) *Poller {
	if interval < 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		target:   target,
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go p.loop(ctx)
	return p
}

// Kick requests a refresh as soon as possible. Kicks that arrive while one is
// pending coalesce.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Done is closed when the loop has exited.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	failures := 0
	for {
		var tick <-chan time.Time
		var timer *time.Timer
		if p.interval > 0 {
			timer = time.NewTimer(calculateBackoff(failures, p.interval))
			tick = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-p.kick:
			if timer != nil {
				timer.Stop()
			}
		case <-tick:
		}

		err := p.target.Refresh(ctx)
		switch {
		case err == nil:
			if failures > 0 {
				p.logger.Info("refresh recovered", zap.Int("failures", failures))
			}
			failures = 0
		case errors.Is(err, grid.ErrDestroyed):
			return
		case errors.Is(err, grid.ErrSuperseded), errors.Is(err, context.Canceled):
		default:
			failures++
			p.logger.Debug("poll refresh failed",
				zap.Int("failures", failures),
				zap.Duration("next", calculateBackoff(failures, p.interval)),
				zap.Error(err),
			)
		}
	}
}

// calculateBackoff returns base doubled per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
