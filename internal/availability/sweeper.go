package availability

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const DefaultSweepInterval = 30 * time.Second

// SweepHook runs after every sweep with the holds that were expired.  It
// is how stale bookings get expired without this package knowing about
// bookings.
type SweepHook func(ctx context.Context, expired []model.Hold) error

// Sweeper periodically expires holds so that abandoned checkouts give
// their seats back without client cooperation.
type Sweeper struct {
	manager  *LockManager
	interval time.Duration
	hooks    []SweepHook
	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper returns a sweeper ticking every interval.  Non-positive
// intervals fall back to DefaultSweepInterval.
func NewSweeper(manager *LockManager, interval time.Duration, hooks ...SweepHook) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		manager:  manager,
		interval: interval,
		hooks:    hooks,
		done:     make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or Stop is called.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log := logging.FromContext(ctx).WithField("component", "sweeper")
	log.WithField("interval", s.interval).Info("hold sweeper started")
	ctx = logging.WithContext(ctx, log)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.done:
			log.Info("hold sweeper stopped")
			return nil
		case <-ctx.Done():
			log.Info("hold sweeper stopped")
			return nil
		}
	}
}

// RunOnce performs a single sweep followed by the hooks.  Failures are
// logged; the next tick retries.
func (s *Sweeper) RunOnce(ctx context.Context) []model.Hold {
	log := logging.FromContext(ctx)
	expired, err := s.manager.Sweep(ctx)
	if err != nil {
		log.WithError(err).Error("hold sweep failed")
	}
	for _, hook := range s.hooks {
		if err := hook(ctx, expired); err != nil {
			log.WithError(err).WithFields(logrus.Fields{"expired": len(expired)}).Error("sweep hook failed")
		}
	}
	return expired
}

// Stop ends Run.  It is safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
