package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking-core/internal/clock"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/metrics"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const (
	DefaultHoldTTL    = 10 * time.Minute
	DefaultMaxHoldTTL = 30 * time.Minute
	defaultSweepBatch = 500
)

// LockManager grants, renews, releases and promotes seat holds on top of
// a Store.  It owns the TTL policy and hold identity; the Store owns
// atomicity.
type LockManager struct {
	store      Store
	clock      clock.Clock
	defaultTTL time.Duration
	maxTTL     time.Duration
	sweepBatch int
	newID      func() string
}

type Option func(*LockManager)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(m *LockManager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithHoldTTL overrides the TTL used when callers pass ttl <= 0.
func WithHoldTTL(d time.Duration) Option {
	return func(m *LockManager) {
		if d > 0 {
			m.defaultTTL = d
		}
	}
}

// WithMaxHoldTTL caps every granted or renewed TTL.
func WithMaxHoldTTL(d time.Duration) Option {
	return func(m *LockManager) {
		if d > 0 {
			m.maxTTL = d
		}
	}
}

// WithSweepBatch bounds how many holds one Sweep expires.
func WithSweepBatch(n int) Option {
	return func(m *LockManager) {
		if n > 0 {
			m.sweepBatch = n
		}
	}
}

// WithIDGenerator replaces the hold id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *LockManager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

func NewLockManager(store Store, opts ...Option) *LockManager {
	m := &LockManager{
		store:      store,
		clock:      clock.Real{},
		defaultTTL: DefaultHoldTTL,
		maxTTL:     DefaultMaxHoldTTL,
		sweepBatch: defaultSweepBatch,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.defaultTTL > m.maxTTL {
		m.defaultTTL = m.maxTTL
	}
	return m
}

// DefaultTTL is the TTL applied when callers do not ask for one.
func (m *LockManager) DefaultTTL() time.Duration { return m.defaultTTL }

// Now is the manager's notion of the current time.
func (m *LockManager) Now() time.Time { return m.clock.Now() }

func (m *LockManager) ttl(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = m.defaultTTL
	}
	return min(requested, m.maxTTL)
}

// TryHold atomically holds every seat in seatIDs for holderToken or
// holds nothing.  Duplicate ids are collapsed.
func (m *LockManager) TryHold(ctx context.Context, showID string, seatIDs []string, holderToken string, ttl time.Duration) (model.HoldHandle, error) {
	seatIDs = lo.Uniq(lo.Without(seatIDs, ""))
	if len(seatIDs) == 0 {
		return model.HoldHandle{}, model.ErrNoSeats
	}
	now := m.clock.Now()
	hold, err := m.store.TryHold(ctx, HoldRequest{
		HoldID:      m.newID(),
		ShowID:      showID,
		SeatIDs:     seatIDs,
		HolderToken: holderToken,
		ExpiresAt:   now.Add(m.ttl(ttl)),
		Now:         now,
	})
	if err != nil {
		if errors.Is(err, model.ErrSeatUnavailable) {
			metrics.HoldsRejected.Inc()
			logging.FromContext(ctx).WithFields(logrus.Fields{
				"show_id": showID,
				"seats":   seatIDs,
			}).Debug("hold rejected")
			return model.HoldHandle{}, err
		}
		return model.HoldHandle{}, fmt.Errorf("try hold: %w", err)
	}
	metrics.HoldsGranted.Inc()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"show_id":    showID,
		"hold_id":    hold.ID,
		"seats":      hold.SeatIDs,
		"expires_at": hold.ExpiresAt,
	}).Debug("hold granted")
	return hold.Handle(), nil
}

// Renew extends the hold behind h by ttl from now.
func (m *LockManager) Renew(ctx context.Context, h model.HoldHandle, ttl time.Duration) (model.HoldHandle, error) {
	now := m.clock.Now()
	hold, err := m.store.Renew(ctx, h, now.Add(m.ttl(ttl)), now)
	if err != nil {
		if errors.Is(err, model.ErrHoldNotFound) {
			return model.HoldHandle{}, err
		}
		return model.HoldHandle{}, fmt.Errorf("renew hold %s: %w", h.HoldID, err)
	}
	return hold.Handle(), nil
}

// Release gives the seats of an active hold back.  It is a no-op for
// holds that are unknown, released or expired.  A promoted hold keeps its
// seats and model.ErrHoldPromoted is returned, so callers can tell that a
// payment already won the race.
func (m *LockManager) Release(ctx context.Context, h model.HoldHandle) error {
	err := m.store.Release(ctx, h, m.clock.Now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrHoldPromoted):
		return err
	default:
		return fmt.Errorf("release hold %s: %w", h.HoldID, err)
	}
}

// Promote converts the hold into sold seats.
func (m *LockManager) Promote(ctx context.Context, h model.HoldHandle) error {
	err := m.store.Promote(ctx, h, m.clock.Now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrHoldExpired), errors.Is(err, model.ErrHoldNotFound):
		return err
	default:
		return fmt.Errorf("promote hold %s: %w", h.HoldID, err)
	}
}

// Snapshot returns the non-free seats of a show.
func (m *LockManager) Snapshot(ctx context.Context, showID string) (model.Snapshot, error) {
	snap, err := m.store.Snapshot(ctx, showID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot %s: %w", showID, err)
	}
	return snap, nil
}

// Sweep expires every active hold whose ExpiresAt has passed.
func (m *LockManager) Sweep(ctx context.Context) ([]model.Hold, error) {
	started := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(started).Seconds()) }()

	now := m.clock.Now()
	var expired []model.Hold
	for {
		batch, err := m.store.ExpireDue(ctx, now, m.sweepBatch)
		if err != nil {
			return expired, fmt.Errorf("sweep: %w", err)
		}
		expired = append(expired, batch...)
		if len(batch) < m.sweepBatch {
			break
		}
	}
	if len(expired) > 0 {
		metrics.HoldsExpired.Add(float64(len(expired)))
		logging.FromContext(ctx).WithField("count", len(expired)).Info("expired holds released")
	}
	return expired, nil
}
