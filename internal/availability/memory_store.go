package availability

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// defaultTombstoneTTL is how long finished holds are remembered so that
// duplicate promote and release calls stay idempotent.
const defaultTombstoneTTL = 24 * time.Hour

// MemoryStore keeps seat state in process.  Each show has its own shard
// guarded by a mutex; readers load an immutable snapshot published via an
// atomic pointer and never take the lock.  It serves tests and
// single-instance deployments.
type MemoryStore struct {
	shows        sync.Map // showID -> *showShard
	tombstoneTTL time.Duration
}

type showShard struct {
	showID string
	mu     sync.Mutex
	seats  map[string]model.AvailabilityRecord
	holds  map[string]*holdEntry
	snap   atomic.Pointer[model.Snapshot]
}

type holdEntry struct {
	hold       model.Hold
	finishedAt time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tombstoneTTL: defaultTombstoneTTL}
}

func (s *MemoryStore) shard(showID string) *showShard {
	if sh, ok := s.shows.Load(showID); ok {
		return sh.(*showShard)
	}
	sh, _ := s.shows.LoadOrStore(showID, &showShard{
		showID: showID,
		seats:  make(map[string]model.AvailabilityRecord),
		holds:  make(map[string]*holdEntry),
	})
	return sh.(*showShard)
}

func (s *MemoryStore) TryHold(_ context.Context, req HoldRequest) (model.Hold, error) {
	sh := s.shard(req.ShowID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var busy, stale []string
	for _, id := range req.SeatIDs {
		rec, ok := sh.seats[id]
		switch {
		case !ok:
		case rec.Expired(req.Now):
			stale = append(stale, rec.HoldID)
		default:
			busy = append(busy, id)
		}
	}
	if len(busy) > 0 {
		return model.Hold{}, &model.SeatUnavailableError{ShowID: req.ShowID, SeatIDs: busy}
	}

	for _, holdID := range stale {
		sh.finishLocked(holdID, model.HoldExpired, req.Now)
	}

	hold := model.Hold{
		ID:          req.HoldID,
		ShowID:      req.ShowID,
		SeatIDs:     slices.Clone(req.SeatIDs),
		HolderToken: req.HolderToken,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   req.Now,
		Status:      model.HoldActive,
	}
	for _, id := range hold.SeatIDs {
		sh.seats[id] = model.AvailabilityRecord{
			SeatID:      id,
			State:       model.SeatHeld,
			HoldID:      hold.ID,
			HolderToken: hold.HolderToken,
			ExpiresAt:   hold.ExpiresAt,
		}
	}
	sh.holds[hold.ID] = &holdEntry{hold: hold}
	sh.publishLocked(req.Now)
	return cloneHold(hold), nil
}

func (s *MemoryStore) Renew(_ context.Context, h model.HoldHandle, expiresAt, now time.Time) (model.Hold, error) {
	sh := s.shard(h.ShowID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.ownedLocked(h)
	if !ok || e.hold.Status != model.HoldActive {
		return model.Hold{}, model.ErrHoldNotFound
	}
	if e.hold.ExpiredAt(now) {
		sh.finishLocked(e.hold.ID, model.HoldExpired, now)
		sh.publishLocked(now)
		return model.Hold{}, model.ErrHoldNotFound
	}
	e.hold.ExpiresAt = expiresAt
	for _, id := range e.hold.SeatIDs {
		rec := sh.seats[id]
		rec.ExpiresAt = expiresAt
		sh.seats[id] = rec
	}
	sh.publishLocked(now)
	return cloneHold(e.hold), nil
}

func (s *MemoryStore) Release(_ context.Context, h model.HoldHandle, now time.Time) error {
	sh := s.shard(h.ShowID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.ownedLocked(h)
	switch {
	case !ok:
		return nil
	case e.hold.Status == model.HoldPromoted:
		return model.ErrHoldPromoted
	case e.hold.Status != model.HoldActive:
		return nil
	}
	sh.finishLocked(e.hold.ID, model.HoldReleased, now)
	sh.publishLocked(now)
	return nil
}

func (s *MemoryStore) Promote(_ context.Context, h model.HoldHandle, now time.Time) error {
	sh := s.shard(h.ShowID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.ownedLocked(h)
	if !ok {
		return model.ErrHoldNotFound
	}
	switch e.hold.Status {
	case model.HoldPromoted:
		return nil
	case model.HoldExpired:
		return model.ErrHoldExpired
	case model.HoldReleased:
		return model.ErrHoldNotFound
	}
	if e.hold.ExpiredAt(now) {
		sh.finishLocked(e.hold.ID, model.HoldExpired, now)
		sh.publishLocked(now)
		return model.ErrHoldExpired
	}
	for _, id := range e.hold.SeatIDs {
		sh.seats[id] = model.AvailabilityRecord{SeatID: id, State: model.SeatSold, HoldID: e.hold.ID, HolderToken: e.hold.HolderToken}
	}
	e.hold.Status = model.HoldPromoted
	e.finishedAt = now
	sh.publishLocked(now)
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context, showID string) (model.Snapshot, error) {
	v, ok := s.shows.Load(showID)
	if !ok {
		return model.Snapshot{ShowID: showID, Records: map[string]model.AvailabilityRecord{}}, nil
	}
	if snap := v.(*showShard).snap.Load(); snap != nil {
		return *snap, nil
	}
	return model.Snapshot{ShowID: showID, Records: map[string]model.AvailabilityRecord{}}, nil
}

func (s *MemoryStore) ExpireDue(_ context.Context, now time.Time, limit int) ([]model.Hold, error) {
	var expired []model.Hold
	s.shows.Range(func(key, value any) bool {
		sh := value.(*showShard)
		sh.mu.Lock()
		changed := false
		for id, e := range sh.holds {
			if e.hold.Status != model.HoldActive {
				if now.Sub(e.finishedAt) > s.tombstoneTTL {
					delete(sh.holds, id)
				}
				continue
			}
			if limit > 0 && len(expired) >= limit {
				continue
			}
			if e.hold.ExpiredAt(now) {
				sh.finishLocked(id, model.HoldExpired, now)
				expired = append(expired, cloneHold(e.hold))
				changed = true
			}
		}
		if changed {
			sh.publishLocked(now)
		}
		sh.mu.Unlock()
		return limit <= 0 || len(expired) < limit
	})
	return expired, nil
}

// ownedLocked finds the hold behind h, checking the holder token.
func (sh *showShard) ownedLocked(h model.HoldHandle) (*holdEntry, bool) {
	e, ok := sh.holds[h.HoldID]
	if !ok || e.hold.HolderToken != h.HolderToken {
		return nil, false
	}
	return e, true
}

// finishLocked moves an active hold to a terminal status and frees the
// seats it still holds.
func (sh *showShard) finishLocked(holdID string, status model.HoldStatus, now time.Time) {
	e, ok := sh.holds[holdID]
	if !ok || e.hold.Status != model.HoldActive {
		return
	}
	for _, id := range e.hold.SeatIDs {
		if rec, ok := sh.seats[id]; ok && rec.State == model.SeatHeld && rec.HoldID == holdID {
			delete(sh.seats, id)
		}
	}
	e.hold.Status = status
	e.finishedAt = now
}

func (sh *showShard) publishLocked(now time.Time) {
	records := make(map[string]model.AvailabilityRecord, len(sh.seats))
	for id, rec := range sh.seats {
		records[id] = rec
	}
	sh.snap.Store(&model.Snapshot{ShowID: sh.showID, Records: records, TakenAt: now})
}

func cloneHold(h model.Hold) model.Hold {
	h.SeatIDs = slices.Clone(h.SeatIDs)
	return h
}
