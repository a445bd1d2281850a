package availability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// Key layout (prefix defaults to "seats"):
//
//	<prefix>:show:<showID>:seats  HASH seatID -> "H|<holdID>|<expiresMs>" or "S|<holdID>"
//	<prefix>:hold:<holdID>        HASH show, holder, seats, expires_ms, created_ms, status
//	<prefix>:expiry               ZSET holdID scored by expires_ms (active holds only)
//
// Scripts touch keys of stale holds that they derive at run time, so the
// store needs a single Redis node or a deployment where all keys share a
// slot.
const luaHelpers = `
local function split(s)
  local out = {}
  if not s then return out end
  for part in string.gmatch(s, '([^,]+)') do
    table.insert(out, part)
  end
  return out
end

local function finish_hold(prefix, hold_id, status, retention_ms)
  local hold_key = prefix .. ':hold:' .. hold_id
  local f = redis.call('HMGET', hold_key, 'show', 'seats', 'status')
  if not f[1] or f[3] ~= 'ACTIVE' then
    return false
  end
  local seats_key = prefix .. ':show:' .. f[1] .. ':seats'
  local marker = 'H|' .. hold_id .. '|'
  for _, seat in ipairs(split(f[2])) do
    local v = redis.call('HGET', seats_key, seat)
    if v and string.sub(v, 1, #marker) == marker then
      redis.call('HDEL', seats_key, seat)
    end
  end
  redis.call('HSET', hold_key, 'status', status)
  redis.call('PEXPIRE', hold_key, retention_ms)
  redis.call('ZREM', prefix .. ':expiry', hold_id)
  return true
end
`

// KEYS: seats, hold, expiry
// ARGV: prefix, hold_id, holder, show_id, expires_ms, now_ms, retention_ms, seat...
var tryHoldScript = redis.NewScript(luaHelpers + `
local prefix = ARGV[1]
local hold_id = ARGV[2]
local now_ms = tonumber(ARGV[6])
local retention = tonumber(ARGV[7])
local busy = {}
local stale = {}
for i = 8, #ARGV do
  local v = redis.call('HGET', KEYS[1], ARGV[i])
  if v then
    local state, hid, exp = string.match(v, '^(%u)|([^|]+)|?(%d*)$')
    if state == 'H' and exp ~= '' and tonumber(exp) <= now_ms then
      stale[hid] = true
    else
      table.insert(busy, ARGV[i])
    end
  end
end
if #busy > 0 then
  return {0, busy}
end
for hid, _ in pairs(stale) do
  finish_hold(prefix, hid, 'EXPIRED', retention)
end
local seats = {}
for i = 8, #ARGV do
  redis.call('HSET', KEYS[1], ARGV[i], 'H|' .. hold_id .. '|' .. ARGV[5])
  table.insert(seats, ARGV[i])
end
redis.call('HSET', KEYS[2], 'show', ARGV[4], 'holder', ARGV[3], 'seats', table.concat(seats, ','),
  'expires_ms', ARGV[5], 'created_ms', ARGV[6], 'status', 'ACTIVE')
redis.call('ZADD', KEYS[3], ARGV[5], hold_id)
return {1}
`)

// KEYS: hold, expiry
// ARGV: prefix, hold_id, holder, expires_ms, now_ms, retention_ms
var renewScript = redis.NewScript(luaHelpers + `
local f = redis.call('HMGET', KEYS[1], 'show', 'seats', 'status', 'holder', 'expires_ms', 'created_ms')
if not f[1] or f[3] ~= 'ACTIVE' or f[4] ~= ARGV[3] then
  return {0}
end
if tonumber(f[5]) <= tonumber(ARGV[5]) then
  finish_hold(ARGV[1], ARGV[2], 'EXPIRED', tonumber(ARGV[6]))
  return {0}
end
local seats_key = ARGV[1] .. ':show:' .. f[1] .. ':seats'
for _, seat in ipairs(split(f[2])) do
  redis.call('HSET', seats_key, seat, 'H|' .. ARGV[2] .. '|' .. ARGV[4])
end
redis.call('HSET', KEYS[1], 'expires_ms', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[2])
return {1, f[2], f[6]}
`)

// KEYS: hold
// ARGV: prefix, hold_id, holder, retention_ms
// Returns 1 released, 0 nothing to release, 2 already promoted.
var releaseScript = redis.NewScript(luaHelpers + `
local f = redis.call('HMGET', KEYS[1], 'status', 'holder')
if f[2] ~= ARGV[3] then
  return 0
end
if f[1] == 'PROMOTED' then
  return 2
end
if f[1] ~= 'ACTIVE' then
  return 0
end
finish_hold(ARGV[1], ARGV[2], 'RELEASED', tonumber(ARGV[4]))
return 1
`)

// KEYS: hold, expiry
// ARGV: prefix, hold_id, holder, now_ms, retention_ms
// Returns 1 promoted (or already promoted), 0 not found, 2 expired.
var promoteScript = redis.NewScript(luaHelpers + `
local f = redis.call('HMGET', KEYS[1], 'show', 'seats', 'status', 'holder', 'expires_ms')
if not f[1] or f[4] ~= ARGV[3] then
  return 0
end
if f[3] == 'PROMOTED' then
  return 1
end
if f[3] == 'EXPIRED' then
  return 2
end
if f[3] ~= 'ACTIVE' then
  return 0
end
if tonumber(f[5]) <= tonumber(ARGV[4]) then
  finish_hold(ARGV[1], ARGV[2], 'EXPIRED', tonumber(ARGV[5]))
  return 2
end
local seats_key = ARGV[1] .. ':show:' .. f[1] .. ':seats'
for _, seat in ipairs(split(f[2])) do
  redis.call('HSET', seats_key, seat, 'S|' .. ARGV[2])
end
redis.call('HSET', KEYS[1], 'status', 'PROMOTED')
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[5]))
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

// KEYS: hold, expiry
// ARGV: prefix, hold_id, now_ms, retention_ms
var expireScript = redis.NewScript(luaHelpers + `
local f = redis.call('HMGET', KEYS[1], 'show', 'seats', 'status', 'holder', 'expires_ms', 'created_ms')
if not f[1] or f[3] ~= 'ACTIVE' then
  redis.call('ZREM', KEYS[2], ARGV[2])
  return {0}
end
if tonumber(f[5]) > tonumber(ARGV[3]) then
  return {0}
end
finish_hold(ARGV[1], ARGV[2], 'EXPIRED', tonumber(ARGV[4]))
return {1, f[1], f[4], f[2], f[5], f[6]}
`)

// RedisStore keeps seat state in Redis so several API instances share
// it.  Every mutation is one Lua script, which Redis runs atomically.
type RedisStore struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) {
		if p != "" {
			s.prefix = p
		}
	}
}

// WithRetention sets how long finished holds are kept for idempotent
// promote and release.
func WithRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "seats", retention: defaultTombstoneTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) seatsKey(showID string) string { return s.prefix + ":show:" + showID + ":seats" }
func (s *RedisStore) holdKey(holdID string) string  { return s.prefix + ":hold:" + holdID }
func (s *RedisStore) expiryKey() string             { return s.prefix + ":expiry" }

func (s *RedisStore) TryHold(ctx context.Context, req HoldRequest) (model.Hold, error) {
	args := make([]interface{}, 0, 7+len(req.SeatIDs))
	args = append(args,
		s.prefix,
		req.HoldID,
		req.HolderToken,
		req.ShowID,
		req.ExpiresAt.UnixMilli(),
		req.Now.UnixMilli(),
		s.retention.Milliseconds(),
	)
	for _, id := range req.SeatIDs {
		args = append(args, id)
	}
	keys := []string{s.seatsKey(req.ShowID), s.holdKey(req.HoldID), s.expiryKey()}
	res, err := tryHoldScript.Run(ctx, s.rdb, keys, args...).Slice()
	if err != nil {
		return model.Hold{}, fmt.Errorf("redis try hold: %w", err)
	}
	if len(res) == 0 {
		return model.Hold{}, errors.New("redis try hold: empty script reply")
	}
	if granted, _ := res[0].(int64); granted != 1 {
		var busy []string
		if len(res) > 1 {
			if list, isList := res[1].([]interface{}); isList {
				for _, v := range list {
					if id, isStr := v.(string); isStr {
						busy = append(busy, id)
					}
				}
			}
		}
		return model.Hold{}, &model.SeatUnavailableError{ShowID: req.ShowID, SeatIDs: busy}
	}
	return model.Hold{
		ID:          req.HoldID,
		ShowID:      req.ShowID,
		SeatIDs:     append([]string(nil), req.SeatIDs...),
		HolderToken: req.HolderToken,
		ExpiresAt:   msToTime(req.ExpiresAt.UnixMilli()),
		CreatedAt:   msToTime(req.Now.UnixMilli()),
		Status:      model.HoldActive,
	}, nil
}

func (s *RedisStore) Renew(ctx context.Context, h model.HoldHandle, expiresAt, now time.Time) (model.Hold, error) {
	res, err := renewScript.Run(ctx, s.rdb,
		[]string{s.holdKey(h.HoldID), s.expiryKey()},
		s.prefix, h.HoldID, h.HolderToken, expiresAt.UnixMilli(), now.UnixMilli(), s.retention.Milliseconds(),
	).Slice()
	if err != nil {
		return model.Hold{}, fmt.Errorf("redis renew: %w", err)
	}
	if len(res) < 3 {
		return model.Hold{}, model.ErrHoldNotFound
	}
	seats, _ := res[1].(string)
	created, _ := res[2].(string)
	return model.Hold{
		ID:          h.HoldID,
		ShowID:      h.ShowID,
		SeatIDs:     splitSeats(seats),
		HolderToken: h.HolderToken,
		ExpiresAt:   msToTime(expiresAt.UnixMilli()),
		CreatedAt:   parseMs(created),
		Status:      model.HoldActive,
	}, nil
}

func (s *RedisStore) Release(ctx context.Context, h model.HoldHandle, _ time.Time) error {
	code, err := releaseScript.Run(ctx, s.rdb,
		[]string{s.holdKey(h.HoldID)},
		s.prefix, h.HoldID, h.HolderToken, s.retention.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	if code == 2 {
		return model.ErrHoldPromoted
	}
	return nil
}

func (s *RedisStore) Promote(ctx context.Context, h model.HoldHandle, now time.Time) error {
	code, err := promoteScript.Run(ctx, s.rdb,
		[]string{s.holdKey(h.HoldID), s.expiryKey()},
		s.prefix, h.HoldID, h.HolderToken, now.UnixMilli(), s.retention.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis promote: %w", err)
	}
	switch code {
	case 1:
		return nil
	case 2:
		return model.ErrHoldExpired
	default:
		return model.ErrHoldNotFound
	}
}

func (s *RedisStore) Snapshot(ctx context.Context, showID string) (model.Snapshot, error) {
	raw, err := s.rdb.HGetAll(ctx, s.seatsKey(showID)).Result()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("redis snapshot: %w", err)
	}
	records := make(map[string]model.AvailabilityRecord, len(raw))
	for seatID, v := range raw {
		rec, ok := decodeSeat(seatID, v)
		if !ok {
			continue
		}
		records[seatID] = rec
	}
	return model.Snapshot{ShowID: showID, Records: records, TakenAt: time.Now().UTC()}, nil
}

func (s *RedisStore) ExpireDue(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	ids, err := s.rdb.ZRangeByScore(ctx, s.expiryKey(), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("redis due holds: %w", err)
	}
	var expired []model.Hold
	for _, id := range ids {
		res, err := expireScript.Run(ctx, s.rdb,
			[]string{s.holdKey(id), s.expiryKey()},
			s.prefix, id, now.UnixMilli(), s.retention.Milliseconds(),
		).Slice()
		if err != nil {
			return expired, fmt.Errorf("redis expire %s: %w", id, err)
		}
		if len(res) < 6 {
			continue
		}
		show, _ := res[1].(string)
		holder, _ := res[2].(string)
		seats, _ := res[3].(string)
		exp, _ := res[4].(string)
		created, _ := res[5].(string)
		expired = append(expired, model.Hold{
			ID:          id,
			ShowID:      show,
			SeatIDs:     splitSeats(seats),
			HolderToken: holder,
			ExpiresAt:   parseMs(exp),
			CreatedAt:   parseMs(created),
			Status:      model.HoldExpired,
		})
	}
	return expired, nil
}

func decodeSeat(seatID, v string) (model.AvailabilityRecord, bool) {
	parts := strings.SplitN(v, "|", 3)
	if len(parts) < 2 {
		return model.AvailabilityRecord{}, false
	}
	switch parts[0] {
	case "H":
		if len(parts) != 3 {
			return model.AvailabilityRecord{}, false
		}
		return model.AvailabilityRecord{SeatID: seatID, State: model.SeatHeld, HoldID: parts[1], ExpiresAt: parseMs(parts[2])}, true
	case "S":
		return model.AvailabilityRecord{SeatID: seatID, State: model.SeatSold, HoldID: parts[1]}, true
	}
	return model.AvailabilityRecord{}, false
}

func splitSeats(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func parseMs(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return msToTime(ms)
}

func msToTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
