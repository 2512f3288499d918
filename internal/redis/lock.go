package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

// SlotLockStore keeps slot locks as Redis keys holding the holder id with a
// PX expiry, so expiry is evaluated by Redis itself.
type SlotLockStore struct {
	client *redis.Client
	prefix string
}

func NewSlotLockStore(client *redis.Client) *SlotLockStore {
	return &SlotLockStore{client: client, prefix: "lock:slot:"}
}

func (s *SlotLockStore) key(k schedule.SlotKey) string {
	return s.prefix + k.String()
}

// acquireScript sets the lock when it is absent or already ours.
// Returns 1 when written, 0 when another holder has it.
var acquireScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur and cur ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (s *SlotLockStore) Acquire(ctx context.Context, key schedule.SlotKey, holderID uuid.UUID, ttl time.Duration) (slotlock.Lock, error) {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	ok, err := acquireScript.Run(ctx, s.client, []string{s.key(key)}, holderID.String(), strconv.FormatInt(ms, 10)).Int()
	if err != nil {
		return slotlock.Lock{}, fmt.Errorf("acquire slot lock: %w", err)
	}
	if ok != 1 {
		return slotlock.Lock{}, slotlock.ErrSlotConflict
	}

	return slotlock.Lock{
		Key:       key,
		HolderID:  holderID,
		ExpiresAt: time.Now().Add(time.Duration(ms) * time.Millisecond),
	}, nil
}

func (s *SlotLockStore) Release(ctx context.Context, key schedule.SlotKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

func (s *SlotLockStore) ReleaseHeld(ctx context.Context, key schedule.SlotKey, holderID uuid.UUID) (bool, error) {
	n, err := unlockScript.Run(ctx, s.client, []string{s.key(key)}, holderID.String()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("release slot lock: %w", err)
	}
	return n > 0, nil
}

func (s *SlotLockStore) Get(ctx context.Context, key schedule.SlotKey) (*slotlock.Lock, error) {
	locks, err := s.GetMany(ctx, []schedule.SlotKey{key})
	if err != nil {
		return nil, err
	}
	l, ok := locks[key]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// GetMany reads holder and remaining TTL of every key in one pipeline.
func (s *SlotLockStore) GetMany(ctx context.Context, keys []schedule.SlotKey) (map[schedule.SlotKey]slotlock.Lock, error) {
	out := make(map[schedule.SlotKey]slotlock.Lock)
	if len(keys) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		gets[i] = pipe.Get(ctx, s.key(k))
		ttls[i] = pipe.PTTL(ctx, s.key(k))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read slot locks: %w", err)
	}

	now := time.Now()
	for i, k := range keys {
		val, err := gets[i].Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read slot lock %s: %w", k, err)
		}
		holder, err := uuid.Parse(val)
		if err != nil {
			return nil, fmt.Errorf("corrupt slot lock %s: %w", k, err)
		}
		ttl := ttls[i].Val()
		if ttl <= 0 {
			// Expired between GET and PTTL.
			continue
		}
		out[k] = slotlock.Lock{Key: k, HolderID: holder, ExpiresAt: now.Add(ttl)}
	}
	return out, nil
}
