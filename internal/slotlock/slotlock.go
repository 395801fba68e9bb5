// Package slotlock provides a short-lived, best-effort distributed lock per
// (doctor, slot instant) so two patients cannot start paying for the same
// slot at once. It is defense-in-depth only: the partial unique index on
// consultations is the hard backstop, so an unreachable lock store degrades
// to no locking instead of failing the booking path.
package slotlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/caredial/telehealth-platform/pkg/logging"
)

// Result is the outcome of an acquire attempt.
type Result int

const (
	// Acquired means this holder now owns the slot lock.
	Acquired Result = iota
	// Denied means a different booking attempt currently holds it.
	Denied
	// Unavailable means the lock store could not be reached; callers
	// proceed without mutual exclusion.
	Unavailable
)

// Manager is the slot lock capability injected into the payment controller.
type Manager interface {
	Acquire(ctx context.Context, doctorID uuid.UUID, slot time.Time, holderID uuid.UUID) Result
	Release(ctx context.Context, doctorID uuid.UUID, slot time.Time)
}

// RedisManager implements Manager on a shared Redis with TTL expiry.
type RedisManager struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewRedisManager(client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisManager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisManager{client: client, ttl: ttl, logger: logger}
}

// Key derives the lock key from the doctor and the slot's epoch millis, so
// every caller addressing the same slot instant agrees on the key.
func Key(doctorID uuid.UUID, slot time.Time) string {
	return fmt.Sprintf("slotlock:%s:%d", doctorID, slot.UTC().UnixMilli())
}

// Acquire sets the key only if absent, with the configured TTL. Store
// errors fail open: the unique constraint still protects correctness.
func (m *RedisManager) Acquire(ctx context.Context, doctorID uuid.UUID, slot time.Time, holderID uuid.UUID) Result {
	if m.client == nil {
		return Unavailable
	}
	key := Key(doctorID, slot)
	ok, err := m.client.SetNX(ctx, key, holderID.String(), m.ttl).Result()
	if err != nil {
		m.logger.Warn("slot lock store unreachable, proceeding unlocked", "key", key, "error", err)
		return Unavailable
	}
	if !ok {
		return Denied
	}
	return Acquired
}

// Release unconditionally deletes the key. Releasing an unheld or expired
// lock is a no-op; failures are logged and bounded by the TTL.
func (m *RedisManager) Release(ctx context.Context, doctorID uuid.UUID, slot time.Time) {
	if m.client == nil {
		return
	}
	key := Key(doctorID, slot)
	if err := m.client.Del(ctx, key).Err(); err != nil {
		m.logger.Warn("slot lock release failed, ttl will reclaim it", "key", key, "error", err)
	}
}

// Noop is the Manager used when no lock store is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, uuid.UUID, time.Time, uuid.UUID) Result { return Unavailable }
func (Noop) Release(context.Context, uuid.UUID, time.Time)                   {}
