package disruption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Evictor is the outbound port used to actually remove an approved replica.
type Evictor interface {
	EvictReplicaCommand(ctx context.Context, pool, id string) error
}

// terminator marks an approved removal in the fleet registry.
type terminator interface {
	MarkTerminating(pool, id string) bool
}

// retryable is a private interface for orchestrator throttling errors; they
// surface as backpressure, not failure.
type retryable interface {
	IsTooManyRequests()
}

// Remover is the removal-request hook invoked by the external drain or
// eviction mechanism. Every voluntary removal funnels through the guard
// here.
type Remover struct {
	logger  *slog.Logger
	guard   *Guard
	fleet   terminator
	evictor Evictor

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRemover creates the removal hook.
func NewRemover(
	logger *slog.Logger,
	guard *Guard,
	fleet terminator,
	evictor Evictor,
) *Remover {
	return &Remover{
		logger:  logger,
		guard:   guard,
		fleet:   fleet,
		evictor: evictor,
		locks:   make(map[string]*sync.Mutex),
	}
}

// poolLock returns the mutex serializing removals for one pool.
func (r *Remover) poolLock(pool string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[pool]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[pool] = lock
	}

	return lock
}

// RequestRemoval gates the removal through the disruption budget and, when
// allowed, evicts the replica. A false result with a nil error is
// backpressure: the caller retries later.
//
// The guard check, the eviction and the Terminating commit run under one
// per-pool lock: two concurrent requests must not both pass the budget on
// the same ready count.
func (r *Remover) RequestRemoval(ctx context.Context, pool, replica string) (bool, Verdict, error) {
	lock := r.poolLock(pool)
	lock.Lock()
	defer lock.Unlock()

	allowed, verdict := r.guard.MayRemove(ctx, pool, replica)
	if !allowed {
		return false, verdict, nil
	}

	if err := r.evictor.EvictReplicaCommand(ctx, pool, replica); err != nil {
		var target retryable
		if errors.As(err, &target) {
			r.logger.InfoContext(ctx, "eviction throttled, retry later",
				"pool", pool,
				"replica", replica,
			)

			return false, VerdictThrottled, nil
		}

		return false, verdict, fmt.Errorf("evict replica: %w", err)
	}

	r.fleet.MarkTerminating(pool, replica)

	r.logger.InfoContext(ctx, "replica removal approved",
		"pool", pool,
		"replica", replica,
	)

	return true, VerdictAllowed, nil
}
