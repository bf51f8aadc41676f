// Package disruption enforces per-pool minimum-availability budgets before
// any voluntary replica removal, regardless of whether the removal comes from
// scale-down, a node drain or a rolling update.
package disruption

import (
	"context"
	"log/slog"
	"sync"

	"github.com/poolwarden/poolwarden/internal/infra/metrics"
	"github.com/poolwarden/poolwarden/internal/logic/fleet"
)

// Verdict explains a removal decision. A blocked removal is backpressure,
// not an error: the caller retries later.
type Verdict string

const (
	VerdictAllowed        Verdict = "allowed"
	VerdictBlockedBudget  Verdict = "blocked: would violate min available"
	VerdictUnknownReplica Verdict = "unknown replica"
	VerdictAlreadyLeaving Verdict = "already terminating"
	VerdictThrottled      Verdict = "blocked: orchestrator throttled"
)

// ReadyCounter is what the guard needs from the fleet registry.
type ReadyCounter interface {
	CountReady(pool string) int
	State(pool, id string) (fleet.ReplicaState, bool)
}

// Guard gates destructive transitions. It owns no replica state; it is
// consulted by the removal hook and by the capacity provisioner's
// deprovision path.
type Guard struct {
	logger *slog.Logger
	fleet  ReadyCounter

	mu      sync.RWMutex
	budgets map[string]int
}

// New creates a guard with no budgets; pools without a configured budget
// default to minAvailable 0.
func New(logger *slog.Logger, fleet ReadyCounter) *Guard {
	return &Guard{
		logger:  logger,
		fleet:   fleet,
		budgets: make(map[string]int),
	}
}

// SetBudget sets a pool's minAvailable.
func (g *Guard) SetBudget(pool string, minAvailable int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.budgets[pool] = minAvailable
}

// MinAvailable returns a pool's configured budget.
func (g *Guard) MinAvailable(pool string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.budgets[pool]
}

// MayRemove reports whether removing the replica keeps the pool at or above
// its minAvailable. Removing a replica that is not Ready never reduces the
// ready count, so it is always allowed; the surge-then-retire rule for
// rolling replacement falls out of this (the old replica stays blocked until
// its replacement reaches Ready).
func (g *Guard) MayRemove(ctx context.Context, pool, replica string) (bool, Verdict) {
	state, ok := g.fleet.State(pool, replica)
	if !ok {
		return false, VerdictUnknownReplica
	}

	if state == fleet.StateTerminating || state == fleet.StateGone {
		return false, VerdictAlreadyLeaving
	}

	if state != fleet.StateReady {
		return true, VerdictAllowed
	}

	ready := g.fleet.CountReady(pool)
	if ready-1 < g.MinAvailable(pool) {
		metrics.RecordRemovalBlocked(pool)

		g.logger.InfoContext(ctx, "removal blocked by disruption budget",
			"pool", pool,
			"replica", replica,
			"ready", ready,
			"minAvailable", g.MinAvailable(pool),
		)

		return false, VerdictBlockedBudget
	}

	return true, VerdictAllowed
}
