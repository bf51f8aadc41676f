package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poolwarden/poolwarden/internal/infra/metrics"
)

// historyLen bounds the per-pool desired-count history kept for the status
// endpoint.
const historyLen = 64

// directiveTimeout bounds the orchestrator call made while a pool's lock is
// held, so a stalled apiserver cannot freeze that pool's arbitration.
const directiveTimeout = 15 * time.Second

// Bounds are the pool's own replica limits; every trigger's bounds are a
// subset of these, and the merged desired count never leaves them.
type Bounds struct {
	Min int32
	Max int32
}

// Sample is one authoritative desired-count decision.
type Sample struct {
	Desired int32     `json:"desired"`
	At      time.Time `json:"at"`
}

// PoolStatus is a read-only snapshot of one pool's arbitration state.
type PoolStatus struct {
	Pool    string           `json:"pool"`
	Min     int32            `json:"min"`
	Max     int32            `json:"max"`
	Desired int32            `json:"desired"`
	Votes   map[string]int32 `json:"votes"`
	History []Sample         `json:"history"`
}

type poolState struct {
	mu         sync.Mutex
	bounds     Bounds
	votes      map[string]int32
	desired    int32
	hasDesired bool
	history    []Sample
}

// Arbiter is the single writer of every pool's authoritative desired replica
// count. Concurrent vote submissions from scalers at different cadences are
// serialized per pool: last write per trigger, desired = clamp(max of
// votes). Pools do not share a lock, so one pool's slow directive never
// delays another pool's votes.
type Arbiter struct {
	logger     *slog.Logger
	directives Directives

	mu    sync.RWMutex
	pools map[string]*poolState
}

// New creates an arbiter that emits scale directives through the given port.
func New(logger *slog.Logger, directives Directives) *Arbiter {
	return &Arbiter{
		logger:     logger,
		directives: directives,
		pools:      make(map[string]*poolState),
	}
}

// RegisterPool makes a pool known to the arbiter. Votes for unregistered
// pools are rejected.
func (a *Arbiter) RegisterPool(pool string, bounds Bounds) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.pools[pool]; ok {
		return
	}

	a.pools[pool] = &poolState{
		bounds: bounds,
		votes:  make(map[string]int32),
	}
}

// Submit records one trigger's vote and recomputes the pool's desired count.
// Any single trigger can force scale-out; scale-in requires every held vote
// to have decayed. A changed desired count is emitted through the directives
// port before it becomes authoritative, so a failed directive is retried on
// the next differing vote.
func (a *Arbiter) Submit(ctx context.Context, pool, trigger string, vote int32) error {
	a.mu.RLock()
	st, ok := a.pools[pool]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("submit vote for %q: %w", pool, ErrUnknownPool)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.votes[trigger] = vote

	desired := maxVote(st.votes)
	if desired < st.bounds.Min {
		desired = st.bounds.Min
	}

	if desired > st.bounds.Max {
		desired = st.bounds.Max
	}

	if st.hasDesired && desired == st.desired {
		return nil
	}

	directiveCtx, cancel := context.WithTimeout(ctx, directiveTimeout)
	defer cancel()

	if err := a.directives.ScalePool(directiveCtx, pool, desired); err != nil {
		return fmt.Errorf("%w: pool %s to %d: %w", ErrScalePool, pool, desired, err)
	}

	st.desired = desired
	st.hasDesired = true

	st.history = append(st.history, Sample{Desired: desired, At: time.Now()})
	if len(st.history) > historyLen {
		st.history = st.history[len(st.history)-historyLen:]
	}

	metrics.SetPoolDesiredReplicas(pool, desired)

	a.logger.InfoContext(ctx, "desired replicas changed",
		"pool", pool,
		"trigger", trigger,
		"vote", vote,
		"desired", desired,
	)

	return nil
}

// Desired returns the authoritative desired count for a pool.
func (a *Arbiter) Desired(pool string) (int32, bool) {
	a.mu.RLock()
	st, ok := a.pools[pool]
	a.mu.RUnlock()

	if !ok {
		return 0, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.hasDesired {
		return 0, false
	}

	return st.desired, true
}

// Snapshot returns the arbitration state of every registered pool.
func (a *Arbiter) Snapshot() []PoolStatus {
	a.mu.RLock()
	pools := make(map[string]*poolState, len(a.pools))
	for name, st := range a.pools {
		pools[name] = st
	}
	a.mu.RUnlock()

	out := make([]PoolStatus, 0, len(pools))

	for name, st := range pools {
		st.mu.Lock()

		votes := make(map[string]int32, len(st.votes))
		for t, v := range st.votes {
			votes[t] = v
		}

		out = append(out, PoolStatus{
			Pool:    name,
			Min:     st.bounds.Min,
			Max:     st.bounds.Max,
			Desired: st.desired,
			Votes:   votes,
			History: append([]Sample(nil), st.history...),
		})

		st.mu.Unlock()
	}

	return out
}

func maxVote(votes map[string]int32) int32 {
	var m int32
	first := true

	for _, v := range votes {
		if first || v > m {
			m = v
			first = false
		}
	}

	return m
}
