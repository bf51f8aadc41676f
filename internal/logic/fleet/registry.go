package fleet

import (
	"sort"
	"sync"
	"time"

	"github.com/poolwarden/poolwarden/internal/infra/metrics"
)

// Registry tracks every replica's lifecycle state per pool. It is fed by the
// syncer and read by the scalers, the capacity provisioners and the
// disruption guard; readers only ever get snapshots.
type Registry struct {
	mu       sync.RWMutex
	replicas map[string]*Replica // keyed by pool + "/" + id
	known    map[string]struct{} // pools with published gauges
	now      func() time.Time
	publish  func(pool, state string, count int)
}

// NewRegistry creates an empty replica registry.
func NewRegistry() *Registry {
	return &Registry{
		replicas: make(map[string]*Replica),
		known:    make(map[string]struct{}),
		now:      time.Now,
		publish:  metrics.SetPoolReplicas,
	}
}

func key(pool, id string) string {
	return pool + "/" + id
}

// apply reconciles one observation batch against the tracked set and returns
// the replicas whose readiness reported Failed. Tracked replicas absent from
// the batch transition to Gone and are dropped.
func (r *Registry) apply(observations []Observation) []Replica {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	seen := make(map[string]struct{}, len(observations))

	var failed []Replica

	for _, obs := range observations {
		k := key(obs.Pool, obs.ID)
		seen[k] = struct{}{}

		rep, ok := r.replicas[k]
		if !ok {
			rep = &Replica{
				ID:             obs.ID,
				Pool:           obs.Pool,
				NodeClass:      obs.NodeClass,
				State:          StatePending,
				LastTransition: now,
			}
			r.replicas[k] = rep
		}

		if obs.Readiness == ReadinessFailed {
			failed = append(failed, *rep)
			// Replacement was requested; the replica is on its way out.
			r.transition(rep, StateTerminating, now)

			continue
		}

		// Approved removals hold Terminating until the replica disappears.
		if rep.State == StateTerminating {
			continue
		}

		r.transition(rep, observedState(obs), now)
	}

	for k, rep := range r.replicas {
		if _, ok := seen[k]; !ok {
			r.transition(rep, StateGone, now)
			delete(r.replicas, k)
		}
	}

	r.publishCounts()

	return failed
}

func observedState(obs Observation) ReplicaState {
	switch {
	case !obs.Scheduled:
		return StatePending
	case obs.Readiness == ReadinessReady:
		return StateReady
	default:
		return StateScheduled
	}
}

func (r *Registry) transition(rep *Replica, to ReplicaState, now time.Time) {
	if rep.State == to {
		return
	}

	rep.State = to
	rep.LastTransition = now
}

// MarkTerminating records an approved removal. Returns false when the
// replica is unknown.
func (r *Registry) MarkTerminating(pool, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep, ok := r.replicas[key(pool, id)]
	if !ok {
		return false
	}

	r.transition(rep, StateTerminating, r.now())
	r.publishCounts()

	return true
}

// CurrentReplicas returns the pool's observed replica count: everything that
// exists and is not being torn down.
func (r *Registry) CurrentReplicas(pool string) (int32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int32
	found := false

	for _, rep := range r.replicas {
		if rep.Pool != pool {
			continue
		}

		found = true
		if rep.State != StateTerminating {
			n++
		}
	}

	return n, found
}

// CountReady returns the number of replicas counted toward the pool's
// disruption budget. Terminating replicas are already excluded.
func (r *Registry) CountReady(pool string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rep := range r.replicas {
		if rep.Pool == pool && rep.State == StateReady {
			n++
		}
	}

	return n
}

// State reports one replica's lifecycle state.
func (r *Registry) State(pool, id string) (ReplicaState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.replicas[key(pool, id)]
	if !ok {
		return "", false
	}

	return rep.State, true
}

// PendingDemand returns the number of pending replicas attributable to
// insufficient units of the given node-class.
func (r *Registry) PendingDemand(nodeClass string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rep := range r.replicas {
		if rep.NodeClass == nodeClass && rep.State == StatePending {
			n++
		}
	}

	return n
}

// ActiveOnClass returns the number of replicas occupying a unit of the given
// node-class. One scarce-resource instance serves at most one replica, so
// this is the class's allocated unit count.
func (r *Registry) ActiveOnClass(nodeClass string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rep := range r.replicas {
		if rep.NodeClass != nodeClass {
			continue
		}

		switch rep.State {
		case StateScheduled, StateReady, StateTerminating:
			n++
		case StatePending, StateGone:
		}
	}

	return n
}

// Snapshot returns per-pool views sorted by pool name.
func (r *Registry) Snapshot() []PoolSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPool := make(map[string]*PoolSnapshot)
	for _, rep := range r.replicas {
		snap, ok := byPool[rep.Pool]
		if !ok {
			snap = &PoolSnapshot{Pool: rep.Pool}
			byPool[rep.Pool] = snap
		}

		snap.Replicas = append(snap.Replicas, *rep)
		if rep.State != StateTerminating {
			snap.Current++
		}

		if rep.State == StateReady {
			snap.Ready++
		}
	}

	out := make([]PoolSnapshot, 0, len(byPool))
	for _, snap := range byPool {
		sort.Slice(snap.Replicas, func(i, j int) bool {
			return snap.Replicas[i].ID < snap.Replicas[j].ID
		})
		out = append(out, *snap)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })

	return out
}

var publishedStates = []ReplicaState{StatePending, StateScheduled, StateReady, StateTerminating}

// publishCounts exports per-state replica counts. Pools whose last replica
// vanished get their gauges zeroed once, so no stale series linger. Callers
// hold r.mu.
func (r *Registry) publishCounts() {
	type poolKey struct {
		pool  string
		state ReplicaState
	}

	counts := make(map[poolKey]int)
	pools := make(map[string]struct{})

	for _, rep := range r.replicas {
		counts[poolKey{rep.Pool, rep.State}]++
		pools[rep.Pool] = struct{}{}
	}

	for pool := range pools {
		for _, st := range publishedStates {
			r.publish(pool, string(st), counts[poolKey{pool, st}])
		}
	}

	for pool := range r.known {
		if _, ok := pools[pool]; ok {
			continue
		}

		for _, st := range publishedStates {
			r.publish(pool, string(st), 0)
		}
	}

	r.known = pools
}
