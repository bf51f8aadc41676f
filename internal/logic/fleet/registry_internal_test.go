package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func obs(id string, scheduled bool, readiness Readiness) Observation {
	return Observation{
		ID:        id,
		Pool:      "inference-large",
		NodeClass: "gpu-a100",
		Scheduled: scheduled,
		Readiness: readiness,
	}
}

func newTestRegistry(at time.Time) *Registry {
	r := NewRegistry()
	r.now = func() time.Time { return at }

	return r
}

func TestRegistry_Lifecycle(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("new observation enters pending", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t0)
		r.apply([]Observation{obs("rep-1", false, ReadinessNotReady)})

		st, ok := r.State("inference-large", "rep-1")
		require.True(t, ok)
		require.Equal(t, StatePending, st)
	})

	t.Run("scheduled then ready", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t0)
		r.apply([]Observation{obs("rep-1", true, ReadinessNotReady)})

		st, _ := r.State("inference-large", "rep-1")
		require.Equal(t, StateScheduled, st)

		r.apply([]Observation{obs("rep-1", true, ReadinessReady)})

		st, _ = r.State("inference-large", "rep-1")
		require.Equal(t, StateReady, st)
	})

	t.Run("failed replica is returned for replacement", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t0)
		r.apply([]Observation{obs("rep-1", true, ReadinessReady)})

		failed := r.apply([]Observation{obs("rep-1", true, ReadinessFailed)})
		require.Len(t, failed, 1)
		require.Equal(t, "rep-1", failed[0].ID)

		// Failure is terminal: the replica is on its way out.
		st, _ := r.State("inference-large", "rep-1")
		require.Equal(t, StateTerminating, st)
	})

	t.Run("terminating is sticky until the replica disappears", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t0)
		r.apply([]Observation{obs("rep-1", true, ReadinessReady)})
		require.True(t, r.MarkTerminating("inference-large", "rep-1"))

		// The orchestrator still reports it ready while it drains.
		r.apply([]Observation{obs("rep-1", true, ReadinessReady)})

		st, _ := r.State("inference-large", "rep-1")
		require.Equal(t, StateTerminating, st)
	})

	t.Run("absent replica is gone and dropped", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t0)
		r.apply([]Observation{
			obs("rep-1", true, ReadinessReady),
			obs("rep-2", true, ReadinessReady),
		})

		r.apply([]Observation{obs("rep-1", true, ReadinessReady)})

		_, ok := r.State("inference-large", "rep-2")
		require.False(t, ok)
	})

	t.Run("mark terminating unknown replica", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t0)
		require.False(t, r.MarkTerminating("inference-large", "ghost"))
	})
}

func TestRegistry_PublishCounts(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("vanished pool gets its gauges zeroed", func(t *testing.T) {
		t.Parallel()

		published := make(map[string]int)

		r := newTestRegistry(t0)
		r.publish = func(pool, state string, count int) {
			published[pool+"/"+state] = count
		}

		r.apply([]Observation{obs("rep-1", true, ReadinessReady)})
		require.Equal(t, 1, published["inference-large/Ready"])

		// The pool's only replica is gone from the next batch.
		r.apply(nil)

		for _, st := range publishedStates {
			require.Equal(t, 0, published["inference-large/"+string(st)])
		}
	})

	t.Run("vanished pool is zeroed only once", func(t *testing.T) {
		t.Parallel()

		var calls int

		r := newTestRegistry(t0)
		r.publish = func(string, string, int) { calls++ }

		r.apply([]Observation{obs("rep-1", true, ReadinessReady)})
		r.apply(nil)

		afterZeroing := calls
		r.apply(nil)

		require.Equal(t, afterZeroing, calls)
	})
}

func TestRegistry_Counts(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := newTestRegistry(t0)
	r.apply([]Observation{
		obs("rep-1", true, ReadinessReady),
		obs("rep-2", true, ReadinessReady),
		obs("rep-3", true, ReadinessNotReady),
		obs("rep-4", false, ReadinessNotReady),
	})
	require.True(t, r.MarkTerminating("inference-large", "rep-2"))

	t.Run("current excludes terminating", func(t *testing.T) {
		t.Parallel()

		n, ok := r.CurrentReplicas("inference-large")
		require.True(t, ok)
		require.Equal(t, int32(3), n)
	})

	t.Run("ready counts only ready", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, 1, r.CountReady("inference-large"))
	})

	t.Run("pending demand counts unplaced replicas", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, 1, r.PendingDemand("gpu-a100"))
	})

	t.Run("active on class counts placed and draining replicas", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, 3, r.ActiveOnClass("gpu-a100"))
	})

	t.Run("unknown pool is not found", func(t *testing.T) {
		t.Parallel()

		_, ok := r.CurrentReplicas("no-such-pool")
		require.False(t, ok)
	})
}

func TestRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := newTestRegistry(t0)
	r.apply([]Observation{
		obs("rep-2", true, ReadinessReady),
		obs("rep-1", true, ReadinessNotReady),
	})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "inference-large", snap[0].Pool)
	require.Equal(t, int32(2), snap[0].Current)
	require.Equal(t, 1, snap[0].Ready)
	require.Equal(t, "rep-1", snap[0].Replicas[0].ID)
	require.Equal(t, "rep-2", snap[0].Replicas[1].ID)
}
