package disruption_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poolwarden/poolwarden/internal/logic/disruption"
	"github.com/poolwarden/poolwarden/internal/logic/fleet"
)

// fakeFleet is a canned replica-state view plus a terminator recorder.
type fakeFleet struct {
	states      map[string]fleet.ReplicaState
	ready       int
	terminated  []string
	markUnknown bool
}

func (f *fakeFleet) State(_, id string) (fleet.ReplicaState, bool) {
	st, ok := f.states[id]

	return st, ok
}

func (f *fakeFleet) CountReady(string) int { return f.ready }

func (f *fakeFleet) MarkTerminating(_, id string) bool {
	if f.markUnknown {
		return false
	}

	f.terminated = append(f.terminated, id)

	return true
}

// fakeEvictor records evictions and can fail on demand.
type fakeEvictor struct {
	err     error
	evicted []string
}

func (f *fakeEvictor) EvictReplicaCommand(_ context.Context, _, id string) error {
	if f.err != nil {
		return f.err
	}

	f.evicted = append(f.evicted, id)

	return nil
}

// lockedFleet mutates its state under a mutex so concurrent removal
// requests observe each other's commits.
type lockedFleet struct {
	mu         sync.Mutex
	states     map[string]fleet.ReplicaState
	terminated []string
}

func (f *lockedFleet) State(_, id string) (fleet.ReplicaState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.states[id]

	return st, ok
}

func (f *lockedFleet) CountReady(string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0

	for _, st := range f.states {
		if st == fleet.StateReady {
			n++
		}
	}

	return n
}

func (f *lockedFleet) MarkTerminating(_, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.states[id] = fleet.StateTerminating
	f.terminated = append(f.terminated, id)

	return true
}

// gatedEvictor signals when an eviction starts and holds it until released.
type gatedEvictor struct {
	entered chan struct{}
	gate    chan struct{}
}

func (f *gatedEvictor) EvictReplicaCommand(context.Context, string, string) error {
	close(f.entered)
	<-f.gate

	return nil
}

// throttledError implements the remover's private throttling interface.
type throttledError struct{}

func (throttledError) Error() string      { return "too many requests" }
func (throttledError) IsTooManyRequests() {}

func twoReadyFleet() *fakeFleet {
	return &fakeFleet{
		states: map[string]fleet.ReplicaState{
			"rep-1": fleet.StateReady,
			"rep-2": fleet.StateReady,
			"rep-3": fleet.StateScheduled,
			"rep-4": fleet.StateTerminating,
		},
		ready: 2,
	}
}

func TestGuard_MayRemove(t *testing.T) {
	t.Parallel()

	logger := slog.Default()

	t.Run("removal within budget is allowed", func(t *testing.T) {
		t.Parallel()

		g := disruption.New(logger, twoReadyFleet())
		g.SetBudget("inference-large", 1)

		allowed, verdict := g.MayRemove(t.Context(), "inference-large", "rep-1")
		require.True(t, allowed)
		require.Equal(t, disruption.VerdictAllowed, verdict)
	})

	t.Run("removal below budget is blocked", func(t *testing.T) {
		t.Parallel()

		f := twoReadyFleet()
		f.ready = 1

		g := disruption.New(logger, f)
		g.SetBudget("inference-large", 1)

		allowed, verdict := g.MayRemove(t.Context(), "inference-large", "rep-1")
		require.False(t, allowed)
		require.Equal(t, disruption.VerdictBlockedBudget, verdict)
	})

	t.Run("non-ready replica never dips the budget", func(t *testing.T) {
		t.Parallel()

		f := twoReadyFleet()
		f.ready = 1

		g := disruption.New(logger, f)
		g.SetBudget("inference-large", 1)

		allowed, verdict := g.MayRemove(t.Context(), "inference-large", "rep-3")
		require.True(t, allowed)
		require.Equal(t, disruption.VerdictAllowed, verdict)
	})

	t.Run("terminating replica is already leaving", func(t *testing.T) {
		t.Parallel()

		g := disruption.New(logger, twoReadyFleet())

		allowed, verdict := g.MayRemove(t.Context(), "inference-large", "rep-4")
		require.False(t, allowed)
		require.Equal(t, disruption.VerdictAlreadyLeaving, verdict)
	})

	t.Run("unknown replica is rejected", func(t *testing.T) {
		t.Parallel()

		g := disruption.New(logger, twoReadyFleet())

		allowed, verdict := g.MayRemove(t.Context(), "inference-large", "ghost")
		require.False(t, allowed)
		require.Equal(t, disruption.VerdictUnknownReplica, verdict)
	})

	t.Run("pool without budget defaults to zero", func(t *testing.T) {
		t.Parallel()

		f := twoReadyFleet()
		f.ready = 1

		g := disruption.New(logger, f)

		allowed, _ := g.MayRemove(t.Context(), "inference-large", "rep-1")
		require.True(t, allowed)
	})
}

func TestRemover_RequestRemoval(t *testing.T) {
	t.Parallel()

	logger := slog.Default()

	t.Run("allowed removal evicts and marks terminating", func(t *testing.T) {
		t.Parallel()

		f := twoReadyFleet()
		evictor := &fakeEvictor{}
		g := disruption.New(logger, f)
		g.SetBudget("inference-large", 1)

		r := disruption.NewRemover(logger, g, f, evictor)

		allowed, verdict, err := r.RequestRemoval(t.Context(), "inference-large", "rep-1")
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, disruption.VerdictAllowed, verdict)
		require.Equal(t, []string{"rep-1"}, evictor.evicted)
		require.Equal(t, []string{"rep-1"}, f.terminated)
	})

	t.Run("blocked removal never reaches the evictor", func(t *testing.T) {
		t.Parallel()

		f := twoReadyFleet()
		f.ready = 1

		evictor := &fakeEvictor{}
		g := disruption.New(logger, f)
		g.SetBudget("inference-large", 1)

		r := disruption.NewRemover(logger, g, f, evictor)

		allowed, verdict, err := r.RequestRemoval(t.Context(), "inference-large", "rep-1")
		require.NoError(t, err)
		require.False(t, allowed)
		require.Equal(t, disruption.VerdictBlockedBudget, verdict)
		require.Empty(t, evictor.evicted)
	})

	t.Run("throttled eviction is backpressure", func(t *testing.T) {
		t.Parallel()

		f := twoReadyFleet()
		evictor := &fakeEvictor{err: throttledError{}}
		g := disruption.New(logger, f)

		r := disruption.NewRemover(logger, g, f, evictor)

		allowed, verdict, err := r.RequestRemoval(t.Context(), "inference-large", "rep-1")
		require.NoError(t, err)
		require.False(t, allowed)
		require.Equal(t, disruption.VerdictThrottled, verdict)
		require.Empty(t, f.terminated)
	})

	t.Run("concurrent removals cannot both pass the budget", func(t *testing.T) {
		t.Parallel()

		f := &lockedFleet{
			states: map[string]fleet.ReplicaState{
				"rep-1": fleet.StateReady,
				"rep-2": fleet.StateReady,
			},
		}

		evictor := &gatedEvictor{
			entered: make(chan struct{}),
			gate:    make(chan struct{}),
		}

		g := disruption.New(logger, f)
		g.SetBudget("inference-large", 1)

		r := disruption.NewRemover(logger, g, f, evictor)

		type result struct {
			allowed bool
			verdict disruption.Verdict
			err     error
		}

		first := make(chan result, 1)

		go func() {
			allowed, verdict, err := r.RequestRemoval(t.Context(), "inference-large", "rep-1")
			first <- result{allowed, verdict, err}
		}()

		// The first request now holds the pool lock inside its eviction.
		<-evictor.entered

		second := make(chan result, 1)

		go func() {
			allowed, verdict, err := r.RequestRemoval(t.Context(), "inference-large", "rep-2")
			second <- result{allowed, verdict, err}
		}()

		close(evictor.gate)

		res1 := <-first
		require.NoError(t, res1.err)
		require.True(t, res1.allowed)

		res2 := <-second
		require.NoError(t, res2.err)
		require.False(t, res2.allowed)
		require.Equal(t, disruption.VerdictBlockedBudget, res2.verdict)

		require.Equal(t, []string{"rep-1"}, f.terminated)
		require.Equal(t, 1, f.CountReady("inference-large"))
	})

	t.Run("eviction failure is an error", func(t *testing.T) {
		t.Parallel()

		f := twoReadyFleet()
		evictor := &fakeEvictor{err: errors.New("apiserver unavailable")}
		g := disruption.New(logger, f)

		r := disruption.NewRemover(logger, g, f, evictor)

		allowed, _, err := r.RequestRemoval(t.Context(), "inference-large", "rep-1")
		require.Error(t, err)
		require.False(t, allowed)
		require.Empty(t, f.terminated)
	})
}
