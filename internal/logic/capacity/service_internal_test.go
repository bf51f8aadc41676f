package capacity

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDemand reports settable pending/active counts.
type fakeDemand struct {
	pending int
	active  int
}

func (f *fakeDemand) PendingDemand(string) int { return f.pending }
func (f *fakeDemand) ActiveOnClass(string) int { return f.active }

// fakeUnits records published desired counts and serves a settable ready
// count.
type fakeUnits struct {
	ready      int
	readyErr   error
	publishErr error
	published  []int
}

func (f *fakeUnits) PublishDesiredUnitsCommand(_ context.Context, _ string, desired int) error {
	if f.publishErr != nil {
		return f.publishErr
	}

	f.published = append(f.published, desired)

	return nil
}

func (f *fakeUnits) ReadyUnitsQuery(context.Context, string) (int, error) {
	if f.readyErr != nil {
		return 0, f.readyErr
	}

	return f.ready, nil
}

type harness struct {
	svc    *Service
	demand *fakeDemand
	units  *fakeUnits
	at     time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		demand: &fakeDemand{},
		units:  &fakeUnits{},
		at:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	h.svc = New(slog.Default(), cfg, h.demand, h.units)
	h.svc.now = func() time.Time { return h.at }

	return h
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.svc.ReconcileCommand(t.Context()))
}

func (h *harness) advance(d time.Duration) {
	h.at = h.at.Add(d)
}

func scaleToZeroConfig() Config {
	return Config{
		Class:             "gpu-a100",
		MinUnits:          0,
		MaxUnits:          4,
		LeadTimeEstimate:  5 * time.Minute,
		IdleTimeout:       15 * time.Minute,
		RetryFactor:       2,
		MaxRetries:        2,
		ReconcileInterval: 30 * time.Second,
	}
}

func TestService_DemandProvisionsUnits(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scaleToZeroConfig())

	// Two pending replicas and no units: request two.
	h.demand.pending = 2
	h.tick(t)

	require.Equal(t, []int{2}, h.units.published)

	snap := h.svc.Snapshot()
	require.Len(t, snap.Units, 2)
	require.Equal(t, StateProvisioning, snap.Units[0].State)
	require.Equal(t, StateProvisioning, snap.Units[1].State)

	// Units keep provisioning: no re-publish while nothing changed.
	h.advance(30 * time.Second)
	h.tick(t)
	require.Equal(t, []int{2}, h.units.published)

	// The external provisioner supplies both units.
	h.advance(4 * time.Minute)
	h.units.ready = 2
	h.demand.pending = 0
	h.demand.active = 2
	h.tick(t)

	snap = h.svc.Snapshot()
	require.Equal(t, 2, snap.Available)
	require.Equal(t, []int{2}, h.units.published)
}

func TestService_DemandIsCappedAtMaxUnits(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scaleToZeroConfig())

	h.demand.pending = 10
	h.tick(t)

	require.Equal(t, []int{4}, h.units.published)
	require.Len(t, h.svc.Snapshot().Units, 4)
}

func TestService_DemandDropCancelsInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scaleToZeroConfig())

	h.demand.pending = 2
	h.tick(t)
	require.Equal(t, []int{2}, h.units.published)

	// The pending replicas disappeared before any unit arrived.
	h.demand.pending = 0
	h.advance(30 * time.Second)
	h.tick(t)

	require.Equal(t, []int{2, 0}, h.units.published)
	require.Empty(t, h.svc.Snapshot().Units)
}

func TestService_IdleUnitsAreReaped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scaleToZeroConfig())

	h.demand.pending = 1
	h.tick(t)

	h.advance(time.Minute)
	h.units.ready = 1
	h.demand.pending = 0
	h.demand.active = 1
	h.tick(t)
	require.Equal(t, 1, h.svc.Snapshot().Available)

	// The replica goes away; the unit starts its idle clock.
	h.demand.active = 0
	h.advance(time.Minute)
	h.tick(t)
	require.Equal(t, 1, h.svc.Snapshot().Available)

	// Not yet idle long enough.
	h.advance(14 * time.Minute)
	h.tick(t)
	require.Equal(t, 1, h.svc.Snapshot().Available)

	// Past the idle timeout the class scales to zero.
	h.advance(2 * time.Minute)
	h.tick(t)
	require.Empty(t, h.svc.Snapshot().Units)
	require.Equal(t, 0, h.units.published[len(h.units.published)-1])
}

func TestService_MinUnitsFloor(t *testing.T) {
	t.Parallel()

	cfg := scaleToZeroConfig()
	cfg.MinUnits = 2

	h := newHarness(t, cfg)

	// No demand at all still keeps the floor provisioned.
	h.tick(t)
	require.Equal(t, []int{2}, h.units.published)

	h.advance(time.Minute)
	h.units.ready = 2
	h.tick(t)

	// Idle forever: the floor is never reaped.
	h.advance(2 * time.Hour)
	h.tick(t)
	require.Equal(t, 2, h.svc.Snapshot().Available)
}

func TestService_RetryThenDegraded(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scaleToZeroConfig())

	h.demand.pending = 1
	h.tick(t)
	require.Equal(t, []int{1}, h.units.published)

	// First attempt blows through the lead-time deadline (5m × factor 2).
	h.advance(11 * time.Minute)
	h.tick(t)

	snap := h.svc.Snapshot()
	require.Equal(t, StateRequested, snap.Units[0].State)
	require.False(t, h.svc.Degraded())

	// Backoff elapses; the directive is re-published as attempt two.
	h.advance(time.Minute)
	h.tick(t)
	require.Equal(t, StateProvisioning, h.svc.Snapshot().Units[0].State)

	// Second attempt also times out: retry ceiling reached.
	h.advance(11 * time.Minute)
	h.tick(t)

	require.True(t, h.svc.Degraded())
	require.Error(t, h.svc.Ping(t.Context()))
}

func TestService_DegradedClearsOnSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, scaleToZeroConfig())

	h.demand.pending = 1
	h.tick(t)
	h.advance(11 * time.Minute)
	h.tick(t)
	h.advance(time.Minute)
	h.tick(t)
	h.advance(11 * time.Minute)
	h.tick(t)
	require.True(t, h.svc.Degraded())

	// Demand is still there: a fresh unit is requested and finally arrives.
	h.advance(time.Minute)
	h.tick(t)
	h.advance(time.Minute)
	h.units.ready = 1
	h.tick(t)

	require.False(t, h.svc.Degraded())
}

func TestService_TransientErrors(t *testing.T) {
	t.Parallel()

	t.Run("observe error keeps state", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, scaleToZeroConfig())

		h.demand.pending = 1
		h.tick(t)

		h.units.readyErr = errors.New("apiserver unavailable")
		h.advance(30 * time.Second)

		err := h.svc.ReconcileCommand(t.Context())
		require.ErrorIs(t, err, ErrObserveUnits)
		require.Len(t, h.svc.Snapshot().Units, 1)
	})

	t.Run("publish error retries next tick", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, scaleToZeroConfig())

		h.units.publishErr = errors.New("configmap conflict")
		h.demand.pending = 1

		err := h.svc.ReconcileCommand(t.Context())
		require.ErrorIs(t, err, ErrPublishUnits)

		// The unit stays Requested so the directive is not lost.
		require.Equal(t, StateRequested, h.svc.Snapshot().Units[0].State)

		h.units.publishErr = nil
		h.advance(30 * time.Second)
		h.tick(t)

		require.Equal(t, []int{1}, h.units.published)
		require.Equal(t, StateProvisioning, h.svc.Snapshot().Units[0].State)
	})
}
