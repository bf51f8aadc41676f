package capacity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poolwarden/poolwarden/internal/infra/metrics"
)

type unit struct {
	id          string
	state       UnitState
	attempts    int
	requestedAt time.Time
	nextRetryAt time.Time
	idleSince   time.Time
}

// Service provisions capacity units for one node-class. It converts pending
// replica demand into provision directives and reclaims idle units, never
// exceeding [MinUnits, MaxUnits]. Provisioning is asynchronous: the
// reconcile loop never blocks on an operation in progress, it tracks the
// unit as in-flight and rechecks on the next tick.
type Service struct {
	logger *slog.Logger
	cfg    Config
	demand Demand
	repo   Units
	now    func() time.Time

	mu            sync.Mutex
	tracked       []*unit // oldest first
	seq           int
	degraded      bool
	lastPublished int
	hasPublished  bool

	ready            chan struct{}
	doneCh           chan struct{}
	inShutdown       atomic.Bool
	loopMu           sync.RWMutex
	lastReconcileEnd time.Time
}

// New creates a capacity provisioner for one node-class.
func New(
	logger *slog.Logger,
	cfg Config,
	demand Demand,
	repo Units,
) *Service {
	if cfg.RetryFactor <= 0 {
		cfg.RetryFactor = defaultRetryFactor
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	return &Service{
		logger: logger.With("class", cfg.Class),
		cfg:    cfg,
		demand: demand,
		repo:   repo,
		now:    time.Now,
		ready:  make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "capacity provisioner is shutting down, skipping start")

		return nil
	}

	go s.RunCommand(ctx)

	return nil
}

// Name returns the name of the provisioner component.
func (s *Service) Name() string {
	return "capacity-provisioner-" + s.cfg.Class
}

func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		if s.Degraded() {
			return fmt.Errorf("%w: %s exhausted provisioning retries", ErrClassDegraded, s.cfg.Class)
		}

		age := s.getLastReconcileAge()
		if age > 2*s.cfg.ReconcileInterval {
			return fmt.Errorf("last capacity reconcile was too long ago: %s", age.Round(time.Second).String())
		}

		return nil
	default:
		return fmt.Errorf("capacity provisioner is not ready")
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "capacity provisioner is already shutting down, skipping shutdown")

		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before reconcile loop exited: %w", ctx.Err())
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "capacity reconcile loop exited")
	}

	return nil
}

// RunCommand runs the reconcile loop with the configured interval.
func (s *Service) RunCommand(ctx context.Context) {
	defer close(s.doneCh)

	logger := s.logger.With("controller", "capacity-reconcile")

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	close(s.ready)

	for {
		if err := s.ReconcileCommand(ctx); err != nil {
			logger.ErrorContext(ctx, "capacity reconcile error", "reason", err)
		}

		s.setLastReconcileEnd()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.InfoContext(ctx, "terminating capacity reconcile loop")

			return
		}
	}
}

// ReconcileCommand runs one reconciliation tick.
func (s *Service) ReconcileCommand(ctx context.Context) error {
	observed, err := s.repo.ReadyUnitsQuery(ctx, s.cfg.Class)
	if err != nil {
		// Transient: keep tracked state, recheck next tick.
		return fmt.Errorf("%w: %w", ErrObserveUnits, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pending := s.demand.PendingDemand(s.cfg.Class)
	allocated := s.demand.ActiveOnClass(s.cfg.Class)

	s.observeReady(ctx, observed, now)
	s.retryOverdue(ctx, now)
	s.reconcileDemand(ctx, pending, allocated, now)
	s.reapIdle(ctx, allocated, now)
	s.ensureFloor(now)

	err = s.publish(ctx, now)

	s.publishMetrics()

	return err
}

// observeReady converges tracked unit states with the externally observed
// ready count: in-flight units become Available as the external provisioner
// supplies them, and units withdrawn externally are dropped.
func (s *Service) observeReady(ctx context.Context, observed int, now time.Time) {
	avail := s.countAvailable()

	for observed > avail {
		next := s.oldestInFlight()
		if next == nil {
			break
		}

		next.state = StateAvailable
		next.idleSince = time.Time{}
		avail++

		if s.degraded {
			s.degraded = false
			metrics.SetCapacityDegraded(s.cfg.Class, false)
		}

		s.logger.InfoContext(ctx, "capacity unit available",
			"unit", next.id,
			"elapsed", now.Sub(next.requestedAt).Round(time.Second),
		)
	}

	for observed < avail {
		lost := s.newestAvailable()
		if lost == nil {
			break
		}

		s.remove(lost.id)
		avail--

		s.logger.WarnContext(ctx, "capacity unit lost externally", "unit", lost.id)
	}
}

// retryOverdue retries provisioning attempts that exceeded the lead-time
// deadline, with exponential backoff, until the retry ceiling marks the
// class degraded.
func (s *Service) retryOverdue(ctx context.Context, now time.Time) {
	deadline := time.Duration(float64(s.cfg.LeadTimeEstimate) * s.cfg.RetryFactor)

	for _, u := range s.snapshotUnits() {
		if u.state != StateProvisioning || now.Sub(u.requestedAt) <= deadline {
			continue
		}

		if u.attempts >= s.cfg.MaxRetries {
			s.degraded = true
			metrics.SetCapacityDegraded(s.cfg.Class, true)
			s.remove(u.id)

			s.logger.ErrorContext(ctx, "node-class degraded: provisioning retry ceiling reached",
				"unit", u.id,
				"attempts", u.attempts,
			)

			continue
		}

		u.state = StateRequested
		u.nextRetryAt = now.Add(backoff(u.attempts))
		metrics.RecordProvisionRetry(s.cfg.Class)

		s.logger.WarnContext(ctx, "provisioning attempt timed out, will retry",
			"unit", u.id,
			"attempts", u.attempts,
			"nextRetry", u.nextRetryAt,
		)
	}
}

// reconcileDemand sizes the in-flight set against pending replica demand.
// New demand beyond free units requests more capacity; a demand drop cancels
// in-flight provisions but never touches available units in use.
func (s *Service) reconcileDemand(ctx context.Context, pending, allocated int, now time.Time) {
	avail := s.countAvailable()

	free := avail - allocated
	if free < 0 {
		free = 0
	}

	inFlight := len(s.tracked) - avail
	need := pending - free - inFlight

	for need > 0 && len(s.tracked) < s.cfg.MaxUnits {
		u := s.addUnit(now)
		need--

		s.logger.InfoContext(ctx, "capacity unit requested",
			"unit", u.id,
			"pendingDemand", pending,
		)
	}

	for need < 0 && inFlight > 0 && len(s.tracked) > s.cfg.MinUnits {
		victim := s.newestInFlight()
		if victim == nil {
			break
		}

		s.remove(victim.id)
		inFlight--
		need++

		s.logger.InfoContext(ctx, "pending provision canceled, demand dropped", "unit", victim.id)
	}
}

// reapIdle deprovisions units that carried zero replicas for longer than the
// idle timeout, never below MinUnits. With MinUnits 0 the class converges to
// zero units and the next demand pays the full lead time. Replicas are bound
// oldest-unit-first, so only units beyond the allocated count are idle and a
// reaped unit is guaranteed empty.
func (s *Service) reapIdle(ctx context.Context, allocated int, now time.Time) {
	busy := allocated

	for _, u := range s.snapshotUnits() {
		if u.state != StateAvailable {
			continue
		}

		if busy > 0 {
			busy--
			u.idleSince = time.Time{}

			continue
		}

		if u.idleSince.IsZero() {
			u.idleSince = now

			continue
		}

		if now.Sub(u.idleSince) >= s.cfg.IdleTimeout && len(s.tracked) > s.cfg.MinUnits {
			s.remove(u.id)

			s.logger.InfoContext(ctx, "idle capacity unit deprovisioned",
				"unit", u.id,
				"idleFor", now.Sub(u.idleSince).Round(time.Second),
			)
		}
	}
}

func (s *Service) ensureFloor(now time.Time) {
	for len(s.tracked) < s.cfg.MinUnits {
		s.addUnit(now)
	}
}

// publish emits the desired unit count when it changed or when requested
// units are due. Requested units move to Provisioning only after a
// successful publish, so a failed directive is retried next tick and never
// silently dropped.
func (s *Service) publish(ctx context.Context, now time.Time) error {
	desired := len(s.tracked)

	var due []*unit

	for _, u := range s.tracked {
		if u.state == StateRequested && !u.nextRetryAt.After(now) {
			due = append(due, u)
		}
	}

	if s.hasPublished && desired == s.lastPublished && len(due) == 0 {
		return nil
	}

	if err := s.repo.PublishDesiredUnitsCommand(ctx, s.cfg.Class, desired); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishUnits, err)
	}

	s.lastPublished = desired
	s.hasPublished = true

	for _, u := range due {
		u.state = StateProvisioning
		u.requestedAt = now
		u.attempts++
	}

	return nil
}

// Degraded reports whether the class exhausted its provisioning retries.
func (s *Service) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.degraded
}

// Snapshot returns the class status for the ops endpoint.
func (s *Service) Snapshot() ClassStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := ClassStatus{
		Class:    s.cfg.Class,
		MinUnits: s.cfg.MinUnits,
		MaxUnits: s.cfg.MaxUnits,
		Degraded: s.degraded,
		Units:    make([]UnitView, 0, len(s.tracked)),
	}

	for _, u := range s.tracked {
		st.Units = append(st.Units, UnitView{
			ID:          u.id,
			State:       u.state,
			Attempts:    u.attempts,
			RequestedAt: u.requestedAt,
			IdleSince:   u.idleSince,
		})

		if u.state == StateAvailable {
			st.Available++
		} else {
			st.Pending++
		}
	}

	return st
}

func (s *Service) addUnit(now time.Time) *unit {
	s.seq++
	u := &unit{
		id:          fmt.Sprintf("%s-%d", s.cfg.Class, s.seq),
		state:       StateRequested,
		nextRetryAt: now,
	}
	s.tracked = append(s.tracked, u)

	return u
}

func (s *Service) remove(id string) {
	for i, u := range s.tracked {
		if u.id == id {
			s.tracked = append(s.tracked[:i], s.tracked[i+1:]...)

			return
		}
	}
}

// snapshotUnits copies the slice header so removal during iteration is safe.
func (s *Service) snapshotUnits() []*unit {
	return append([]*unit(nil), s.tracked...)
}

func (s *Service) countAvailable() int {
	n := 0
	for _, u := range s.tracked {
		if u.state == StateAvailable {
			n++
		}
	}

	return n
}

func (s *Service) oldestInFlight() *unit {
	for _, u := range s.tracked {
		if u.state != StateAvailable {
			return u
		}
	}

	return nil
}

func (s *Service) newestInFlight() *unit {
	for i := len(s.tracked) - 1; i >= 0; i-- {
		if s.tracked[i].state != StateAvailable {
			return s.tracked[i]
		}
	}

	return nil
}

func (s *Service) newestAvailable() *unit {
	for i := len(s.tracked) - 1; i >= 0; i-- {
		if s.tracked[i].state == StateAvailable {
			return s.tracked[i]
		}
	}

	return nil
}

func (s *Service) publishMetrics() {
	counts := map[UnitState]int{}
	for _, u := range s.tracked {
		counts[u.state]++
	}

	for _, st := range []UnitState{StateRequested, StateProvisioning, StateAvailable} {
		metrics.SetNodeClassUnits(s.cfg.Class, string(st), counts[st])
	}
}

func (s *Service) getLastReconcileAge() time.Duration {
	s.loopMu.RLock()
	defer s.loopMu.RUnlock()

	return time.Since(s.lastReconcileEnd)
}

func (s *Service) setLastReconcileEnd() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	s.lastReconcileEnd = time.Now()
}

func backoff(attempts int) time.Duration {
	d := retryBackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryBackoffMax {
			return retryBackoffMax
		}
	}

	return d
}
