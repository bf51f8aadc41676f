package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poolwarden/poolwarden/internal/infra/metrics"
)

// Syncer keeps the registry converged with the orchestrator's view by
// polling it on a fixed cadence. Failed replicas are replaced through the
// repository: terminal for the replica, never an in-place retry.
type Syncer struct {
	logger      *slog.Logger
	repo        Repository
	registry    *Registry
	interval    time.Duration
	ready       chan struct{}
	doneCh      chan struct{}
	inShutdown  atomic.Bool
	mu          sync.RWMutex
	lastSyncEnd time.Time
}

// NewSyncer creates a fleet syncer.
func NewSyncer(
	logger *slog.Logger,
	repo Repository,
	registry *Registry,
	interval time.Duration,
) *Syncer {
	return &Syncer{
		logger:   logger,
		repo:     repo,
		registry: registry,
		interval: interval,
		ready:    make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Syncer) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "fleet syncer is shutting down, skipping start")

		return nil
	}

	go s.RunCommand(ctx)

	return nil
}

// Name returns the name of the syncer component.
func (s *Syncer) Name() string {
	return "fleet-syncer"
}

func (s *Syncer) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		age := s.getLastSyncAge()
		if age > 2*s.interval {
			return fmt.Errorf("last fleet sync was too long ago: %s", age.Round(time.Second).String())
		}

		return nil
	default:
		return fmt.Errorf("fleet syncer is not ready")
	}
}

func (s *Syncer) Ready() <-chan struct{} {
	return s.ready
}

func (s *Syncer) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "fleet syncer is already shutting down, skipping shutdown")

		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before sync loop exited: %w", ctx.Err())
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "fleet sync loop exited")
	}

	return nil
}

// RunCommand runs the sync loop with the configured interval.
func (s *Syncer) RunCommand(ctx context.Context) {
	defer close(s.doneCh)

	logger := s.logger.With("controller", "fleet-sync")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	close(s.ready)

	for {
		if err := s.SyncCommand(ctx); err != nil {
			logger.ErrorContext(ctx, "fleet sync error", "reason", err)
		}

		s.setLastSyncEnd()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.InfoContext(ctx, "terminating fleet sync loop")

			return
		}
	}
}

// SyncCommand runs one reconciliation of the registry against the
// orchestrator's replica list.
func (s *Syncer) SyncCommand(ctx context.Context) error {
	observations, err := s.repo.ListReplicasQuery(ctx)
	if err != nil {
		return fmt.Errorf("list replicas: %w", err)
	}

	failed := s.registry.apply(observations)

	for _, rep := range failed {
		if err := s.replaceCommand(ctx, rep); err != nil {
			s.logger.ErrorContext(ctx, "replace failed replica",
				"pool", rep.Pool,
				"replica", rep.ID,
				"reason", err,
			)
		}
	}

	return nil
}

func (s *Syncer) replaceCommand(ctx context.Context, rep Replica) error {
	err := s.repo.ReplaceReplicaCommand(ctx, rep.Pool, rep.ID)
	if err != nil {
		var target notFound
		if errors.As(err, &target) {
			// Already gone; the next sync drops it.
			return nil
		}

		return fmt.Errorf("replace replica: %w", err)
	}

	metrics.RecordReplicaReplaced(rep.Pool)

	s.logger.InfoContext(ctx, "failed replica replaced",
		"pool", rep.Pool,
		"replica", rep.ID,
	)

	return nil
}

func (s *Syncer) getLastSyncAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return time.Since(s.lastSyncEnd)
}

func (s *Syncer) setLastSyncEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSyncEnd = time.Now()
}
