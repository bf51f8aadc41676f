// Package health periodically pings registered components and aggregates the
// results for the liveness endpoint and the status page.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const pingTimeout = 1 * time.Second

// Pinger is implemented by every long-running component that wants to be
// health-checked.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// readier is optionally implemented by pingers with a startup phase; they
// are not checked until their ready channel closes.
type readier interface {
	Ready() <-chan struct{}
}

// Status is the last observed health of one component.
type Status struct {
	Healthy   bool          `json:"healthy"`
	CheckedAt time.Time     `json:"checkedAt"`
	Latency   time.Duration `json:"latency"`
	LastError string        `json:"lastError,omitempty"`
}

// Registry pings every registered component on a fixed interval.
type Registry struct {
	logger   *slog.Logger
	interval time.Duration

	mu       sync.RWMutex
	pingers  []Pinger
	statuses map[string]Status

	ready      chan struct{}
	doneCh     chan struct{}
	inShutdown atomic.Bool
}

// New creates an empty health registry.
func New(logger *slog.Logger, interval time.Duration) *Registry {
	return &Registry{
		logger:   logger,
		interval: interval,
		statuses: make(map[string]Status),
		ready:    make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Register adds a component. Duplicate names are rejected.
func (r *Registry) Register(p Pinger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.pingers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("pinger %q already registered", p.Name())
		}
	}

	r.pingers = append(r.pingers, p)

	return nil
}

func (r *Registry) Start(ctx context.Context) error {
	if r.inShutdown.Load() {
		r.logger.InfoContext(ctx, "health registry is shutting down, skipping start")

		return nil
	}

	go r.RunCommand(ctx)

	return nil
}

// Name returns the name of the registry component.
func (r *Registry) Name() string {
	return "health-registry"
}

func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

func (r *Registry) Shutdown(ctx context.Context) error {
	if !r.inShutdown.CompareAndSwap(false, true) {
		r.logger.ErrorContext(ctx, "health registry is already shutting down, skipping shutdown")

		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before health loop exited: %w", ctx.Err())
	case <-r.doneCh:
		r.logger.InfoContext(ctx, "health loop exited")
	}

	return nil
}

// RunCommand runs the check loop with the configured interval.
func (r *Registry) RunCommand(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	close(r.ready)

	for {
		r.CheckCommand(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "terminating health loop")

			return
		}
	}
}

// CheckCommand pings every registered component once.
func (r *Registry) CheckCommand(ctx context.Context) {
	r.mu.RLock()
	pingers := append([]Pinger(nil), r.pingers...)
	r.mu.RUnlock()

	for _, p := range pingers {
		if r, ok := p.(readier); ok && !isReady(r) {
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		start := time.Now()
		err := p.Ping(pingCtx)
		cancel()

		st := Status{
			Healthy:   err == nil,
			CheckedAt: time.Now(),
			Latency:   time.Since(start),
		}
		if err != nil {
			st.LastError = err.Error()

			r.logger.WarnContext(ctx, "component ping failed",
				"component", p.Name(),
				"reason", err,
			)
		}

		r.mu.Lock()
		r.statuses[p.Name()] = st
		r.mu.Unlock()
	}
}

func isReady(r readier) bool {
	select {
	case <-r.Ready():
		return true
	default:
		return false
	}
}

// Healthy reports whether every checked component is healthy. Components not
// yet checked do not count against health.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, st := range r.statuses {
		if !st.Healthy {
			return false
		}
	}

	return true
}

// AllStatuses returns a copy of the last check results.
func (r *Registry) AllStatuses() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Status, len(r.statuses))
	for name, st := range r.statuses {
		out[name] = st
	}

	return out
}
