package signal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poolwarden/poolwarden/internal/infra/metrics"
)

// Poller runs one polling loop for one source at its own interval. Pollers
// are independent: a stalled query on one source never delays another.
type Poller struct {
	logger      *slog.Logger
	source      Source
	sink        Sink
	interval    time.Duration
	ready       chan struct{}
	doneCh      chan struct{}
	inShutdown  atomic.Bool
	mu          sync.RWMutex
	lastPollEnd time.Time
}

// NewPoller creates a poller for the given source and sink.
func NewPoller(
	logger *slog.Logger,
	source Source,
	sink Sink,
	interval time.Duration,
) *Poller {
	return &Poller{
		logger:   logger,
		source:   source,
		sink:     sink,
		interval: interval,
		ready:    make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	if p.inShutdown.Load() {
		p.logger.InfoContext(ctx, "poller is shutting down, skipping start", "trigger", p.source.Name())

		return nil
	}

	go p.RunCommand(ctx)

	return nil
}

// Name returns the name of the poller component.
func (p *Poller) Name() string {
	return "signal-poller-" + p.source.Name()
}

func (p *Poller) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ready:
		age := p.getLastPollAge()
		if age > 2*p.interval {
			return fmt.Errorf("last poll was too long ago: %s", age.Round(time.Second).String())
		}

		return nil
	default:
		return fmt.Errorf("signal poller is not ready")
	}
}

func (p *Poller) Ready() <-chan struct{} {
	return p.ready
}

func (p *Poller) Shutdown(ctx context.Context) error {
	if !p.inShutdown.CompareAndSwap(false, true) {
		p.logger.ErrorContext(ctx, "poller is already shutting down, skipping shutdown", "trigger", p.source.Name())

		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before poll loop exited: %w", ctx.Err())
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "poll loop exited", "trigger", p.source.Name())
	}

	return nil
}

// RunCommand runs the polling loop with the configured interval.
func (p *Poller) RunCommand(ctx context.Context) {
	defer close(p.doneCh)

	logger := p.logger.With("trigger", p.source.Name(), "kind", string(p.source.Kind()))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	close(p.ready)

	for {
		p.PollCommand(ctx, logger)
		p.setLastPollEnd()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.InfoContext(ctx, "terminating poll loop")

			return
		}
	}
}

// PollCommand runs one query and forwards the reading to the sink. A query
// failure emits no reading: the scaler keeps its last vote and the pool holds
// its last arbiter-computed value.
func (p *Poller) PollCommand(ctx context.Context, logger *slog.Logger) {
	reading, err := p.source.Query(ctx)
	if err != nil {
		metrics.RecordSignalUnavailable(p.source.Name())
		logger.WarnContext(ctx, "signal unavailable, no vote emitted", "reason", err)

		return
	}

	p.sink.Observe(ctx, reading)
}

func (p *Poller) getLastPollAge() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.lastPollEnd)
}

func (p *Poller) setLastPollEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastPollEnd = time.Now()
}
