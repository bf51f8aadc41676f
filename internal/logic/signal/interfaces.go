package signal

import "context"

// Source abstracts one measurable quantity. Implementations are provided by
// outbound adapters (metrics.k8s.io usage ratios, Prometheus scalar queries,
// cron windows).
type Source interface {
	// Name identifies the owning trigger; used for logging and metrics.
	Name() string

	// Kind reports how readings from this source behave (lagging/leading).
	Kind() Kind

	// Query returns the current scalar value. It must return an error on
	// transient unavailability instead of a stale or zero value.
	Query(ctx context.Context) (Reading, error)
}

// Sink consumes readings from a poller. The pool scaler is the only
// implementation outside of tests.
type Sink interface {
	Observe(ctx context.Context, r Reading)
}
