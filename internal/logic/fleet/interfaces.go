package fleet

import "context"

// Repository is the port for observing and replacing replicas. Implemented by
// the k8s outbound adapter.
type Repository interface {
	// ListReplicasQuery returns every replica currently known to the
	// orchestrator across all managed pools.
	ListReplicasQuery(ctx context.Context) ([]Observation, error)

	// ReplaceReplicaCommand asks the orchestrator to tear down a failed
	// replica so its controller creates a fresh one.
	ReplaceReplicaCommand(ctx context.Context, pool, id string) error
}

// notFound is a private interface for checking "not found" errors without
// importing the adapter package.
type notFound interface {
	IsNotFound()
}
