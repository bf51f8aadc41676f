package arbiter

import "context"

// Directives is the port through which the arbiter emits "pool P desires N
// replicas" to the external workload orchestrator. Implemented by the k8s
// outbound adapter.
type Directives interface {
	ScalePool(ctx context.Context, pool string, replicas int32) error
}
