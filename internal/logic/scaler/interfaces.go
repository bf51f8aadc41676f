package scaler

import "context"

// VoteSink receives desired-replica votes. The arbiter is the only
// implementation outside of tests.
type VoteSink interface {
	Submit(ctx context.Context, pool, trigger string, vote int32) error
}

// ReplicaCounter reports the observed replica count of a pool. Implemented by
// the fleet registry; the scaler only reads snapshots.
type ReplicaCounter interface {
	CurrentReplicas(pool string) (int32, bool)
}
