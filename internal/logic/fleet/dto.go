package fleet

import "time"

// ReplicaState is the lifecycle state of one replica request.
type ReplicaState string

const (
	// StatePending means the replica is requested but not yet placed on a
	// capacity unit; pending replicas are the provisioner's demand signal.
	StatePending ReplicaState = "Pending"

	// StateScheduled means the replica is placed but has not passed its
	// readiness contract.
	StateScheduled ReplicaState = "Scheduled"

	// StateReady means the replica may receive traffic and counts toward the
	// pool's disruption budget.
	StateReady ReplicaState = "Ready"

	// StateTerminating means removal was approved and is in progress.
	StateTerminating ReplicaState = "Terminating"

	// StateGone is terminal; the replica no longer exists.
	StateGone ReplicaState = "Gone"
)

// Readiness is the tri-state health signal reported by the external
// health-check collaborator. The underlying probe protocol is not ours.
type Readiness string

const (
	ReadinessNotReady Readiness = "NotReady"
	ReadinessReady    Readiness = "Ready"

	// ReadinessFailed is terminal for the replica: it triggers a fresh
	// replica request, never an in-place retry.
	ReadinessFailed Readiness = "Failed"
)

// Observation is one replica as seen by the orchestrator at sync time.
type Observation struct {
	ID        string
	Pool      string
	NodeClass string
	Scheduled bool
	Readiness Readiness
}

// Replica is the registry's view of one replica request.
type Replica struct {
	ID             string       `json:"id"`
	Pool           string       `json:"pool"`
	NodeClass      string       `json:"nodeClass"`
	State          ReplicaState `json:"state"`
	LastTransition time.Time    `json:"lastTransition"`
}

// PoolSnapshot is a read-only per-pool view for the status endpoint.
type PoolSnapshot struct {
	Pool     string    `json:"pool"`
	Current  int32     `json:"current"`
	Ready    int       `json:"ready"`
	Replicas []Replica `json:"replicas"`
}
