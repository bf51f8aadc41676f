package capacity

import "context"

// Demand is what the provisioner needs from the fleet registry: pending
// replicas waiting for a unit of this class, and replicas already occupying
// one.
type Demand interface {
	PendingDemand(class string) int
	ActiveOnClass(class string) int
}

// Units is the port to the external node provisioner. The core never places
// replicas on units itself; it publishes a desired unit count and observes
// how many units are actually schedulable.
type Units interface {
	// PublishDesiredUnitsCommand emits "node-class C desires U units".
	PublishDesiredUnitsCommand(ctx context.Context, class string, desired int) error

	// ReadyUnitsQuery returns the number of schedulable units currently
	// supplied for the class.
	ReadyUnitsQuery(ctx context.Context, class string) (int, error)
}
