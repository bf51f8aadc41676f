package capacity

import "time"

// UnitState is the provisioning state of one capacity unit.
type UnitState string

const (
	// StateRequested means the unit is wanted but the provision directive has
	// not been acknowledged yet (or is waiting out a retry backoff).
	StateRequested UnitState = "Requested"

	// StateProvisioning means the directive was published and the unit is
	// expected to become schedulable within the lead time estimate.
	StateProvisioning UnitState = "Provisioning"

	// StateAvailable means the unit is observed ready and can carry exactly
	// one replica of the class's scarce resource.
	StateAvailable UnitState = "Available"
)

// Config describes one node-class: a category of physical capacity gated by
// a scarce, exclusive resource.
type Config struct {
	Class string

	MinUnits int
	MaxUnits int

	// LeadTimeEstimate is the expected latency between requesting a unit and
	// its availability. A class with MinUnits 0 scales fully to zero and the
	// next demand pays this cost in full.
	LeadTimeEstimate time.Duration

	// IdleTimeout is how long a unit must carry zero replicas before it is
	// deprovisioned.
	IdleTimeout time.Duration

	// RetryFactor scales LeadTimeEstimate into the per-attempt provisioning
	// deadline.
	RetryFactor float64

	// MaxRetries is the ceiling after which the class is marked degraded.
	MaxRetries int

	ReconcileInterval time.Duration
}

// UnitView is a read-only view of one tracked unit.
type UnitView struct {
	ID          string    `json:"id"`
	State       UnitState `json:"state"`
	Attempts    int       `json:"attempts"`
	RequestedAt time.Time `json:"requestedAt"`
	IdleSince   time.Time `json:"idleSince,omitzero"`
}

// ClassStatus is a snapshot of one node-class for the status endpoint.
type ClassStatus struct {
	Class     string     `json:"class"`
	MinUnits  int        `json:"minUnits"`
	MaxUnits  int        `json:"maxUnits"`
	Available int        `json:"available"`
	Pending   int        `json:"pending"`
	Degraded  bool       `json:"degraded"`
	Units     []UnitView `json:"units"`
}
