// Package fleetconfig loads the declarative fleet definition: which pools
// exist, which triggers scale them and which node-classes supply capacity.
package fleetconfig

import "time"

// Pool declares one replica pool scaled as a unit.
type Pool struct {
	Name      string `mapstructure:"name"`
	Namespace string `mapstructure:"namespace"`

	// Deployment is the orchestrator workload that receives scale directives.
	Deployment string `mapstructure:"deployment"`

	// Selector matches the pool's replicas (pods).
	Selector string `mapstructure:"selector"`

	// NodeClass names the capacity class the pool's replicas require; empty
	// for pools schedulable on general capacity (e.g. the proxy tier).
	NodeClass string `mapstructure:"nodeClass"`

	MinReplicas int32 `mapstructure:"minReplicas"`
	MaxReplicas int32 `mapstructure:"maxReplicas"`

	// MinAvailable is the pool's disruption budget: ready replicas never drop
	// below this during voluntary removal.
	MinAvailable int `mapstructure:"minAvailable"`
}

// Trigger declares one scaling trigger bound to one pool.
type Trigger struct {
	Name string `mapstructure:"name"`
	Pool string `mapstructure:"pool"`

	// Kind: utilization, external or schedule.
	Kind string `mapstructure:"kind"`

	// Target is the signal value at which the pool is correctly sized.
	Target float64 `mapstructure:"target"`

	// Query is the PromQL expression for external triggers.
	Query string `mapstructure:"query"`

	// Schedule fields, used by schedule triggers only.
	Schedule       string        `mapstructure:"schedule"`
	TZ             string        `mapstructure:"tz"`
	WindowDuration time.Duration `mapstructure:"windowDuration"`
	Floor          int32         `mapstructure:"floor"`

	// MinReplicas/MaxReplicas override the pool bounds for this trigger and
	// must be a subset of them; zero values inherit the pool's.
	MinReplicas int32 `mapstructure:"minReplicas"`
	MaxReplicas int32 `mapstructure:"maxReplicas"`

	PollInterval        time.Duration `mapstructure:"pollInterval"`
	StabilizationWindow time.Duration `mapstructure:"stabilizationWindow"`
	CooldownPeriod      time.Duration `mapstructure:"cooldownPeriod"`
}

// NodeClass declares one class of physical capacity units.
type NodeClass struct {
	Name string `mapstructure:"name"`

	// Selector matches the nodes supplying this class.
	Selector string `mapstructure:"selector"`

	MinUnits int `mapstructure:"minUnits"`
	MaxUnits int `mapstructure:"maxUnits"`

	LeadTime    time.Duration `mapstructure:"leadTime"`
	IdleTimeout time.Duration `mapstructure:"idleTimeout"`

	RetryFactor float64 `mapstructure:"retryFactor"`
	MaxRetries  int     `mapstructure:"maxRetries"`

	ReconcileInterval time.Duration `mapstructure:"reconcileInterval"`
}

// Fleet is the full declarative configuration.
type Fleet struct {
	Pools       []Pool      `mapstructure:"pools"`
	Triggers    []Trigger   `mapstructure:"triggers"`
	NodeClasses []NodeClass `mapstructure:"nodeClasses"`
}

// PoolByName returns the named pool.
func (f *Fleet) PoolByName(name string) (Pool, bool) {
	for _, p := range f.Pools {
		if p.Name == name {
			return p, true
		}
	}

	return Pool{}, false
}

const (
	KindUtilization = "utilization"
	KindExternal    = "external"
	KindSchedule    = "schedule"
)

// Defaults applied during validation.
const (
	defaultPollInterval      = 15 * time.Second
	defaultSchedulePoll      = 30 * time.Second
	defaultStabilization     = 5 * time.Minute
	defaultCooldown          = 5 * time.Minute
	defaultReconcileInterval = 30 * time.Second
	defaultNodeClassLeadTime = 5 * time.Minute
	defaultNodeClassIdle     = 15 * time.Minute
)
