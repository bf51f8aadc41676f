package fleetconfig

import (
	"fmt"

	"github.com/poolwarden/poolwarden/internal/infra/cronwindow"
)

// Validate checks every entry, applies defaults and returns the pruned
// fleet. An invalid entry is fatal to that entry only: it is dropped with a
// returned error while the rest of the fleet keeps operating. Triggers of a
// dropped pool are dropped with it.
func Validate(f *Fleet) (*Fleet, []error) {
	var errs []error

	out := &Fleet{}

	classes := make(map[string]struct{})

	for _, nc := range f.NodeClasses {
		if err := validateNodeClass(&nc); err != nil {
			errs = append(errs, err)

			continue
		}

		classes[nc.Name] = struct{}{}
		out.NodeClasses = append(out.NodeClasses, nc)
	}

	pools := make(map[string]Pool)

	for _, p := range f.Pools {
		if err := validatePool(&p, classes); err != nil {
			errs = append(errs, err)

			continue
		}

		pools[p.Name] = p
		out.Pools = append(out.Pools, p)
	}

	for _, t := range f.Triggers {
		pool, ok := pools[t.Pool]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: trigger %q: unknown pool %q", ErrConfigInvalid, t.Name, t.Pool))

			continue
		}

		if err := validateTrigger(&t, pool); err != nil {
			errs = append(errs, err)

			continue
		}

		out.Triggers = append(out.Triggers, t)
	}

	return out, errs
}

func validateNodeClass(nc *NodeClass) error {
	switch {
	case nc.Name == "":
		return fmt.Errorf("%w: node-class with empty name", ErrConfigInvalid)
	case nc.Selector == "":
		return fmt.Errorf("%w: node-class %q: empty selector", ErrConfigInvalid, nc.Name)
	case nc.MinUnits < 0:
		return fmt.Errorf("%w: node-class %q: negative minUnits", ErrConfigInvalid, nc.Name)
	case nc.MaxUnits < 1:
		return fmt.Errorf("%w: node-class %q: maxUnits must be at least 1", ErrConfigInvalid, nc.Name)
	case nc.MinUnits > nc.MaxUnits:
		return fmt.Errorf("%w: node-class %q: minUnits %d above maxUnits %d",
			ErrConfigInvalid, nc.Name, nc.MinUnits, nc.MaxUnits)
	}

	if nc.LeadTime <= 0 {
		nc.LeadTime = defaultNodeClassLeadTime
	}

	if nc.IdleTimeout <= 0 {
		nc.IdleTimeout = defaultNodeClassIdle
	}

	if nc.ReconcileInterval <= 0 {
		nc.ReconcileInterval = defaultReconcileInterval
	}

	return nil
}

func validatePool(p *Pool, classes map[string]struct{}) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: pool with empty name", ErrConfigInvalid)
	case p.Deployment == "":
		return fmt.Errorf("%w: pool %q: empty deployment", ErrConfigInvalid, p.Name)
	case p.Selector == "":
		return fmt.Errorf("%w: pool %q: empty selector", ErrConfigInvalid, p.Name)
	case p.MinReplicas < 0:
		return fmt.Errorf("%w: pool %q: negative minReplicas", ErrConfigInvalid, p.Name)
	case p.MaxReplicas < 1:
		return fmt.Errorf("%w: pool %q: maxReplicas must be at least 1", ErrConfigInvalid, p.Name)
	case p.MinReplicas > p.MaxReplicas:
		return fmt.Errorf("%w: pool %q: minReplicas %d above maxReplicas %d",
			ErrConfigInvalid, p.Name, p.MinReplicas, p.MaxReplicas)
	case p.MinAvailable < 0:
		return fmt.Errorf("%w: pool %q: negative minAvailable", ErrConfigInvalid, p.Name)
	case int32(p.MinAvailable) > p.MaxReplicas:
		return fmt.Errorf("%w: pool %q: minAvailable %d above maxReplicas %d",
			ErrConfigInvalid, p.Name, p.MinAvailable, p.MaxReplicas)
	}

	if p.Namespace == "" {
		p.Namespace = "default"
	}

	if p.NodeClass != "" {
		if _, ok := classes[p.NodeClass]; !ok {
			return fmt.Errorf("%w: pool %q: unknown node-class %q", ErrConfigInvalid, p.Name, p.NodeClass)
		}
	}

	return nil
}

func validateTrigger(t *Trigger, pool Pool) error {
	if t.Name == "" {
		return fmt.Errorf("%w: trigger with empty name for pool %q", ErrConfigInvalid, pool.Name)
	}

	// Inherit pool bounds, then require a subset.
	if t.MinReplicas == 0 && t.MaxReplicas == 0 {
		t.MinReplicas = pool.MinReplicas
		t.MaxReplicas = pool.MaxReplicas
	}

	if t.MinReplicas < pool.MinReplicas || t.MaxReplicas > pool.MaxReplicas || t.MinReplicas > t.MaxReplicas {
		return fmt.Errorf("%w: trigger %q: bounds [%d,%d] outside pool %q bounds [%d,%d]",
			ErrConfigInvalid, t.Name, t.MinReplicas, t.MaxReplicas, pool.Name, pool.MinReplicas, pool.MaxReplicas)
	}

	switch t.Kind {
	case KindUtilization:
		if t.Target <= 0 {
			return fmt.Errorf("%w: trigger %q: utilization target must be positive", ErrConfigInvalid, t.Name)
		}

		if t.StabilizationWindow <= 0 {
			t.StabilizationWindow = defaultStabilization
		}

		if t.PollInterval <= 0 {
			t.PollInterval = defaultPollInterval
		}
	case KindExternal:
		if t.Query == "" {
			return fmt.Errorf("%w: trigger %q: external trigger needs a query", ErrConfigInvalid, t.Name)
		}

		if t.Target <= 0 {
			return fmt.Errorf("%w: trigger %q: external threshold must be positive", ErrConfigInvalid, t.Name)
		}

		if t.CooldownPeriod <= 0 {
			t.CooldownPeriod = defaultCooldown
		}

		if t.PollInterval <= 0 {
			t.PollInterval = defaultPollInterval
		}
	case KindSchedule:
		if t.Schedule == "" {
			return fmt.Errorf("%w: trigger %q: schedule trigger needs a cron spec", ErrConfigInvalid, t.Name)
		}

		if _, err := cronwindow.New(t.Schedule, t.TZ, t.WindowDuration); err != nil {
			return fmt.Errorf("%w: trigger %q: %w", ErrConfigInvalid, t.Name, err)
		}

		if t.Floor < t.MinReplicas || t.Floor > t.MaxReplicas {
			return fmt.Errorf("%w: trigger %q: floor %d outside bounds [%d,%d]",
				ErrConfigInvalid, t.Name, t.Floor, t.MinReplicas, t.MaxReplicas)
		}

		if t.PollInterval <= 0 {
			t.PollInterval = defaultSchedulePoll
		}
	default:
		return fmt.Errorf("%w: trigger %q: unknown kind %q", ErrConfigInvalid, t.Name, t.Kind)
	}

	return nil
}
