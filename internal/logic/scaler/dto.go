package scaler

import (
	"time"

	"github.com/poolwarden/poolwarden/internal/logic/signal"
)

// Config binds one signal source to one pool with the trigger's own
// stabilization policy. Bounds must be a subset of the pool's bounds; that is
// enforced at configuration load, not here.
type Config struct {
	Pool    string
	Trigger string
	Kind    signal.Kind

	// Target is the signal value at which the current replica count is
	// considered exactly right (utilization ratio or external threshold).
	Target float64

	MinReplicas int32
	MaxReplicas int32

	// StabilizationWindow holds scale-down at the highest desired value seen
	// over the trailing window. Zero disables the window.
	StabilizationWindow time.Duration

	// CooldownPeriod allows a decrease only after the signal stayed below
	// Target continuously for the full duration. Zero disables the gate.
	CooldownPeriod time.Duration

	// ScheduleFloor is the replica floor voted while a schedule-kind signal
	// reports in-window.
	ScheduleFloor int32
}
