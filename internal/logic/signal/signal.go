package signal

import "time"

// Kind classifies a signal source by how its readings relate to load.
type Kind string

const (
	// KindUtilization is a lagging signal: a resource usage ratio that rises
	// only after load has already built up (e.g. GPU or CPU saturation).
	KindUtilization Kind = "utilization"

	// KindExternal is a leading signal queried from an external metrics
	// system (e.g. queue depth, pending requests).
	KindExternal Kind = "external"

	// KindSchedule is a time-based signal that raises a pool's floor during
	// configured cron windows.
	KindSchedule Kind = "schedule"
)

// Reading is a single scalar observation. Readings are immutable snapshots;
// consumers never mutate them.
type Reading struct {
	Value float64
	At    time.Time
}
