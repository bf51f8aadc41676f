package httpserver

import (
	"context"
	"time"

	"github.com/poolwarden/poolwarden/internal/infra/appstate"
	"github.com/poolwarden/poolwarden/internal/infra/health"
	"github.com/poolwarden/poolwarden/internal/logic/arbiter"
	"github.com/poolwarden/poolwarden/internal/logic/capacity"
	"github.com/poolwarden/poolwarden/internal/logic/disruption"
	"github.com/poolwarden/poolwarden/internal/logic/fleet"
)

// appstater is an internal interface for application state management
type appstater interface {
	GetState() appstate.State
	IsHealthy() bool
	IsReady() bool
	GetUptime() time.Duration
	GetStartTime() time.Time
}

type healthStats interface {
	AllStatuses() map[string]health.Status
}

type poolViewer interface {
	Snapshot() []arbiter.PoolStatus
}

type fleetViewer interface {
	Snapshot() []fleet.PoolSnapshot
}

type capacityViewer interface {
	Snapshots() []capacity.ClassStatus
}

type remover interface {
	RequestRemoval(ctx context.Context, pool, replica string) (bool, disruption.Verdict, error)
}
