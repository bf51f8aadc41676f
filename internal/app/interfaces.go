package app

import (
	"context"

	"github.com/poolwarden/poolwarden/internal/infra/shutdown"
	"github.com/poolwarden/poolwarden/internal/logic/capacity"
)

// component is a long-running part of the application: started once,
// shut down once.
type component interface {
	shutdown.Shutdowner
	Start(ctx context.Context) error
}

// classSet exposes every capacity provisioner's snapshot to the ops server.
type classSet struct {
	services []*capacity.Service
}

func (c *classSet) Snapshots() []capacity.ClassStatus {
	out := make([]capacity.ClassStatus, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s.Snapshot())
	}

	return out
}
