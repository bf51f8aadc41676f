package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/poolwarden/poolwarden/internal/infra/health"
	"github.com/poolwarden/poolwarden/internal/logic/arbiter"
	"github.com/poolwarden/poolwarden/internal/logic/capacity"
	"github.com/poolwarden/poolwarden/internal/logic/fleet"
)

type statusResponse struct {
	State      string                   `json:"state"`
	Uptime     string                   `json:"uptime"`
	StartTime  time.Time                `json:"startTime"`
	UptimeSec  float64                  `json:"uptimeSeconds"`
	Components map[string]health.Status `json:"components"`
}

type poolsResponse struct {
	Arbitration []arbiter.PoolStatus `json:"arbitration"`
	Replicas    []fleet.PoolSnapshot `json:"replicas"`
}

type removalResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := s.appState.GetUptime()

	s.writeJSON(w, r, http.StatusOK, statusResponse{
		State:      string(s.appState.GetState()),
		Uptime:     uptime.String(),
		StartTime:  s.appState.GetStartTime(),
		UptimeSec:  uptime.Seconds(),
		Components: s.healthReg.AllStatuses(),
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, poolsResponse{
		Arbitration: s.pools.Snapshot(),
		Replicas:    s.fleet.Snapshot(),
	})
}

func (s *Server) handleNodeClasses(w http.ResponseWriter, r *http.Request) {
	snapshots := s.capacity.Snapshots()
	if snapshots == nil {
		snapshots = []capacity.ClassStatus{}
	}

	s.writeJSON(w, r, http.StatusOK, snapshots)
}

// handleRemoval gates a drain/eviction request through the disruption
// guard. 429 means "blocked, retry later": backpressure, not an error.
func (s *Server) handleRemoval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pool := chi.URLParam(r, "pool")
	replica := chi.URLParam(r, "replica")

	allowed, verdict, err := s.remover.RequestRemoval(ctx, pool, replica)
	if err != nil {
		s.logger.ErrorContext(ctx, "removal request failed",
			"pool", pool,
			"replica", replica,
			"reason", err,
		)

		s.writeJSON(w, r, http.StatusInternalServerError, removalResponse{
			Allowed: false,
			Reason:  "internal error",
		})

		return
	}

	if !allowed {
		s.writeJSON(w, r, http.StatusTooManyRequests, removalResponse{
			Allowed: false,
			Reason:  string(verdict),
		})

		return
	}

	s.writeJSON(w, r, http.StatusOK, removalResponse{Allowed: true})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
