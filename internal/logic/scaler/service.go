package scaler

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/poolwarden/poolwarden/internal/infra/metrics"
	"github.com/poolwarden/poolwarden/internal/logic/signal"
)

// keepSamples bounds the stabilization history independently of the window so
// a burst of fast polls cannot grow it without limit.
const keepSamples = 512

type sample struct {
	value int32
	at    time.Time
}

// PoolScaler converts readings from one signal into desired-replica votes for
// one pool. Scale-up applies immediately; scale-down is held by the
// stabilization window and, for gated triggers, by the cooldown period.
type PoolScaler struct {
	logger   *slog.Logger
	cfg      Config
	votes    VoteSink
	replicas ReplicaCounter

	mu         sync.Mutex
	history    []sample
	belowSince time.Time
	lastVote   int32
	hasVote    bool
}

// New creates a pool scaler. The config is assumed validated.
func New(
	logger *slog.Logger,
	cfg Config,
	votes VoteSink,
	replicas ReplicaCounter,
) *PoolScaler {
	return &PoolScaler{
		logger:   logger.With("pool", cfg.Pool, "trigger", cfg.Trigger),
		cfg:      cfg,
		votes:    votes,
		replicas: replicas,
	}
}

var _ signal.Sink = (*PoolScaler)(nil)

// Observe consumes one reading and submits a vote when it differs from the
// trigger's held vote. Pollers never call Observe on a failed query, so a
// stale vote simply keeps its last value.
func (s *PoolScaler) Observe(ctx context.Context, r signal.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.clamp(s.rawVote(r))
	vote := raw

	if s.cfg.StabilizationWindow > 0 {
		vote = s.heldMax(raw, r.At)
	}

	if s.cfg.CooldownPeriod > 0 {
		vote = s.cooldownGate(vote, r)
	}

	if s.hasVote && vote == s.lastVote {
		return
	}

	s.logger.DebugContext(ctx, "vote changed",
		"value", r.Value,
		"target", s.cfg.Target,
		"raw", raw,
		"vote", vote,
	)

	if err := s.votes.Submit(ctx, s.cfg.Pool, s.cfg.Trigger, vote); err != nil {
		// Leave lastVote untouched so the next reading resubmits.
		s.logger.ErrorContext(ctx, "submit vote", "vote", vote, "reason", err)

		return
	}

	metrics.SetTriggerVote(s.cfg.Pool, s.cfg.Trigger, vote)

	s.lastVote = vote
	s.hasVote = true
}

// rawVote computes ceil(current × value/target) for proportional triggers and
// the configured floor for schedule triggers.
func (s *PoolScaler) rawVote(r signal.Reading) int32 {
	if s.cfg.Kind == signal.KindSchedule {
		if r.Value >= 1 {
			return s.cfg.ScheduleFloor
		}

		return s.cfg.MinReplicas
	}

	current, ok := s.replicas.CurrentReplicas(s.cfg.Pool)
	if !ok || current < 1 {
		// Scale from zero: size the first step as if one replica existed.
		current = 1
	}

	return int32(math.Ceil(float64(current) * r.Value / s.cfg.Target))
}

func (s *PoolScaler) clamp(v int32) int32 {
	if v < s.cfg.MinReplicas {
		return s.cfg.MinReplicas
	}

	if v > s.cfg.MaxReplicas {
		return s.cfg.MaxReplicas
	}

	return v
}

// heldMax records the raw value and returns the maximum raw value observed
// over the trailing stabilization window. An increase therefore applies
// immediately, while a decrease waits until earlier highs age out.
func (s *PoolScaler) heldMax(raw int32, at time.Time) int32 {
	cutoff := at.Add(-s.cfg.StabilizationWindow)

	kept := s.history[:0]
	for _, smp := range s.history {
		if smp.at.After(cutoff) {
			kept = append(kept, smp)
		}
	}

	s.history = append(kept, sample{value: raw, at: at})
	if len(s.history) > keepSamples {
		s.history = s.history[len(s.history)-keepSamples:]
	}

	held := raw
	for _, smp := range s.history {
		if smp.value > held {
			held = smp.value
		}
	}

	return held
}

// cooldownGate blocks a decrease until the signal has stayed below target
// continuously for the full cooldown period. Any reading at or above target
// resets the clock.
func (s *PoolScaler) cooldownGate(vote int32, r signal.Reading) int32 {
	if r.Value >= s.cfg.Target {
		s.belowSince = time.Time{}
	} else if s.belowSince.IsZero() {
		s.belowSince = r.At
	}

	if !s.hasVote || vote >= s.lastVote {
		return vote
	}

	if s.belowSince.IsZero() || r.At.Sub(s.belowSince) < s.cfg.CooldownPeriod {
		return s.lastVote
	}

	return vote
}
