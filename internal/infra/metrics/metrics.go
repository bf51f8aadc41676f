package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var signalUnavailableTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "poolwarden_signal_unavailable_total",
		Help: "Total number of signal polls that failed; no vote is emitted and the pool holds its last desired value.",
	},
	[]string{"trigger"},
)

var triggerVote = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "poolwarden_trigger_vote_replicas",
		Help: "Current desired-replica vote held by each trigger.",
	},
	[]string{"pool", "trigger"},
)

var poolDesiredReplicas = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "poolwarden_pool_desired_replicas",
		Help: "Authoritative desired replica count per pool (arbiter-owned).",
	},
	[]string{"pool"},
)

var poolReplicas = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "poolwarden_pool_replicas",
		Help: "Observed replica count per pool and lifecycle state.",
	},
	[]string{"pool", "state"},
)

var replicaReplacedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "poolwarden_replica_replaced_total",
		Help: "Total number of failed replicas replaced with a fresh replica request.",
	},
	[]string{"pool"},
)

var removalBlockedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "poolwarden_removal_blocked_total",
		Help: "Total number of removal requests blocked by the disruption guard (backpressure, not errors).",
	},
	[]string{"pool"},
)

var nodeClassUnits = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "poolwarden_nodeclass_units",
		Help: "Capacity units per node-class and provisioning state.",
	},
	[]string{"class", "state"},
)

var provisionRetryTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "poolwarden_provision_retry_total",
		Help: "Total number of capacity unit provisioning retries.",
	},
	[]string{"class"},
)

var capacityDegraded = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "poolwarden_nodeclass_degraded",
		Help: "Set to 1 when a node-class exhausted its provisioning retry ceiling (operational alert).",
	},
	[]string{"class"},
)

// RecordSignalUnavailable increments the failed-poll counter for a trigger.
func RecordSignalUnavailable(trigger string) {
	signalUnavailableTotal.WithLabelValues(trigger).Inc()
}

// SetTriggerVote records the vote a trigger currently holds for its pool.
func SetTriggerVote(pool, trigger string, vote int32) {
	triggerVote.WithLabelValues(pool, trigger).Set(float64(vote))
}

// SetPoolDesiredReplicas records the arbiter's authoritative desired count.
func SetPoolDesiredReplicas(pool string, desired int32) {
	poolDesiredReplicas.WithLabelValues(pool).Set(float64(desired))
}

// SetPoolReplicas records the observed replica count in one lifecycle state.
func SetPoolReplicas(pool, state string, count int) {
	poolReplicas.WithLabelValues(pool, state).Set(float64(count))
}

// RecordReplicaReplaced increments the failed-replica replacement counter.
func RecordReplicaReplaced(pool string) {
	replicaReplacedTotal.WithLabelValues(pool).Inc()
}

// RecordRemovalBlocked increments the disruption-guard backpressure counter.
func RecordRemovalBlocked(pool string) {
	removalBlockedTotal.WithLabelValues(pool).Inc()
}

// SetNodeClassUnits records the unit count in one provisioning state.
func SetNodeClassUnits(class, state string, count int) {
	nodeClassUnits.WithLabelValues(class, state).Set(float64(count))
}

// RecordProvisionRetry increments the provisioning retry counter.
func RecordProvisionRetry(class string) {
	provisionRetryTotal.WithLabelValues(class).Inc()
}

// SetCapacityDegraded flips the degraded alert gauge for a node-class.
func SetCapacityDegraded(class string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1.0
	}

	capacityDegraded.WithLabelValues(class).Set(v)
}
