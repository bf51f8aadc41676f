package k8s

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/poolwarden/poolwarden/internal/logic/fleet"
)

// toObservation maps a pod to the domain's replica observation. The
// readiness tri-state comes from pod conditions; the health-check protocol
// behind them belongs to the inference/proxy collaborators.
func toObservation(pod *corev1.Pod, target PoolTarget) fleet.Observation {
	return fleet.Observation{
		ID:        pod.Name,
		Pool:      target.Pool,
		NodeClass: target.NodeClass,
		Scheduled: pod.Spec.NodeName != "",
		Readiness: podReadiness(pod),
	}
}

func podReadiness(pod *corev1.Pod) fleet.Readiness {
	if pod.Status.Phase == corev1.PodFailed {
		return fleet.ReadinessFailed
	}

	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return fleet.ReadinessReady
		}
	}

	return fleet.ReadinessNotReady
}

func nodeReady(node *corev1.Node) bool {
	if node.Spec.Unschedulable {
		return false
	}

	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}

	return false
}
