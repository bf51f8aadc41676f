package k8s

import (
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/poolwarden/poolwarden/internal/logic/fleet"
)

func testPod(name, node string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "serving"},
		Spec:       corev1.PodSpec{NodeName: node},
		Status:     corev1.PodStatus{Phase: phase},
	}

	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}

	pod.Status.Conditions = []corev1.PodCondition{
		{Type: corev1.PodReady, Status: status},
	}

	return pod
}

func TestToObservation(t *testing.T) {
	t.Parallel()

	target := PoolTarget{Pool: "inference-large", NodeClass: "gpu-a100"}

	tests := []struct {
		name          string
		pod           *corev1.Pod
		wantScheduled bool
		wantReadiness fleet.Readiness
	}{
		{
			name:          "unscheduled pod is pending demand",
			pod:           testPod("rep-1", "", corev1.PodPending, false),
			wantScheduled: false,
			wantReadiness: fleet.ReadinessNotReady,
		},
		{
			name:          "scheduled but not ready",
			pod:           testPod("rep-1", "node-1", corev1.PodRunning, false),
			wantScheduled: true,
			wantReadiness: fleet.ReadinessNotReady,
		},
		{
			name:          "ready pod",
			pod:           testPod("rep-1", "node-1", corev1.PodRunning, true),
			wantScheduled: true,
			wantReadiness: fleet.ReadinessReady,
		},
		{
			name:          "failed pod is terminal",
			pod:           testPod("rep-1", "node-1", corev1.PodFailed, false),
			wantScheduled: true,
			wantReadiness: fleet.ReadinessFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obs := toObservation(tt.pod, target)
			require.Equal(t, "rep-1", obs.ID)
			require.Equal(t, "inference-large", obs.Pool)
			require.Equal(t, "gpu-a100", obs.NodeClass)
			require.Equal(t, tt.wantScheduled, obs.Scheduled)
			require.Equal(t, tt.wantReadiness, obs.Readiness)
		})
	}
}

func TestNodeReady(t *testing.T) {
	t.Parallel()

	readyNode := func(ready corev1.ConditionStatus, unschedulable bool) *corev1.Node {
		return &corev1.Node{
			Spec: corev1.NodeSpec{Unschedulable: unschedulable},
			Status: corev1.NodeStatus{
				Conditions: []corev1.NodeCondition{
					{Type: corev1.NodeReady, Status: ready},
				},
			},
		}
	}

	require.True(t, nodeReady(readyNode(corev1.ConditionTrue, false)))
	require.False(t, nodeReady(readyNode(corev1.ConditionFalse, false)))

	// Cordoned nodes supply no usable capacity.
	require.False(t, nodeReady(readyNode(corev1.ConditionTrue, true)))

	require.False(t, nodeReady(&corev1.Node{}))
}
