package k8s

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/poolwarden/poolwarden/internal/logic/signal"
)

// UtilizationQuery returns the pool's resource utilization ratio: total CPU
// usage across the pool's replicas divided by their total CPU requests. It
// errors when nothing is measurable yet; that is SignalUnavailable, not a
// zero reading.
func (a *Adapter) UtilizationQuery(ctx context.Context, pool string) (float64, error) {
	target, err := a.poolTarget(pool)
	if err != nil {
		return 0, err
	}

	podMetrics, err := a.metricsClientset.MetricsV1beta1().PodMetricses(target.Namespace).List(
		ctx,
		metav1.ListOptions{LabelSelector: target.Selector},
	)
	if err != nil {
		return 0, fmt.Errorf("list pod metrics: %w", mapAPIError(err))
	}

	podList, err := a.clientset.CoreV1().Pods(target.Namespace).List(
		ctx,
		metav1.ListOptions{LabelSelector: target.Selector},
	)
	if err != nil {
		return 0, fmt.Errorf("list pods: %w", mapAPIError(err))
	}

	var usageMilli int64

	for i := range podMetrics.Items {
		for _, container := range podMetrics.Items[i].Containers {
			usageMilli += container.Usage.Cpu().MilliValue()
		}
	}

	var requestMilli int64

	for i := range podList.Items {
		for _, container := range podList.Items[i].Spec.Containers {
			requestMilli += container.Resources.Requests.Cpu().MilliValue()
		}
	}

	if requestMilli == 0 {
		return 0, fmt.Errorf("pool %s has no measurable cpu requests: %w", pool, errNotFound)
	}

	return float64(usageMilli) / float64(requestMilli), nil
}

// UtilizationSource adapts UtilizationQuery into a signal source for one
// pool's utilization trigger.
type UtilizationSource struct {
	name    string
	pool    string
	adapter *Adapter
}

// NewUtilizationSource creates a utilization signal source.
func NewUtilizationSource(name, pool string, adapter *Adapter) *UtilizationSource {
	return &UtilizationSource{
		name:    name,
		pool:    pool,
		adapter: adapter,
	}
}

var _ signal.Source = (*UtilizationSource)(nil)

func (s *UtilizationSource) Name() string {
	return s.name
}

func (s *UtilizationSource) Kind() signal.Kind {
	return signal.KindUtilization
}

func (s *UtilizationSource) Query(ctx context.Context) (signal.Reading, error) {
	value, err := s.adapter.UtilizationQuery(ctx, s.pool)
	if err != nil {
		return signal.Reading{}, err
	}

	return signal.Reading{Value: value, At: time.Now()}, nil
}
