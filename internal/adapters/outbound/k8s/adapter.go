package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	corev1 "k8s.io/api/core/v1"
	policy "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/poolwarden/poolwarden/internal/logic/fleet"
)

const (
	evictionKind       = "Eviction"
	evictionAPIVersion = "policy/v1"
)

// PoolTarget maps a pool to its orchestrator workload.
type PoolTarget struct {
	Pool       string
	Namespace  string
	Deployment string
	Selector   string
	NodeClass  string
}

// ClassTarget maps a node-class to its node label selector.
type ClassTarget struct {
	Class    string
	Selector string
}

// Adapter is the outbound port implementation against the Kubernetes API:
// scale directives, replica observation and eviction, node-class unit
// observation and the desired-units ConfigMap directive.
type Adapter struct {
	logger           *slog.Logger
	clientset        kubernetes.Interface
	metricsClientset metricsv.Interface
	unitsNamespace   string
	unitsConfigMap   string

	mu      sync.RWMutex
	pools   map[string]PoolTarget
	classes map[string]ClassTarget
}

// New creates the k8s adapter. Targets are supplied via SetTargets once the
// fleet config is loaded, and replaced on hot reload.
func New(
	logger *slog.Logger,
	clientset kubernetes.Interface,
	metricsClientset metricsv.Interface,
	unitsNamespace string,
	unitsConfigMap string,
) *Adapter {
	return &Adapter{
		logger:           logger,
		clientset:        clientset,
		metricsClientset: metricsClientset,
		unitsNamespace:   unitsNamespace,
		unitsConfigMap:   unitsConfigMap,
		pools:            make(map[string]PoolTarget),
		classes:          make(map[string]ClassTarget),
	}
}

// SetTargets replaces the pool and class target maps.
func (a *Adapter) SetTargets(pools []PoolTarget, classes []ClassTarget) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pools = make(map[string]PoolTarget, len(pools))
	for _, t := range pools {
		a.pools[t.Pool] = t
	}

	a.classes = make(map[string]ClassTarget, len(classes))
	for _, t := range classes {
		a.classes[t.Class] = t
	}
}

func (a *Adapter) poolTarget(pool string) (PoolTarget, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.pools[pool]
	if !ok {
		return PoolTarget{}, fmt.Errorf("pool %q: %w", pool, errNotFound)
	}

	return t, nil
}

func (a *Adapter) classTarget(class string) (ClassTarget, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.classes[class]
	if !ok {
		return ClassTarget{}, fmt.Errorf("node-class %q: %w", class, errNotFound)
	}

	return t, nil
}

// ScalePool updates the target deployment's scale subresource to the desired
// replica count. Placement onto capacity units is the orchestrator's job.
func (a *Adapter) ScalePool(ctx context.Context, pool string, replicas int32) error {
	target, err := a.poolTarget(pool)
	if err != nil {
		return err
	}

	deployments := a.clientset.AppsV1().Deployments(target.Namespace)

	scale, err := deployments.GetScale(ctx, target.Deployment, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get scale subresource: %w", mapAPIError(err))
	}

	if scale.Spec.Replicas == replicas {
		return nil
	}

	scale.Spec.Replicas = replicas

	_, err = deployments.UpdateScale(ctx, target.Deployment, scale, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("update scale subresource: %w", mapAPIError(err))
	}

	return nil
}

// ListReplicasQuery observes every managed pool's replicas.
func (a *Adapter) ListReplicasQuery(ctx context.Context) ([]fleet.Observation, error) {
	a.mu.RLock()
	targets := make([]PoolTarget, 0, len(a.pools))
	for _, t := range a.pools {
		targets = append(targets, t)
	}
	a.mu.RUnlock()

	var observations []fleet.Observation

	for _, target := range targets {
		podList, err := a.clientset.CoreV1().Pods(target.Namespace).List(
			ctx,
			metav1.ListOptions{LabelSelector: target.Selector},
		)
		if err != nil {
			return nil, fmt.Errorf("list pods for pool %s: %w", target.Pool, mapAPIError(err))
		}

		for i := range podList.Items {
			observations = append(observations, toObservation(&podList.Items[i], target))
		}
	}

	return observations, nil
}

// ReplaceReplicaCommand deletes a failed replica so the workload controller
// creates a fresh one.
func (a *Adapter) ReplaceReplicaCommand(ctx context.Context, pool, id string) error {
	target, err := a.poolTarget(pool)
	if err != nil {
		return err
	}

	err = a.clientset.CoreV1().Pods(target.Namespace).Delete(ctx, id, metav1.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("delete replica: %w", mapAPIError(err))
	}

	return nil
}

// EvictReplicaCommand removes a replica through the eviction API; used for
// guard-approved removals so orchestrator-side budgets still apply.
func (a *Adapter) EvictReplicaCommand(ctx context.Context, pool, id string) error {
	target, err := a.poolTarget(pool)
	if err != nil {
		return err
	}

	eviction := &policy.Eviction{
		TypeMeta: metav1.TypeMeta{
			APIVersion: evictionAPIVersion,
			Kind:       evictionKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      id,
			Namespace: target.Namespace,
		},
	}

	err = a.clientset.PolicyV1().Evictions(target.Namespace).Evict(ctx, eviction)
	if err != nil {
		return fmt.Errorf("evict replica: %w", mapAPIError(err))
	}

	return nil
}

// PublishDesiredUnitsCommand writes "node-class C desires U units" into the
// shared ConfigMap consumed by the external node provisioner.
func (a *Adapter) PublishDesiredUnitsCommand(ctx context.Context, class string, desired int) error {
	configMaps := a.clientset.CoreV1().ConfigMaps(a.unitsNamespace)

	cm, err := configMaps.Get(ctx, a.unitsConfigMap, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, createErr := configMaps.Create(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      a.unitsConfigMap,
				Namespace: a.unitsNamespace,
			},
			Data: map[string]string{class: strconv.Itoa(desired)},
		}, metav1.CreateOptions{})
		if createErr != nil {
			return fmt.Errorf("create units configmap: %w", mapAPIError(createErr))
		}

		return nil
	}

	if err != nil {
		return fmt.Errorf("get units configmap: %w", mapAPIError(err))
	}

	if cm.Data == nil {
		cm.Data = make(map[string]string, 1)
	}

	if cm.Data[class] == strconv.Itoa(desired) {
		return nil
	}

	cm.Data[class] = strconv.Itoa(desired)

	_, err = configMaps.Update(ctx, cm, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("update units configmap: %w", mapAPIError(err))
	}

	return nil
}

// ReadyUnitsQuery counts schedulable nodes currently supplying the class.
func (a *Adapter) ReadyUnitsQuery(ctx context.Context, class string) (int, error) {
	target, err := a.classTarget(class)
	if err != nil {
		return 0, err
	}

	nodeList, err := a.clientset.CoreV1().Nodes().List(
		ctx,
		metav1.ListOptions{LabelSelector: target.Selector},
	)
	if err != nil {
		return 0, fmt.Errorf("list nodes for class %s: %w", class, mapAPIError(err))
	}

	ready := 0

	for i := range nodeList.Items {
		if nodeReady(&nodeList.Items[i]) {
			ready++
		}
	}

	return ready, nil
}

func mapAPIError(err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %w", errNotFound, err)
	case apierrors.IsTooManyRequests(err):
		return fmt.Errorf("%w: %w", errTooManyRequests, err)
	}

	return err
}
