package config

import "time"

// Env key constants. All controller configuration env vars use POOLWARDEN_
// prefix; duration values support explicit units (e.g. 5m, 40s, 2h).

// Path to kubeconfig file. If unset, KUBECONFIG is used as fallback.
const envKeyKubeConfig = "POOLWARDEN_KUBECONFIG"

// Kubernetes API server URL. If unset, KUBERNETES_MASTER is used as fallback.
const envKeyKubeMaster = "POOLWARDEN_KUBE_MASTER"

// Log level: debug, info, warn, error.
const envKeyLogLevel = "POOLWARDEN_LOG_LEVEL"

// Log format: json or text.
const envKeyLogFormat = "POOLWARDEN_LOG_FORMAT"

// Port for health/readiness/ops HTTP server.
const envKeyHTTPPort = "POOLWARDEN_HTTP_PORT"

// Port for Prometheus metrics (GET /metrics).
const envKeyMetricsPort = "POOLWARDEN_METRICS_PORT"

// Path to the fleet definition file (pools, triggers, node-classes).
const envKeyFleetConfig = "POOLWARDEN_FLEET_CONFIG"

// Base URL of the Prometheus server queried by external-metric triggers.
const envKeyPrometheusURL = "POOLWARDEN_PROMETHEUS_URL"

// Namespace holding the desired-units ConfigMap consumed by the external
// node provisioner.
const envKeyNamespace = "POOLWARDEN_NAMESPACE"

// Name of the desired-units ConfigMap.
const envKeyUnitsConfigMap = "POOLWARDEN_UNITS_CONFIGMAP"

// Fleet sync interval: how often replica state is pulled from the
// orchestrator. Units: s, m, h (e.g. 10s).
const (
	envKeySyncInterval = "POOLWARDEN_SYNC_INTERVAL"
	envMinSyncInterval = time.Second
)

// Component health check interval. Units: s, m, h (e.g. 10s, 1m).
const (
	envKeyHealthInterval = "POOLWARDEN_HEALTH_INTERVAL"
	envMinHealthInterval = time.Second
)

// Standard k8s env keys used as fallback when POOLWARDEN_* are unset.
const (
	envKeyKubeConfigFallback = "KUBECONFIG"
	envKeyKubeMasterFallback = "KUBERNETES_MASTER"
)
