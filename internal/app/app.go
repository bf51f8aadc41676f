// Package app wires configuration, adapters, logic services and servers into
// a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/poolwarden/poolwarden/internal/adapters/outbound/k8s"
	"github.com/poolwarden/poolwarden/internal/adapters/outbound/prom"
	"github.com/poolwarden/poolwarden/internal/config"
	"github.com/poolwarden/poolwarden/internal/fleetconfig"
	"github.com/poolwarden/poolwarden/internal/httpserver"
	"github.com/poolwarden/poolwarden/internal/infra/appstate"
	"github.com/poolwarden/poolwarden/internal/infra/cronwindow"
	"github.com/poolwarden/poolwarden/internal/infra/health"
	"github.com/poolwarden/poolwarden/internal/infra/logging"
	"github.com/poolwarden/poolwarden/internal/infra/shutdown"
	"github.com/poolwarden/poolwarden/internal/logic/arbiter"
	"github.com/poolwarden/poolwarden/internal/logic/capacity"
	"github.com/poolwarden/poolwarden/internal/logic/disruption"
	"github.com/poolwarden/poolwarden/internal/logic/fleet"
	"github.com/poolwarden/poolwarden/internal/logic/scaler"
	"github.com/poolwarden/poolwarden/internal/logic/signal"
)

const terminationFile = "/tmp/poolwarden-terminating"

// App holds every wired component. Components are started in registration
// order and shut down in reverse.
type App struct {
	logger   *slog.Logger
	cfg      *config.Config
	appState *appstate.AppState
	loader   *fleetconfig.Loader
	adapter  *k8s.Adapter
	arbiter  *arbiter.Arbiter
	guard    *disruption.Guard

	components []component
}

// New creates the application with all dependencies wired. The fleet file is
// loaded once here; Run installs the watch for hot reloads.
func New(cfg *config.Config, signals <-chan os.Signal) (*App, error) {
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	kubeConfig, err := clientcmd.BuildConfigFromFlags(cfg.KubeMaster, cfg.KubeConfig)
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(kubeConfig)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}

	metricsClientset, err := metricsv.NewForConfig(kubeConfig)
	if err != nil {
		return nil, fmt.Errorf("create metrics clientset: %w", err)
	}

	adapter := k8s.New(logger, clientset, metricsClientset, cfg.Namespace, cfg.UnitsConfigMap)

	var promClient *prom.Client
	if cfg.PrometheusURL != "" {
		promClient, err = prom.New(logger, cfg.PrometheusURL)
		if err != nil {
			return nil, fmt.Errorf("create prometheus client: %w", err)
		}
	}

	loader := fleetconfig.NewLoader(logger, cfg.FleetConfig)

	fleetDef, err := loader.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load fleet config: %w", err)
	}

	registry := fleet.NewRegistry()
	arb := arbiter.New(logger, adapter)
	guard := disruption.New(logger, registry)
	remover := disruption.NewRemover(logger, guard, registry, adapter)

	healthReg := health.New(logger, cfg.HealthInterval)
	appState := appstate.New(logger, time.Now(), signals, healthReg)

	app := &App{
		logger:   logger,
		cfg:      cfg,
		appState: appState,
		loader:   loader,
		adapter:  adapter,
		arbiter:  arb,
		guard:    guard,
	}

	app.applyTargets(fleetDef)

	syncer := fleet.NewSyncer(logger, adapter, registry, cfg.SyncInterval)
	app.addComponent(syncer, healthReg)

	provisioners := make([]*capacity.Service, 0, len(fleetDef.NodeClasses))

	for _, nc := range fleetDef.NodeClasses {
		svc := capacity.New(logger, capacity.Config{
			Class:             nc.Name,
			MinUnits:          nc.MinUnits,
			MaxUnits:          nc.MaxUnits,
			LeadTimeEstimate:  nc.LeadTime,
			IdleTimeout:       nc.IdleTimeout,
			RetryFactor:       nc.RetryFactor,
			MaxRetries:        nc.MaxRetries,
			ReconcileInterval: nc.ReconcileInterval,
		}, registry, adapter)

		provisioners = append(provisioners, svc)
		app.addComponent(svc, healthReg)
	}

	for _, t := range fleetDef.Triggers {
		source, err := buildSource(t, adapter, promClient)
		if err != nil {
			logger.Error("trigger disabled", "trigger", t.Name, "reason", err)

			continue
		}

		sink := scaler.New(logger, scaler.Config{
			Pool:                t.Pool,
			Trigger:             t.Name,
			Kind:                source.Kind(),
			Target:              t.Target,
			MinReplicas:         t.MinReplicas,
			MaxReplicas:         t.MaxReplicas,
			StabilizationWindow: t.StabilizationWindow,
			CooldownPeriod:      t.CooldownPeriod,
			ScheduleFloor:       t.Floor,
		}, arb, registry)

		app.addComponent(signal.NewPoller(logger, source, sink, t.PollInterval), healthReg)
	}

	metricsServer := httpserver.NewMetricsServer(logger, cfg.MetricsPort)
	app.addComponent(metricsServer, healthReg)

	httpServer := httpserver.New(
		logger,
		appState,
		healthReg,
		arb,
		registry,
		&classSet{services: provisioners},
		remover,
		cfg.HTTPPort,
	)
	app.addComponent(httpServer, healthReg)

	// The registry starts after everything it pings, so the first sweep
	// never records a not-yet-started component as unhealthy.
	app.components = append(app.components, healthReg)

	return app, nil
}

// addComponent wires a component into the start list, the shutdown order and
// the health registry.
func (a *App) addComponent(c component, healthReg *health.Registry) {
	a.components = append(a.components, c)

	if p, ok := c.(health.Pinger); ok {
		if err := healthReg.Register(p); err != nil {
			a.logger.Error("health registration failed", "component", c.Name(), "reason", err)
		}
	}
}

// buildSource constructs the signal source for a trigger kind.
func buildSource(
	t fleetconfig.Trigger,
	adapter *k8s.Adapter,
	promClient *prom.Client,
) (signal.Source, error) {
	switch t.Kind {
	case fleetconfig.KindUtilization:
		return k8s.NewUtilizationSource(t.Name, t.Pool, adapter), nil

	case fleetconfig.KindExternal:
		if promClient == nil {
			return nil, fmt.Errorf("external trigger needs a configured prometheus url")
		}

		return prom.NewSource(t.Name, t.Query, promClient), nil

	case fleetconfig.KindSchedule:
		window, err := cronwindow.New(t.Schedule, t.TZ, t.WindowDuration)
		if err != nil {
			return nil, fmt.Errorf("parse schedule: %w", err)
		}

		return cronwindow.NewSource(t.Name, window), nil

	default:
		return nil, fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
}

// applyTargets pushes the declarative pool/class topology into the adapter,
// the arbiter and the guard. Safe to call again on hot reload.
func (a *App) applyTargets(f *fleetconfig.Fleet) {
	poolTargets := make([]k8s.PoolTarget, 0, len(f.Pools))

	for _, p := range f.Pools {
		poolTargets = append(poolTargets, k8s.PoolTarget{
			Pool:       p.Name,
			Namespace:  p.Namespace,
			Deployment: p.Deployment,
			Selector:   p.Selector,
			NodeClass:  p.NodeClass,
		})

		a.arbiter.RegisterPool(p.Name, arbiter.Bounds{Min: p.MinReplicas, Max: p.MaxReplicas})
		a.guard.SetBudget(p.Name, p.MinAvailable)
	}

	classTargets := make([]k8s.ClassTarget, 0, len(f.NodeClasses))
	for _, nc := range f.NodeClasses {
		classTargets = append(classTargets, k8s.ClassTarget{Class: nc.Name, Selector: nc.Selector})
	}

	a.adapter.SetTargets(poolTargets, classTargets)
}

// reload applies a changed fleet file. Pool targets, disruption budgets and
// newly added pools take effect immediately; adding or removing triggers and
// node-classes needs a restart because their pollers and provisioners are
// built at startup.
func (a *App) reload(ctx context.Context, f *fleetconfig.Fleet) {
	a.applyTargets(f)

	a.logger.InfoContext(ctx, "fleet config applied",
		"pools", len(f.Pools),
		"note", "trigger and node-class topology changes require a restart",
	)
}

// Run starts every component and blocks until the context is cancelled or a
// termination signal arrives, then shuts everything down in reverse order.
func (a *App) Run(originCtx context.Context) error {
	if shutdown.CheckTerminationFile(originCtx, a.logger, terminationFile) {
		return fmt.Errorf("termination file present, refusing to start")
	}

	if err := a.appState.SetStarting(originCtx); err != nil {
		return fmt.Errorf("set starting: %w", err)
	}

	ctx, cancel := context.WithCancel(originCtx)
	defer cancel()

	handler := shutdown.New(a.logger, a.appState)
	go handler.HandleSignals(ctx, cancel)

	for _, c := range a.components {
		if err := c.Start(ctx); err != nil {
			cancel()

			if shutdownErr := a.appState.Shutdown(ctx); shutdownErr != nil {
				a.logger.ErrorContext(ctx, "shutdown after failed start", "reason", shutdownErr)
			}

			return fmt.Errorf("start %s: %w", c.Name(), err)
		}

		a.appState.RegisterShutdowner(c)
	}

	a.loader.Watch(ctx, func(f *fleetconfig.Fleet) {
		a.reload(ctx, f)
	})

	if err := a.appState.SetRunning(ctx); err != nil {
		return fmt.Errorf("set running: %w", err)
	}

	a.logger.InfoContext(ctx, "poolwarden running",
		"components", len(a.components),
	)

	<-ctx.Done()

	if err := a.appState.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
