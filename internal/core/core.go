// Package core constructs and owns every orchestrator component for one
// process lifetime, replacing the teacher's module-level singleton
// getters (event bus, metrics aggregator, topology manager, instance
// manager) with one explicitly constructed value. Lifecycle is
// construct (New) -> start background tasks (Start) -> cancel and drain
// (Close), mirroring the teacher's Daemon struct (spec.md §9).
package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tutu-network/orchestrator/internal/codechat"
	"github.com/tutu-network/orchestrator/internal/config"
	"github.com/tutu-network/orchestrator/internal/dialogue"
	"github.com/tutu-network/orchestrator/internal/discovery"
	"github.com/tutu-network/orchestrator/internal/domain"
	"github.com/tutu-network/orchestrator/internal/eventbus"
	"github.com/tutu-network/orchestrator/internal/instancemgr"
	"github.com/tutu-network/orchestrator/internal/metricsagg"
	"github.com/tutu-network/orchestrator/internal/modelregistry"
	"github.com/tutu-network/orchestrator/internal/orchestrator"
	"github.com/tutu-network/orchestrator/internal/retrieval"
	"github.com/tutu-network/orchestrator/internal/selector"
	"github.com/tutu-network/orchestrator/internal/servermgr"
	"github.com/tutu-network/orchestrator/internal/topology"
)

// Core holds every constructed component and the wiring between them.
// No component here holds a reference to Core itself; dependencies flow
// one way, resolved at construction time.
type Core struct {
	Config config.Config

	Registry  *modelregistry.Store
	Servers   *servermgr.Manager
	Selector  *selector.Selector
	Caller    *inferClientCaller
	Dialogue  *dialogue.Engine
	Retrieval retrieval.Engine
	Events    *eventbus.Bus
	Metrics   *metricsagg.Aggregator
	Topology  *topology.Tracker
	Instances *instancemgr.Store
	CodeChat  *codechat.Agent
	Query     *orchestrator.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs every component and wires their narrow collaborator
// interfaces. It does not start any model servers or background
// goroutines; call Start for that.
func New(cfg config.Config) (*Core, error) {
	regPath := filepath.Join(config.Home(), "registry.json")
	portRange := domain.PortRange{Lo: cfg.Discovery.PortRangeLo, Hi: cfg.Discovery.PortRangeHi}
	thresholds := domain.TierThresholds{PowerfulMin: cfg.Discovery.PowerfulMin, FastMax: cfg.Discovery.FastMax}

	reg, err := modelregistry.Open(regPath, cfg.Discovery.ScanPath, portRange, thresholds)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	bus := eventbus.New(eventbus.Options{
		HistorySize:         cfg.EventBus.HistorySize,
		SubscriberQueueSize: cfg.EventBus.SubscriberQueueSize,
		DropTimeout:         time.Duration(cfg.EventBus.DropTimeoutMillis) * time.Millisecond,
	})

	metrics, err := metricsagg.New(metricsagg.Options{
		RingCapacity:  cfg.Metrics.RingCapacity,
		RetentionDays: cfg.Metrics.RetentionDays,
		SQLitePath:    cfg.Metrics.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("open metrics aggregator: %w", err)
	}

	servers := servermgr.New(servermgr.RuntimeSettings{
		BinaryPath:   cfg.Server.BinaryPath,
		Host:         cfg.Server.Host,
		CtxSize:      cfg.Server.CtxSize,
		NGPULayers:   cfg.Server.NGPULayers,
		NThreads:     cfg.Server.NThreads,
		BatchSize:    cfg.Server.BatchSize,
		MaxStartup:   time.Duration(cfg.Server.MaxStartupSecs) * time.Second,
		GracefulStop: time.Duration(cfg.Server.GracefulStopSecs) * time.Second,
	})
	servers.OnLog(func(l servermgr.LogLine) {
		sev := domain.SeverityInfo
		switch l.Level {
		case "ERROR":
			sev = domain.SeverityError
		case "WARN":
			sev = domain.SeverityWarning
		}
		bus.Publish(domain.SystemEvent{
			Timestamp: l.At,
			Type:      domain.EventLog,
			Message:   l.Text,
			Severity:  sev,
			Metadata:  map[string]interface{}{"modelId": l.ModelID, "port": l.Port},
		})
	})
	servers.OnStateChange(func(modelID string, before, after domain.ServerState) {
		bus.Publish(domain.SystemEvent{
			Timestamp: time.Now(),
			Type:      domain.EventModelState,
			Message:   fmt.Sprintf("%s: %s -> %s", modelID, before, after),
			Severity:  stateSeverity(after),
			Metadata:  map[string]interface{}{"modelId": modelID, "before": before, "after": after},
		})
	})

	sel := selector.New(reg.Registry(), servers)

	caller := &inferClientCaller{
		servers: servers,
		host:    firstNonEmpty(cfg.Server.Host, "127.0.0.1"),
		client:  cfg.Client,
		metrics: metrics,
	}

	dialogueEngine := dialogue.New(dialogueCaller{caller})

	var retrievalEngine retrieval.Engine = retrieval.NullEngine{}
	retrievalCfg := retrieval.Config{IndexDir: cfg.Retrieval.IndexDir}

	instPath := filepath.Join(config.Home(), "instances.json")
	instRange := domain.PortRange{Lo: cfg.Instances.PortRangeLo, Hi: cfg.Instances.PortRangeHi}
	instances, err := instancemgr.Open(instPath, instRange, servers, reg.Registry())
	if err != nil {
		return nil, fmt.Errorf("open instance store: %w", err)
	}

	topo := topology.New(topology.Options{
		Servers:       serverStatusAdapter{servers},
		RetrievalPath: func() bool { return retrieval.IndexExists(retrievalCfg) },
		Cache:         noopPinger{},
		EventBusAlive: func() bool { return true },
		SelfPID:       os.Getpid(),
		OnTransition: func(componentID string, before, after domain.HealthStatus) {
			bus.Publish(domain.SystemEvent{
				Timestamp: time.Now(),
				Type:      domain.EventTopologyHealthUpdate,
				Message:   fmt.Sprintf("%s: %s -> %s", componentID, before, after),
				Severity:  domain.SeverityInfo,
				Metadata:  map[string]interface{}{"componentId": componentID, "before": before, "after": after},
			})
		},
	})

	orch := orchestrator.New(orchestrator.Options{
		Registry:  reg.Registry(),
		Selector:  sel,
		Caller:    caller,
		Retrieval: retrievalEngine,
		Dialogue:  dialogueEngine,
		Servers:   servers,
		Events:    bus,
		Metrics:   metricsRecorder{metrics},
		Flows:     topo,
	})

	chatAgent := codechat.New(codechat.Options{
		Config: codechat.Config{
			PlanningTier:        domain.TierBalanced,
			MaxPromptTokens:     2048,
			MaxIterations:       cfg.CodeChat.MaxIterations,
			PlanningTemperature: 0.7,
			ConfirmationTimeout: time.Duration(cfg.CodeChat.ConfirmationTimeoutSecs) * time.Second,
		},
		Caller:   codechatCaller{caller},
		Selector: sel,
		Tools:    codechat.NewDefaultRegistry(cfg.CodeChat.WorkspaceRoot),
		Events:   bus,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Core{
		Config:    cfg,
		Registry:  reg,
		Servers:   servers,
		Selector:  sel,
		Caller:    caller,
		Dialogue:  dialogueEngine,
		Retrieval: retrievalEngine,
		Events:    bus,
		Metrics:   metrics,
		Topology:  topo,
		Instances: instances,
		CodeChat:  chatAgent,
		Query:     orch,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start spawns every background task: the topology health loop. The
// Event Bus and Metrics Aggregator start their own background tasks
// from New (mirroring the teacher's eager-start components); only the
// health loop needs an explicit Start call since it needs Core's
// lifetime context.
func (c *Core) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Topology.Run(c.ctx)
	}()
}

// Close cancels background work, stops all running inference servers,
// and drains every component's own shutdown path. Close is idempotent
// with respect to the components it owns (each Stop below already is).
func (c *Core) Close() {
	c.cancel()
	c.wg.Wait()

	c.Topology.Close()
	c.Servers.StopAll(time.Duration(c.Config.Server.GracefulStopSecs) * time.Second)
	c.Events.Stop()
	if err := c.Metrics.Close(); err != nil {
		log.Printf("[core] metrics close: %v", err)
	}
}

func stateSeverity(s domain.ServerState) domain.Severity {
	if s == domain.ServerError {
		return domain.SeverityError
	}
	return domain.SeverityInfo
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// serverStatusAdapter narrows *servermgr.Manager to topology's
// ServerStatusProber, converting servermgr.StatusSummary to
// topology.ServerSnapshot so the topology package doesn't need to
// import servermgr.
type serverStatusAdapter struct{ m *servermgr.Manager }

func (s serverStatusAdapter) IsHealthy(modelID string) bool { return s.m.IsHealthy(modelID) }
func (s serverStatusAdapter) ActiveCount() int              { return s.m.ActiveCount() }

func (s serverStatusAdapter) StatusSummary() topology.ServerSnapshot {
	sum := s.m.StatusSummary()
	return topology.ServerSnapshot{Total: sum.Total, Active: sum.Active, Servers: sum.Servers}
}

// noopPinger reports an always-reachable cache backend when no real
// cache adapter is configured (the cache is an out-of-core collaborator
// per spec.md §1; this is the default stub).
type noopPinger struct{}

func (noopPinger) Ping(ctx context.Context) error { return nil }

// metricsRecorder narrows *metricsagg.Aggregator to the Orchestrator's
// MetricsRecorder interface (defined here rather than in metricsagg so
// metricsagg stays free of orchestrator-specific wording).
type metricsRecorder struct{ a *metricsagg.Aggregator }

func (m metricsRecorder) Record(metric string, value float64, tags map[string]string) {
	m.a.Record(metric, value, tags)
}

func (m metricsRecorder) RecordQueryRun(queryID string, mode domain.QueryMode, success bool, millis float64) error {
	return m.a.RecordQueryRun(queryID, mode, success, millis)
}

func (m metricsRecorder) RecordModelRequest(modelID string) {
	m.a.RecordModelRequest(modelID)
}

// discoverAndPersist is a convenience wrapper the CLI's discover/rescan
// commands use: it runs Discovery, preserves overrides on rescan, and
// persists the result through the registry Store.
func (c *Core) discoverAndPersist(rescan bool) (*domain.ModelRegistry, error) {
	opts := discovery.Options{
		ScanRoot:       c.Config.Discovery.ScanPath,
		PortRange:      domain.PortRange{Lo: c.Config.Discovery.PortRangeLo, Hi: c.Config.Discovery.PortRangeHi},
		TierThresholds: domain.TierThresholds{PowerfulMin: c.Config.Discovery.PowerfulMin, FastMax: c.Config.Discovery.FastMax},
	}

	var fresh *domain.ModelRegistry
	var err error
	if rescan {
		fresh, err = discovery.RescanAndUpdate(c.Registry.Registry(), opts)
	} else {
		fresh, err = discovery.Discover(opts)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Registry.Replace(fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Discover runs a fresh scan, discarding any existing overrides.
func (c *Core) Discover() (*domain.ModelRegistry, error) { return c.discoverAndPersist(false) }

// Rescan runs a scan that preserves tier/thinking/enabled overrides for
// model ids seen in both the old and new registry (spec.md §4.1).
func (c *Core) Rescan() (*domain.ModelRegistry, error) { return c.discoverAndPersist(true) }
