// Package topology holds a static component graph, a dynamic per-
// component health snapshot, and recently observed data-flow paths. The
// periodic Run(ctx)/ticker health loop follows the teacher's health
// checker conventions.
package topology

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"github.com/tutu-network/orchestrator/internal/domain"
)

const (
	healthInterval   = 10 * time.Second
	dataFlowTTL      = time.Hour
	dataFlowPathsCap = 100
)

// ServerSnapshot mirrors servermgr.StatusSummary, narrowed to the fields
// Topology needs, so this package doesn't import servermgr directly.
type ServerSnapshot struct {
	Total   int
	Active  int
	Servers map[string]domain.ServerProcess
}

// ServerStatusProber reports per-model server status from the Server
// Manager, narrowed to what Topology needs.
type ServerStatusProber interface {
	IsHealthy(modelID string) bool
	ActiveCount() int
	StatusSummary() ServerSnapshot
}

// Pinger is a narrow probe of an external dependency's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Tracker holds the component graph and dynamic health/data-flow state.
type Tracker struct {
	mu          sync.RWMutex
	nodes       map[string]domain.ComponentNode
	connections []domain.ComponentConnection
	health      map[string]domain.HealthMetrics
	flows       map[string]*domain.DataFlowPath
	flowOrder   []string

	servers       ServerStatusProber
	retrievalPath func() bool
	cache         Pinger
	eventBusAlive func() bool
	selfPID       int

	onTransition func(componentID string, before, after domain.HealthStatus)

	startedAt time.Time
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// Options wires the Tracker's external probes.
type Options struct {
	Servers       ServerStatusProber
	RetrievalPath func() bool
	Cache         Pinger
	EventBusAlive func() bool
	SelfPID       int
	OnTransition  func(componentID string, before, after domain.HealthStatus)
}

// New constructs a Tracker with the core's fixed component graph.
func New(opts Options) *Tracker {
	t := &Tracker{
		nodes:         make(map[string]domain.ComponentNode),
		health:        make(map[string]domain.HealthMetrics),
		flows:         make(map[string]*domain.DataFlowPath),
		servers:       opts.Servers,
		retrievalPath: opts.RetrievalPath,
		cache:         opts.Cache,
		eventBusAlive: opts.EventBusAlive,
		selfPID:       opts.SelfPID,
		onTransition:  opts.OnTransition,
		startedAt:     time.Now(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	for _, n := range []domain.ComponentNode{
		{ID: "orchestrator", Name: "Query Orchestrator", Kind: "core"},
		{ID: "servermgr", Name: "Server Manager", Kind: "core"},
		{ID: "retrieval", Name: "Retrieval Engine", Kind: "core"},
		{ID: "cache", Name: "Cache Backend", Kind: "core"},
		{ID: "eventbus", Name: "Event Bus", Kind: "core"},
	} {
		t.nodes[n.ID] = n
		t.health[n.ID] = domain.HealthMetrics{Status: domain.HealthOffline}
	}
	return t
}

// Run starts the periodic health loop; call in a goroutine. Stop via
// the context or Close.
func (t *Tracker) Run(ctx context.Context) {
	defer close(t.stoppedCh)
	t.tick()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// Close stops the health loop.
func (t *Tracker) Close() {
	close(t.stopCh)
	<-t.stoppedCh
}

func (t *Tracker) tick() {
	t.updateOrchestratorHealth()
	t.updateServerHealth()
	t.updateRetrievalHealth()
	t.updateCacheHealth()
	t.updateEventBusHealth()
	t.sweepFlows()
}

func (t *Tracker) updateOrchestratorHealth() {
	status := domain.HealthHealthy
	var cpu float64
	var mem uint64
	if t.selfPID > 0 {
		if proc, err := procfs.NewProc(t.selfPID); err == nil {
			if stat, err := proc.Stat(); err == nil {
				cpu = stat.CPUTime()
				mem = uint64(stat.ResidentMemory())
			}
		}
	}
	t.setHealth("orchestrator", domain.HealthMetrics{
		Status:      status,
		UptimeSec:   time.Since(t.startedAt).Seconds(),
		CPUPercent:  cpu,
		MemoryBytes: mem,
		LastCheck:   time.Now(),
	})
}

func (t *Tracker) updateServerHealth() {
	status := domain.HealthHealthy
	active := 0
	if t.servers != nil {
		active = t.servers.ActiveCount()
		if active == 0 {
			status = domain.HealthDegraded
		}
	} else {
		status = domain.HealthOffline
	}
	t.setHealth("servermgr", domain.HealthMetrics{Status: status, LastCheck: time.Now(), ErrorRate: 0})

	if t.servers != nil {
		t.syncModelNodes(t.servers.StatusSummary())
	}
}

// syncModelNodes adds a ComponentNode per currently tracked model server
// and removes nodes for servers no longer tracked, recording each one's
// per-model HealthMetrics from the Server Manager's snapshot.
func (t *Tracker) syncModelNodes(snap ServerSnapshot) {
	now := time.Now()

	t.mu.Lock()
	for id := range t.nodes {
		if _, tracked := snap.Servers[id]; !tracked {
			if n := t.nodes[id]; n.Kind == "model-server" {
				delete(t.nodes, id)
				delete(t.health, id)
			}
		}
	}
	for id := range snap.Servers {
		if _, ok := t.nodes[id]; !ok {
			t.nodes[id] = domain.ComponentNode{ID: id, Name: id, Kind: "model-server"}
		}
	}
	t.mu.Unlock()

	for id, proc := range snap.Servers {
		status := domain.HealthDegraded
		if proc.IsReady {
			status = domain.HealthHealthy
		}
		t.setHealth(id, domain.HealthMetrics{
			Status:    status,
			UptimeSec: now.Sub(proc.StartTime).Seconds(),
			LastCheck: now,
		})
	}
}

func (t *Tracker) updateRetrievalHealth() {
	status := domain.HealthHealthy
	if t.retrievalPath != nil && !t.retrievalPath() {
		status = domain.HealthDegraded
	}
	t.setHealth("retrieval", domain.HealthMetrics{Status: status, LastCheck: time.Now()})
}

func (t *Tracker) updateCacheHealth() {
	status := domain.HealthHealthy
	if t.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.cache.Ping(ctx); err != nil {
			status = domain.HealthUnhealthy
		}
	} else {
		status = domain.HealthOffline
	}
	t.setHealth("cache", domain.HealthMetrics{Status: status, LastCheck: time.Now()})
}

func (t *Tracker) updateEventBusHealth() {
	status := domain.HealthHealthy
	if t.eventBusAlive != nil && !t.eventBusAlive() {
		status = domain.HealthUnhealthy
	}
	t.setHealth("eventbus", domain.HealthMetrics{Status: status, LastCheck: time.Now()})
}

// setHealth updates a component's health snapshot, invoking the
// transition callback when status changed.
func (t *Tracker) setHealth(componentID string, m domain.HealthMetrics) {
	t.mu.Lock()
	before := t.health[componentID].Status
	t.health[componentID] = m
	t.mu.Unlock()

	if before != m.Status && t.onTransition != nil {
		t.onTransition(componentID, before, m.Status)
	}
}

// Health returns a snapshot of every component's health metrics.
func (t *Tracker) Health() map[string]domain.HealthMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]domain.HealthMetrics, len(t.health))
	for k, v := range t.health {
		out[k] = v
	}
	return out
}

// RecordFlow appends componentID to queryID's data-flow path, deduping
// consecutive repeats, and evicts paths older than the TTL or beyond the
// path cap (oldest first).
func (t *Tracker) RecordFlow(queryID, componentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, ok := t.flows[queryID]
	if !ok {
		path = &domain.DataFlowPath{QueryID: queryID, CreatedAt: time.Now()}
		t.flows[queryID] = path
		t.flowOrder = append(t.flowOrder, queryID)
	}
	if len(path.Components) == 0 || path.Components[len(path.Components)-1] != componentID {
		path.Components = append(path.Components, componentID)
		path.Timestamps = append(path.Timestamps, time.Now())
	}

	t.evictFlowsLocked()
}

func (t *Tracker) evictFlowsLocked() {
	cutoff := time.Now().Add(-dataFlowTTL)
	kept := t.flowOrder[:0]
	for _, id := range t.flowOrder {
		if t.flows[id].CreatedAt.Before(cutoff) {
			delete(t.flows, id)
			continue
		}
		kept = append(kept, id)
	}
	t.flowOrder = kept

	for len(t.flowOrder) > dataFlowPathsCap {
		oldest := t.flowOrder[0]
		t.flowOrder = t.flowOrder[1:]
		delete(t.flows, oldest)
	}
}

// sweepFlows evicts stale data-flow paths on the health-loop cadence, so
// paths that stop receiving RecordFlow calls entirely still age out.
func (t *Tracker) sweepFlows() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictFlowsLocked()
}

// Flow returns the recorded data-flow path for queryID, if any.
func (t *Tracker) Flow(queryID string) (domain.DataFlowPath, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.flows[queryID]
	if !ok {
		return domain.DataFlowPath{}, false
	}
	return *p, true
}

// Nodes returns the static component graph.
func (t *Tracker) Nodes() []domain.ComponentNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.ComponentNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}
