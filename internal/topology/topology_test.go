package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

type fakeServers struct {
	active  int
	servers map[string]domain.ServerProcess
}

func (f fakeServers) IsHealthy(modelID string) bool { return f.active > 0 }
func (f fakeServers) ActiveCount() int              { return f.active }

func (f fakeServers) StatusSummary() ServerSnapshot {
	return ServerSnapshot{Total: len(f.servers), Active: f.active, Servers: f.servers}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestNew_SeedsFixedComponentGraph(t *testing.T) {
	tr := New(Options{})
	nodes := tr.Nodes()
	if len(nodes) != 5 {
		t.Fatalf("expected 5 fixed components, got %d", len(nodes))
	}
}

func TestTick_DegradesServerMgrWhenNoActiveServers(t *testing.T) {
	tr := New(Options{Servers: fakeServers{active: 0}})
	tr.tick()
	h := tr.Health()["servermgr"]
	if h.Status != domain.HealthDegraded {
		t.Fatalf("expected degraded status with 0 active servers, got %s", h.Status)
	}
}

func TestTick_HealthyServerMgrWithActiveServers(t *testing.T) {
	tr := New(Options{Servers: fakeServers{active: 2}})
	tr.tick()
	h := tr.Health()["servermgr"]
	if h.Status != domain.HealthHealthy {
		t.Fatalf("expected healthy status, got %s", h.Status)
	}
}

func TestTick_CacheUnhealthyOnPingFailure(t *testing.T) {
	tr := New(Options{Cache: fakePinger{err: errors.New("refused")}})
	tr.tick()
	h := tr.Health()["cache"]
	if h.Status != domain.HealthUnhealthy {
		t.Fatalf("expected unhealthy cache status, got %s", h.Status)
	}
}

func TestTick_FiresTransitionCallback(t *testing.T) {
	var transitions []string
	tr := New(Options{
		Servers: fakeServers{active: 0},
		OnTransition: func(id string, before, after domain.HealthStatus) {
			transitions = append(transitions, id+":"+string(before)+"->"+string(after))
		},
	})
	tr.tick()
	if len(transitions) == 0 {
		t.Fatalf("expected at least one transition from offline seed state")
	}
}

func TestRecordFlow_DedupsConsecutiveComponent(t *testing.T) {
	tr := New(Options{})
	tr.RecordFlow("q1", "orchestrator")
	tr.RecordFlow("q1", "orchestrator")
	tr.RecordFlow("q1", "servermgr")

	flow, ok := tr.Flow("q1")
	if !ok {
		t.Fatalf("expected flow to exist")
	}
	if len(flow.Components) != 2 {
		t.Fatalf("expected deduped consecutive repeat, got %v", flow.Components)
	}
}

func TestRecordFlow_EvictsOldestBeyondCap(t *testing.T) {
	tr := New(Options{})
	for i := 0; i < dataFlowPathsCap+10; i++ {
		tr.RecordFlow(string(rune('a'+i%26))+string(rune(i)), "orchestrator")
	}
	tr.mu.RLock()
	n := len(tr.flowOrder)
	tr.mu.RUnlock()
	if n > dataFlowPathsCap {
		t.Fatalf("expected flows capped at %d, got %d", dataFlowPathsCap, n)
	}
}

func TestTick_AddsNodeAndHealthPerTrackedModel(t *testing.T) {
	tr := New(Options{Servers: fakeServers{
		active: 1,
		servers: map[string]domain.ServerProcess{
			"llama-7b": {ModelID: "llama-7b", Port: 8001, IsReady: true, StartTime: time.Now().Add(-time.Minute)},
		},
	}})
	tr.tick()

	var found *domain.ComponentNode
	for _, n := range tr.Nodes() {
		if n.ID == "llama-7b" {
			n := n
			found = &n
		}
	}
	if found == nil {
		t.Fatalf("expected a model-server node for the tracked model, got %v", tr.Nodes())
	}
	if found.Kind != "model-server" {
		t.Fatalf("expected kind model-server, got %q", found.Kind)
	}

	h := tr.Health()["llama-7b"]
	if h.Status != domain.HealthHealthy {
		t.Fatalf("expected healthy status for ready model, got %s", h.Status)
	}
	if h.UptimeSec <= 0 {
		t.Fatalf("expected positive uptime, got %v", h.UptimeSec)
	}
}

func TestTick_DegradedNodeForNotYetReadyModel(t *testing.T) {
	tr := New(Options{Servers: fakeServers{
		active: 0,
		servers: map[string]domain.ServerProcess{
			"llama-7b": {ModelID: "llama-7b", Port: 8001, IsReady: false, StartTime: time.Now()},
		},
	}})
	tr.tick()

	h := tr.Health()["llama-7b"]
	if h.Status != domain.HealthDegraded {
		t.Fatalf("expected degraded status for a not-yet-ready model, got %s", h.Status)
	}
}

func TestTick_RemovesNodeWhenModelNoLongerTracked(t *testing.T) {
	tr := New(Options{Servers: fakeServers{
		active: 1,
		servers: map[string]domain.ServerProcess{
			"llama-7b": {ModelID: "llama-7b", Port: 8001, IsReady: true, StartTime: time.Now()},
		},
	}})
	tr.tick()

	tr.servers = fakeServers{active: 0, servers: map[string]domain.ServerProcess{}}
	tr.tick()

	if _, ok := tr.Health()["llama-7b"]; ok {
		t.Fatalf("expected llama-7b's health entry to be removed once untracked")
	}
	for _, n := range tr.Nodes() {
		if n.ID == "llama-7b" {
			t.Fatalf("expected llama-7b's node to be removed once untracked")
		}
	}
}

func TestRunAndClose(t *testing.T) {
	tr := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after context cancellation")
	}
}
