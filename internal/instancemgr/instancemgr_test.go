package instancemgr

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

type fakeServers struct {
	startErr error
	started  []string
	stopped  []string
}

func (f *fakeServers) Start(ctx context.Context, trackingKey string, model *domain.DiscoveredModel) (*domain.ServerProcess, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, trackingKey)
	return &domain.ServerProcess{ModelID: model.ModelID, Port: *model.Port}, nil
}

func (f *fakeServers) Stop(trackingKey string, gracefulTimeout time.Duration) error {
	f.stopped = append(f.stopped, trackingKey)
	return nil
}

type fakeRegistry struct{ used map[int]string }

func (f fakeRegistry) UsedPorts() map[int]string { return f.used }

func baseModel() *domain.DiscoveredModel {
	return &domain.DiscoveredModel{ModelID: "llama-7b-q4", Enabled: true}
}

func newTestStore(t *testing.T, servers ServerStarter) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instances.json")
	s, err := Open(path, domain.PortRange{Lo: 9300, Hi: 9310}, servers, fakeRegistry{used: map[int]string{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestCreate_AllocatesNumberAndPort(t *testing.T) {
	s := newTestStore(t, &fakeServers{})
	inst, err := s.Create(baseModel(), "My Instance", "", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.InstanceID != "llama-7b-q4:01" {
		t.Fatalf("unexpected instance id: %s", inst.InstanceID)
	}
	if inst.Port != 9300 {
		t.Fatalf("expected first free port 9300, got %d", inst.Port)
	}
}

func TestCreate_SecondInstanceGetsNextNumberAndPort(t *testing.T) {
	s := newTestStore(t, &fakeServers{})
	s.Create(baseModel(), "a", "", false)
	inst2, err := s.Create(baseModel(), "b", "", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst2.InstanceID != "llama-7b-q4:02" || inst2.Port != 9301 {
		t.Fatalf("unexpected second instance: %+v", inst2)
	}
}

func TestCreate_RejectsNilBaseModel(t *testing.T) {
	s := newTestStore(t, &fakeServers{})
	if _, err := s.Create(nil, "a", "", false); !errors.Is(err, domain.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestDelete_RejectsWhenNotStopped(t *testing.T) {
	s := newTestStore(t, &fakeServers{})
	inst, _ := s.Create(baseModel(), "a", "", false)
	inst.Status = domain.InstanceActive
	if err := s.Delete(inst.InstanceID); !errors.Is(err, domain.ErrInstanceNotStopped) {
		t.Fatalf("expected ErrInstanceNotStopped, got %v", err)
	}
}

func TestStartThenStop_DelegatesToServerManager(t *testing.T) {
	fs := &fakeServers{}
	s := newTestStore(t, fs)
	inst, _ := s.Create(baseModel(), "a", "", false)

	if err := s.Start(context.Background(), inst.InstanceID, baseModel()); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, _ := s.Get(inst.InstanceID)
	if got.Status != domain.InstanceActive {
		t.Fatalf("expected ACTIVE after start, got %s", got.Status)
	}
	if len(fs.started) != 1 || fs.started[0] != inst.InstanceID {
		t.Fatalf("expected server manager to be started with instance id, got %v", fs.started)
	}

	if err := s.Stop(inst.InstanceID, time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got, _ = s.Get(inst.InstanceID)
	if got.Status != domain.InstanceStopped {
		t.Fatalf("expected STOPPED after stop, got %s", got.Status)
	}
}

func TestStart_MarksErrorOnFailure(t *testing.T) {
	fs := &fakeServers{startErr: errors.New("boom")}
	s := newTestStore(t, fs)
	inst, _ := s.Create(baseModel(), "a", "", false)

	if err := s.Start(context.Background(), inst.InstanceID, baseModel()); err == nil {
		t.Fatalf("expected start error")
	}
	got, _ := s.Get(inst.InstanceID)
	if got.Status != domain.InstanceError {
		t.Fatalf("expected ERROR status, got %s", got.Status)
	}
}

func TestOpen_RoundTripsThroughFile(t *testing.T) {
	fs := &fakeServers{}
	path := filepath.Join(t.TempDir(), "instances.json")
	s, err := Open(path, domain.PortRange{Lo: 9300, Hi: 9310}, fs, fakeRegistry{used: map[int]string{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	inst, _ := s.Create(baseModel(), "a", "", false)

	s2, err := Open(path, domain.PortRange{Lo: 9300, Hi: 9310}, fs, fakeRegistry{used: map[int]string{}})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := s2.Get(inst.InstanceID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.DisplayName != "a" {
		t.Fatalf("unexpected reopened instance: %+v", got)
	}
}

func TestCreate_SkipsPortsUsedByRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.json")
	s, err := Open(path, domain.PortRange{Lo: 9300, Hi: 9310}, &fakeServers{}, fakeRegistry{used: map[int]string{9300: "other-model"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	inst, err := s.Create(baseModel(), "a", "", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.Port != 9301 {
		t.Fatalf("expected port 9301 (9300 taken by registry), got %d", inst.Port)
	}
}
