// Package instancemgr provides CRUD over named InstanceConfig overlays on
// a base discovered model, persisted alongside the model registry, and
// delegates lifecycle operations to the Server Manager using the
// instance id as tracking key (spec.md §4.11).
package instancemgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// ServerStarter is the narrow slice of the Server Manager's API the
// Instance Manager delegates to.
type ServerStarter interface {
	Start(ctx context.Context, trackingKey string, model *domain.DiscoveredModel) (*domain.ServerProcess, error)
	Stop(trackingKey string, gracefulTimeout time.Duration) error
}

// PortOwner reports the ports already in use by the model registry, so
// the Instance Manager can enforce the cross-component port-uniqueness
// invariant (spec.md §8).
type PortOwner interface {
	UsedPorts() map[int]string
}

type wireFormat struct {
	Instances map[string]*domain.InstanceConfig `json:"instances"`
	PortRange [2]int                             `json:"portRange"`
}

// Store owns the InstanceConfig map and its port range, backed by an
// atomically-written JSON file (the same discipline as modelregistry.Store).
type Store struct {
	mu        sync.Mutex
	path      string
	instances map[string]*domain.InstanceConfig
	portRange domain.PortRange

	servers  ServerStarter
	registry PortOwner
}

// Open loads path if present, else starts with an empty instance set.
func Open(path string, portRange domain.PortRange, servers ServerStarter, registry PortOwner) (*Store, error) {
	s := &Store{
		path:      path,
		instances: make(map[string]*domain.InstanceConfig),
		portRange: portRange,
		servers:   servers,
		registry:  registry,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read instance file: %w", err)
	}

	var wf wireFormat
	if err := json.Unmarshal(data, &wf); err != nil || wf.Instances == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryCorrupt, err)
	}
	s.instances = wf.Instances
	s.portRange = domain.PortRange{Lo: wf.PortRange[0], Hi: wf.PortRange[1]}
	return s, nil
}

// List returns all instances sorted by instance id.
func (s *Store) List() []*domain.InstanceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.InstanceConfig, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// Get returns the instance by id.
func (s *Store) Get(instanceID string) (*domain.InstanceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	return inst, nil
}

// Create validates the base model exists (via baseModel, non-nil),
// allocates the next free instance number in [1, 99] for that base
// model, and allocates the next free port in the instance port range
// not already used by an instance or by the registry's enabled models.
func (s *Store) Create(baseModel *domain.DiscoveredModel, displayName, systemPrompt string, webSearchEnabled bool) (*domain.InstanceConfig, error) {
	if baseModel == nil {
		return nil, domain.ErrModelNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	number, err := s.nextInstanceNumberLocked(baseModel.ModelID)
	if err != nil {
		return nil, err
	}
	port, err := s.nextFreePortLocked()
	if err != nil {
		return nil, err
	}

	inst := &domain.InstanceConfig{
		InstanceID:       fmt.Sprintf("%s:%02d", baseModel.ModelID, number),
		BaseModelID:      baseModel.ModelID,
		InstanceNumber:   number,
		DisplayName:      displayName,
		SystemPrompt:     systemPrompt,
		WebSearchEnabled: webSearchEnabled,
		Port:             port,
		Status:           domain.InstanceStopped,
	}
	s.instances[inst.InstanceID] = inst
	if err := s.persistLocked(); err != nil {
		delete(s.instances, inst.InstanceID)
		return nil, err
	}
	return inst, nil
}

func (s *Store) nextInstanceNumberLocked(baseModelID string) (int, error) {
	taken := make(map[int]bool)
	for _, inst := range s.instances {
		if inst.BaseModelID == baseModelID {
			taken[inst.InstanceNumber] = true
		}
	}
	for n := 1; n <= 99; n++ {
		if !taken[n] {
			return n, nil
		}
	}
	return 0, domain.ErrInstanceSlotsFull
}

func (s *Store) nextFreePortLocked() (int, error) {
	used := make(map[int]bool)
	if s.registry != nil {
		for p := range s.registry.UsedPorts() {
			used[p] = true
		}
	}
	for _, inst := range s.instances {
		used[inst.Port] = true
	}
	for p := s.portRange.Lo; p <= s.portRange.Hi; p++ {
		if !used[p] {
			return p, nil
		}
	}
	return 0, domain.ErrPortRangeExhausted
}

// Update mutates the mutable display fields of an existing instance,
// whatever its status.
func (s *Store) Update(instanceID, displayName, systemPrompt string, webSearchEnabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	inst.DisplayName = displayName
	inst.SystemPrompt = systemPrompt
	inst.WebSearchEnabled = webSearchEnabled
	return s.persistLocked()
}

// Delete removes a stopped instance. Returns ErrInstanceNotStopped if
// its status is not STOPPED.
func (s *Store) Delete(instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	if inst.Status != domain.InstanceStopped {
		return domain.ErrInstanceNotStopped
	}
	delete(s.instances, instanceID)
	return s.persistLocked()
}

// Start delegates to the Server Manager using a copy of baseModel with
// the instance's port and the instance id as tracking key.
func (s *Store) Start(ctx context.Context, instanceID string, baseModel *domain.DiscoveredModel) error {
	s.mu.Lock()
	inst, ok := s.instances[instanceID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrInstanceNotFound
	}
	if baseModel == nil {
		s.mu.Unlock()
		return domain.ErrModelNotFound
	}
	inst.Status = domain.InstanceStarting
	s.persistLocked() //nolint:errcheck
	s.mu.Unlock()

	overlay := *baseModel
	port := inst.Port
	overlay.Port = &port

	_, err := s.servers.Start(ctx, instanceID, &overlay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		inst.Status = domain.InstanceError
		s.persistLocked() //nolint:errcheck
		return err
	}
	inst.Status = domain.InstanceActive
	return s.persistLocked()
}

// Stop delegates to the Server Manager and marks the instance stopped.
func (s *Store) Stop(instanceID string, gracefulTimeout time.Duration) error {
	s.mu.Lock()
	inst, ok := s.instances[instanceID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrInstanceNotFound
	}
	inst.Status = domain.InstanceStopping
	s.persistLocked() //nolint:errcheck
	s.mu.Unlock()

	err := s.servers.Stop(instanceID, gracefulTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	inst.Status = domain.InstanceStopped
	if perr := s.persistLocked(); perr != nil {
		return perr
	}
	return err
}

func (s *Store) persistLocked() error {
	wf := wireFormat{
		Instances: s.instances,
		PortRange: [2]int{s.portRange.Lo, s.portRange.Hi},
	}
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal instance file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".instances-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp instance file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp instance file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp instance file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename instance file: %w", err)
	}
	return nil
}

