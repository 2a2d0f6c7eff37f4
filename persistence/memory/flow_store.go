package memory

import (
	"sync"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
)

var _ persistence.FlowStore = new(InMemFlowStore)

type InMemFlowStore struct {
	mu       sync.RWMutex
	latest   map[string]*model.FlowDef
	versions map[string]map[int]*model.FlowDef
}

func NewInMemFlowStore() *InMemFlowStore {
	return &InMemFlowStore{
		latest:   make(map[string]*model.FlowDef),
		versions: make(map[string]map[int]*model.FlowDef),
	}
}

func (s *InMemFlowStore) Save(flow *model.FlowDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *flow
	s.latest[flow.Id] = &cp
	if s.versions[flow.Id] == nil {
		s.versions[flow.Id] = make(map[int]*model.FlowDef)
	}
	s.versions[flow.Id][flow.Version] = &cp
	return nil
}

func (s *InMemFlowStore) Get(id string) (*model.FlowDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.latest[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "flow", Id: id}
	}
	cp := *flow
	return &cp, nil
}

func (s *InMemFlowStore) GetVersion(id string, version int) (*model.FlowDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.versions[id][version]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "flow", Id: id}
	}
	cp := *flow
	return &cp, nil
}

func (s *InMemFlowStore) List() ([]*model.FlowDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flows := make([]*model.FlowDef, 0, len(s.latest))
	for _, flow := range s.latest {
		cp := *flow
		flows = append(flows, &cp)
	}
	return flows, nil
}

func (s *InMemFlowStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, id)
	delete(s.versions, id)
	return nil
}
