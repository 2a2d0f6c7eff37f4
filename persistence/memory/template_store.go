package memory

import (
	"sync"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
)

var _ persistence.TemplateStore = new(InMemTemplateStore)

type InMemTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*model.MessageTemplate
}

func NewInMemTemplateStore() *InMemTemplateStore {
	return &InMemTemplateStore{
		templates: make(map[string]*model.MessageTemplate),
	}
}

func (s *InMemTemplateStore) Save(template *model.MessageTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *template
	s.templates[template.Id] = &cp
	return nil
}

func (s *InMemTemplateStore) Get(id string) (*model.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	template, ok := s.templates[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "template", Id: id}
	}
	cp := *template
	return &cp, nil
}
