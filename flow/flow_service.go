package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Service validates and activates flow definitions and hands out normalized
// graphs. Activated versions are immutable, so resolved graphs are cached per
// (flow, version) indefinitely; the latest-version lookup has a short TTL to
// pick up new activations.
type Service struct {
	store persistence.FlowStore
	cache *c.Cache
}

func NewService(store persistence.FlowStore) *Service {
	return &Service{
		store: store,
		cache: c.New(5*time.Minute, 10*time.Minute),
	}
}

// Activate validates the definition, bumps the version and persists it.
func (s *Service) Activate(def *model.FlowDef) error {
	if err := Validate(def); err != nil {
		return err
	}
	existing, err := s.store.Get(def.Id)
	var notFound persistence.NotFoundError
	switch {
	case err == nil:
		def.Version = existing.Version + 1
	case errors.As(err, &notFound):
		def.Version = 1
	default:
		return err
	}
	def.Active = true
	if err := s.store.Save(def); err != nil {
		return err
	}
	s.cache.Delete(latestKey(def.Id))
	logger.Info("flow activated", zap.String("flowId", def.Id), zap.Int("version", def.Version))
	return nil
}

func (s *Service) Get(flowId string) (*model.FlowDef, error) {
	return s.store.Get(flowId)
}

func (s *Service) ListActive() ([]*model.FlowDef, error) {
	flows, err := s.store.List()
	if err != nil {
		return nil, err
	}
	active := flows[:0]
	for _, flow := range flows {
		if flow.Active {
			active = append(active, flow)
		}
	}
	return active, nil
}

// Resolve returns the normalized graph of the latest active version.
func (s *Service) Resolve(flowId string) (*Graph, error) {
	if cached, found := s.cache.Get(latestKey(flowId)); found {
		return cached.(*Graph), nil
	}
	def, err := s.store.Get(flowId)
	if err != nil {
		return nil, err
	}
	graph, err := s.normalize(def)
	if err != nil {
		return nil, err
	}
	s.cache.Set(latestKey(flowId), graph, c.DefaultExpiration)
	return graph, nil
}

// ResolveVersion returns the graph of the version an enrollment is pinned to.
func (s *Service) ResolveVersion(flowId string, version int) (*Graph, error) {
	key := versionKey(flowId, version)
	if cached, found := s.cache.Get(key); found {
		return cached.(*Graph), nil
	}
	def, err := s.store.GetVersion(flowId, version)
	if err != nil {
		return nil, err
	}
	graph, err := s.normalize(def)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, graph, c.NoExpiration)
	return graph, nil
}

func (s *Service) Deactivate(flowId string) error {
	def, err := s.store.Get(flowId)
	if err != nil {
		return err
	}
	def.Active = false
	if err := s.store.Save(def); err != nil {
		return err
	}
	s.cache.Delete(latestKey(flowId))
	return nil
}

func (s *Service) normalize(def *model.FlowDef) (*Graph, error) {
	graph, err := Normalize(def)
	if err != nil {
		return nil, err
	}
	return graph, nil
}

func latestKey(flowId string) string {
	return "latest:" + flowId
}

func versionKey(flowId string, version int) string {
	return fmt.Sprintf("%s:%d", flowId, version)
}
