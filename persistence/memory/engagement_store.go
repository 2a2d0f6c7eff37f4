package memory

import (
	"sync"
	"time"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
)

var _ persistence.EngagementStore = new(InMemEngagementStore)

type InMemEngagementStore struct {
	mu        sync.Mutex
	bySubject map[string][]*model.Engagement
	byStep    map[string][]*model.Engagement
}

func NewInMemEngagementStore() *InMemEngagementStore {
	return &InMemEngagementStore{
		bySubject: make(map[string][]*model.Engagement),
		byStep:    make(map[string][]*model.Engagement),
	}
}

func stepKey(enrollmentId string, stepId string) string {
	return enrollmentId + "/" + stepId
}

func (s *InMemEngagementStore) Record(engagement *model.Engagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *engagement
	s.bySubject[engagement.SubjectId] = append(s.bySubject[engagement.SubjectId], &cp)
	if engagement.EnrollmentId != "" && engagement.StepId != "" {
		key := stepKey(engagement.EnrollmentId, engagement.StepId)
		s.byStep[key] = append(s.byStep[key], &cp)
	}
	return nil
}

func (s *InMemEngagementStore) HasForStep(enrollmentId string, stepId string, engagementType model.EngagementType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, engagement := range s.byStep[stepKey(enrollmentId, stepId)] {
		if engagement.Type == engagementType {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemEngagementStore) HasSince(subjectId string, engagementType model.EngagementType, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, engagement := range s.bySubject[subjectId] {
		if engagement.Type == engagementType && !engagement.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
