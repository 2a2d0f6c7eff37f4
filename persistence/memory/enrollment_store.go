package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
)

var _ persistence.EnrollmentStore = new(InMemEnrollmentStore)

// InMemEnrollmentStore mirrors the redis DAO semantics behind one mutex. It
// backs unit tests and the storage-impl=memory configuration.
type InMemEnrollmentStore struct {
	mu         sync.Mutex
	byId       map[string]*model.Enrollment
	bySubject  map[string]string
	claims     map[string]time.Time
	claimLease time.Duration
}

func NewInMemEnrollmentStore() *InMemEnrollmentStore {
	return &InMemEnrollmentStore{
		byId:      make(map[string]*model.Enrollment),
		bySubject: make(map[string]string),
		claims:    make(map[string]time.Time),
	}
}

func subjectKey(flowId string, subjectId string) string {
	return flowId + "/" + subjectId
}

func (s *InMemEnrollmentStore) Create(flowId string, flowVersion int, subjectId string) (*model.Enrollment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingId, ok := s.bySubject[subjectKey(flowId, subjectId)]; ok {
		return copyEnrollment(s.byId[existingId]), false, nil
	}
	now := time.Now()
	enrollment := &model.Enrollment{
		Id:          uuid.New().String(),
		FlowId:      flowId,
		FlowVersion: flowVersion,
		SubjectId:   subjectId,
		Status:      model.ENROLLMENT_ACTIVE,
		Variables:   make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byId[enrollment.Id] = enrollment
	s.bySubject[subjectKey(flowId, subjectId)] = enrollment.Id
	return copyEnrollment(enrollment), true, nil
}

func (s *InMemEnrollmentStore) Get(flowId string, enrollmentId string) (*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.byId[enrollmentId]
	if !ok || enrollment.FlowId != flowId {
		return nil, persistence.NotFoundError{Kind: "enrollment", Id: enrollmentId}
	}
	return copyEnrollment(enrollment), nil
}

func (s *InMemEnrollmentStore) IsEnrolled(flowId string, subjectId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bySubject[subjectKey(flowId, subjectId)]
	return ok, nil
}

func (s *InMemEnrollmentStore) LoadReady(now time.Time, limit int) ([]*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ready := make([]*model.Enrollment, 0)
	for _, enrollment := range s.byId {
		if len(ready) >= limit {
			break
		}
		if enrollment.Ready(now) {
			ready = append(ready, copyEnrollment(enrollment))
		}
	}
	return ready, nil
}

func (s *InMemEnrollmentStore) Claim(enrollmentId string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.claims[enrollmentId]; ok && expiry.After(time.Now()) {
		return false, nil
	}
	s.claims[enrollmentId] = time.Now().Add(lease)
	return true, nil
}

func (s *InMemEnrollmentStore) Release(enrollmentId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, enrollmentId)
	return nil
}

func (s *InMemEnrollmentStore) Save(enrollment *model.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment.UpdatedAt = time.Now()
	s.byId[enrollment.Id] = copyEnrollment(enrollment)
	s.bySubject[subjectKey(enrollment.FlowId, enrollment.SubjectId)] = enrollment.Id
	return nil
}

func (s *InMemEnrollmentStore) Pause(flowId string, enrollmentId string) error {
	return s.changeStatus(flowId, enrollmentId, model.ENROLLMENT_PAUSED)
}

func (s *InMemEnrollmentStore) Resume(flowId string, enrollmentId string) error {
	return s.changeStatus(flowId, enrollmentId, model.ENROLLMENT_ACTIVE)
}

func (s *InMemEnrollmentStore) changeStatus(flowId string, enrollmentId string, status model.EnrollmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.byId[enrollmentId]
	if !ok || enrollment.FlowId != flowId {
		return persistence.NotFoundError{Kind: "enrollment", Id: enrollmentId}
	}
	if enrollment.Status.Terminal() {
		return persistence.StorageLayerError{Message: "enrollment in terminal state"}
	}
	now := time.Now()
	if status == model.ENROLLMENT_PAUSED {
		enrollment.PausedAt = &now
	} else {
		enrollment.PausedAt = nil
	}
	// WaitUntil is set only while WAITING. A resumed enrollment re-enters its
	// wait through the Delay step, which recomputes from the anchor.
	enrollment.WaitUntil = nil
	enrollment.Status = status
	enrollment.UpdatedAt = now
	return nil
}

func (s *InMemEnrollmentStore) Remove(flowId string, enrollmentId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.byId[enrollmentId]
	if !ok {
		return persistence.NotFoundError{Kind: "enrollment", Id: enrollmentId}
	}
	delete(s.byId, enrollmentId)
	delete(s.bySubject, subjectKey(flowId, enrollment.SubjectId))
	delete(s.claims, enrollmentId)
	return nil
}

func (s *InMemEnrollmentStore) ListByFlow(flowId string) ([]*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollments := make([]*model.Enrollment, 0)
	for _, enrollment := range s.byId {
		if enrollment.FlowId == flowId {
			enrollments = append(enrollments, copyEnrollment(enrollment))
		}
	}
	return enrollments, nil
}

func (s *InMemEnrollmentStore) CountByStatus(flowId string) (map[model.EnrollmentStatus]int, error) {
	enrollments, err := s.ListByFlow(flowId)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.EnrollmentStatus]int)
	for _, enrollment := range enrollments {
		counts[enrollment.Status]++
	}
	return counts, nil
}

func copyEnrollment(enrollment *model.Enrollment) *model.Enrollment {
	cp := *enrollment
	cp.Variables = make(map[string]any, len(enrollment.Variables))
	for k, v := range enrollment.Variables {
		cp.Variables[k] = v
	}
	return &cp
}
