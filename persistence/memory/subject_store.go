package memory

import (
	"sync"
	"time"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
)

var _ persistence.SubjectStore = new(InMemSubjectStore)

type InMemSubjectStore struct {
	mu       sync.Mutex
	subjects map[string]*model.Subject
}

func NewInMemSubjectStore() *InMemSubjectStore {
	return &InMemSubjectStore{
		subjects: make(map[string]*model.Subject),
	}
}

func (s *InMemSubjectStore) Get(id string) (*model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "subject", Id: id}
	}
	return copySubject(subject), nil
}

func (s *InMemSubjectStore) Save(subject *model.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	s.subjects[subject.Id] = copySubject(subject)
	return nil
}

func (s *InMemSubjectStore) All() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subjects))
	for id := range s.subjects {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *InMemSubjectStore) CreatedSince(since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for id, subject := range s.subjects {
		if !subject.CreatedAt.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *InMemSubjectStore) UpdatedSince(since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for id, subject := range s.subjects {
		if !subject.UpdatedAt.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *InMemSubjectStore) AddTag(subjectId string, tag string) error {
	return s.mutate(subjectId, func(subject *model.Subject) {
		for _, t := range subject.Tags {
			if t == tag {
				return
			}
		}
		subject.Tags = append(subject.Tags, tag)
	})
}

func (s *InMemSubjectStore) RemoveTag(subjectId string, tag string) error {
	return s.mutate(subjectId, func(subject *model.Subject) {
		tags := subject.Tags[:0]
		for _, t := range subject.Tags {
			if t != tag {
				tags = append(tags, t)
			}
		}
		subject.Tags = tags
	})
}

func (s *InMemSubjectStore) AddToList(subjectId string, listId string) error {
	return s.mutate(subjectId, func(subject *model.Subject) {
		for _, l := range subject.Lists {
			if l == listId {
				return
			}
		}
		subject.Lists = append(subject.Lists, listId)
	})
}

func (s *InMemSubjectStore) RemoveFromList(subjectId string, listId string) error {
	return s.mutate(subjectId, func(subject *model.Subject) {
		lists := subject.Lists[:0]
		for _, l := range subject.Lists {
			if l != listId {
				lists = append(lists, l)
			}
		}
		subject.Lists = lists
	})
}

func (s *InMemSubjectStore) ListMemberCount(listId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, subject := range s.subjects {
		for _, l := range subject.Lists {
			if l == listId {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *InMemSubjectStore) UpdateField(subjectId string, field string, value string) error {
	return s.mutate(subjectId, func(subject *model.Subject) {
		if subject.Attributes == nil {
			subject.Attributes = make(map[string]any)
		}
		subject.Attributes[field] = value
	})
}

func (s *InMemSubjectStore) mutate(subjectId string, fn func(*model.Subject)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[subjectId]
	if !ok {
		return persistence.NotFoundError{Kind: "subject", Id: subjectId}
	}
	fn(subject)
	subject.UpdatedAt = time.Now()
	return nil
}

func copySubject(subject *model.Subject) *model.Subject {
	cp := *subject
	cp.Attributes = make(map[string]any, len(subject.Attributes))
	for k, v := range subject.Attributes {
		cp.Attributes[k] = v
	}
	cp.Tags = append([]string(nil), subject.Tags...)
	cp.Lists = append([]string(nil), subject.Lists...)
	return &cp
}
