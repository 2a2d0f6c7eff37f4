package memory

import (
	"sync"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
)

var _ persistence.EventLog = new(InMemEventLog)

type InMemEventLog struct {
	mu     sync.Mutex
	events map[string][]*model.Event
}

func NewInMemEventLog() *InMemEventLog {
	return &InMemEventLog{
		events: make(map[string][]*model.Event),
	}
}

func (l *InMemEventLog) Append(event *model.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *event
	l.events[event.EnrollmentId] = append(l.events[event.EnrollmentId], &cp)
	return nil
}

func (l *InMemEventLog) GetByEnrollment(enrollmentId string) ([]*model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := make([]*model.Event, len(l.events[enrollmentId]))
	copy(events, l.events[enrollmentId])
	return events, nil
}
