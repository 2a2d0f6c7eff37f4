package persistence

import (
	"fmt"
	"time"

	"github.com/nudgeworks/journey/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

type FlowStore interface {
	Save(flow *model.FlowDef) error
	Get(id string) (*model.FlowDef, error)
	GetVersion(id string, version int) (*model.FlowDef, error)
	List() ([]*model.FlowDef, error)
	Delete(id string) error
}

// EnrollmentStore holds one enrollment per (flowId, subjectId). Create is an
// upsert-or-skip: a second call for the same pair returns the existing record
// with created=false. LoadReady returns enrollments that are ACTIVE, or
// WAITING with waitUntil <= now, bounded by limit.
//
// Claim/Release implement the at-most-once contract for overlapping poll
// ticks: a loaded enrollment must be claimed before dispatch and released
// afterwards; an expired lease recovers an enrollment whose holder crashed.
type EnrollmentStore interface {
	Create(flowId string, flowVersion int, subjectId string) (*model.Enrollment, bool, error)
	Get(flowId string, enrollmentId string) (*model.Enrollment, error)
	IsEnrolled(flowId string, subjectId string) (bool, error)
	LoadReady(now time.Time, limit int) ([]*model.Enrollment, error)
	Claim(enrollmentId string, lease time.Duration) (bool, error)
	Release(enrollmentId string) error
	Save(enrollment *model.Enrollment) error
	Pause(flowId string, enrollmentId string) error
	Resume(flowId string, enrollmentId string) error
	Remove(flowId string, enrollmentId string) error
	ListByFlow(flowId string) ([]*model.Enrollment, error)
	CountByStatus(flowId string) (map[model.EnrollmentStatus]int, error)
}

type EventLog interface {
	Append(event *model.Event) error
	GetByEnrollment(enrollmentId string) ([]*model.Event, error)
}

type EngagementStore interface {
	Record(engagement *model.Engagement) error
	HasForStep(enrollmentId string, stepId string, engagementType model.EngagementType) (bool, error)
	HasSince(subjectId string, engagementType model.EngagementType, since time.Time) (bool, error)
}

type TemplateStore interface {
	Save(template *model.MessageTemplate) error
	Get(id string) (*model.MessageTemplate, error)
}

// SubjectStore is the engine's view of the contact base. Mutating operations
// back the Action step and are idempotent per operation.
type SubjectStore interface {
	Get(id string) (*model.Subject, error)
	Save(subject *model.Subject) error
	All() ([]string, error)
	CreatedSince(since time.Time) ([]string, error)
	UpdatedSince(since time.Time) ([]string, error)
	AddTag(subjectId string, tag string) error
	RemoveTag(subjectId string, tag string) error
	AddToList(subjectId string, listId string) error
	RemoveFromList(subjectId string, listId string) error
	ListMemberCount(listId string) (int64, error)
	UpdateField(subjectId string, field string, value string) error
}
