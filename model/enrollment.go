package model

import "time"

type EnrollmentStatus string

const ENROLLMENT_ACTIVE EnrollmentStatus = "ACTIVE"
const ENROLLMENT_WAITING EnrollmentStatus = "WAITING"
const ENROLLMENT_PAUSED EnrollmentStatus = "PAUSED"
const ENROLLMENT_COMPLETED EnrollmentStatus = "COMPLETED"
const ENROLLMENT_FAILED EnrollmentStatus = "FAILED"
const ENROLLMENT_UNSUBSCRIBED EnrollmentStatus = "UNSUBSCRIBED"

func (s EnrollmentStatus) Terminal() bool {
	return s == ENROLLMENT_COMPLETED || s == ENROLLMENT_FAILED || s == ENROLLMENT_UNSUBSCRIBED
}

// Enrollment is one subject's live progress through one flow. CurrentStepId
// empty means the subject has not started and execution begins at the flow's
// entry step. WaitUntil is set exactly while Status is WAITING.
type Enrollment struct {
	Id            string           `json:"id"`
	FlowId        string           `json:"flowId"`
	FlowVersion   int              `json:"flowVersion"`
	SubjectId     string           `json:"subjectId"`
	Status        EnrollmentStatus `json:"status"`
	CurrentStepId string           `json:"currentStepId,omitempty"`
	WaitUntil     *time.Time       `json:"waitUntil,omitempty"`
	Variables     map[string]any   `json:"variables,omitempty"`

	LastMessageSentAt *time.Time `json:"lastMessageSentAt,omitempty"`
	LastMessageStepId string     `json:"lastMessageStepId,omitempty"`
	ThreadId          string     `json:"threadId,omitempty"`
	LastMessageId     string     `json:"lastMessageId,omitempty"`

	// StepFailures counts consecutive transient failures on the current step;
	// it resets on every advance.
	StepFailures  int    `json:"stepFailures,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	PausedAt    *time.Time `json:"pausedAt,omitempty"`
}

// Ready reports whether the enrollment is due for dispatch at now: ACTIVE,
// or WAITING with an elapsed waitUntil.
func (e *Enrollment) Ready(now time.Time) bool {
	switch e.Status {
	case ENROLLMENT_ACTIVE:
		return true
	case ENROLLMENT_WAITING:
		return e.WaitUntil != nil && !e.WaitUntil.After(now)
	}
	return false
}

// SetVariable never deletes keys, later steps may depend on them.
func (e *Enrollment) SetVariable(key string, value any) {
	if e.Variables == nil {
		e.Variables = make(map[string]any)
	}
	e.Variables[key] = value
}

// DelayAnchor is the reference time for Delay steps: the last completed
// message send, or enrollment creation if nothing was sent yet. Anchoring
// here makes re-evaluation of an already elapsed delay idempotent.
func (e *Enrollment) DelayAnchor() time.Time {
	if e.LastMessageSentAt != nil {
		return *e.LastMessageSentAt
	}
	return e.CreatedAt
}
