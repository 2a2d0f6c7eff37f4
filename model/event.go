package model

import "time"

// Outcome is what a step processor returns to the execution loop. Exactly one
// of Completed (with no wait), WaitUntil, or Failed holds per call. Stop marks
// the whole enrollment COMPLETED regardless of remaining steps (used by send
// suppression). Skipped records that the step advanced without doing its work.
type Outcome struct {
	Completed bool           `json:"completed"`
	Branch    string         `json:"branch,omitempty"`
	WaitUntil *time.Time     `json:"waitUntil,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Stop      bool           `json:"stop,omitempty"`
	Skipped   bool           `json:"skipped,omitempty"`
	Failed    bool           `json:"failed,omitempty"`
	Transient bool           `json:"transient,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func CompletedOutcome() Outcome {
	return Outcome{Completed: true}
}

func BranchOutcome(branch string) Outcome {
	return Outcome{Completed: true, Branch: branch}
}

func WaitOutcome(until time.Time) Outcome {
	return Outcome{WaitUntil: &until}
}

func FailedOutcome(transient bool, err string) Outcome {
	return Outcome{Failed: true, Transient: transient, Error: err}
}

type EventType string

const EVENT_ENTERED EventType = "ENTERED"
const EVENT_EXITED EventType = "EXITED"
const EVENT_FAILED EventType = "FAILED"

// Event is the append-only audit record, one per step attempt.
type Event struct {
	Id           string    `json:"id"`
	EnrollmentId string    `json:"enrollmentId"`
	FlowId       string    `json:"flowId"`
	StepId       string    `json:"stepId"`
	Type         EventType `json:"type"`
	Payload      Outcome   `json:"payload"`
	Timestamp    time.Time `json:"timestamp"`
}

type EngagementType string

const ENGAGEMENT_OPENED EngagementType = "OPENED"
const ENGAGEMENT_CLICKED EngagementType = "CLICKED"
const ENGAGEMENT_REPLIED EngagementType = "REPLIED"
const ENGAGEMENT_UNSUBSCRIBED EngagementType = "UNSUBSCRIBED"

// Engagement is a delivery-layer event correlated back to the step whose send
// produced it.
type Engagement struct {
	SubjectId    string         `json:"subjectId"`
	EnrollmentId string         `json:"enrollmentId,omitempty"`
	StepId       string         `json:"stepId,omitempty"`
	Type         EngagementType `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
}

// MessageTemplate is reusable message content referenced by Message steps.
type MessageTemplate struct {
	Id       string `json:"id"`
	Subject  string `json:"subject"`
	BodyHtml string `json:"bodyHtml,omitempty"`
	BodyText string `json:"bodyText,omitempty"`
}

// Subject is the contact record as far as this engine needs it: identity,
// free-form attributes, tags and list memberships mutated by Action steps.
type Subject struct {
	Id         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Lists      []string       `json:"lists,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}
