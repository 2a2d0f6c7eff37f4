package model

import "strings"

type StepKind string

const STEP_KIND_TRIGGER StepKind = "TRIGGER"
const STEP_KIND_MESSAGE StepKind = "MESSAGE"
const STEP_KIND_DELAY StepKind = "DELAY"
const STEP_KIND_CONDITION StepKind = "CONDITION"
const STEP_KIND_ACTION StepKind = "ACTION"
const STEP_KIND_EXTERNAL_CALL StepKind = "EXTERNAL_CALL"

func ToStepKind(s string) StepKind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRIGGER":
		return STEP_KIND_TRIGGER
	case "MESSAGE", "EMAIL":
		return STEP_KIND_MESSAGE
	case "DELAY", "WAIT":
		return STEP_KIND_DELAY
	case "CONDITION", "BRANCH":
		return STEP_KIND_CONDITION
	case "ACTION":
		return STEP_KIND_ACTION
	case "EXTERNAL_CALL", "WEBHOOK", "HTTP":
		return STEP_KIND_EXTERNAL_CALL
	}
	return StepKind(strings.ToUpper(strings.TrimSpace(s)))
}

type TriggerKind string

const TRIGGER_NEW_SUBJECT TriggerKind = "NEW_SUBJECT"
const TRIGGER_SEGMENT TriggerKind = "ATTRIBUTE_SEGMENT"
const TRIGGER_SCHEDULED_DATE TriggerKind = "SCHEDULED_DATE"
const TRIGGER_EXTERNAL TriggerKind = "EXTERNAL"
const TRIGGER_MANUAL TriggerKind = "MANUAL"

// END is the reserved branch target that terminates an enrollment.
const END_TARGET string = "END"

// FlowDef is a stored flow definition in one of the two supported encodings.
// Graph flows carry Nodes and Edges, linear flows carry Steps; exactly one of
// the two sets is populated.
type FlowDef struct {
	Id      string     `json:"id"`
	Name    string     `json:"name"`
	Version int        `json:"version"`
	Active  bool       `json:"active"`
	Trigger TriggerDef `json:"trigger"`
	Nodes   []NodeDef  `json:"nodes,omitempty"`
	Edges   []EdgeDef  `json:"edges,omitempty"`
	Steps   []StepDef  `json:"steps,omitempty"`
}

type TriggerDef struct {
	Kind   TriggerKind    `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

// NodeDef and EdgeDef form the graph encoding produced by the visual editor.
type NodeDef struct {
	Id     string         `json:"id"`
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

type EdgeDef struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// StepDef is the linear-array encoding: array order implies the next step
// unless NextStepId or a branch target list overrides it.
type StepDef struct {
	Id          string         `json:"id"`
	Kind        string         `json:"kind"`
	Config      map[string]any `json:"config,omitempty"`
	NextStepId  string         `json:"nextStepId,omitempty"`
	TrueBranch  []string       `json:"trueBranch,omitempty"`
	FalseBranch []string       `json:"falseBranch,omitempty"`
}
