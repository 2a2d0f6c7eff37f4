package flow

import (
	"fmt"

	"github.com/nudgeworks/journey/model"
)

// Validate rejects malformed flows at activation time so the execution loop
// never sees them: unknown targets, missing entry, per-kind config gaps, and
// cycles that no Delay or Condition step breaks (those would spin inside a
// single poll tick).
func Validate(def *model.FlowDef) error {
	graph, err := Normalize(def)
	if err != nil {
		return err
	}
	if graph.Entry == "" {
		return fmt.Errorf("flow %s has no entry step", def.Id)
	}
	if _, ok := graph.Steps[graph.Entry]; !ok {
		return fmt.Errorf("flow %s entry step %s does not exist", def.Id, graph.Entry)
	}
	for _, step := range graph.Steps {
		if err := validateTarget(graph, step.Id, step.Next); err != nil {
			return err
		}
		for label, target := range step.Branches {
			if target == "" {
				return fmt.Errorf("step %s branch %q has empty target", step.Id, label)
			}
			if err := validateTarget(graph, step.Id, target); err != nil {
				return err
			}
		}
		if err := validateConfig(step); err != nil {
			return err
		}
	}
	if cycleStep := findUndelayedCycle(graph); cycleStep != "" {
		return fmt.Errorf("flow %s has a cycle through step %s with no delay or condition", def.Id, cycleStep)
	}
	return nil
}

func validateTarget(graph *Graph, stepId string, target string) error {
	if target == "" || target == model.END_TARGET {
		return nil
	}
	if _, ok := graph.Steps[target]; !ok {
		return fmt.Errorf("step %s points at unknown step %s", stepId, target)
	}
	return nil
}

func validateConfig(step *Step) error {
	switch step.Kind {
	case model.STEP_KIND_MESSAGE:
		if step.ConfigString("templateId") == "" && step.ConfigString("subject") == "" {
			return fmt.Errorf("message step %s needs a template or inline subject", step.Id)
		}
	case model.STEP_KIND_DELAY:
		if step.ConfigInt("duration") <= 0 && step.ConfigInt("days") <= 0 &&
			step.ConfigInt("hours") <= 0 && step.ConfigInt("minutes") <= 0 {
			return fmt.Errorf("delay step %s needs a duration", step.Id)
		}
	case model.STEP_KIND_CONDITION:
		if step.ConfigString("source") == "" && step.ConfigString("engagement") == "" &&
			step.ConfigString("expression") == "" {
			return fmt.Errorf("condition step %s needs a predicate", step.Id)
		}
	case model.STEP_KIND_ACTION:
		if step.ConfigString("operation") == "" {
			return fmt.Errorf("action step %s needs an operation", step.Id)
		}
	case model.STEP_KIND_EXTERNAL_CALL:
		if step.ConfigString("url") == "" {
			return fmt.Errorf("external call step %s needs a url", step.Id)
		}
	default:
		return fmt.Errorf("step %s has unknown kind %s", step.Id, step.Kind)
	}
	return nil
}

// findUndelayedCycle looks for a cycle in the graph after cutting the
// outgoing edges of Delay and Condition steps. Delay suspends the enrollment
// and Condition can leave the loop, so cycles through them are legal.
func findUndelayedCycle(graph *Graph) string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(graph.Steps))
	var visit func(id string) string
	visit = func(id string) string {
		step, ok := graph.Steps[id]
		if !ok {
			return ""
		}
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}
		state[id] = visiting
		if step.Kind != model.STEP_KIND_DELAY && step.Kind != model.STEP_KIND_CONDITION {
			if step.Next != "" && step.Next != model.END_TARGET {
				if hit := visit(step.Next); hit != "" {
					return hit
				}
			}
			for _, target := range step.Branches {
				if target != model.END_TARGET {
					if hit := visit(target); hit != "" {
						return hit
					}
				}
			}
		}
		state[id] = done
		return ""
	}
	for id := range graph.Steps {
		if hit := visit(id); hit != "" {
			return hit
		}
	}
	return ""
}
