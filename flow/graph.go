package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/nudgeworks/journey/model"
	"github.com/spf13/cast"
)

// Step is one node of the normalized step graph. Sequential kinds carry Next;
// Condition steps carry Branches keyed by label ("true"/"false"). A target
// equal to model.END_TARGET terminates the enrollment; an empty Next on a
// non-branching step means the flow is exhausted there.
type Step struct {
	Id       string
	Kind     model.StepKind
	Config   map[string]any
	Next     string
	Branches map[string]string
}

func (s *Step) BranchTarget(label string) (string, bool) {
	if s.Branches == nil {
		return "", false
	}
	target, ok := s.Branches[label]
	return target, ok
}

func (s *Step) ConfigString(key string) string {
	if s.Config == nil {
		return ""
	}
	return cast.ToString(s.Config[key])
}

func (s *Step) ConfigBool(key string) bool {
	if s.Config == nil {
		return false
	}
	return cast.ToBool(s.Config[key])
}

func (s *Step) ConfigInt(key string) int {
	if s.Config == nil {
		return 0
	}
	return cast.ToInt(s.Config[key])
}

func (s *Step) ConfigMap(key string) map[string]any {
	if s.Config == nil {
		return nil
	}
	return cast.ToStringMap(s.Config[key])
}

func (s *Step) ConfigDuration(key string) time.Duration {
	if s.Config == nil {
		return 0
	}
	return cast.ToDuration(s.Config[key])
}

// Graph is the normalized, execution-ready form of a flow definition.
type Graph struct {
	FlowId  string
	Version int
	Trigger model.TriggerDef
	Entry   string
	Steps   map[string]*Step
}

func (g *Graph) Step(id string) (*Step, bool) {
	step, ok := g.Steps[id]
	return step, ok
}

// Normalize converts either encoding of a flow definition to the abstract
// step graph. Graph encodings carry nodes and edges; linear encodings carry
// an ordered step array. The caller validates the result separately.
func Normalize(def *model.FlowDef) (*Graph, error) {
	if len(def.Nodes) > 0 && len(def.Steps) > 0 {
		return nil, fmt.Errorf("flow %s carries both graph and linear encodings", def.Id)
	}
	if len(def.Nodes) > 0 {
		return normalizeGraph(def)
	}
	return normalizeLinear(def)
}

func normalizeGraph(def *model.FlowDef) (*Graph, error) {
	graph := &Graph{
		FlowId:  def.Id,
		Version: def.Version,
		Trigger: def.Trigger,
		Steps:   make(map[string]*Step),
	}
	var triggerId string
	for _, node := range def.Nodes {
		kind := model.ToStepKind(node.Kind)
		if kind == model.STEP_KIND_TRIGGER {
			if triggerId != "" {
				return nil, fmt.Errorf("flow %s has more than one trigger node", def.Id)
			}
			triggerId = node.Id
			continue
		}
		if _, ok := graph.Steps[node.Id]; ok {
			return nil, fmt.Errorf("step id %s is duplicate", node.Id)
		}
		graph.Steps[node.Id] = &Step{
			Id:     node.Id,
			Kind:   kind,
			Config: node.Config,
		}
	}
	for _, edge := range def.Edges {
		if edge.Source == triggerId {
			if graph.Entry != "" && graph.Entry != edge.Target {
				return nil, fmt.Errorf("flow %s trigger has more than one outgoing edge", def.Id)
			}
			graph.Entry = edge.Target
			continue
		}
		step, ok := graph.Steps[edge.Source]
		if !ok {
			return nil, fmt.Errorf("edge source %s is not a step", edge.Source)
		}
		if edge.SourceHandle != "" {
			if step.Branches == nil {
				step.Branches = make(map[string]string)
			}
			step.Branches[strings.ToLower(edge.SourceHandle)] = edge.Target
		} else {
			if step.Next != "" && step.Next != edge.Target {
				return nil, fmt.Errorf("step %s has more than one unlabeled outgoing edge", edge.Source)
			}
			step.Next = edge.Target
		}
	}
	return graph, nil
}

func normalizeLinear(def *model.FlowDef) (*Graph, error) {
	graph := &Graph{
		FlowId:  def.Id,
		Version: def.Version,
		Trigger: def.Trigger,
		Steps:   make(map[string]*Step),
	}
	steps := def.Steps
	if len(steps) > 0 && model.ToStepKind(steps[0].Kind) == model.STEP_KIND_TRIGGER {
		steps = steps[1:]
	}
	for i, stepDef := range steps {
		if _, ok := graph.Steps[stepDef.Id]; ok {
			return nil, fmt.Errorf("step id %s is duplicate", stepDef.Id)
		}
		positionalNext := ""
		if i+1 < len(steps) {
			positionalNext = steps[i+1].Id
		}
		step := &Step{
			Id:     stepDef.Id,
			Kind:   model.ToStepKind(stepDef.Kind),
			Config: stepDef.Config,
			Next:   positionalNext,
		}
		if stepDef.NextStepId != "" {
			step.Next = stepDef.NextStepId
		}
		// Empty branch-target lists deliberately fall through to the
		// positional next rather than being an error.
		if len(stepDef.TrueBranch) > 0 {
			if step.Branches == nil {
				step.Branches = make(map[string]string)
			}
			step.Branches["true"] = stepDef.TrueBranch[0]
		}
		if len(stepDef.FalseBranch) > 0 {
			if step.Branches == nil {
				step.Branches = make(map[string]string)
			}
			step.Branches["false"] = stepDef.FalseBranch[0]
		}
		if i == 0 {
			graph.Entry = stepDef.Id
		}
		graph.Steps[stepDef.Id] = step
	}
	return graph, nil
}
