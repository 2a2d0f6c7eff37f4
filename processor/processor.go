package processor

import (
	"context"
	"fmt"

	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/model"
)

// Processor executes one step kind. Implementations never panic or return
// errors across the engine boundary; every failure mode is expressed in the
// Outcome, with Transient marking failures the loop may retry on a later
// tick.
type Processor interface {
	Kind() model.StepKind
	Process(ctx context.Context, enrollment *model.Enrollment, step *flow.Step) model.Outcome
}

type Registry struct {
	processors map[model.StepKind]Processor
}

func NewRegistry(processors ...Processor) *Registry {
	reg := &Registry{processors: make(map[model.StepKind]Processor)}
	for _, p := range processors {
		reg.processors[p.Kind()] = p
	}
	return reg
}

func (r *Registry) Get(kind model.StepKind) (Processor, error) {
	p, ok := r.processors[kind]
	if !ok {
		return nil, fmt.Errorf("no processor registered for step kind %s", kind)
	}
	return p, nil
}
