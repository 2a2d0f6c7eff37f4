package trigger

import (
	"context"
	"fmt"

	"github.com/nudgeworks/journey/model"
)

// Evaluator finds subjects that newly satisfy a flow's entry condition. The
// returned subjects are candidates only: enrollment creation is idempotent,
// so a subject reported twice is still enrolled once.
type Evaluator interface {
	Kind() model.TriggerKind
	Evaluate(ctx context.Context, flowDef *model.FlowDef) ([]string, error)
}

type Registry struct {
	evaluators map[model.TriggerKind]Evaluator
}

func NewRegistry(evaluators ...Evaluator) *Registry {
	reg := &Registry{evaluators: make(map[model.TriggerKind]Evaluator)}
	for _, e := range evaluators {
		reg.evaluators[e.Kind()] = e
	}
	return reg
}

func (r *Registry) Evaluate(ctx context.Context, flowDef *model.FlowDef) ([]string, error) {
	evaluator, ok := r.evaluators[flowDef.Trigger.Kind]
	if !ok {
		return nil, fmt.Errorf("no evaluator registered for trigger kind %s", flowDef.Trigger.Kind)
	}
	return evaluator.Evaluate(ctx, flowDef)
}
