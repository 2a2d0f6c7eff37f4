package processor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/nudgeworks/journey/collaborator"
	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/oliveagle/jsonpath"
	"go.uber.org/zap"
)

var _ Processor = new(ConditionProcessor)

// ConditionProcessor evaluates a boolean predicate and returns branch "true"
// or "false". Predicates come in four forms: an operator over a subject
// attribute / accumulated variable / literal, an engagement check against a
// referenced message step, a segment membership check, or a free-form
// expression.
type ConditionProcessor struct {
	subjects    persistence.SubjectStore
	engagements persistence.EngagementStore
	segments    collaborator.Segment

	mu        sync.RWMutex
	exprCache map[string]*vm.Program
}

func NewConditionProcessor(subjects persistence.SubjectStore, engagements persistence.EngagementStore, segments collaborator.Segment) *ConditionProcessor {
	return &ConditionProcessor{
		subjects:    subjects,
		engagements: engagements,
		segments:    segments,
		exprCache:   make(map[string]*vm.Program),
	}
}

func (p *ConditionProcessor) Kind() model.StepKind {
	return model.STEP_KIND_CONDITION
}

func (p *ConditionProcessor) Process(ctx context.Context, enrollment *model.Enrollment, step *flow.Step) model.Outcome {
	result, err := p.evaluate(ctx, enrollment, step)
	if err != nil {
		return model.FailedOutcome(true, err.Error())
	}
	return model.BranchOutcome(strconv.FormatBool(result))
}

func (p *ConditionProcessor) evaluate(ctx context.Context, enrollment *model.Enrollment, step *flow.Step) (bool, error) {
	if engagement := step.ConfigString("engagement"); engagement != "" {
		return p.evaluateEngagement(enrollment, step, engagement)
	}
	if expression := step.ConfigString("expression"); expression != "" {
		return p.evaluateExpression(enrollment, expression)
	}
	if segment := step.ConfigString("segment"); segment != "" {
		return p.segments.Matches(ctx, enrollment.SubjectId, segment)
	}
	return p.evaluateOperator(enrollment, step)
}

func (p *ConditionProcessor) evaluateEngagement(enrollment *model.Enrollment, step *flow.Step, engagement string) (bool, error) {
	stepId := step.ConfigString("referenceStep")
	if stepId == "" {
		stepId = enrollment.LastMessageStepId
	}
	if stepId == "" {
		return false, nil
	}
	opened, err := p.engagements.HasForStep(enrollment.Id, stepId, model.ENGAGEMENT_OPENED)
	if err != nil {
		return false, err
	}
	clicked, err := p.engagements.HasForStep(enrollment.Id, stepId, model.ENGAGEMENT_CLICKED)
	if err != nil {
		return false, err
	}
	replied, err := p.engagements.HasForStep(enrollment.Id, stepId, model.ENGAGEMENT_REPLIED)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(engagement) {
	case "opened":
		return opened, nil
	case "not_opened":
		return !opened, nil
	case "clicked":
		return clicked, nil
	case "not_clicked":
		return !clicked, nil
	case "replied":
		return replied, nil
	case "not_replied":
		return !replied, nil
	case "opened_no_reply":
		return opened && !replied, nil
	case "opened_no_click":
		return opened && !clicked, nil
	case "clicked_no_reply":
		return clicked && !replied, nil
	}
	return false, fmt.Errorf("unknown engagement predicate %s", engagement)
}

func (p *ConditionProcessor) evaluateExpression(enrollment *model.Enrollment, expression string) (bool, error) {
	subject, err := p.subjects.Get(enrollment.SubjectId)
	if err != nil {
		return false, err
	}
	env := templateData(enrollment, subject)

	p.mu.RLock()
	program, ok := p.exprCache[expression]
	p.mu.RUnlock()
	if !ok {
		program, err = expr.Compile(expression, expr.AllowUndefinedVariables())
		if err != nil {
			return false, err
		}
		p.mu.Lock()
		p.exprCache[expression] = program
		p.mu.Unlock()
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	boolResult, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean", expression)
	}
	return boolResult, nil
}

func (p *ConditionProcessor) evaluateOperator(enrollment *model.Enrollment, step *flow.Step) (bool, error) {
	left, present, err := p.resolveOperand(enrollment, step)
	if err != nil {
		return false, err
	}
	operator := strings.ToLower(step.ConfigString("operator"))
	right := step.Config["value"]
	result := compare(left, present, operator, right)
	logger.Debug("condition evaluated", zap.String("enrollmentId", enrollment.Id),
		zap.String("stepId", step.Id), zap.String("operator", operator), zap.Bool("result", result))
	return result, nil
}

func (p *ConditionProcessor) resolveOperand(enrollment *model.Enrollment, step *flow.Step) (any, bool, error) {
	field := step.ConfigString("field")
	switch strings.ToLower(step.ConfigString("source")) {
	case "variable":
		// Exact key first: accumulated variable names may contain dots.
		if value, ok := enrollment.Variables[field]; ok {
			return value, true, nil
		}
		path := field
		if !strings.HasPrefix(path, "$") {
			path = "$." + path
		}
		value, err := jsonpath.JsonPathLookup(enrollment.Variables, path)
		if err != nil {
			return nil, false, nil
		}
		return value, true, nil
	case "literal":
		return field, true, nil
	default:
		subject, err := p.subjects.Get(enrollment.SubjectId)
		if err != nil {
			return nil, false, err
		}
		value, ok := subject.Attributes[field]
		return value, ok, nil
	}
}

// compare implements the fixed operator set. String comparison is trimmed and
// case-insensitive; numeric comparison coerces both sides and treats
// unparsable input as false rather than erroring.
func compare(left any, present bool, operator string, right any) bool {
	switch operator {
	case "exists":
		return present && left != nil
	case "not_exists":
		return !present || left == nil
	}
	if !present {
		return false
	}
	switch operator {
	case "equals":
		return normalize(left) == normalize(right)
	case "not_equals":
		return normalize(left) != normalize(right)
	case "contains":
		return strings.Contains(normalize(left), normalize(right))
	case "not_contains":
		return !strings.Contains(normalize(left), normalize(right))
	case "greater_than":
		l, r, ok := toFloats(left, right)
		return ok && l > r
	case "less_than":
		l, r, ok := toFloats(left, right)
		return ok && l < r
	case "in":
		return inList(left, right)
	case "not_in":
		return !inList(left, right)
	}
	return false
}

func normalize(value any) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
}

func toFloats(left any, right any) (float64, float64, bool) {
	l, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprintf("%v", left)), 64)
	if err != nil {
		return 0, 0, false
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprintf("%v", right)), 64)
	if err != nil {
		return 0, 0, false
	}
	return l, r, true
}

func inList(left any, right any) bool {
	items, ok := right.([]any)
	if !ok {
		return false
	}
	target := normalize(left)
	for _, item := range items {
		if normalize(item) == target {
			return true
		}
	}
	return false
}
