package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"go.uber.org/zap"
)

var _ Processor = new(ActionProcessor)

// ActionProcessor mutates subject-level state. Every sub-operation is
// idempotent, which is the mitigation for enrollments in different flows
// racing on the same subject.
type ActionProcessor struct {
	subjects       persistence.SubjectStore
	fieldAllowList map[string]struct{}
}

var defaultFieldAllowList = []string{"firstName", "lastName", "company", "phone", "notes"}

func NewActionProcessor(subjects persistence.SubjectStore, fieldAllowList []string) *ActionProcessor {
	if len(fieldAllowList) == 0 {
		fieldAllowList = defaultFieldAllowList
	}
	allowed := make(map[string]struct{}, len(fieldAllowList))
	for _, field := range fieldAllowList {
		allowed[field] = struct{}{}
	}
	return &ActionProcessor{
		subjects:       subjects,
		fieldAllowList: allowed,
	}
}

func (p *ActionProcessor) Kind() model.StepKind {
	return model.STEP_KIND_ACTION
}

func (p *ActionProcessor) Process(ctx context.Context, enrollment *model.Enrollment, step *flow.Step) model.Outcome {
	operation := strings.ToLower(step.ConfigString("operation"))
	var err error
	outcome := model.CompletedOutcome()
	switch operation {
	case "add_tag":
		err = p.subjects.AddTag(enrollment.SubjectId, step.ConfigString("tag"))
	case "remove_tag":
		err = p.subjects.RemoveTag(enrollment.SubjectId, step.ConfigString("tag"))
	case "add_to_list":
		listId := step.ConfigString("listId")
		if err = p.subjects.AddToList(enrollment.SubjectId, listId); err == nil {
			outcome.Variables = p.listCountVariables(listId)
		}
	case "remove_from_list":
		listId := step.ConfigString("listId")
		if err = p.subjects.RemoveFromList(enrollment.SubjectId, listId); err == nil {
			outcome.Variables = p.listCountVariables(listId)
		}
	case "update_field":
		field := step.ConfigString("field")
		if _, ok := p.fieldAllowList[field]; !ok {
			return model.FailedOutcome(false, fmt.Sprintf("field %s is not updatable", field))
		}
		err = p.subjects.UpdateField(enrollment.SubjectId, field, step.ConfigString("value"))
	default:
		return model.FailedOutcome(false, fmt.Sprintf("unknown action operation %s", operation))
	}
	if err != nil {
		return model.FailedOutcome(true, err.Error())
	}
	logger.Debug("action applied", zap.String("enrollmentId", enrollment.Id),
		zap.String("stepId", step.Id), zap.String("operation", operation))
	return outcome
}

func (p *ActionProcessor) listCountVariables(listId string) map[string]any {
	count, err := p.subjects.ListMemberCount(listId)
	if err != nil {
		return nil
	}
	return map[string]any{"list." + listId + ".count": count}
}
