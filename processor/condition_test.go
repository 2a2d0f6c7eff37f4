package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence/memory"
	"github.com/stretchr/testify/require"
)

type fakeSegment struct {
	members map[string]bool
	err     error
}

func (f *fakeSegment) Matches(ctx context.Context, subjectId string, predicate string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[subjectId], nil
}

func conditionStep(config map[string]any) *flow.Step {
	return &flow.Step{Id: "c1", Kind: model.STEP_KIND_CONDITION, Config: config}
}

func conditionFixture(t *testing.T) (*ConditionProcessor, *memory.InMemSubjectStore, *memory.InMemEngagementStore, *fakeSegment) {
	subjects := memory.NewInMemSubjectStore()
	engagements := memory.NewInMemEngagementStore()
	segments := &fakeSegment{members: map[string]bool{}}
	require.NoError(t, subjects.Save(&model.Subject{
		Id: "s1",
		Attributes: map[string]any{
			"plan":      "Pro",
			"mrr":       120,
			"firstName": "Ada",
		},
	}))
	return NewConditionProcessor(subjects, engagements, segments), subjects, engagements, segments
}

func activeEnrollment() *model.Enrollment {
	return &model.Enrollment{
		Id:        "e1",
		FlowId:    "f1",
		SubjectId: "s1",
		Status:    model.ENROLLMENT_ACTIVE,
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func TestConditionOperators(t *testing.T) {
	p, _, _, _ := conditionFixture(t)
	enrollment := activeEnrollment()
	enrollment.SetVariable("score", 42)

	for scenario, tc := range map[string]struct {
		config map[string]any
		want   string
	}{
		"equals case insensitive": {
			map[string]any{"field": "plan", "operator": "equals", "value": "pro"}, "true"},
		"not equals": {
			map[string]any{"field": "plan", "operator": "not_equals", "value": "free"}, "true"},
		"contains": {
			map[string]any{"field": "firstName", "operator": "contains", "value": "da"}, "true"},
		"greater than numeric": {
			map[string]any{"field": "mrr", "operator": "greater_than", "value": 100}, "true"},
		"less than false": {
			map[string]any{"field": "mrr", "operator": "less_than", "value": 100}, "false"},
		"unparsable numeric is false": {
			map[string]any{"field": "plan", "operator": "greater_than", "value": 100}, "false"},
		"exists": {
			map[string]any{"field": "plan", "operator": "exists"}, "true"},
		"not exists on missing field": {
			map[string]any{"field": "nickname", "operator": "not_exists"}, "true"},
		"missing field is false": {
			map[string]any{"field": "nickname", "operator": "equals", "value": "x"}, "false"},
		"in list": {
			map[string]any{"field": "plan", "operator": "in", "value": []any{"Pro", "Team"}}, "true"},
		"variable source": {
			map[string]any{"source": "variable", "field": "score", "operator": "greater_than", "value": 40}, "true"},
	} {
		t.Run(scenario, func(t *testing.T) {
			outcome := p.Process(context.Background(), enrollment, conditionStep(tc.config))
			require.False(t, outcome.Failed)
			require.True(t, outcome.Completed)
			require.Equal(t, tc.want, outcome.Branch)
		})
	}
}

func TestConditionEngagement(t *testing.T) {
	p, _, engagements, _ := conditionFixture(t)
	enrollment := activeEnrollment()
	enrollment.LastMessageStepId = "m1"

	require.NoError(t, engagements.Record(&model.Engagement{
		SubjectId: "s1", EnrollmentId: "e1", StepId: "m1",
		Type: model.ENGAGEMENT_OPENED, Timestamp: time.Now(),
	}))

	for scenario, tc := range map[string]struct {
		predicate string
		want      string
	}{
		"opened":           {"opened", "true"},
		"not opened":       {"not_opened", "false"},
		"clicked":          {"clicked", "false"},
		"not replied":      {"not_replied", "true"},
		"opened no reply":  {"opened_no_reply", "true"},
		"opened no click":  {"opened_no_click", "true"},
		"clicked no reply": {"clicked_no_reply", "false"},
	} {
		t.Run(scenario, func(t *testing.T) {
			outcome := p.Process(context.Background(), enrollment, conditionStep(map[string]any{"engagement": tc.predicate}))
			require.False(t, outcome.Failed)
			require.Equal(t, tc.want, outcome.Branch)
		})
	}

	t.Run("no reference step evaluates false", func(t *testing.T) {
		bare := activeEnrollment()
		outcome := p.Process(context.Background(), bare, conditionStep(map[string]any{"engagement": "opened"}))
		require.Equal(t, "false", outcome.Branch)
	})

	t.Run("explicit reference step", func(t *testing.T) {
		outcome := p.Process(context.Background(), enrollment, conditionStep(map[string]any{"engagement": "opened", "referenceStep": "m9"}))
		require.Equal(t, "false", outcome.Branch)
	})

	t.Run("unknown predicate fails transiently", func(t *testing.T) {
		outcome := p.Process(context.Background(), enrollment, conditionStep(map[string]any{"engagement": "sneezed"}))
		require.True(t, outcome.Failed)
		require.True(t, outcome.Transient)
	})
}

func TestConditionExpression(t *testing.T) {
	p, _, _, _ := conditionFixture(t)
	enrollment := activeEnrollment()
	enrollment.SetVariable("score", 42)

	outcome := p.Process(context.Background(), enrollment, conditionStep(map[string]any{
		"expression": `subject.plan == "Pro" and variables.score > 40`,
	}))
	require.False(t, outcome.Failed)
	require.Equal(t, "true", outcome.Branch)

	outcome = p.Process(context.Background(), enrollment, conditionStep(map[string]any{
		"expression": `subject.plan`,
	}))
	require.True(t, outcome.Failed)
}

func TestConditionSegment(t *testing.T) {
	p, _, _, segments := conditionFixture(t)
	segments.members["s1"] = true

	outcome := p.Process(context.Background(), activeEnrollment(), conditionStep(map[string]any{"segment": "vip"}))
	require.Equal(t, "true", outcome.Branch)

	segments.err = errors.New("segment service down")
	outcome = p.Process(context.Background(), activeEnrollment(), conditionStep(map[string]any{"segment": "vip"}))
	require.True(t, outcome.Failed)
	require.True(t, outcome.Transient)
}
