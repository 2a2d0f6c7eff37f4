package trigger

import (
	"context"
	"time"

	"github.com/nudgeworks/journey/collaborator"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

var _ Evaluator = new(NewSubjectEvaluator)

// NewSubjectEvaluator enrolls subjects created within the trailing lookback
// window.
type NewSubjectEvaluator struct {
	subjects    persistence.SubjectStore
	enrollments persistence.EnrollmentStore
	lookback    time.Duration
}

func NewNewSubjectEvaluator(subjects persistence.SubjectStore, enrollments persistence.EnrollmentStore, lookback time.Duration) *NewSubjectEvaluator {
	return &NewSubjectEvaluator{subjects: subjects, enrollments: enrollments, lookback: lookback}
}

func (e *NewSubjectEvaluator) Kind() model.TriggerKind {
	return model.TRIGGER_NEW_SUBJECT
}

func (e *NewSubjectEvaluator) Evaluate(ctx context.Context, flowDef *model.FlowDef) ([]string, error) {
	candidates, err := e.subjects.CreatedSince(time.Now().Add(-e.lookback))
	if err != nil {
		return nil, err
	}
	return excludeEnrolled(e.enrollments, flowDef.Id, candidates)
}

var _ Evaluator = new(SegmentEvaluator)

// SegmentEvaluator enrolls recently touched subjects whose attributes match
// the flow's stored segment predicate. Predicate evaluation is delegated to
// the segment collaborator.
type SegmentEvaluator struct {
	subjects    persistence.SubjectStore
	enrollments persistence.EnrollmentStore
	segments    collaborator.Segment
	lookback    time.Duration
}

func NewSegmentEvaluator(subjects persistence.SubjectStore, enrollments persistence.EnrollmentStore, segments collaborator.Segment, lookback time.Duration) *SegmentEvaluator {
	return &SegmentEvaluator{subjects: subjects, enrollments: enrollments, segments: segments, lookback: lookback}
}

func (e *SegmentEvaluator) Kind() model.TriggerKind {
	return model.TRIGGER_SEGMENT
}

func (e *SegmentEvaluator) Evaluate(ctx context.Context, flowDef *model.FlowDef) ([]string, error) {
	candidates, err := e.subjects.UpdatedSince(time.Now().Add(-e.lookback))
	if err != nil {
		return nil, err
	}
	candidates, err = excludeEnrolled(e.enrollments, flowDef.Id, candidates)
	if err != nil {
		return nil, err
	}
	predicate := cast.ToString(flowDef.Trigger.Config["segment"])
	if predicate == "" {
		return candidates, nil
	}
	matched := make([]string, 0, len(candidates))
	for _, subjectId := range candidates {
		ok, err := e.segments.Matches(ctx, subjectId, predicate)
		if err != nil {
			logger.Error("segment match failed", zap.String("subjectId", subjectId), zap.Error(err))
			continue
		}
		if ok {
			matched = append(matched, subjectId)
		}
	}
	return matched, nil
}

var _ Evaluator = new(ScheduledDateEvaluator)

// ScheduledDateEvaluator fires for subjects whose date attribute falls within
// a symmetric window around now+offset. The window is clamped to at least the
// poll interval, otherwise a subject's date could slip between two ticks or
// fire twice; enrollment idempotence catches the remaining overlap.
type ScheduledDateEvaluator struct {
	subjects     persistence.SubjectStore
	enrollments  persistence.EnrollmentStore
	pollInterval time.Duration
}

func NewScheduledDateEvaluator(subjects persistence.SubjectStore, enrollments persistence.EnrollmentStore, pollInterval time.Duration) *ScheduledDateEvaluator {
	return &ScheduledDateEvaluator{subjects: subjects, enrollments: enrollments, pollInterval: pollInterval}
}

func (e *ScheduledDateEvaluator) Kind() model.TriggerKind {
	return model.TRIGGER_SCHEDULED_DATE
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func (e *ScheduledDateEvaluator) Evaluate(ctx context.Context, flowDef *model.FlowDef) ([]string, error) {
	field := cast.ToString(flowDef.Trigger.Config["dateField"])
	if field == "" {
		return nil, nil
	}
	offset := time.Duration(cast.ToInt(flowDef.Trigger.Config["offsetDays"])) * 24 * time.Hour
	window := time.Duration(cast.ToInt(flowDef.Trigger.Config["windowMinutes"])) * time.Minute
	if window < e.pollInterval {
		window = e.pollInterval
	}
	target := time.Now().Add(offset)
	from, to := target.Add(-window), target.Add(window)

	candidates, err := e.subjects.All()
	if err != nil {
		return nil, err
	}
	matched := make([]string, 0)
	for _, subjectId := range candidates {
		subject, err := e.subjects.Get(subjectId)
		if err != nil {
			continue
		}
		date, ok := parseDate(subject.Attributes[field])
		if !ok {
			continue
		}
		if !date.Before(from) && !date.After(to) {
			matched = append(matched, subjectId)
		}
	}
	return excludeEnrolled(e.enrollments, flowDef.Id, matched)
}

func parseDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var _ Evaluator = new(NoopEvaluator)

// NoopEvaluator covers trigger kinds whose enrollments are created outside
// the polling loop: External (webhook ingestion) and Manual (explicit API
// call).
type NoopEvaluator struct {
	kind model.TriggerKind
}

func NewNoopEvaluator(kind model.TriggerKind) *NoopEvaluator {
	return &NoopEvaluator{kind: kind}
}

func (e *NoopEvaluator) Kind() model.TriggerKind {
	return e.kind
}

func (e *NoopEvaluator) Evaluate(ctx context.Context, flowDef *model.FlowDef) ([]string, error) {
	return nil, nil
}

func excludeEnrolled(enrollments persistence.EnrollmentStore, flowId string, candidates []string) ([]string, error) {
	result := make([]string, 0, len(candidates))
	for _, subjectId := range candidates {
		enrolled, err := enrollments.IsEnrolled(flowId, subjectId)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			result = append(result, subjectId)
		}
	}
	return result, nil
}
