package collaborator

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
)

var _ Segment = new(ExprSegment)

// ExprSegment evaluates segment predicates as expressions over the subject
// record, e.g. `attributes.plan == "pro" and "vip" in tags`. Compiled
// programs are cached per predicate.
type ExprSegment struct {
	subjects persistence.SubjectStore
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func NewExprSegment(subjects persistence.SubjectStore) *ExprSegment {
	return &ExprSegment{
		subjects: subjects,
		programs: make(map[string]*vm.Program),
	}
}

func (s *ExprSegment) Matches(ctx context.Context, subjectId string, predicate string) (bool, error) {
	subject, err := s.subjects.Get(subjectId)
	if err != nil {
		return false, err
	}
	program, err := s.compile(predicate)
	if err != nil {
		return false, err
	}
	output, err := expr.Run(program, segmentEnv(subject))
	if err != nil {
		return false, fmt.Errorf("segment predicate failed for subject %s: %w", subjectId, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("segment predicate is not boolean: %q", predicate)
	}
	return result, nil
}

func (s *ExprSegment) compile(predicate string) (*vm.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if program, ok := s.programs[predicate]; ok {
		return program, nil
	}
	program, err := expr.Compile(predicate, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid segment predicate %q: %w", predicate, err)
	}
	s.programs[predicate] = program
	return program, nil
}

func segmentEnv(subject *model.Subject) map[string]any {
	tags := subject.Tags
	if tags == nil {
		tags = []string{}
	}
	lists := subject.Lists
	if lists == nil {
		lists = []string{}
	}
	attributes := subject.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}
	return map[string]any{
		"attributes": attributes,
		"tags":       tags,
		"lists":      lists,
	}
}
