package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nudgeworks/journey/analytics"
	"github.com/nudgeworks/journey/config"
	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/processor"
	"github.com/nudgeworks/journey/trigger"
	"github.com/nudgeworks/journey/util"
	"go.uber.org/zap"
)

// Engine drives flows forward on a fixed poll interval. Every tick it fires
// trigger evaluators for the active flows, loads the batch of due
// enrollments, and advances each claimed enrollment synchronously through at
// most maxStepsPerTick steps. A tick never blocks on an unfinished previous
// tick; the claim lease keeps overlapping ticks from dispatching the same
// enrollment twice.
type Engine struct {
	flows       *flow.Service
	enrollments persistence.EnrollmentStore
	engagements persistence.EngagementStore
	triggers    *trigger.Registry
	processors  *processor.Registry

	pollInterval    time.Duration
	batchSize       int
	maxStepsPerTick int
	maxStepFailures int
	claimLease      time.Duration

	tickWorker  *util.TickWorker
	eventWorker *util.Worker
	wg          *sync.WaitGroup
}

func NewEngine(conf *config.Config, flows *flow.Service, enrollments persistence.EnrollmentStore, engagements persistence.EngagementStore, events persistence.EventLog, triggers *trigger.Registry, processors *processor.Registry, wg *sync.WaitGroup) *Engine {
	e := &Engine{
		flows:           flows,
		enrollments:     enrollments,
		engagements:     engagements,
		triggers:        triggers,
		processors:      processors,
		pollInterval:    conf.PollInterval,
		batchSize:       conf.BatchSize,
		maxStepsPerTick: conf.MaxStepsPerTick,
		maxStepFailures: conf.MaxStepFailures,
		claimLease:      conf.ClaimLease,
		wg:              wg,
	}
	e.eventWorker = util.NewWorker("audit-events", wg, func(task util.Task) error {
		return events.Append(task.(*model.Event))
	}, 1000)
	e.tickWorker = util.NewTickWorker("engine-poll", conf.PollInterval, make(chan struct{}), e.Tick, wg)
	return e
}

func (e *Engine) Start() {
	e.eventWorker.Start()
	e.tickWorker.Start()
}

func (e *Engine) Stop() {
	e.tickWorker.Stop()
	e.eventWorker.Stop()
}

// Tick runs one full poll cycle. Exported so tests and manual tooling can
// drive the engine without the ticker.
func (e *Engine) Tick() {
	ctx := context.Background()
	e.fireTriggers(ctx)
	touched := e.dispatchReady(ctx)
	e.recomputeStats(touched)
}

func (e *Engine) fireTriggers(ctx context.Context) {
	flowDefs, err := e.flows.ListActive()
	if err != nil {
		logger.Error("listing active flows failed", zap.Error(err))
		return
	}
	for _, flowDef := range flowDefs {
		subjectIds, err := e.triggers.Evaluate(ctx, flowDef)
		if err != nil {
			logger.Error("trigger evaluation failed", zap.String("flowId", flowDef.Id), zap.Error(err))
			continue
		}
		for _, subjectId := range subjectIds {
			if _, created, err := e.Enroll(flowDef.Id, subjectId); err != nil {
				logger.Error("enrollment create failed", zap.String("flowId", flowDef.Id), zap.String("subjectId", subjectId), zap.Error(err))
			} else if created {
				logger.Info("subject enrolled", zap.String("flowId", flowDef.Id), zap.String("subjectId", subjectId))
			}
		}
	}
}

// Enroll creates the (flowId, subjectId) enrollment if it does not exist,
// pinned to the flow's current version. Safe to call repeatedly; the second
// call returns the existing record with created=false.
func (e *Engine) Enroll(flowId string, subjectId string) (*model.Enrollment, bool, error) {
	flowDef, err := e.flows.Get(flowId)
	if err != nil {
		return nil, false, err
	}
	return e.enrollments.Create(flowDef.Id, flowDef.Version, subjectId)
}

func (e *Engine) dispatchReady(ctx context.Context) map[string]bool {
	touched := make(map[string]bool)
	batch, err := e.enrollments.LoadReady(time.Now(), e.batchSize)
	if err != nil {
		logger.Error("loading ready enrollments failed", zap.Error(err))
		return touched
	}
	for _, enrollment := range batch {
		if e.dispatchOne(ctx, enrollment.FlowId, enrollment.Id) {
			touched[enrollment.FlowId] = true
		}
	}
	return touched
}

// dispatchOne claims one enrollment and advances it. The loaded batch is a
// pre-claim snapshot: a concurrent tick may have advanced the enrollment and
// released its claim in the meantime, so the record is re-fetched under the
// claim and skipped unless it is still due. Returns whether the enrollment
// was advanced.
func (e *Engine) dispatchOne(ctx context.Context, flowId string, enrollmentId string) bool {
	claimed, err := e.enrollments.Claim(enrollmentId, e.claimLease)
	if err != nil {
		logger.Error("claim failed", zap.String("enrollmentId", enrollmentId), zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}
	defer func() {
		if err := e.enrollments.Release(enrollmentId); err != nil {
			logger.Error("claim release failed", zap.String("enrollmentId", enrollmentId), zap.Error(err))
		}
	}()
	enrollment, err := e.enrollments.Get(flowId, enrollmentId)
	if err != nil {
		logger.Error("claimed enrollment not loadable", zap.String("enrollmentId", enrollmentId), zap.Error(err))
		return false
	}
	if !enrollment.Ready(time.Now()) {
		return false
	}
	e.advance(ctx, enrollment)
	return true
}

// advance moves one claimed enrollment forward through consecutive immediate
// steps until it waits, terminates, fails, or hits the per-tick bound. Every
// state change is persisted before the claim is released.
func (e *Engine) advance(ctx context.Context, enrollment *model.Enrollment) {
	graph, err := e.flows.ResolveVersion(enrollment.FlowId, enrollment.FlowVersion)
	if err != nil {
		logger.Error("flow resolution failed", zap.String("flowId", enrollment.FlowId), zap.Int("version", enrollment.FlowVersion), zap.Error(err))
		return
	}
	if e.unsubscribed(enrollment) {
		e.terminate(enrollment, model.ENROLLMENT_UNSUBSCRIBED)
		return
	}
	for steps := 0; steps < e.maxStepsPerTick; steps++ {
		stepId := enrollment.CurrentStepId
		if stepId == "" {
			stepId = graph.Entry
		}
		if stepId == "" || stepId == model.END_TARGET {
			e.terminate(enrollment, model.ENROLLMENT_COMPLETED)
			return
		}
		step, ok := graph.Step(stepId)
		if !ok {
			e.fail(enrollment, stepId, "step "+stepId+" not found in flow")
			return
		}
		enrollment.CurrentStepId = stepId
		proc, err := e.processors.Get(step.Kind)
		if err != nil {
			e.fail(enrollment, stepId, err.Error())
			return
		}
		e.appendEvent(enrollment, stepId, model.EVENT_ENTERED, model.Outcome{})
		outcome := proc.Process(ctx, enrollment, step)
		for key, value := range outcome.Variables {
			enrollment.SetVariable(key, value)
		}

		if outcome.Failed {
			e.appendEvent(enrollment, stepId, model.EVENT_FAILED, outcome)
			analytics.RecordStepFailure(enrollment.FlowId, enrollment.Id, stepId, string(step.Kind), outcome.Error)
			if outcome.Transient {
				enrollment.StepFailures++
				enrollment.FailureReason = outcome.Error
				if enrollment.StepFailures < e.maxStepFailures {
					logger.Warn("transient step failure, will retry",
						zap.String("enrollmentId", enrollment.Id),
						zap.String("stepId", stepId),
						zap.Int("failures", enrollment.StepFailures),
						zap.String("error", outcome.Error))
					enrollment.Status = model.ENROLLMENT_ACTIVE
					enrollment.WaitUntil = nil
					e.save(enrollment)
					return
				}
			} else {
				enrollment.FailureReason = outcome.Error
			}
			e.terminate(enrollment, model.ENROLLMENT_FAILED)
			return
		}

		e.appendEvent(enrollment, stepId, model.EVENT_EXITED, outcome)
		analytics.RecordStepSuccess(enrollment.FlowId, enrollment.Id, stepId, string(step.Kind), outcome.Variables)
		enrollment.StepFailures = 0
		enrollment.FailureReason = ""

		if outcome.Stop {
			e.terminate(enrollment, model.ENROLLMENT_COMPLETED)
			return
		}
		if outcome.WaitUntil != nil {
			enrollment.Status = model.ENROLLMENT_WAITING
			enrollment.WaitUntil = outcome.WaitUntil
			e.save(enrollment)
			return
		}

		next := step.Next
		if outcome.Branch != "" {
			// A branch label without a wired target falls back to the
			// positional next rather than dead-ending the enrollment.
			if target, ok := step.BranchTarget(outcome.Branch); ok {
				next = target
			}
		}
		if next == "" || next == model.END_TARGET {
			e.terminate(enrollment, model.ENROLLMENT_COMPLETED)
			return
		}
		enrollment.CurrentStepId = next
		enrollment.Status = model.ENROLLMENT_ACTIVE
		enrollment.WaitUntil = nil
	}
	// Bound reached mid-flow; persist as ACTIVE so the next tick resumes at
	// the current step.
	e.save(enrollment)
}

func (e *Engine) unsubscribed(enrollment *model.Enrollment) bool {
	has, err := e.engagements.HasSince(enrollment.SubjectId, model.ENGAGEMENT_UNSUBSCRIBED, enrollment.CreatedAt)
	if err != nil {
		logger.Error("unsubscribe lookup failed", zap.String("subjectId", enrollment.SubjectId), zap.Error(err))
		return false
	}
	return has
}

func (e *Engine) terminate(enrollment *model.Enrollment, status model.EnrollmentStatus) {
	now := time.Now()
	enrollment.Status = status
	enrollment.WaitUntil = nil
	switch status {
	case model.ENROLLMENT_COMPLETED:
		enrollment.CompletedAt = &now
	case model.ENROLLMENT_FAILED:
		enrollment.FailedAt = &now
	}
	e.save(enrollment)
	logger.Info("enrollment finished",
		zap.String("enrollmentId", enrollment.Id),
		zap.String("flowId", enrollment.FlowId),
		zap.String("status", string(status)))
}

func (e *Engine) fail(enrollment *model.Enrollment, stepId string, reason string) {
	e.appendEvent(enrollment, stepId, model.EVENT_FAILED, model.FailedOutcome(false, reason))
	analytics.RecordStepFailure(enrollment.FlowId, enrollment.Id, stepId, "", reason)
	enrollment.FailureReason = reason
	e.terminate(enrollment, model.ENROLLMENT_FAILED)
}

func (e *Engine) save(enrollment *model.Enrollment) {
	enrollment.UpdatedAt = time.Now()
	if err := e.enrollments.Save(enrollment); err != nil {
		logger.Error("enrollment save failed", zap.String("enrollmentId", enrollment.Id), zap.Error(err))
	}
}

func (e *Engine) appendEvent(enrollment *model.Enrollment, stepId string, eventType model.EventType, outcome model.Outcome) {
	e.eventWorker.Sender() <- &model.Event{
		Id:           uuid.New().String(),
		EnrollmentId: enrollment.Id,
		FlowId:       enrollment.FlowId,
		StepId:       stepId,
		Type:         eventType,
		Payload:      outcome,
		Timestamp:    time.Now(),
	}
}

func (e *Engine) recomputeStats(touched map[string]bool) {
	for flowId := range touched {
		counts, err := e.enrollments.CountByStatus(flowId)
		if err != nil {
			logger.Error("stats recompute failed", zap.String("flowId", flowId), zap.Error(err))
			continue
		}
		analytics.RecordFlowStats(flowId, counts)
	}
}
