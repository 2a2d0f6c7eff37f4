package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nudgeworks/journey/collaborator"
	"github.com/nudgeworks/journey/config"
	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence/memory"
	"github.com/nudgeworks/journey/processor"
	"github.com/nudgeworks/journey/trigger"
	"github.com/stretchr/testify/require"
)

type fakeMessaging struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (f *fakeMessaging) SendMessage(ctx context.Context, subjectId string, message collaborator.Message, opts collaborator.SendOptions) (*collaborator.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, message.Subject)
	return &collaborator.SendResult{MessageId: "msg-1", ThreadId: "thread-1"}, nil
}

func (f *fakeMessaging) FetchThreadContext(ctx context.Context, subjectId string, threadId string) (*collaborator.ThreadContext, error) {
	return nil, nil
}

func (f *fakeMessaging) ResolveMessageIdentifierHeader(ctx context.Context, subjectId string, messageId string) (string, error) {
	return messageId, nil
}

func (f *fakeMessaging) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type harness struct {
	engine      *Engine
	flows       *flow.Service
	enrollments *memory.InMemEnrollmentStore
	engagements *memory.InMemEngagementStore
	subjects    *memory.InMemSubjectStore
	messaging   *fakeMessaging
	wg          sync.WaitGroup
}

func testConfig() *config.Config {
	return &config.Config{
		PollInterval:    time.Minute,
		BatchSize:       100,
		MaxStepsPerTick: 25,
		MaxStepFailures: 3,
		ClaimLease:      time.Minute,
	}
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		enrollments: memory.NewInMemEnrollmentStore(),
		engagements: memory.NewInMemEngagementStore(),
		subjects:    memory.NewInMemSubjectStore(),
		messaging:   &fakeMessaging{},
	}
	h.flows = flow.NewService(memory.NewInMemFlowStore())
	h.engine = h.newEngine(t)

	require.NoError(t, h.subjects.Save(&model.Subject{
		Id:         "s1",
		Attributes: map[string]any{"firstName": "Ada"},
	}))
	return h
}

// newEngine builds a fresh engine over the harness's shared stores, which is
// how the restart scenarios simulate a process bounce.
func (h *harness) newEngine(t *testing.T) *Engine {
	templates := memory.NewInMemTemplateStore()
	events := memory.NewInMemEventLog()
	processors := processor.NewRegistry(
		processor.NewMessageProcessor(h.messaging, h.subjects, templates, h.engagements),
		processor.NewDelayProcessor(),
		processor.NewConditionProcessor(h.subjects, h.engagements, nil),
		processor.NewActionProcessor(h.subjects, nil),
		processor.NewExternalCallProcessor(h.subjects, time.Second),
	)
	triggers := trigger.NewRegistry(
		trigger.NewNoopEvaluator(model.TRIGGER_MANUAL),
	)
	return NewEngine(testConfig(), h.flows, h.enrollments, h.engagements, events, triggers, processors, &h.wg)
}

func (h *harness) activate(t *testing.T, def *model.FlowDef) {
	require.NoError(t, h.flows.Activate(def))
}

func (h *harness) enroll(t *testing.T, flowId string) *model.Enrollment {
	enrollment, created, err := h.engine.Enroll(flowId, "s1")
	require.NoError(t, err)
	require.True(t, created)
	return enrollment
}

func (h *harness) get(t *testing.T, flowId string, enrollmentId string) *model.Enrollment {
	enrollment, err := h.enrollments.Get(flowId, enrollmentId)
	require.NoError(t, err)
	return enrollment
}

func manualFlow(id string, steps ...model.StepDef) *model.FlowDef {
	return &model.FlowDef{
		Id:      id,
		Trigger: model.TriggerDef{Kind: model.TRIGGER_MANUAL},
		Steps:   steps,
	}
}

func TestLinearFlowCompletes(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("welcome",
		model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Hi {{firstName}}"}},
		model.StepDef{Id: "a1", Kind: "ACTION", Config: map[string]any{"operation": "add_tag", "tag": "welcomed"}},
	))
	enrollment := h.enroll(t, "welcome")

	h.engine.Tick()

	done := h.get(t, "welcome", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_COMPLETED, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.Equal(t, 1, h.messaging.sentCount())
	require.Equal(t, "Hi Ada", h.messaging.sent[0])

	subject, err := h.subjects.Get("s1")
	require.NoError(t, err)
	require.Contains(t, subject.Tags, "welcomed")

	t.Run("second tick does not resend", func(t *testing.T) {
		h.engine.Tick()
		require.Equal(t, 1, h.messaging.sentCount())
	})
}

func TestEngagementBranch(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("nurture",
		model.StepDef{Id: "c1", Kind: "CONDITION",
			Config:      map[string]any{"engagement": "opened", "referenceStep": "m0"},
			TrueBranch:  []string{"a1"},
			FalseBranch: []string{"END"}},
		model.StepDef{Id: "a1", Kind: "ACTION", Config: map[string]any{"operation": "add_tag", "tag": "engaged"}},
	))
	enrollment := h.enroll(t, "nurture")
	require.NoError(t, h.engagements.Record(&model.Engagement{
		SubjectId: "s1", EnrollmentId: enrollment.Id, StepId: "m0",
		Type: model.ENGAGEMENT_OPENED, Timestamp: time.Now(),
	}))

	h.engine.Tick()

	done := h.get(t, "nurture", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_COMPLETED, done.Status)
	subject, err := h.subjects.Get("s1")
	require.NoError(t, err)
	require.Contains(t, subject.Tags, "engaged")
}

func TestBranchFallsBackToPositionalNext(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("fallback",
		model.StepDef{Id: "c1", Kind: "CONDITION",
			Config:     map[string]any{"engagement": "opened", "referenceStep": "m0"},
			TrueBranch: []string{"END"}},
		model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Fallback"}},
	))
	enrollment := h.enroll(t, "fallback")

	h.engine.Tick()

	done := h.get(t, "fallback", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_COMPLETED, done.Status)
	require.Equal(t, 1, h.messaging.sentCount())
	require.Equal(t, "Fallback", h.messaging.sent[0])
}

func TestSuppressionStopsEnrollment(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("followup",
		model.StepDef{Id: "m1", Kind: "MESSAGE",
			Config: map[string]any{"subject": "Checking in", "sendOnlyIfNoReply": true}},
		model.StepDef{Id: "m2", Kind: "MESSAGE", Config: map[string]any{"subject": "Another nudge"}},
	))
	enrollment := h.enroll(t, "followup")
	require.NoError(t, h.engagements.Record(&model.Engagement{
		SubjectId: "s1", Type: model.ENGAGEMENT_REPLIED, Timestamp: time.Now(),
	}))

	h.engine.Tick()

	done := h.get(t, "followup", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_COMPLETED, done.Status)
	require.Zero(t, h.messaging.sentCount())
}

func TestClaimedEnrollmentSkipped(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("claimed",
		model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Once"}},
	))
	enrollment := h.enroll(t, "claimed")

	claimed, err := h.enrollments.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	h.engine.Tick()
	require.Zero(t, h.messaging.sentCount())
	require.Equal(t, model.ENROLLMENT_ACTIVE, h.get(t, "claimed", enrollment.Id).Status)

	require.NoError(t, h.enrollments.Release(enrollment.Id))
	h.engine.Tick()
	require.Equal(t, 1, h.messaging.sentCount())
	require.Equal(t, model.ENROLLMENT_COMPLETED, h.get(t, "claimed", enrollment.Id).Status)
}

func TestStaleBatchNotRedispatched(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("overlap",
		model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Once"}},
	))
	enrollment := h.enroll(t, "overlap")

	// A slow tick loads its batch, then a faster tick runs the enrollment
	// to completion and releases the claim before the slow tick reaches it.
	batch, err := h.enrollments.LoadReady(time.Now(), 100)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	h.engine.Tick()
	require.Equal(t, 1, h.messaging.sentCount())
	require.Equal(t, model.ENROLLMENT_COMPLETED, h.get(t, "overlap", enrollment.Id).Status)

	// The slow tick now dispatches from its stale snapshot. Its claim
	// succeeds, but the finished enrollment must not run again.
	for _, stale := range batch {
		require.False(t, h.engine.dispatchOne(context.Background(), stale.FlowId, stale.Id))
	}
	require.Equal(t, 1, h.messaging.sentCount())
	require.Equal(t, model.ENROLLMENT_COMPLETED, h.get(t, "overlap", enrollment.Id).Status)
}

func TestDelayWaitsAndVariablesSurviveRestart(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("drip",
		model.StepDef{Id: "a1", Kind: "ACTION", Config: map[string]any{"operation": "add_to_list", "listId": "drip"}},
		model.StepDef{Id: "d1", Kind: "DELAY", Config: map[string]any{"duration": 30, "unit": "minutes"}},
		model.StepDef{Id: "c1", Kind: "CONDITION",
			Config:      map[string]any{"source": "variable", "field": "list.drip.count", "operator": "greater_than", "value": 0},
			TrueBranch:  []string{"a2"},
			FalseBranch: []string{"END"}},
		model.StepDef{Id: "a2", Kind: "ACTION", Config: map[string]any{"operation": "add_tag", "tag": "counted"}},
	))
	enrollment := h.enroll(t, "drip")

	h.engine.Tick()

	waiting := h.get(t, "drip", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_WAITING, waiting.Status)
	require.Equal(t, "d1", waiting.CurrentStepId)
	require.NotNil(t, waiting.WaitUntil)
	require.Equal(t, int64(1), waiting.Variables["list.drip.count"])

	// Backdate the wait so the delay has elapsed, then resume on a new
	// engine over the same stores.
	past := time.Now().Add(-time.Hour)
	waiting.CreatedAt = past.Add(-time.Hour)
	waiting.WaitUntil = &past
	require.NoError(t, h.enrollments.Save(waiting))

	restarted := h.newEngine(t)
	restarted.Tick()

	done := h.get(t, "drip", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_COMPLETED, done.Status)
	subject, err := h.subjects.Get("s1")
	require.NoError(t, err)
	require.Contains(t, subject.Tags, "counted")
}

func TestTransientFailuresEscalate(t *testing.T) {
	h := newHarness(t)
	h.messaging.sendErr = errors.New("smtp unavailable")
	h.activate(t, manualFlow("flaky",
		model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Hi"}},
	))
	enrollment := h.enroll(t, "flaky")

	h.engine.Tick()
	first := h.get(t, "flaky", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_ACTIVE, first.Status)
	require.Equal(t, 1, first.StepFailures)
	require.Equal(t, "smtp unavailable", first.FailureReason)

	h.engine.Tick()
	require.Equal(t, 2, h.get(t, "flaky", enrollment.Id).StepFailures)

	h.engine.Tick()
	failed := h.get(t, "flaky", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_FAILED, failed.Status)
	require.NotNil(t, failed.FailedAt)

	t.Run("recovery resets the counter", func(t *testing.T) {
		h2 := newHarness(t)
		h2.messaging.sendErr = errors.New("smtp unavailable")
		h2.activate(t, manualFlow("recovering",
			model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Hi"}},
		))
		enrollment := h2.enroll(t, "recovering")

		h2.engine.Tick()
		require.Equal(t, 1, h2.get(t, "recovering", enrollment.Id).StepFailures)

		h2.messaging.sendErr = nil
		h2.engine.Tick()
		done := h2.get(t, "recovering", enrollment.Id)
		require.Equal(t, model.ENROLLMENT_COMPLETED, done.Status)
		require.Zero(t, done.StepFailures)
		require.Empty(t, done.FailureReason)
	})
}

func TestUnsubscribeTerminatesBeforeSend(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("polite",
		model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Hi"}},
	))
	enrollment := h.enroll(t, "polite")
	require.NoError(t, h.engagements.Record(&model.Engagement{
		SubjectId: "s1", Type: model.ENGAGEMENT_UNSUBSCRIBED, Timestamp: time.Now(),
	}))

	h.engine.Tick()

	done := h.get(t, "polite", enrollment.Id)
	require.Equal(t, model.ENROLLMENT_UNSUBSCRIBED, done.Status)
	require.Zero(t, h.messaging.sentCount())
}

func TestPausedEnrollmentNotDispatched(t *testing.T) {
	h := newHarness(t)
	h.activate(t, manualFlow("pausable",
		model.StepDef{Id: "m1", Kind: "MESSAGE", Config: map[string]any{"subject": "Hi"}},
	))
	enrollment := h.enroll(t, "pausable")
	require.NoError(t, h.enrollments.Pause("pausable", enrollment.Id))

	h.engine.Tick()
	require.Zero(t, h.messaging.sentCount())

	require.NoError(t, h.enrollments.Resume("pausable", enrollment.Id))
	h.engine.Tick()
	require.Equal(t, 1, h.messaging.sentCount())
}
