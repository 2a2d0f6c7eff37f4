package processor

import (
	"context"
	"strings"
	"time"

	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/model"
)

var _ Processor = new(DelayProcessor)

// DelayProcessor anchors the wait at the enrollment's last completed action
// time instead of "now", so evaluating an already-elapsed delay again is a
// no-op rather than a fresh wait.
type DelayProcessor struct {
	now func() time.Time
}

func NewDelayProcessor() *DelayProcessor {
	return &DelayProcessor{now: time.Now}
}

func (p *DelayProcessor) Kind() model.StepKind {
	return model.STEP_KIND_DELAY
}

func (p *DelayProcessor) Process(ctx context.Context, enrollment *model.Enrollment, step *flow.Step) model.Outcome {
	delay := delayFromConfig(step)
	if delay <= 0 {
		return model.CompletedOutcome()
	}
	waitUntil := enrollment.DelayAnchor().Add(delay)
	if !waitUntil.After(p.now()) {
		return model.CompletedOutcome()
	}
	return model.WaitOutcome(waitUntil)
}

// delayFromConfig supports both the duration+unit form and the legacy fixed
// days+hours+minutes form.
func delayFromConfig(step *flow.Step) time.Duration {
	if duration := step.ConfigInt("duration"); duration > 0 {
		switch strings.ToLower(step.ConfigString("unit")) {
		case "minute", "minutes":
			return time.Duration(duration) * time.Minute
		case "hour", "hours":
			return time.Duration(duration) * time.Hour
		case "week", "weeks":
			return time.Duration(duration) * 7 * 24 * time.Hour
		default:
			return time.Duration(duration) * 24 * time.Hour
		}
	}
	delay := time.Duration(step.ConfigInt("days")) * 24 * time.Hour
	delay += time.Duration(step.ConfigInt("hours")) * time.Hour
	delay += time.Duration(step.ConfigInt("minutes")) * time.Minute
	return delay
}
