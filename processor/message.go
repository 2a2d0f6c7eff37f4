package processor

import (
	"context"
	"strings"
	"time"

	"github.com/nudgeworks/journey/collaborator"
	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// firstSubjectVar holds the subject line of the first message in the thread,
// so every follow-up carries "Re: <first subject>" rather than stacking reply
// markers off the immediately preceding send.
const firstSubjectVar = "__thread_subject"

const replyMarker = "Re: "

var _ Processor = new(MessageProcessor)

type MessageProcessor struct {
	messaging   collaborator.Messaging
	subjects    persistence.SubjectStore
	templates   persistence.TemplateStore
	engagements persistence.EngagementStore
	// identifierCache holds resolved protocol-level message identifiers keyed
	// by messageId, so thread continuation does not hit the collaborator on
	// every follow-up.
	identifierCache *c.Cache
}

func NewMessageProcessor(messaging collaborator.Messaging, subjects persistence.SubjectStore, templates persistence.TemplateStore, engagements persistence.EngagementStore) *MessageProcessor {
	return &MessageProcessor{
		messaging:       messaging,
		subjects:        subjects,
		templates:       templates,
		engagements:     engagements,
		identifierCache: c.New(30*time.Minute, 10*time.Minute),
	}
}

func (p *MessageProcessor) Kind() model.StepKind {
	return model.STEP_KIND_MESSAGE
}

func (p *MessageProcessor) Process(ctx context.Context, enrollment *model.Enrollment, step *flow.Step) model.Outcome {
	if step.ConfigBool("sendOnlyIfNoReply") {
		replied, err := p.engagements.HasSince(enrollment.SubjectId, model.ENGAGEMENT_REPLIED, enrollment.CreatedAt)
		if err != nil {
			return model.FailedOutcome(true, err.Error())
		}
		if replied {
			logger.Info("suppressing send, subject replied since flow start",
				zap.String("enrollmentId", enrollment.Id), zap.String("stepId", step.Id))
			return model.Outcome{Stop: true, Skipped: true}
		}
	}
	if step.ConfigBool("sendOnlyIfNoOpen") {
		opened, err := p.engagements.HasSince(enrollment.SubjectId, model.ENGAGEMENT_OPENED, enrollment.CreatedAt)
		if err != nil {
			return model.FailedOutcome(true, err.Error())
		}
		if opened {
			logger.Info("skipping send, subject opened since flow start",
				zap.String("enrollmentId", enrollment.Id), zap.String("stepId", step.Id))
			return model.Outcome{Completed: true, Skipped: true}
		}
	}

	message, err := p.resolveContent(step)
	if err != nil {
		return model.FailedOutcome(false, err.Error())
	}
	subject, err := p.subjects.Get(enrollment.SubjectId)
	if err != nil {
		return model.FailedOutcome(true, err.Error())
	}
	data := templateData(enrollment, subject)
	message.Subject = Substitute(message.Subject, data)
	message.BodyHtml = Substitute(message.BodyHtml, data)
	message.BodyText = Substitute(message.BodyText, data)

	opts := collaborator.SendOptions{}
	continuing := step.ConfigBool("continueThread") && enrollment.ThreadId != ""
	if continuing {
		opts.ThreadId = enrollment.ThreadId
		opts.ReplyToMessageId = p.resolveIdentifier(ctx, enrollment)
		if first, ok := enrollment.Variables[firstSubjectVar].(string); ok && first != "" {
			message.Subject = replySubject(first)
		}
		threadCtx, err := p.messaging.FetchThreadContext(ctx, enrollment.SubjectId, enrollment.ThreadId)
		if err != nil {
			return model.FailedOutcome(true, err.Error())
		}
		if threadCtx != nil {
			if threadCtx.QuotedBodyHtml != "" {
				message.BodyHtml += threadCtx.QuotedBodyHtml
			}
			if threadCtx.QuotedBodyText != "" {
				message.BodyText += threadCtx.QuotedBodyText
			}
			if opts.ReplyToMessageId == "" {
				opts.ReplyToMessageId = threadCtx.LastMessageId
			}
		}
	}

	result, err := p.messaging.SendMessage(ctx, enrollment.SubjectId, message, opts)
	if err != nil {
		logger.Error("message send failed", zap.String("enrollmentId", enrollment.Id),
			zap.String("stepId", step.Id), zap.Error(err))
		return model.FailedOutcome(true, err.Error())
	}

	now := time.Now()
	enrollment.ThreadId = result.ThreadId
	enrollment.LastMessageId = result.MessageId
	enrollment.LastMessageSentAt = &now
	enrollment.LastMessageStepId = step.Id
	outcome := model.CompletedOutcome()
	if !continuing {
		outcome.Variables = map[string]any{firstSubjectVar: message.Subject}
	}
	logger.Info("message sent", zap.String("enrollmentId", enrollment.Id),
		zap.String("stepId", step.Id), zap.String("messageId", result.MessageId))
	return outcome
}

func (p *MessageProcessor) resolveContent(step *flow.Step) (collaborator.Message, error) {
	if templateId := step.ConfigString("templateId"); templateId != "" {
		template, err := p.templates.Get(templateId)
		if err != nil {
			return collaborator.Message{}, err
		}
		return collaborator.Message{
			Subject:  template.Subject,
			BodyHtml: template.BodyHtml,
			BodyText: template.BodyText,
		}, nil
	}
	return collaborator.Message{
		Subject:  step.ConfigString("subject"),
		BodyHtml: step.ConfigString("bodyHtml"),
		BodyText: step.ConfigString("bodyText"),
	}, nil
}

func (p *MessageProcessor) resolveIdentifier(ctx context.Context, enrollment *model.Enrollment) string {
	if enrollment.LastMessageId == "" {
		return ""
	}
	if cached, found := p.identifierCache.Get(enrollment.LastMessageId); found {
		return cached.(string)
	}
	identifier, err := p.messaging.ResolveMessageIdentifierHeader(ctx, enrollment.SubjectId, enrollment.LastMessageId)
	if err != nil {
		logger.Debug("message identifier not resolvable", zap.String("messageId", enrollment.LastMessageId), zap.Error(err))
		return ""
	}
	p.identifierCache.Set(enrollment.LastMessageId, identifier, c.DefaultExpiration)
	return identifier
}

func replySubject(first string) string {
	if strings.HasPrefix(first, replyMarker) {
		return first
	}
	return replyMarker + first
}
