package collaborator

import (
	"context"

	"github.com/google/uuid"
	"github.com/nudgeworks/journey/logger"
	"go.uber.org/zap"
)

var _ Messaging = new(LogMessaging)

// LogMessaging is the messaging implementation wired when no real delivery
// provider is configured. Sends are recorded in the log with generated
// message and thread ids so flow execution, threading and engagement
// correlation can be exercised end to end.
type LogMessaging struct {
}

func NewLogMessaging() *LogMessaging {
	return &LogMessaging{}
}

func (m *LogMessaging) SendMessage(ctx context.Context, subjectId string, message Message, opts SendOptions) (*SendResult, error) {
	messageId := uuid.New().String()
	threadId := opts.ThreadId
	if threadId == "" {
		threadId = uuid.New().String()
	}
	logger.Info("message sent",
		zap.String("subjectId", subjectId),
		zap.String("subject", message.Subject),
		zap.String("messageId", messageId),
		zap.String("threadId", threadId),
		zap.String("replyTo", opts.ReplyToMessageId))
	return &SendResult{MessageId: messageId, ThreadId: threadId}, nil
}

func (m *LogMessaging) FetchThreadContext(ctx context.Context, subjectId string, threadId string) (*ThreadContext, error) {
	return nil, nil
}

func (m *LogMessaging) ResolveMessageIdentifierHeader(ctx context.Context, subjectId string, messageId string) (string, error) {
	return messageId, nil
}
