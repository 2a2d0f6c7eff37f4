// Package collaborator declares the external services the engine calls into.
// The delivery layer owns provider quirks, auth and quoted-content tracking;
// the engine only sees these interfaces.
package collaborator

import "context"

type Message struct {
	Subject  string `json:"subject"`
	BodyHtml string `json:"bodyHtml,omitempty"`
	BodyText string `json:"bodyText,omitempty"`
}

type SendOptions struct {
	ThreadId         string
	ReplyToMessageId string
}

type SendResult struct {
	MessageId string
	ThreadId  string
}

type ThreadContext struct {
	QuotedBodyHtml string
	QuotedBodyText string
	LastMessageId  string
}

type Messaging interface {
	SendMessage(ctx context.Context, subjectId string, message Message, opts SendOptions) (*SendResult, error)
	// FetchThreadContext returns (nil, nil) when the thread cannot be
	// resolved; callers treat that as "no history available", not an error.
	FetchThreadContext(ctx context.Context, subjectId string, threadId string) (*ThreadContext, error)
	ResolveMessageIdentifierHeader(ctx context.Context, subjectId string, messageId string) (string, error)
}

type Segment interface {
	Matches(ctx context.Context, subjectId string, predicate string) (bool, error)
}
