package processor

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"go.uber.org/zap"
)

const maxResponseBody = 64 * 1024

const defaultResponseKey = "response"

var _ Processor = new(ExternalCallProcessor)

// ExternalCallProcessor issues a templated HTTP request and stores the
// structured response under the step's saveAs key so later Condition steps
// can branch on it. The request timeout bounds how long one slow endpoint can
// hold up a poll tick.
type ExternalCallProcessor struct {
	subjects persistence.SubjectStore
	client   *http.Client
}

func NewExternalCallProcessor(subjects persistence.SubjectStore, timeout time.Duration) *ExternalCallProcessor {
	return &ExternalCallProcessor{
		subjects: subjects,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *ExternalCallProcessor) Kind() model.StepKind {
	return model.STEP_KIND_EXTERNAL_CALL
}

func (p *ExternalCallProcessor) Process(ctx context.Context, enrollment *model.Enrollment, step *flow.Step) model.Outcome {
	subject, err := p.subjects.Get(enrollment.SubjectId)
	if err != nil {
		return model.FailedOutcome(true, err.Error())
	}
	data := templateData(enrollment, subject)

	method := strings.ToUpper(step.ConfigString("method"))
	if method == "" {
		method = http.MethodGet
	}
	url := Substitute(step.ConfigString("url"), data)
	body := Substitute(step.ConfigString("body"), data)
	saveAs := step.ConfigString("saveAs")
	if saveAs == "" {
		saveAs = defaultResponseKey
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return model.FailedOutcome(false, err.Error())
	}
	for key, value := range substituteMap(step.ConfigMap("headers"), data) {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Error("external call failed", zap.String("enrollmentId", enrollment.Id),
			zap.String("stepId", step.Id), zap.String("url", url), zap.Error(err))
		outcome := model.FailedOutcome(true, err.Error())
		outcome.Variables = map[string]any{saveAs: map[string]any{"error": err.Error()}}
		return outcome
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		outcome := model.FailedOutcome(true, err.Error())
		outcome.Variables = map[string]any{saveAs: map[string]any{"error": err.Error()}}
		return outcome
	}
	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	outcome := model.CompletedOutcome()
	outcome.Variables = map[string]any{
		saveAs: map[string]any{
			"status":  resp.StatusCode,
			"headers": headers,
			"body":    string(responseBody),
		},
	}
	logger.Debug("external call completed", zap.String("enrollmentId", enrollment.Id),
		zap.String("stepId", step.Id), zap.Int("status", resp.StatusCode))
	return outcome
}
