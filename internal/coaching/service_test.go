// internal/coaching/service_test.go
package coaching

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/pkg/registry"
)

// TestLogger implements Logger interface for testing
type TestLogger struct{}

func (l *TestLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *TestLogger) Info(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Error(msg string, fields map[string]interface{}) {}
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

type fakeProvider struct {
	mu       sync.Mutex
	requests []gateway.CompletionRequest
	text     string
	err      error
}

func (p *fakeProvider) Complete(ctx context.Context, req gateway.CompletionRequest) (*gateway.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &gateway.CompletionResponse{Text: p.text}, nil
}

func (p *fakeProvider) ExtractStructured(ctx context.Context, req gateway.ExtractionRequest) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func newService(p *fakeProvider) *Service {
	return New(p, registry.New(), &TestLogger{})
}

func TestProcessReturnsModelResponse(t *testing.T) {
	provider := &fakeProvider{text: "What feels hardest about starting?"}
	svc := newService(provider)

	resp := svc.Process(context.Background(), "I can't start my taxes", "user-1", "", "")

	assert.Equal(t, "What feels hardest about starting?", resp.Message)
	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, "coaching", req.Operation)
	assert.Equal(t, 500, req.MaxTokens)
	assert.Contains(t, req.Prompt, "User: I can't start my taxes")
	assert.NotEmpty(t, req.System)
}

func TestProcessIncludesTaskContext(t *testing.T) {
	provider := &fakeProvider{text: "ok"}
	svc := newService(provider)

	svc.Process(context.Background(), "stuck", "user-1", "task-9", "File quarterly taxes")

	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].System,
		"Context: The user is working on 'File quarterly taxes'.")
}

func TestProcessKeepsConversationHistory(t *testing.T) {
	provider := &fakeProvider{text: "reply"}
	svc := newService(provider)

	svc.Process(context.Background(), "first message", "user-1", "", "")
	svc.Process(context.Background(), "second message", "user-1", "", "")

	require.Len(t, provider.requests, 2)
	prompt := provider.requests[1].Prompt
	assert.Contains(t, prompt, "User: first message")
	assert.Contains(t, prompt, "You: reply")
	assert.Contains(t, prompt, "User: second message")

	history := svc.History("user-1", "")
	assert.Len(t, history, 4)
}

func TestProcessTrimsHistoryToLimit(t *testing.T) {
	provider := &fakeProvider{text: "r"}
	svc := newService(provider)

	for i := 0; i < 8; i++ {
		svc.Process(context.Background(), "message", "user-1", "", "")
	}

	// 8 exchanges store 16 messages; the prompt only carries the last 10.
	last := provider.requests[len(provider.requests)-1].Prompt
	assert.LessOrEqual(t, strings.Count(last, "\n"), historyLimit)
}

func TestProcessFallbackOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	svc := newService(provider)

	resp := svc.Process(context.Background(), "help", "user-1", "", "")

	assert.Equal(t, fallbackResponse, resp.Message)
	// Failed turns still record the user message so retries have context.
	assert.Len(t, svc.History("user-1", ""), 1)
}

func TestConversationsIsolatedByTask(t *testing.T) {
	provider := &fakeProvider{text: "r"}
	svc := newService(provider)

	svc.Process(context.Background(), "about task A", "user-1", "task-a", "Task A")
	svc.Process(context.Background(), "general", "user-1", "", "")

	assert.NotContains(t, provider.requests[1].Prompt, "about task A")
}

func TestClearConversation(t *testing.T) {
	provider := &fakeProvider{text: "r"}
	svc := newService(provider)

	svc.Process(context.Background(), "hello", "user-1", "", "")
	svc.Clear("user-1", "")

	assert.Nil(t, svc.History("user-1", ""))
}
