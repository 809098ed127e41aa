// internal/router/commands_test.go
package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuance-pipeline/internal/coaching"
	"nuance-pipeline/pkg/registry"
)

type coachingLogger struct{}

func (l *coachingLogger) Debug(msg string, fields map[string]interface{})    {}
func (l *coachingLogger) Info(msg string, fields map[string]interface{})     {}
func (l *coachingLogger) Warn(msg string, fields map[string]interface{})     {}
func (l *coachingLogger) Error(msg string, fields map[string]interface{})    {}
func (l *coachingLogger) With(fields map[string]interface{}) coaching.Logger { return l }

func TestHandleStart(t *testing.T) {
	h := NewCommandHandler(nil, &TestLogger{})

	resp := h.Handle("/start", "user-1")

	assert.Equal(t, "/start", resp.Command)
	assert.Contains(t, resp.Message, "Welcome to Nuance!")
}

func TestHandleHelp(t *testing.T) {
	h := NewCommandHandler(nil, &TestLogger{})

	resp := h.Handle("/help", "user-1")

	assert.Contains(t, resp.Message, "/clear")
	assert.Contains(t, resp.Message, "/status")
}

func TestHandleStatus(t *testing.T) {
	h := NewCommandHandler(nil, &TestLogger{})

	resp := h.Handle("/status", "user-42")

	assert.Equal(t, "Status check - all systems operational.", resp.Message)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "user-42", resp.Data["user_id"])
	assert.Equal(t, []string{"capture", "coaching", "commands"}, resp.Data["services"])
}

func TestHandleClearResetsConversation(t *testing.T) {
	provider := &fakeProvider{text: "reply"}
	coachingSvc := coaching.New(provider, registry.New(), &coachingLogger{})
	coachingSvc.Process(context.Background(), "hello", "user-1", "", "")
	require.NotEmpty(t, coachingSvc.History("user-1", ""))

	h := NewCommandHandler(coachingSvc, &TestLogger{})
	resp := h.Handle("/clear", "user-1")

	assert.Equal(t, "Conversation cleared. What would you like to work on?", resp.Message)
	assert.Empty(t, coachingSvc.History("user-1", ""))
}

func TestHandleUnknownCommand(t *testing.T) {
	h := NewCommandHandler(nil, &TestLogger{})

	resp := h.Handle("/frobnicate now", "user-1")

	assert.Equal(t, "Unknown command: /frobnicate. Type /help for available commands.", resp.Message)
}
