// internal/coaching/service.go

// Package coaching produces supportive conversational responses for users
// who are stuck, with short per-user conversation memory.
package coaching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

const historyLimit = 10

// fallbackResponse is returned when the model is unavailable. Coaching
// must never surface an error to someone who is already struggling.
const fallbackResponse = "I hear you - this sounds really challenging. Sometimes our brains " +
	"just need a moment. What if we take a tiny step together? Even just " +
	"naming one small thing you could do in the next 2 minutes counts as progress."

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Message is a single turn in a coaching conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation holds per-user (optionally per-task) coaching history.
type Conversation struct {
	UserID    string
	TaskID    string
	TaskTitle string
	Messages  []Message
	CreatedAt time.Time
}

// Service generates coaching responses. Conversations are kept in memory
// per instance; losing them on restart costs a little context, not data.
type Service struct {
	provider gateway.Provider
	registry *registry.Registry
	logger   Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
}

func New(provider gateway.Provider, reg *registry.Registry, log Logger) *Service {
	return &Service{
		provider: provider,
		registry: reg,
		logger: log.With(map[string]interface{}{
			"component": "coaching",
		}),
		conversations: make(map[string]*Conversation),
	}
}

// Process responds to one coaching message, updating conversation state.
func (s *Service) Process(ctx context.Context, message, userID, taskID, taskTitle string) *models.CoachingResponse {
	conv := s.getOrCreate(userID, taskID, taskTitle)

	s.mu.Lock()
	conv.Messages = append(conv.Messages, Message{Role: "user", Content: message, Timestamp: time.Now().UTC()})
	system := s.buildSystemPrompt(conv.TaskTitle)
	prompt := transcript(conv.Messages, historyLimit)
	s.mu.Unlock()

	resp, err := s.provider.Complete(ctx, gateway.CompletionRequest{
		Operation: "coaching",
		System:    system,
		Prompt:    prompt,
		MaxTokens: 500,
	})
	if err != nil {
		s.logger.Error("coaching failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return &models.CoachingResponse{Message: fallbackResponse}
	}

	s.mu.Lock()
	conv.Messages = append(conv.Messages, Message{Role: "assistant", Content: resp.Text, Timestamp: time.Now().UTC()})
	messageCount := len(conv.Messages)
	s.mu.Unlock()

	s.logger.Info("coaching response generated", map[string]interface{}{
		"userId":       userID,
		"messageCount": messageCount,
	})

	return &models.CoachingResponse{Message: resp.Text}
}

// Clear drops a conversation's history.
func (s *Service) Clear(userID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationKey(userID, taskID))
}

// History returns a copy of the stored messages for a conversation.
func (s *Service) History(userID, taskID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationKey(userID, taskID)]
	if !ok {
		return nil
	}
	out := make([]Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out
}

func (s *Service) getOrCreate(userID, taskID, taskTitle string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey(userID, taskID)
	if conv, ok := s.conversations[key]; ok {
		return conv
	}
	conv := &Conversation{
		UserID:    userID,
		TaskID:    taskID,
		TaskTitle: taskTitle,
		CreatedAt: time.Now().UTC(),
	}
	s.conversations[key] = conv
	return conv
}

func (s *Service) buildSystemPrompt(taskTitle string) string {
	prompt, err := s.registry.Resolve("coaching", "")
	if err != nil {
		// The registry always carries a coaching default; losing an
		// overlay still leaves a usable prompt.
		return ""
	}
	system := prompt.Content
	if taskTitle != "" {
		system += fmt.Sprintf("\n\nContext: The user is working on '%s'.", taskTitle)
	}
	return system
}

func conversationKey(userID, taskID string) string {
	if taskID != "" {
		return userID + ":" + taskID
	}
	return userID
}

// transcript renders recent history for the completion prompt.
func transcript(messages []Message, limit int) string {
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	var b strings.Builder
	for _, m := range messages {
		if m.Role == "user" {
			b.WriteString("User: ")
		} else {
			b.WriteString("You: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
