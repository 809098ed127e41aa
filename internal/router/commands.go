// internal/router/commands.go
package router

import (
	"fmt"
	"strings"

	"nuance-pipeline/internal/coaching"
	"nuance-pipeline/internal/models"
)

const welcomeMessage = `Welcome to Nuance! I'm your executive function assistant.

You can:
- Tell me about tasks and I'll capture them
- Talk through feeling stuck and I'll coach you through it
- Type /help for more commands`

const helpMessage = `Available commands:
/start - Show the welcome message
/help - Show this help
/clear - Clear the current conversation
/status - Check service status`

// CommandHandler executes slash commands. Commands never touch the model,
// so they work even when the provider is down.
type CommandHandler struct {
	coaching *coaching.Service
	logger   Logger
}

func NewCommandHandler(coachingSvc *coaching.Service, log Logger) *CommandHandler {
	return &CommandHandler{
		coaching: coachingSvc,
		logger: log.With(map[string]interface{}{
			"component": "command_handler",
		}),
	}
}

// Handle dispatches one command turn. Unknown commands return a hint
// instead of an error.
func (h *CommandHandler) Handle(text, userID string) *models.CommandResponse {
	fields := strings.Fields(strings.TrimSpace(text))
	cmd := ""
	if len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}

	h.logger.Info("handling command", map[string]interface{}{
		"command": cmd,
		"userId":  userID,
	})

	switch cmd {
	case "/start":
		return &models.CommandResponse{Command: cmd, Message: welcomeMessage}
	case "/help":
		return &models.CommandResponse{Command: cmd, Message: helpMessage}
	case "/clear":
		if h.coaching != nil {
			h.coaching.Clear(userID, "")
		}
		return &models.CommandResponse{
			Command: cmd,
			Message: "Conversation cleared. What would you like to work on?",
		}
	case "/status":
		return &models.CommandResponse{
			Command: cmd,
			Message: "Status check - all systems operational.",
			Data: map[string]interface{}{
				"user_id":  userID,
				"services": []string{"capture", "coaching", "commands"},
			},
		}
	default:
		return &models.CommandResponse{
			Command: cmd,
			Message: fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd),
		}
	}
}
