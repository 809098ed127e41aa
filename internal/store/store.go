// internal/store/store.go

// Package store persists accepted captures and token usage in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nuance-pipeline/internal/models"
)

var (
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
	ErrDatabaseQueryFailed  = errors.New("DATABASE_QUERY_FAILED")
)

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Store wraps the Postgres connection for capture and usage records.
type Store struct {
	db     *sql.DB
	logger Logger
}

func New(db *sql.DB, log Logger) *Store {
	return &Store{
		db: db,
		logger: log.With(map[string]interface{}{
			"component": "store",
		}),
	}
}

// SaveCaptures inserts one row per enriched action of a turn.
// Returns the generated capture IDs in action order.
func (s *Store) SaveCaptures(ctx context.Context, turn models.Turn, result *models.OrchestrationResult) ([]string, error) {
	ids := make([]string, 0, len(result.Actions))
	createdAt := time.Now().UTC().Format(time.RFC3339)

	for _, action := range result.Actions {
		enrichmentJSON, err := json.Marshal(action)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal enrichment: %v", ErrDatabaseInsertFailed, err)
		}

		captureID := uuid.New().String()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO captures (
				id, user_id, request_id, title, raw_segment,
				estimated_minutes, cognitive_load, confidence,
				needs_validation, enrichment, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			captureID,
			turn.UserID,
			turn.RequestID,
			action.Title,
			action.RawSegment,
			action.EstimatedMinutes,
			string(action.CognitiveLoad),
			action.Confidence.Score,
			result.NeedsValidation,
			enrichmentJSON,
			createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: insert capture failed: %v", ErrDatabaseInsertFailed, err)
		}
		ids = append(ids, captureID)
	}

	s.logger.Debug("captures saved", map[string]interface{}{
		"requestId": turn.RequestID,
		"count":     len(ids),
	})

	return ids, nil
}

// RecordUsage stores one token usage row. Implements the gateway usage
// hook; failures are logged and absorbed so accounting never breaks a
// model call.
func (s *Store) RecordUsage(ctx context.Context, operation string, inputTokens, outputTokens int) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_usage (operation, input_tokens, output_tokens, created_at)
		VALUES ($1, $2, $3, $4)`,
		operation,
		inputTokens,
		outputTokens,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("failed to record token usage", map[string]interface{}{
			"operation": operation,
			"error":     err.Error(),
		})
		return
	}

	s.logger.Debug("token usage recorded", map[string]interface{}{
		"operation":    operation,
		"inputTokens":  inputTokens,
		"outputTokens": outputTokens,
	})
}

// UsageToday returns total tokens consumed since UTC midnight.
func (s *Store) UsageToday(ctx context.Context) (int, error) {
	todayStart := time.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339)

	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(input_tokens + output_tokens)
		FROM token_usage
		WHERE created_at >= $1`,
		todayStart,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: usage query failed: %v", ErrDatabaseQueryFailed, err)
	}

	return int(total.Int64), nil
}

// CapturesForUser returns recent captures, newest first.
func (s *Store) CapturesForUser(ctx context.Context, userID string, limit int) ([]CaptureRow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, title, cognitive_load, confidence, created_at
		FROM captures
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: captures query failed: %v", ErrDatabaseQueryFailed, err)
	}
	defer rows.Close()

	var captures []CaptureRow
	for rows.Next() {
		var c CaptureRow
		if err := rows.Scan(&c.ID, &c.RequestID, &c.Title, &c.CognitiveLoad, &c.Confidence, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan capture row: %v", ErrDatabaseQueryFailed, err)
		}
		captures = append(captures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate capture rows: %v", ErrDatabaseQueryFailed, err)
	}

	return captures, nil
}

// CaptureRow is a stored capture summary.
type CaptureRow struct {
	ID            string  `json:"id"`
	RequestID     string  `json:"requestId"`
	Title         string  `json:"title"`
	CognitiveLoad string  `json:"cognitiveLoad"`
	Confidence    float64 `json:"confidence"`
	CreatedAt     string  `json:"createdAt"`
}
