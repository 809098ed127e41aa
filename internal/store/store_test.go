// internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuance-pipeline/internal/models"
)

// TestLogger implements Logger interface for testing
type TestLogger struct{}

func (l *TestLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *TestLogger) Info(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Error(msg string, fields map[string]interface{}) {}
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, &TestLogger{}), mock
}

func testTurn() models.Turn {
	return models.Turn{RequestID: "req-1", UserID: "user-1", RawInput: "buy milk"}
}

func testResult() *models.OrchestrationResult {
	return &models.OrchestrationResult{
		Actions: []models.EnrichedAction{
			{
				ExtractedItem: models.ExtractedItem{Title: "buy milk", RawSegment: "buy milk", EstimatedMinutes: 15},
				Avoidance:     models.AvoidanceResult{Weight: 1},
				Complexity:    models.ComplexityResult{Level: models.ComplexityAtomic, SuggestedSteps: 1},
				Confidence:    models.ConfidenceResult{Score: 0.9},
				CognitiveLoad: models.LoadRoutine,
			},
		},
		OverallConfidence: 0.9,
	}
}

func TestSaveCaptures(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO captures").
		WithArgs(
			sqlmock.AnyArg(), "user-1", "req-1", "buy milk", "buy milk",
			15, "routine", 0.9, false, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ids, err := s.SaveCaptures(context.Background(), testTurn(), testResult())

	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCapturesInsertFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO captures").
		WillReturnError(errors.New("connection reset"))

	_, err := s.SaveCaptures(context.Background(), testTurn(), testResult())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatabaseInsertFailed)
}

func TestSaveCapturesEmptyResult(t *testing.T) {
	s, mock := newTestStore(t)

	ids, err := s.SaveCaptures(context.Background(), testTurn(), &models.OrchestrationResult{
		Actions: []models.EnrichedAction{},
	})

	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUsage(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO token_usage").
		WithArgs("extraction", 120, 85, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.RecordUsage(context.Background(), "extraction", 120, 85)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUsageAbsorbsFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO token_usage").
		WillReturnError(errors.New("connection reset"))

	// Must not panic; accounting failures never break a model call.
	s.RecordUsage(context.Background(), "extraction", 120, 85)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageToday(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT SUM").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(4321))

	total, err := s.UsageToday(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4321, total)
}

func TestUsageTodayNoRows(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT SUM").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	total, err := s.UsageToday(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestCapturesForUser(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "request_id", "title", "cognitive_load", "confidence", "created_at"}).
		AddRow("cap-2", "req-2", "do taxes", "high_friction", 0.7, "2026-08-29T10:00:00Z").
		AddRow("cap-1", "req-1", "buy milk", "routine", 0.9, "2026-08-29T09:00:00Z")

	mock.ExpectQuery("SELECT id, request_id, title").
		WithArgs("user-1", 50).
		WillReturnRows(rows)

	captures, err := s.CapturesForUser(context.Background(), "user-1", 0)

	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, "do taxes", captures[0].Title)
	assert.Equal(t, "high_friction", captures[0].CognitiveLoad)
}

func TestCapturesForUserQueryFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id, request_id, title").
		WillReturnError(errors.New("relation missing"))

	_, err := s.CapturesForUser(context.Background(), "user-1", 10)

	assert.ErrorIs(t, err, ErrDatabaseQueryFailed)
}
