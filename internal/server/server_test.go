// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/internal/resilience"
	"nuance-pipeline/internal/store"
)

// TestLogger implements Logger interface for testing
type TestLogger struct{}

func (l *TestLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *TestLogger) Info(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Error(msg string, fields map[string]interface{}) {}
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

// recordingLogger keeps Warn fields for assertions.
type recordingLogger struct {
	TestLogger
	warns []map[string]interface{}
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.warns = append(l.warns, fields)
}

func (l *recordingLogger) With(fields map[string]interface{}) Logger { return l }

type fakeRouter struct {
	resp *models.UnifiedResponse
	err  error
	turn models.Turn
}

func (f *fakeRouter) Route(ctx context.Context, turn models.Turn) (*models.UnifiedResponse, error) {
	f.turn = turn
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	resp.RequestID = turn.RequestID
	return &resp, nil
}

type fakeLimiter struct {
	result *resilience.RateLimitResult
	err    error
}

func (f *fakeLimiter) Check(ctx context.Context, userID string) (*resilience.RateLimitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePersister struct {
	saved  int
	failed bool
}

func (f *fakePersister) SaveCaptures(ctx context.Context, turn models.Turn, result *models.OrchestrationResult) ([]string, error) {
	if f.failed {
		return nil, errors.New("db down")
	}
	f.saved += len(result.Actions)
	return make([]string, len(result.Actions)), nil
}

// fakeReadingPersister also satisfies CaptureReader so the read
// endpoints get registered.
type fakeReadingPersister struct {
	fakePersister
	captures []store.CaptureRow
	usage    int
	readErr  error
}

func (f *fakeReadingPersister) CapturesForUser(ctx context.Context, userID string, limit int) ([]store.CaptureRow, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.captures, nil
}

func (f *fakeReadingPersister) UsageToday(ctx context.Context) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.usage, nil
}

type fakeRecorder struct {
	turns int
}

func (f *fakeRecorder) ProcessTurn(turn models.Turn, resp *models.UnifiedResponse) int {
	f.turns++
	return 0
}

type fakeObserver struct {
	processed []string
	durations []time.Duration
}

func (f *fakeObserver) RecordTurnProcessed(ctx context.Context, intent, status string) {
	f.processed = append(f.processed, intent+":"+status)
}

func (f *fakeObserver) RecordTurnDuration(ctx context.Context, d time.Duration, intent string) {
	f.durations = append(f.durations, d)
}

func allowAll() *fakeLimiter {
	return &fakeLimiter{result: &resilience.RateLimitResult{Allowed: true, RequestsRemaining: 10}}
}

func captureResponse() *models.UnifiedResponse {
	return &models.UnifiedResponse{
		Intent:           models.IntentCapture,
		IntentConfidence: 0.95,
		Capture: &models.OrchestrationResult{
			Actions: []models.EnrichedAction{
				{ExtractedItem: models.ExtractedItem{Title: "buy milk"}},
			},
			OverallConfidence: 0.9,
		},
	}
}

func postTurn(t *testing.T, srv *Server, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	return rec
}

func TestHandleTurnSuccess(t *testing.T) {
	router := &fakeRouter{resp: captureResponse()}
	persister := &fakePersister{}
	recorder := &fakeRecorder{}
	srv := New(router, allowAll(), persister, recorder, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.UnifiedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, models.IntentCapture, resp.Intent)
	require.NotNil(t, resp.Capture)

	assert.Equal(t, 1, persister.saved)
	assert.Equal(t, 1, recorder.turns)
	assert.Equal(t, "user-1", router.turn.UserID)
	assert.Equal(t, "buy milk", router.turn.RawInput)
}

func TestHandleTurnPassesForcedIntentAndContext(t *testing.T) {
	router := &fakeRouter{resp: captureResponse()}
	srv := New(router, allowAll(), nil, nil, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{
		Text:         "that thing",
		UserID:       "user-1",
		ForcedIntent: "coaching",
		TaskContext:  map[string]interface{}{"taskTitle": "File taxes"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.IntentCoaching, router.turn.ForcedIntent)
	assert.Equal(t, "File taxes", router.turn.TaskContext["taskTitle"])
}

func TestHandleTurnCallerSuppliedRequestID(t *testing.T) {
	router := &fakeRouter{resp: captureResponse()}
	srv := New(router, allowAll(), nil, nil, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1", RequestID: "retry-7"})

	require.Equal(t, http.StatusOK, rec.Code)
	// A retried turn reuses its id so derived knowledge keys converge.
	assert.Equal(t, "retry-7", router.turn.RequestID)

	var resp models.UnifiedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "retry-7", resp.RequestID)
}

func TestHandleTurnGeneratesRequestID(t *testing.T) {
	router := &fakeRouter{resp: captureResponse()}
	srv := New(router, allowAll(), nil, nil, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, router.turn.RequestID)
}

func TestHandleTurnMissingUserID(t *testing.T) {
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), nil, nil, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk"})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env stderrors.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "INVALID_REQUEST", env.ErrorCode)
	assert.NotEmpty(t, env.RequestID)
}

func TestHandleTurnMalformedBody(t *testing.T) {
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), nil, nil, &TestLogger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTurnRateLimited(t *testing.T) {
	limiter := &fakeLimiter{result: &resilience.RateLimitResult{
		Allowed:           false,
		RetryAfterSeconds: 42,
		LimitType:         resilience.LimitTypeMinute,
	}}
	router := &fakeRouter{resp: captureResponse()}
	srv := New(router, limiter, nil, nil, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))

	var env stderrors.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.ErrorCode)
	assert.Empty(t, router.turn.RequestID, "router must not run for rejected turns")
}

func TestHandleTurnLimiterErrorFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis unreachable")}
	srv := New(&fakeRouter{resp: captureResponse()}, limiter, nil, nil, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTurnErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"extraction failure",
			stderrors.NewExtractionFailedError(errors.New("bad json")),
			http.StatusUnprocessableEntity,
			"EXTRACTION_FAILED",
		},
		{
			"circuit open",
			stderrors.NewCircuitOpenError("model-provider", 30*time.Second),
			http.StatusServiceUnavailable,
			"CIRCUIT_OPEN",
		},
		{
			"unknown error",
			errors.New("boom"),
			http.StatusInternalServerError,
			"INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&fakeRouter{err: tt.err}, allowAll(), nil, nil, &TestLogger{})

			rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})

			require.Equal(t, tt.wantStatus, rec.Code)

			var env stderrors.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.wantCode, env.ErrorCode)
		})
	}
}

func TestWriteErrorLogsCategoryAndRetryability(t *testing.T) {
	log := &recordingLogger{}
	srv := New(&fakeRouter{err: stderrors.NewCircuitOpenError("model-provider", 30*time.Second)}, allowAll(), nil, nil, log)

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NotEmpty(t, log.warns)
	last := log.warns[len(log.warns)-1]
	assert.Equal(t, "CIRCUIT_OPEN", last["errorCode"])
	assert.Equal(t, "RESILIENCE", last["category"])
	assert.Equal(t, true, last["retryable"])
}

func TestHandleTurnPersistenceFailureDoesNotFailTurn(t *testing.T) {
	persister := &fakePersister{failed: true}
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), persister, nil, &TestLogger{})

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTurnMethodNotAllowed(t *testing.T) {
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), nil, nil, &TestLogger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/turn", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type slowRouter struct {
	inner *fakeRouter
	delay time.Duration
}

func (r *slowRouter) Route(ctx context.Context, turn models.Turn) (*models.UnifiedResponse, error) {
	time.Sleep(r.delay)
	return r.inner.Route(ctx, turn)
}

func turnDurationSum(t *testing.T) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "pipeline_turn_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "intent" && lp.GetValue() == "capture" {
					return m.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	return 0
}

func TestTurnDurationObservedInSeconds(t *testing.T) {
	router := &slowRouter{inner: &fakeRouter{resp: captureResponse()}, delay: 20 * time.Millisecond}
	srv := New(router, allowAll(), nil, nil, &TestLogger{})

	before := turnDurationSum(t)
	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// A 20ms turn must land in fractions of a second, not tens of units.
	delta := turnDurationSum(t) - before
	assert.GreaterOrEqual(t, delta, 0.02)
	assert.Less(t, delta, 1.0)
}

func TestObserverRecordsTurns(t *testing.T) {
	obs := &fakeObserver{}
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), nil, nil, &TestLogger{}).
		WithObserver(obs)

	rec := postTurn(t, srv, TurnRequest{Text: "buy milk", UserID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"capture:success"}, obs.processed)
	require.Len(t, obs.durations, 1)

	srvErr := New(&fakeRouter{err: errors.New("boom")}, allowAll(), nil, nil, &TestLogger{}).
		WithObserver(obs)
	postTurn(t, srvErr, TurnRequest{Text: "buy milk", UserID: "user-1"})

	assert.Contains(t, obs.processed, "unknown:error")
	// Failed turns record no duration sample.
	assert.Len(t, obs.durations, 1)
}

func TestHealthEndpoint(t *testing.T) {
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), nil, nil, &TestLogger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestListCaptures(t *testing.T) {
	persister := &fakeReadingPersister{captures: []store.CaptureRow{
		{ID: "cap-1", RequestID: "req-1", Title: "buy milk", CognitiveLoad: "low", Confidence: 0.9},
		{ID: "cap-2", RequestID: "req-2", Title: "file taxes", CognitiveLoad: "high", Confidence: 0.7},
	}}
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), persister, nil, &TestLogger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/captures?userId=user-1", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Captures []store.CaptureRow `json:"captures"`
		Count    int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "buy milk", body.Captures[0].Title)
}

func TestListCapturesMissingUserID(t *testing.T) {
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), &fakeReadingPersister{}, nil, &TestLogger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/captures", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env stderrors.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "INVALID_REQUEST", env.ErrorCode)
}

func TestUsageEndpoint(t *testing.T) {
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), &fakeReadingPersister{usage: 4321}, nil, &TestLogger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(4321), body["totalTokens"])
}

func TestReadEndpointsAbsentWithoutReader(t *testing.T) {
	srv := New(&fakeRouter{resp: captureResponse()}, allowAll(), &fakePersister{}, nil, &TestLogger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
