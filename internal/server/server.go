// internal/server/server.go

// Package server exposes the turn-processing pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/common/metrics"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/internal/resilience"
	"nuance-pipeline/internal/store"
)

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// TurnRouter dispatches one classified turn.
type TurnRouter interface {
	Route(ctx context.Context, turn models.Turn) (*models.UnifiedResponse, error)
}

// RateChecker enforces per-user quotas at turn entry.
type RateChecker interface {
	Check(ctx context.Context, userID string) (*resilience.RateLimitResult, error)
}

// CapturePersister stores accepted captures. Optional.
type CapturePersister interface {
	SaveCaptures(ctx context.Context, turn models.Turn, result *models.OrchestrationResult) ([]string, error)
}

// TurnRecorder queues knowledge writeback for finished turns. Optional.
type TurnRecorder interface {
	ProcessTurn(turn models.Turn, resp *models.UnifiedResponse) int
}

// TurnObserver records turn-level telemetry. Optional.
type TurnObserver interface {
	RecordTurnProcessed(ctx context.Context, intent, status string)
	RecordTurnDuration(ctx context.Context, duration time.Duration, intent string)
}

// CaptureReader serves stored capture summaries and token usage totals.
// When the persister also implements it, the read endpoints are exposed.
type CaptureReader interface {
	CapturesForUser(ctx context.Context, userID string, limit int) ([]store.CaptureRow, error)
	UsageToday(ctx context.Context) (int, error)
}

// TurnRequest is the POST /v1/turn payload. RequestID is optional; a
// caller that retries with the same id gets the same knowledge object
// keys, so retried turns converge instead of duplicating.
type TurnRequest struct {
	Text         string                 `json:"text"`
	UserID       string                 `json:"userId"`
	RequestID    string                 `json:"requestId,omitempty"`
	ForcedIntent string                 `json:"forcedIntent,omitempty"`
	TaskContext  map[string]interface{} `json:"taskContext,omitempty"`
}

// Server handles the pipeline's HTTP surface.
type Server struct {
	router    TurnRouter
	limiter   RateChecker
	persister CapturePersister
	recorder  TurnRecorder
	reader    CaptureReader
	observer  TurnObserver
	logger    Logger
}

func New(router TurnRouter, limiter RateChecker, persister CapturePersister, recorder TurnRecorder, log Logger) *Server {
	s := &Server{
		router:    router,
		limiter:   limiter,
		persister: persister,
		recorder:  recorder,
		logger: log.With(map[string]interface{}{
			"component": "http_server",
		}),
	}
	if reader, ok := persister.(CaptureReader); ok {
		s.reader = reader
	}
	return s
}

// WithObserver attaches turn-level telemetry recording.
func (s *Server) WithObserver(obs TurnObserver) *Server {
	s.observer = obs
	return s
}

// Mux returns the request mux for the main listener.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/turn", s.handleTurn)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if s.reader != nil {
		mux.HandleFunc("/v1/captures", s.handleCaptures)
		mux.HandleFunc("/v1/usage", s.handleUsage)
	}
	return mux
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	start := time.Now()

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, stderrors.NewInvalidRequestError("malformed JSON body"), requestID)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.writeError(w, stderrors.NewInvalidRequestError("userId is required"), requestID)
		return
	}
	if id := strings.TrimSpace(req.RequestID); id != "" {
		requestID = id
	}

	limit, err := s.limiter.Check(r.Context(), req.UserID)
	if err == nil && !limit.Allowed {
		metrics.LimiterRejections.WithLabelValues(limit.LimitType).Inc()
		s.writeError(w, stderrors.NewRateLimitExceededError(
			limit.LimitType,
			time.Duration(limit.RetryAfterSeconds)*time.Second,
			limit.RequestsRemaining), requestID)
		return
	}

	turn := models.Turn{
		RequestID:    requestID,
		UserID:       req.UserID,
		RawInput:     req.Text,
		ForcedIntent: models.Intent(req.ForcedIntent),
		TaskContext:  req.TaskContext,
		Timestamp:    start.UTC(),
	}

	resp, err := s.router.Route(r.Context(), turn)
	if err != nil {
		metrics.TurnsProcessed.WithLabelValues("unknown", "error").Inc()
		if s.observer != nil {
			s.observer.RecordTurnProcessed(r.Context(), "unknown", "error")
		}
		s.logger.Error("turn failed", map[string]interface{}{
			"requestId": requestID,
			"userId":    req.UserID,
			"error":     err.Error(),
		})
		s.writeError(w, err, requestID)
		return
	}

	s.persist(r.Context(), turn, resp)

	intent := string(resp.Intent)
	metrics.TurnsProcessed.WithLabelValues(intent, "success").Inc()
	metrics.TurnDuration.WithLabelValues(intent).Observe(time.Since(start).Seconds())
	if s.observer != nil {
		s.observer.RecordTurnProcessed(r.Context(), intent, "success")
		s.observer.RecordTurnDuration(r.Context(), time.Since(start), intent)
	}

	s.logger.Info("turn processed", map[string]interface{}{
		"requestId":  requestID,
		"userId":     req.UserID,
		"intent":     intent,
		"durationMs": time.Since(start).Milliseconds(),
	})

	s.writeJSON(w, http.StatusOK, resp)
}

// persist saves captures and queues writeback. Both are best effort;
// the response has already been computed and will be returned either way.
func (s *Server) persist(ctx context.Context, turn models.Turn, resp *models.UnifiedResponse) {
	if s.persister != nil && resp.Capture != nil && len(resp.Capture.Actions) > 0 {
		if _, err := s.persister.SaveCaptures(ctx, turn, resp.Capture); err != nil {
			s.logger.Error("capture persistence failed", map[string]interface{}{
				"requestId": turn.RequestID,
				"error":     err.Error(),
			})
		}
	}
	if s.recorder != nil {
		s.recorder.ProcessTurn(turn, resp)
	}
}

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, stderrors.NewInvalidRequestError("userId query parameter is required"), requestID)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	captures, err := s.reader.CapturesForUser(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("capture listing failed", map[string]interface{}{
			"requestId": requestID,
			"userId":    userID,
			"error":     err.Error(),
		})
		s.writeError(w, err, requestID)
		return
	}
	if captures == nil {
		captures = []store.CaptureRow{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"captures": captures,
		"count":    len(captures),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	total, err := s.reader.UsageToday(r.Context())
	if err != nil {
		s.logger.Error("usage query failed", map[string]interface{}{
			"requestId": requestID,
			"error":     err.Error(),
		})
		s.writeError(w, err, requestID)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalTokens": total,
		"since":       time.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error, requestID string) {
	status := stderrors.HTTPStatus(err)
	if retryAfter := stderrors.RetryAfterSeconds(err); retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		s.logger.Warn("request rejected", map[string]interface{}{
			"requestId": requestID,
			"errorCode": string(stdErr.Code),
			"category":  stderrors.GetErrorCategory(stdErr.Code),
			"retryable": stderrors.IsRetryableErrorCode(stdErr.Code),
		})
	}

	s.writeJSON(w, status, stderrors.ToEnvelope(err, requestID))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encoding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
