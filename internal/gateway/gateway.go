// internal/gateway/gateway.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"nuance-pipeline/internal/common/metrics"
)

var (
	ErrProviderFailed      = errors.New("PROVIDER_ERROR")
	ErrProviderTimeout     = errors.New("PROVIDER_TIMEOUT")
	ErrProviderRateLimited = errors.New("PROVIDER_RATE_LIMITED")
	ErrSchemaValidation    = errors.New("SCHEMA_VALIDATION_FAILED")
)

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// HTTPProvider talks to the model provider over its JSON completion API.
type HTTPProvider struct {
	config *Config
	client *http.Client
	logger Logger
	usage  UsageRecorder
}

func NewHTTPProvider(config *Config, log Logger, usage UsageRecorder) *HTTPProvider {
	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.With(map[string]interface{}{
			"component": "gateway",
		}),
		usage: usage,
	}
}

func (p *HTTPProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	operation := req.Operation
	if operation == "" {
		operation = "complete"
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = p.config.MaxTokens
	}

	requestBody := map[string]interface{}{
		"model":     p.config.Model,
		"prompt":    req.Prompt,
		"maxTokens": req.MaxTokens,
	}
	if req.System != "" {
		requestBody["system"] = req.System
	}
	if req.Temperature > 0 {
		requestBody["temperature"] = req.Temperature
	}

	body, _ := json.Marshal(requestBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {

		if attempt > 0 {
			// Apply exponential backoff for retries
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.ModelCalls.WithLabelValues(operation, "timeout").Inc()
				return nil, ErrProviderTimeout
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/v1/complete", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		}

		resp, lastErr = p.client.Do(httpReq)

		// If context expired during the request, return timeout immediately.
		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {

			metrics.ModelCalls.WithLabelValues(operation, "timeout").Inc()
			return nil, ErrProviderTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			// Provider-side throttling is surfaced as-is, not retried here.
			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				metrics.ModelCalls.WithLabelValues(operation, "rate_limited").Inc()
				return nil, ErrProviderRateLimited
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			metrics.ModelCalls.WithLabelValues(operation, "timeout").Inc()
			return nil, ErrProviderTimeout
		}
		metrics.ModelCalls.WithLabelValues(operation, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, lastErr)
	}

	if resp == nil {
		metrics.ModelCalls.WithLabelValues(operation, "error").Inc()
		return nil, fmt.Errorf("%w: no successful response after retries", ErrProviderFailed)
	}
	defer resp.Body.Close()

	var apiResponse CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		metrics.ModelCalls.WithLabelValues(operation, "error").Inc()
		return nil, fmt.Errorf("%w: decode error: %v", ErrProviderFailed, err)
	}

	metrics.ModelCalls.WithLabelValues(operation, "success").Inc()
	if p.usage != nil {
		p.usage.RecordUsage(ctx, operation, apiResponse.InputTokens, apiResponse.OutputTokens)
	}

	p.logger.Debug("completion succeeded", map[string]interface{}{
		"operation":    operation,
		"inputTokens":  apiResponse.InputTokens,
		"outputTokens": apiResponse.OutputTokens,
	})

	return &apiResponse, nil
}

// ExtractStructured runs a completion and parses the output as JSON.
// Model output wrapped in markdown code fences is unwrapped first.
func (p *HTTPProvider) ExtractStructured(ctx context.Context, req ExtractionRequest) (json.RawMessage, error) {
	operation := req.Operation
	if operation == "" {
		operation = "extract"
	}

	resp, err := p.Complete(ctx, CompletionRequest{
		Operation: operation,
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	raw := stripCodeFences(resp.Text)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: model output is not valid JSON", ErrSchemaValidation)
	}

	if req.Schema != "" {
		result, err := gojsonschema.Validate(
			gojsonschema.NewStringLoader(req.Schema),
			gojsonschema.NewStringLoader(raw),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
		if !result.Valid() {
			var details []string
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			p.logger.Warn("structured output failed schema validation", map[string]interface{}{
				"operation": operation,
				"errors":    details,
			})
			return nil, fmt.Errorf("%w: %s", ErrSchemaValidation, strings.Join(details, "; "))
		}
	}

	return json.RawMessage(raw), nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
