package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPClient interface for testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// correlationHeader threads all requests of one logical operation together
// for retries and tracing.
const correlationHeader = "X-Correlation-ID"

// Config holds OCR service client settings
type Config struct {
	BaseURL            string
	RequestTimeout     time.Duration
	Retry              RetryPolicy
	ChunkRetryAttempts int
	PollInterval       time.Duration
	MaxPollAttempts    int
}

// DefaultConfig returns client settings used when none are configured
func DefaultConfig() Config {
	return Config{
		RequestTimeout:     30 * time.Second,
		Retry:              DefaultRetryPolicy(),
		ChunkRetryAttempts: 2,
		PollInterval:       time.Second,
		MaxPollAttempts:    60,
	}
}

// transport performs HTTP calls against the OCR service with the shared
// retry/backoff policy. One transport is shared by UploadClient and JobClient.
type transport struct {
	baseURL    string
	httpClient HTTPClient
	retry      RetryPolicy
	logger     *zap.Logger
}

func newTransport(cfg Config, logger *zap.Logger) *transport {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &transport{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		retry:      cfg.Retry,
		logger:     logger,
	}
}

// doJSON sends a JSON request and decodes a JSON response
func (t *transport) doJSON(ctx context.Context, method, path string, body, out interface{}, correlationID string, maxAttempts int) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewValidationError("ENCODE_FAILED", fmt.Sprintf("failed to encode request: %v", err))
		}
		payload = data
	}
	return t.do(ctx, method, path, "application/json", payload, out, correlationID, maxAttempts)
}

// do sends a request with up to maxAttempts attempts under the retry policy.
// All attempts carry the same correlation id.
func (t *transport) do(ctx context.Context, method, path, contentType string, payload []byte, out interface{}, correlationID string, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr *Error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return wrapTransportError(err, correlationID)
		}

		err := t.doOnce(ctx, method, path, contentType, payload, out, correlationID)
		if err == nil {
			return nil
		}
		lastErr = err

		if !err.Retryable {
			return err
		}

		// An unknown failure gets a single retry, not the full budget
		if err.Kind == KindUnknown && attempt > 1 {
			return err
		}

		if attempt < maxAttempts {
			backoff := t.retry.Delay(attempt)
			t.logger.Info("Retrying request",
				zap.String("path", path),
				zap.String("correlation_id", correlationID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return wrapTransportError(ctx.Err(), correlationID)
			case <-time.After(backoff):
			}
		}
	}

	t.logger.Error("Request failed after retries",
		zap.String("path", path),
		zap.String("correlation_id", correlationID),
		zap.Int("max_attempts", maxAttempts),
		zap.Error(lastErr))
	return lastErr
}

// doOnce performs a single request attempt
func (t *transport) doOnce(ctx context.Context, method, path, contentType string, payload []byte, out interface{}, correlationID string) *Error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return &Error{Kind: KindUnknown, Code: "REQUEST_BUILD_FAILED", Message: err.Error(), CorrelationID: correlationID, Retryable: false, cause: err}
	}
	if contentType != "" && payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(correlationHeader, correlationID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return wrapTransportError(err, correlationID)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapTransportError(err, correlationID)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		// Error bodies are {code, message}; a non-JSON body falls through with empty fields
		_ = json.Unmarshal(respBody, &apiErr)
		return newStatusError(resp.StatusCode, apiErr.Code, apiErr.Message, correlationID)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Kind: KindUnknown, Code: "DECODE_FAILED", Message: fmt.Sprintf("failed to decode response: %v", err), CorrelationID: correlationID, Retryable: true, cause: err}
		}
	}

	return nil
}
