package machine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metric keys stamped at phase boundaries. Informational only, never used
// for correctness.
const (
	MetricOptimizeMS       = "optimize_ms"
	MetricUploadMS         = "upload_ms"
	MetricOCRMS            = "ocr_ms"
	MetricClassificationMS = "classification_ms"
	MetricTotalMS          = "total_ms"
	MetricCompressionRatio = "compression_ratio"
	MetricConfidence       = "confidence"
)

// Session owns the cancellation handle and mutable metrics for one
// capture-to-classification attempt. It is owned exclusively by the active
// flow and discarded on cancel, reset or terminal save.
type Session struct {
	ID        string
	Source    string
	StartedAt time.Time

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	metrics    map[string]float64
	retryCount int
}

// NewSession creates a processing session with a fresh cancellation handle
func NewSession(parent context.Context, source string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   make(map[string]float64),
	}
}

// Context returns the cancellation context for the current attempt
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Cancel aborts the session's cancellation handle
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// RenewAttempt issues a fresh cancellation handle for a retry attempt and
// increments the retry count
func (s *Session) RenewAttempt(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.retryCount++
}

// RetryCount returns how many retries this session has consumed
func (s *Session) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// RecordMetric stores one metric value
func (s *Session) RecordMetric(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[key] = value
}

// StampElapsed records the wall-clock time elapsed since session start
func (s *Session) StampElapsed(key string) {
	s.RecordMetric(key, float64(time.Since(s.StartedAt).Milliseconds()))
}

// Metrics returns a copy of the metrics map
func (s *Session) Metrics() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}
