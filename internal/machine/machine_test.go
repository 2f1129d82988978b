package machine

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/garyjia/receipt-pipeline/internal/draft"
	"github.com/garyjia/receipt-pipeline/internal/receipt"
)

func newTestMachine() *Machine {
	return New(context.Background(), "capture.jpg", zap.NewNop())
}

// driveTo dispatches the event sequence that brings a fresh machine to the
// given phase
func driveTo(t *testing.T, m *Machine, phase Phase) {
	t.Helper()

	sequence := []Event{
		{Type: EventCapture, Source: "capture.jpg"},
		{Type: EventStartOptimize},
		{Type: EventUploadStarted, UploadID: "up-1"},
		{Type: EventProcessingStarted, JobID: "job-1"},
		{Type: EventExtractionStarted},
		{Type: EventExtracted, ExtractedText: "FUEL 42.00"},
		{Type: EventClassified, Classified: &draft.ClassifiedReceipt{Type: draft.TypeFuel, Amount: 42, Confidence: 0.9}},
		{Type: EventEdit},
		{Type: EventConfirmEdits},
		{Type: EventSave, Draft: &draft.Draft{}},
		{Type: EventSaved, Saved: &receipt.Receipt{ID: "r-1"}},
	}

	for _, ev := range sequence {
		if m.State().Phase == phase {
			return
		}
		if !m.Dispatch(ev) {
			t.Fatalf("event %s rejected in phase %s while driving to %s", ev.Type, m.State().Phase, phase)
		}
	}

	if m.State().Phase != phase {
		t.Fatalf("could not drive machine to %s, stuck at %s", phase, m.State().Phase)
	}
}

func TestPhase_Terminal(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected bool
	}{
		{PhaseIdle, false},
		{PhaseUploading, false},
		{PhaseReviewing, false},
		{PhaseError, false},
		{PhaseComplete, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := tt.phase.Terminal(); got != tt.expected {
				t.Errorf("Phase.Terminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPhase_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		phase    Phase
		expected bool
	}{
		{"valid phase", PhaseCapturing, true},
		{"valid phase", PhaseError, true},
		{"invalid phase", Phase("BOGUS"), false},
		{"empty phase", Phase(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.phase.IsValid(); got != tt.expected {
				t.Errorf("Phase.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMachine_HappyPath(t *testing.T) {
	m := newTestMachine()
	driveTo(t, m, PhaseComplete)

	state := m.State()
	if state.SavedReceipt == nil || state.SavedReceipt.ID != "r-1" {
		t.Errorf("expected saved receipt r-1 on completion, got %+v", state.SavedReceipt)
	}
}

func TestMachine_IgnoresMismatchedEvents(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		event Event
	}{
		{"saved while idle", PhaseIdle, Event{Type: EventSaved}},
		{"upload progress while reviewing", PhaseReviewing, Event{Type: EventUploadProgress, Progress: 50}},
		{"classified while idle", PhaseIdle, Event{Type: EventClassified}},
		{"retry without error", PhaseUploading, Event{Type: EventRetry}},
		{"capture while uploading", PhaseUploading, Event{Type: EventCapture, Source: "x.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine()
			driveTo(t, m, tt.phase)
			before := m.State()

			if m.Dispatch(tt.event) {
				t.Fatalf("event %s should be ignored in phase %s", tt.event.Type, tt.phase)
			}
			after := m.State()
			if after.Phase != before.Phase || after.Progress != before.Progress {
				t.Errorf("state changed by ignored event: before %+v, after %+v", before, after)
			}
		})
	}
}

func TestMachine_FailSnapshotsAndRetryRestores(t *testing.T) {
	m := newTestMachine()
	driveTo(t, m, PhaseUploading)
	m.Dispatch(Event{Type: EventUploadProgress, Progress: 40})

	ok := m.Dispatch(Event{Type: EventFail, Err: &EventError{
		Code: "NETWORK_ERROR", Message: "connection reset", Retryable: true,
	}})
	if !ok {
		t.Fatal("fail event rejected")
	}

	state := m.State()
	if state.Phase != PhaseError {
		t.Fatalf("expected ERROR, got %s", state.Phase)
	}
	if state.Failure == nil || !state.Failure.CanRetry {
		t.Fatal("retryable failure under the attempt limit must be retryable")
	}
	if state.Failure.Previous == nil || state.Failure.Previous.Phase != PhaseUploading {
		t.Fatalf("failure must snapshot the interrupted state, got %+v", state.Failure.Previous)
	}

	oldCtx := m.Session().Context()
	if !m.Dispatch(Event{Type: EventRetry}) {
		t.Fatal("retry rejected")
	}

	restored := m.State()
	if restored.Phase != PhaseUploading || restored.Progress != 40 || restored.UploadID != "up-1" {
		t.Errorf("retry must restore the exact interrupted state, got %+v", restored)
	}
	if m.Session().RetryCount() != 1 {
		t.Errorf("retry count = %d, want 1", m.Session().RetryCount())
	}
	if oldCtx.Err() == nil {
		t.Error("previous attempt context must be cancelled on retry")
	}
	if m.Session().Context().Err() != nil {
		t.Error("retry must run under a fresh, live context")
	}
}

func TestMachine_RetryBound(t *testing.T) {
	m := newTestMachine()
	driveTo(t, m, PhaseUploading)

	fail := Event{Type: EventFail, Err: &EventError{Code: "SERVER_ERROR", Message: "boom", Retryable: true}}

	for i := 0; i < maxRetries; i++ {
		if !m.Dispatch(fail) {
			t.Fatalf("fail %d rejected", i+1)
		}
		if !m.Dispatch(Event{Type: EventRetry}) {
			t.Fatalf("retry %d rejected", i+1)
		}
	}

	// The attempt budget is spent; the next failure is final
	m.Dispatch(fail)
	state := m.State()
	if state.Failure == nil || state.Failure.CanRetry {
		t.Fatal("failure after exhausting retries must not be retryable")
	}
	if m.Dispatch(Event{Type: EventRetry}) {
		t.Error("retry must be rejected once the budget is spent")
	}
}

func TestMachine_NonRetryableFailure(t *testing.T) {
	m := newTestMachine()
	driveTo(t, m, PhaseProcessing)

	m.Dispatch(Event{Type: EventFail, Err: &EventError{Code: "INVALID_FILE", Message: "bad input", Retryable: false}})

	state := m.State()
	if state.Failure == nil || state.Failure.CanRetry {
		t.Fatal("non-retryable error must not allow retry")
	}
	if m.Dispatch(Event{Type: EventRetry}) {
		t.Error("retry of a non-retryable failure must be rejected")
	}
}

func TestMachine_FailIgnoredInTerminalPhases(t *testing.T) {
	for _, phase := range []Phase{PhaseIdle, PhaseComplete} {
		t.Run(string(phase), func(t *testing.T) {
			m := newTestMachine()
			driveTo(t, m, phase)
			if m.Dispatch(Event{Type: EventFail, Err: &EventError{Code: "X"}}) {
				t.Errorf("fail must be ignored in %s", phase)
			}
		})
	}
}

func TestMachine_CancelPolicy(t *testing.T) {
	tests := []struct {
		phase   Phase
		allowed bool
	}{
		{PhaseIdle, false},
		{PhaseCapturing, true},
		{PhaseUploading, true},
		{PhaseProcessing, true},
		{PhaseReviewing, true},
		{PhaseSaving, false},
		{PhaseComplete, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			m := newTestMachine()
			driveTo(t, m, tt.phase)

			got := m.Dispatch(Event{Type: EventCancel})
			if got != tt.allowed {
				t.Fatalf("cancel in %s = %v, want %v", tt.phase, got, tt.allowed)
			}
			if tt.allowed && m.State().Phase != PhaseIdle {
				t.Errorf("cancel must return to IDLE, got %s", m.State().Phase)
			}
		})
	}
}

func TestMachine_ClassifiedCollapsesFieldConfidence(t *testing.T) {
	m := newTestMachine()
	driveTo(t, m, PhaseClassifying)

	m.Dispatch(Event{Type: EventClassified, Classified: &draft.ClassifiedReceipt{
		Type: draft.TypeFuel,
		FieldConfidence: map[string]float64{
			"date":   0.9,
			"type":   0.8,
			"amount": 0.7,
		},
	}})

	state := m.State()
	if state.Phase != PhaseReviewing {
		t.Fatalf("expected REVIEWING, got %s", state.Phase)
	}
	// Absent fields default to 0.8: (0.9+0.8+0.7+0.8+0.8+0.8)/6
	if math.Abs(state.Classified.Confidence-0.8) > 1e-9 {
		t.Errorf("collapsed confidence = %v, want 0.8", state.Classified.Confidence)
	}
}

func TestMachine_SessionMetrics(t *testing.T) {
	m := newTestMachine()
	driveTo(t, m, PhaseComplete)

	metrics := m.Session().Metrics()
	for _, key := range []string{MetricOptimizeMS, MetricUploadMS, MetricOCRMS, MetricClassificationMS, MetricTotalMS, MetricConfidence} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("metric %s not recorded", key)
		}
	}
	if metrics[MetricConfidence] != 0.9 {
		t.Errorf("confidence metric = %v, want 0.9", metrics[MetricConfidence])
	}
}
