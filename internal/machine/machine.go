package machine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/receipt-pipeline/internal/draft"
)

// maxRetries bounds how many times an error state may be retried
const maxRetries = 3

// Machine tracks the processing state for one capture attempt and validates
// transitions. An event is accepted only if the current state matches the
// event's precondition; otherwise the dispatch is a logged no-op that leaves
// the state unchanged.
type Machine struct {
	mu      sync.Mutex
	parent  context.Context
	session *Session
	state   State
	logger  *zap.Logger
}

// New creates a machine in the idle state with a fresh session
func New(parent context.Context, source string, logger *zap.Logger) *Machine {
	return &Machine{
		parent:  parent,
		session: NewSession(parent, source),
		state:   Idle(),
		logger:  logger,
	}
}

// State returns a snapshot of the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the processing session owned by this machine
func (m *Machine) Session() *Session {
	return m.session
}

// Dispatch applies the event if its precondition matches the current state
// and returns whether the transition was taken
func (m *Machine) Dispatch(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.transition(m.state, ev)
	if !ok {
		m.logger.Debug("Event ignored in current state",
			zap.String("session_id", m.session.ID),
			zap.String("event", ev.Type.String()),
			zap.String("phase", m.state.Phase.String()))
		return false
	}

	m.applyEffects(m.state, next, ev)

	m.logger.Debug("State transition",
		zap.String("session_id", m.session.ID),
		zap.String("event", ev.Type.String()),
		zap.String("from", m.state.Phase.String()),
		zap.String("to", next.Phase.String()))

	m.state = next
	return true
}

// transition computes the next state for an event, or reports that the
// event's precondition does not hold. The switch is total over event types.
func (m *Machine) transition(current State, ev Event) (State, bool) {
	switch ev.Type {
	case EventCapture:
		if current.Phase != PhaseIdle {
			return current, false
		}
		return State{Phase: PhaseCapturing, Source: ev.Source}, true

	case EventStartOptimize:
		if current.Phase != PhaseCapturing {
			return current, false
		}
		return State{Phase: PhaseOptimizing}, true

	case EventOptimizeProgress:
		if current.Phase != PhaseOptimizing {
			return current, false
		}
		return State{Phase: PhaseOptimizing, Progress: ev.Progress}, true

	case EventUploadStarted:
		if current.Phase != PhaseOptimizing {
			return current, false
		}
		return State{Phase: PhaseUploading, UploadID: ev.UploadID}, true

	case EventUploadProgress:
		if current.Phase != PhaseUploading {
			return current, false
		}
		return State{Phase: PhaseUploading, Progress: ev.Progress, UploadID: current.UploadID}, true

	case EventProcessingStarted:
		if current.Phase != PhaseUploading {
			return current, false
		}
		return State{Phase: PhaseProcessing, JobID: ev.JobID}, true

	case EventProcessProgress:
		if current.Phase != PhaseProcessing && current.Phase != PhaseExtracting {
			return current, false
		}
		return State{Phase: current.Phase, Progress: ev.Progress, JobID: current.JobID}, true

	case EventExtractionStarted:
		if current.Phase != PhaseProcessing {
			return current, false
		}
		return State{Phase: PhaseExtracting, Progress: current.Progress, JobID: current.JobID}, true

	case EventExtracted:
		if current.Phase != PhaseProcessing && current.Phase != PhaseExtracting {
			return current, false
		}
		return State{Phase: PhaseClassifying, ExtractedText: ev.ExtractedText}, true

	case EventClassifyProgress:
		if current.Phase != PhaseClassifying {
			return current, false
		}
		return State{Phase: PhaseClassifying, Progress: ev.Progress, ExtractedText: current.ExtractedText}, true

	case EventClassified:
		// A job may complete without surfacing every sub-phase, so
		// classification results are accepted from any processing phase.
		if current.Phase != PhaseProcessing && current.Phase != PhaseExtracting && current.Phase != PhaseClassifying {
			return current, false
		}
		classified := ev.Classified
		if classified != nil && classified.Confidence == 0 {
			withScalar := *classified
			withScalar.Confidence = draft.MeanConfidence(classified.FieldConfidence)
			classified = &withScalar
		}
		return State{Phase: PhaseReviewing, Classified: classified}, true

	case EventEdit:
		if current.Phase != PhaseReviewing {
			return current, false
		}
		return State{Phase: PhaseEditing, Classified: current.Classified, PendingChanges: make(map[string]string)}, true

	case EventEditField:
		if current.Phase != PhaseEditing {
			return current, false
		}
		changes := make(map[string]string, len(current.PendingChanges)+1)
		for k, v := range current.PendingChanges {
			changes[k] = v
		}
		changes[ev.Field] = ev.Value
		return State{Phase: PhaseEditing, Classified: current.Classified, PendingChanges: changes}, true

	case EventConfirmEdits:
		if current.Phase != PhaseEditing {
			return current, false
		}
		return State{Phase: PhaseReviewing, Classified: current.Classified}, true

	case EventSave:
		if current.Phase != PhaseReviewing && current.Phase != PhaseEditing {
			return current, false
		}
		return State{Phase: PhaseSaving, Draft: ev.Draft}, true

	case EventSaved:
		if current.Phase != PhaseSaving {
			return current, false
		}
		return State{Phase: PhaseComplete, SavedReceipt: ev.Saved}, true

	case EventFail:
		if current.Phase == PhaseIdle || current.Phase == PhaseComplete || current.Phase == PhaseError {
			return current, false
		}
		previous := current
		failure := &Failure{Previous: &previous}
		if ev.Err != nil {
			failure.Code = ev.Err.Code
			failure.Message = ev.Err.Message
			failure.Cause = ev.Err.Cause
			failure.CanRetry = ev.Err.Retryable && m.session.RetryCount() < maxRetries
		}
		return State{Phase: PhaseError, Failure: failure}, true

	case EventRetry:
		if current.Phase != PhaseError || current.Failure == nil || !current.Failure.CanRetry {
			return current, false
		}
		// Resume exactly where the error interrupted, not from the start
		return *current.Failure.Previous, true

	case EventCancel, EventReset:
		if !current.CanCancel() {
			return current, false
		}
		return Idle(), true
	}

	return current, false
}

// applyEffects performs the session side effects of an accepted transition:
// phase-boundary metric stamps, retry bookkeeping and cancellation handles
func (m *Machine) applyEffects(from, to State, ev Event) {
	switch ev.Type {
	case EventUploadStarted:
		m.session.StampElapsed(MetricOptimizeMS)
		if ev.OriginalSize > 0 && ev.OptimizedSize > 0 {
			m.session.RecordMetric(MetricCompressionRatio, float64(ev.OptimizedSize)/float64(ev.OriginalSize))
		}
	case EventProcessingStarted:
		m.session.StampElapsed(MetricUploadMS)
	case EventExtracted:
		m.session.StampElapsed(MetricOCRMS)
	case EventClassified:
		m.session.StampElapsed(MetricClassificationMS)
		if to.Classified != nil {
			m.session.RecordMetric(MetricConfidence, to.Classified.Confidence)
		}
	case EventSaved:
		m.session.StampElapsed(MetricTotalMS)
	case EventRetry:
		// Each retry attempt runs under a fresh cancellation handle
		m.session.RenewAttempt(m.parent)
	case EventCancel, EventReset:
		m.session.Cancel()
	}
}
