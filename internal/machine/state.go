// Package machine implements the processing state machine for one
// capture-to-classification attempt: a tagged-union state, a pure transition
// function over dispatched events, and the session that owns cancellation
// and metrics.
package machine

import (
	"github.com/garyjia/receipt-pipeline/internal/draft"
	"github.com/garyjia/receipt-pipeline/internal/receipt"
)

// Phase identifies the variant of the processing state
type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseCapturing   Phase = "CAPTURING"
	PhaseOptimizing  Phase = "OPTIMIZING"
	PhaseUploading   Phase = "UPLOADING"
	PhaseProcessing  Phase = "PROCESSING"
	PhaseExtracting  Phase = "EXTRACTING" // processing sub-phase
	PhaseClassifying Phase = "CLASSIFYING"
	PhaseReviewing   Phase = "REVIEWING"
	PhaseEditing     Phase = "EDITING"
	PhaseSaving      Phase = "SAVING"
	PhaseComplete    Phase = "COMPLETE"
	PhaseError       Phase = "ERROR"
)

var validPhases = map[Phase]bool{
	PhaseIdle:        true,
	PhaseCapturing:   true,
	PhaseOptimizing:  true,
	PhaseUploading:   true,
	PhaseProcessing:  true,
	PhaseExtracting:  true,
	PhaseClassifying: true,
	PhaseSaving:      true,
	PhaseReviewing:   true,
	PhaseEditing:     true,
	PhaseComplete:    true,
	PhaseError:       true,
}

// Cancellation is disallowed where there is nothing to cancel, or where a
// save in flight must finish or fail on its own.
var cancelDisallowed = map[Phase]bool{
	PhaseIdle:     true,
	PhaseComplete: true,
	PhaseSaving:   true,
}

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// IsValid returns true if the phase is a valid processing phase
func (p Phase) IsValid() bool {
	return validPhases[p]
}

// Terminal returns true if no further transitions are expected
func (p Phase) Terminal() bool {
	return p == PhaseComplete
}

// Failure is the payload of the error state. Previous snapshots the state
// that was being exited so a retry can restore it exactly.
type Failure struct {
	Code     string
	Message  string
	Cause    error
	Previous *State
	CanRetry bool
}

// State is the tagged-union processing state. Phase selects the variant;
// only the payload fields belonging to that variant are meaningful.
type State struct {
	Phase Phase

	Source         string                   // CAPTURING
	Progress       int                      // OPTIMIZING..CLASSIFYING, raw phase progress 0-100
	UploadID       string                   // UPLOADING
	JobID          string                   // PROCESSING, EXTRACTING
	ExtractedText  string                   // CLASSIFYING
	Classified     *draft.ClassifiedReceipt // REVIEWING, EDITING
	PendingChanges map[string]string        // EDITING
	Draft          *draft.Draft             // SAVING
	SavedReceipt   *receipt.Receipt         // COMPLETE
	Failure        *Failure                 // ERROR
}

// Idle returns the initial state
func Idle() State {
	return State{Phase: PhaseIdle}
}

// CanCancel reports whether a cancel or reset is accepted in this state
func (s State) CanCancel() bool {
	return !cancelDisallowed[s.Phase]
}
