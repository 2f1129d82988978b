package machine

import (
	"github.com/garyjia/receipt-pipeline/internal/draft"
	"github.com/garyjia/receipt-pipeline/internal/receipt"
)

// EventType identifies an event dispatched to the state machine
type EventType string

const (
	EventCapture           EventType = "CAPTURE"
	EventStartOptimize     EventType = "START_OPTIMIZE"
	EventOptimizeProgress  EventType = "OPTIMIZE_PROGRESS"
	EventUploadStarted     EventType = "UPLOAD_STARTED"
	EventUploadProgress    EventType = "UPLOAD_PROGRESS"
	EventProcessingStarted EventType = "PROCESSING_STARTED"
	EventProcessProgress   EventType = "PROCESS_PROGRESS"
	EventExtractionStarted EventType = "EXTRACTION_STARTED"
	EventExtracted         EventType = "EXTRACTED"
	EventClassifyProgress  EventType = "CLASSIFY_PROGRESS"
	EventClassified        EventType = "CLASSIFIED"
	EventEdit              EventType = "EDIT"
	EventEditField         EventType = "EDIT_FIELD"
	EventConfirmEdits      EventType = "CONFIRM_EDITS"
	EventSave              EventType = "SAVE"
	EventSaved             EventType = "SAVED"
	EventFail              EventType = "FAIL"
	EventRetry             EventType = "RETRY"
	EventCancel            EventType = "CANCEL"
	EventReset             EventType = "RESET"
)

// String returns the string representation of the event type
func (t EventType) String() string {
	return string(t)
}

// EventError carries failure details into an EventFail dispatch
type EventError struct {
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Event is one discrete input to the state machine. Only the payload fields
// relevant to the event type are set.
type Event struct {
	Type EventType

	Source        string                   // CAPTURE
	Progress      int                      // *_PROGRESS
	UploadID      string                   // UPLOAD_STARTED
	JobID         string                   // PROCESSING_STARTED
	OriginalSize  int64                    // OPTIMIZE completion via UPLOAD_STARTED
	OptimizedSize int64                    // OPTIMIZE completion via UPLOAD_STARTED
	ExtractedText string                   // EXTRACTED
	Classified    *draft.ClassifiedReceipt // CLASSIFIED
	Field         string                   // EDIT_FIELD
	Value         string                   // EDIT_FIELD
	Draft         *draft.Draft             // SAVE
	Saved         *receipt.Receipt         // SAVED
	Err           *EventError              // FAIL
}
