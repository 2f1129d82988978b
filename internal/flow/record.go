package flow

import (
	"time"
)

// Transition records one step change in a flow's lifetime
type Transition struct {
	From Step      `json:"from"`
	To   Step      `json:"to"`
	At   time.Time `json:"at"`
}

// ErrorEntry records one failure observed while driving the flow
type ErrorEntry struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Record is the persistable view of one flow: where it is in the step
// graph, how it got there, and what it measured along the way
type Record struct {
	ID          string             `json:"id"`
	ImageRef    string             `json:"imageRef"`
	CurrentStep Step               `json:"currentStep"`
	StepHistory []Step             `json:"stepHistory"`
	Transitions []Transition       `json:"transitions"`
	Errors      []ErrorEntry       `json:"errors"`
	Metrics     map[string]float64 `json:"metrics"`
	Progress    int                `json:"progress"` // overall 0-100 across upload and processing
	ReceiptID   string             `json:"receiptId,omitempty"`
	Completed   bool               `json:"completed"`
	Cancelled   bool               `json:"cancelled"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// newRecord creates a record positioned at the capture step
func newRecord(id, imageRef string, now time.Time) *Record {
	return &Record{
		ID:          id,
		ImageRef:    imageRef,
		CurrentStep: StepCapture,
		StepHistory: []Step{StepCapture},
		Metrics:     make(map[string]float64),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// moveTo advances the record to the target step and logs the transition
func (r *Record) moveTo(target Step, now time.Time) {
	r.Transitions = append(r.Transitions, Transition{From: r.CurrentStep, To: target, At: now})
	r.StepHistory = append(r.StepHistory, target)
	r.CurrentStep = target
	r.UpdatedAt = now
}

// recordError appends a failure entry
func (r *Record) recordError(code, message string, now time.Time) {
	r.Errors = append(r.Errors, ErrorEntry{Code: code, Message: message, At: now})
	r.UpdatedAt = now
}

// archived reports whether the record has left the active set
func (r *Record) archived() bool {
	return r.Completed || r.Cancelled
}

// clone returns a deep copy safe to hand outside the manager's lock
func (r *Record) clone() *Record {
	cp := *r
	cp.StepHistory = append([]Step(nil), r.StepHistory...)
	cp.Transitions = append([]Transition(nil), r.Transitions...)
	cp.Errors = append([]ErrorEntry(nil), r.Errors...)
	cp.Metrics = make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		cp.Metrics[k] = v
	}
	return &cp
}
