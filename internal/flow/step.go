// Package flow composes the optimizer, upload/job clients and processing
// state machine into one workflow per capture action, and owns the
// flow-id to record map.
package flow

// Step is a position in the capture-to-report workflow
type Step string

const (
	StepCapture      Step = "capture"
	StepProcessing   Step = "processing"
	StepReview       Step = "review"
	StepVerification Step = "verification"
	StepReport       Step = "report"
)

// stepOrder gives each step its position in the linear step graph
var stepOrder = map[Step]int{
	StepCapture:      0,
	StepProcessing:   1,
	StepReview:       2,
	StepVerification: 3,
	StepReport:       4,
}

// allowedForward is the explicit allowed-from-step table for forward
// navigation. Backward navigation is always permitted.
var allowedForward = map[Step][]Step{
	StepCapture:      {StepProcessing},
	StepProcessing:   {StepReview},
	StepReview:       {StepVerification},
	StepVerification: {StepReport},
}

// String returns the string representation of the step
func (s Step) String() string {
	return string(s)
}

// IsValid returns true if the step is part of the workflow
func (s Step) IsValid() bool {
	_, ok := stepOrder[s]
	return ok
}

// isBackward reports whether moving from current to target goes backward
func isBackward(current, target Step) bool {
	return stepOrder[target] < stepOrder[current]
}

// forwardAllowed reports whether the step table permits current → target
func forwardAllowed(current, target Step) bool {
	for _, next := range allowedForward[current] {
		if next == target {
			return true
		}
	}
	return false
}
