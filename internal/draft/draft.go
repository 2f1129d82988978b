package draft

import (
	"fmt"
	"strconv"
)

// Severity of a validation issue; only error-severity issues block saving
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding for a field
type Issue struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// requiredFields must carry no error-severity issue for a draft to be saveable
var requiredFields = map[string]bool{
	"date":   true,
	"type":   true,
	"amount": true,
}

// Draft is the mutable, user-editable working copy of a classified receipt
// prior to persistence
type Draft struct {
	ID          string             `json:"id"`
	Fields      ClassifiedReceipt  `json:"fields"`
	Dirty       map[string]bool    `json:"dirty"`
	FieldIssues map[string][]Issue `json:"fieldIssues"`
}

// New creates a draft from a classification result
func New(classified ClassifiedReceipt) *Draft {
	return &Draft{
		Fields:      classified,
		Dirty:       make(map[string]bool),
		FieldIssues: make(map[string][]Issue),
	}
}

// Clone returns an independent deep copy of the draft, safe to hand to a
// reader while edits continue on the original
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	cp := &Draft{
		ID:          d.ID,
		Fields:      d.Fields,
		Dirty:       make(map[string]bool, len(d.Dirty)),
		FieldIssues: make(map[string][]Issue, len(d.FieldIssues)),
	}
	if d.Fields.FieldConfidence != nil {
		cp.Fields.FieldConfidence = make(map[string]float64, len(d.Fields.FieldConfidence))
		for field, confidence := range d.Fields.FieldConfidence {
			cp.Fields.FieldConfidence[field] = confidence
		}
	}
	for field, dirty := range d.Dirty {
		cp.Dirty[field] = dirty
	}
	for field, issues := range d.FieldIssues {
		cp.FieldIssues[field] = append([]Issue(nil), issues...)
	}
	return cp
}

// SetField applies a user edit to a named field and marks it dirty
func (d *Draft) SetField(name string, value string) error {
	switch name {
	case "date":
		d.Fields.Date = value
	case "type":
		d.Fields.Type = value
	case "vehicle":
		d.Fields.Vehicle = value
	case "vendor":
		d.Fields.Vendor = value
	case "location":
		d.Fields.Location = value
	case "amount":
		amount, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("amount must be numeric: %q", value)
		}
		d.Fields.Amount = amount
	default:
		return fmt.Errorf("unknown field: %s", name)
	}

	d.Dirty[name] = true
	return nil
}

// FieldValue returns the current value of a named field as a string
func (d *Draft) FieldValue(name string) string {
	switch name {
	case "date":
		return d.Fields.Date
	case "type":
		return d.Fields.Type
	case "vehicle":
		return d.Fields.Vehicle
	case "vendor":
		return d.Fields.Vendor
	case "location":
		return d.Fields.Location
	case "amount":
		return strconv.FormatFloat(d.Fields.Amount, 'f', -1, 64)
	}
	return ""
}

// SetIssues replaces the recorded issues for one field
func (d *Draft) SetIssues(field string, issues []Issue) {
	if len(issues) == 0 {
		delete(d.FieldIssues, field)
		return
	}
	d.FieldIssues[field] = issues
}

// Saveable reports whether the draft may be persisted: no required field may
// carry an error-severity issue
func (d *Draft) Saveable() bool {
	for field, issues := range d.FieldIssues {
		if !requiredFields[field] {
			continue
		}
		for _, issue := range issues {
			if issue.Severity == SeverityError {
				return false
			}
		}
	}
	return true
}
