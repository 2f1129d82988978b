// Package draft holds the mutable working copy of a classified receipt and
// its field, cross-field and business-rule validation.
package draft

// Receipt type values recognized by the classifier
const (
	TypeFuel        = "Fuel"
	TypeMaintenance = "Maintenance"
	TypeInsurance   = "Insurance"
	TypeParking     = "Parking"
	TypeOther       = "Other"
)

// classifiedFields is the canonical set of structured fields a classification produces
var classifiedFields = []string{"date", "type", "amount", "vehicle", "vendor", "location"}

// defaultConfidence is assumed for a field the classifier reported no confidence for
const defaultConfidence = 0.8

// ClassifiedReceipt is the output of the remote OCR+classification job
type ClassifiedReceipt struct {
	ExtractedText   string             `json:"extractedText"`
	Date            string             `json:"date"`
	Type            string             `json:"type"`
	Amount          float64            `json:"amount"`
	Vehicle         string             `json:"vehicle"`
	Vendor          string             `json:"vendor"`
	Location        string             `json:"location"`
	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"fieldConfidence,omitempty"`
}

// MeanConfidence collapses a per-field confidence map to a single scalar via
// arithmetic mean over the canonical fields; a field with no reported
// confidence counts as 0.8.
func MeanConfidence(fieldConfidence map[string]float64) float64 {
	sum := 0.0
	for _, field := range classifiedFields {
		if c, ok := fieldConfidence[field]; ok {
			sum += c
		} else {
			sum += defaultConfidence
		}
	}
	return sum / float64(len(classifiedFields))
}

// IsKnownType reports whether t is a recognized receipt type
func IsKnownType(t string) bool {
	switch t {
	case TypeFuel, TypeMaintenance, TypeInsurance, TypeParking, TypeOther:
		return true
	}
	return false
}
