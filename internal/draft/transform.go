package draft

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/receipt-pipeline/internal/receipt"
)

// TransformToFinal normalizes a validated draft into a persistable receipt:
// amount as a fixed 2-decimal string, date as YYYY-MM-DD, trimmed free-text
// fields, and an id assigned when the draft carries none.
func TransformToFinal(d *Draft) (*receipt.Receipt, error) {
	parsed, err := parseReceiptDate(d.Fields.Date)
	if err != nil {
		return nil, fmt.Errorf("cannot finalize draft: %w", err)
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}

	confidence := d.Fields.Confidence
	if confidence == 0 && len(d.Fields.FieldConfidence) > 0 {
		confidence = MeanConfidence(d.Fields.FieldConfidence)
	}

	return &receipt.Receipt{
		ID:            id,
		Date:          parsed.Format("2006-01-02"),
		Type:          d.Fields.Type,
		Amount:        fmt.Sprintf("%.2f", d.Fields.Amount),
		Vehicle:       strings.TrimSpace(d.Fields.Vehicle),
		Vendor:        strings.TrimSpace(d.Fields.Vendor),
		Location:      strings.TrimSpace(d.Fields.Location),
		ExtractedText: d.Fields.ExtractedText,
		Confidence:    confidence,
		CreatedAt:     time.Now(),
	}, nil
}
