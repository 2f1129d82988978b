// Package receipt holds the persisted receipt entity, its SQLite repository
// and spreadsheet export.
package receipt

import "time"

// Receipt is a finalized, persisted receipt produced from a validated draft
type Receipt struct {
	ID            string    `json:"id"`
	Date          string    `json:"date"`   // normalized YYYY-MM-DD
	Type          string    `json:"type"`   // Fuel, Maintenance, Insurance, Parking, Other
	Amount        string    `json:"amount"` // fixed 2-decimal string
	Vehicle       string    `json:"vehicle"`
	Vendor        string    `json:"vendor"`
	Location      string    `json:"location"`
	ExtractedText string    `json:"extractedText"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"createdAt"`
}
