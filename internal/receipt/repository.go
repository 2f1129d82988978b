package receipt

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/receipt-pipeline/pkg/database"
)

// Repository is the durable receipt store backed by the receipt archive
type Repository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRepository creates a new receipt repository
func NewRepository(db *database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Save persists a finalized receipt and returns its id. The id check and
// insert run in one transaction so a re-save of the same receipt is rejected
// rather than silently duplicated or half-applied.
func (r *Repository) Save(ctx context.Context, rec *Receipt) (string, error) {
	query := `
		INSERT INTO receipts (
			id, receipt_date, receipt_type, amount, vehicle, vendor,
			location, extracted_text, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.WithTransaction(func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM receipts WHERE id = ?", rec.ID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("receipt %s already exists", rec.ID)
		}

		_, err := tx.ExecContext(ctx, query,
			rec.ID,
			rec.Date,
			rec.Type,
			rec.Amount,
			rec.Vehicle,
			rec.Vendor,
			rec.Location,
			rec.ExtractedText,
			rec.Confidence,
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to save receipt", zap.String("id", rec.ID), zap.Error(err))
		return "", fmt.Errorf("failed to save receipt: %w", err)
	}

	r.logger.Info("Receipt saved",
		zap.String("id", rec.ID),
		zap.String("type", rec.Type),
		zap.String("amount", rec.Amount))

	return rec.ID, nil
}

// GetByID retrieves a receipt by id, returning nil when not found
func (r *Repository) GetByID(ctx context.Context, id string) (*Receipt, error) {
	query := `
		SELECT id, receipt_date, receipt_type, amount, vehicle, vendor,
			location, extracted_text, confidence, created_at
		FROM receipts
		WHERE id = ?
	`

	var rec Receipt
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Date,
		&rec.Type,
		&rec.Amount,
		&rec.Vehicle,
		&rec.Vendor,
		&rec.Location,
		&rec.ExtractedText,
		&rec.Confidence,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get receipt", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	return &rec, nil
}

// List returns all receipts ordered by date, newest first
func (r *Repository) List(ctx context.Context) ([]*Receipt, error) {
	query := `
		SELECT id, receipt_date, receipt_type, amount, vehicle, vendor,
			location, extracted_text, confidence, created_at
		FROM receipts
		ORDER BY receipt_date DESC, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list receipts", zap.Error(err))
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		var rec Receipt
		if err := rows.Scan(
			&rec.ID,
			&rec.Date,
			&rec.Type,
			&rec.Amount,
			&rec.Vehicle,
			&rec.Vendor,
			&rec.Location,
			&rec.ExtractedText,
			&rec.Confidence,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, &rec)
	}

	return receipts, rows.Err()
}
