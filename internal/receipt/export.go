package receipt

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// exportHeaders are the columns of the receipts sheet
var exportHeaders = []string{
	"Date",
	"Type",
	"Amount",
	"Vehicle",
	"Vendor",
	"Location",
	"Confidence",
}

// Exporter renders saved receipts to an XLSX workbook
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// ExportXLSX returns an XLSX workbook as bytes containing the given receipts
func (e *Exporter) ExportXLSX(receipts []*Receipt) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Receipts"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, rec := range receipts {
		values := []interface{}{
			rec.Date,
			rec.Type,
			rec.Amount,
			rec.Vehicle,
			rec.Vendor,
			rec.Location,
			fmt.Sprintf("%.2f", rec.Confidence),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row+2, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	e.logger.Info("Receipts exported", zap.Int("count", len(receipts)))
	return buf.Bytes(), nil
}
