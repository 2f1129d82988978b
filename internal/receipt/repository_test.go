package receipt

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-pipeline/pkg/database"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "receipts.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations())
	return NewRepository(db, zap.NewNop())
}

func sampleReceipt(id, date string) *Receipt {
	return &Receipt{
		ID:            id,
		Date:          date,
		Type:          "Fuel",
		Amount:        "42.50",
		Vehicle:       "Truck 7",
		Vendor:        "Shell",
		Location:      "Springfield",
		ExtractedText: "SHELL FUEL 42.50",
		Confidence:    0.87,
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	id, err := repo.Save(ctx, sampleReceipt("r-1", "2026-08-15"))
	require.NoError(t, err)
	assert.Equal(t, "r-1", id)

	loaded, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "42.50", loaded.Amount)
	assert.Equal(t, "Fuel", loaded.Type)
	assert.Equal(t, 0.87, loaded.Confidence)
}

func TestRepository_SaveRejectsDuplicateID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, sampleReceipt("r-1", "2026-08-15"))
	require.NoError(t, err)

	_, err = repo.Save(ctx, sampleReceipt("r-1", "2026-08-16"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "already exists")

	// The rolled-back save must not overwrite the stored receipt
	loaded, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-15", loaded.Date)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepository(t)
	loaded, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRepository_ListNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, r := range []*Receipt{
		sampleReceipt("r-old", "2026-01-10"),
		sampleReceipt("r-new", "2026-08-15"),
		sampleReceipt("r-mid", "2026-04-01"),
	} {
		_, err := repo.Save(ctx, r)
		require.NoError(t, err)
	}

	receipts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	assert.Equal(t, "r-new", receipts[0].ID)
	assert.Equal(t, "r-mid", receipts[1].ID)
	assert.Equal(t, "r-old", receipts[2].ID)
}

func TestExporter_ExportXLSX(t *testing.T) {
	exporter := NewExporter(zap.NewNop())

	data, err := exporter.ExportXLSX([]*Receipt{
		sampleReceipt("r-1", "2026-08-15"),
		sampleReceipt("r-2", "2026-08-16"),
	})
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Receipts")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per receipt")
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, "2026-08-15", rows[1][0])
	assert.Equal(t, "42.50", rows[1][2])
}
