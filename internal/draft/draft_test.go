package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraft_Clone(t *testing.T) {
	original := New(ClassifiedReceipt{
		Date:            "2026-08-15",
		Type:            TypeFuel,
		Amount:          42.5,
		FieldConfidence: map[string]float64{"date": 0.9},
	})
	original.SetIssues("amount", []Issue{{Code: CodeInvalidRange, Message: "too low", Severity: SeverityError}})

	cp := original.Clone()

	// Edits to the original must not show through the copy
	require.NoError(t, original.SetField("amount", "99"))
	original.SetIssues("amount", nil)
	original.Fields.FieldConfidence["date"] = 0.1

	assert.Equal(t, 42.5, cp.Fields.Amount)
	assert.Empty(t, cp.Dirty)
	require.Len(t, cp.FieldIssues["amount"], 1)
	assert.Equal(t, CodeInvalidRange, cp.FieldIssues["amount"][0].Code)
	assert.Equal(t, 0.9, cp.Fields.FieldConfidence["date"])

	// And the other way around
	require.NoError(t, cp.SetField("vendor", "Shell"))
	assert.Empty(t, original.FieldValue("vendor"))

	var nilDraft *Draft
	assert.Nil(t, nilDraft.Clone())
}
