package draft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestValidator() *Validator {
	v := NewValidator(DefaultValidatorConfig(), zap.NewNop())
	v.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return v
}

func TestValidateField_Amount(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name         string
		value        string
		draftType    string
		wantCode     string
		wantSeverity Severity
	}{
		{"empty is required", "", "", CodeRequiredField, SeverityError},
		{"non-numeric", "abc", "", CodeInvalidRange, SeverityError},
		{"negative", "-5", "", CodeInvalidRange, SeverityError},
		{"zero", "0", "", CodeInvalidRange, SeverityError},
		{"over maximum", "100001", "", CodeInvalidRange, SeverityError},
		{"large maintenance warns", "1500", TypeMaintenance, CodeVerifyLargeMaintenance, SeverityWarning},
		{"high fuel warns", "600", TypeFuel, CodeUnusualFuelAmount, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(ClassifiedReceipt{Type: tt.draftType})
			issues := v.ValidateField("amount", tt.value, d)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.wantCode, issues[0].Code)
			assert.Equal(t, tt.wantSeverity, issues[0].Severity)
		})
	}

	t.Run("valid amount has no issues", func(t *testing.T) {
		d := New(ClassifiedReceipt{Type: TypeFuel})
		assert.Empty(t, v.ValidateField("amount", "42.50", d))
	})

	t.Run("large maintenance amount does not warn for fuel", func(t *testing.T) {
		d := New(ClassifiedReceipt{Type: TypeFuel})
		assert.Empty(t, v.ValidateField("amount", "400", d))
	})
}

func TestValidateField_Date(t *testing.T) {
	v := newTestValidator()
	d := New(ClassifiedReceipt{})

	tests := []struct {
		name     string
		value    string
		wantCode string
	}{
		{"empty", "", CodeRequiredField},
		{"garbage", "not-a-date", CodeInvalidDate},
		{"future date warns", "2027-01-01", CodeVerifyFutureDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := v.ValidateField("date", tt.value, d)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.wantCode, issues[0].Code)
		})
	}

	t.Run("accepted layouts", func(t *testing.T) {
		for _, value := range []string{"2026-08-15", "2026/08/15", "08/15/2026", "Aug 15, 2026"} {
			assert.Empty(t, v.ValidateField("date", value, d), "layout %q", value)
		}
	})
}

func TestValidateField_Type(t *testing.T) {
	v := newTestValidator()
	d := New(ClassifiedReceipt{})

	assert.Equal(t, CodeRequiredField, v.ValidateField("type", "", d)[0].Code)
	assert.Equal(t, CodeInvalidType, v.ValidateField("type", "Groceries", d)[0].Code)
	assert.Empty(t, v.ValidateField("type", TypeParking, d))
}

func TestValidateAll(t *testing.T) {
	v := newTestValidator()

	t.Run("clean draft is valid", func(t *testing.T) {
		d := New(ClassifiedReceipt{Date: "2026-08-15", Type: TypeFuel, Amount: 42.5})
		result := v.ValidateAll(d)
		assert.True(t, result.IsValid)
		assert.Empty(t, result.FieldErrors)
		assert.True(t, d.Saveable())
	})

	t.Run("missing required fields block saving", func(t *testing.T) {
		d := New(ClassifiedReceipt{})
		result := v.ValidateAll(d)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.FieldErrors, "date")
		assert.Contains(t, result.FieldErrors, "type")
		assert.Contains(t, result.FieldErrors, "amount")
		assert.False(t, d.Saveable())
	})

	t.Run("warnings alone keep the draft saveable", func(t *testing.T) {
		d := New(ClassifiedReceipt{Date: "2026-08-15", Type: TypeMaintenance, Amount: 2500})
		result := v.ValidateAll(d)
		assert.True(t, result.IsValid)
		require.Contains(t, result.FieldErrors, "amount")
		assert.Equal(t, CodeVerifyLargeMaintenance, result.FieldErrors["amount"][0].Code)
		assert.True(t, d.Saveable())
	})
}

func TestMeanConfidence(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]float64
		expected float64
	}{
		{"all reported", map[string]float64{"date": 1, "type": 1, "amount": 1, "vehicle": 1, "vendor": 1, "location": 1}, 1},
		{"absent fields default to 0.8", map[string]float64{"date": 0.9, "type": 0.8, "amount": 0.7}, 0.8},
		{"empty map is all defaults", nil, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, MeanConfidence(tt.fields), 1e-9)
		})
	}
}

func TestDraft_SetField(t *testing.T) {
	d := New(ClassifiedReceipt{Type: TypeFuel})

	require.NoError(t, d.SetField("amount", "55.10"))
	assert.Equal(t, 55.10, d.Fields.Amount)
	assert.True(t, d.Dirty["amount"])

	assert.Error(t, d.SetField("amount", "not-a-number"))
	assert.Error(t, d.SetField("bogus", "x"))
}

func TestTransformToFinal(t *testing.T) {
	t.Run("normalizes a valid draft", func(t *testing.T) {
		d := New(ClassifiedReceipt{
			Date:     "08/15/2026",
			Type:     TypeFuel,
			Amount:   42.5,
			Vehicle:  "  Truck 7 ",
			Vendor:   "Shell",
			Location: "Springfield",
			FieldConfidence: map[string]float64{
				"date": 0.9, "type": 0.8, "amount": 0.7,
			},
		})

		rec, err := TransformToFinal(d)
		require.NoError(t, err)
		assert.Equal(t, "2026-08-15", rec.Date)
		assert.Equal(t, "42.50", rec.Amount)
		assert.Equal(t, "Truck 7", rec.Vehicle)
		assert.NotEmpty(t, rec.ID)
		assert.InDelta(t, 0.8, rec.Confidence, 1e-9)
	})

	t.Run("unparseable date fails", func(t *testing.T) {
		d := New(ClassifiedReceipt{Date: "someday", Type: TypeFuel, Amount: 10})
		_, err := TransformToFinal(d)
		assert.Error(t, err)
	})
}
