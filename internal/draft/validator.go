package draft

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Issue codes produced by the validator
const (
	CodeRequiredField = "REQUIRED_FIELD"
	CodeInvalidRange  = "INVALID_RANGE"
	CodeInvalidDate   = "INVALID_DATE"
	CodeInvalidType   = "INVALID_TYPE"

	// Business rules, warning severity only, never block save
	CodeVerifyLargeMaintenance = "VERIFY_LARGE_MAINTENANCE"
	CodeVerifyFutureDate       = "VERIFY_FUTURE_DATE"
	CodeUnusualFuelAmount      = "UNUSUAL_FUEL_AMOUNT"
)

// dateLayouts accepted when parsing a receipt date
var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "Jan 2, 2006"}

// ValidatorConfig holds the configurable business-rule thresholds
type ValidatorConfig struct {
	MaxAmount            float64 // hard field-level upper bound
	MaintenanceThreshold float64 // maintenance above this requires secondary verification
	FuelHighThreshold    float64 // fuel above this is flagged as unusually high
}

// DefaultValidatorConfig returns the thresholds used when none are configured
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAmount:            100000,
		MaintenanceThreshold: 1000,
		FuelHighThreshold:    500,
	}
}

// Result is the outcome of validating a whole draft
type Result struct {
	IsValid     bool               `json:"isValid"`
	FieldErrors map[string][]Issue `json:"fieldErrors"`
}

// Validator performs field-level, cross-field and business-rule validation
// of a draft before it becomes a persisted receipt
type Validator struct {
	cfg    ValidatorConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewValidator creates a new draft validator
func NewValidator(cfg ValidatorConfig, logger *zap.Logger) *Validator {
	return &Validator{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ValidateField validates one field value in the context of the full draft.
// The draft is consulted for cross-field rules (e.g. the fuel threshold only
// applies when the draft's type is Fuel).
func (v *Validator) ValidateField(field, value string, d *Draft) []Issue {
	var issues []Issue

	switch field {
	case "date":
		issues = v.validateDate(value)
	case "type":
		issues = v.validateType(value)
	case "amount":
		issues = v.validateAmount(value, d)
	case "vehicle", "vendor", "location":
		// Free-text fields have no field-level rules
	default:
		v.logger.Debug("Validation requested for unknown field", zap.String("field", field))
	}

	return issues
}

// ValidateAll validates every field of the draft, records the issues on the
// draft, and returns the aggregate result
func (v *Validator) ValidateAll(d *Draft) Result {
	result := Result{
		IsValid:     true,
		FieldErrors: make(map[string][]Issue),
	}

	for _, field := range classifiedFields {
		issues := v.ValidateField(field, d.FieldValue(field), d)
		d.SetIssues(field, issues)
		if len(issues) == 0 {
			continue
		}
		result.FieldErrors[field] = issues
		for _, issue := range issues {
			if issue.Severity == SeverityError {
				result.IsValid = false
			}
		}
	}

	return result
}

func (v *Validator) validateDate(value string) []Issue {
	if strings.TrimSpace(value) == "" {
		return []Issue{{Code: CodeRequiredField, Message: "date is required", Severity: SeverityError}}
	}

	parsed, err := parseReceiptDate(value)
	if err != nil {
		return []Issue{{Code: CodeInvalidDate, Message: fmt.Sprintf("unrecognized date: %q", value), Severity: SeverityError}}
	}

	// Future-dated receipts need verification but remain saveable
	if parsed.After(v.now()) {
		return []Issue{{Code: CodeVerifyFutureDate, Message: "receipt is dated in the future and requires verification", Severity: SeverityWarning}}
	}

	return nil
}

func (v *Validator) validateType(value string) []Issue {
	if strings.TrimSpace(value) == "" {
		return []Issue{{Code: CodeRequiredField, Message: "type is required", Severity: SeverityError}}
	}
	if !IsKnownType(value) {
		return []Issue{{Code: CodeInvalidType, Message: fmt.Sprintf("unknown receipt type: %q", value), Severity: SeverityError}}
	}
	return nil
}

func (v *Validator) validateAmount(value string, d *Draft) []Issue {
	if strings.TrimSpace(value) == "" {
		return []Issue{{Code: CodeRequiredField, Message: "amount is required", Severity: SeverityError}}
	}

	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return []Issue{{Code: CodeInvalidRange, Message: fmt.Sprintf("amount must be numeric: %q", value), Severity: SeverityError}}
	}

	if amount <= 0 {
		return []Issue{{Code: CodeInvalidRange, Message: fmt.Sprintf("amount must be positive: %.2f", amount), Severity: SeverityError}}
	}
	if amount > v.cfg.MaxAmount {
		return []Issue{{Code: CodeInvalidRange, Message: fmt.Sprintf("amount exceeds maximum limit: %.2f", amount), Severity: SeverityError}}
	}

	// Business rules layered above the field rules; cross-checked against
	// the draft's receipt type
	var issues []Issue
	if d != nil {
		switch d.Fields.Type {
		case TypeMaintenance:
			if amount > v.cfg.MaintenanceThreshold {
				issues = append(issues, Issue{
					Code:     CodeVerifyLargeMaintenance,
					Message:  fmt.Sprintf("maintenance amount %.2f exceeds %.2f and requires secondary verification", amount, v.cfg.MaintenanceThreshold),
					Severity: SeverityWarning,
				})
			}
		case TypeFuel:
			if amount > v.cfg.FuelHighThreshold {
				issues = append(issues, Issue{
					Code:     CodeUnusualFuelAmount,
					Message:  fmt.Sprintf("fuel amount %.2f is unusually high (threshold %.2f)", amount, v.cfg.FuelHighThreshold),
					Severity: SeverityWarning,
				})
			}
		}
	}

	return issues
}

// parseReceiptDate parses a date in any of the accepted layouts
func parseReceiptDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}
