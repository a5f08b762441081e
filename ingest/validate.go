package ingest

import (
	"fmt"
	"strings"
)

// ValidationOutcome partitions rows into valid, error, and warning buckets.
// Every input row lands in exactly one of Valid/Errors; warnings may
// additionally annotate a valid row.
type ValidationOutcome struct {
	Valid    []PricelistRow `json:"valid"`
	Errors   []RowError     `json:"errors"`
	Warnings []RowWarning   `json:"warnings"`
}

// ValidateRows applies the hard requirements plus the supplier's
// validation-typed rules to every row. Hard requirements are always
// enforced: non-empty supplier_sku, non-empty name, cost_price_ex_vat > 0.
func ValidateRows(rows []PricelistRow, rules []Rule) ValidationOutcome {
	var validationRules []Rule
	for _, r := range rules {
		if r.RuleType == RuleTypeValidation {
			validationRules = append(validationRules, r)
		}
	}

	outcome := ValidationOutcome{}
	for i := range rows {
		row := &rows[i]
		rowNum := row.RowNum
		if rowNum == 0 {
			rowNum = i + 1
		}

		var failures []RowError
		if strings.TrimSpace(row.SupplierSku) == "" {
			failures = append(failures, RowError{Field: FieldSupplierSku, Reason: "missing supplier_sku"})
		}
		if strings.TrimSpace(row.Name) == "" {
			failures = append(failures, RowError{Field: FieldName, Reason: "missing name"})
		}
		if !row.CostPriceExVat.Valid || row.CostPriceExVat.Decimal.Sign() <= 0 {
			failures = append(failures, RowError{Field: FieldCostPriceExVat, Reason: "missing or invalid cost_price_ex_vat"})
		}

		for _, rule := range validationRules {
			cfg, ok := rule.Config.(*ValidationConfig)
			if !ok || !cfg.Required {
				continue
			}
			if strings.TrimSpace(row.FieldValue(cfg.Field)) != "" {
				continue
			}
			message := cfg.WarningMessage
			if message == "" {
				message = fmt.Sprintf("%s is required", cfg.Field)
			}
			if rule.IsBlocking {
				failures = append(failures, RowError{Field: cfg.Field, Reason: message})
			} else {
				outcome.Warnings = append(outcome.Warnings, RowWarning{RowNum: rowNum, Message: message})
			}
		}

		switch len(failures) {
		case 0:
			outcome.Valid = append(outcome.Valid, *row)
		case 1:
			// A single failing check names its field directly.
			outcome.Errors = append(outcome.Errors, RowError{
				RowNum: rowNum,
				Field:  failures[0].Field,
				Reason: failures[0].Reason,
			})
		default:
			reasons := make([]string, 0, len(failures))
			for _, f := range failures {
				reasons = append(reasons, f.Reason)
			}
			outcome.Errors = append(outcome.Errors, RowError{
				RowNum: rowNum,
				Field:  "multiple",
				Reason: strings.Join(reasons, "; "),
			})
		}
	}
	return outcome
}
