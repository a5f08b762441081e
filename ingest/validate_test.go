package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
)

func validDecimal(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func TestValidateRowsPartition(t *testing.T) {
	rows := []PricelistRow{
		{SupplierSku: "SKU001", Name: "Product 1", CostPriceExVat: validDecimal("100"), RowNum: 2},
		{SupplierSku: "", Name: "Product 2", CostPriceExVat: validDecimal("50"), RowNum: 3},
		{SupplierSku: "SKU003", Name: "", CostPriceExVat: validDecimal("50"), RowNum: 4},
		{SupplierSku: "SKU004", Name: "Product 4", RowNum: 5},
		{SupplierSku: "SKU005", Name: "Product 5", CostPriceExVat: validDecimal("0"), RowNum: 6},
		{SupplierSku: "", Name: "", CostPriceExVat: validDecimal("50"), RowNum: 7},
	}

	outcome := ValidateRows(rows, nil)

	if len(outcome.Valid)+len(outcome.Errors) != len(rows) {
		t.Fatalf("partition broken: %d valid + %d errors != %d rows",
			len(outcome.Valid), len(outcome.Errors), len(rows))
	}
	if len(outcome.Valid) != 1 || outcome.Valid[0].SupplierSku != "SKU001" {
		t.Fatalf("valid = %v", outcome.Valid)
	}
	for _, e := range outcome.Errors {
		if e.Reason == "" {
			t.Fatalf("error without reason: %+v", e)
		}
	}

	// A single failing check names its field; only multi-failure rows
	// collapse to "multiple".
	wantFields := map[int]string{
		3: FieldSupplierSku,
		4: FieldName,
		5: FieldCostPriceExVat,
		6: FieldCostPriceExVat,
		7: "multiple",
	}
	for _, e := range outcome.Errors {
		if e.Field != wantFields[e.RowNum] {
			t.Fatalf("row %d field = %q, want %q", e.RowNum, e.Field, wantFields[e.RowNum])
		}
	}
}

func TestValidateRowsSupplierRules(t *testing.T) {
	rows := []PricelistRow{
		{SupplierSku: "SKU001", Name: "Product 1", CostPriceExVat: validDecimal("100"), RowNum: 2},
		{SupplierSku: "SKU002", Name: "Product 2", CostPriceExVat: validDecimal("200"), Barcode: "12345678", RowNum: 3},
	}

	blocking := []Rule{{
		RuleType: RuleTypeValidation, IsBlocking: true,
		Config: &ValidationConfig{Field: FieldBarcode, Required: true, WarningMessage: "barcode missing"},
	}}
	outcome := ValidateRows(rows, blocking)
	if len(outcome.Valid) != 1 || len(outcome.Errors) != 1 {
		t.Fatalf("blocking rule: %d valid, %d errors", len(outcome.Valid), len(outcome.Errors))
	}
	if outcome.Errors[0].Reason != "barcode missing" {
		t.Fatalf("reason = %q", outcome.Errors[0].Reason)
	}
	if outcome.Errors[0].Field != FieldBarcode {
		t.Fatalf("field = %q, want %q", outcome.Errors[0].Field, FieldBarcode)
	}

	warning := []Rule{{
		RuleType: RuleTypeValidation, IsBlocking: false,
		Config: &ValidationConfig{Field: FieldBarcode, Required: true},
	}}
	outcome = ValidateRows(rows, warning)
	if len(outcome.Valid) != 2 {
		t.Fatalf("non-blocking rule must keep rows, valid = %d", len(outcome.Valid))
	}
	if len(outcome.Warnings) != 1 || outcome.Warnings[0].RowNum != 2 {
		t.Fatalf("warnings = %v", outcome.Warnings)
	}
}

// Rows the VAT detect mode left priceless carry a warning from the rule
// engine and then fail the hard price requirement here.
func TestValidateRowsPricelessAfterVatDetect(t *testing.T) {
	rows := []Row{
		{Fields: map[string]string{FieldSupplierSku: "SKU001", FieldName: "P1", FieldCostPriceExVat: "100"}, Num: 2},
		{Fields: map[string]string{FieldSupplierSku: "SKU002", FieldName: "P2"}, Num: 3},
	}
	cfg := &VatPolicyConfig{Rate: decimal.RequireFromString("0.15"), Mode: "detect"}
	warnings := ApplyVatPolicy(rows, cfg)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}

	outcome := ValidateRows(ToPricelistRows(rows), nil)
	if len(outcome.Valid) != 1 {
		t.Fatalf("valid = %d, want 1", len(outcome.Valid))
	}
	if len(outcome.Errors) != 1 || outcome.Errors[0].RowNum != 3 {
		t.Fatalf("errors = %v", outcome.Errors)
	}
	if outcome.Errors[0].Field != FieldCostPriceExVat {
		t.Fatalf("field = %q, want %q", outcome.Errors[0].Field, FieldCostPriceExVat)
	}
}

func TestToPricelistRows(t *testing.T) {
	rows := []Row{{
		Fields: map[string]string{
			FieldSupplierSku:    "ab c/1",
			FieldName:           "  Widget  Pro ",
			FieldCostPriceExVat: "R 1,200.50",
			FieldCurrency:       "rand",
			FieldBarcode:        "6001234567890",
			FieldVatRate:        "0.15",
			"Warehouse":         "JHB",
		},
		Sheet: "Brand1",
		Num:   2,
	}}

	out := ToPricelistRows(rows)
	if len(out) != 1 {
		t.Fatalf("rows = %d", len(out))
	}
	r := out[0]
	if r.SupplierSku != "AB-C-1" {
		t.Fatalf("sku = %q", r.SupplierSku)
	}
	if r.Name != "Widget Pro" {
		t.Fatalf("name = %q", r.Name)
	}
	if !r.CostPriceExVat.Valid || !r.CostPriceExVat.Decimal.Equal(decimal.RequireFromString("1200.50")) {
		t.Fatalf("cost = %+v", r.CostPriceExVat)
	}
	if r.Currency != "ZAR" {
		t.Fatalf("currency = %q", r.Currency)
	}
	if !r.VatRate.Valid {
		t.Fatalf("vat rate dropped")
	}
	if r.Attrs["Warehouse"] != "JHB" {
		t.Fatalf("attrs = %v", r.Attrs)
	}
	if r.PriceInclVat.Valid {
		t.Fatalf("absent price must stay null")
	}
}

func TestToPricelistRowsDefaultCurrency(t *testing.T) {
	out := ToPricelistRows([]Row{{Fields: map[string]string{FieldSupplierSku: "A1"}, Num: 2}})
	if out[0].Currency != DefaultCurrency {
		t.Fatalf("currency = %q, want %q", out[0].Currency, DefaultCurrency)
	}
}
