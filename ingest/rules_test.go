package ingest

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func joinTestWorkbook() *RawWorkbook {
	return &RawWorkbook{Sheets: []Sheet{
		{Name: "Products", Rows: [][]string{
			{"SKU", "Name", "Category"},
			{"SKU001", "Product 1", "Cat A"},
			{"SKU002", "Product 2", "Cat B"},
		}},
		{Name: "Prices", Rows: [][]string{
			{"SKU", "Price", "Currency"},
			{"SKU001", "100.00", "ZAR"},
			{"SKU002", "200.00", "ZAR"},
		}},
		{Name: "Stock", Rows: [][]string{
			{"SKU", "Stock"},
			{"SKU001", "50"},
		}},
	}}
}

func TestApplyJoinSheets(t *testing.T) {
	cfg := &JoinSheetsConfig{
		LeftSheet:    "Products",
		RightSheet:   "Prices",
		LeftKey:      "SKU",
		RightKey:     "SKU",
		RightColumns: []string{"Price", "Currency"},
	}

	rows, err := ApplyJoinSheets(joinTestWorkbook(), cfg)
	if err != nil {
		t.Fatalf("ApplyJoinSheets: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	first := rows[0].Fields
	for key, want := range map[string]string{
		"SKU":      "SKU001",
		"Name":     "Product 1",
		"Category": "Cat A",
		"Price":    "100.00",
		"Currency": "ZAR",
	} {
		if first[key] != want {
			t.Fatalf("row 0 field %q = %q, want %q", key, first[key], want)
		}
	}
}

func TestApplyJoinSheetsUnmatchedLeftRowsKept(t *testing.T) {
	wb := joinTestWorkbook()
	wb.Sheets[1].Rows = wb.Sheets[1].Rows[:2] // drop SKU002 price

	cfg := &JoinSheetsConfig{
		LeftSheet:    "Products",
		RightSheet:   "Prices",
		LeftKey:      "SKU",
		RightKey:     "SKU",
		RightColumns: []string{"Price"},
	}

	rows, err := ApplyJoinSheets(wb, cfg)
	if err != nil {
		t.Fatalf("ApplyJoinSheets: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].Fields["Price"] != "" {
		t.Fatalf("unmatched row should carry empty right columns, got %q", rows[1].Fields["Price"])
	}
}

func TestApplyJoinSheetsMissingRightSheet(t *testing.T) {
	cfg := &JoinSheetsConfig{
		LeftSheet:    "Products",
		RightSheet:   "MissingSheet",
		LeftKey:      "SKU",
		RightKey:     "SKU",
		RightColumns: []string{"Price"},
	}

	rows, err := ApplyJoinSheets(joinTestWorkbook(), cfg)
	if err == nil {
		t.Fatalf("expected error for missing right sheet")
	}
	if len(rows) != 2 {
		t.Fatalf("processing should continue with the left sheet alone, got %d rows", len(rows))
	}
	if rows[0].Fields["SKU"] != "SKU001" || rows[0].Fields["Name"] != "Product 1" {
		t.Fatalf("left rows mangled: %v", rows[0].Fields)
	}
}

func TestApplySheetLoop(t *testing.T) {
	wb := &RawWorkbook{Sheets: []Sheet{
		{Name: "Alpha_Pricelist", Rows: [][]string{{"SKU", "Name", "Price"}, {"SKU001", "Product 1", "100.00"}}},
		{Name: "Beta_Pricelist", Rows: [][]string{{"SKU", "Name", "Price"}, {"SKU002", "Product 2", "200.00"}}},
		{Name: "Gamma_Pricelist", Rows: [][]string{{"SKU", "Name", "Price"}, {"SKU003", "Product 3", "300.00"}}},
	}}

	cfg := &SheetLoopConfig{
		SheetPattern:       "*_Pricelist",
		BrandFromSheetName: true,
		Mappings: map[string]string{
			"SKU":   FieldSupplierSku,
			"Name":  FieldName,
			"Price": FieldCostPriceExVat,
		},
	}

	rows := ApplySheetLoop(wb, cfg)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Fields[FieldSupplierSku] != "SKU001" || rows[0].Fields[FieldBrand] != "Alpha" {
		t.Fatalf("row 0 = %v", rows[0].Fields)
	}
	if rows[1].Fields[FieldBrand] != "Beta" {
		t.Fatalf("row 1 brand = %q", rows[1].Fields[FieldBrand])
	}
}

func TestApplySheetLoopDropRight(t *testing.T) {
	sheets := make([]Sheet, 0, 4)
	skus := []string{"SKU001", "SKU002", "SKU003", "SKU004"}
	names := []string{"Tab1", "Tab2", "Tab3", "Tab4"}
	for i := range names {
		sheets = append(sheets, Sheet{Name: names[i], Rows: [][]string{
			{"SKU", "Name"},
			{skus[i], "Product"},
		}})
	}
	wb := &RawWorkbook{Sheets: sheets}

	cfg := &SheetLoopConfig{
		SheetPattern: "Tab*",
		DropRight:    1,
		Mappings:     map[string]string{"SKU": FieldSupplierSku, "Name": FieldName},
	}

	rows := ApplySheetLoop(wb, cfg)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, want := range []string{"SKU001", "SKU002", "SKU003"} {
		if rows[i].Fields[FieldSupplierSku] != want {
			t.Fatalf("row %d sku = %q, want %q", i, rows[i].Fields[FieldSupplierSku], want)
		}
	}
}

func TestExtractBrandFromSheetName(t *testing.T) {
	cases := map[string]string{
		"BrandName_Pricelist_Q1": "BrandName",
		"DECKSAVER_2024":         "DECKSAVER",
		"Brand1":                 "Brand",
		"Brand-Name-Products":    "Brand-Name",
		"Sheet1":                 "",
		"Data":                   "",
		"":                       "",
	}
	for in, want := range cases {
		if got := ExtractBrandFromSheetName(in); got != want {
			t.Fatalf("ExtractBrandFromSheetName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyVatPolicy(t *testing.T) {
	rows := []Row{
		{Fields: map[string]string{FieldSupplierSku: "SKU001", FieldCostPriceExVat: "100"}, Num: 2},
		{Fields: map[string]string{FieldSupplierSku: "SKU002", FieldPriceInclVat: "230"}, Num: 3},
		{Fields: map[string]string{FieldSupplierSku: "SKU003"}, Num: 4},
	}

	cfg := &VatPolicyConfig{Rate: decimal.RequireFromString("0.15"), Mode: "detect"}
	warnings := ApplyVatPolicy(rows, cfg)

	incl := NormalizePrice(rows[0].Fields[FieldPriceInclVat])
	if diff := incl.Sub(decimal.NewFromInt(115)).Abs(); diff.GreaterThan(decimal.RequireFromString("0.01")) {
		t.Fatalf("derived incl vat = %s, want 115.00", incl)
	}
	if rows[0].Fields[FieldVatRate] != "0.15" {
		t.Fatalf("vat_rate not stamped: %q", rows[0].Fields[FieldVatRate])
	}

	ex := NormalizePrice(rows[1].Fields[FieldCostPriceExVat])
	if diff := ex.Sub(decimal.NewFromInt(200)).Abs(); diff.GreaterThan(decimal.RequireFromString("0.01")) {
		t.Fatalf("derived ex vat = %s, want 200.00", ex)
	}

	if rows[2].Fields[FieldCostPriceExVat] != "" || rows[2].Fields[FieldPriceInclVat] != "" {
		t.Fatalf("priceless row should stay priceless")
	}
	if len(warnings) != 1 || warnings[0].RowNum != 4 {
		t.Fatalf("warnings = %v, want one for row 4", warnings)
	}
}

func TestExecuteRulesJoinThenVat(t *testing.T) {
	rules := []Rule{
		{
			ID: 1, RuleName: "Join Products and Prices", RuleType: RuleTypeJoinSheets, ExecutionOrder: 1,
			Config: &JoinSheetsConfig{
				LeftSheet: "Products", RightSheet: "Prices",
				LeftKey: "SKU", RightKey: "SKU",
				RightColumns: []string{"Price", "Currency"},
			},
		},
		{
			ID: 2, RuleName: "Apply VAT Policy", RuleType: RuleTypeVatPolicy, ExecutionOrder: 2,
			Config: &VatPolicyConfig{Rate: decimal.RequireFromString("0.15"), Mode: "detect"},
		},
	}

	result := ExecuteRules(joinTestWorkbook(), rules)
	if len(result.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(result.Rows))
	}
	if len(result.Log) != 2 {
		t.Fatalf("got %d log entries, want 2", len(result.Log))
	}
	for i, rec := range result.Log {
		if !rec.Passed || rec.Blocked {
			t.Fatalf("log %d: %+v", i, rec)
		}
	}

	// Raw "Price" was alias-normalized before the VAT rule ran.
	first := result.Rows[0].Fields
	if first[FieldCostPriceExVat] != "100.00" {
		t.Fatalf("cost_price_ex_vat = %q", first[FieldCostPriceExVat])
	}
	if NormalizePrice(first[FieldPriceInclVat]).Cmp(decimal.NewFromInt(115)) != 0 {
		t.Fatalf("price_incl_vat = %q", first[FieldPriceInclVat])
	}
}

func TestExecuteRulesBlockingValidation(t *testing.T) {
	wb := &RawWorkbook{Sheets: []Sheet{
		{Name: "Products", Rows: [][]string{
			{"Name", "Price"},
			{"Product 1", "100.00"},
		}},
	}}

	rules := []Rule{{
		ID: 1, RuleName: "Require SKU", RuleType: RuleTypeValidation, IsBlocking: true,
		Config: &ValidationConfig{Field: FieldSupplierSku, Required: true, WarningMessage: "SKU is required"},
	}}

	result := ExecuteRules(wb, rules)
	if !result.Blocked {
		t.Fatalf("expected blocked result")
	}
	rec := result.Log[0]
	if rec.Passed || !rec.Blocked || !strings.Contains(rec.ErrorMessage, "SKU is required") {
		t.Fatalf("record = %+v", rec)
	}
	if len(result.Rows) != 0 {
		t.Fatalf("blocked rows must be excluded, got %d", len(result.Rows))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestExecuteRulesNonBlockingValidationKeepsRows(t *testing.T) {
	wb := &RawWorkbook{Sheets: []Sheet{
		{Name: "Products", Rows: [][]string{
			{"SKU", "Name"},
			{"SKU001", "Product 1"},
			{"", "Product 2"},
		}},
	}}

	rules := []Rule{{
		ID: 1, RuleName: "Prefer SKU", RuleType: RuleTypeValidation, IsBlocking: false,
		Config: &ValidationConfig{Field: FieldSupplierSku, Required: true},
	}}

	result := ExecuteRules(wb, rules)
	if result.Blocked {
		t.Fatalf("non-blocking rule must not block")
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestExecuteRulesUnknownRuleType(t *testing.T) {
	rules := []Rule{
		{ID: 1, RuleName: "Mystery", RuleType: RuleType("approval")},
		{
			ID: 2, RuleName: "Loop", RuleType: RuleTypeSheetLoop,
			Config: &SheetLoopConfig{SheetPattern: "Products", Mappings: map[string]string{"SKU": FieldSupplierSku}},
		},
	}

	result := ExecuteRules(joinTestWorkbook(), rules)
	if result.Blocked {
		t.Fatalf("unknown rule types must never abort the batch")
	}
	if len(result.Log) != 2 {
		t.Fatalf("log = %v", result.Log)
	}
	if result.Log[0].Passed || !strings.Contains(result.Log[0].ErrorMessage, "unknown rule type") {
		t.Fatalf("record = %+v", result.Log[0])
	}
	if !result.Log[1].Passed || len(result.Rows) != 2 {
		t.Fatalf("later rules should still run, rows = %d", len(result.Rows))
	}
}

// Two raw headers aliasing to the same canonical field must resolve the
// same way on every run.
func TestNormalizeRowKeysDeterministicWinner(t *testing.T) {
	for i := 0; i < 50; i++ {
		fields := map[string]string{
			"Cost":  "50.00",
			"Price": "100.00",
			"Name":  "Widget",
		}
		normalizeRowKeys(fields, nil)
		if fields[FieldCostPriceExVat] != "50.00" {
			t.Fatalf("run %d: cost_price_ex_vat = %q, want the alphabetically first header to win", i, fields[FieldCostPriceExVat])
		}
		if fields[FieldName] != "Widget" {
			t.Fatalf("run %d: name = %q", i, fields[FieldName])
		}
	}
}

func TestParseRuleConfig(t *testing.T) {
	cfg, err := ParseRuleConfig(RuleTypeJoinSheets, json.RawMessage(`{
		"left_sheet": "Products", "right_sheet": "Prices",
		"left_key": "SKU", "right_key": "SKU", "right_columns": ["Price"]
	}`))
	if err != nil {
		t.Fatalf("ParseRuleConfig: %v", err)
	}
	if _, ok := cfg.(*JoinSheetsConfig); !ok {
		t.Fatalf("wrong config type %T", cfg)
	}

	if _, err := ParseRuleConfig(RuleTypeJoinSheets, json.RawMessage(`{"left_sheet": "Products"}`)); err == nil {
		t.Fatalf("incomplete join config must fail validation")
	}
	if _, err := ParseRuleConfig(RuleTypeVatPolicy, json.RawMessage(`{"rate": -0.15, "mode": "detect"}`)); err == nil {
		t.Fatalf("negative vat rate must fail validation")
	}
	if _, err := ParseRuleConfig(RuleTypeVatPolicy, json.RawMessage(`{"rate": 0.15, "mode": "bogus"}`)); err == nil {
		t.Fatalf("unknown vat mode must fail validation")
	}
	if _, err := ParseRuleConfig(RuleType("nope"), json.RawMessage(`{}`)); err == nil {
		t.Fatalf("unknown rule type must fail")
	}
}
