package ingest

import (
	"strings"
	"testing"
)

func TestInferDelimiter(t *testing.T) {
	cases := []struct {
		line string
		want rune
	}{
		{"a,b;c", ','},
		{"a;b;c", ';'},
		{"a\tb\tc\td", '\t'},
		{"a|b|c", '|'},
		{"plain", ','},
	}
	for _, c := range cases {
		if got := InferDelimiter(c.line); got != c.want {
			t.Fatalf("InferDelimiter(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestDetectHeaders(t *testing.T) {
	withHeaders := [][]string{
		{"SKU", "Name"},
		{"001", "Widget"},
	}
	if !DetectHeaders(withHeaders) {
		t.Fatalf("expected headers to be detected")
	}

	withoutHeaders := [][]string{
		{"001", "Widget"},
		{"002", "Gadget"},
	}
	if DetectHeaders(withoutHeaders) {
		t.Fatalf("expected no headers for numeric first row")
	}

	if DetectHeaders([][]string{{"SKU", "Name"}}) {
		t.Fatalf("a single row cannot prove headers")
	}
}

func TestGenerateColumnHeaders(t *testing.T) {
	got := GenerateColumnHeaders(3)
	want := []string{"Column 1", "Column 2", "Column 3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("header %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInferColumnType(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   string
	}{
		{"numbers", []string{"1", "2.5", "300"}, "number"},
		{"strings", []string{"Widget", "Gadget", "Sprocket"}, "string"},
		{"booleans", []string{"true", "false", "true"}, "boolean"},
		{"currency", []string{"R 1,200.50", "R 900.00", "R 10.00"}, "currency"},
		{"dates", []string{"2024-01-02", "2024-03-04", "2024-05-06"}, "date"},
		{"slash dates", []string{"01/02/2024", "03/04/2024", "05/06/2024"}, "date"},
		{"mixed", []string{"1", "2", "abc", "def", "ghi", "jkl", "4", "5", "6", "7"}, "mixed"},
		{"empty", nil, "string"},
	}
	for _, c := range cases {
		if got := InferColumnType(c.values); got != c.want {
			t.Fatalf("%s: InferColumnType = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestSuggestFieldMapping(t *testing.T) {
	field, confidence := SuggestFieldMapping("Item Code", nil)
	if field != "sku" || confidence != 0.9 {
		t.Fatalf("got (%q, %v), want (sku, 0.9)", field, confidence)
	}

	field, confidence = SuggestFieldMapping("Currency", nil)
	if field != "currency" || confidence != 0.95 {
		t.Fatalf("got (%q, %v), want (currency, 0.95)", field, confidence)
	}

	// Content-based: mostly positive numerics with no header match.
	field, confidence = SuggestFieldMapping("xyz", []string{"10.5", "99", "120", "87", "43"})
	if field != "unitPrice" || confidence != 0.6 {
		t.Fatalf("got (%q, %v), want (unitPrice, 0.6)", field, confidence)
	}

	field, confidence = SuggestFieldMapping("xyz", []string{"foo", "bar"})
	if field != "" || confidence != 0 {
		t.Fatalf("got (%q, %v), want no suggestion", field, confidence)
	}
}

func TestDetectFormatCSV(t *testing.T) {
	data := []byte("SKU;Name;Price\nA1;Widget;100.50\nA2;Gadget;200.00\n")

	result, wb, err := DetectFormat(data, "pricelist.csv", "text/csv")
	if err != nil {
		t.Fatalf("DetectFormat: %v", err)
	}
	if result.Format != FormatCSV {
		t.Fatalf("format = %v, want csv", result.Format)
	}
	if result.Delimiter != ";" {
		t.Fatalf("delimiter = %q, want ;", result.Delimiter)
	}
	if !result.HasHeaders {
		t.Fatalf("expected headers")
	}
	if result.TotalRows != 2 || result.TotalColumns != 3 {
		t.Fatalf("got %d rows x %d cols, want 2x3", result.TotalRows, result.TotalColumns)
	}
	if len(wb.Sheets) != 1 || len(wb.Sheets[0].Rows) != 3 {
		t.Fatalf("unexpected workbook shape")
	}

	var priceCol *DetectedColumn
	for i := range result.DetectedColumns {
		if result.DetectedColumns[i].Name == "Price" {
			priceCol = &result.DetectedColumns[i]
		}
	}
	if priceCol == nil {
		t.Fatalf("price column not detected")
	}
	if priceCol.SuggestedField != "unitPrice" {
		t.Fatalf("price column suggested as %q", priceCol.SuggestedField)
	}
	if priceCol.InferredType != "number" {
		t.Fatalf("price column type = %q", priceCol.InferredType)
	}
}

func TestDetectFormatJSON(t *testing.T) {
	data := []byte(`[{"sku":"A1","name":"Widget","price":100.5},{"sku":"A2","name":"Gadget","price":200}]`)

	result, wb, err := DetectFormat(data, "pricelist.json", "application/json")
	if err != nil {
		t.Fatalf("DetectFormat: %v", err)
	}
	if result.Format != FormatJSON || !result.HasHeaders {
		t.Fatalf("unexpected detection: %+v", result)
	}
	if result.TotalRows != 2 {
		t.Fatalf("rows = %d, want 2", result.TotalRows)
	}
	if len(wb.Sheets[0].Rows) != 3 {
		t.Fatalf("grid rows = %d, want 3", len(wb.Sheets[0].Rows))
	}
}

func TestDetectFormatUnsupported(t *testing.T) {
	_, _, err := DetectFormat([]byte("binary"), "file.pdf", "application/pdf")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}
