package ingest

import "testing"

func TestNormalizeHeaders(t *testing.T) {
	headers := []string{"SKU / MODEL", "Product Description", "COST  EX VAT", "BRAND"}
	got := NormalizeHeaders(headers)

	want := map[string]string{
		"SKU / MODEL":         FieldSupplierSku,
		"Product Description": FieldName,
		"COST  EX VAT":        FieldCostPriceExVat,
		"BRAND":               FieldBrand,
	}
	for header, field := range want {
		if got[header] != field {
			t.Fatalf("header %q mapped to %q, want %q", header, got[header], field)
		}
	}
}

func TestNormalizeHeadersCaseInsensitive(t *testing.T) {
	headers := []string{"sku", "description", "price", "category"}
	got := NormalizeHeaders(headers)

	want := map[string]string{
		"sku":         FieldSupplierSku,
		"description": FieldName,
		"price":       FieldCostPriceExVat,
		"category":    FieldCategoryRaw,
	}
	for header, field := range want {
		if got[header] != field {
			t.Fatalf("header %q mapped to %q, want %q", header, got[header], field)
		}
	}
}

func TestNormalizeHeadersDropsUnknown(t *testing.T) {
	got := NormalizeHeaders([]string{"Internal Notes", "zzz", ""})
	if len(got) != 0 {
		t.Fatalf("unknown headers should be dropped, got %v", got)
	}
}

func TestNormalizeHeadersInclVsExVat(t *testing.T) {
	got := NormalizeHeaders([]string{"PRICE INCL VAT", "PRICE EX VAT"})
	if got["PRICE INCL VAT"] != FieldPriceInclVat {
		t.Fatalf("incl vat mapped to %q", got["PRICE INCL VAT"])
	}
	if got["PRICE EX VAT"] != FieldCostPriceExVat {
		t.Fatalf("ex vat mapped to %q", got["PRICE EX VAT"])
	}
}

func TestNormalizeHeadersWithExtraAliases(t *testing.T) {
	extra := map[string]string{"kode": FieldSupplierSku}
	got := NormalizeHeadersWith([]string{"Kode Artikel"}, extra)
	if got["Kode Artikel"] != FieldSupplierSku {
		t.Fatalf("extra alias ignored: %v", got)
	}
}
