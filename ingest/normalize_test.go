package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizePrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"R 92,000.00", "92000"},
		{"R92000", "92000"},
		{"92 000,00", "92000"},
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1,23", "1.23"},
		{"1,234", "1234"},
		{"$100", "100"},
		{"100.50 ZAR", "100.5"},
		{"abc", "0"},
		{"", "0"},
		{"-5", "0"},
		{"0", "0"},
	}
	for _, c := range cases {
		want, _ := decimal.NewFromString(c.want)
		if got := NormalizePrice(c.in); !got.Equal(want) {
			t.Fatalf("NormalizePrice(%q) = %s, want %s", c.in, got, want)
		}
	}
}

func TestParseDiscount(t *testing.T) {
	got := ParseDiscount("20 %")
	if !got.Valid || !got.Decimal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("ParseDiscount(20 %%) = %+v", got)
	}

	got = ParseDiscount("-15.5%")
	want := decimal.RequireFromString("15.5")
	if !got.Valid || !got.Decimal.Equal(want) {
		t.Fatalf("ParseDiscount(-15.5%%) = %+v", got)
	}

	for _, in := range []string{"", "abc", "0", "-0"} {
		if got := ParseDiscount(in); got.Valid {
			t.Fatalf("ParseDiscount(%q) should be omitted, got %s", in, got.Decimal)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	cases := map[string]string{
		"RAND":    "ZAR",
		"r":       "ZAR",
		"zar":     "ZAR",
		"Dollars": "USD",
		"EURO":    "EUR",
		"GBP":     "GBP",
		"":        "",
	}
	for in, want := range cases {
		if got := NormalizeCurrency(in); got != want {
			t.Fatalf("NormalizeCurrency(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanSKU(t *testing.T) {
	cases := map[string]string{
		"  abc-123  ":  "ABC-123",
		"ab c/123":     "AB-C-123",
		"--a--b--":     "A-B",
		"sku_01":       "SKU_01",
		"###":          "",
	}
	for in, want := range cases {
		if got := CleanSKU(in); got != want {
			t.Fatalf("CleanSKU(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanText(t *testing.T) {
	if got := CleanText("  Widget\t Pro\r\n 2000  "); got != "Widget Pro 2000" {
		t.Fatalf("CleanText = %q", got)
	}
}

func TestNormalizeBarcode(t *testing.T) {
	cases := map[string]string{
		"6001234567890":    "6001234567890",
		" 600-1234567890 ": "6001234567890",
		"12345":            "",
		"123456789012345":  "",
		"no digits":        "",
	}
	for in, want := range cases {
		if got := NormalizeBarcode(in); got != want {
			t.Fatalf("NormalizeBarcode(%q) = %q, want %q", in, got, want)
		}
	}
}
