package ingest

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is stamped on rows whose file supplies no currency.
const DefaultCurrency = "ZAR"

var (
	currencyRuneRe   = regexp.MustCompile(`[A-Za-z$€£¥₹\s]`)
	decimalCommaRe   = regexp.MustCompile(`,\d{1,2}$`)
	nonDigitRe       = regexp.MustCompile(`[^0-9]`)
	skuInvalidRe     = regexp.MustCompile(`[^A-Z0-9\-_]`)
	skuDashRunRe     = regexp.MustCompile(`-+`)
	whitespaceRunRe  = regexp.MustCompile(`\s+`)
)

// NormalizePrice converts a raw price cell into a canonical decimal.
// Currency letters, symbols, and spaces are stripped; both "1.234,56" and
// "1,234.56" grouping styles are handled. Non-numeric or non-positive
// values normalize to zero and the caller decides whether zero is valid.
func NormalizePrice(value string) decimal.Decimal {
	cleaned := currencyRuneRe.ReplaceAllString(strings.TrimSpace(value), "")

	hasDot := strings.Contains(cleaned, ".")
	hasComma := strings.Contains(cleaned, ",")
	switch {
	case hasDot && hasComma:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			// European grouping: 1.234,56
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			// US grouping: 1,234.56
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		// A comma followed by exactly 1-2 trailing digits is a decimal
		// separator, otherwise it groups thousands.
		if decimalCommaRe.MatchString(cleaned) {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.Sign() <= 0 {
		return decimal.Zero
	}
	return d
}

// ParseDiscount parses a percentage cell like "20 %" or "-15.5%". Returns
// an invalid NullDecimal for non-positive or unparsable input so the field
// is omitted rather than zeroed.
func ParseDiscount(value string) decimal.NullDecimal {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.ReplaceAll(cleaned, "%", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.TrimPrefix(cleaned, "-")

	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.Sign() <= 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

var currencyAliases = map[string]string{
	"DOLLAR":  "USD",
	"DOLLARS": "USD",
	"US":      "USD",
	"EURO":    "EUR",
	"EUROS":   "EUR",
	"POUND":   "GBP",
	"POUNDS":  "GBP",
	"RAND":    "ZAR",
	"R":       "ZAR",
}

// NormalizeCurrency uppercases a currency cell and resolves common spoken
// variants to ISO codes.
func NormalizeCurrency(value string) string {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	if iso, ok := currencyAliases[normalized]; ok {
		return iso
	}
	return normalized
}

// CleanSKU uppercases and replaces invalid characters with dashes, then
// collapses dash runs.
func CleanSKU(value string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(value))
	cleaned = skuInvalidRe.ReplaceAllString(cleaned, "-")
	cleaned = skuDashRunRe.ReplaceAllString(cleaned, "-")
	return strings.Trim(cleaned, "-")
}

// CleanText collapses internal whitespace runs and trims.
func CleanText(value string) string {
	cleaned := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(value)
	return strings.TrimSpace(whitespaceRunRe.ReplaceAllString(cleaned, " "))
}

// NormalizeBarcode keeps digits only; anything outside EAN/UPC/GTIN lengths
// (8-14 digits) is dropped.
func NormalizeBarcode(value string) string {
	cleaned := nonDigitRe.ReplaceAllString(value, "")
	if len(cleaned) < 8 || len(cleaned) > 14 {
		return ""
	}
	return cleaned
}
