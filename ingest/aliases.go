package ingest

import "strings"

// Canonical pricelist field names. Every format-specific input converges to
// these keys before validation.
const (
	FieldSupplierSku    = "supplier_sku"
	FieldName           = "name"
	FieldBrand          = "brand"
	FieldUOM            = "uom"
	FieldPackSize       = "pack_size"
	FieldCostPriceExVat = "cost_price_ex_vat"
	FieldPriceInclVat   = "price_incl_vat"
	FieldVatRate        = "vat_rate"
	FieldCurrency       = "currency"
	FieldCategoryRaw    = "category_raw"
	FieldVatCode        = "vat_code"
	FieldBarcode        = "barcode"
	FieldDiscountPct    = "discount_pct"
)

type headerAlias struct {
	field    string
	patterns []string
}

// Ordered alias table: matching is substring over the normalized header and
// the first match wins, so the specific price variants must come before the
// generic ones. Loaded once, never mutated.
var headerAliases = []headerAlias{
	{field: FieldSupplierSku, patterns: []string{"sku", "itemcode", "productcode", "partno", "partnumber", "model"}},
	{field: FieldBarcode, patterns: []string{"barcode", "upc", "ean", "gtin"}},
	{field: FieldPriceInclVat, patterns: []string{"inclvat", "incvat", "priceincl", "grossprice"}},
	{field: FieldCostPriceExVat, patterns: []string{"exvat", "nettexcl", "nett", "unitprice", "unitcost", "price", "cost", "amount"}},
	{field: FieldDiscountPct, patterns: []string{"discount"}},
	{field: FieldName, patterns: []string{"description", "productname", "name", "title", "item", "product"}},
	{field: FieldBrand, patterns: []string{"brand", "manufacturer", "make"}},
	{field: FieldUOM, patterns: []string{"uom", "unitofmeasure", "measure", "unit"}},
	{field: FieldPackSize, patterns: []string{"packsize", "casesize", "pack"}},
	{field: FieldCurrency, patterns: []string{"currency", "curr"}},
	{field: FieldVatCode, patterns: []string{"vatcode", "taxcode"}},
	{field: FieldCategoryRaw, patterns: []string{"category", "group", "cat"}},
}

var canonicalFields = map[string]bool{
	FieldSupplierSku:    true,
	FieldName:           true,
	FieldBrand:          true,
	FieldUOM:            true,
	FieldPackSize:       true,
	FieldCostPriceExVat: true,
	FieldPriceInclVat:   true,
	FieldVatRate:        true,
	FieldCurrency:       true,
	FieldCategoryRaw:    true,
	FieldVatCode:        true,
	FieldBarcode:        true,
	FieldDiscountPct:    true,
}

// IsCanonicalField reports whether name is one of the canonical row fields.
func IsCanonicalField(name string) bool {
	return canonicalFields[name]
}

// NormalizeHeaders maps raw header strings to canonical field names.
// Unmatched headers are omitted from the result, which downstream stages
// treat as "field not supplied".
func NormalizeHeaders(headers []string) map[string]string {
	return NormalizeHeadersWith(headers, nil)
}

// NormalizeHeadersWith is NormalizeHeaders with supplier-declared extra
// aliases (raw header pattern -> canonical field) taking precedence over
// the static table.
func NormalizeHeadersWith(headers []string, extra map[string]string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		if field, ok := matchHeader(header, extra); ok {
			result[header] = field
		}
	}
	return result
}

func matchHeader(header string, extra map[string]string) (string, bool) {
	headerNorm := normCell(header)
	if headerNorm == "" {
		return "", false
	}

	for pattern, field := range extra {
		if strings.Contains(headerNorm, normCell(pattern)) && IsCanonicalField(field) {
			return field, true
		}
	}

	// A header that already is a canonical field name passes through.
	if lower := strings.ToLower(strings.TrimSpace(header)); canonicalFields[lower] {
		return lower, true
	}

	for _, alias := range headerAliases {
		for _, pattern := range alias.patterns {
			if strings.Contains(headerNorm, pattern) {
				return alias.field, true
			}
		}
	}
	return "", false
}
