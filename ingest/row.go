package ingest

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PricelistRow is the canonical flat record every input converges to.
// Immutable after validation.
type PricelistRow struct {
	SupplierSku    string              `json:"supplier_sku"`
	Name           string              `json:"name"`
	Brand          string              `json:"brand,omitempty"`
	UOM            string              `json:"uom,omitempty"`
	PackSize       string              `json:"pack_size,omitempty"`
	Barcode        string              `json:"barcode,omitempty"`
	Currency       string              `json:"currency"`
	CategoryRaw    string              `json:"category_raw,omitempty"`
	VatCode        string              `json:"vat_code,omitempty"`
	CostPriceExVat decimal.NullDecimal `json:"cost_price_ex_vat"`
	PriceInclVat   decimal.NullDecimal `json:"price_incl_vat"`
	VatRate        decimal.NullDecimal `json:"vat_rate"`
	DiscountPct    decimal.NullDecimal `json:"discount_pct"`
	Attrs          map[string]string   `json:"attrs,omitempty"`
	SourceSheet    string              `json:"source_sheet,omitempty"`
	RowNum         int                 `json:"row_num"`
}

// ToPricelistRows converts canonical-keyed intermediate rows into typed
// rows, running every value through its normalizer. Unknown keys land in
// Attrs.
func ToPricelistRows(rows []Row) []PricelistRow {
	out := make([]PricelistRow, 0, len(rows))
	for _, row := range rows {
		pr := PricelistRow{
			Currency:    DefaultCurrency,
			SourceSheet: row.Sheet,
			RowNum:      row.Num,
		}
		for key, value := range row.Fields {
			switch key {
			case FieldSupplierSku:
				pr.SupplierSku = CleanSKU(value)
			case FieldName:
				pr.Name = CleanText(value)
			case FieldBrand:
				pr.Brand = CleanText(value)
			case FieldUOM:
				pr.UOM = CleanText(value)
			case FieldPackSize:
				pr.PackSize = CleanText(value)
			case FieldBarcode:
				pr.Barcode = NormalizeBarcode(value)
			case FieldCurrency:
				if c := NormalizeCurrency(value); c != "" {
					pr.Currency = c
				}
			case FieldCategoryRaw:
				pr.CategoryRaw = CleanText(value)
			case FieldVatCode:
				pr.VatCode = CleanText(value)
			case FieldCostPriceExVat:
				if strings.TrimSpace(value) != "" {
					pr.CostPriceExVat = decimal.NullDecimal{Decimal: NormalizePrice(value), Valid: true}
				}
			case FieldPriceInclVat:
				if strings.TrimSpace(value) != "" {
					pr.PriceInclVat = decimal.NullDecimal{Decimal: NormalizePrice(value), Valid: true}
				}
			case FieldVatRate:
				if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
					pr.VatRate = decimal.NullDecimal{Decimal: d, Valid: true}
				}
			case FieldDiscountPct:
				pr.DiscountPct = ParseDiscount(value)
			default:
				if strings.TrimSpace(value) != "" {
					if pr.Attrs == nil {
						pr.Attrs = make(map[string]string)
					}
					pr.Attrs[key] = CleanText(value)
				}
			}
		}
		out = append(out, pr)
	}
	return out
}

// FieldValue returns the row's value for a canonical field name as a
// string, or "" when the field is absent. Unknown names fall back to Attrs.
func (r *PricelistRow) FieldValue(name string) string {
	switch name {
	case FieldSupplierSku:
		return r.SupplierSku
	case FieldName:
		return r.Name
	case FieldBrand:
		return r.Brand
	case FieldUOM:
		return r.UOM
	case FieldPackSize:
		return r.PackSize
	case FieldBarcode:
		return r.Barcode
	case FieldCurrency:
		return r.Currency
	case FieldCategoryRaw:
		return r.CategoryRaw
	case FieldVatCode:
		return r.VatCode
	case FieldCostPriceExVat:
		if r.CostPriceExVat.Valid {
			return r.CostPriceExVat.Decimal.String()
		}
	case FieldPriceInclVat:
		if r.PriceInclVat.Valid {
			return r.PriceInclVat.Decimal.String()
		}
	case FieldVatRate:
		if r.VatRate.Valid {
			return r.VatRate.Decimal.String()
		}
	case FieldDiscountPct:
		if r.DiscountPct.Valid {
			return r.DiscountPct.Decimal.String()
		}
	default:
		return r.Attrs[name]
	}
	return ""
}
