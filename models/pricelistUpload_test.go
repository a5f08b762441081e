package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They cover the upload status
// machine and the row round trip; the query paths need a MySQL instance.

func TestUploadStatusTransitions(t *testing.T) {
	allowed := [][2]string{
		{UploadStatusReceived, UploadStatusValidating},
		{UploadStatusReceived, UploadStatusFailed},
		{UploadStatusValidating, UploadStatusValidated},
		{UploadStatusValidating, UploadStatusFailed},
		{UploadStatusValidated, UploadStatusMerged},
		{UploadStatusValidated, UploadStatusValidating},
		{UploadStatusValidated, UploadStatusFailed},
		{UploadStatusFailed, UploadStatusReceived},
	}
	for _, tr := range allowed {
		if !transitionAllowed(tr[0], tr[1]) {
			t.Fatalf("%s -> %s must be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]string{
		{UploadStatusReceived, UploadStatusMerged},
		{UploadStatusReceived, UploadStatusValidated},
		{UploadStatusValidating, UploadStatusMerged},
		{UploadStatusFailed, UploadStatusMerged},
		{UploadStatusMerged, UploadStatusReceived},
		{UploadStatusMerged, UploadStatusValidating},
		{UploadStatusMerged, UploadStatusFailed},
	}
	for _, tr := range denied {
		if transitionAllowed(tr[0], tr[1]) {
			t.Fatalf("%s -> %s must be rejected", tr[0], tr[1])
		}
	}
}

// Merged is terminal.
func TestMergedHasNoExits(t *testing.T) {
	if len(validUploadTransitions[UploadStatusMerged]) != 0 {
		t.Fatalf("merged must be terminal, got %v", validUploadTransitions[UploadStatusMerged])
	}
}

func TestUploadRowRoundTrip(t *testing.T) {
	rec := PricelistUploadRow{
		UploadId:       "u1",
		RowNum:         7,
		SupplierSku:    "SKU-001",
		Name:           "Widget",
		Brand:          "Acme",
		Uom:            "EA",
		Currency:       "ZAR",
		CategoryRaw:    "Cables",
		CostPriceExVat: decimal.NullDecimal{Decimal: decimal.RequireFromString("100.50"), Valid: true},
		VatRate:        decimal.NullDecimal{Decimal: decimal.RequireFromString("0.15"), Valid: true},
		Attrs:          `{"Warehouse":"JHB"}`,
	}

	row := rec.toPricelistRow()
	if row.SupplierSku != "SKU-001" || row.Name != "Widget" || row.RowNum != 7 {
		t.Fatalf("row = %+v", row)
	}
	if !row.CostPriceExVat.Valid || !row.CostPriceExVat.Decimal.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("cost = %+v", row.CostPriceExVat)
	}
	if row.PriceInclVat.Valid {
		t.Fatalf("absent price must stay null")
	}
	if row.Attrs["Warehouse"] != "JHB" {
		t.Fatalf("attrs = %v", row.Attrs)
	}
}

func TestPriceChangeThreshold(t *testing.T) {
	old := decimal.RequireFromString("100.00")

	within := decimal.RequireFromString("100.01")
	if old.Sub(within).Abs().GreaterThan(priceChangeThreshold) {
		t.Fatalf("a one cent move must not count as a price change")
	}

	beyond := decimal.RequireFromString("100.02")
	if !old.Sub(beyond).Abs().GreaterThan(priceChangeThreshold) {
		t.Fatalf("a two cent move must count as a price change")
	}
}
