package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nxtleveltech1/MantisNXT-sub023/ingest"
	"github.com/nxtleveltech1/MantisNXT-sub023/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SupplierProduct is a canonical catalog record keyed by
// (supplier_id, supplier_sku).
type SupplierProduct struct {
	ID             uint                `gorm:"primary_key" json:"id"`
	SupplierId     string              `gorm:"uniqueIndex:idx_supplier_sku;size:36;not null" json:"supplier_id"`
	SupplierSku    string              `gorm:"uniqueIndex:idx_supplier_sku;size:100;not null" json:"supplier_sku"`
	Name           string              `gorm:"size:500;not null" json:"name"`
	Brand          string              `gorm:"size:100" json:"brand"`
	Uom            string              `gorm:"size:50" json:"uom"`
	PackSize       string              `gorm:"size:50" json:"pack_size"`
	Barcode        string              `gorm:"size:20" json:"barcode"`
	Currency       string              `gorm:"size:10" json:"currency"`
	CategoryId     int                 `gorm:"index" json:"category_id"`
	CostPriceExVat decimal.Decimal     `gorm:"type:decimal(20,6);not null" json:"cost_price_ex_vat"`
	PriceInclVat   decimal.NullDecimal `gorm:"type:decimal(20,6)" json:"price_incl_vat"`
	VatRate        decimal.NullDecimal `gorm:"type:decimal(8,4)" json:"vat_rate"`
	IsActive       *bool               `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// PriceHistoryEntry is appended only on genuine price change.
type PriceHistoryEntry struct {
	ID                uint                `gorm:"primary_key" json:"id"`
	SupplierProductId uint                `gorm:"index;not null" json:"supplier_product_id"`
	UploadId          string              `gorm:"index;size:36" json:"upload_id"`
	CostPriceExVat    decimal.Decimal     `gorm:"type:decimal(20,6);not null" json:"cost_price_ex_vat"`
	PriceInclVat      decimal.NullDecimal `gorm:"type:decimal(20,6)" json:"price_incl_vat"`
	Currency          string              `gorm:"size:10" json:"currency"`
	CreatedAt         time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// SupplierCategory is auto-created from raw category text, deduplicated by
// exact name.
type SupplierCategory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"index;size:255;not null" json:"name"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// priceChangeThreshold: a price delta at or under one cent is noise, not a
// change.
var priceChangeThreshold = decimal.RequireFromString("0.01")

// MergeRowResult reports what one upsert did.
type MergeRowResult struct {
	Created      bool
	Updated      bool
	PriceChanged bool
}

func FindOrCreateSupplierCategory(ctx context.Context, tx *gorm.DB, name string) (SupplierCategory, error) {
	var category SupplierCategory
	err := tx.WithContext(ctx).Where("name = ?", name).First(&category).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return category, fmt.Errorf("error finding category: %v", err)
	}

	if err == gorm.ErrRecordNotFound {
		category = SupplierCategory{
			Name:     name,
			IsActive: utils.NewTrue(),
		}
		if err := tx.WithContext(ctx).Create(&category).Error; err != nil {
			return category, fmt.Errorf("could not create category: %v", err)
		}
	}

	return category, nil
}

// MergePricelistRow upserts one validated row into the catalog inside the
// caller's transaction. A missing product is created with an initial price
// history entry; an existing one is updated with COALESCE semantics, and a
// new history entry is written only when the price moved by more than the
// threshold.
func MergePricelistRow(ctx context.Context, tx *gorm.DB, supplierId string, uploadId string, row ingest.PricelistRow) (MergeRowResult, error) {
	result := MergeRowResult{}

	if !row.CostPriceExVat.Valid {
		return result, fmt.Errorf("row %d has no cost price", row.RowNum)
	}
	newPrice := row.CostPriceExVat.Decimal

	categoryId := 0
	if name := strings.TrimSpace(row.CategoryRaw); name != "" {
		category, err := FindOrCreateSupplierCategory(ctx, tx, name)
		if err != nil {
			return result, err
		}
		categoryId = category.ID
	}

	var existing SupplierProduct
	err := tx.WithContext(ctx).
		Where("supplier_id = ? AND supplier_sku = ?", supplierId, row.SupplierSku).
		First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return result, fmt.Errorf("error finding product %s: %v", row.SupplierSku, err)
	}

	if err == gorm.ErrRecordNotFound {
		product := SupplierProduct{
			SupplierId:     supplierId,
			SupplierSku:    row.SupplierSku,
			Name:           row.Name,
			Brand:          row.Brand,
			Uom:            row.UOM,
			PackSize:       row.PackSize,
			Barcode:        row.Barcode,
			Currency:       row.Currency,
			CategoryId:     categoryId,
			CostPriceExVat: newPrice,
			PriceInclVat:   row.PriceInclVat,
			VatRate:        row.VatRate,
			IsActive:       utils.NewTrue(),
		}
		if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
			return result, fmt.Errorf("could not create product %s: %v", row.SupplierSku, err)
		}
		if err := insertPriceHistory(ctx, tx, product.ID, uploadId, row); err != nil {
			return result, err
		}
		result.Created = true
		result.PriceChanged = true
		return result, nil
	}

	// COALESCE update: an absent new value never clears an existing one.
	updates := map[string]interface{}{
		"cost_price_ex_vat": newPrice,
	}
	if row.Name != "" {
		updates["name"] = row.Name
	}
	if row.Brand != "" {
		updates["brand"] = row.Brand
	}
	if row.UOM != "" {
		updates["uom"] = row.UOM
	}
	if row.PackSize != "" {
		updates["pack_size"] = row.PackSize
	}
	if row.Barcode != "" {
		updates["barcode"] = row.Barcode
	}
	if row.Currency != "" {
		updates["currency"] = row.Currency
	}
	if categoryId > 0 {
		updates["category_id"] = categoryId
	}
	if row.PriceInclVat.Valid {
		updates["price_incl_vat"] = row.PriceInclVat
	}
	if row.VatRate.Valid {
		updates["vat_rate"] = row.VatRate
	}

	if err := tx.WithContext(ctx).Model(&SupplierProduct{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return result, fmt.Errorf("could not update product %s: %v", row.SupplierSku, err)
	}
	result.Updated = true

	if existing.CostPriceExVat.Sub(newPrice).Abs().GreaterThan(priceChangeThreshold) {
		if err := insertPriceHistory(ctx, tx, existing.ID, uploadId, row); err != nil {
			return result, err
		}
		result.PriceChanged = true
	}
	return result, nil
}

func insertPriceHistory(ctx context.Context, tx *gorm.DB, productId uint, uploadId string, row ingest.PricelistRow) error {
	entry := PriceHistoryEntry{
		SupplierProductId: productId,
		UploadId:          uploadId,
		CostPriceExVat:    row.CostPriceExVat.Decimal,
		PriceInclVat:      row.PriceInclVat,
		Currency:          row.Currency,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("could not insert price history for product %d: %v", productId, err)
	}
	return nil
}
