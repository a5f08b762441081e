package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nxtleveltech1/MantisNXT-sub023/config"
	"github.com/nxtleveltech1/MantisNXT-sub023/ingest"
	"github.com/nxtleveltech1/MantisNXT-sub023/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Upload lifecycle statuses.
const (
	UploadStatusReceived   = "received"
	UploadStatusValidating = "validating"
	UploadStatusValidated  = "validated"
	UploadStatusFailed     = "failed"
	UploadStatusMerged     = "merged"
)

// validUploadTransitions encodes received -> validating -> validated|failed
// -> merged. Reprocessing resets to received from any non-merged state.
var validUploadTransitions = map[string][]string{
	UploadStatusReceived:   {UploadStatusValidating, UploadStatusFailed},
	UploadStatusValidating: {UploadStatusValidated, UploadStatusFailed},
	UploadStatusValidated:  {UploadStatusMerged, UploadStatusFailed, UploadStatusValidating},
	UploadStatusFailed:     {UploadStatusReceived},
	UploadStatusMerged:     {},
}

func transitionAllowed(from string, to string) bool {
	for _, next := range validUploadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PricelistUpload struct {
	ID           string    `gorm:"primary_key;size:36" json:"id"`
	SupplierId   string    `gorm:"index;size:36;not null" json:"supplier_id"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	FileFormat   string    `gorm:"size:20" json:"file_format"`
	Status       string    `gorm:"size:20;not null;default:received" json:"status"`
	Currency     string    `gorm:"size:10" json:"currency"`
	TotalRows    int       `json:"total_rows"`
	ValidRows    int       `json:"valid_rows"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
	StorageObj   string    `gorm:"size:512" json:"storage_object"`
	Detection    string    `gorm:"type:json" json:"detection"`
	Summary      string    `gorm:"type:json" json:"summary"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PricelistUploadRow struct {
	ID             uint                `gorm:"primary_key" json:"id"`
	UploadId       string              `gorm:"index;size:36;not null" json:"upload_id"`
	RowNum         int                 `gorm:"not null" json:"row_num"`
	SupplierSku    string              `gorm:"size:100" json:"supplier_sku"`
	Name           string              `gorm:"size:500" json:"name"`
	Brand          string              `gorm:"size:100" json:"brand"`
	Uom            string              `gorm:"size:50" json:"uom"`
	PackSize       string              `gorm:"size:50" json:"pack_size"`
	Barcode        string              `gorm:"size:20" json:"barcode"`
	Currency       string              `gorm:"size:10" json:"currency"`
	CategoryRaw    string              `gorm:"size:255" json:"category_raw"`
	VatCode        string              `gorm:"size:20" json:"vat_code"`
	CostPriceExVat decimal.NullDecimal `gorm:"type:decimal(20,6)" json:"cost_price_ex_vat"`
	PriceInclVat   decimal.NullDecimal `gorm:"type:decimal(20,6)" json:"price_incl_vat"`
	VatRate        decimal.NullDecimal `gorm:"type:decimal(8,4)" json:"vat_rate"`
	DiscountPct    decimal.NullDecimal `gorm:"type:decimal(8,4)" json:"discount_pct"`
	Attrs          string              `gorm:"type:json" json:"attrs"`
	SourceSheet    string              `gorm:"size:100" json:"source_sheet"`
	IsValid        *bool               `json:"is_valid"`
	ErrorReason    string              `gorm:"size:1000" json:"error_reason"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// ValidationSummary is the structured result the caller receives instead
// of a raw exception. Errors are capped at 10 entries.
type ValidationSummary struct {
	TotalRows          int                 `json:"total_rows"`
	ValidRows          int                 `json:"valid_rows"`
	ErrorCount         int                 `json:"error_count"`
	WarningCount       int                 `json:"warning_count"`
	DuplicateSkus      int                 `json:"duplicate_skus"`
	NewProducts        int                 `json:"new_products"`
	UpdatedProducts    int                 `json:"updated_products"`
	UnmappedCategories int                 `json:"unmapped_categories"`
	Errors             []ingest.RowError   `json:"errors"`
	Warnings           []ingest.RowWarning `json:"warnings"`
}

// CreateUpload registers a new upload in status received.
func CreateUpload(ctx context.Context, supplierId string, filename string, format ingest.Format, detection *ingest.FormatDetectionResult) (*PricelistUpload, error) {
	db := config.GetDB()

	upload := PricelistUpload{
		ID:         uuid.NewString(),
		SupplierId: supplierId,
		Filename:   filename,
		FileFormat: string(format),
		Status:     UploadStatusReceived,
		Currency:   ingest.DefaultCurrency,
	}
	if detection != nil {
		detJSON, err := json.Marshal(detection)
		if err == nil {
			upload.Detection = string(detJSON)
		}
		upload.TotalRows = detection.TotalRows
	}

	if err := db.WithContext(ctx).Create(&upload).Error; err != nil {
		return nil, fmt.Errorf("could not create upload: %v", err)
	}
	return &upload, nil
}

// UpdateUploadStatus moves an upload along its lifecycle, rejecting
// transitions the status machine does not allow.
func UpdateUploadStatus(ctx context.Context, tx *gorm.DB, uploadId string, newStatus string) error {
	var upload PricelistUpload
	if err := tx.WithContext(ctx).First(&upload, "id = ?", uploadId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorRecordNotFound
		}
		return err
	}

	if !transitionAllowed(upload.Status, newStatus) {
		return fmt.Errorf("invalid status transition %s -> %s", upload.Status, newStatus)
	}

	return tx.WithContext(ctx).Model(&PricelistUpload{}).
		Where("id = ?", uploadId).
		Update("status", newStatus).Error
}

// InsertRows persists transformed rows for an upload in batches.
func InsertRows(ctx context.Context, tx *gorm.DB, uploadId string, rows []ingest.PricelistRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([]PricelistUploadRow, 0, len(rows))
	for i, row := range rows {
		rowNum := row.RowNum
		if rowNum == 0 {
			rowNum = i + 2
		}
		rec := PricelistUploadRow{
			UploadId:       uploadId,
			RowNum:         rowNum,
			SupplierSku:    row.SupplierSku,
			Name:           row.Name,
			Brand:          row.Brand,
			Uom:            row.UOM,
			PackSize:       row.PackSize,
			Barcode:        row.Barcode,
			Currency:       row.Currency,
			CategoryRaw:    row.CategoryRaw,
			VatCode:        row.VatCode,
			CostPriceExVat: row.CostPriceExVat,
			PriceInclVat:   row.PriceInclVat,
			VatRate:        row.VatRate,
			DiscountPct:    row.DiscountPct,
			SourceSheet:    row.SourceSheet,
		}
		if len(row.Attrs) > 0 {
			attrsJSON, err := json.Marshal(row.Attrs)
			if err == nil {
				rec.Attrs = string(attrsJSON)
			}
		}
		records = append(records, rec)
	}

	if err := tx.WithContext(ctx).CreateInBatches(&records, 100).Error; err != nil {
		return 0, fmt.Errorf("could not insert upload rows: %v", err)
	}
	return len(records), nil
}

// toPricelistRow rebuilds the canonical row from its persisted form.
func (r *PricelistUploadRow) toPricelistRow() ingest.PricelistRow {
	row := ingest.PricelistRow{
		SupplierSku:    r.SupplierSku,
		Name:           r.Name,
		Brand:          r.Brand,
		UOM:            r.Uom,
		PackSize:       r.PackSize,
		Barcode:        r.Barcode,
		Currency:       r.Currency,
		CategoryRaw:    r.CategoryRaw,
		VatCode:        r.VatCode,
		CostPriceExVat: r.CostPriceExVat,
		PriceInclVat:   r.PriceInclVat,
		VatRate:        r.VatRate,
		DiscountPct:    r.DiscountPct,
		SourceSheet:    r.SourceSheet,
		RowNum:         r.RowNum,
	}
	if r.Attrs != "" {
		_ = json.Unmarshal([]byte(r.Attrs), &row.Attrs)
	}
	return row
}

// ValidateUpload re-runs validation over the upload's persisted rows,
// marks each row, updates the upload counters, and moves the status to
// validated or failed.
func ValidateUpload(ctx context.Context, uploadId string) (*ValidationSummary, error) {
	db := config.GetDB()

	var upload PricelistUpload
	if err := db.WithContext(ctx).First(&upload, "id = ?", uploadId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	rules, err := GetSupplierRules(ctx, upload.SupplierId, "pricelist_upload")
	if err != nil {
		return nil, err
	}

	var records []PricelistUploadRow
	if err := db.WithContext(ctx).
		Where("upload_id = ?", uploadId).
		Order("row_num ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("could not load upload rows: %v", err)
	}

	rows := make([]ingest.PricelistRow, 0, len(records))
	for i := range records {
		rows = append(rows, records[i].toPricelistRow())
	}

	summary := &ValidationSummary{TotalRows: len(rows)}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if txErr := UpdateUploadStatus(ctx, tx, uploadId, UploadStatusValidating); txErr != nil {
			return txErr
		}

		outcome := ingest.ValidateRows(rows, rules)
		summary.ValidRows = len(outcome.Valid)
		summary.ErrorCount = len(outcome.Errors)
		summary.Warnings = outcome.Warnings

		// Duplicate SKUs within the upload are warnings, not errors.
		seen := make(map[string]int)
		for _, row := range outcome.Valid {
			seen[row.SupplierSku]++
		}
		for sku, n := range seen {
			if n > 1 {
				summary.DuplicateSkus++
				msg := fmt.Sprintf("duplicate supplier_sku %s appears %d times", sku, n)
				summary.Warnings = append(summary.Warnings, ingest.RowWarning{Message: msg})
				config.LogWarn(config.GetLogger(), "models", "ValidateUpload", uploadId, msg)
			}
		}
		summary.WarningCount = len(summary.Warnings)

		failedByRow := make(map[int]string, len(outcome.Errors))
		for _, e := range outcome.Errors {
			failedByRow[e.RowNum] = e.Reason
			if len(summary.Errors) < 10 {
				summary.Errors = append(summary.Errors, e)
			}
		}

		for i := range records {
			reason, failed := failedByRow[records[i].RowNum]
			update := map[string]interface{}{
				"is_valid":     !failed,
				"error_reason": reason,
			}
			if txErr := tx.WithContext(ctx).Model(&PricelistUploadRow{}).
				Where("id = ?", records[i].ID).
				Updates(update).Error; txErr != nil {
				return txErr
			}
		}

		// New-vs-updated and unmapped-category statistics.
		for _, row := range outcome.Valid {
			var existing SupplierProduct
			txErr := tx.WithContext(ctx).
				Where("supplier_id = ? AND supplier_sku = ?", upload.SupplierId, row.SupplierSku).
				First(&existing).Error
			switch {
			case txErr == gorm.ErrRecordNotFound:
				summary.NewProducts++
			case txErr != nil:
				return txErr
			default:
				summary.UpdatedProducts++
			}
			if strings.TrimSpace(row.CategoryRaw) == "" {
				summary.UnmappedCategories++
			}
		}

		nextStatus := UploadStatusValidated
		if summary.ValidRows == 0 && summary.TotalRows > 0 {
			nextStatus = UploadStatusFailed
		}
		if txErr := UpdateUploadStatus(ctx, tx, uploadId, nextStatus); txErr != nil {
			return txErr
		}

		summaryJSON, _ := json.Marshal(summary)
		return tx.WithContext(ctx).Model(&PricelistUpload{}).
			Where("id = ?", uploadId).
			Updates(map[string]interface{}{
				"valid_rows":    summary.ValidRows,
				"error_count":   summary.ErrorCount,
				"warning_count": summary.WarningCount,
				"total_rows":    summary.TotalRows,
				"summary":       string(summaryJSON),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ReprocessUpload resets a failed upload to received so it can be
// validated again.
func ReprocessUpload(ctx context.Context, uploadId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return UpdateUploadStatus(ctx, tx, uploadId, UploadStatusReceived)
	})
}

// UploadFilter narrows ListUploads.
type UploadFilter struct {
	SupplierId string
	Status     string
	Search     string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// ListUploads returns uploads newest first.
func ListUploads(ctx context.Context, filter UploadFilter) ([]PricelistUpload, int64, error) {
	db := config.GetDB()

	q := db.WithContext(ctx).Model(&PricelistUpload{})
	if filter.SupplierId != "" {
		q = q.Where("supplier_id = ?", filter.SupplierId)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		q = q.Where("filename LIKE ?", "%"+filter.Search+"%")
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var uploads []PricelistUpload
	err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&uploads).Error
	return uploads, total, err
}

// GetUploadDetails returns the upload and its rows in file order.
func GetUploadDetails(ctx context.Context, uploadId string) (*PricelistUpload, []PricelistUploadRow, error) {
	db := config.GetDB()

	var upload PricelistUpload
	if err := db.WithContext(ctx).First(&upload, "id = ?", uploadId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, utils.ErrorRecordNotFound
		}
		return nil, nil, err
	}

	var rows []PricelistUploadRow
	if err := db.WithContext(ctx).
		Where("upload_id = ?", uploadId).
		Order("row_num ASC").
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	return &upload, rows, nil
}

// ValidRowsForMerge loads rows eligible for merge. With skipInvalidRows
// the invalid rows are filtered out; otherwise any invalid row makes the
// merge refuse to start.
func ValidRowsForMerge(ctx context.Context, uploadId string, skipInvalidRows bool) ([]ingest.PricelistRow, error) {
	db := config.GetDB()

	var records []PricelistUploadRow
	if err := db.WithContext(ctx).
		Where("upload_id = ?", uploadId).
		Order("row_num ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]ingest.PricelistRow, 0, len(records))
	for i := range records {
		valid := records[i].IsValid != nil && *records[i].IsValid
		if !valid {
			if skipInvalidRows {
				continue
			}
			return nil, errors.New("upload contains invalid rows; merge with skip_invalid_rows or fix the file")
		}
		rows = append(rows, records[i].toPricelistRow())
	}
	return rows, nil
}
