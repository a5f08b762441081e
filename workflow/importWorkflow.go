package workflow

import (
	"bytes"
	"context"
	"fmt"

	"github.com/nxtleveltech1/MantisNXT-sub023/config"
	"github.com/nxtleveltech1/MantisNXT-sub023/ingest"
	"github.com/nxtleveltech1/MantisNXT-sub023/models"
	"github.com/nxtleveltech1/MantisNXT-sub023/utils"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("pricelist-api")

// UploadOutcome is what the upload endpoint returns: the persisted upload
// plus the validation summary and the rule-engine audit trail.
type UploadOutcome struct {
	Upload   *models.PricelistUpload      `json:"upload"`
	Summary  *models.ValidationSummary    `json:"summary,omitempty"`
	RuleLog  []ingest.RuleExecutionRecord `json:"rule_log,omitempty"`
	Blocked  bool                         `json:"blocked"`
	Errors   []ingest.RowError            `json:"errors,omitempty"`
	Warnings []ingest.RowWarning          `json:"warnings,omitempty"`
}

// MergeOptions controls merge behavior per request.
type MergeOptions struct {
	SkipInvalidRows bool `json:"skip_invalid_rows"`
}

// MergeResult aggregates one upload's merge into the catalog.
type MergeResult struct {
	Success         bool     `json:"success"`
	ProductsCreated int      `json:"products_created"`
	ProductsUpdated int      `json:"products_updated"`
	PricesUpdated   int      `json:"prices_updated"`
	Errors          []string `json:"errors,omitempty"`
}

// ProcessPricelistUpload runs the full ingestion pipeline for one file:
// format detection, the supplier's rule chain, row conversion, persistence,
// and validation. The per-supplier lock serializes concurrent imports.
func ProcessPricelistUpload(ctx context.Context, supplierId string, filename string, mimeType string, data []byte) (*UploadOutcome, error) {
	ctx, span := tracer.Start(ctx, "ProcessPricelistUpload")
	defer span.End()

	logger := config.GetLogger()

	lock, err := utils.ObtainImportLock(ctx, supplierId, "workflow", "ProcessPricelistUpload")
	if err != nil {
		return nil, fmt.Errorf("another import is running for supplier %s: %v", supplierId, err)
	}
	defer lock.Release(ctx)

	detection, wb, err := ingest.DetectFormat(data, filename, mimeType)
	if err != nil {
		return nil, err
	}

	upload, err := models.CreateUpload(ctx, supplierId, filename, detection.Format, detection)
	if err != nil {
		return nil, err
	}

	rules, err := models.GetSupplierRules(ctx, supplierId, "pricelist_upload")
	if err != nil {
		failUpload(ctx, upload.ID)
		return nil, err
	}

	engineResult := ingest.ExecuteRules(wb, rules)
	for _, rec := range engineResult.Log {
		if logErr := models.LogRuleExecution(ctx, supplierId, upload.ID, rec); logErr != nil {
			config.LogError(logger, "workflow", "ProcessPricelistUpload", "rule log failed", upload.ID, logErr)
		}
	}

	outcome := &UploadOutcome{
		Upload:   upload,
		RuleLog:  engineResult.Log,
		Blocked:  engineResult.Blocked,
		Errors:   engineResult.Errors,
		Warnings: engineResult.Warnings,
	}
	if engineResult.Blocked {
		failUpload(ctx, upload.ID)
		return outcome, nil
	}

	rows := ingest.ToPricelistRows(engineResult.Rows)
	if len(rows) == 0 && config.AIFallbackEnabled() {
		rows = ingest.AIExtractRows(ctx, wb, filename)
	}
	if len(rows) == 0 {
		failUpload(ctx, upload.ID)
		return outcome, fmt.Errorf("no rows could be extracted from %s", filename)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, txErr := models.InsertRows(ctx, tx, upload.ID, rows)
		return txErr
	})
	if err != nil {
		failUpload(ctx, upload.ID)
		return nil, err
	}

	archiveUpload(ctx, upload, data)

	summary, err := models.ValidateUpload(ctx, upload.ID)
	if err != nil {
		return nil, err
	}
	outcome.Summary = summary

	if refreshed, _, detErr := models.GetUploadDetails(ctx, upload.ID); detErr == nil {
		outcome.Upload = refreshed
	}
	return outcome, nil
}

// MergePricelist folds one validated upload into the supplier catalog inside
// a single managed transaction and marks the upload merged on success.
func MergePricelist(ctx context.Context, uploadId string, opts MergeOptions) (*MergeResult, error) {
	ctx, span := tracer.Start(ctx, "MergePricelist")
	defer span.End()

	upload, _, err := models.GetUploadDetails(ctx, uploadId)
	if err != nil {
		return nil, err
	}
	if upload.Status != models.UploadStatusValidated {
		return nil, fmt.Errorf("upload %s is %s, only validated uploads can be merged", uploadId, upload.Status)
	}

	lock, err := utils.ObtainImportLock(ctx, upload.SupplierId, "workflow", "MergePricelist")
	if err != nil {
		return nil, fmt.Errorf("another import is running for supplier %s: %v", upload.SupplierId, err)
	}
	defer lock.Release(ctx)

	rows, err := models.ValidRowsForMerge(ctx, uploadId, opts.SkipInvalidRows)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			rowResult, rowErr := models.MergePricelistRow(ctx, tx, upload.SupplierId, uploadId, row)
			if rowErr != nil {
				return rowErr
			}
			if rowResult.Created {
				result.ProductsCreated++
			}
			if rowResult.Updated {
				result.ProductsUpdated++
			}
			if rowResult.PriceChanged {
				result.PricesUpdated++
			}
		}
		return models.UpdateUploadStatus(ctx, tx, uploadId, models.UploadStatusMerged)
	})
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}
	result.Success = true
	return result, nil
}

// ReprocessUpload re-runs validation for a failed upload after its rows or
// rules changed.
func ReprocessUpload(ctx context.Context, uploadId string) (*models.ValidationSummary, error) {
	if err := models.ReprocessUpload(ctx, uploadId); err != nil {
		return nil, err
	}
	return models.ValidateUpload(ctx, uploadId)
}

func failUpload(ctx context.Context, uploadId string) {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.UpdateUploadStatus(ctx, tx, uploadId, models.UploadStatusFailed)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "workflow", "failUpload", "could not mark upload failed", uploadId, err)
	}
}

// archiveUpload copies the raw file to object storage when archiving is on.
// Archival is best-effort and never fails the import.
func archiveUpload(ctx context.Context, upload *models.PricelistUpload, data []byte) {
	if !config.ArchiveUploadsEnabled() {
		return
	}
	logger := config.GetLogger()

	objectName := fmt.Sprintf("pricelists/%s/%s_%s", upload.SupplierId, utils.GenerateUniqueFilename(), upload.Filename)
	if err := utils.UploadPricelistToGCS(ctx, objectName, bytes.NewReader(data)); err != nil {
		config.LogError(logger, "workflow", "archiveUpload", "archive failed", upload.ID, err)
		return
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.PricelistUpload{}).
		Where("id = ?", upload.ID).
		Update("storage_obj", objectName).Error; err != nil {
		config.LogError(logger, "workflow", "archiveUpload", "could not record storage object", upload.ID, err)
	}
	upload.StorageObj = objectName
}
