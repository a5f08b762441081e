package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/nxtleveltech1/MantisNXT-sub023/config"
	"github.com/nxtleveltech1/MantisNXT-sub023/models"
	"gorm.io/gorm"
)

// BulkImportOptions controls a multi-upload merge job.
type BulkImportOptions struct {
	SkipInvalidRows bool `json:"skip_invalid_rows"`
	StopOnError     bool `json:"stop_on_error"`
}

// StartBulkImport registers the job and runs it in the background. The
// caller polls the job id for progress.
func StartBulkImport(ctx context.Context, uploadIds []string, opts BulkImportOptions) (*models.BulkImportJob, error) {
	job, err := models.CreateBulkImportJob(ctx, uploadIds)
	if err != nil {
		return nil, err
	}

	go runBulkImport(context.Background(), job.ID, uploadIds, opts)
	return job, nil
}

func runBulkImport(ctx context.Context, jobId string, uploadIds []string, opts BulkImportOptions) {
	logger := config.GetLogger()

	if err := models.UpdateJobProgress(ctx, jobId, models.JobStatusProcessing, 0, nil, ""); err != nil {
		config.LogError(logger, "workflow", "runBulkImport", "could not start job", jobId, err)
		return
	}

	var mu sync.Mutex
	results := make([]models.JobUploadResult, 0, len(uploadIds))
	processed := 0

	tm := NewTransactionManager(logger)
	tm.StopOnError = opts.StopOnError

	batchResult := tm.ExecuteBatch(ctx, uploadIds, func(ctx context.Context, tx *gorm.DB, uploadId string) error {
		uploadResult, err := mergeUploadInTx(ctx, tx, uploadId, opts.SkipInvalidRows)
		mu.Lock()
		processed++
		results = append(results, uploadResult)
		snapshot := make([]models.JobUploadResult, len(results))
		copy(snapshot, results)
		done := processed
		mu.Unlock()

		if progressErr := models.UpdateJobProgress(ctx, jobId, models.JobStatusProcessing, done, snapshot, ""); progressErr != nil {
			config.LogError(logger, "workflow", "runBulkImport", "could not update progress", jobId, progressErr)
		}
		return err
	})

	status := models.JobStatusCompleted
	jobErr := ""
	if batchResult.Failed > 0 {
		if opts.StopOnError || batchResult.Successful == 0 {
			status = models.JobStatusFailed
		}
		jobErr = fmt.Sprintf("%d of %d uploads failed", batchResult.Failed, len(uploadIds))
	}
	if err := models.UpdateJobProgress(ctx, jobId, status, processed, results, jobErr); err != nil {
		config.LogError(logger, "workflow", "runBulkImport", "could not finish job", jobId, err)
	}
}

// mergeUploadInTx merges one upload inside the batch transaction. The result
// always carries the upload id so job pollers see every attempt.
func mergeUploadInTx(ctx context.Context, tx *gorm.DB, uploadId string, skipInvalidRows bool) (models.JobUploadResult, error) {
	result := models.JobUploadResult{UploadId: uploadId}

	upload, _, err := models.GetUploadDetails(ctx, uploadId)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	if upload.Status != models.UploadStatusValidated {
		err = fmt.Errorf("upload %s is %s, only validated uploads can be merged", uploadId, upload.Status)
		result.Error = err.Error()
		return result, err
	}

	rows, err := models.ValidRowsForMerge(ctx, uploadId, skipInvalidRows)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	for _, row := range rows {
		rowResult, rowErr := models.MergePricelistRow(ctx, tx, upload.SupplierId, uploadId, row)
		if rowErr != nil {
			result.Error = rowErr.Error()
			return result, rowErr
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

	if err := models.UpdateUploadStatus(ctx, tx, uploadId, models.UploadStatusMerged); err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Success = true
	return result, nil
}
