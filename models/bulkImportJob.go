package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nxtleveltech1/MantisNXT-sub023/config"
	"github.com/nxtleveltech1/MantisNXT-sub023/utils"
	"gorm.io/gorm"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const jobRedisTTL = 24 * time.Hour

func jobRedisKey(jobId string) string {
	return fmt.Sprintf("bulk_import_job:%s", jobId)
}

// BulkImportJob tracks an asynchronous merge across many uploads.
type BulkImportJob struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	Status    string    `gorm:"size:20;not null;default:pending" json:"status"`
	UploadIds string    `gorm:"type:json;not null" json:"-"`
	Total     int       `gorm:"not null" json:"total"`
	Processed int       `gorm:"not null;default:0" json:"processed"`
	Results   string    `gorm:"type:json" json:"-"`
	Error     string    `gorm:"size:1000" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// JobUploadResult is the per-upload outcome stored in Results.
type JobUploadResult struct {
	UploadId        string `json:"upload_id"`
	Success         bool   `json:"success"`
	ProductsCreated int    `json:"products_created"`
	ProductsUpdated int    `json:"products_updated"`
	PricesUpdated   int    `json:"prices_updated"`
	Error           string `json:"error,omitempty"`
}

// JobStatusView is the wire shape for job polling.
type JobStatusView struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	UploadIds []string          `json:"upload_ids"`
	Total     int               `json:"total"`
	Processed int               `json:"processed"`
	Results   []JobUploadResult `json:"results"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (job *BulkImportJob) toView() (JobStatusView, error) {
	view := JobStatusView{
		ID:        job.ID,
		Status:    job.Status,
		Total:     job.Total,
		Processed: job.Processed,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(job.UploadIds), &view.UploadIds); err != nil {
		return view, fmt.Errorf("could not decode job upload ids: %v", err)
	}
	if job.Results != "" {
		if err := json.Unmarshal([]byte(job.Results), &view.Results); err != nil {
			return view, fmt.Errorf("could not decode job results: %v", err)
		}
	}
	return view, nil
}

func CreateBulkImportJob(ctx context.Context, uploadIds []string) (*BulkImportJob, error) {
	db := config.GetDB()

	ids, err := json.Marshal(uploadIds)
	if err != nil {
		return nil, fmt.Errorf("could not encode upload ids: %v", err)
	}
	job := BulkImportJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		UploadIds: string(ids),
		Total:     len(uploadIds),
	}
	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, fmt.Errorf("could not create bulk import job: %v", err)
	}
	mirrorJob(&job)
	return &job, nil
}

// UpdateJobProgress persists progress and mirrors the job to Redis so
// pollers do not hit the database on every request.
func UpdateJobProgress(ctx context.Context, jobId string, status string, processed int, results []JobUploadResult, jobErr string) error {
	db := config.GetDB()

	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("could not encode job results: %v", err)
	}
	updates := map[string]interface{}{
		"status":    status,
		"processed": processed,
		"results":   string(encoded),
		"error":     jobErr,
	}
	if err := db.WithContext(ctx).Model(&BulkImportJob{}).
		Where("id = ?", jobId).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("could not update bulk import job %s: %v", jobId, err)
	}

	var job BulkImportJob
	if err := db.WithContext(ctx).Where("id = ?", jobId).First(&job).Error; err == nil {
		mirrorJob(&job)
	}
	return nil
}

// GetBulkImportJob serves from the Redis mirror first, falling back to the
// database when the mirror is cold.
func GetBulkImportJob(ctx context.Context, jobId string) (JobStatusView, error) {
	var job BulkImportJob
	found, err := config.GetRedisObject(jobRedisKey(jobId), &job)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "GetBulkImportJob", "redis read failed", jobId, err)
	}
	if found {
		return job.toView()
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Where("id = ?", jobId).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return JobStatusView{}, utils.ErrorRecordNotFound
		}
		return JobStatusView{}, fmt.Errorf("could not load bulk import job %s: %v", jobId, err)
	}
	mirrorJob(&job)
	return job.toView()
}

func mirrorJob(job *BulkImportJob) {
	if err := config.SetRedisObject(jobRedisKey(job.ID), job, jobRedisTTL); err != nil {
		config.LogError(config.GetLogger(), "models", "mirrorJob", "redis write failed", job.ID, err)
	}
}
