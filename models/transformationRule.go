package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nxtleveltech1/MantisNXT-sub023/config"
	"github.com/nxtleveltech1/MantisNXT-sub023/ingest"
)

// TransformationRule is a supplier-owned declarative rule, read but never
// mutated by the pipeline. RuleConfig holds the JSON payload whose shape
// depends on RuleType.
type TransformationRule struct {
	ID             int       `gorm:"primary_key" json:"id"`
	SupplierId     string    `gorm:"index;size:36;not null" json:"supplier_id"`
	RuleName       string    `gorm:"size:255;not null" json:"rule_name"`
	RuleType       string    `gorm:"size:50;not null" json:"rule_type"`
	TriggerEvent   string    `gorm:"size:50;not null;default:pricelist_upload" json:"trigger_event"`
	ExecutionOrder int       `gorm:"not null;default:1" json:"execution_order"`
	IsBlocking     bool      `gorm:"not null;default:false" json:"is_blocking"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	RuleConfig     string    `gorm:"type:json" json:"rule_config"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RuleExecutionLog is the append-only audit trail of rule invocations per
// upload.
type RuleExecutionLog struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	SupplierId      string    `gorm:"index;size:36;not null" json:"supplier_id"`
	UploadId        string    `gorm:"index;size:36;not null" json:"upload_id"`
	RuleId          int       `gorm:"not null" json:"rule_id"`
	RuleName        string    `gorm:"size:255" json:"rule_name"`
	RuleType        string    `gorm:"size:50" json:"rule_type"`
	Passed          bool      `json:"passed"`
	Blocked         bool      `json:"blocked"`
	ErrorMessage    string    `gorm:"size:1000" json:"error_message"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	RowsAffected    int       `json:"rows_affected"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetSupplierRules loads the supplier's active rules for a trigger event,
// ordered by execution order, with every config parsed and validated up
// front. A rule with an invalid config fails the load so broken configs
// surface before any row is touched.
func GetSupplierRules(ctx context.Context, supplierId string, triggerEvent string) ([]ingest.Rule, error) {
	db := config.GetDB()

	var records []TransformationRule
	err := db.WithContext(ctx).
		Where("supplier_id = ? AND (trigger_event = ? OR trigger_event = ?) AND is_active = ?",
			supplierId, triggerEvent, "all", true).
		Order("execution_order ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("could not load supplier rules: %v", err)
	}

	rules := make([]ingest.Rule, 0, len(records))
	for _, rec := range records {
		cfg, err := ingest.ParseRuleConfig(ingest.RuleType(rec.RuleType), json.RawMessage(rec.RuleConfig))
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %v", rec.ID, rec.RuleName, err)
		}
		rules = append(rules, ingest.Rule{
			ID:             rec.ID,
			SupplierID:     rec.SupplierId,
			RuleName:       rec.RuleName,
			RuleType:       ingest.RuleType(rec.RuleType),
			ExecutionOrder: rec.ExecutionOrder,
			IsBlocking:     rec.IsBlocking,
			Config:         cfg,
		})
	}
	return rules, nil
}

// LogRuleExecution persists one execution record and mirrors it to the
// Pub/Sub audit topic. Both sides are best-effort for the caller; the
// returned error is informational.
func LogRuleExecution(ctx context.Context, supplierId string, uploadId string, rec ingest.RuleExecutionRecord) error {
	db := config.GetDB()
	logger := config.GetLogger()

	entry := RuleExecutionLog{
		SupplierId:      supplierId,
		UploadId:        uploadId,
		RuleId:          rec.RuleID,
		RuleName:        rec.RuleName,
		RuleType:        string(rec.RuleType),
		Passed:          rec.Passed,
		Blocked:         rec.Blocked,
		ErrorMessage:    rec.ErrorMessage,
		ExecutionTimeMs: rec.ExecutionTimeMs,
		RowsAffected:    rec.RowsAffected,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		config.LogError(logger, "models", "LogRuleExecution", "could not persist rule execution", uploadId, err)
		return err
	}

	if _, err := config.PublishRuleExecution(ctx, config.RuleExecutionMessage{
		SupplierId:      supplierId,
		UploadId:        uploadId,
		RuleId:          rec.RuleID,
		RuleName:        rec.RuleName,
		RuleType:        string(rec.RuleType),
		Passed:          rec.Passed,
		Blocked:         rec.Blocked,
		ErrorMessage:    rec.ErrorMessage,
		ExecutionTimeMs: rec.ExecutionTimeMs,
		RowsAffected:    rec.RowsAffected,
		PublishedAt:     time.Now().UTC(),
	}); err != nil {
		config.LogError(logger, "models", "LogRuleExecution", "could not publish rule execution", uploadId, err)
		return err
	}
	return nil
}
