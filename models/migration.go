package models

import (
	"log"

	"github.com/nxtleveltech1/MantisNXT-sub023/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&SupplierProduct{}, &PriceHistoryEntry{}, &SupplierCategory{},
		&PricelistUpload{}, &PricelistUploadRow{},
		&TransformationRule{}, &RuleExecutionLog{},
		&BulkImportJob{},
	)
	if err != nil {
		log.Fatalf("could not migrate tables: %v", err)
	}
}
