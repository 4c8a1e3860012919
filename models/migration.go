package models

import (
	"log"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Supplier{}, &Item{}, &InventoryLocation{}, &Project{},
		&PurchaseOrder{}, &PurchaseOrderDetail{}, &PurchaseOrderStatusHistory{},
		&OrderNumberSequence{},
		&InventoryLocationStock{}, &InventoryHistory{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
