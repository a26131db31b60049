package models

import (
	"log"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/billing_backend/config"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Customer{}, &SellerInfo{},
		&Product{}, &StockMovement{}, &Purchase{},
		&Bill{}, &BillItem{},
		&BillEvent{},
	)
}
