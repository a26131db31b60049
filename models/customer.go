package models

import (
	"time"
)

// Customer is owned by customer master-data management; read-only here.
type Customer struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CustomerCode string    `gorm:"size:100;uniqueIndex;not null" json:"customer_code"`
	VendorCode   *string   `gorm:"size:100;uniqueIndex" json:"vendor_code"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	State        string    `gorm:"size:100" json:"state"`
	Address      string    `gorm:"type:text" json:"address"`
	GstNumber    string    `gorm:"size:50" json:"gst_number"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
