package models

import "time"

// SellerInfo is a single-row profile used for document headers and tax jurisdiction.
type SellerInfo struct {
	ID            int       `gorm:"primary_key" json:"id"`
	SellerName    string    `gorm:"size:255;not null" json:"seller_name"`
	Address       string    `gorm:"type:text" json:"address"`
	State         string    `gorm:"size:100" json:"state"`
	GstNumber     string    `gorm:"size:50" json:"gst_number"`
	Phone         string    `gorm:"size:50" json:"phone"`
	Email         string    `gorm:"size:100" json:"email"`
	BankName      string    `gorm:"size:255" json:"bank_name"`
	AccountNumber string    `gorm:"size:50" json:"account_number"`
	IfscCode      string    `gorm:"size:20" json:"ifsc_code"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultSellerInfo is used when the profile row has never been saved. Its empty State
// sends tax classification down the unknown-seller-state path.
func DefaultSellerInfo() *SellerInfo {
	return &SellerInfo{
		SellerName: "Your Company Name",
	}
}
