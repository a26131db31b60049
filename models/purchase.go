package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is a stock receipt. Recording one increases the product's quantity.
type Purchase struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ProductId    int             `gorm:"index;not null" json:"product_id"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	BuyPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"buy_price"`
	PurchaseDate time.Time       `gorm:"not null" json:"purchase_date"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
