package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product rows are registered by inventory master-data management. This service only
// moves Quantity, and only through the inventory ledger.
type Product struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ProductCode     string          `gorm:"size:100;uniqueIndex;not null" json:"product_code"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	HsnCode         string          `gorm:"size:50" json:"hsn_code"`
	ManufactureDate *time.Time      `json:"manufacture_date"`
	ExpiryMonth     string          `gorm:"size:20" json:"expiry_month"`
	Quantity        int             `gorm:"not null;default:0" json:"quantity"`
	BuyPrice        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"buy_price"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Mrp             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	GstPercentage   decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"gst_percentage"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockDemand is a per-product quantity after grouping line items.
type StockDemand struct {
	ProductId int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// StockReference ties a ledger delta to the document that caused it.
type StockReference struct {
	Type          StockReferenceType
	Id            int
	CorrelationId string
	Operator      string
}

// StockMovement is the audit trail of every ledger delta.
type StockMovement struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	ProductId     int                 `gorm:"index;not null" json:"product_id"`
	Delta         int                 `gorm:"not null" json:"delta"`
	BalanceAfter  int                 `gorm:"not null" json:"balance_after"`
	ReferenceType StockReferenceType  `gorm:"size:20;index:idx_stock_movement_ref;not null" json:"reference_type"`
	ReferenceId   int                 `gorm:"index:idx_stock_movement_ref;not null" json:"reference_id"`
	Reason        StockMovementReason `gorm:"size:20;not null" json:"reason"`
	CorrelationId string              `gorm:"size:64" json:"correlation_id"`
	Operator      string              `gorm:"size:100" json:"operator"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}
