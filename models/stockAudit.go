package models

import (
	"context"
	"sort"

	"gorm.io/gorm"
)

const (
	AuditCheckNegativeQuantity = "negative_quantity"
	AuditCheckBalanceAfter     = "balance_after"
	AuditCheckBillReservations = "bill_reservations"
)

type StockDiscrepancy struct {
	ProductId int    `json:"product_id"`
	Check     string `json:"check"`
	Expected  int    `json:"expected"`
	Actual    int    `json:"actual"`
}

// AuditStock checks the ledger against the bills that hold reservations.
// For every product the net of its BILL movements must equal minus the quantity
// reserved by live bills, its last movement must agree with the current quantity,
// and the quantity must not be negative.
func AuditStock(products []Product, reservedBills []*Bill, movements []StockMovement) []StockDiscrepancy {
	reserved := make(map[int]int)
	for _, b := range reservedBills {
		for productId, qty := range b.ReservedQuantities() {
			reserved[productId] += qty
		}
	}

	billNet := make(map[int]int)
	last := make(map[int]StockMovement)
	for _, m := range movements {
		if m.ReferenceType == StockReferenceTypeBill {
			billNet[m.ProductId] += m.Delta
		}
		if prev, ok := last[m.ProductId]; !ok || m.ID > prev.ID {
			last[m.ProductId] = m
		}
	}

	sorted := append([]Product(nil), products...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []StockDiscrepancy
	for _, p := range sorted {
		if p.Quantity < 0 {
			out = append(out, StockDiscrepancy{ProductId: p.ID, Check: AuditCheckNegativeQuantity, Expected: 0, Actual: p.Quantity})
		}
		if m, ok := last[p.ID]; ok && m.BalanceAfter != p.Quantity {
			out = append(out, StockDiscrepancy{ProductId: p.ID, Check: AuditCheckBalanceAfter, Expected: m.BalanceAfter, Actual: p.Quantity})
		}
		if billNet[p.ID] != -reserved[p.ID] {
			out = append(out, StockDiscrepancy{ProductId: p.ID, Check: AuditCheckBillReservations, Expected: -reserved[p.ID], Actual: billNet[p.ID]})
		}
	}
	return out
}

// RunStockAudit loads the audit inputs in one read transaction.
func RunStockAudit(ctx context.Context, db *gorm.DB) ([]StockDiscrepancy, error) {
	var (
		products  []Product
		bills     []*Bill
		movements []StockMovement
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("id ASC").Find(&products).Error; err != nil {
			return err
		}
		if err := tx.Preload("Items").Where("stock_reserved = ?", true).Find(&bills).Error; err != nil {
			return err
		}
		return tx.Order("id ASC").Find(&movements).Error
	})
	if err != nil {
		return nil, err
	}
	return AuditStock(products, bills, movements), nil
}
