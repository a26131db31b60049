package models

import (
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

// GroupQuantities sums demands per product, sorted by ascending product id.
func GroupQuantities(demands []StockDemand) []StockDemand {
	sums := make(map[int]int, len(demands))
	for _, d := range demands {
		sums[d.ProductId] += d.Quantity
	}
	out := make([]StockDemand, 0, len(sums))
	for productId, qty := range sums {
		out = append(out, StockDemand{ProductId: productId, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductId < out[j].ProductId })
	return out
}

func validateLedgerQuantity(productId int, qty int) error {
	if qty <= 0 {
		return utils.NewValidationError("quantity for product %d must be greater than zero, got %d", productId, qty)
	}
	return nil
}

// Reserve decrements the product's quantity by qty and returns the new quantity.
func Reserve(tx LedgerTx, productId int, qty int, ref StockReference) (int, error) {
	if err := validateLedgerQuantity(productId, qty); err != nil {
		return 0, err
	}
	return tx.AdjustQuantity(productId, -qty, StockMovementReasonReserve, ref)
}

// Release increments the product's quantity by qty. There is no upper bound.
func Release(tx LedgerTx, productId int, qty int, ref StockReference) (int, error) {
	if err := validateLedgerQuantity(productId, qty); err != nil {
		return 0, err
	}
	return tx.AdjustQuantity(productId, qty, StockMovementReasonRelease, ref)
}

// Receive is a release caused by incoming stock rather than a bill.
func Receive(tx LedgerTx, productId int, qty int, ref StockReference) (int, error) {
	if err := validateLedgerQuantity(productId, qty); err != nil {
		return 0, err
	}
	return tx.AdjustQuantity(productId, qty, StockMovementReasonReceive, ref)
}

// CheckAvailability compares grouped demands against product rows and reports every
// shortage at once. A demand for a product absent from products is NotFound.
func CheckAvailability(products map[int]*Product, grouped []StockDemand) error {
	var shortages []utils.StockShortage
	for _, d := range grouped {
		p, ok := products[d.ProductId]
		if !ok {
			return &utils.NotFoundError{Entity: "product", Key: d.ProductId}
		}
		if p.Quantity < d.Quantity {
			shortages = append(shortages, utils.StockShortage{
				ProductId:   p.ID,
				ProductName: p.Name,
				Requested:   d.Quantity,
				Available:   p.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		return &utils.InsufficientStockError{Shortages: shortages}
	}
	return nil
}

// ReserveAll is all-or-nothing: demands are summed per product, the rows are locked in
// ascending id order and every shortage is reported before anything is decremented.
func ReserveAll(tx LedgerTx, demands []StockDemand, ref StockReference) error {
	grouped := GroupQuantities(demands)
	if len(grouped) == 0 {
		return nil
	}
	ids := make([]int, 0, len(grouped))
	for _, d := range grouped {
		if err := validateLedgerQuantity(d.ProductId, d.Quantity); err != nil {
			return err
		}
		ids = append(ids, d.ProductId)
	}
	products, err := tx.LockProducts(ids)
	if err != nil {
		return err
	}
	if err := CheckAvailability(products, grouped); err != nil {
		return err
	}

	for _, d := range grouped {
		if _, err := tx.AdjustQuantity(d.ProductId, -d.Quantity, StockMovementReasonReserve, ref); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseAll returns every grouped demand to the ledger, in ascending product order.
// Products that no longer exist are skipped and their ids returned; the product
// reference on a line is only checked when the line is written.
func ReleaseAll(tx LedgerTx, demands []StockDemand, ref StockReference) ([]int, error) {
	grouped := GroupQuantities(demands)
	if len(grouped) == 0 {
		return nil, nil
	}
	ids := make([]int, 0, len(grouped))
	for _, d := range grouped {
		if err := validateLedgerQuantity(d.ProductId, d.Quantity); err != nil {
			return nil, err
		}
		ids = append(ids, d.ProductId)
	}
	products, err := tx.LockProducts(ids)
	if err != nil {
		return nil, err
	}
	var missing []int
	for _, d := range grouped {
		if _, ok := products[d.ProductId]; !ok {
			missing = append(missing, d.ProductId)
			continue
		}
		if _, err := Release(tx, d.ProductId, d.Quantity, ref); err != nil {
			return nil, err
		}
	}
	return missing, nil
}

func (t *gormTx) LockProducts(ids []int) (map[int]*Product, error) {
	out := make(map[int]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sorted := utils.UniqueSlice(ids)
	sort.Ints(sorted)

	var products []*Product
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (t *gormTx) AdjustQuantity(productId int, delta int, reason StockMovementReason, ref StockReference) (int, error) {
	if delta == 0 {
		var qty int
		err := t.db.Model(&Product{}).Select("quantity").Where("id = ?", productId).Scan(&qty).Error
		return qty, err
	}

	q := t.db.Model(&Product{}).Where("id = ?", productId)
	if delta < 0 {
		// conditional decrement; never trust an earlier read
		q = q.Where("quantity >= ?", -delta)
	}
	res := q.Updates(map[string]interface{}{
		"quantity":   gorm.Expr("quantity + ?", delta),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		var product Product
		err := t.db.Select("id", "name", "quantity").First(&product, productId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, &utils.NotFoundError{Entity: "product", Key: productId}
		}
		if err != nil {
			return 0, err
		}
		return 0, &utils.InsufficientStockError{Shortages: []utils.StockShortage{{
			ProductId:   product.ID,
			ProductName: product.Name,
			Requested:   -delta,
			Available:   product.Quantity,
		}}}
	}

	var newQty int
	if err := t.db.Model(&Product{}).Select("quantity").Where("id = ?", productId).Scan(&newQty).Error; err != nil {
		return 0, err
	}
	movement := StockMovement{
		ProductId:     productId,
		Delta:         delta,
		BalanceAfter:  newQty,
		ReferenceType: ref.Type,
		ReferenceId:   ref.Id,
		Reason:        reason,
		CorrelationId: ref.CorrelationId,
		Operator:      ref.Operator,
	}
	if err := t.db.Create(&movement).Error; err != nil {
		return 0, err
	}
	return newQty, nil
}
