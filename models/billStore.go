package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

// GormStore is the relational Store. Every WithTx call is one database transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx StoreTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, ctx: ctx})
	})
}

type gormTx struct {
	db  *gorm.DB
	ctx context.Context
}

func (t *gormTx) GetCustomer(id int) (*Customer, error) {
	var customer Customer
	if err := t.db.First(&customer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &utils.NotFoundError{Entity: "customer", Key: id}
		}
		return nil, err
	}
	return &customer, nil
}

func (t *gormTx) GetSeller() (*SellerInfo, error) {
	var sellers []SellerInfo
	if err := t.db.Order("id ASC").Limit(1).Find(&sellers).Error; err != nil {
		return nil, err
	}
	if len(sellers) == 0 {
		return DefaultSellerInfo(), nil
	}
	return &sellers[0], nil
}

func (t *gormTx) GetProducts(ids []int) (map[int]*Product, error) {
	out := make(map[int]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []*Product
	if err := t.db.Where("id IN ?", utils.UniqueSlice(ids)).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// every referenced product must exist at write time; later removals are not re-checked
func (t *gormTx) ensureProductsExist(items []BillItem) error {
	ids := make([]int, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductId)
	}
	products, err := t.GetProducts(ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return &utils.NotFoundError{Entity: "product", Key: id}
		}
	}
	return nil
}

func (t *gormTx) InsertBill(bill *Bill) error {
	NumberItems(bill.Items)
	if err := t.ensureProductsExist(bill.Items); err != nil {
		return err
	}
	if err := t.db.Create(bill).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return &utils.DuplicateIdentifierError{Identifier: bill.BillNumber}
		}
		if utils.IsForeignKeyErr(err) {
			return &utils.NotFoundError{Entity: "customer", Key: bill.CustomerId}
		}
		return err
	}
	return nil
}

func (t *gormTx) GetBill(id int, forUpdate bool) (*Bill, error) {
	q := t.db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var bill Bill
	if err := q.First(&bill, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &utils.NotFoundError{Entity: "bill", Key: id}
		}
		return nil, err
	}
	if err := t.db.Where("bill_id = ?", id).Order("line_no ASC").Find(&bill.Items).Error; err != nil {
		return nil, err
	}
	return &bill, nil
}

func (t *gormTx) ReplaceItems(billId int, items []BillItem) error {
	if err := t.ensureProductsExist(items); err != nil {
		return err
	}
	if err := t.db.Where("bill_id = ?", billId).Delete(&BillItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	NumberItems(items)
	for i := range items {
		items[i].ID = 0
		items[i].BillId = billId
	}
	return t.db.Create(&items).Error
}

func (t *gormTx) UpdateHeader(bill *Bill) error {
	res := t.db.Model(&Bill{}).Where("id = ?", bill.ID).Updates(map[string]interface{}{
		"bill_number":    bill.BillNumber,
		"sequence_no":    bill.SequenceNo,
		"customer_id":    bill.CustomerId,
		"customer_name":  bill.CustomerName,
		"customer_state": bill.CustomerState,
		"jurisdiction":   bill.Jurisdiction,
		"bill_date":      bill.BillDate,
		"subtotal":       bill.Subtotal,
		"gst_amount":     bill.GstAmount,
		"round_off":      bill.RoundOff,
		"total_amount":   bill.TotalAmount,
		"status":         bill.Status,
		"payment_method": bill.PaymentMethod,
		"notes":          bill.Notes,
		"stock_reserved": bill.StockReserved,
		"cancelled_at":   bill.CancelledAt,
		"updated_at":     time.Now(),
	})
	if res.Error != nil {
		if utils.IsDuplicateKeyErr(res.Error) {
			return &utils.DuplicateIdentifierError{Identifier: bill.BillNumber}
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &utils.NotFoundError{Entity: "bill", Key: bill.ID}
	}
	return nil
}

func (t *gormTx) MarkStatus(billId int, status BillStatus, stockReserved bool) error {
	var cancelledAt *time.Time
	if status.IsCancelled() {
		now := time.Now()
		cancelledAt = &now
	}
	res := t.db.Model(&Bill{}).Where("id = ?", billId).Updates(map[string]interface{}{
		"status":         status.Normalize(),
		"stock_reserved": stockReserved,
		"cancelled_at":   cancelledAt,
		"updated_at":     time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &utils.NotFoundError{Entity: "bill", Key: billId}
	}
	return nil
}

func (t *gormTx) DeleteBill(billId int) error {
	if err := t.db.Where("bill_id = ?", billId).Delete(&BillItem{}).Error; err != nil {
		return err
	}
	res := t.db.Delete(&Bill{}, billId)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &utils.NotFoundError{Entity: "bill", Key: billId}
	}
	return nil
}

// LastBillNumber returns the auto-numbered bill with the highest sequence for prefix.
func (t *gormTx) LastBillNumber(prefix string) (*string, error) {
	var numbers []string
	if err := t.db.Model(&Bill{}).
		Where("bill_number LIKE ? ESCAPE '!' AND sequence_no > 0", utils.EscapeLike(prefix, '!')+"%").
		Order("sequence_no DESC").
		Order("id DESC").
		Limit(1).
		Pluck("bill_number", &numbers).Error; err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, nil
	}
	return &numbers[0], nil
}

func (t *gormTx) BillNumberExists(number string, exceptId int) (bool, error) {
	err := utils.ValidateUnique[Bill](t.ctx, t.db, "bill_number", number, exceptId)
	if errors.Is(err, utils.ErrDuplicateIdentifier) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (t *gormTx) ListBills(filter BillFilter) ([]*Bill, error) {
	q := t.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no ASC")
	})
	if !filter.IncludeCancelled {
		q = q.Where("status <> ?", BillStatusCancelled)
	}
	if filter.CustomerId > 0 {
		q = q.Where("customer_id = ?", filter.CustomerId)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status.Normalize())
	}
	var bills []*Bill
	if err := q.Order("bill_date DESC").Order("id DESC").Find(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}

func (t *gormTx) ListActiveBillsWithItems() ([]*Bill, error) {
	var bills []*Bill
	err := t.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no ASC")
	}).
		Where("status <> ?", BillStatusCancelled).
		Order("bill_date ASC").
		Order("id ASC").
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (t *gormTx) InsertPurchase(purchase *Purchase) error {
	if err := t.db.Create(purchase).Error; err != nil {
		if utils.IsForeignKeyErr(err) {
			return &utils.NotFoundError{Entity: "product", Key: purchase.ProductId}
		}
		return err
	}
	return nil
}

func (t *gormTx) AppendBillEvent(event *BillEvent) error {
	return t.db.Create(event).Error
}
