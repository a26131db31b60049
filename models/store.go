package models

import "context"

// Store opens transactions. Everything the bill engine reads or writes goes through a
// StoreTx so a transition either commits as a whole or leaves no trace.
type Store interface {
	WithTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// LedgerTx is the primitive the inventory ledger is built on.
type LedgerTx interface {
	// LockProducts returns the rows for ids, locked for update in ascending id order.
	// Missing ids are simply absent from the result.
	LockProducts(ids []int) (map[int]*Product, error)
	// AdjustQuantity applies delta to the product's quantity and records a stock movement.
	// A negative delta is conditional: it fails with *utils.InsufficientStockError rather
	// than drive the quantity below zero.
	AdjustQuantity(productId int, delta int, reason StockMovementReason, ref StockReference) (int, error)
}

type StoreTx interface {
	LedgerTx

	GetCustomer(id int) (*Customer, error)
	GetSeller() (*SellerInfo, error)
	GetProducts(ids []int) (map[int]*Product, error)

	InsertBill(bill *Bill) error
	GetBill(id int, forUpdate bool) (*Bill, error)
	ReplaceItems(billId int, items []BillItem) error
	UpdateHeader(bill *Bill) error
	MarkStatus(billId int, status BillStatus, stockReserved bool) error
	DeleteBill(billId int) error
	LastBillNumber(prefix string) (*string, error)
	BillNumberExists(number string, exceptId int) (bool, error)
	ListBills(filter BillFilter) ([]*Bill, error)
	ListActiveBillsWithItems() ([]*Bill, error)

	InsertPurchase(purchase *Purchase) error
	AppendBillEvent(event *BillEvent) error
}
