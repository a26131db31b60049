// Package memstore is an in-process models.Store. Transactions are serialized by a mutex
// and run against a copy of the state that replaces the live state only on success.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

type state struct {
	customers map[int]models.Customer
	seller    *models.SellerInfo
	products  map[int]models.Product
	bills     map[int]models.Bill
	movements []models.StockMovement
	purchases []models.Purchase
	events    []models.BillEvent

	nextCustomerId int
	nextProductId  int
	nextBillId     int
	nextItemId     int
	nextPurchaseId int
	nextEventId    int
	nextMovementId int
}

func newState() *state {
	return &state{
		customers: make(map[int]models.Customer),
		products:  make(map[int]models.Product),
		bills:     make(map[int]models.Bill),
	}
}

func (s *state) clone() *state {
	c := *s
	c.customers = make(map[int]models.Customer, len(s.customers))
	for k, v := range s.customers {
		c.customers[k] = v
	}
	c.products = make(map[int]models.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.bills = make(map[int]models.Bill, len(s.bills))
	for k, v := range s.bills {
		c.bills[k] = copyBill(v)
	}
	if s.seller != nil {
		seller := *s.seller
		c.seller = &seller
	}
	c.movements = append([]models.StockMovement(nil), s.movements...)
	c.purchases = append([]models.Purchase(nil), s.purchases...)
	c.events = append([]models.BillEvent(nil), s.events...)
	return &c
}

func copyBill(b models.Bill) models.Bill {
	b.Items = append([]models.BillItem(nil), b.Items...)
	return b
}

type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
}

func New() *Store {
	return &Store{
		st:       newState(),
		failures: make(map[string]error),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx models.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&memTx{st: work, store: s}); err != nil {
		return err
	}
	// a context cancelled mid-transition rolls back like any other failure
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// FailNext makes the next call of the named StoreTx method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *Store) AddCustomer(c models.Customer) models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.st.nextCustomerId++
		c.ID = s.st.nextCustomerId
	} else if c.ID > s.st.nextCustomerId {
		s.st.nextCustomerId = c.ID
	}
	s.st.customers[c.ID] = c
	return c
}

func (s *Store) AddProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.st.nextProductId++
		p.ID = s.st.nextProductId
	} else if p.ID > s.st.nextProductId {
		s.st.nextProductId = p.ID
	}
	s.st.products[p.ID] = p
	return p
}

func (s *Store) RemoveProduct(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.products, id)
}

func (s *Store) SetSeller(seller models.SellerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.seller = &seller
}

func (s *Store) Product(id int) (models.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

func (s *Store) Bill(id int) (models.Bill, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.bills[id]
	return copyBill(b), ok
}

func (s *Store) BillCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.bills)
}

func (s *Store) Movements() []models.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StockMovement(nil), s.st.movements...)
}

func (s *Store) Purchases() []models.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Purchase(nil), s.st.purchases...)
}

func (s *Store) Events() []models.BillEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BillEvent(nil), s.st.events...)
}

type memTx struct {
	st    *state
	store *Store
}

func (t *memTx) injected(method string) error {
	if err, ok := t.store.failures[method]; ok {
		delete(t.store.failures, method)
		return err
	}
	return nil
}

func (t *memTx) GetCustomer(id int) (*models.Customer, error) {
	if err := t.injected("GetCustomer"); err != nil {
		return nil, err
	}
	c, ok := t.st.customers[id]
	if !ok {
		return nil, &utils.NotFoundError{Entity: "customer", Key: id}
	}
	return &c, nil
}

func (t *memTx) GetSeller() (*models.SellerInfo, error) {
	if err := t.injected("GetSeller"); err != nil {
		return nil, err
	}
	if t.st.seller == nil {
		return models.DefaultSellerInfo(), nil
	}
	seller := *t.st.seller
	return &seller, nil
}

func (t *memTx) GetProducts(ids []int) (map[int]*models.Product, error) {
	if err := t.injected("GetProducts"); err != nil {
		return nil, err
	}
	out := make(map[int]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (t *memTx) LockProducts(ids []int) (map[int]*models.Product, error) {
	if err := t.injected("LockProducts"); err != nil {
		return nil, err
	}
	return t.GetProducts(ids)
}

func (t *memTx) AdjustQuantity(productId int, delta int, reason models.StockMovementReason, ref models.StockReference) (int, error) {
	if err := t.injected("AdjustQuantity"); err != nil {
		return 0, err
	}
	p, ok := t.st.products[productId]
	if !ok {
		return 0, &utils.NotFoundError{Entity: "product", Key: productId}
	}
	if delta == 0 {
		return p.Quantity, nil
	}
	if delta < 0 && p.Quantity < -delta {
		return 0, &utils.InsufficientStockError{Shortages: []utils.StockShortage{{
			ProductId:   p.ID,
			ProductName: p.Name,
			Requested:   -delta,
			Available:   p.Quantity,
		}}}
	}
	p.Quantity += delta
	p.UpdatedAt = time.Now()
	t.st.products[productId] = p

	t.st.nextMovementId++
	t.st.movements = append(t.st.movements, models.StockMovement{
		ID:            t.st.nextMovementId,
		ProductId:     productId,
		Delta:         delta,
		BalanceAfter:  p.Quantity,
		ReferenceType: ref.Type,
		ReferenceId:   ref.Id,
		Reason:        reason,
		CorrelationId: ref.CorrelationId,
		Operator:      ref.Operator,
		CreatedAt:     time.Now(),
	})
	return p.Quantity, nil
}

func (t *memTx) ensureProductsExist(items []models.BillItem) error {
	for _, item := range items {
		if _, ok := t.st.products[item.ProductId]; !ok {
			return &utils.NotFoundError{Entity: "product", Key: item.ProductId}
		}
	}
	return nil
}

func (t *memTx) numberTaken(number string, exceptId int) bool {
	for id, b := range t.st.bills {
		if id != exceptId && b.BillNumber == number {
			return true
		}
	}
	return false
}

func (t *memTx) assignItemIds(billId int, items []models.BillItem) {
	models.NumberItems(items)
	for i := range items {
		t.st.nextItemId++
		items[i].ID = t.st.nextItemId
		items[i].BillId = billId
	}
}

func (t *memTx) InsertBill(bill *models.Bill) error {
	if err := t.injected("InsertBill"); err != nil {
		return err
	}
	if err := t.ensureProductsExist(bill.Items); err != nil {
		return err
	}
	if t.numberTaken(bill.BillNumber, 0) {
		return &utils.DuplicateIdentifierError{Identifier: bill.BillNumber}
	}
	t.st.nextBillId++
	bill.ID = t.st.nextBillId
	now := time.Now()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	t.assignItemIds(bill.ID, bill.Items)
	t.st.bills[bill.ID] = copyBill(*bill)
	return nil
}

func (t *memTx) GetBill(id int, forUpdate bool) (*models.Bill, error) {
	if err := t.injected("GetBill"); err != nil {
		return nil, err
	}
	b, ok := t.st.bills[id]
	if !ok {
		return nil, &utils.NotFoundError{Entity: "bill", Key: id}
	}
	out := copyBill(b)
	return &out, nil
}

func (t *memTx) ReplaceItems(billId int, items []models.BillItem) error {
	if err := t.injected("ReplaceItems"); err != nil {
		return err
	}
	b, ok := t.st.bills[billId]
	if !ok {
		return &utils.NotFoundError{Entity: "bill", Key: billId}
	}
	if err := t.ensureProductsExist(items); err != nil {
		return err
	}
	t.assignItemIds(billId, items)
	b.Items = append([]models.BillItem(nil), items...)
	t.st.bills[billId] = b
	return nil
}

func (t *memTx) UpdateHeader(bill *models.Bill) error {
	if err := t.injected("UpdateHeader"); err != nil {
		return err
	}
	existing, ok := t.st.bills[bill.ID]
	if !ok {
		return &utils.NotFoundError{Entity: "bill", Key: bill.ID}
	}
	if t.numberTaken(bill.BillNumber, bill.ID) {
		return &utils.DuplicateIdentifierError{Identifier: bill.BillNumber}
	}
	updated := *bill
	updated.Items = existing.Items
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	t.st.bills[bill.ID] = updated
	return nil
}

func (t *memTx) MarkStatus(billId int, status models.BillStatus, stockReserved bool) error {
	if err := t.injected("MarkStatus"); err != nil {
		return err
	}
	b, ok := t.st.bills[billId]
	if !ok {
		return &utils.NotFoundError{Entity: "bill", Key: billId}
	}
	b.Status = status.Normalize()
	b.StockReserved = stockReserved
	if b.Status.IsCancelled() {
		now := time.Now()
		b.CancelledAt = &now
	} else {
		b.CancelledAt = nil
	}
	b.UpdatedAt = time.Now()
	t.st.bills[billId] = b
	return nil
}

func (t *memTx) DeleteBill(billId int) error {
	if err := t.injected("DeleteBill"); err != nil {
		return err
	}
	if _, ok := t.st.bills[billId]; !ok {
		return &utils.NotFoundError{Entity: "bill", Key: billId}
	}
	delete(t.st.bills, billId)
	return nil
}

func (t *memTx) LastBillNumber(prefix string) (*string, error) {
	if err := t.injected("LastBillNumber"); err != nil {
		return nil, err
	}
	var best *models.Bill
	for id := range t.st.bills {
		b := t.st.bills[id]
		if b.SequenceNo <= 0 || !strings.HasPrefix(b.BillNumber, prefix) {
			continue
		}
		if best == nil || b.SequenceNo > best.SequenceNo || (b.SequenceNo == best.SequenceNo && b.ID > best.ID) {
			best = &b
		}
	}
	if best == nil {
		return nil, nil
	}
	number := best.BillNumber
	return &number, nil
}

func (t *memTx) BillNumberExists(number string, exceptId int) (bool, error) {
	if err := t.injected("BillNumberExists"); err != nil {
		return false, err
	}
	return t.numberTaken(number, exceptId), nil
}

func (t *memTx) ListBills(filter models.BillFilter) ([]*models.Bill, error) {
	if err := t.injected("ListBills"); err != nil {
		return nil, err
	}
	var out []*models.Bill
	for _, b := range t.st.bills {
		if !filter.IncludeCancelled && b.Status.IsCancelled() {
			continue
		}
		if filter.CustomerId > 0 && b.CustomerId != filter.CustomerId {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status.Normalize() {
			continue
		}
		c := copyBill(b)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BillDate.Equal(out[j].BillDate) {
			return out[i].BillDate.After(out[j].BillDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) ListActiveBillsWithItems() ([]*models.Bill, error) {
	if err := t.injected("ListActiveBillsWithItems"); err != nil {
		return nil, err
	}
	var out []*models.Bill
	for _, b := range t.st.bills {
		if b.Status.IsCancelled() {
			continue
		}
		c := copyBill(b)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BillDate.Equal(out[j].BillDate) {
			return out[i].BillDate.Before(out[j].BillDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) InsertPurchase(purchase *models.Purchase) error {
	if err := t.injected("InsertPurchase"); err != nil {
		return err
	}
	t.st.nextPurchaseId++
	purchase.ID = t.st.nextPurchaseId
	purchase.CreatedAt = time.Now()
	t.st.purchases = append(t.st.purchases, *purchase)
	return nil
}

func (t *memTx) AppendBillEvent(event *models.BillEvent) error {
	if err := t.injected("AppendBillEvent"); err != nil {
		return err
	}
	t.st.nextEventId++
	event.ID = t.st.nextEventId
	event.CreatedAt = time.Now()
	t.st.events = append(t.st.events, *event)
	return nil
}

// Snapshot returns the committed products, bills and movements, for ledger audits.
func (s *Store) Snapshot() ([]models.Product, []*models.Bill, []models.StockMovement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make([]models.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		products = append(products, p)
	}
	bills := make([]*models.Bill, 0, len(s.st.bills))
	for _, b := range s.st.bills {
		c := copyBill(b)
		bills = append(bills, &c)
	}
	return products, bills, append([]models.StockMovement(nil), s.st.movements...)
}
