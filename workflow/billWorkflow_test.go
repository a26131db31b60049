package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/models/memstore"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

var billDate = time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	engine   *BillEngine
	customer models.Customer
	products []models.Product
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newFixture seeds a Karnataka seller and customer and one product per stock value,
// each priced 100 with 18% GST.
func newFixture(t *testing.T, stock ...int) *fixture {
	t.Helper()
	store := memstore.New()
	store.SetSeller(models.SellerInfo{SellerName: "Seller", State: "Karnataka"})
	f := &fixture{
		store:    store,
		customer: store.AddCustomer(models.Customer{CustomerCode: "C1", Name: "Local Customer", State: "karnataka"}),
	}
	for i, q := range stock {
		f.products = append(f.products, store.AddProduct(models.Product{
			ProductCode:   fmt.Sprintf("P%d", i+1),
			Name:          fmt.Sprintf("Product %d", i+1),
			HsnCode:       "3004",
			Quantity:      q,
			UnitPrice:     decimal.NewFromInt(100),
			GstPercentage: decimal.NewFromInt(18),
		}))
	}
	f.engine = NewBillEngine(store,
		WithLogger(quietLogger()),
		WithLocker(nil),
		WithIdempotencyStore(nil),
		WithBillNumberPrefix("ST"),
		WithUnknownStatePolicy(models.UnknownStateInterState),
		WithRoundOff(false),
		WithBillEvents(true),
	)
	return f
}

func (f *fixture) newBill(lines ...BillItemInput) *NewBill {
	return &NewBill{CustomerId: f.customer.ID, BillDate: billDate, Items: lines}
}

func (f *fixture) line(i int, qty int) BillItemInput {
	return BillItemInput{ProductId: f.products[i].ID, Quantity: qty}
}

func (f *fixture) stock(t *testing.T, i int) int {
	t.Helper()
	p, ok := f.store.Product(f.products[i].ID)
	if !ok {
		t.Fatalf("product %d missing", f.products[i].ID)
	}
	return p.Quantity
}

func (f *fixture) mustCreate(t *testing.T, lines ...BillItemInput) *models.Bill {
	t.Helper()
	bill, err := f.engine.CreateBill(context.Background(), f.newBill(lines...))
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	return bill
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateBillReservesStockAndSplitsTax(t *testing.T) {
	f := newFixture(t, 5)
	bill := f.mustCreate(t, f.line(0, 2))

	if bill.BillNumber != "ST1" || bill.SequenceNo != 1 {
		t.Fatalf("bill number = %s (%d)", bill.BillNumber, bill.SequenceNo)
	}
	if !bill.StockReserved || bill.Status != models.BillStatusPending {
		t.Fatalf("reserved=%v status=%s", bill.StockReserved, bill.Status)
	}
	if bill.Jurisdiction != models.JurisdictionIntraState {
		t.Fatalf("jurisdiction = %s", bill.Jurisdiction)
	}
	item := bill.Items[0]
	if !item.Cgst.Equal(dec("18")) || !item.Sgst.Equal(dec("18")) || !item.Igst.IsZero() {
		t.Fatalf("split = %s/%s/%s", item.Cgst, item.Sgst, item.Igst)
	}
	if !bill.Subtotal.Equal(dec("200")) || !bill.GstAmount.Equal(dec("36")) || !bill.TotalAmount.Equal(dec("236")) {
		t.Fatalf("totals = %s/%s/%s", bill.Subtotal, bill.GstAmount, bill.TotalAmount)
	}
	if !bill.BillDate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bill date not truncated: %s", bill.BillDate)
	}
	if got := f.stock(t, 0); got != 3 {
		t.Fatalf("stock = %d, want 3", got)
	}
	events := f.store.Events()
	if len(events) != 1 || events[0].Action != models.BillEventActionCreate || events[0].BillId != bill.ID {
		t.Fatalf("events = %+v", events)
	}
}

func TestCreateBillUnknownSellerStateIsInterState(t *testing.T) {
	f := newFixture(t, 5)
	f.store.SetSeller(models.SellerInfo{SellerName: "No State"})

	bill := f.mustCreate(t, f.line(0, 1))
	if bill.Jurisdiction != models.JurisdictionInterState || !bill.Items[0].Igst.Equal(dec("18")) {
		t.Fatalf("jurisdiction=%s igst=%s", bill.Jurisdiction, bill.Items[0].Igst)
	}

	f.engine = NewBillEngine(f.store, WithLogger(quietLogger()), WithLocker(nil), WithIdempotencyStore(nil),
		WithUnknownStatePolicy(models.UnknownStateIntraState))
	bill = f.mustCreate(t, f.line(0, 1))
	if bill.Jurisdiction != models.JurisdictionIntraState {
		t.Fatalf("intra policy ignored: %s", bill.Jurisdiction)
	}
}

func TestCreateBillPriceOverrides(t *testing.T) {
	f := newFixture(t, 5)
	price := dec("10.10")
	gst := dec("5")
	bill := f.mustCreate(t, BillItemInput{ProductId: f.products[0].ID, Quantity: 3, UnitPrice: &price, GstPercentage: &gst})

	item := bill.Items[0]
	// 30.30 * 5% = 1.515 -> 1.52 split 0.76/0.76
	if !item.LineSubtotal.Equal(dec("30.30")) || !item.GstAmount.Equal(dec("1.52")) {
		t.Fatalf("line = %s gst %s", item.LineSubtotal, item.GstAmount)
	}
	if item.ProductName != "Product 1" || item.HsnCode != "3004" {
		t.Fatalf("snapshot = %q %q", item.ProductName, item.HsnCode)
	}
}

func TestCreateBillInsufficientStockAllocatesNothing(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.engine.CreateBill(context.Background(), f.newBill(f.line(0, 3)))
	var stock *utils.InsufficientStockError
	if !errors.As(err, &stock) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if s := stock.Shortages[0]; s.ProductId != f.products[0].ID || s.Requested != 3 || s.Available != 2 {
		t.Fatalf("shortage = %+v", s)
	}
	if f.stock(t, 0) != 2 || f.store.BillCount() != 0 || len(f.store.Events()) != 0 {
		t.Fatal("failed create left a trace")
	}

	bill := f.mustCreate(t, f.line(0, 2))
	if bill.BillNumber != "ST1" {
		t.Fatalf("failed create consumed a number, got %s", bill.BillNumber)
	}
}

func TestCreateBillGroupsRepeatedProduct(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.engine.CreateBill(context.Background(), f.newBill(f.line(0, 3), f.line(0, 3)))
	var stock *utils.InsufficientStockError
	if !errors.As(err, &stock) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if s := stock.Shortages[0]; s.Requested != 6 || s.Available != 5 {
		t.Fatalf("shortage = %+v", s)
	}
	if f.stock(t, 0) != 5 {
		t.Fatalf("stock = %d, want 5", f.stock(t, 0))
	}
}

func TestCreateBillReportsAllShortages(t *testing.T) {
	f := newFixture(t, 1, 10, 0)
	_, err := f.engine.CreateBill(context.Background(), f.newBill(f.line(2, 1), f.line(1, 2), f.line(0, 5)))
	var stock *utils.InsufficientStockError
	if !errors.As(err, &stock) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(stock.Shortages) != 2 {
		t.Fatalf("shortages = %+v", stock.Shortages)
	}
	if f.stock(t, 1) != 10 {
		t.Fatal("product with enough stock was decremented")
	}
}

func TestCreateBillValidation(t *testing.T) {
	f := newFixture(t, 5)
	negative := dec("-1")
	cases := []struct {
		name string
		in   *NewBill
	}{
		{"nil", nil},
		{"no items", f.newBill()},
		{"zero quantity", f.newBill(f.line(0, 0))},
		{"negative quantity", f.newBill(f.line(0, -2))},
		{"missing customer", &NewBill{BillDate: billDate, Items: []BillItemInput{f.line(0, 1)}}},
		{"missing date", &NewBill{CustomerId: f.customer.ID, Items: []BillItemInput{f.line(0, 1)}}},
		{"negative price", f.newBill(BillItemInput{ProductId: f.products[0].ID, Quantity: 1, UnitPrice: &negative})},
		{"created cancelled", &NewBill{CustomerId: f.customer.ID, BillDate: billDate, Items: []BillItemInput{f.line(0, 1)}, Status: "cancelled"}},
		{"manual without number", &NewBill{CustomerId: f.customer.ID, BillDate: billDate, Items: []BillItemInput{f.line(0, 1)}, IdentifierMode: models.IdentifierModeManual, BillNumber: "  "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateBill(context.Background(), tc.in)
			if !errors.Is(err, utils.ErrValidation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if f.stock(t, 0) != 5 || f.store.BillCount() != 0 {
		t.Fatal("invalid input changed state")
	}
}

func TestCreateBillNotFound(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.engine.CreateBill(context.Background(), &NewBill{CustomerId: 999, BillDate: billDate, Items: []BillItemInput{f.line(0, 1)}})
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("unknown customer: %v", err)
	}
	_, err = f.engine.CreateBill(context.Background(), f.newBill(BillItemInput{ProductId: 999, Quantity: 1}))
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("unknown product: %v", err)
	}
	if f.stock(t, 0) != 5 {
		t.Fatal("stock changed")
	}
}

func TestCreateBillManualNumbers(t *testing.T) {
	f := newFixture(t, 10)
	manual := func(number string) *NewBill {
		in := f.newBill(f.line(0, 1))
		in.IdentifierMode = models.IdentifierModeManual
		in.BillNumber = number
		return in
	}

	bill, err := f.engine.CreateBill(context.Background(), manual(" INV-100 "))
	if err != nil {
		t.Fatal(err)
	}
	if bill.BillNumber != "INV-100" || bill.SequenceNo != 0 {
		t.Fatalf("manual bill = %s (%d)", bill.BillNumber, bill.SequenceNo)
	}

	_, err = f.engine.CreateBill(context.Background(), manual("INV-100"))
	if !errors.Is(err, utils.ErrDuplicateIdentifier) {
		t.Fatalf("expected DuplicateIdentifier, got %v", err)
	}
	if f.stock(t, 0) != 9 {
		t.Fatalf("duplicate reserved stock: %d", f.stock(t, 0))
	}

	auto := f.mustCreate(t, f.line(0, 1))
	if auto.BillNumber != "ST1" {
		t.Fatalf("auto after manual = %s", auto.BillNumber)
	}

	// a manual number in the prefix's format moves the auto sequence forward
	if _, err := f.engine.CreateBill(context.Background(), manual("ST50")); err != nil {
		t.Fatal(err)
	}
	if next := f.mustCreate(t, f.line(0, 1)); next.BillNumber != "ST51" {
		t.Fatalf("after ST50 got %s", next.BillNumber)
	}

	// the last sequence would leave the next automatic number nowhere to go
	_, err = f.engine.CreateBill(context.Background(), manual("ST9223372036854775807"))
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if f.stock(t, 0) != 6 {
		t.Fatalf("rejected manual number reserved stock: %d", f.stock(t, 0))
	}

	signed, err := f.engine.CreateBill(context.Background(), manual("ST+5"))
	if err != nil {
		t.Fatal(err)
	}
	if signed.SequenceNo != 0 {
		t.Fatalf("ST+5 sequence = %d", signed.SequenceNo)
	}
	if next := f.mustCreate(t, f.line(0, 1)); next.BillNumber != "ST52" {
		t.Fatalf("after ST+5 got %s", next.BillNumber)
	}
}

func TestSequentialAutoNumbersAreUnique(t *testing.T) {
	const n = 1000
	f := newFixture(t, n)
	f.engine.events = false

	seen := make(map[string]bool, n)
	var last int64
	for i := 0; i < n; i++ {
		bill := f.mustCreate(t, f.line(0, 1))
		if seen[bill.BillNumber] {
			t.Fatalf("duplicate number %s", bill.BillNumber)
		}
		if bill.SequenceNo <= last {
			t.Fatalf("sequence %d after %d", bill.SequenceNo, last)
		}
		last = bill.SequenceNo
		seen[bill.BillNumber] = true
	}
	if !seen[fmt.Sprintf("ST%d", n)] {
		t.Fatalf("ST%d was never issued", n)
	}
	if f.stock(t, 0) != 0 {
		t.Fatalf("stock = %d", f.stock(t, 0))
	}
}

func TestCreateBillRetriesAutoNumberCollision(t *testing.T) {
	f := newFixture(t, 5)
	f.store.FailNext("InsertBill", &utils.DuplicateIdentifierError{Identifier: "ST1"})

	bill := f.mustCreate(t, f.line(0, 1))
	if bill.BillNumber != "ST1" {
		t.Fatalf("bill number = %s", bill.BillNumber)
	}
	if f.stock(t, 0) != 4 {
		t.Fatalf("stock = %d, want 4", f.stock(t, 0))
	}
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	f := newFixture(t, 10)
	f.engine.events = false

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		shortage int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateBill(context.Background(), f.newBill(f.line(0, 1)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, utils.ErrInsufficientStock):
				shortage++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 10 || shortage != 15 {
		t.Fatalf("ok=%d shortage=%d", ok, shortage)
	}
	if f.stock(t, 0) != 0 {
		t.Fatalf("stock = %d", f.stock(t, 0))
	}
}

func TestPreviewUpdateComputesDeltasWithoutWriting(t *testing.T) {
	f := newFixture(t, 10, 4)
	bill := f.mustCreate(t, f.line(0, 5))

	deltas, err := f.engine.PreviewUpdate(context.Background(), bill.ID, []BillItemInput{f.line(0, 2), f.line(1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas = %+v", deltas)
	}
	a, b := deltas[0], deltas[1]
	if a.ProductId != f.products[0].ID || a.OldQty != 5 || a.NewQty != 2 || a.NetChange != 3 || a.Available != 5 || a.Projected != 8 {
		t.Fatalf("first delta = %+v", a)
	}
	if b.ProductId != f.products[1].ID || b.OldQty != 0 || b.NewQty != 1 || b.NetChange != -1 || b.Projected != 3 {
		t.Fatalf("second delta = %+v", b)
	}
	if f.stock(t, 0) != 5 || f.stock(t, 1) != 4 {
		t.Fatal("preview wrote stock")
	}
	stored, _ := f.store.Bill(bill.ID)
	if len(stored.Items) != 1 || stored.Items[0].Quantity != 5 {
		t.Fatal("preview wrote items")
	}
}

func TestPreviewUpdateFlagsShortages(t *testing.T) {
	f := newFixture(t, 6, 1)
	bill := f.mustCreate(t, f.line(0, 5))

	deltas, err := f.engine.PreviewUpdate(context.Background(), bill.ID, []BillItemInput{f.line(0, 7), f.line(1, 3)})
	var stock *utils.InsufficientStockError
	if !errors.As(err, &stock) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas not returned with the error: %+v", deltas)
	}
	// product 1: 1 on hand + 5 held by the bill; 7 wanted
	if len(stock.Shortages) != 2 || stock.Shortages[0].Requested != 7 || stock.Shortages[0].Available != 6 {
		t.Fatalf("shortages = %+v", stock.Shortages)
	}
}

func TestPreviewUpdateRejectsCancelledBill(t *testing.T) {
	f := newFixture(t, 10)
	bill := f.mustCreate(t, f.line(0, 4))
	if _, err := f.engine.CancelBills(context.Background(), []int{bill.ID}); err != nil {
		t.Fatal(err)
	}
	deltas, err := f.engine.PreviewUpdate(context.Background(), bill.ID, []BillItemInput{f.line(0, 4)})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if deltas != nil {
		t.Fatalf("deltas = %+v", deltas)
	}
	if f.stock(t, 0) != 10 {
		t.Fatalf("stock = %d", f.stock(t, 0))
	}
}

func TestPreviewUpdateUnknownBillAndProduct(t *testing.T) {
	f := newFixture(t, 10)
	if _, err := f.engine.PreviewUpdate(context.Background(), 42, []BillItemInput{f.line(0, 1)}); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("unknown bill: %v", err)
	}
	bill := f.mustCreate(t, f.line(0, 1))
	if _, err := f.engine.PreviewUpdate(context.Background(), bill.ID, []BillItemInput{{ProductId: 77, Quantity: 1}}); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("unknown product: %v", err)
	}
}

func TestCommitUpdateRequiresConfirmation(t *testing.T) {
	f := newFixture(t, 10)
	bill := f.mustCreate(t, f.line(0, 5))

	_, err := f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{Items: []BillItemInput{f.line(0, 2)}})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if f.stock(t, 0) != 5 {
		t.Fatal("unconfirmed update moved stock")
	}
}

func TestCommitUpdateAppliesNetDelta(t *testing.T) {
	f := newFixture(t, 10)
	bill := f.mustCreate(t, f.line(0, 5))

	notes := "reduced"
	paid := models.BillStatusPaid
	updated, err := f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{
		Items:     []BillItemInput{f.line(0, 2)},
		Confirmed: true,
		Notes:     &notes,
		Status:    &paid,
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.stock(t, 0) != 8 {
		t.Fatalf("stock = %d, want 8", f.stock(t, 0))
	}
	if !updated.TotalAmount.Equal(dec("236")) || updated.Notes != notes || updated.Status != models.BillStatusPaid {
		t.Fatalf("updated = total %s notes %q status %s", updated.TotalAmount, updated.Notes, updated.Status)
	}
	stored, _ := f.store.Bill(bill.ID)
	if len(stored.Items) != 1 || stored.Items[0].Quantity != 2 || !stored.StockReserved || stored.BillNumber != "ST1" {
		t.Fatalf("stored = %+v", stored)
	}
	if err := models.VerifyBillTotals(&stored); err != nil {
		t.Fatal(err)
	}
	events := f.store.Events()
	if last := events[len(events)-1]; last.Action != models.BillEventActionUpdate {
		t.Fatalf("last event = %s", last.Action)
	}
}

func TestCommitUpdateSwapsProducts(t *testing.T) {
	f := newFixture(t, 10, 10)
	bill := f.mustCreate(t, f.line(0, 4))

	if _, err := f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{
		Items:     []BillItemInput{f.line(1, 3), f.line(1, 2)},
		Confirmed: true,
	}); err != nil {
		t.Fatal(err)
	}
	if f.stock(t, 0) != 10 || f.stock(t, 1) != 5 {
		t.Fatalf("stock = %d/%d", f.stock(t, 0), f.stock(t, 1))
	}
}

func TestCommitUpdateShortageRollsBack(t *testing.T) {
	f := newFixture(t, 6, 1)
	bill := f.mustCreate(t, f.line(0, 5))

	_, err := f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{
		Items:     []BillItemInput{f.line(0, 2), f.line(1, 2)},
		Confirmed: true,
	})
	if !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("expected InsufficientStock, got %v", err)
	}
	if f.stock(t, 0) != 1 || f.stock(t, 1) != 1 {
		t.Fatalf("stock = %d/%d after rollback", f.stock(t, 0), f.stock(t, 1))
	}
	stored, _ := f.store.Bill(bill.ID)
	if len(stored.Items) != 1 || stored.Items[0].Quantity != 5 {
		t.Fatal("items changed after rollback")
	}
}

func TestCommitUpdateCanUseStockItReleases(t *testing.T) {
	f := newFixture(t, 5)
	bill := f.mustCreate(t, f.line(0, 5))

	// nothing on hand, but the bill's own 5 come back first
	if _, err := f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{
		Items:     []BillItemInput{f.line(0, 5)},
		Confirmed: true,
	}); err != nil {
		t.Fatal(err)
	}
	if f.stock(t, 0) != 0 {
		t.Fatalf("stock = %d", f.stock(t, 0))
	}
}

func TestCommitUpdateRejectsCancelledBill(t *testing.T) {
	f := newFixture(t, 10)
	bill := f.mustCreate(t, f.line(0, 5))
	if _, err := f.engine.CancelBills(context.Background(), []int{bill.ID}); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{Items: []BillItemInput{f.line(0, 1)}, Confirmed: true})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if f.stock(t, 0) != 10 {
		t.Fatalf("stock = %d", f.stock(t, 0))
	}

	cancelled := models.BillStatusCancelled
	other := f.mustCreate(t, f.line(0, 1))
	_, err = f.engine.CommitUpdate(context.Background(), other.ID, &BillUpdate{Items: []BillItemInput{f.line(0, 1)}, Confirmed: true, Status: &cancelled})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("cancel through update: %v", err)
	}
}

func TestCommitUpdateRename(t *testing.T) {
	f := newFixture(t, 10)
	first := f.mustCreate(t, f.line(0, 1))
	second := f.mustCreate(t, f.line(0, 1))

	taken := first.BillNumber
	_, err := f.engine.CommitUpdate(context.Background(), second.ID, &BillUpdate{Items: []BillItemInput{f.line(0, 3)}, Confirmed: true, BillNumber: &taken})
	if !errors.Is(err, utils.ErrDuplicateIdentifier) {
		t.Fatalf("expected DuplicateIdentifier, got %v", err)
	}
	if f.stock(t, 0) != 8 {
		t.Fatalf("stock = %d after rejected rename", f.stock(t, 0))
	}

	fresh := "INV-7"
	updated, err := f.engine.CommitUpdate(context.Background(), second.ID, &BillUpdate{Items: []BillItemInput{f.line(0, 1)}, Confirmed: true, BillNumber: &fresh})
	if err != nil {
		t.Fatal(err)
	}
	if updated.BillNumber != "INV-7" || updated.SequenceNo != 0 {
		t.Fatalf("renamed = %s (%d)", updated.BillNumber, updated.SequenceNo)
	}
}

func TestCommitUpdateChangesCustomerJurisdiction(t *testing.T) {
	f := newFixture(t, 10)
	bill := f.mustCreate(t, f.line(0, 1))
	remote := f.store.AddCustomer(models.Customer{CustomerCode: "C2", Name: "Remote", State: "Kerala"})

	updated, err := f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{
		Items:      []BillItemInput{f.line(0, 1)},
		Confirmed:  true,
		CustomerId: &remote.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Jurisdiction != models.JurisdictionInterState || updated.CustomerName != "Remote" || !updated.Items[0].Igst.Equal(dec("18")) {
		t.Fatalf("updated = %s %s igst %s", updated.Jurisdiction, updated.CustomerName, updated.Items[0].Igst)
	}
}

func TestCancelBillsReleasesOnce(t *testing.T) {
	f := newFixture(t, 10)
	bill := f.mustCreate(t, f.line(0, 4))

	n, err := f.engine.CancelBills(context.Background(), []int{bill.ID})
	if err != nil || n != 1 {
		t.Fatalf("first cancel = %d, %v", n, err)
	}
	if f.stock(t, 0) != 10 {
		t.Fatalf("stock = %d after cancel", f.stock(t, 0))
	}
	n, err = f.engine.CancelBills(context.Background(), []int{bill.ID, bill.ID})
	if err != nil || n != 0 {
		t.Fatalf("second cancel = %d, %v", n, err)
	}
	if f.stock(t, 0) != 10 {
		t.Fatalf("stock = %d after second cancel", f.stock(t, 0))
	}
	stored, _ := f.store.Bill(bill.ID)
	if !stored.Status.IsCancelled() || stored.StockReserved || stored.CancelledAt == nil {
		t.Fatalf("stored = %+v", stored)
	}

	bills, err := f.engine.ListBills(context.Background(), models.BillFilter{})
	if err != nil || len(bills) != 0 {
		t.Fatalf("default listing shows cancelled: %d, %v", len(bills), err)
	}
	bills, _ = f.engine.ListBills(context.Background(), models.BillFilter{IncludeCancelled: true})
	if len(bills) != 1 {
		t.Fatalf("include cancelled = %d", len(bills))
	}
}

func TestCancelBillsUnknownIdRollsBackBatch(t *testing.T) {
	f := newFixture(t, 10)
	bill := f.mustCreate(t, f.line(0, 4))

	_, err := f.engine.CancelBills(context.Background(), []int{bill.ID, 999})
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	stored, _ := f.store.Bill(bill.ID)
	if stored.Status.IsCancelled() || f.stock(t, 0) != 6 {
		t.Fatal("partial cancel survived")
	}
	if _, err := f.engine.CancelBills(context.Background(), nil); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestDeleteBillReleasesOnlyLiveReservation(t *testing.T) {
	f := newFixture(t, 10)
	live := f.mustCreate(t, f.line(0, 3))
	cancelled := f.mustCreate(t, f.line(0, 2))
	if _, err := f.engine.CancelBills(context.Background(), []int{cancelled.ID}); err != nil {
		t.Fatal(err)
	}
	if f.stock(t, 0) != 7 {
		t.Fatalf("stock = %d", f.stock(t, 0))
	}

	if err := f.engine.DeleteBill(context.Background(), cancelled.ID); err != nil {
		t.Fatal(err)
	}
	if f.stock(t, 0) != 7 {
		t.Fatalf("deleting a cancelled bill released again: %d", f.stock(t, 0))
	}
	if err := f.engine.DeleteBill(context.Background(), live.ID); err != nil {
		t.Fatal(err)
	}
	if f.stock(t, 0) != 10 || f.store.BillCount() != 0 {
		t.Fatalf("stock = %d bills = %d", f.stock(t, 0), f.store.BillCount())
	}
	if err := f.engine.DeleteBill(context.Background(), live.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestRemovedProductDoesNotBlockRelease(t *testing.T) {
	f := newFixture(t, 10, 10)
	ctx := context.Background()
	mixed := f.mustCreate(t, f.line(0, 2), f.line(1, 3))
	healthy := f.mustCreate(t, f.line(1, 1))
	toDelete := f.mustCreate(t, f.line(0, 1), f.line(1, 1))
	toEdit := f.mustCreate(t, f.line(0, 1), f.line(1, 1))
	if f.stock(t, 1) != 4 {
		t.Fatalf("stock = %d", f.stock(t, 1))
	}
	f.store.RemoveProduct(f.products[0].ID)

	n, err := f.engine.CancelBills(ctx, []int{healthy.ID, mixed.ID})
	if err != nil || n != 2 {
		t.Fatalf("CancelBills = %d, %v", n, err)
	}
	if f.stock(t, 1) != 8 {
		t.Fatalf("stock after cancel = %d", f.stock(t, 1))
	}

	if err := f.engine.DeleteBill(ctx, toDelete.ID); err != nil {
		t.Fatalf("DeleteBill: %v", err)
	}
	if _, ok := f.store.Bill(toDelete.ID); ok {
		t.Fatal("bill still present")
	}
	if f.stock(t, 1) != 9 {
		t.Fatalf("stock after delete = %d", f.stock(t, 1))
	}

	// the removed product cannot come back as a new line
	_, err = f.engine.CommitUpdate(ctx, toEdit.ID, &BillUpdate{Items: []BillItemInput{f.line(0, 1)}, Confirmed: true})
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if f.stock(t, 1) != 9 {
		t.Fatalf("stock after rejected edit = %d", f.stock(t, 1))
	}
	updated, err := f.engine.CommitUpdate(ctx, toEdit.ID, &BillUpdate{Items: []BillItemInput{f.line(1, 2)}, Confirmed: true})
	if err != nil {
		t.Fatalf("CommitUpdate: %v", err)
	}
	if len(updated.Items) != 1 || f.stock(t, 1) != 8 {
		t.Fatalf("items = %d stock = %d", len(updated.Items), f.stock(t, 1))
	}
}

func TestStoreFailureBecomesIntegrityFailure(t *testing.T) {
	f := newFixture(t, 10)
	f.store.FailNext("InsertBill", errors.New("disk full"))

	_, err := f.engine.CreateBill(context.Background(), f.newBill(f.line(0, 2)))
	if !errors.Is(err, utils.ErrIntegrityFailure) {
		t.Fatalf("expected IntegrityFailure, got %v", err)
	}
	if f.stock(t, 0) != 10 || f.store.BillCount() != 0 {
		t.Fatal("failed transaction left a trace")
	}

	bill := f.mustCreate(t, f.line(0, 2))
	f.store.FailNext("ReplaceItems", errors.New("connection reset"))
	_, err = f.engine.CommitUpdate(context.Background(), bill.ID, &BillUpdate{Items: []BillItemInput{f.line(0, 1)}, Confirmed: true})
	if !errors.Is(err, utils.ErrIntegrityFailure) {
		t.Fatalf("expected IntegrityFailure, got %v", err)
	}
	if f.stock(t, 0) != 8 {
		t.Fatalf("stock = %d after failed update", f.stock(t, 0))
	}
}

func TestCancelledContextAborts(t *testing.T) {
	f := newFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.CreateBill(ctx, f.newBill(f.line(0, 2)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.stock(t, 0) != 10 || f.store.BillCount() != 0 {
		t.Fatal("cancelled create left a trace")
	}
}

func TestRecordPurchase(t *testing.T) {
	f := newFixture(t, 2)
	purchase, err := f.engine.RecordPurchase(context.Background(), &NewPurchase{
		ProductId: f.products[0].ID,
		Quantity:  8,
		BuyPrice:  dec("55.5"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if purchase.ID == 0 || f.stock(t, 0) != 10 {
		t.Fatalf("purchase %d stock %d", purchase.ID, f.stock(t, 0))
	}
	moves := f.store.Movements()
	last := moves[len(moves)-1]
	if last.Reason != models.StockMovementReasonReceive || last.ReferenceType != models.StockReferenceTypePurchase || last.ReferenceId != purchase.ID {
		t.Fatalf("movement = %+v", last)
	}

	if _, err := f.engine.RecordPurchase(context.Background(), &NewPurchase{ProductId: 99, Quantity: 1}); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("unknown product: %v", err)
	}
	if _, err := f.engine.RecordPurchase(context.Background(), &NewPurchase{ProductId: f.products[0].ID}); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("zero quantity: %v", err)
	}
}

// Every committed sequence must keep initial stock equal to current stock plus what live
// bills hold, and the movement trail must agree with both.
func TestStockConservation(t *testing.T) {
	initial := []int{20, 15, 8}
	f := newFixture(t, initial...)
	ctx := context.Background()

	a := f.mustCreate(t, f.line(0, 5), f.line(1, 2))
	b := f.mustCreate(t, f.line(2, 8))
	c := f.mustCreate(t, f.line(0, 1), f.line(0, 1))
	_, _ = f.engine.CreateBill(ctx, f.newBill(f.line(2, 1))) // short
	if _, err := f.engine.CommitUpdate(ctx, a.ID, &BillUpdate{Items: []BillItemInput{f.line(1, 7), f.line(2, 0)}, Confirmed: true}); err == nil {
		t.Fatal("zero quantity line accepted")
	}
	if _, err := f.engine.CommitUpdate(ctx, a.ID, &BillUpdate{Items: []BillItemInput{f.line(1, 7)}, Confirmed: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CancelBills(ctx, []int{b.ID}); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.DeleteBill(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CommitUpdate(ctx, a.ID, &BillUpdate{Items: []BillItemInput{f.line(1, 9), f.line(0, 3)}, Confirmed: true}); err != nil {
		t.Fatal(err)
	}

	products, bills, movements := f.store.Snapshot()
	held := make(map[int]int)
	for _, bill := range bills {
		for id, q := range bill.ReservedQuantities() {
			held[id] += q
		}
	}
	for i, p := range f.products {
		if got := f.stock(t, i) + held[p.ID]; got != initial[i] {
			t.Fatalf("product %d: on hand + held = %d, want %d", p.ID, got, initial[i])
		}
	}
	if d := models.AuditStock(products, bills, movements); len(d) != 0 {
		t.Fatalf("audit = %+v", d)
	}
}
