package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

const (
	billWorkflowModule    = "billWorkflow.go"
	maxBillNumberAttempts = 5
)

type BillItemInput struct {
	ProductId int `json:"product_id" validate:"gt=0"`
	Quantity  int `json:"quantity" validate:"gt=0"`
	// optional overrides; the product's current values are used otherwise
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	GstPercentage *decimal.Decimal `json:"gst_percentage"`
}

type NewBill struct {
	CustomerId     int                   `json:"customer_id" validate:"required,gt=0"`
	BillDate       time.Time             `json:"bill_date" validate:"required"`
	Items          []BillItemInput       `json:"items" validate:"required,min=1,dive"`
	IdentifierMode models.IdentifierMode `json:"identifier_mode"`
	BillNumber     string                `json:"bill_number" validate:"max=100"`
	Status         models.BillStatus     `json:"status" validate:"max=50"`
	PaymentMethod  string                `json:"payment_method" validate:"max=50"`
	Notes          string                `json:"notes"`
}

// BillUpdate is the second phase of an edit. Confirmed must be set by a caller that has
// shown the preview; nil header fields are left unchanged.
type BillUpdate struct {
	Items         []BillItemInput    `json:"items" validate:"required,min=1,dive"`
	Confirmed     bool               `json:"confirmed"`
	CustomerId    *int               `json:"customer_id" validate:"omitempty,gt=0"`
	BillDate      *time.Time         `json:"bill_date"`
	BillNumber    *string            `json:"bill_number" validate:"omitempty,max=100"`
	Status        *models.BillStatus `json:"status" validate:"omitempty,max=50"`
	PaymentMethod *string            `json:"payment_method" validate:"omitempty,max=50"`
	Notes         *string            `json:"notes"`
}

type previewInput struct {
	Items []BillItemInput `json:"items" validate:"required,min=1,dive"`
}

// BillEngine is the only place that mutates bills and stock together. Each operation
// runs in exactly one store transaction.
type BillEngine struct {
	store    models.Store
	logger   *logrus.Logger
	locker   *redislock.Client
	prefix   string
	policy   models.UnknownStatePolicy
	roundOff bool
	events   bool
	now      func() time.Time
	tracer   trace.Tracer

	idempotency IdempotencyStore
}

type Option func(*BillEngine)

func WithLogger(logger *logrus.Logger) Option {
	return func(e *BillEngine) { e.logger = logger }
}

// WithLocker sets the redislock client used around auto numbering. nil disables it.
func WithLocker(locker *redislock.Client) Option {
	return func(e *BillEngine) { e.locker = locker }
}

func WithBillNumberPrefix(prefix string) Option {
	return func(e *BillEngine) {
		if p := strings.TrimSpace(prefix); p != "" {
			e.prefix = p
		}
	}
}

func WithUnknownStatePolicy(policy models.UnknownStatePolicy) Option {
	return func(e *BillEngine) { e.policy = policy }
}

func WithRoundOff(enabled bool) Option {
	return func(e *BillEngine) { e.roundOff = enabled }
}

// WithBillEvents writes an outbox row for every transition.
func WithBillEvents(enabled bool) Option {
	return func(e *BillEngine) { e.events = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(e *BillEngine) { e.now = now }
}

func NewBillEngine(store models.Store, opts ...Option) *BillEngine {
	policy := models.UnknownStateInterState
	if config.UnknownSellerStateIsIntra() {
		policy = models.UnknownStateIntraState
	}
	e := &BillEngine{
		store:    store,
		logger:   config.GetLogger(),
		locker:   config.GetRedisLock(),
		prefix:   config.BillNumberPrefix(),
		policy:   policy,
		roundOff: config.BillRoundOff(),
		events:   config.PublishBillEvents(),
		now:      time.Now,
		tracer:   otel.Tracer("bitbucket.org/mmdatafocus/billing_backend/workflow"),

		idempotency: redisIdempotencyStore{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *BillEngine) Prefix() string {
	return e.prefix
}

func (e *BillEngine) CreateBill(ctx context.Context, in *NewBill) (*models.Bill, error) {
	ctx, span := e.tracer.Start(ctx, "BillEngine.CreateBill")
	defer span.End()

	if in == nil {
		return nil, e.finish(span, "CreateBill", nil, utils.NewValidationError("bill is required"))
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, e.finish(span, "CreateBill", nil, err)
	}
	if err := validateItemOverrides(in.Items); err != nil {
		return nil, e.finish(span, "CreateBill", nil, err)
	}
	status := in.Status.Normalize()
	if status == "" {
		status = models.BillStatusPending
	}
	if status.IsCancelled() {
		return nil, e.finish(span, "CreateBill", nil, utils.NewValidationError("a new bill cannot be created as %s", models.BillStatusCancelled))
	}
	mode := in.IdentifierMode
	if mode == "" {
		mode = models.IdentifierModeAuto
	}
	manualNumber := strings.TrimSpace(in.BillNumber)
	if mode == models.IdentifierModeManual && manualNumber == "" {
		return nil, e.finish(span, "CreateBill", nil, utils.NewValidationError("bill number is required in manual mode"))
	}
	span.SetAttributes(attribute.String("bill.identifier_mode", string(mode)), attribute.Int("bill.items", len(in.Items)))

	if mode == models.IdentifierModeAuto {
		release := acquireBillNumberLock(ctx, e.locker, e.logger, e.prefix)
		defer release()
	}

	var (
		bill *models.Bill
		err  error
	)
	for attempt := 1; attempt <= maxBillNumberAttempts; attempt++ {
		bill, err = e.createOnce(ctx, in, mode, manualNumber, status)
		if err == nil || mode == models.IdentifierModeManual || !errors.Is(err, utils.ErrDuplicateIdentifier) {
			break
		}
		if e.logger != nil {
			e.logger.WithFields(logrus.Fields{
				"module":   billWorkflowModule,
				"funcName": "CreateBill",
				"attempt":  attempt,
			}).Warn("bill number taken by a concurrent create, retrying")
		}
	}
	if err != nil {
		return nil, e.finish(span, "CreateBill", in, err)
	}
	span.SetAttributes(attribute.Int("bill.id", bill.ID), attribute.String("bill.number", bill.BillNumber))
	return bill, nil
}

func (e *BillEngine) createOnce(ctx context.Context, in *NewBill, mode models.IdentifierMode, manualNumber string, status models.BillStatus) (*models.Bill, error) {
	var created *models.Bill
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		customer, err := tx.GetCustomer(in.CustomerId)
		if err != nil {
			return err
		}
		seller, err := tx.GetSeller()
		if err != nil {
			return err
		}
		jurisdiction := models.ClassifyJurisdiction(seller.State, customer.State, e.policy)

		demands := inputDemands(in.Items)
		products, err := tx.LockProducts(demandIds(demands))
		if err != nil {
			return err
		}
		// stock is checked before an identifier is allocated
		if err := models.CheckAvailability(products, demands); err != nil {
			return err
		}
		items, err := buildItems(in.Items, products, jurisdiction)
		if err != nil {
			return err
		}

		number, seq, err := e.allocateBillNumber(tx, mode, manualNumber)
		if err != nil {
			return err
		}

		bill := &models.Bill{
			BillNumber:    number,
			SequenceNo:    seq,
			CustomerId:    customer.ID,
			CustomerName:  customer.Name,
			CustomerState: customer.State,
			Jurisdiction:  jurisdiction,
			BillDate:      utils.TruncateToDate(in.BillDate),
			Status:        status,
			PaymentMethod: strings.TrimSpace(in.PaymentMethod),
			Notes:         in.Notes,
			StockReserved: true,
			Items:         items,
		}
		bill.ApplyTotals(models.ComputeBillTotals(items, e.roundOff))

		if err := tx.InsertBill(bill); err != nil {
			return err
		}
		if err := models.ReserveAll(tx, bill.Demands(), e.stockRef(ctx, models.StockReferenceTypeBill, bill.ID)); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, tx, bill, models.BillEventActionCreate); err != nil {
			return err
		}
		created = bill
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// allocateBillNumber reads the last issued number at call time and re-checks uniqueness
// before handing it out. Manual numbers are accepted only when unused.
func (e *BillEngine) allocateBillNumber(tx models.StoreTx, mode models.IdentifierMode, manualNumber string) (string, int64, error) {
	if mode == models.IdentifierModeManual {
		exists, err := tx.BillNumberExists(manualNumber, 0)
		if err != nil {
			return "", 0, err
		}
		if exists {
			return "", 0, &utils.DuplicateIdentifierError{Identifier: manualNumber}
		}
		seq, err := e.manualSequence(manualNumber)
		if err != nil {
			return "", 0, err
		}
		return manualNumber, seq, nil
	}

	last, err := tx.LastBillNumber(e.prefix)
	if err != nil {
		return "", 0, err
	}
	number, seq, err := models.NextBillNumber(e.prefix, last)
	if err != nil {
		return "", 0, err
	}
	for {
		exists, err := tx.BillNumberExists(number, 0)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return number, seq, nil
		}
		if number, seq, err = models.NextBillNumber(e.prefix, &number); err != nil {
			return "", 0, err
		}
	}
}

// manualSequence keeps a manual number from taking the last automatic sequence, which
// would leave nothing for the next automatic bill.
func (e *BillEngine) manualSequence(number string) (int64, error) {
	seq := models.ParseBillSequence(e.prefix, number)
	if seq >= models.MaxBillSequence {
		return 0, utils.NewValidationError("bill number %s is beyond the automatic sequence range", number)
	}
	return seq, nil
}

// PreviewUpdate reports what replacing the bill's items would do to stock. Nothing is
// written. When a projection goes negative the deltas are returned together with an
// *utils.InsufficientStockError naming every offending product.
func (e *BillEngine) PreviewUpdate(ctx context.Context, billId int, items []BillItemInput) ([]InventoryDelta, error) {
	ctx, span := e.tracer.Start(ctx, "BillEngine.PreviewUpdate", trace.WithAttributes(attribute.Int("bill.id", billId)))
	defer span.End()

	if err := utils.ValidateStruct(&previewInput{Items: items}); err != nil {
		return nil, e.finish(span, "PreviewUpdate", nil, err)
	}

	var deltas []InventoryDelta
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		bill, err := tx.GetBill(billId, false)
		if err != nil {
			return err
		}
		if bill.Status.IsCancelled() {
			return utils.NewValidationError("bill %s is cancelled and cannot be edited", bill.BillNumber)
		}
		oldQty := bill.ReservedQuantities()
		newQty := demandMap(inputDemands(items))

		ids := make([]int, 0, len(oldQty)+len(newQty))
		for id := range oldQty {
			ids = append(ids, id)
		}
		for id := range newQty {
			ids = append(ids, id)
		}
		products, err := tx.GetProducts(utils.UniqueSlice(ids))
		if err != nil {
			return err
		}
		for id := range newQty {
			if _, ok := products[id]; !ok {
				return &utils.NotFoundError{Entity: "product", Key: id}
			}
		}
		deltas = ComputeInventoryDeltas(oldQty, newQty, products)
		return nil
	})
	if err != nil {
		return nil, e.finish(span, "PreviewUpdate", billId, err)
	}
	if shortages := DeltaShortages(deltas); len(shortages) > 0 {
		return deltas, e.finish(span, "PreviewUpdate", billId, &utils.InsufficientStockError{Shortages: shortages})
	}
	return deltas, nil
}

// CommitUpdate re-validates against live quantities under row locks; the preview is
// never trusted. Old quantities are released, new ones reserved, items and totals
// replaced, all in one transaction.
func (e *BillEngine) CommitUpdate(ctx context.Context, billId int, upd *BillUpdate) (*models.Bill, error) {
	ctx, span := e.tracer.Start(ctx, "BillEngine.CommitUpdate", trace.WithAttributes(attribute.Int("bill.id", billId)))
	defer span.End()

	if upd == nil {
		return nil, e.finish(span, "CommitUpdate", billId, utils.NewValidationError("update is required"))
	}
	if !upd.Confirmed {
		return nil, e.finish(span, "CommitUpdate", billId, utils.NewValidationError("update must be confirmed after preview"))
	}
	if err := utils.ValidateStruct(upd); err != nil {
		return nil, e.finish(span, "CommitUpdate", billId, err)
	}
	if err := validateItemOverrides(upd.Items); err != nil {
		return nil, e.finish(span, "CommitUpdate", billId, err)
	}
	if upd.Status != nil && upd.Status.IsCancelled() {
		return nil, e.finish(span, "CommitUpdate", billId, utils.NewValidationError("use cancel to cancel a bill"))
	}
	var rename string
	if upd.BillNumber != nil {
		rename = strings.TrimSpace(*upd.BillNumber)
		if rename == "" {
			return nil, e.finish(span, "CommitUpdate", billId, utils.NewValidationError("bill number cannot be empty"))
		}
	}

	var updated *models.Bill
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		bill, err := tx.GetBill(billId, true)
		if err != nil {
			return err
		}
		if bill.Status.IsCancelled() {
			return utils.NewValidationError("bill %s is cancelled and cannot be edited", bill.BillNumber)
		}

		newDemands := inputDemands(upd.Items)
		oldDemands := bill.Demands()
		if !bill.StockReserved {
			oldDemands = nil
		}
		// lock every product involved up front, ascending, before any delta
		products, err := tx.LockProducts(demandIds(append(append([]models.StockDemand(nil), oldDemands...), newDemands...)))
		if err != nil {
			return err
		}

		customerState := bill.CustomerState
		if upd.CustomerId != nil && *upd.CustomerId != bill.CustomerId {
			customer, err := tx.GetCustomer(*upd.CustomerId)
			if err != nil {
				return err
			}
			bill.CustomerId = customer.ID
			bill.CustomerName = customer.Name
			bill.CustomerState = customer.State
			customerState = customer.State
		} else if customer, err := tx.GetCustomer(bill.CustomerId); err == nil {
			customerState = customer.State
			bill.CustomerState = customer.State
		} else if !errors.Is(err, utils.ErrNotFound) {
			return err
		}
		seller, err := tx.GetSeller()
		if err != nil {
			return err
		}
		bill.Jurisdiction = models.ClassifyJurisdiction(seller.State, customerState, e.policy)

		items, err := buildItems(upd.Items, products, bill.Jurisdiction)
		if err != nil {
			return err
		}

		ref := e.stockRef(ctx, models.StockReferenceTypeBill, bill.ID)
		if len(oldDemands) > 0 {
			if err := e.releaseAll(tx, oldDemands, ref, "CommitUpdate"); err != nil {
				return err
			}
		}
		if err := models.ReserveAll(tx, newDemands, ref); err != nil {
			return err
		}
		if err := tx.ReplaceItems(bill.ID, items); err != nil {
			return err
		}

		if rename != "" && rename != bill.BillNumber {
			exists, err := tx.BillNumberExists(rename, bill.ID)
			if err != nil {
				return err
			}
			if exists {
				return &utils.DuplicateIdentifierError{Identifier: rename}
			}
			seq, err := e.manualSequence(rename)
			if err != nil {
				return err
			}
			bill.BillNumber = rename
			bill.SequenceNo = seq
		}
		if upd.BillDate != nil {
			if upd.BillDate.IsZero() {
				return utils.NewValidationError("bill date cannot be empty")
			}
			bill.BillDate = utils.TruncateToDate(*upd.BillDate)
		}
		if upd.Status != nil {
			if s := upd.Status.Normalize(); s != "" {
				bill.Status = s
			}
		}
		if upd.PaymentMethod != nil {
			bill.PaymentMethod = strings.TrimSpace(*upd.PaymentMethod)
		}
		if upd.Notes != nil {
			bill.Notes = *upd.Notes
		}
		bill.StockReserved = true
		bill.Items = items
		bill.ApplyTotals(models.ComputeBillTotals(items, e.roundOff))
		if err := models.VerifyBillTotals(bill); err != nil {
			return err
		}
		if err := tx.UpdateHeader(bill); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, tx, bill, models.BillEventActionUpdate); err != nil {
			return err
		}
		updated = bill
		return nil
	})
	if err != nil {
		return nil, e.finish(span, "CommitUpdate", billId, err)
	}
	return updated, nil
}

// CancelBills releases each live reservation once and marks the bill Cancelled.
// Bills already cancelled are skipped and not counted. An unknown id fails the batch.
func (e *BillEngine) CancelBills(ctx context.Context, billIds []int) (int, error) {
	ctx, span := e.tracer.Start(ctx, "BillEngine.CancelBills", trace.WithAttributes(attribute.IntSlice("bill.ids", billIds)))
	defer span.End()

	if len(billIds) == 0 {
		return 0, e.finish(span, "CancelBills", nil, utils.NewValidationError("at least one bill id is required"))
	}
	ids := sortedUnique(billIds)

	var cancelled int
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		cancelled = 0
		bills := make([]*models.Bill, 0, len(ids))
		var all []models.StockDemand
		for _, id := range ids {
			bill, err := tx.GetBill(id, true)
			if err != nil {
				return err
			}
			bills = append(bills, bill)
			if bill.StockReserved {
				all = append(all, bill.Demands()...)
			}
		}
		if _, err := tx.LockProducts(demandIds(all)); err != nil {
			return err
		}

		for _, bill := range bills {
			if bill.Status.IsCancelled() && !bill.StockReserved {
				continue
			}
			if bill.StockReserved {
				if err := e.releaseAll(tx, bill.Demands(), e.stockRef(ctx, models.StockReferenceTypeBill, bill.ID), "CancelBills"); err != nil {
					return err
				}
			}
			if err := tx.MarkStatus(bill.ID, models.BillStatusCancelled, false); err != nil {
				return err
			}
			bill.Status = models.BillStatusCancelled
			bill.StockReserved = false
			if err := e.appendEvent(ctx, tx, bill, models.BillEventActionCancel); err != nil {
				return err
			}
			cancelled++
		}
		return nil
	})
	if err != nil {
		return 0, e.finish(span, "CancelBills", billIds, err)
	}
	span.SetAttributes(attribute.Int("bill.cancelled", cancelled))
	return cancelled, nil
}

// DeleteBill removes the bill and its items, releasing stock only when the bill still
// holds a live reservation.
func (e *BillEngine) DeleteBill(ctx context.Context, billId int) error {
	ctx, span := e.tracer.Start(ctx, "BillEngine.DeleteBill", trace.WithAttributes(attribute.Int("bill.id", billId)))
	defer span.End()

	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		bill, err := tx.GetBill(billId, true)
		if err != nil {
			return err
		}
		if bill.StockReserved {
			if err := e.releaseAll(tx, bill.Demands(), e.stockRef(ctx, models.StockReferenceTypeBill, bill.ID), "DeleteBill"); err != nil {
				return err
			}
		}
		if err := e.appendEvent(ctx, tx, bill, models.BillEventActionDelete); err != nil {
			return err
		}
		return tx.DeleteBill(bill.ID)
	})
	return e.finish(span, "DeleteBill", billId, err)
}

func (e *BillEngine) GetBill(ctx context.Context, billId int) (*models.Bill, error) {
	var bill *models.Bill
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		var err error
		bill, err = tx.GetBill(billId, false)
		return err
	})
	if err != nil {
		return nil, e.finish(nil, "GetBill", billId, err)
	}
	return bill, nil
}

// ListBills excludes cancelled bills unless the filter asks for them.
func (e *BillEngine) ListBills(ctx context.Context, filter models.BillFilter) ([]*models.Bill, error) {
	var bills []*models.Bill
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		var err error
		bills, err = tx.ListBills(filter)
		return err
	})
	if err != nil {
		return nil, e.finish(nil, "ListBills", filter, err)
	}
	return bills, nil
}

func (e *BillEngine) ActiveBillsWithItems(ctx context.Context) ([]*models.Bill, error) {
	var bills []*models.Bill
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		var err error
		bills, err = tx.ListActiveBillsWithItems()
		return err
	})
	if err != nil {
		return nil, e.finish(nil, "ActiveBillsWithItems", nil, err)
	}
	return bills, nil
}

func (e *BillEngine) stockRef(ctx context.Context, refType models.StockReferenceType, id int) models.StockReference {
	operator, _ := utils.GetOperatorFromContext(ctx)
	return models.StockReference{
		Type:          refType,
		Id:            id,
		CorrelationId: utils.CorrelationIdOrEmpty(ctx),
		Operator:      operator,
	}
}

// releaseAll returns a bill's stock; lines whose product was removed have nothing to
// return to and are only logged.
func (e *BillEngine) releaseAll(tx models.StoreTx, demands []models.StockDemand, ref models.StockReference, funcName string) error {
	missing, err := models.ReleaseAll(tx, demands, ref)
	if err != nil {
		return err
	}
	for _, productId := range missing {
		config.LogError(e.logger, billWorkflowModule, funcName, "release skipped, product no longer exists",
			map[string]any{"bill_id": ref.Id, "product_id": productId},
			&utils.NotFoundError{Entity: "product", Key: productId})
	}
	return nil
}

func (e *BillEngine) appendEvent(ctx context.Context, tx models.StoreTx, bill *models.Bill, action models.BillEventAction) error {
	if !e.events {
		return nil
	}
	event, err := models.NewBillEvent(bill, action, utils.CorrelationIdOrEmpty(ctx))
	if err != nil {
		return err
	}
	return tx.AppendBillEvent(event)
}

// finish maps err into the caller-facing taxonomy. Anything unexpected becomes an
// IntegrityError and is logged for operators; context cancellation passes through.
func (e *BillEngine) finish(span trace.Span, funcName string, data any, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		recordSpanError(span, err)
		return err
	}
	if !utils.IsDomainError(err) {
		config.LogError(e.logger, billWorkflowModule, funcName, "store failure, transaction rolled back", data, err)
		err = &utils.IntegrityError{Op: funcName, Err: err}
	} else if errors.Is(err, utils.ErrIntegrityFailure) {
		config.LogError(e.logger, billWorkflowModule, funcName, "integrity check failed, transaction rolled back", data, err)
	}
	recordSpanError(span, err)
	return err
}

func recordSpanError(span trace.Span, err error) {
	if span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func validateItemOverrides(items []BillItemInput) error {
	for i, item := range items {
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return utils.NewValidationError("items[%d]: unit price cannot be negative", i)
		}
		if item.GstPercentage != nil && item.GstPercentage.IsNegative() {
			return utils.NewValidationError("items[%d]: gst percentage cannot be negative", i)
		}
	}
	return nil
}

func buildItems(inputs []BillItemInput, products map[int]*models.Product, j models.Jurisdiction) ([]models.BillItem, error) {
	items := make([]models.BillItem, 0, len(inputs))
	for _, in := range inputs {
		p, ok := products[in.ProductId]
		if !ok {
			return nil, &utils.NotFoundError{Entity: "product", Key: in.ProductId}
		}
		item := models.BillItem{
			ProductId:     p.ID,
			ProductName:   p.Name,
			ProductCode:   p.ProductCode,
			HsnCode:       p.HsnCode,
			Quantity:      in.Quantity,
			UnitPrice:     utils.DereferencePtr(in.UnitPrice, p.UnitPrice),
			GstPercentage: utils.DereferencePtr(in.GstPercentage, p.GstPercentage),
		}
		models.PriceLine(&item, j)
		items = append(items, item)
	}
	models.NumberItems(items)
	return items, nil
}

func inputDemands(items []BillItemInput) []models.StockDemand {
	demands := make([]models.StockDemand, 0, len(items))
	for _, item := range items {
		demands = append(demands, models.StockDemand{ProductId: item.ProductId, Quantity: item.Quantity})
	}
	return models.GroupQuantities(demands)
}

func demandIds(demands []models.StockDemand) []int {
	ids := make([]int, 0, len(demands))
	for _, d := range demands {
		ids = append(ids, d.ProductId)
	}
	return sortedUnique(ids)
}
