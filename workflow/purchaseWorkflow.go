package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

type NewPurchase struct {
	ProductId    int             `json:"product_id" validate:"required,gt=0"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	PurchaseDate *time.Time      `json:"purchase_date"`
	Notes        string          `json:"notes"`
}

// RecordPurchase stores the receipt and returns its quantity to the ledger in one
// transaction. The product's quantity is increased, never overwritten.
func (e *BillEngine) RecordPurchase(ctx context.Context, in *NewPurchase) (*models.Purchase, error) {
	ctx, span := e.tracer.Start(ctx, "BillEngine.RecordPurchase")
	defer span.End()

	if in == nil {
		return nil, e.finish(span, "RecordPurchase", nil, utils.NewValidationError("purchase is required"))
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, e.finish(span, "RecordPurchase", nil, err)
	}
	if in.BuyPrice.IsNegative() {
		return nil, e.finish(span, "RecordPurchase", nil, utils.NewValidationError("buy price cannot be negative"))
	}
	span.SetAttributes(attribute.Int("product.id", in.ProductId), attribute.Int("purchase.quantity", in.Quantity))

	purchaseDate := e.now()
	if in.PurchaseDate != nil && !in.PurchaseDate.IsZero() {
		purchaseDate = *in.PurchaseDate
	}

	var recorded *models.Purchase
	err := e.store.WithTx(ctx, func(tx models.StoreTx) error {
		products, err := tx.LockProducts([]int{in.ProductId})
		if err != nil {
			return err
		}
		if _, ok := products[in.ProductId]; !ok {
			return &utils.NotFoundError{Entity: "product", Key: in.ProductId}
		}
		purchase := &models.Purchase{
			ProductId:    in.ProductId,
			Quantity:     in.Quantity,
			BuyPrice:     in.BuyPrice,
			PurchaseDate: utils.TruncateToDate(purchaseDate),
			Notes:        in.Notes,
		}
		if err := tx.InsertPurchase(purchase); err != nil {
			return err
		}
		if _, err := models.Receive(tx, in.ProductId, in.Quantity, e.stockRef(ctx, models.StockReferenceTypePurchase, purchase.ID)); err != nil {
			return err
		}
		recorded = purchase
		return nil
	})
	if err != nil {
		return nil, e.finish(span, "RecordPurchase", in, err)
	}
	span.AddEvent("purchase recorded", trace.WithAttributes(attribute.Int("purchase.id", recorded.ID)))
	return recorded, nil
}
