package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

type Bill struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BillNumber    string          `gorm:"size:100;uniqueIndex;not null" json:"bill_number"`
	SequenceNo    int64           `gorm:"index;not null;default:0" json:"sequence_no"`
	CustomerId    int             `gorm:"index;not null" json:"customer_id"`
	CustomerName  string          `gorm:"size:255" json:"customer_name"`
	CustomerState string          `gorm:"size:100" json:"customer_state"`
	Jurisdiction  Jurisdiction    `gorm:"size:10;not null" json:"jurisdiction"`
	BillDate      time.Time       `gorm:"not null" json:"bill_date"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	GstAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gst_amount"`
	RoundOff      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"round_off"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status        BillStatus      `gorm:"size:50;index;not null;default:'Pending'" json:"status"`
	PaymentMethod string          `gorm:"size:50" json:"payment_method"`
	Notes         string          `gorm:"type:text" json:"notes"`
	StockReserved bool            `gorm:"not null;default:false" json:"stock_reserved"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	Items         []BillItem      `gorm:"foreignKey:BillId;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BillItem snapshots product name, codes and price at the time of sale.
type BillItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BillId        int             `gorm:"uniqueIndex:idx_bill_item_line;not null" json:"bill_id"`
	LineNo        int             `gorm:"uniqueIndex:idx_bill_item_line;not null" json:"line_no"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	ProductName   string          `gorm:"size:255;not null" json:"product_name"`
	ProductCode   string          `gorm:"size:100" json:"product_code"`
	HsnCode       string          `gorm:"size:50" json:"hsn_code"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	GstPercentage decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"gst_percentage"`
	LineSubtotal  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_subtotal"`
	GstAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gst_amount"`
	Cgst          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cgst"`
	Sgst          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sgst"`
	Igst          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"igst"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
}

type BillTotals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	GstAmount   decimal.Decimal `json:"gst_amount"`
	RoundOff    decimal.Decimal `json:"round_off"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type BillFilter struct {
	IncludeCancelled bool
	CustomerId       int
	Status           BillStatus
}

// PriceLine fills the derived money fields of one item. Rounding happens here and
// nowhere else: header totals are exact sums of these values.
func PriceLine(item *BillItem, j Jurisdiction) {
	item.LineSubtotal = utils.CalculateLineSubtotal(item.Quantity, item.UnitPrice)
	split := SplitTax(j, item.LineSubtotal, item.GstPercentage)
	item.GstAmount = split.Total
	item.Cgst = split.Cgst
	item.Sgst = split.Sgst
	item.Igst = split.Igst
	item.Total = item.LineSubtotal.Add(item.GstAmount)
}

// ComputeBillTotals sums the already rounded line values. With roundOff the grand total
// is brought to the nearest whole unit and the adjustment is kept in RoundOff.
func ComputeBillTotals(items []BillItem, roundOff bool) BillTotals {
	totals := BillTotals{
		Subtotal:    decimal.Zero,
		GstAmount:   decimal.Zero,
		RoundOff:    decimal.Zero,
		TotalAmount: decimal.Zero,
	}
	for _, item := range items {
		totals.Subtotal = totals.Subtotal.Add(item.LineSubtotal)
		totals.GstAmount = totals.GstAmount.Add(item.GstAmount)
		totals.TotalAmount = totals.TotalAmount.Add(item.Total)
	}
	if roundOff {
		totals.RoundOff = utils.CalculateRoundOff(totals.TotalAmount)
		totals.TotalAmount = totals.TotalAmount.Add(totals.RoundOff)
	}
	return totals
}

func (b *Bill) ApplyTotals(t BillTotals) {
	b.Subtotal = t.Subtotal
	b.GstAmount = t.GstAmount
	b.RoundOff = t.RoundOff
	b.TotalAmount = t.TotalAmount
}

// VerifyBillTotals re-derives every line and the header and reports the first mismatch.
func VerifyBillTotals(b *Bill) error {
	subtotal := decimal.Zero
	gst := decimal.Zero
	total := decimal.Zero
	for _, item := range b.Items {
		expected := utils.CalculateLineSubtotal(item.Quantity, item.UnitPrice)
		if !item.LineSubtotal.Equal(expected) {
			return totalsMismatch(b, fmt.Sprintf("line %d subtotal %s, expected %s", item.LineNo, item.LineSubtotal, expected))
		}
		if !item.Cgst.Add(item.Sgst).Add(item.Igst).Equal(item.GstAmount) {
			return totalsMismatch(b, fmt.Sprintf("line %d tax split does not add up to %s", item.LineNo, item.GstAmount))
		}
		if !item.Total.Equal(item.LineSubtotal.Add(item.GstAmount)) {
			return totalsMismatch(b, fmt.Sprintf("line %d total %s, expected %s", item.LineNo, item.Total, item.LineSubtotal.Add(item.GstAmount)))
		}
		subtotal = subtotal.Add(item.LineSubtotal)
		gst = gst.Add(item.GstAmount)
		total = total.Add(item.Total)
	}
	if !b.Subtotal.Equal(subtotal) {
		return totalsMismatch(b, fmt.Sprintf("subtotal %s, expected %s", b.Subtotal, subtotal))
	}
	if !b.GstAmount.Equal(gst) {
		return totalsMismatch(b, fmt.Sprintf("gst amount %s, expected %s", b.GstAmount, gst))
	}
	if expected := total.Add(b.RoundOff); !b.TotalAmount.Equal(expected) {
		return totalsMismatch(b, fmt.Sprintf("total amount %s, expected %s", b.TotalAmount, expected))
	}
	return nil
}

func totalsMismatch(b *Bill, detail string) error {
	return &utils.IntegrityError{
		Op:  "VerifyBillTotals",
		Err: fmt.Errorf("bill %s: %s", b.BillNumber, detail),
	}
}

// Demands groups the bill's items per product.
func (b *Bill) Demands() []StockDemand {
	demands := make([]StockDemand, 0, len(b.Items))
	for _, item := range b.Items {
		demands = append(demands, StockDemand{ProductId: item.ProductId, Quantity: item.Quantity})
	}
	return GroupQuantities(demands)
}

// ReservedQuantities is what the bill currently holds in the ledger, per product.
// A bill whose reservation was released holds nothing.
func (b *Bill) ReservedQuantities() map[int]int {
	out := make(map[int]int)
	if !b.StockReserved {
		return out
	}
	for _, d := range b.Demands() {
		out[d.ProductId] = d.Quantity
	}
	return out
}

// NumberItems assigns line numbers 1..n in slice order.
func NumberItems(items []BillItem) {
	for i := range items {
		items[i].LineNo = i + 1
	}
}
