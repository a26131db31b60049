package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// BillStatus is an open set. Only Cancelled carries meaning to the engine.
type BillStatus string

const (
	BillStatusPending   BillStatus = "Pending"
	BillStatusPaid      BillStatus = "Paid"
	BillStatusCancelled BillStatus = "Cancelled"
)

func (s BillStatus) IsCancelled() bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), string(BillStatusCancelled))
}

// Normalize trims and canonicalises the reserved value; other statuses pass through.
func (s BillStatus) Normalize() BillStatus {
	v := BillStatus(strings.TrimSpace(string(s)))
	if v.IsCancelled() {
		return BillStatusCancelled
	}
	return v
}

type IdentifierMode string

const (
	IdentifierModeAuto   IdentifierMode = "auto"
	IdentifierModeManual IdentifierMode = "manual"
)

// convert input to enum type
func (m *IdentifierMode) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("identifier mode must be string")
	}
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "", "auto":
		*m = IdentifierModeAuto
	case "manual":
		*m = IdentifierModeManual
	default:
		return errors.New("invalid identifier mode")
	}
	return nil
}

type StockReferenceType string

const (
	StockReferenceTypeBill     StockReferenceType = "BILL"
	StockReferenceTypePurchase StockReferenceType = "PURCHASE"
)

type StockMovementReason string

const (
	StockMovementReasonReserve StockMovementReason = "reserve"
	StockMovementReasonRelease StockMovementReason = "release"
	StockMovementReasonReceive StockMovementReason = "receive"
)

type BillEventAction string

const (
	BillEventActionCreate BillEventAction = "C"
	BillEventActionUpdate BillEventAction = "U"
	BillEventActionCancel BillEventAction = "X"
	BillEventActionDelete BillEventAction = "D"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
