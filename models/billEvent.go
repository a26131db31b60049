package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
)

// BillEvent is an outbox row written in the same transaction as the bill transition it
// describes. cmd/outbox-publish ships PENDING/FAILED rows to Pub/Sub after commit.
type BillEvent struct {
	ID               int             `gorm:"primary_key;index:idx_bill_event_dispatch,priority:3" json:"id"`
	BillId           int             `gorm:"index;not null" json:"bill_id"`
	BillNumber       string          `gorm:"size:100;not null" json:"bill_number"`
	Action           BillEventAction `gorm:"size:1;not null" json:"action"`
	Payload          []byte          `json:"payload"`
	PublishStatus    string          `gorm:"size:20;index;not null;default:'PENDING';index:idx_bill_event_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishAttempts  int             `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time      `gorm:"index:idx_bill_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time      `json:"locked_at"`
	LockedBy         *string         `gorm:"size:100" json:"locked_by"`
	PublishedAt      *time.Time      `gorm:"index" json:"published_at"`
	PubSubMessageId  *string         `gorm:"size:255" json:"pubsub_message_id"`
	LastPublishError *string         `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewBillEvent snapshots bill as the JSON payload.
func NewBillEvent(bill *Bill, action BillEventAction, correlationId string) (*BillEvent, error) {
	payload, err := json.Marshal(bill)
	if err != nil {
		return nil, err
	}
	return &BillEvent{
		BillId:        bill.ID,
		BillNumber:    bill.BillNumber,
		Action:        action,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}, nil
}

func ConvertToBillEventMessage(record BillEvent) config.BillEventMessage {
	return config.BillEventMessage{
		ID:            record.ID,
		BillId:        record.BillId,
		BillNumber:    record.BillNumber,
		Action:        string(record.Action),
		OccurredAt:    record.CreatedAt,
		Payload:       json.RawMessage(record.Payload),
		CorrelationId: record.CorrelationId,
	}
}
