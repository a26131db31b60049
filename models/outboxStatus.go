package models

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
)

// OutboxStatus is one publish status bucket of the bill_events outbox.
type OutboxStatus struct {
	PublishStatus string     `json:"publish_status"`
	Count         int64      `json:"count"`
	OldestAt      *time.Time `json:"oldest_at"`
}

// GetOutboxStatus counts bill events per publish status. Every status is reported,
// empty ones with a zero count, in the order a row moves through them.
func GetOutboxStatus(ctx context.Context, db *gorm.DB) ([]OutboxStatus, error) {
	var rows []struct {
		PublishStatus string
		Count         int64
		OldestAt      *time.Time
	}
	if err := db.WithContext(ctx).
		Model(&BillEvent{}).
		Select("publish_status, COUNT(*) AS count, MIN(created_at) AS oldest_at").
		Group("publish_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	order := map[string]int{
		OutboxPublishStatusPending:    0,
		OutboxPublishStatusProcessing: 1,
		OutboxPublishStatusFailed:     2,
		OutboxPublishStatusDead:       3,
		OutboxPublishStatusSent:       4,
	}
	byStatus := make(map[string]OutboxStatus, len(order))
	for status := range order {
		byStatus[status] = OutboxStatus{PublishStatus: status}
	}
	for _, r := range rows {
		byStatus[r.PublishStatus] = OutboxStatus{PublishStatus: r.PublishStatus, Count: r.Count, OldestAt: r.OldestAt}
	}

	out := make([]OutboxStatus, 0, len(byStatus))
	for _, s := range byStatus {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := order[out[i].PublishStatus]
		oj, jok := order[out[j].PublishStatus]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].PublishStatus < out[j].PublishStatus
	})
	return out, nil
}
