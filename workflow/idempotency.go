package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
)

const (
	idempotencyKeyPrefix = "idem:bill:create:"
	idempotencyTTL       = 24 * time.Hour
)

// IdempotencyStore remembers which bill a client request key produced.
type IdempotencyStore interface {
	Get(key string, dest interface{}) (bool, error)
	Set(key string, obj interface{}, exp time.Duration) error
}

type redisIdempotencyStore struct{}

func (redisIdempotencyStore) Get(key string, dest interface{}) (bool, error) {
	return config.GetRedisObject(key, dest)
}

func (redisIdempotencyStore) Set(key string, obj interface{}, exp time.Duration) error {
	return config.SetRedisObject(key, obj, exp)
}

func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(e *BillEngine) { e.idempotency = store }
}

type idempotencyRecord struct {
	BillId     int    `json:"bill_id"`
	BillNumber string `json:"bill_number"`
}

// CreateBillIdempotent replays the bill a previous request with the same key created.
// The bool result is true for a replay. An empty key behaves like CreateBill.
func (e *BillEngine) CreateBillIdempotent(ctx context.Context, key string, in *NewBill) (*models.Bill, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" || e.idempotency == nil {
		bill, err := e.CreateBill(ctx, in)
		return bill, false, err
	}
	cacheKey := idempotencyKeyPrefix + key

	release := acquireIdempotencyLock(ctx, e.locker, e.logger, cacheKey)
	defer release()

	var rec idempotencyRecord
	found, err := e.idempotency.Get(cacheKey, &rec)
	if err != nil {
		config.LogError(e.logger, "idempotency.go", "CreateBillIdempotent", "reading idempotency key", key, err)
	}
	if found && rec.BillId > 0 {
		bill, err := e.GetBill(ctx, rec.BillId)
		if err != nil {
			return nil, false, err
		}
		return bill, true, nil
	}

	bill, err := e.CreateBill(ctx, in)
	if err != nil {
		return nil, false, err
	}
	if err := e.idempotency.Set(cacheKey, idempotencyRecord{BillId: bill.ID, BillNumber: bill.BillNumber}, idempotencyTTL); err != nil {
		config.LogError(e.logger, "idempotency.go", "CreateBillIdempotent", "storing idempotency key", key, err)
	}
	return bill, false, nil
}
