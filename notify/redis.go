package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/inventory-ledger/ledger"
)

const (
	DefaultStream       = "inventory:entries"
	defaultStreamMaxLen = 100_000
)

// RedisPublisher appends entries to a capped Redis stream so downstream
// consumers (search index, storefront cache) can follow stock changes.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ ledger.Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: defaultStreamMaxLen}
}

func (p *RedisPublisher) PublishEntry(ctx context.Context, e ledger.Entry) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: streamFields(e),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

func streamFields(e ledger.Entry) map[string]interface{} {
	return map[string]interface{}{
		"entry_id":     string(e.ID),
		"seq":          strconv.FormatInt(e.Seq, 10),
		"business_id":  string(e.BusinessID),
		"variant_id":   string(e.VariantID),
		"product_id":   string(e.ProductID),
		"previous_qty": strconv.FormatInt(e.PreviousQty, 10),
		"new_qty":      strconv.FormatInt(e.NewQty, 10),
		"change_qty":   strconv.FormatInt(e.ChangeQty, 10),
		"reason":       string(e.Reason),
		"order_id":     e.OrderID,
		"actor_id":     e.ActorID,
		"created_at":   e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
