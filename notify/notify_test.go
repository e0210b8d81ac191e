package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/config"
	"github.com/warp/inventory-ledger/ledger"
)

func sampleEntry() ledger.Entry {
	return ledger.Entry{
		ID:          "entry-1",
		Seq:         7,
		BusinessID:  "biz-1",
		VariantID:   "v1",
		ProductID:   "p1",
		PreviousQty: 10,
		NewQty:      7,
		ChangeQty:   -3,
		Reason:      ledger.ReasonSale,
		OrderID:     "order-1",
		CreatedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// FANOUT
// =============================================================================

func TestFanout(t *testing.T) {
	var got []ledger.EntryID
	ok := ledger.PublisherFunc(func(_ context.Context, e ledger.Entry) error {
		got = append(got, e.ID)
		return nil
	})
	failing := ledger.PublisherFunc(func(context.Context, ledger.Entry) error {
		return errors.New("broker down")
	})

	err := Fanout{ok, failing, ok}.PublishEntry(context.Background(), sampleEntry())

	assert.EqualError(t, err, "broker down")
	assert.Equal(t, []ledger.EntryID{"entry-1", "entry-1"}, got, "a failing publisher does not stop the others")
	assert.NoError(t, Fanout(nil).PublishEntry(context.Background(), sampleEntry()))
}

// =============================================================================
// WEBHOOK
// =============================================================================

func TestWebhookAlerter(t *testing.T) {
	var received AlertPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	alerter := NewWebhookAlerter(srv.URL)
	alerter.clock = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	report := ledger.LowStockReport{
		BusinessID: "biz-1",
		Threshold:  5,
		Low:        []ledger.Variant{{VariantID: "v1", ProductID: "p1", SKU: "SKU-1", InventoryQty: 2}},
		Negative:   []ledger.Variant{{VariantID: "v2", ProductID: "p1", InventoryQty: -1}},
	}
	require.NoError(t, alerter.AlertLowStock(context.Background(), report))

	assert.Equal(t, "biz-1", received.BusinessID)
	assert.Equal(t, int64(5), received.Threshold)
	require.Len(t, received.Low, 1)
	assert.Equal(t, "SKU-1", received.Low[0].SKU)
	require.Len(t, received.Negative, 1)
	assert.Equal(t, int64(-1), received.Negative[0].InventoryQty)
	assert.True(t, received.GeneratedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestWebhookAlerter_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unknown channel"}`))
	}))
	defer srv.Close()

	err := NewWebhookAlerter(srv.URL).AlertLowStock(context.Background(), ledger.LowStockReport{BusinessID: "biz-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code=400")
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestLogAlerter(t *testing.T) {
	assert.NoError(t, LogAlerter{Logger: zap.NewNop()}.AlertLowStock(context.Background(), ledger.LowStockReport{}))
}

// =============================================================================
// REDIS
// =============================================================================

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisPublisher(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	stream := "test:inventory:entries"
	client.Del(ctx, stream)
	defer client.Del(ctx, stream)

	pub := NewRedisPublisher(client, stream)
	require.NoError(t, pub.PublishEntry(ctx, sampleEntry()))

	msgs, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "entry-1", msgs[0].Values["entry_id"])
	assert.Equal(t, "-3", msgs[0].Values["change_qty"])
	assert.Equal(t, "sale", msgs[0].Values["reason"])
}

func TestStreamFields(t *testing.T) {
	fields := streamFields(sampleEntry())
	assert.Equal(t, "7", fields["seq"])
	assert.Equal(t, "10", fields["previous_qty"])
	assert.Equal(t, "2025-03-01T09:00:00Z", fields["created_at"])
	assert.Equal(t, DefaultStream, NewRedisPublisher(nil, "").stream)
}

// =============================================================================
// MONGO
// =============================================================================

func TestMongoArchiver(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	archiver, err := NewMongoArchiver(ctx, uri, "inventory_test")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	defer archiver.Close(context.Background())
	_, err = archiver.collection.DeleteMany(ctx, map[string]any{})
	require.NoError(t, err)

	e := sampleEntry()
	require.NoError(t, archiver.PublishEntry(ctx, e))
	require.NoError(t, archiver.PublishEntry(ctx, e), "replayed publish is a no-op")

	var got entryDocument
	require.NoError(t, archiver.collection.FindOne(ctx, bson.M{"_id": string(e.ID)}).Decode(&got))
	n, err := archiver.collection.CountDocuments(ctx, bson.M{"variant_id": string(e.VariantID)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, e.ChangeQty, got.ChangeQty)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
}

func TestToDocument(t *testing.T) {
	e := sampleEntry()
	d := toDocument(e)
	assert.Equal(t, "entry-1", d.ID)
	assert.Equal(t, int64(7), d.Seq)
	assert.Equal(t, "sale", d.Reason)
	assert.Equal(t, e.OrderID, d.OrderID)
	assert.Equal(t, time.UTC, d.CreatedAt.Location())
}

// =============================================================================
// OPEN
// =============================================================================

func TestOpen_NothingConfigured(t *testing.T) {
	pub, closeAll, err := Open(context.Background(), &config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, pub)
	closeAll()
}

func TestOpen_UnreachableRedis(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:1", Stream: DefaultStream}}

	_, _, err := Open(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}
