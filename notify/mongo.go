package notify

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warp/inventory-ledger/ledger"
)

const entriesCollection = "inventory_entries"

// MongoArchiver keeps a long-term copy of every entry outside the
// transactional store. Inserts are keyed by entry id, so a replayed publish
// is a no-op.
type MongoArchiver struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ ledger.Publisher = (*MongoArchiver)(nil)

type entryDocument struct {
	ID          string    `bson:"_id"`
	Seq         int64     `bson:"seq"`
	BusinessID  string    `bson:"business_id"`
	VariantID   string    `bson:"variant_id"`
	ProductID   string    `bson:"product_id"`
	PreviousQty int64     `bson:"previous_qty"`
	NewQty      int64     `bson:"new_qty"`
	ChangeQty   int64     `bson:"change_qty"`
	Reason      string    `bson:"reason"`
	Note        string    `bson:"note,omitempty"`
	OrderID     string    `bson:"order_id,omitempty"`
	ActorID     string    `bson:"actor_id,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// NewMongoArchiver connects, pings and ensures the lookup index.
func NewMongoArchiver(ctx context.Context, uri, dbName string) (*MongoArchiver, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(dbName).Collection(entriesCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "variant_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create entries index: %w", err)
	}

	return &MongoArchiver{client: client, collection: coll}, nil
}

func (a *MongoArchiver) PublishEntry(ctx context.Context, e ledger.Entry) error {
	_, err := a.collection.InsertOne(ctx, toDocument(e))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("archive entry %s: %w", e.ID, err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (a *MongoArchiver) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func toDocument(e ledger.Entry) entryDocument {
	return entryDocument{
		ID:          string(e.ID),
		Seq:         e.Seq,
		BusinessID:  string(e.BusinessID),
		VariantID:   string(e.VariantID),
		ProductID:   string(e.ProductID),
		PreviousQty: e.PreviousQty,
		NewQty:      e.NewQty,
		ChangeQty:   e.ChangeQty,
		Reason:      string(e.Reason),
		Note:        e.Note,
		OrderID:     e.OrderID,
		ActorID:     e.ActorID,
		CreatedAt:   e.CreatedAt.UTC(),
	}
}
