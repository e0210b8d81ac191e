package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/ledger/ledgertest"
	"github.com/warp/inventory-ledger/ledger/store"
	"github.com/warp/inventory-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const biz = ledgertest.Business

type backend struct {
	name string
	open func(t *testing.T) ledger.Store
}

// backends lists the stores every property test runs against.
func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) ledger.Store { return store.NewMemory() }},
		{"sqlite", func(t *testing.T) ledger.Store {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return ledgertest.Epoch.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

// recorder collects published entries.
type recorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (r *recorder) PublishEntry(_ context.Context, e ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) all() []ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Entry(nil), r.entries...)
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	store     ledger.Store
	svc       *ledger.Service
	published *recorder
}

func newFixture(t *testing.T, st ledger.Store, opts ...func(*ledger.MutatorConfig)) *fixture {
	t.Helper()
	rec := &recorder{}
	cfg := ledger.MutatorConfig{
		Backoff:   time.Millisecond,
		Clock:     stepClock(),
		Publisher: rec,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := ledger.NewMutator(st, cfg)
	return &fixture{
		t:         t,
		ctx:       context.Background(),
		store:     st,
		svc:       ledger.NewService(st, m, nil, nil),
		published: rec,
	}
}

func newMemoryFixture(t *testing.T, opts ...func(*ledger.MutatorConfig)) (*fixture, *store.Memory) {
	mem := store.NewMemory()
	return newFixture(t, mem, opts...), mem
}

func (f *fixture) variant(id ledger.VariantID, sku string, qty int64) {
	f.t.Helper()
	_, err := f.svc.CreateVariant(f.ctx, ledgertest.NewVariant(id, sku, qty))
	require.NoError(f.t, err)
}

func (f *fixture) qty(id ledger.VariantID) int64 {
	f.t.Helper()
	v, err := f.svc.GetVariant(f.ctx, biz, id)
	require.NoError(f.t, err)
	return v.InventoryQty
}

func (f *fixture) mutate(id ledger.VariantID, change ledger.Change, reason ledger.Reason, orderID string) (ledger.MutationResult, error) {
	return f.svc.Mutate(f.ctx, ledger.MutationRequest{
		BusinessID: biz,
		VariantID:  id,
		Change:     change,
		Reason:     reason,
		OrderID:    orderID,
	})
}

func (f *fixture) entries(id ledger.VariantID) []ledger.Entry {
	f.t.Helper()
	entries, err := f.store.VariantEntries(f.ctx, biz, id)
	require.NoError(f.t, err)
	return entries
}

func line(variant ledger.VariantID, qty int64) ledger.OrderLine {
	return ledger.OrderLine{ProductID: ledgertest.Product, VariantID: variant, Quantity: qty}
}
