package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/ledger/ledgertest"
	"github.com/warp/inventory-ledger/ledger/store"
)

type alertSink struct {
	mu      sync.Mutex
	reports []ledger.LowStockReport
	err     error
}

func (a *alertSink) AlertLowStock(_ context.Context, r ledger.LowStockReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.reports = append(a.reports, r)
	return nil
}

func newService(t *testing.T, variants ...ledger.Variant) *ledger.Service {
	t.Helper()
	mem := store.NewMemory()
	svc := ledger.NewService(mem, ledger.NewMutator(mem, ledger.MutatorConfig{}), nil, nil)
	for _, v := range variants {
		_, err := svc.CreateVariant(context.Background(), v)
		require.NoError(t, err)
	}
	return svc
}

func variantIn(biz ledger.BusinessID, id ledger.VariantID, qty int64) ledger.Variant {
	v := ledgertest.NewVariant(id, "", qty)
	v.BusinessID = biz
	return v
}

func TestRunNow_AlertsOnlyTenantsWithLowStock(t *testing.T) {
	// GIVEN one tenant with low stock and one fully stocked
	svc := newService(t,
		variantIn("biz-low", "a", 2),
		variantIn("biz-low", "b", -1),
		variantIn("biz-ok", "c", 50),
	)
	sink := &alertSink{}
	s := New(svc, sink, nil)

	// WHEN the check runs
	summary, err := s.RunNow(context.Background())

	// THEN only the low tenant is alerted
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Checked: 2, Alerted: 1}, summary)
	require.Len(t, sink.reports, 1)
	report := sink.reports[0]
	assert.Equal(t, ledger.BusinessID("biz-low"), report.BusinessID)
	assert.Equal(t, int64(DefaultThreshold), report.Threshold)
	assert.Len(t, report.Low, 1)
	assert.Len(t, report.Negative, 1)
}

func TestRunNow_AlertFailureIsCounted(t *testing.T) {
	svc := newService(t, variantIn("biz-1", "a", 0))
	s := New(svc, &alertSink{err: errors.New("webhook down")}, nil)

	summary, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Checked: 1, Failed: 1}, summary)
}

func TestRunNow_InvalidThreshold(t *testing.T) {
	svc := newService(t, variantIn("biz-1", "a", 0))
	s := New(svc, &alertSink{}, nil)
	s.Threshold = -1

	summary, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestStartStop(t *testing.T) {
	s := New(newService(t), &alertSink{}, nil)
	s.Schedule = "@every 1h"

	_, ok := s.NextRun()
	assert.False(t, ok)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	next, ok := s.NextRun()
	assert.True(t, ok)
	assert.False(t, next.IsZero())

	s.Stop()
	s.Stop()
	_, ok = s.NextRun()
	assert.False(t, ok)
}

func TestStart_Disabled(t *testing.T) {
	s := New(newService(t), &alertSink{}, nil)
	s.Enabled = false

	require.NoError(t, s.Start())
	_, ok := s.NextRun()
	assert.False(t, ok)
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New(newService(t), &alertSink{}, nil)
	s.Schedule = "not a cron line"

	assert.Error(t, s.Start())
}
