/*
scheduler.go - Periodic low-stock alerting

PURPOSE:
  Runs the low-stock report for every tenant on a cron schedule and hands
  non-empty reports to an Alerter (webhook or log).

CONFIGURATION:
  - Schedule: cron expression or descriptor (default: @hourly)
  - Threshold: low-stock threshold applied to every tenant (default: 5)
  - Enabled: whether the scheduler is active (default: true)

USAGE:
  s := scheduler.New(svc, alerter, logger)
  if err := s.Start(); err != nil { ... }
  defer s.Stop()

SEE ALSO:
  - ledger/query.go: LowStock
  - notify/webhook.go: WebhookAlerter, LogAlerter
*/
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/notify"
)

const (
	DefaultSchedule  = "@hourly"
	DefaultThreshold = 5
	runTimeout       = 2 * time.Minute
)

// LowStockSource is the read side the scheduler needs.
type LowStockSource interface {
	Businesses(ctx context.Context) ([]ledger.BusinessID, error)
	LowStock(ctx context.Context, businessID ledger.BusinessID, threshold int64) (ledger.LowStockReport, error)
}

// RunSummary describes one pass over all tenants.
type RunSummary struct {
	Checked int
	Alerted int
	Failed  int
}

// LowStockScheduler alerts on low stock on a cron schedule.
type LowStockScheduler struct {
	Schedule  string
	Threshold int64
	Enabled   bool

	source  LowStockSource
	alerter notify.Alerter
	logger  *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
}

func New(source LowStockSource, alerter notify.Alerter, logger *zap.Logger) *LowStockScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockScheduler{
		Schedule:  DefaultSchedule,
		Threshold: DefaultThreshold,
		Enabled:   true,
		source:    source,
		alerter:   alerter,
		logger:    logger,
	}
}

// Start registers the job and starts the cron runner. It is a no-op when
// the scheduler is disabled or already running.
func (s *LowStockScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("low stock scheduler disabled, not starting")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(s.Schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("schedule low stock check %q: %w", s.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.entryID = id

	s.logger.Info("low stock scheduler started",
		zap.String("schedule", s.Schedule),
		zap.Int64("threshold", s.Threshold))
	return nil
}

// Stop stops the cron runner and waits for a running job to finish.
func (s *LowStockScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("low stock scheduler stopped")
}

// NextRun reports when the job fires next. ok is false when not running.
func (s *LowStockScheduler) NextRun() (next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return time.Time{}, false
	}
	return s.cron.Entry(s.entryID).Next, true
}

func (s *LowStockScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error("low stock check failed", zap.Error(err))
	}
}

// RunNow checks every tenant once. A failure for one tenant is logged and
// counted; it does not stop the pass.
func (s *LowStockScheduler) RunNow(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	businesses, err := s.source.Businesses(ctx)
	if err != nil {
		return summary, fmt.Errorf("list businesses: %w", err)
	}

	for _, biz := range businesses {
		summary.Checked++

		report, err := s.source.LowStock(ctx, biz, s.Threshold)
		if err != nil {
			summary.Failed++
			s.logger.Error("low stock query failed", zap.String("business_id", string(biz)), zap.Error(err))
			continue
		}
		if report.Empty() {
			continue
		}

		if err := s.alerter.AlertLowStock(ctx, report); err != nil {
			summary.Failed++
			s.logger.Error("low stock alert failed", zap.String("business_id", string(biz)), zap.Error(err))
			continue
		}
		summary.Alerted++
	}

	s.logger.Info("low stock check completed",
		zap.Int("checked", summary.Checked),
		zap.Int("alerted", summary.Alerted),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
