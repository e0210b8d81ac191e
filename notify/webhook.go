package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/ledger"
)

// Alerter delivers a low-stock report.
type Alerter interface {
	AlertLowStock(ctx context.Context, report ledger.LowStockReport) error
}

// AlertVariant is one variant in an alert payload.
type AlertVariant struct {
	VariantID    string `json:"variant_id"`
	ProductID    string `json:"product_id"`
	SKU          string `json:"sku,omitempty"`
	InventoryQty int64  `json:"inventory_qty"`
}

// AlertPayload is the JSON body POSTed by WebhookAlerter.
type AlertPayload struct {
	BusinessID  string         `json:"business_id"`
	Threshold   int64          `json:"threshold"`
	Low         []AlertVariant `json:"low"`
	Negative    []AlertVariant `json:"negative"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// NewAlertPayload flattens a report for transport.
func NewAlertPayload(report ledger.LowStockReport, at time.Time) AlertPayload {
	return AlertPayload{
		BusinessID:  string(report.BusinessID),
		Threshold:   report.Threshold,
		Low:         alertVariants(report.Low),
		Negative:    alertVariants(report.Negative),
		GeneratedAt: at.UTC(),
	}
}

func alertVariants(vs []ledger.Variant) []AlertVariant {
	out := make([]AlertVariant, 0, len(vs))
	for _, v := range vs {
		out = append(out, AlertVariant{
			VariantID:    string(v.VariantID),
			ProductID:    string(v.ProductID),
			SKU:          v.SKU,
			InventoryQty: v.InventoryQty,
		})
	}
	return out
}

// =============================================================================
// WEBHOOK
// =============================================================================

// WebhookAlerter is a resty-backed Alerter.
type WebhookAlerter struct {
	httpClient *resty.Client
	url        string
	clock      func() time.Time
}

var _ Alerter = (*WebhookAlerter)(nil)

type webhookError struct {
	Error string `json:"error"`
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)

	return &WebhookAlerter{
		httpClient: client,
		url:        url,
		clock:      time.Now,
	}
}

func (a *WebhookAlerter) AlertLowStock(ctx context.Context, report ledger.LowStockReport) error {
	apiErr := new(webhookError)

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(NewAlertPayload(report, a.clock())).
		SetError(apiErr).
		Post(a.url)
	if err != nil {
		return fmt.Errorf("send low stock alert: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("low stock webhook error: code=%d, message=%s", resp.StatusCode(), apiErr.Error)
	}
	return nil
}

// =============================================================================
// LOG
// =============================================================================

// LogAlerter writes alerts to the log when no webhook is configured.
type LogAlerter struct {
	Logger *zap.Logger
}

func (a LogAlerter) AlertLowStock(_ context.Context, report ledger.LowStockReport) error {
	a.Logger.Warn("low stock",
		zap.String("business_id", string(report.BusinessID)),
		zap.Int64("threshold", report.Threshold),
		zap.Int("low", len(report.Low)),
		zap.Int("negative", len(report.Negative)))
	return nil
}
