package scheduler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/events"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher drains the billing event outbox and delivers each event to the
// tenant's active webhook endpoints. An event is marked published only after
// every endpoint accepted it; tenants without endpoints publish immediately.
type Dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	client    *retryablehttp.Client
	batchSize int
}

func NewDispatcher(db *gorm.DB, log *zap.Logger, clk clock.Clock, cfg config.SchedulerConfig) *Dispatcher {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.WebhookRetries
	client.Logger = nil
	if cfg.WebhookTimeout > 0 {
		client.HTTPClient.Timeout = cfg.WebhookTimeout
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		db:        db,
		log:       log.Named("dispatcher"),
		clock:     clk,
		client:    client,
		batchSize: batchSize,
	}
}

// envelope is the JSON body posted to webhook endpoints.
type envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TenantID  string         `json:"tenant_id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

func (d *Dispatcher) DispatchEvents(ctx context.Context) (int, error) {
	var pending []events.BillingEvent
	err := d.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(d.batchSize).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	endpoints := map[snowflake.ID][]events.WebhookEndpoint{}
	published := 0
	for _, event := range pending {
		eps, ok := endpoints[event.TenantID]
		if !ok {
			eps, err = d.activeEndpoints(ctx, event.TenantID)
			if err != nil {
				return published, err
			}
			endpoints[event.TenantID] = eps
		}

		if !d.deliver(ctx, event, eps) {
			continue
		}
		if err := d.markPublished(ctx, event.ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (d *Dispatcher) activeEndpoints(ctx context.Context, tenantID snowflake.ID) ([]events.WebhookEndpoint, error) {
	var eps []events.WebhookEndpoint
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND active", tenantID).
		Order("id ASC").
		Find(&eps).Error
	return eps, err
}

func (d *Dispatcher) deliver(ctx context.Context, event events.BillingEvent, endpoints []events.WebhookEndpoint) bool {
	if len(endpoints) == 0 {
		return true
	}

	body, err := json.Marshal(envelope{
		ID:        event.ID.String(),
		Type:      event.EventType,
		TenantID:  event.TenantID.String(),
		CreatedAt: event.CreatedAt,
		Payload:   event.Payload,
	})
	if err != nil {
		d.log.Error("event payload marshal failed", zap.String("event_id", event.ID.String()), zap.Error(err))
		return false
	}

	for _, endpoint := range endpoints {
		if err := d.post(ctx, endpoint, event, body); err != nil {
			d.log.Warn("webhook delivery failed",
				zap.String("event_id", event.ID.String()),
				zap.String("url", endpoint.URL),
				zap.Error(err))
			return false
		}
	}
	return true
}

func (d *Dispatcher) post(ctx context.Context, endpoint events.WebhookEndpoint, event events.BillingEvent, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Windbill-Event", event.EventType)
	req.Header.Set("X-Windbill-Delivery", event.ID.String())
	if endpoint.Secret != "" {
		req.Header.Set("X-Windbill-Signature", "sha256="+sign(endpoint.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &deliveryError{status: resp.StatusCode}
	}
	return nil
}

func (d *Dispatcher) markPublished(ctx context.Context, eventID snowflake.ID) error {
	return d.db.WithContext(ctx).Model(&events.BillingEvent{}).
		Where("id = ?", eventID).
		Update("published", true).Error
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type deliveryError struct {
	status int
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("unexpected webhook response status %d", e.status)
}
