package scheduler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type receivedDelivery struct {
	event     string
	signature string
	body      []byte
}

func newDispatchTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&events.BillingEvent{}, &events.WebhookEndpoint{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	return db, node
}

func TestDispatchEventsDeliversAndSigns(t *testing.T) {
	db, node := newDispatchTestDB(t)
	now := time.Date(2025, time.May, 2, 8, 0, 0, 0, time.UTC)
	tenantID := node.Generate()

	var mu sync.Mutex
	var deliveries []receivedDelivery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		deliveries = append(deliveries, receivedDelivery{
			event:     r.Header.Get("X-Windbill-Event"),
			signature: r.Header.Get("X-Windbill-Signature"),
			body:      body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, db.Create(&events.WebhookEndpoint{
		ID: node.Generate(), TenantID: tenantID, URL: server.URL,
		Secret: "whsec_test", Active: true, CreatedAt: now, UpdatedAt: now,
	}).Error)

	outbox := events.NewOutbox(db, node)
	require.NoError(t, outbox.Publish(context.Background(), events.Event{
		TenantID:  tenantID,
		Type:      events.EventInvoiceCreated,
		Payload:   map[string]any{"invoice_number": "RG-2025-0001"},
		DedupeKey: "exec-1:target-1",
	}))

	d := NewDispatcher(db, zap.NewNop(), fixedClock{now: now}, config.SchedulerConfig{
		BatchSize:      10,
		WebhookRetries: 0,
		WebhookTimeout: 5 * time.Second,
	})
	published, err := d.DispatchEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deliveries, 1)
	assert.Equal(t, events.EventInvoiceCreated, deliveries[0].event)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(deliveries[0].body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), deliveries[0].signature)

	var body envelope
	require.NoError(t, json.Unmarshal(deliveries[0].body, &body))
	assert.Equal(t, events.EventInvoiceCreated, body.Type)
	assert.Equal(t, "RG-2025-0001", body.Payload["invoice_number"])

	var stored events.BillingEvent
	require.NoError(t, db.First(&stored).Error)
	assert.True(t, stored.Published)
}

func TestDispatchEventsKeepsFailedDeliveriesPending(t *testing.T) {
	db, node := newDispatchTestDB(t)
	now := time.Date(2025, time.May, 2, 8, 0, 0, 0, time.UTC)
	tenantID := node.Generate()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	require.NoError(t, db.Create(&events.WebhookEndpoint{
		ID: node.Generate(), TenantID: tenantID, URL: server.URL,
		Active: true, CreatedAt: now, UpdatedAt: now,
	}).Error)

	outbox := events.NewOutbox(db, node)
	require.NoError(t, outbox.Publish(context.Background(), events.Event{
		TenantID: tenantID,
		Type:     events.EventRuleExecuted,
		Payload:  map[string]any{"status": "success"},
	}))

	d := NewDispatcher(db, zap.NewNop(), fixedClock{now: now}, config.SchedulerConfig{BatchSize: 10})
	published, err := d.DispatchEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)

	var stored events.BillingEvent
	require.NoError(t, db.First(&stored).Error)
	assert.False(t, stored.Published)
}

func TestDispatchEventsPublishesWithoutEndpoints(t *testing.T) {
	db, node := newDispatchTestDB(t)
	tenantID := node.Generate()

	outbox := events.NewOutbox(db, node)
	require.NoError(t, outbox.Publish(context.Background(), events.Event{
		TenantID: tenantID,
		Type:     events.EventSepaExported,
		Payload:  map[string]any{"message_id": "WINDBILL-20250502-1"},
	}))

	d := NewDispatcher(db, zap.NewNop(), fixedClock{now: time.Now()}, config.SchedulerConfig{BatchSize: 10})
	published, err := d.DispatchEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}
