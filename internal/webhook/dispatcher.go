// Package webhook delivers signed event notifications to brand
// endpoints. Deliveries run asynchronously with retries; a slow or
// broken endpoint never blocks the request that produced the event.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

const userAgent = "License-Service-Webhook/1.0"

// payload is the body POSTed to subscribers. json.Marshal emits map
// keys in sorted order, so the signed bytes are deterministic for a
// given event.
type payload struct {
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Dispatcher posts events to webhook endpoints.
type Dispatcher struct {
	client *http.Client
	wg     sync.WaitGroup

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewDispatcher creates a Dispatcher sharing one HTTP client. Per-
// delivery timeouts come from each subscription.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		client: &http.Client{},
		sleep:  time.Sleep,
	}
}

// Enqueue schedules one delivery per subscription and returns
// immediately.
func (d *Dispatcher) Enqueue(configs []*domain.WebhookConfig, e domain.Event) {
	body, err := json.Marshal(payload{
		EventType: e.Type,
		Timestamp: e.OccurredAt.UTC().Format(time.RFC3339),
		Data:      e.Data,
	})
	if err != nil {
		infrastructure.GetLogger().Error("marshal webhook payload", "event_type", e.Type, "error", err)
		return
	}
	for _, cfg := range configs {
		d.wg.Add(1)
		go func(cfg *domain.WebhookConfig) {
			defer d.wg.Done()
			d.deliver(cfg, e.Type, body)
		}(cfg)
	}
}

// deliver posts once and then retries up to Retries() more times, so a
// config with max_retries=3 produces four attempts. The nth failure
// sleeps 2^n seconds (1s, 2s, 4s, ...) before the next try; any 2xx
// response counts as delivered.
func (d *Dispatcher) deliver(cfg *domain.WebhookConfig, eventType string, body []byte) {
	logger := infrastructure.GetLogger().With(
		"webhook_id", cfg.ID.String(), "url", cfg.URL, "event_type", eventType)
	signature := Sign(cfg.Secret, body)

	retries := cfg.Retries()
	for attempt := 0; attempt <= retries; attempt++ {
		err := d.post(cfg, signature, eventType, body)
		if err == nil {
			logger.Info("webhook delivered", "attempt", attempt+1)
			return
		}
		logger.Warn("webhook delivery failed", "attempt", attempt+1, "error", err)
		if attempt < retries {
			d.sleep(time.Duration(1<<attempt) * time.Second)
		}
	}
	logger.Error("webhook delivery exhausted retries", "attempts", retries+1)
}

func (d *Dispatcher) post(cfg *domain.WebhookConfig, signature, eventType string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", eventType)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
