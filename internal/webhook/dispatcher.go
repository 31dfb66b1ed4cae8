package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/nikhilbhutani/promptkeeper/internal/metrics"
)

type DispatcherOptions struct {
	QueueSize int
	Attempts  uint
	Delay     time.Duration
	Timeout   time.Duration
}

func (o *DispatcherOptions) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.Delay <= 0 {
		o.Delay = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
}

// Dispatcher delivers signed webhook payloads from a bounded queue on a
// single background goroutine.
type Dispatcher struct {
	httpClient *http.Client
	opts       DispatcherOptions
	deliveries chan DeliveryRequest
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

type DeliveryRequest struct {
	WebhookID string
	URL       string
	Secret    string
	Event     string
	Payload   []byte
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	opts.defaults()
	d := &Dispatcher{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		deliveries: make(chan DeliveryRequest, opts.QueueSize),
		done:       make(chan struct{}),
	}
	go d.processLoop()
	return d
}

// Enqueue schedules a delivery. A full queue drops the delivery.
func (d *Dispatcher) Enqueue(req DeliveryRequest) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.RecordWebhookDelivery("dropped")
		return
	}
	select {
	case d.deliveries <- req:
	default:
		metrics.RecordWebhookDelivery("dropped")
		slog.Warn("webhook delivery queue full, dropping", "webhook_id", req.WebhookID, "event", req.Event)
	}
}

// Close stops accepting deliveries and waits for queued ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.deliveries)
		d.mu.Unlock()
	})
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) processLoop() {
	defer close(d.done)
	for req := range d.deliveries {
		d.deliver(req)
	}
}

func (d *Dispatcher) deliver(req DeliveryRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(d.opts.Attempts)*(d.opts.Timeout+d.opts.Delay))
	defer cancel()

	err := retry.Do(
		func() error { return d.post(ctx, req) },
		retry.Context(ctx),
		retry.Attempts(d.opts.Attempts),
		retry.Delay(d.opts.Delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		metrics.RecordWebhookDelivery("failed")
		slog.Error("webhook delivery failed", "error", err, "webhook_id", req.WebhookID, "event", req.Event)
		return
	}
	metrics.RecordWebhookDelivery("delivered")
}

func (d *Dispatcher) post(ctx context.Context, req DeliveryRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build webhook request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", req.Event)
	httpReq.Header.Set("X-Webhook-Signature", Sign(req.Payload, req.Secret))
	httpReq.Header.Set("X-Webhook-ID", req.WebhookID)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return retry.Unrecoverable(fmt.Errorf("webhook endpoint rejected delivery with %d", resp.StatusCode))
	}
	return nil
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
