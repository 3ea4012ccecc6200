package events

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

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/sets"
)

// WebhookOptions configures event delivery to an HTTP endpoint.
type WebhookOptions struct {
	URL    string
	Secret string
	// Types lists the event types to deliver.
	Types       []string
	MaxAttempts int
	// PerSecond caps delivery attempts; zero means unlimited.
	PerSecond float64
	Client    *http.Client
}

// Webhook posts selected events to a URL, signing bodies with the shared
// secret. Subscriptions are served by the wrapped broker. Deliveries run on
// one worker; when its queue is full new events are dropped.
type Webhook struct {
	Broker
	opts    WebhookOptions
	types   sets.Set[string]
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration
	log     logr.Logger

	mu     sync.Mutex
	closed bool
	queue  chan delivery
	done   chan struct{}
}

type delivery struct {
	runID string
	evt   Event
}

func NewWebhook(inner Broker, opts WebhookOptions, log logr.Logger) *Webhook {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	limit := rate.Inf
	if opts.PerSecond > 0 {
		limit = rate.Limit(opts.PerSecond)
	}
	w := &Webhook{
		Broker:  inner,
		opts:    opts,
		types:   sets.New(opts.Types...),
		limiter: rate.NewLimiter(limit, 1),
		backoff: nextBackoff,
		log:     log,
		queue:   make(chan delivery, 256),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Webhook) Publish(runID string, evt Event) {
	w.Broker.Publish(runID, evt)
	if !w.types.Has(evt.Type) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- delivery{runID: runID, evt: evt}:
	default:
		w.log.V(2).Info("Webhook queue full, dropping event", "run", runID, "type", evt.Type)
	}
}

// Close stops accepting events and waits for queued deliveries until ctx
// ends.
func (w *Webhook) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Webhook) run() {
	defer close(w.done)
	for d := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := w.deliver(ctx, d); err != nil {
			w.log.Error(err, "Webhook delivery failed", "run", d.runID, "type", d.evt.Type)
		}
		cancel()
	}
}

func (w *Webhook) deliver(ctx context.Context, d delivery) error {
	body, err := json.Marshal(d.evt)
	if err != nil {
		return err
	}
	var last error
	for attempt := 0; attempt < w.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		code, err := w.post(ctx, d.evt.Type, body)
		if err == nil && code >= 200 && code < 300 {
			w.log.V(4).Info("Webhook delivered", "run", d.runID, "type", d.evt.Type, "attempt", attempt+1)
			return nil
		}
		if err == nil {
			err = fmt.Errorf("status %d", code)
		}
		last = err
	}
	return fmt.Errorf("giving up after %d attempts: %w", w.opts.MaxAttempts, last)
}

func (w *Webhook) post(ctx context.Context, eventType string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if w.opts.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.opts.Secret, body))
	}
	resp, err := w.opts.Client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Minute {
		base = time.Minute
	}
	return base
}

// SignHMAC returns lowercase hex of HMAC-SHA256 over body.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex HMAC-SHA256 signature over body.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), b)
}
