package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 15 * time.Second

// Broadcaster pushes signed events to external systems. Deliveries are best
// effort: failures are reported in the returned results and logged, never
// returned as errors.
type Broadcaster struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(c *http.Client) BroadcasterOption {
	return func(b *Broadcaster) { b.client = c }
}

// WithTimeout sets the per-delivery timeout.
func WithTimeout(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithConcurrency caps simultaneous deliveries of one broadcast. Zero means
// no cap.
func WithConcurrency(n int) BroadcasterOption {
	return func(b *Broadcaster) { b.concurrency = n }
}

// WithMetrics records deliveries in m.
func WithMetrics(m *Metrics) BroadcasterOption {
	return func(b *Broadcaster) { b.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		client:  &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewEnvelope builds the JSON body for event.
func (b *Broadcaster) NewEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	body, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: b.now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return body, nil
}

// PushToSystem delivers one event to one system.
func (b *Broadcaster) PushToSystem(ctx context.Context, sys SystemRecord, event string, payload any) Result {
	body, err := b.NewEnvelope(event, payload)
	if err != nil {
		return Result{SystemID: sys.ID, SystemName: sys.Name, Error: err.Error()}
	}
	return b.deliver(ctx, sys, event, body)
}

func (b *Broadcaster) deliver(ctx context.Context, sys SystemRecord, event string, body []byte) (res Result) {
	start := time.Now()
	res = Result{SystemID: sys.ID, SystemName: sys.Name}
	defer func() {
		res.DurationMS = time.Since(start).Milliseconds()
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	target := strings.TrimRight(sys.CallbackURL, "/") + "/webhook"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		res.Error = fmt.Sprintf("build request: %v", err)
		b.metrics.ObserveDelivery(event, false, start)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, sys.APIKey)
	req.Header.Set(HeaderSignature, Sign(sys.Secret, body))
	req.Header.Set(HeaderSignatureAlg, SignatureAlg)

	resp, err := b.client.Do(req)
	if err != nil {
		res.Error = err.Error()
		b.metrics.ObserveDelivery(event, false, start)
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.StatusCode = resp.StatusCode
	res.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !res.Success {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	b.metrics.ObserveDelivery(event, res.Success, start)
	return res
}

// Broadcast delivers event to every active system in systems concurrently.
// One failing or hung system never affects the others; the call returns once
// every delivery finished or timed out.
func (b *Broadcaster) Broadcast(ctx context.Context, systems []SystemRecord, event string, payload any) Summary {
	summary := Summary{Event: event, Results: []Result{}}

	active := make([]SystemRecord, 0, len(systems))
	for _, s := range systems {
		if s.IsActive {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return summary
	}

	body, err := b.NewEnvelope(event, payload)
	if err != nil {
		for _, s := range active {
			summary.Results = append(summary.Results, Result{SystemID: s.ID, SystemName: s.Name, Error: err.Error()})
		}
		summary.FailedCount = len(active)
		b.logger.Warn("webhook broadcast not sent", "event", event, "error", err)
		return summary
	}

	results := make([]Result, len(active))
	var g errgroup.Group
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}
	for i, sys := range active {
		g.Go(func() error {
			// Every system signs the same bytes with its own secret.
			results[i] = b.deliver(ctx, sys, event, body)
			return nil
		})
	}
	_ = g.Wait()

	summary.Results = results
	for _, r := range results {
		if r.Success {
			summary.SuccessCount++
			continue
		}
		summary.FailedCount++
		b.logger.Warn("webhook delivery failed",
			"event", event, "systemID", r.SystemID, "system", r.SystemName,
			"statusCode", r.StatusCode, "error", r.Error)
	}
	b.logger.Info("webhook broadcast finished",
		"event", event, "success", summary.SuccessCount, "failed", summary.FailedCount)
	return summary
}

// ActiveSystemLister returns the systems that should receive broadcasts.
type ActiveSystemLister interface {
	ListActive(ctx context.Context) ([]SystemRecord, error)
}

// BroadcastActive loads the active systems from store and broadcasts to them.
func (b *Broadcaster) BroadcastActive(ctx context.Context, store ActiveSystemLister, event string, payload any) (Summary, error) {
	systems, err := store.ListActive(ctx)
	if err != nil {
		return Summary{Event: event, Results: []Result{}}, err
	}
	return b.Broadcast(ctx, systems, event, payload), nil
}
