package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

// DefaultMaxBodyBytes caps the size of an inbound webhook body.
const DefaultMaxBodyBytes = 1 << 20

// InboundHandler consumes verified inbound events.
type InboundHandler interface {
	HandleInbound(ctx context.Context, system *SystemRecord, env Envelope) error
}

// InboundHandlerFunc adapts a function to InboundHandler.
type InboundHandlerFunc func(ctx context.Context, system *SystemRecord, env Envelope) error

// HandleInbound calls f.
func (f InboundHandlerFunc) HandleInbound(ctx context.Context, system *SystemRecord, env Envelope) error {
	return f(ctx, system, env)
}

// SystemLookup finds the active system owning an API key.
type SystemLookup interface {
	GetActiveByAPIKey(ctx context.Context, apiKey string) (*SystemRecord, error)
}

// Verifier authenticates inbound webhook calls.
type Verifier struct {
	systems SystemLookup
	allowed map[string]bool
}

// NewVerifier creates a Verifier accepting the given events. An empty list
// falls back to DefaultInboundEvents.
func NewVerifier(systems SystemLookup, allowedEvents []string) *Verifier {
	if len(allowedEvents) == 0 {
		allowedEvents = DefaultInboundEvents
	}
	allowed := make(map[string]bool, len(allowedEvents))
	for _, e := range allowedEvents {
		allowed[e] = true
	}
	return &Verifier{systems: systems, allowed: allowed}
}

// Verify checks the API key and the signature of body, then decodes the
// envelope and checks its event against the allow-list. Authentication
// failures carry no detail about which check failed.
func (v *Verifier) Verify(ctx context.Context, apiKey, signature, alg string, body []byte) (*SystemRecord, *Envelope, error) {
	if apiKey == "" || signature == "" {
		return nil, nil, apierr.New(apierr.KindUnauthorized, apierr.CodeUnauthorized, "invalid credentials")
	}
	system, err := v.systems.GetActiveByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, nil, err
	}
	if system == nil {
		return nil, nil, apierr.New(apierr.KindUnauthorized, apierr.CodeUnauthorized, "invalid credentials")
	}
	if (alg != "" && alg != SignatureAlg) || !Verify(system.Secret, body, signature) {
		return nil, nil, apierr.New(apierr.KindInvalidSignature, apierr.CodeInvalidSignature, "invalid signature")
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, apierr.Validation(apierr.CodeInvalidInput, "malformed webhook body")
	}
	if !v.allowed[env.Event] {
		return nil, nil, apierr.New(apierr.KindUnsupportedEvent, apierr.CodeUnsupportedEvent,
			"unsupported event %q", env.Event)
	}
	return system, &env, nil
}

// Receiver is the inbound webhook endpoint. Verified events are stored as
// receipts and then handed to the InboundHandler.
type Receiver struct {
	verifier *Verifier
	store    *SystemStore
	handler  InboundHandler
	maxBody  int64
	metrics  *Metrics
	logger   *slog.Logger
}

// NewReceiver creates a Receiver. handler may be nil, in which case events
// are only recorded.
func NewReceiver(verifier *Verifier, store *SystemStore, handler InboundHandler, maxBody int64, metrics *Metrics, logger *slog.Logger) *Receiver {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		verifier: verifier,
		store:    store,
		handler:  handler,
		maxBody:  maxBody,
		metrics:  metrics,
		logger:   logger,
	}
}

func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rc.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rc.reject(w, apierr.Validation(apierr.CodeInvalidInput, "webhook body exceeds %d bytes", rc.maxBody))
			return
		}
		rc.reject(w, apierr.Validation(apierr.CodeInvalidInput, "read webhook body"))
		return
	}

	system, env, err := rc.verifier.Verify(r.Context(),
		r.Header.Get(HeaderAPIKey), r.Header.Get(HeaderSignature), r.Header.Get(HeaderSignatureAlg), body)
	if err != nil {
		rc.reject(w, err)
		return
	}

	receipt := &ReceiptRecord{
		SystemID:  system.ID,
		Event:     env.Event,
		Timestamp: env.Timestamp,
		Payload:   string(env.Data),
	}
	if err := rc.store.AppendReceipt(r.Context(), receipt); err != nil {
		rc.reject(w, err)
		return
	}
	if rc.handler != nil {
		if err := rc.handler.HandleInbound(r.Context(), system, *env); err != nil {
			rc.reject(w, err)
			return
		}
	}

	rc.metrics.ObserveInbound("accepted")
	rc.logger.Info("webhook received", "event", env.Event, "systemID", system.ID, "receiptID", receipt.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "receiptId": receipt.ID})
}

func (rc *Receiver) reject(w http.ResponseWriter, err error) {
	rc.metrics.ObserveInbound(string(apierr.KindOf(err)))
	if apierr.KindOf(err) == apierr.KindInternal {
		rc.logger.Error("webhook receive failed", "error", err)
	}
	writeJSON(w, apierr.HTTPStatus(err), apierr.Body(err))
}
