package facebook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fbgate/pkg/bus"
	"fbgate/pkg/config"
)

const (
	hubModeSubscribe = "subscribe"

	// maxDeliveryBytes bounds the webhook body read; batches are small and
	// anything larger is not a legitimate delivery.
	maxDeliveryBytes = 1 << 20
)

// Webhook is the inbound HTTP surface of the adapter. It answers the
// platform's subscription handshake and queues deliveries for the pipeline.
type Webhook struct {
	tenants config.TenantSource
	bus     *bus.DeliveryBus
	log     *slog.Logger
}

func NewWebhook(tenants config.TenantSource, deliveryBus *bus.DeliveryBus, log *slog.Logger) *Webhook {
	if log == nil {
		log = slog.Default()
	}

	return &Webhook{
		tenants: tenants,
		bus:     deliveryBus,
		log:     log.With("component", "facebook.webhook"),
	}
}

func (w *Webhook) Name() string {
	return channelName
}

func (w *Webhook) Mount(r chi.Router) {
	r.Get("/webhook/{tenant}", w.handleVerify)
	r.Post("/webhook/{tenant}", w.handleDelivery)
}

// handleVerify answers the subscription handshake: echo the challenge when the
// verify token matches. An unverifiable GET is rejected with 403 rather than
// passed through; nothing else owns this route.
func (w *Webhook) handleVerify(rw http.ResponseWriter, r *http.Request) {
	tenantName := chi.URLParam(r, "tenant")
	tenant, err := w.tenants.Tenant(tenantName)
	if err != nil {
		if errors.Is(err, config.ErrUnknownTenant) {
			http.NotFound(rw, r)
			return
		}
		w.log.Error("Tenant lookup failed", "tenant", tenantName, "error", err)
		http.Error(rw, "tenant unavailable", http.StatusInternalServerError)
		return
	}

	if tenant.VerifyToken == "" {
		w.log.Error("Tenant has no verify token configured", "tenant", tenantName)
		http.Error(rw, "verification unavailable", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != hubModeSubscribe || token != tenant.VerifyToken {
		w.log.Warn("Webhook verification rejected", "tenant", tenantName, "mode", mode)
		http.Error(rw, "verification failed", http.StatusForbidden)
		return
	}

	w.log.Info("Webhook verified", "tenant", tenantName)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte(challenge))
}

// handleDelivery acks immediately and queues the raw batch for the worker.
// The platform retries on any non-200, so the ack must not wait for the
// pipeline.
func (w *Webhook) handleDelivery(rw http.ResponseWriter, r *http.Request) {
	tenantName := chi.URLParam(r, "tenant")
	if _, err := w.tenants.Tenant(tenantName); err != nil {
		if errors.Is(err, config.ErrUnknownTenant) {
			http.NotFound(rw, r)
			return
		}
		w.log.Error("Tenant lookup failed", "tenant", tenantName, "error", err)
		http.Error(rw, "tenant unavailable", http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxDeliveryBytes))
	if err != nil {
		w.log.Error("Failed to read delivery body", "tenant", tenantName, "error", err)
		http.Error(rw, "unreadable body", http.StatusBadRequest)
		return
	}

	delivery := bus.Delivery{
		Tenant:     tenantName,
		Channel:    channelName,
		ReceivedAt: time.Now(),
		Payload:    payload,
	}
	if ok := w.bus.PublishDelivery(r.Context(), delivery); !ok {
		w.log.Error("Delivery bus rejected payload", "tenant", tenantName)
	} else {
		w.bus.PublishEvent(r.Context(), bus.Event{
			Type:    bus.EventDeliveryReceived,
			At:      delivery.ReceivedAt,
			Tenant:  tenantName,
			Channel: channelName,
		})
	}

	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("OK"))
}
