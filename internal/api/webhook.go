/**
 * @description
 * HTTP handler for processor webhooks. The raw body is HMAC-SHA256 validated
 * against the shared webhook secret before anything is parsed; the Redis cache
 * then short-circuits recently seen event ids and the service applies the event
 * behind the authoritative processed_events boundary.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For webhook signature validation.
 * - encoding/json, io, net/http: Standard Go libraries.
 */
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/peerhaul/wallet-service/internal/app"
	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/metrics"
)

const signatureHeader = "Processor-Signature"

// maxWebhookBody bounds webhook payload reads at 1 MiB.
const maxWebhookBody = 1 << 20

// WebhookHandler processes incoming webhooks from the payment processor.
type WebhookHandler struct {
	service *app.Service
	cache   *app.RedisEventCache
	secret  string
}

// NewWebhookHandler creates a webhook handler. The cache may be nil; dedup then
// relies solely on the database boundary.
func NewWebhookHandler(service *app.Service, cache *app.RedisEventCache, secret string) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		cache:   cache,
		secret:  secret,
	}
}

// ServeHTTP validates, deduplicates and dispatches one webhook delivery.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if !h.validSignature(body, r.Header.Get(signatureHeader)) {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		log.Printf("level=warn component=webhook msg=\"signature validation failed\" remote=%s", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.ProcessorEvent
	if err := json.Unmarshal(body, &event); err != nil || event.ID == "" {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		http.Error(w, "Malformed event", http.StatusBadRequest)
		return
	}

	if h.cache.Seen(r.Context(), event.ID) {
		metrics.WebhookEvents.WithLabelValues(event.Type, app.WebhookOutcomeDuplicate).Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	outcome, err := h.service.ProcessWebhookEvent(r.Context(), event)
	metrics.WebhookEvents.WithLabelValues(event.Type, outcome).Inc()
	if err != nil {
		// Release the cache slot so the processor's redelivery is not skipped.
		h.cache.Forget(r.Context(), event.ID)
		log.Printf("level=error component=webhook msg=\"event processing failed\" event_id=%s type=%s err=%v", event.ID, event.Type, err)
		http.Error(w, "Event processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// validSignature compares the hex-encoded HMAC-SHA256 of the raw body against
// the delivered signature header.
func (h *WebhookHandler) validSignature(body []byte, header string) bool {
	if h.secret == "" || header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := strings.TrimSpace(strings.TrimPrefix(header, "sha256="))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}
