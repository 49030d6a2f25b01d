/**
 * @description
 * Prometheus collectors for the wallet-service, plus a small side listener that
 * serves /metrics and /healthz away from the main API port.
 */

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerPostings counts newly stored ledger entries by type. Idempotent
	// replays do not increment it.
	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_ledger_postings_total",
		Help: "Number of ledger entries posted, by entry type.",
	}, []string{"type"})

	// WebhookEvents counts processor webhook deliveries by type and outcome
	// (processed, duplicate, rejected, error).
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_webhook_events_total",
		Help: "Number of processor webhook deliveries, by event type and outcome.",
	}, []string{"event", "outcome"})

	// SweepReleases counts escrow releases performed by the auto-release sweep.
	SweepReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_sweep_releases_total",
		Help: "Number of escrow releases performed by the auto-release sweep.",
	})
)

// HealthFunc reports readiness of a downstream dependency.
type HealthFunc func(ctx context.Context) error

// StartServer starts a lightweight HTTP server for /metrics and /healthz in a
// goroutine and returns it for graceful shutdown.
func StartServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
