/**
 * @description
 * This file sets up the HTTP router for the wallet-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser-facing endpoints.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// WalletRoutes creates and returns a new router for the wallet service.
func WalletRoutes(h *WalletHandlers, webhooks *WebhookHandler, jwtSecret, internalAPIKey string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Processor webhooks authenticate via signature, not bearer tokens.
	r.Post("/webhooks/processor", webhooks.ServeHTTP)

	// Group routes that require user authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/deposits", h.CreateDepositHandler)
		r.Get("/deposits/quote", h.QuoteDepositHandler)
		r.Get("/wallet/balances", h.GetBalancesHandler)
		r.Post("/withdrawals", h.WithdrawHandler)
		r.Post("/connect/onboarding", h.StartOnboardingHandler)
	})

	// Service-to-service hooks called by the order service and the back office.
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalAPIKey))

		r.Post("/internal/offers/{offer_id}/release", h.ReleaseEscrowHandler)
		r.Post("/internal/orders/{order_id}/settle", h.SettleOrderHandler)
		r.Post("/internal/orders/{order_id}/freeze", h.FreezeFundsHandler)
		r.Post("/internal/orders/{order_id}/unfreeze", h.UnfreezeFundsHandler)
		r.Post("/internal/orders/{order_id}/chargeback", h.ChargebackHandler)
		r.Post("/internal/requests/{request_id}/refund", h.RefundDepositHandler)
		r.Post("/internal/adjustments", h.AdjustmentHandler)
		r.Get("/internal/ledger/summary", h.LedgerSummaryHandler)
	})

	return r
}
