/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/peerhaul/wallet-service/internal/app"
	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/store"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// authorizeTransactionPIN verifies the caller's transaction PIN, writing the
// error response itself when verification fails.
func (h *WalletHandlers) authorizeTransactionPIN(r *http.Request, w http.ResponseWriter, userID uuid.UUID, pin string) bool {
	err := h.service.VerifyTransactionPIN(r.Context(), userID, pin)
	if err == nil {
		return true
	}

	if errors.Is(err, store.ErrTransactionPINNotSet) {
		h.writeError(w, http.StatusPreconditionFailed, "Transaction PIN is not set. Please create your PIN first.")
		return false
	}
	if errors.Is(err, app.ErrTransactionPINLocked) {
		h.writeError(w, http.StatusLocked, "Too many incorrect PIN attempts. Please wait and try again.")
		return false
	}
	if errors.Is(err, app.ErrInvalidTransactionPIN) {
		h.writeError(w, http.StatusUnauthorized, "Invalid transaction PIN.")
		return false
	}

	log.Printf("level=error component=api msg=\"transaction pin verification failed\" user_id=%s err=%v", userID, err)
	h.writeError(w, http.StatusInternalServerError, "Unable to verify transaction PIN")
	return false
}

type createDepositRequest struct {
	RequestID uuid.UUID `json:"request_id"`
}

// CreateDepositHandler handles requests to fund a delivery request's deposit.
func (h *WalletHandlers) CreateDepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	deposit, err := h.service.CreateDeposit(r.Context(), req.RequestID, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, deposit)
}

// GetBalancesHandler returns the caller's ledger-derived balances.
func (h *WalletHandlers) GetBalancesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = "EUR"
	}

	balances, err := h.service.BalancesFor(r.Context(), userID, currency)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balances)
}

// QuoteDepositHandler returns the fee breakdown and deposit amount for a goods
// value without creating anything.
func (h *WalletHandlers) QuoteDepositHandler(w http.ResponseWriter, r *http.Request) {
	goodsValue, err := strconv.ParseInt(r.URL.Query().Get("goods_value"), 10, 64)
	if err != nil || goodsValue <= 0 {
		h.writeError(w, http.StatusBadRequest, "goods_value must be a positive integer in minor units")
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = "EUR"
	}

	breakdown := h.service.ComputeFees(goodsValue, currency)
	depositAmount := h.service.DepositAmountFor(&domain.Request{GoodsValue: goodsValue, Currency: currency})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"breakdown":      breakdown,
		"deposit_amount": depositAmount,
		"currency":       currency,
	})
}

type withdrawRequest struct {
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	PayoutMethodID uuid.UUID `json:"payout_method_id"`
	TransactionPIN string    `json:"transaction_pin"`
}

// WithdrawHandler handles withdrawal requests from the caller's available balance.
func (h *WalletHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Currency == "" || req.PayoutMethodID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "currency and payout_method_id are required")
		return
	}
	if !h.authorizeTransactionPIN(r, w, userID, req.TransactionPIN) {
		return
	}

	result, err := h.service.Withdraw(r.Context(), userID, req.Amount, req.Currency, req.PayoutMethodID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=withdraw outcome=accepted user_id=%s amount=%d", userID, req.Amount)
	h.writeJSON(w, http.StatusOK, result)
}

// StartOnboardingHandler issues a hosted payout onboarding link for a traveller.
func (h *WalletHandlers) StartOnboardingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	url, err := h.service.StartOnboarding(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"onboarding_url": url})
}

// ReleaseEscrowHandler is the internal hook called by the order service when an
// offer is accepted: it transfers escrow to the traveller's pending balance.
func (h *WalletHandlers) ReleaseEscrowHandler(w http.ResponseWriter, r *http.Request) {
	offerID, err := uuid.Parse(chi.URLParam(r, "offer_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offer ID")
		return
	}

	if err := h.service.TransferOnAcceptance(r.Context(), offerID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// SettleOrderHandler is the internal hook called when an order completes: the
// traveller's pending funds become available.
func (h *WalletHandlers) SettleOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := h.service.SettleOrder(r.Context(), orderID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// RefundDepositHandler is the internal hook for refunding a captured deposit.
func (h *WalletHandlers) RefundDepositHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "request_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Refund(r.Context(), requestID, req.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

type disputeFundsRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// FreezeFundsHandler is the internal hook freezing traveller funds during a dispute.
func (h *WalletHandlers) FreezeFundsHandler(w http.ResponseWriter, r *http.Request) {
	h.handleDisputeFunds(w, r, h.service.FreezeFunds, "frozen")
}

// UnfreezeFundsHandler is the internal hook releasing a dispute freeze.
func (h *WalletHandlers) UnfreezeFundsHandler(w http.ResponseWriter, r *http.Request) {
	h.handleDisputeFunds(w, r, h.service.UnfreezeFunds, "unfrozen")
}

func (h *WalletHandlers) handleDisputeFunds(w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, orderID uuid.UUID, amount int64, currency string) error, status string) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req disputeFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 || req.Currency == "" {
		h.writeError(w, http.StatusBadRequest, "amount and currency are required")
		return
	}

	if err := action(r.Context(), orderID, req.Amount, req.Currency); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ChargebackHandler is the internal hook recording a processor chargeback.
func (h *WalletHandlers) ChargebackHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := h.service.Chargeback(r.Context(), orderID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "charged_back"})
}

type adjustmentRequest struct {
	DebitAccountID  uuid.UUID `json:"debit_account_id"`
	CreditAccountID uuid.UUID `json:"credit_account_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Reason          string    `json:"reason"`
}

// AdjustmentHandler is the internal hook posting a manual ledger correction.
func (h *WalletHandlers) AdjustmentHandler(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	entry, err := h.service.AdminAdjust(r.Context(), req.DebitAccountID, req.CreditAccountID, req.Amount, req.Currency, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// LedgerSummaryHandler returns posting aggregates for the admin dashboard.
func (h *WalletHandlers) LedgerSummaryHandler(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "to must be RFC3339")
		return
	}

	rows, err := h.service.LedgerSummary(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// writeServiceError maps the service error taxonomy to HTTP status codes.
func (h *WalletHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidRequestState),
		errors.Is(err, app.ErrInvalidDisputeState),
		errors.Is(err, app.ErrNonPositiveAmount),
		errors.Is(err, app.ErrInvalidAccounts):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrDepositAlreadyActive):
		h.writeError(w, http.StatusConflict, "Request already has an active deposit")
	case errors.Is(err, app.ErrNotRefundable):
		h.writeError(w, http.StatusConflict, "Deposit is not refundable")
	case errors.Is(err, app.ErrTravellerNotPayoutReady):
		h.writeError(w, http.StatusPreconditionFailed, "Traveller has not completed payout onboarding")
	case errors.Is(err, app.ErrNotTraveler):
		h.writeError(w, http.StatusForbidden, "Only travellers can start payout onboarding")
	case errors.Is(err, app.ErrWalletNotActive):
		h.writeError(w, http.StatusForbidden, "Wallet is not active")
	case errors.Is(err, app.ErrBelowMinimum):
		h.writeError(w, http.StatusUnprocessableEntity, "Amount is below the minimum withdrawal")
	case errors.Is(err, app.ErrInvalidPayoutMethod):
		h.writeError(w, http.StatusUnprocessableEntity, "Payout method is not usable")
	case errors.Is(err, app.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient available funds")
	case errors.Is(err, store.ErrRequestNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrDepositNotFound),
		errors.Is(err, store.ErrWalletNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
