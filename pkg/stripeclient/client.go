/**
 * @description
 * This package provides a client for the payment processor's REST API: payment
 * intents for deposit acquiring (card everywhere, BLIK/P24 for PLN), transfers to
 * connected sub-accounts, payouts to verified destinations, and connected-account
 * onboarding.
 *
 * Idempotency keys are forwarded on the Idempotency-Key header so processor-side
 * retries collapse to one operation. A transport timeout surfaces as an error with
 * no response: callers must treat that as "unknown outcome" and wait for the
 * webhook instead of assuming failure.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package stripeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the processor API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new processor API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PaymentIntentParams is the payload for creating a payment intent.
type PaymentIntentParams struct {
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	IdempotencyKey     string            `json:"-"`
}

// PaymentIntent is the processor's acquiring object for a deposit.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// Refund is the result of refunding a captured payment intent.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TransferParams is the payload for moving captured funds to a connected
// sub-account. TransferGroup ties retries of the same release together.
type TransferParams struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Destination    string `json:"destination"`
	TransferGroup  string `json:"transfer_group"`
	IdempotencyKey string `json:"-"`
}

// Transfer is the processor's record of a sub-account transfer.
type Transfer struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	TransferGroup string `json:"transfer_group"`
	Status        string `json:"status"`
}

// PayoutParams is the payload for paying out to a verified external destination.
type PayoutParams struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Destination    string `json:"destination"`
	IdempotencyKey string `json:"-"`
}

// Payout is the processor's record of an outbound payout.
type Payout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// AccountParams is the payload for creating a connected sub-account.
type AccountParams struct {
	Country  string            `json:"country"` // 2-letter code
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Account is a connected sub-account.
type Account struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
}

// AccountLink is a one-time hosted onboarding URL for a connected account.
type AccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// ErrorResponse represents an error returned by the processor API.
type ErrorResponse struct {
	ErrorInfo struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	StatusCode int `json:"-"`
}

func (e *ErrorResponse) Error() string {
	if e.ErrorInfo.Message != "" {
		return fmt.Sprintf("processor api error: %s (%s)", e.ErrorInfo.Message, e.ErrorInfo.Code)
	}
	return fmt.Sprintf("processor api error: status %d", e.StatusCode)
}

// CreatePaymentIntent creates a new acquiring intent for a deposit.
func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", params.IdempotencyKey, params, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreateRefund refunds a captured payment intent back to the buyer.
func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string, amount int64) (*Refund, error) {
	body := map[string]interface{}{
		"payment_intent": paymentIntentID,
		"amount":         amount,
	}
	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", "refund-"+paymentIntentID, body, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// CreateTransfer moves captured funds to a connected sub-account.
func (c *Client) CreateTransfer(ctx context.Context, params TransferParams) (*Transfer, error) {
	var transfer Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", params.IdempotencyKey, params, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

// CreatePayout pays out to a verified external destination.
func (c *Client) CreatePayout(ctx context.Context, params PayoutParams) (*Payout, error) {
	var payout Payout
	if err := c.do(ctx, http.MethodPost, "/v1/payouts", params.IdempotencyKey, params, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// CreateAccount creates a connected sub-account for a traveller.
func (c *Client) CreateAccount(ctx context.Context, params AccountParams) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", "", params, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccountLink creates a hosted onboarding link for a connected account.
func (c *Client) CreateAccountLink(ctx context.Context, accountID string) (*AccountLink, error) {
	body := map[string]string{"account": accountID, "type": "account_onboarding"}
	var link AccountLink
	if err := c.do(ctx, http.MethodPost, "/v1/account_links", "", body, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Timeout or transport failure: the outcome is unknown to the caller.
		return fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read processor response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			return fmt.Errorf("processor api error: status %d", resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode processor response: %w", err)
		}
	}
	return nil
}
