/**
 * @description
 * This file contains the core service wiring for the wallet-service. The `Service`
 * struct orchestrates the ledger, the deposit/escrow engine, the payout engine and
 * the connect onboarding tracker, coordinating between the database repository, the
 * payment processor client and the message broker.
 *
 * Key features:
 * - All collaborators are interfaces injected at construction, so every state
 *   machine is deterministic to unit test in isolation.
 * - No long-lived in-process state; every operation is request-scoped.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/stripeclient, pkg/rabbitmq: External service communication.
 */

package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peerhaul/wallet-service/internal/store"
	"github.com/peerhaul/wallet-service/pkg/stripeclient"
)

// ProcessorClient is the slice of the payment processor API the engines consume.
type ProcessorClient interface {
	CreatePaymentIntent(ctx context.Context, params stripeclient.PaymentIntentParams) (*stripeclient.PaymentIntent, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amount int64) (*stripeclient.Refund, error)
	CreateTransfer(ctx context.Context, params stripeclient.TransferParams) (*stripeclient.Transfer, error)
	CreatePayout(ctx context.Context, params stripeclient.PayoutParams) (*stripeclient.Payout, error)
	CreateAccount(ctx context.Context, params stripeclient.AccountParams) (*stripeclient.Account, error)
	CreateAccountLink(ctx context.Context, accountID string) (*stripeclient.AccountLink, error)
}

// Publisher is the slice of the event producer the engines consume.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Settings carries the business knobs loaded from configuration.
type Settings struct {
	ServiceFeePercent  decimal.Decimal // e.g. 15
	ServiceFeeCap      int64           // minor units, EUR-denominated cap
	PlatformFeePercent decimal.Decimal // e.g. 5, applied to the service fee component
	DepositFloorEUR    int64           // minor units, flat minimum deposit in EUR
	FXRates            map[string]decimal.Decimal // EUR -> currency, static table
	MinWithdrawal      int64           // minor units
	AutoReleaseAfter   time.Duration   // escrow age before the sweep releases it
	PINMaxAttempts     int
	PINLockoutSeconds  int
}

// EventsExchange is the topic exchange wallet lifecycle events are published to.
const EventsExchange = "wallet.events"

// Service provides the core business logic of the wallet ledger and its engines.
type Service struct {
	repo      store.Repository
	processor ProcessorClient
	producer  Publisher
	settings  Settings
	now       func() time.Time
}

// NewService creates a new wallet service instance.
func NewService(repo store.Repository, processor ProcessorClient, producer Publisher, settings Settings) *Service {
	return &Service{
		repo:      repo,
		processor: processor,
		producer:  producer,
		settings:  settings,
		now:       time.Now,
	}
}

func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.producer == nil {
		return
	}
	// Event publication is best-effort; ledger state is already committed.
	_ = s.producer.Publish(ctx, EventsExchange, routingKey, body)
}
