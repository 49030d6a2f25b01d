/**
 * @description
 * The deposit/escrow engine. Drives a request's deposit through creation, capture
 * and eventual transfer-to-traveller or refund, reacting to processor webhooks.
 *
 * State machine: NONE -> CREATED -> {REQUIRES_ACTION <-> CREATED} -> CAPTURED ->
 * {TRANSFERRED | REFUNDED}; any pre-captured state may move to FAILED.
 *
 * Ordering note: ledger postings happen before the guarded status transition.
 * Both are idempotent (posting via the ledger key, transition via its status
 * guard), so a crash between the two is healed by the processor's retry.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/metrics"
	"github.com/peerhaul/wallet-service/internal/store"
	"github.com/peerhaul/wallet-service/pkg/stripeclient"
)

// CreateDeposit creates a processor payment intent for a request's deposit and
// persists the CREATED attempt. Only legal for an OPEN request whose current
// deposit status is NONE or FAILED, and only while the buyer's wallet is active.
func (s *Service) CreateDeposit(ctx context.Context, requestID, buyerID uuid.UUID) (*domain.Deposit, error) {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to find request: %w", err)
	}
	if request.BuyerID != buyerID {
		return nil, fmt.Errorf("%w: request belongs to another buyer", ErrInvalidRequestState)
	}
	if request.Status != domain.RequestOpen {
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidRequestState, request.Status)
	}

	wallet, err := s.repo.FindWalletByUserID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	if wallet.Status != domain.WalletActive {
		return nil, ErrWalletNotActive
	}

	existing, err := s.repo.FindDepositByRequestID(ctx, requestID)
	if err != nil && !errors.Is(err, store.ErrDepositNotFound) {
		return nil, fmt.Errorf("failed to check existing deposit: %w", err)
	}
	if existing != nil && existing.Status != domain.DepositFailed {
		return nil, ErrDepositAlreadyActive
	}

	amount := s.DepositAmountFor(request)
	// Unique per attempt so a retry after FAILED anchors a fresh intent.
	attemptKey := fmt.Sprintf("deposit-%s-%d", requestID, s.now().UnixNano())

	intent, err := s.processor.CreatePaymentIntent(ctx, stripeclient.PaymentIntentParams{
		Amount:             amount,
		Currency:           request.Currency,
		PaymentMethodTypes: paymentMethodTypesFor(request.Currency),
		Metadata:           map[string]string{"request_id": requestID.String()},
		IdempotencyKey:     attemptKey,
	})
	if err != nil {
		// Unknown or failed outcome: nothing is persisted and nothing is posted.
		return nil, fmt.Errorf("payment intent creation failed: %w", err)
	}

	deposit := &domain.Deposit{
		ID:              uuid.New(),
		RequestID:       requestID,
		BuyerID:         buyerID,
		Status:          domain.DepositCreated,
		Amount:          amount,
		Currency:        request.Currency,
		PaymentIntentID: &intent.ID,
	}
	if err := s.repo.CreateDeposit(ctx, deposit); err != nil {
		return nil, fmt.Errorf("failed to persist deposit: %w", err)
	}

	log.Printf("level=info component=deposit msg=\"deposit created\" request_id=%s amount=%d currency=%s intent=%s",
		requestID, amount, request.Currency, intent.ID)
	return deposit, nil
}

// HandleCaptureConfirmed reacts to payment_intent.succeeded: transitions the
// deposit to CAPTURED and posts the DEPOSIT and FEE_ALLOCATION entries. The
// traveller credit is deferred until match acceptance. Replays are no-ops.
func (s *Service) HandleCaptureConfirmed(ctx context.Context, paymentIntentID string) error {
	deposit, err := s.repo.FindDepositByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			log.Printf("level=warn component=deposit msg=\"capture webhook for unknown intent\" intent=%s", paymentIntentID)
			return nil
		}
		return err
	}

	switch deposit.Status {
	case domain.DepositCaptured, domain.DepositTransferred, domain.DepositRefunded:
		return nil // replayed webhook for an already-captured deposit
	case domain.DepositFailed:
		log.Printf("level=warn component=deposit msg=\"capture webhook after terminal failure ignored\" intent=%s", paymentIntentID)
		return nil
	}

	breakdown, err := s.breakdownFor(ctx, deposit)
	if err != nil {
		return err
	}

	clearing, err := s.platformAccount(ctx, domain.AccountPlatformClearing, deposit.Currency)
	if err != nil {
		return err
	}
	escrow, err := s.platformAccount(ctx, domain.AccountPlatformEscrow, deposit.Currency)
	if err != nil {
		return err
	}
	fees, err := s.platformAccount(ctx, domain.AccountPlatformFees, deposit.Currency)
	if err != nil {
		return err
	}

	refID := deposit.RequestID.String()
	if _, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryDeposit,
		Amount:          deposit.Amount,
		Currency:        deposit.Currency,
		DebitAccountID:  clearing.ID,
		CreditAccountID: escrow.ID,
		IdempotencyKey:  domain.LedgerKey(domain.EntryDeposit, domain.ReferenceRequest, refID),
		ReferenceType:   domain.ReferenceRequest,
		ReferenceID:     refID,
	}); err != nil {
		return err
	}
	if breakdown.PlatformFee > 0 {
		if _, err := s.post(ctx, domain.LedgerEntryDraft{
			Type:            domain.EntryFeeAllocation,
			Amount:          breakdown.PlatformFee,
			Currency:        deposit.Currency,
			DebitAccountID:  escrow.ID,
			CreditAccountID: fees.ID,
			IdempotencyKey:  domain.LedgerKey(domain.EntryFeeAllocation, domain.ReferenceRequest, refID),
			ReferenceType:   domain.ReferenceRequest,
			ReferenceID:     refID,
		}); err != nil {
			return err
		}
	}

	if _, err := s.repo.TransitionDepositStatus(ctx, deposit.ID,
		[]domain.DepositStatus{domain.DepositCreated, domain.DepositRequiresAction},
		domain.DepositCaptured,
	); err != nil {
		return fmt.Errorf("failed to mark deposit captured: %w", err)
	}

	s.publish(ctx, "deposit.captured", domain.DepositCapturedEvent{
		RequestID: deposit.RequestID,
		BuyerID:   deposit.BuyerID,
		Amount:    deposit.Amount,
		Currency:  deposit.Currency,
		Timestamp: s.now(),
	})
	log.Printf("level=info component=deposit msg=\"deposit captured\" request_id=%s amount=%d fee=%d",
		deposit.RequestID, deposit.Amount, breakdown.PlatformFee)
	return nil
}

// HandleCaptureFailed reacts to payment_intent.payment_failed: any pre-captured
// deposit moves to FAILED with no ledger postings.
func (s *Service) HandleCaptureFailed(ctx context.Context, paymentIntentID string) error {
	deposit, err := s.repo.FindDepositByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			return nil
		}
		return err
	}

	moved, err := s.repo.TransitionDepositStatus(ctx, deposit.ID,
		[]domain.DepositStatus{domain.DepositCreated, domain.DepositRequiresAction},
		domain.DepositFailed,
	)
	if err != nil {
		return err
	}
	if moved {
		log.Printf("level=info component=deposit msg=\"deposit failed at processor\" request_id=%s intent=%s",
			deposit.RequestID, paymentIntentID)
	}
	return nil
}

// TransferOnAcceptance releases escrow to the traveller's pending balance when
// an offer is accepted. The deposit must be CAPTURED and the traveller must be
// transfer-eligible; otherwise the deposit stays CAPTURED and the call is
// retryable once onboarding completes.
func (s *Service) TransferOnAcceptance(ctx context.Context, offerID uuid.UUID) error {
	order, err := s.repo.FindOrderByOfferID(ctx, offerID)
	if err != nil {
		return fmt.Errorf("failed to find order for offer: %w", err)
	}
	return s.releaseEscrow(ctx, order, false)
}

// releaseEscrow is shared by acceptance and the auto-release sweep. Re-running it
// for an already-transferred deposit is a no-op.
func (s *Service) releaseEscrow(ctx context.Context, order *domain.Order, autoRelease bool) error {
	deposit, err := s.repo.FindDepositByRequestID(ctx, order.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			return fmt.Errorf("%w: request has no deposit", ErrInvalidRequestState)
		}
		return err
	}
	if deposit.Status == domain.DepositTransferred {
		return nil // already released
	}
	if deposit.Status != domain.DepositCaptured {
		return fmt.Errorf("%w: deposit is %s, expected CAPTURED", ErrInvalidRequestState, deposit.Status)
	}

	connect, err := s.repo.FindConnectAccountByUserID(ctx, order.TravelerID)
	if err != nil && !errors.Is(err, store.ErrConnectNotFound) {
		return err
	}
	if !connect.TransferEligible() {
		return ErrTravellerNotPayoutReady
	}

	breakdown, err := s.breakdownFor(ctx, deposit)
	if err != nil {
		return err
	}
	travelerAmount := deposit.Amount - breakdown.PlatformFee

	transferGroup := "request_" + order.RequestID.String()
	if _, err := s.processor.CreateTransfer(ctx, stripeclient.TransferParams{
		Amount:         travelerAmount,
		Currency:       deposit.Currency,
		Destination:    *connect.ExternalAccountID,
		TransferGroup:  transferGroup,
		IdempotencyKey: transferGroup,
	}); err != nil {
		// Unknown or failed outcome: no posting, deposit stays CAPTURED.
		return fmt.Errorf("escrow transfer failed: %w", err)
	}

	escrow, err := s.platformAccount(ctx, domain.AccountPlatformEscrow, deposit.Currency)
	if err != nil {
		return err
	}
	pending, err := s.userAccount(ctx, order.TravelerID, domain.AccountPending, deposit.Currency)
	if err != nil {
		return err
	}

	refID := order.ID.String()
	if _, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryRelease,
		Amount:          travelerAmount,
		Currency:        deposit.Currency,
		DebitAccountID:  escrow.ID,
		CreditAccountID: pending.ID,
		IdempotencyKey:  domain.LedgerKey(domain.EntryRelease, domain.ReferenceOrder, refID),
		ReferenceType:   domain.ReferenceOrder,
		ReferenceID:     refID,
	}); err != nil {
		return err
	}

	if _, err := s.repo.TransitionDepositStatus(ctx, deposit.ID,
		[]domain.DepositStatus{domain.DepositCaptured}, domain.DepositTransferred,
	); err != nil {
		return fmt.Errorf("failed to mark deposit transferred: %w", err)
	}

	if autoRelease {
		metrics.SweepReleases.Inc()
	}
	s.publish(ctx, "escrow.released", domain.EscrowReleasedEvent{
		RequestID:   order.RequestID,
		OrderID:     order.ID,
		TravelerID:  order.TravelerID,
		Amount:      travelerAmount,
		Currency:    deposit.Currency,
		AutoRelease: autoRelease,
		Timestamp:   s.now(),
	})
	log.Printf("level=info component=deposit msg=\"escrow released\" order_id=%s amount=%d auto=%t",
		order.ID, travelerAmount, autoRelease)
	return nil
}

// Refund returns a captured deposit to the buyer. Only legal while the deposit is
// CAPTURED; once TRANSFERRED it fails with ErrNotRefundable. The platform fee
// stays allocated; returning it is a manual adjustment.
func (s *Service) Refund(ctx context.Context, requestID uuid.UUID, reason string) error {
	deposit, err := s.repo.FindDepositByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			return ErrNotRefundable
		}
		return err
	}
	if deposit.Status != domain.DepositCaptured {
		return fmt.Errorf("%w: deposit is %s", ErrNotRefundable, deposit.Status)
	}

	breakdown, err := s.breakdownFor(ctx, deposit)
	if err != nil {
		return err
	}
	// Escrow holds the captured amount net of the allocated fee; refunding this
	// figure returns the escrow balance to its pre-capture level.
	refundAmount := deposit.Amount - breakdown.PlatformFee

	if deposit.PaymentIntentID == nil {
		return fmt.Errorf("%w: deposit has no payment intent", ErrNotRefundable)
	}
	if _, err := s.processor.CreateRefund(ctx, *deposit.PaymentIntentID, refundAmount); err != nil {
		return fmt.Errorf("processor refund failed: %w", err)
	}

	escrow, err := s.platformAccount(ctx, domain.AccountPlatformEscrow, deposit.Currency)
	if err != nil {
		return err
	}
	clearing, err := s.platformAccount(ctx, domain.AccountPlatformClearing, deposit.Currency)
	if err != nil {
		return err
	}

	refID := requestID.String()
	if _, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryRefund,
		Amount:          refundAmount,
		Currency:        deposit.Currency,
		DebitAccountID:  escrow.ID,
		CreditAccountID: clearing.ID,
		IdempotencyKey:  domain.LedgerKey(domain.EntryRefund, domain.ReferenceRequest, refID),
		ReferenceType:   domain.ReferenceRequest,
		ReferenceID:     refID,
	}); err != nil {
		return err
	}

	if _, err := s.repo.TransitionDepositStatus(ctx, deposit.ID,
		[]domain.DepositStatus{domain.DepositCaptured}, domain.DepositRefunded,
	); err != nil {
		return fmt.Errorf("failed to mark deposit refunded: %w", err)
	}

	s.publish(ctx, "deposit.refunded", domain.DepositRefundedEvent{
		RequestID: requestID,
		BuyerID:   deposit.BuyerID,
		Amount:    refundAmount,
		Currency:  deposit.Currency,
		Reason:    reason,
		Timestamp: s.now(),
	})
	log.Printf("level=info component=deposit msg=\"deposit refunded\" request_id=%s amount=%d reason=%q",
		requestID, refundAmount, reason)
	return nil
}

// SettleOrder credits the traveller's AVAILABLE balance from PENDING once the
// order completes. This is where the deferred TRAVELER_CREDIT posting lands.
func (s *Service) SettleOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderCompleted {
		return fmt.Errorf("%w: order is %s, expected COMPLETED", ErrInvalidRequestState, order.Status)
	}

	deposit, err := s.repo.FindDepositByRequestID(ctx, order.RequestID)
	if err != nil {
		return err
	}
	if deposit.Status != domain.DepositTransferred {
		return fmt.Errorf("%w: deposit is %s, expected TRANSFERRED", ErrInvalidRequestState, deposit.Status)
	}

	breakdown, err := s.breakdownFor(ctx, deposit)
	if err != nil {
		return err
	}
	travelerAmount := deposit.Amount - breakdown.PlatformFee

	pending, err := s.userAccount(ctx, order.TravelerID, domain.AccountPending, deposit.Currency)
	if err != nil {
		return err
	}
	available, err := s.userAccount(ctx, order.TravelerID, domain.AccountAvailable, deposit.Currency)
	if err != nil {
		return err
	}

	refID := order.ID.String()
	_, err = s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryTravelerCredit,
		Amount:          travelerAmount,
		Currency:        deposit.Currency,
		DebitAccountID:  pending.ID,
		CreditAccountID: available.ID,
		IdempotencyKey:  domain.LedgerKey(domain.EntryTravelerCredit, domain.ReferenceOrder, refID),
		ReferenceType:   domain.ReferenceOrder,
		ReferenceID:     refID,
	})
	return err
}

// breakdownFor recomputes the fee breakdown for a deposit from its request.
func (s *Service) breakdownFor(ctx context.Context, deposit *domain.Deposit) (FeeBreakdown, error) {
	request, err := s.repo.FindRequestByID(ctx, deposit.RequestID)
	if err != nil {
		return FeeBreakdown{}, fmt.Errorf("failed to find request for deposit: %w", err)
	}
	return s.ComputeFees(request.GoodsValue, deposit.Currency), nil
}
