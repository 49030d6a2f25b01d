/**
 * @description
 * Dispute handling: administrative freezes on a traveller's funds while an order
 * is disputed, and the chargeback path when the processor claws money back.
 *
 * Freeze/unfreeze only relocate value between a user's own sub-accounts; they
 * never change the user's total. Chargebacks debit whichever account currently
 * holds the disputed funds, decided by the deposit's state.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/store"
)

// disputedOrder loads an order and verifies it is currently DISPUTED.
func (s *Service) disputedOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderDisputed {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidDisputeState, order.Status)
	}
	return order, nil
}

// FreezeFunds moves part of the traveller's AVAILABLE balance to FROZEN while a
// dispute on the order is open. One freeze per order; re-invocations replay the
// original posting. Only settled funds can be frozen: before settlement the
// released amount still sits in PENDING, which Chargeback debits directly.
func (s *Service) FreezeFunds(ctx context.Context, orderID uuid.UUID, amount int64, currency string) error {
	order, err := s.disputedOrder(ctx, orderID)
	if err != nil {
		return err
	}

	refID := order.ID.String()
	key := domain.LedgerKey(domain.EntryFreeze, domain.ReferenceOrder, refID)
	if replayed, err := s.alreadyPosted(ctx, key); err != nil {
		return err
	} else if replayed {
		return nil
	}

	available, err := s.userAccount(ctx, order.TravelerID, domain.AccountAvailable, currency)
	if err != nil {
		return err
	}
	frozen, err := s.userAccount(ctx, order.TravelerID, domain.AccountFrozen, currency)
	if err != nil {
		return err
	}

	balance, err := s.repo.BalanceOf(ctx, available.ID)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: available %d, freeze %d", ErrInsufficientFunds, balance, amount)
	}

	if _, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryFreeze,
		Amount:          amount,
		Currency:        currency,
		DebitAccountID:  available.ID,
		CreditAccountID: frozen.ID,
		IdempotencyKey:  key,
		ReferenceType:   domain.ReferenceOrder,
		ReferenceID:     refID,
	}); err != nil {
		return err
	}
	log.Printf("level=info component=dispute msg=\"funds frozen\" order_id=%s traveler_id=%s amount=%d",
		order.ID, order.TravelerID, amount)
	return nil
}

// UnfreezeFunds releases a previous freeze back to AVAILABLE after the dispute
// resolves in the traveller's favour.
func (s *Service) UnfreezeFunds(ctx context.Context, orderID uuid.UUID, amount int64, currency string) error {
	order, err := s.disputedOrder(ctx, orderID)
	if err != nil {
		return err
	}

	frozen, err := s.userAccount(ctx, order.TravelerID, domain.AccountFrozen, currency)
	if err != nil {
		return err
	}
	available, err := s.userAccount(ctx, order.TravelerID, domain.AccountAvailable, currency)
	if err != nil {
		return err
	}

	refID := order.ID.String()
	if _, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryUnfreeze,
		Amount:          amount,
		Currency:        currency,
		DebitAccountID:  frozen.ID,
		CreditAccountID: available.ID,
		IdempotencyKey:  domain.LedgerKey(domain.EntryUnfreeze, domain.ReferenceOrder, refID),
		ReferenceType:   domain.ReferenceOrder,
		ReferenceID:     refID,
	}); err != nil {
		return err
	}
	log.Printf("level=info component=dispute msg=\"funds unfrozen\" order_id=%s traveler_id=%s amount=%d",
		order.ID, order.TravelerID, amount)
	return nil
}

// Chargeback records the processor clawing back the disputed funds, debiting
// whichever account currently holds them. While the deposit is CAPTURED the
// money leaves platform escrow. Once TRANSFERRED the released amount sits in the
// traveller's PENDING account until settlement and in FROZEN after a freeze; the
// debit lands on whichever of the two covers it, and fails with
// ErrInsufficientFunds when neither does (settled funds must be frozen first).
func (s *Service) Chargeback(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.disputedOrder(ctx, orderID)
	if err != nil {
		return err
	}

	deposit, err := s.repo.FindDepositByRequestID(ctx, order.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			return fmt.Errorf("%w: order has no deposit", ErrInvalidDisputeState)
		}
		return err
	}

	breakdown, err := s.breakdownFor(ctx, deposit)
	if err != nil {
		return err
	}
	amount := deposit.Amount - breakdown.PlatformFee

	refID := order.ID.String()
	key := domain.LedgerKey(domain.EntryChargeback, domain.ReferenceOrder, refID)
	if replayed, err := s.alreadyPosted(ctx, key); err != nil {
		return err
	} else if replayed {
		return nil
	}

	var debitAccount *domain.Account
	switch deposit.Status {
	case domain.DepositCaptured:
		debitAccount, err = s.platformAccount(ctx, domain.AccountPlatformEscrow, deposit.Currency)
		if err != nil {
			return err
		}
	case domain.DepositTransferred:
		debitAccount, err = s.travellerHoldingAccount(ctx, order.TravelerID, deposit.Currency, amount)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: deposit is %s", ErrInvalidDisputeState, deposit.Status)
	}

	clearing, err := s.platformAccount(ctx, domain.AccountPlatformClearing, deposit.Currency)
	if err != nil {
		return err
	}

	if _, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryChargeback,
		Amount:          amount,
		Currency:        deposit.Currency,
		DebitAccountID:  debitAccount.ID,
		CreditAccountID: clearing.ID,
		IdempotencyKey:  key,
		ReferenceType:   domain.ReferenceOrder,
		ReferenceID:     refID,
	}); err != nil {
		return err
	}
	log.Printf("level=warn component=dispute msg=\"chargeback recorded\" order_id=%s amount=%d deposit_status=%s",
		order.ID, amount, deposit.Status)
	return nil
}

// travellerHoldingAccount picks the traveller sub-account holding at least amount
// of the released funds: PENDING before settlement, FROZEN after a freeze.
func (s *Service) travellerHoldingAccount(ctx context.Context, travelerID uuid.UUID, currency string, amount int64) (*domain.Account, error) {
	for _, accountType := range []domain.AccountType{domain.AccountPending, domain.AccountFrozen} {
		account, err := s.userAccount(ctx, travelerID, accountType, currency)
		if err != nil {
			return nil, err
		}
		balance, err := s.repo.BalanceOf(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		if balance >= amount {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: no traveller account covers chargeback of %d", ErrInsufficientFunds, amount)
}
