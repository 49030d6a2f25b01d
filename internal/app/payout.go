/**
 * @description
 * The payout engine: withdrawals from a user's AVAILABLE balance to a verified
 * payout method, plus the transfer webhook reactions and the transaction PIN
 * verification used to authorize withdrawals.
 *
 * The WITHDRAWAL ledger entry is posted only after the processor has accepted
 * the payout. A rejected payout marks the withdrawal FAILED with no ledger
 * footprint; a transport failure leaves the withdrawal REQUESTED (its hold keeps
 * the funds reserved) until the webhook or an operator settles the outcome.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/store"
	"github.com/peerhaul/wallet-service/pkg/stripeclient"
)

// Withdraw moves funds from AVAILABLE to the user's verified payout method.
// Preconditions are checked in a fixed order so callers see stable failures:
// wallet status, minimum amount, payout method, then spendable balance.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, currency string, payoutMethodID uuid.UUID) (*domain.WithdrawalResult, error) {
	wallet, err := s.repo.FindWalletByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.Status != domain.WalletActive {
		return nil, ErrWalletNotActive
	}

	if amount < s.settings.MinWithdrawal {
		return nil, ErrBelowMinimum
	}

	method, err := s.repo.FindPayoutMethodByID(ctx, payoutMethodID)
	if err != nil {
		if errors.Is(err, store.ErrPayoutMethodNotFound) {
			return nil, ErrInvalidPayoutMethod
		}
		return nil, err
	}
	if method.UserID != userID || method.Status != domain.PayoutMethodVerified {
		return nil, ErrInvalidPayoutMethod
	}

	available, err := s.userAccount(ctx, userID, domain.AccountAvailable, currency)
	if err != nil {
		return nil, err
	}
	balance, err := s.repo.BalanceOf(ctx, available.ID)
	if err != nil {
		return nil, err
	}
	holds, err := s.repo.SumPendingWithdrawalHolds(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	spendable := balance - holds
	if amount > spendable {
		return nil, ErrInsufficientFunds
	}

	withdrawal := &domain.Withdrawal{
		ID:             uuid.New(),
		UserID:         userID,
		PayoutMethodID: payoutMethodID,
		Amount:         amount,
		Currency:       currency,
		Status:         domain.WithdrawalRequested,
	}
	if err := s.repo.CreateWithdrawal(ctx, withdrawal); err != nil {
		return nil, fmt.Errorf("failed to persist withdrawal: %w", err)
	}

	payout, err := s.processor.CreatePayout(ctx, stripeclient.PayoutParams{
		Amount:         amount,
		Currency:       currency,
		Destination:    method.ExternalID,
		IdempotencyKey: "withdrawal-" + withdrawal.ID.String(),
	})
	if err != nil {
		var apiErr *stripeclient.ErrorResponse
		if errors.As(err, &apiErr) {
			// Definite rejection before acceptance: nothing was posted, the method
			// goes back through verification.
			_ = s.repo.MarkWithdrawalFailed(ctx, withdrawal.ID, apiErr.Error())
			_ = s.repo.UpdatePayoutMethodStatus(ctx, payoutMethodID, domain.PayoutMethodFailed)
			return nil, fmt.Errorf("payout rejected: %w", err)
		}
		// Transport failure: outcome unknown. The REQUESTED hold keeps the funds
		// reserved until the webhook or an operator resolves it.
		return nil, fmt.Errorf("payout outcome unknown: %w", err)
	}

	refID := withdrawal.ID.String()
	clearing, err := s.platformAccount(ctx, domain.AccountPlatformClearing, currency)
	if err != nil {
		return nil, err
	}
	if _, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryWithdrawal,
		Amount:          amount,
		Currency:        currency,
		DebitAccountID:  available.ID,
		CreditAccountID: clearing.ID,
		IdempotencyKey:  domain.LedgerKey(domain.EntryWithdrawal, domain.ReferenceWithdrawal, refID),
		ReferenceType:   domain.ReferenceWithdrawal,
		ReferenceID:     refID,
	}); err != nil {
		return nil, err
	}

	if err := s.repo.MarkWithdrawalProcessing(ctx, withdrawal.ID, payout.ID); err != nil {
		return nil, err
	}

	log.Printf("level=info component=payout msg=\"withdrawal accepted by processor\" withdrawal_id=%s amount=%d payout=%s",
		withdrawal.ID, amount, payout.ID)
	return &domain.WithdrawalResult{
		WithdrawalID:     withdrawal.ID,
		AvailableBalance: balance - holds - amount,
		ExternalPayoutID: payout.ID,
	}, nil
}

// HandleTransferCreated reacts to transfer.created. For a known payout it marks
// the withdrawal COMPLETED; transfers without a matching withdrawal are escrow
// releases already settled at creation time, so they only get a log line.
func (s *Service) HandleTransferCreated(ctx context.Context, externalID string) error {
	withdrawal, err := s.repo.FindWithdrawalByExternalPayoutID(ctx, externalID)
	if err != nil {
		if errors.Is(err, store.ErrWithdrawalNotFound) {
			log.Printf("level=info component=payout msg=\"transfer confirmed with no withdrawal\" transfer=%s", externalID)
			return nil
		}
		return err
	}
	if withdrawal.Status == domain.WithdrawalCompleted {
		return nil
	}

	if err := s.repo.MarkWithdrawalCompleted(ctx, externalID); err != nil {
		return err
	}
	s.publish(ctx, "withdrawal.completed", domain.WithdrawalCompletedEvent{
		WithdrawalID: withdrawal.ID,
		UserID:       withdrawal.UserID,
		Amount:       withdrawal.Amount,
		Currency:     withdrawal.Currency,
		Timestamp:    s.now(),
	})
	return nil
}

// HandleTransferFailed reacts to transfer.failed: the withdrawal moves to FAILED
// and its payout method requires re-verification. The WITHDRAWAL entry, already
// posted at acceptance, is corrected by a manual adjustment, never automatically.
func (s *Service) HandleTransferFailed(ctx context.Context, externalID, failureReason string) error {
	withdrawal, err := s.repo.FindWithdrawalByExternalPayoutID(ctx, externalID)
	if err != nil {
		if errors.Is(err, store.ErrWithdrawalNotFound) {
			log.Printf("level=warn component=payout msg=\"transfer failure with no withdrawal\" transfer=%s", externalID)
			return nil
		}
		return err
	}

	if err := s.repo.MarkWithdrawalFailed(ctx, withdrawal.ID, failureReason); err != nil {
		return err
	}
	if err := s.repo.UpdatePayoutMethodStatus(ctx, withdrawal.PayoutMethodID, domain.PayoutMethodFailed); err != nil {
		return err
	}
	log.Printf("level=error component=payout msg=\"payout failed after acceptance, manual adjustment required\" withdrawal_id=%s reason=%q",
		withdrawal.ID, failureReason)
	return nil
}

// VerifyTransactionPIN checks a user's transaction PIN against the stored bcrypt
// hash, enforcing the failed-attempt lockout window.
func (s *Service) VerifyTransactionPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	cred, err := s.repo.GetUserSecurityCredentialByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if cred.LockedUntil != nil && cred.LockedUntil.After(s.now()) {
		return ErrTransactionPINLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.TransactionPINHash), []byte(strings.TrimSpace(pin))); err != nil {
		updated, recErr := s.repo.RecordFailedTransactionPINAttempt(ctx, userID,
			s.settings.PINMaxAttempts, s.settings.PINLockoutSeconds)
		if recErr != nil {
			log.Printf("level=error component=payout msg=\"failed to record pin attempt\" user_id=%s error=%q", userID, recErr)
			return ErrInvalidTransactionPIN
		}
		if updated.LockedUntil != nil && updated.LockedUntil.After(s.now()) {
			return ErrTransactionPINLocked
		}
		return ErrInvalidTransactionPIN
	}

	if err := s.repo.ResetTransactionPINFailureState(ctx, userID); err != nil {
		log.Printf("level=warn component=payout msg=\"failed to reset pin failure state\" user_id=%s error=%q", userID, err)
	}
	return nil
}
