/**
 * @description
 * Ledger posting helpers and the account registry surface. Every money movement in
 * the engines funnels through `post`, which validates the draft, relies on the
 * store's idempotency-key compare-and-set, and treats a mismatched replay as a
 * fatal integrity violation rather than auto-correcting it.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/metrics"
	"github.com/peerhaul/wallet-service/internal/store"
)

// post validates and records one double-entry posting. Replays with the same
// idempotency key return the stored entry; a replay whose stored entry disagrees
// with the attempted posting halts with ErrLedgerIntegrity.
func (s *Service) post(ctx context.Context, draft domain.LedgerEntryDraft) (*domain.LedgerEntry, error) {
	if draft.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if draft.DebitAccountID == draft.CreditAccountID ||
		draft.DebitAccountID == uuid.Nil || draft.CreditAccountID == uuid.Nil {
		return nil, ErrInvalidAccounts
	}

	entry, created, err := s.repo.PostLedgerEntry(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("ledger post failed: %w", err)
	}
	if !created {
		if entry.Amount != draft.Amount || entry.Type != draft.Type ||
			entry.DebitAccountID != draft.DebitAccountID || entry.CreditAccountID != draft.CreditAccountID {
			return nil, fmt.Errorf("%w: key %q replayed with different posting", ErrLedgerIntegrity, draft.IdempotencyKey)
		}
		log.Printf("level=info component=ledger msg=\"replayed posting resolved to existing entry\" key=%s type=%s", draft.IdempotencyKey, draft.Type)
		return entry, nil
	}

	metrics.LedgerPostings.WithLabelValues(string(draft.Type)).Inc()
	return entry, nil
}

// alreadyPosted reports whether an entry with the idempotency key exists. Used by
// callers whose account selection depends on balances the posting itself changes.
func (s *Service) alreadyPosted(ctx context.Context, idempotencyKey string) (bool, error) {
	if _, err := s.repo.FindLedgerEntryByKey(ctx, idempotencyKey); err != nil {
		if errors.Is(err, store.ErrLedgerEntryNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// accountFor resolves a sub-account, enforcing the owner-kind/type matrix:
// platform-only types are rejected for user owners and vice versa.
func (s *Service) accountFor(ctx context.Context, ownerID *uuid.UUID, accountType domain.AccountType, currency string) (*domain.Account, error) {
	if ownerID == nil && !accountType.IsPlatformOnly() {
		return nil, fmt.Errorf("%w: account type %s requires a user owner", ErrInvalidAccounts, accountType)
	}
	if ownerID != nil && !accountType.IsUserType() {
		return nil, fmt.Errorf("%w: account type %s is platform-only", ErrInvalidAccounts, accountType)
	}
	return s.repo.AccountFor(ctx, ownerID, accountType, currency)
}

func (s *Service) userAccount(ctx context.Context, userID uuid.UUID, accountType domain.AccountType, currency string) (*domain.Account, error) {
	return s.accountFor(ctx, &userID, accountType, currency)
}

func (s *Service) platformAccount(ctx context.Context, accountType domain.AccountType, currency string) (*domain.Account, error) {
	return s.accountFor(ctx, nil, accountType, currency)
}

// WalletBalances is the per-user balance view derived from the ledger.
type WalletBalances struct {
	Available int64  `json:"available"`
	Pending   int64  `json:"pending"`
	Frozen    int64  `json:"frozen"`
	Holds     int64  `json:"holds"` // pending withdrawal holds against available
	Currency  string `json:"currency"`
}

// BalancesFor derives a user's balances by summing completed ledger entries.
func (s *Service) BalancesFor(ctx context.Context, userID uuid.UUID, currency string) (*WalletBalances, error) {
	balances := &WalletBalances{Currency: currency}
	for _, part := range []struct {
		accountType domain.AccountType
		dest        *int64
	}{
		{domain.AccountAvailable, &balances.Available},
		{domain.AccountPending, &balances.Pending},
		{domain.AccountFrozen, &balances.Frozen},
	} {
		account, err := s.userAccount(ctx, userID, part.accountType, currency)
		if err != nil {
			return nil, err
		}
		balance, err := s.repo.BalanceOf(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		*part.dest = balance
	}

	holds, err := s.repo.SumPendingWithdrawalHolds(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	balances.Holds = holds
	return balances, nil
}

// LedgerSummary exposes the read-only aggregates consumed by the admin dashboard.
func (s *Service) LedgerSummary(ctx context.Context, from, to time.Time) ([]domain.LedgerSummaryRow, error) {
	return s.repo.SummarizeLedger(ctx, from, to)
}

// AdminAdjust posts a manual ADJUSTMENT between two accounts. This is the
// administrative correction path, e.g. crediting AVAILABLE back after a processor
// payout failed post-acceptance; it is never invoked automatically.
func (s *Service) AdminAdjust(ctx context.Context, debitAccountID, creditAccountID uuid.UUID, amount int64, currency, reason string) (*domain.LedgerEntry, error) {
	entry, err := s.post(ctx, domain.LedgerEntryDraft{
		Type:            domain.EntryAdjustment,
		Amount:          amount,
		Currency:        currency,
		DebitAccountID:  debitAccountID,
		CreditAccountID: creditAccountID,
		IdempotencyKey:  domain.LedgerKey(domain.EntryAdjustment, domain.ReferenceManual, uuid.NewString()),
		ReferenceType:   domain.ReferenceManual,
		ReferenceID:     reason,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=ledger msg=\"manual adjustment posted\" entry_id=%s amount=%d reason=%q", entry.ID, amount, reason)
	return entry, nil
}
