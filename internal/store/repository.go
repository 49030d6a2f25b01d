/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * operations required by the wallet-service. The interface decouples the ledger and
 * engine logic from PostgreSQL so every state machine can be unit tested against
 * in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/peerhaul/wallet-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Ledger methods. PostLedgerEntry is transactional: concurrent posts with the
	// same idempotency key resolve to a single stored entry; the second caller
	// receives the existing entry with created=false.
	PostLedgerEntry(ctx context.Context, draft domain.LedgerEntryDraft) (entry *domain.LedgerEntry, created bool, err error)
	FindLedgerEntryByKey(ctx context.Context, idempotencyKey string) (*domain.LedgerEntry, error)
	BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error)
	SummarizeLedger(ctx context.Context, from, to time.Time) ([]domain.LedgerSummaryRow, error)

	// Account registry. AccountFor creates lazily and idempotently on first
	// reference; a nil ownerID addresses the platform owner.
	AccountFor(ctx context.Context, ownerID *uuid.UUID, accountType domain.AccountType, currency string) (*domain.Account, error)

	// Wallet and user methods.
	FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Request and deposit methods.
	FindRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.Request, error)
	FindDepositByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Deposit, error)
	FindDepositByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Deposit, error)
	CreateDeposit(ctx context.Context, deposit *domain.Deposit) error
	// TransitionDepositStatus moves the deposit to `to` only if its current status
	// is one of `from`, returning false when the guard did not match.
	TransitionDepositStatus(ctx context.Context, depositID uuid.UUID, from []domain.DepositStatus, to domain.DepositStatus) (bool, error)

	// Order methods.
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	FindOrderByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Order, error)
	FindOrderByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Order, error)
	// FindAutoReleasableOrders returns PAID orders with no open dispute whose
	// paid_at is older than the cutoff.
	FindAutoReleasableOrders(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Order, error)

	// Connect account methods.
	FindConnectAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.ConnectAccount, error)
	FindConnectAccountByExternalID(ctx context.Context, externalAccountID string) (*domain.ConnectAccount, error)
	SaveConnectAccount(ctx context.Context, account *domain.ConnectAccount) error
	// UpdateConnectAccountFlags is last-write-wins on the onboarding flags.
	UpdateConnectAccountFlags(ctx context.Context, externalAccountID string, onboardingComplete, payoutsEnabled bool) error

	// Payout method and withdrawal methods.
	FindPayoutMethodByID(ctx context.Context, payoutMethodID uuid.UUID) (*domain.PayoutMethod, error)
	UpdatePayoutMethodStatus(ctx context.Context, payoutMethodID uuid.UUID, status domain.PayoutMethodStatus) error
	CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error
	MarkWithdrawalProcessing(ctx context.Context, withdrawalID uuid.UUID, externalPayoutID string) error
	MarkWithdrawalCompleted(ctx context.Context, externalPayoutID string) error
	MarkWithdrawalFailed(ctx context.Context, withdrawalID uuid.UUID, failureReason string) error
	FindWithdrawalByExternalPayoutID(ctx context.Context, externalPayoutID string) (*domain.Withdrawal, error)
	// SumPendingWithdrawalHolds returns the total amount of REQUESTED withdrawals
	// for the user, which reduces the spendable AVAILABLE balance.
	SumPendingWithdrawalHolds(ctx context.Context, userID uuid.UUID, currency string) (int64, error)

	// Transaction PIN security metadata.
	GetUserSecurityCredentialByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error)
	RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.UserSecurityCredential, error)
	ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error

	// Webhook idempotency boundary. MarkEventProcessed returns false when the
	// event id was already recorded, making replayed deliveries side-effect free;
	// UnmarkEvent releases the reservation after a failed dispatch so the
	// processor's redelivery can retry.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	UnmarkEvent(ctx context.Context, eventID string) error
}
