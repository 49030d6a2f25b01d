/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. All balance reads are
 * derived from the ledger_entries table; the idempotency_key unique constraint is
 * the application-level compare-and-set that makes posting exactly-once under
 * concurrent webhook retries.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/peerhaul/wallet-service/internal/domain"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrRequestNotFound       = errors.New("request not found")
	ErrDepositNotFound       = errors.New("deposit not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrConnectNotFound       = errors.New("connect account not found")
	ErrPayoutMethodNotFound  = errors.New("payout method not found")
	ErrWithdrawalNotFound    = errors.New("withdrawal not found")
	ErrLedgerEntryNotFound   = errors.New("ledger entry not found")
	ErrTransactionPINNotSet  = errors.New("transaction pin not set")
)

const uniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// PostLedgerEntry durably records a double-entry posting. First writer wins on the
// idempotency key; later callers get the already-stored entry back so webhook
// retries stay side-effect free.
func (r *PostgresRepository) PostLedgerEntry(ctx context.Context, draft domain.LedgerEntryDraft) (*domain.LedgerEntry, bool, error) {
	entry := &domain.LedgerEntry{
		ID:              uuid.New(),
		Type:            draft.Type,
		Amount:          draft.Amount,
		Currency:        draft.Currency,
		DebitAccountID:  draft.DebitAccountID,
		CreditAccountID: draft.CreditAccountID,
		IdempotencyKey:  draft.IdempotencyKey,
		Status:          domain.EntryStatusCompleted,
		ReferenceType:   draft.ReferenceType,
		ReferenceID:     draft.ReferenceID,
	}

	query := `
		INSERT INTO ledger_entries
			(id, type, amount, currency, debit_account_id, credit_account_id,
			 idempotency_key, status, reference_type, reference_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, completed_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.Type, entry.Amount, entry.Currency,
		entry.DebitAccountID, entry.CreditAccountID,
		entry.IdempotencyKey, entry.Status, entry.ReferenceType, entry.ReferenceID,
	).Scan(&entry.CreatedAt, &entry.CompletedAt)
	if err == nil {
		return entry, true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		existing, findErr := r.FindLedgerEntryByKey(ctx, draft.IdempotencyKey)
		if findErr != nil {
			return nil, false, fmt.Errorf("idempotency key conflict lookup failed: %w", findErr)
		}
		return existing, false, nil
	}
	return nil, false, err
}

// FindLedgerEntryByKey retrieves a ledger entry by its unique idempotency key.
func (r *PostgresRepository) FindLedgerEntryByKey(ctx context.Context, idempotencyKey string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	query := `
		SELECT id, type, amount, currency, debit_account_id, credit_account_id,
		       idempotency_key, status, reference_type, reference_id, created_at, completed_at
		FROM ledger_entries
		WHERE idempotency_key = $1
	`
	err := r.db.QueryRow(ctx, query, idempotencyKey).Scan(
		&entry.ID, &entry.Type, &entry.Amount, &entry.Currency,
		&entry.DebitAccountID, &entry.CreditAccountID,
		&entry.IdempotencyKey, &entry.Status, &entry.ReferenceType, &entry.ReferenceID,
		&entry.CreatedAt, &entry.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// BalanceOf derives the account balance as sum(credits) - sum(debits) over
// COMPLETED entries. Reads after a committed post always observe it.
func (r *PostgresRepository) BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	query := `
		SELECT COALESCE(SUM(CASE WHEN credit_account_id = $1 THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE status = 'COMPLETED'
		  AND (credit_account_id = $1 OR debit_account_id = $1)
	`
	if err := r.db.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// SummarizeLedger returns posted sums grouped by entry type for the admin
// dashboard's read-only aggregate queries.
func (r *PostgresRepository) SummarizeLedger(ctx context.Context, from, to time.Time) ([]domain.LedgerSummaryRow, error) {
	query := `
		SELECT type, COUNT(*), COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE status = 'COMPLETED' AND created_at >= $1 AND created_at < $2
		GROUP BY type
		ORDER BY type
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []domain.LedgerSummaryRow
	for rows.Next() {
		var row domain.LedgerSummaryRow
		if err := rows.Scan(&row.Type, &row.Count, &row.Amount); err != nil {
			return nil, err
		}
		summary = append(summary, row)
	}
	return summary, rows.Err()
}

// AccountFor returns the sub-account for (owner, type, currency), creating it on
// first reference. The partial unique indexes make concurrent creation collapse to
// one row.
func (r *PostgresRepository) AccountFor(ctx context.Context, ownerID *uuid.UUID, accountType domain.AccountType, currency string) (*domain.Account, error) {
	insert := `
		INSERT INTO accounts (id, owner_id, type, currency, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, uuid.New(), ownerID, accountType, currency); err != nil {
		return nil, err
	}

	var account domain.Account
	query := `
		SELECT id, owner_id, type, currency, created_at
		FROM accounts
		WHERE owner_id IS NOT DISTINCT FROM $1 AND type = $2 AND currency = $3
	`
	err := r.db.QueryRow(ctx, query, ownerID, accountType, currency).Scan(
		&account.ID, &account.OwnerID, &account.Type, &account.Currency, &account.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindWalletByUserID retrieves a user's wallet.
func (r *PostgresRepository) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT id, user_id, status, created_at, updated_at FROM wallets WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&wallet.ID, &wallet.UserID, &wallet.Status, &wallet.CreatedAt, &wallet.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// FindUserByID retrieves the wallet-service view of a user.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, is_traveler, COALESCE(country, '') FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.IsTraveler, &user.Country)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindRequestByID retrieves a marketplace request.
func (r *PostgresRepository) FindRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.Request, error) {
	var req domain.Request
	query := `SELECT id, buyer_id, status, goods_value, currency, created_at FROM requests WHERE id = $1`
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&req.ID, &req.BuyerID, &req.Status, &req.GoodsValue, &req.Currency, &req.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindDepositByRequestID returns the latest deposit attempt for a request.
func (r *PostgresRepository) FindDepositByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Deposit, error) {
	var dep domain.Deposit
	query := `
		SELECT id, request_id, buyer_id, status, amount, currency, payment_intent_id, created_at, updated_at
		FROM deposits
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&dep.ID, &dep.RequestID, &dep.BuyerID, &dep.Status, &dep.Amount, &dep.Currency,
		&dep.PaymentIntentID, &dep.CreatedAt, &dep.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &dep, nil
}

// FindDepositByPaymentIntentID resolves a deposit from the processor intent id.
func (r *PostgresRepository) FindDepositByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Deposit, error) {
	var dep domain.Deposit
	query := `
		SELECT id, request_id, buyer_id, status, amount, currency, payment_intent_id, created_at, updated_at
		FROM deposits
		WHERE payment_intent_id = $1
	`
	err := r.db.QueryRow(ctx, query, paymentIntentID).Scan(
		&dep.ID, &dep.RequestID, &dep.BuyerID, &dep.Status, &dep.Amount, &dep.Currency,
		&dep.PaymentIntentID, &dep.CreatedAt, &dep.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &dep, nil
}

// CreateDeposit inserts a new deposit attempt.
func (r *PostgresRepository) CreateDeposit(ctx context.Context, deposit *domain.Deposit) error {
	query := `
		INSERT INTO deposits (id, request_id, buyer_id, status, amount, currency, payment_intent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		deposit.ID, deposit.RequestID, deposit.BuyerID, deposit.Status,
		deposit.Amount, deposit.Currency, deposit.PaymentIntentID,
	).Scan(&deposit.CreatedAt, &deposit.UpdatedAt)
}

// TransitionDepositStatus performs a guarded state transition. The WHERE clause on
// the current status is what keeps replayed webhooks from re-running a transition.
func (r *PostgresRepository) TransitionDepositStatus(ctx context.Context, depositID uuid.UUID, from []domain.DepositStatus, to domain.DepositStatus) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE deposits
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, depositID, to, statuses)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const orderColumns = `id, offer_id, request_id, buyer_id, traveler_id, status, paid_at, dispute_opened_at, created_at`

func (r *PostgresRepository) scanOrder(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID, &order.OfferID, &order.RequestID, &order.BuyerID, &order.TravelerID,
		&order.Status, &order.PaidAt, &order.DisputeOpenedAt, &order.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindOrderByID retrieves an order.
func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return r.scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

// FindOrderByOfferID retrieves the order created from an accepted offer.
func (r *PostgresRepository) FindOrderByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Order, error) {
	return r.scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE offer_id = $1`, offerID))
}

// FindOrderByRequestID retrieves the order attached to a request.
func (r *PostgresRepository) FindOrderByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Order, error) {
	return r.scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE request_id = $1`, requestID))
}

// FindAutoReleasableOrders lists PAID, undisputed orders eligible for the
// scheduled escrow release sweep.
func (r *PostgresRepository) FindAutoReleasableOrders(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'PAID'
		  AND dispute_opened_at IS NULL
		  AND paid_at IS NOT NULL
		  AND paid_at < $1
		ORDER BY paid_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, paidBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID, &order.OfferID, &order.RequestID, &order.BuyerID, &order.TravelerID,
			&order.Status, &order.PaidAt, &order.DisputeOpenedAt, &order.CreatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// FindConnectAccountByUserID retrieves a traveller's connect account record.
func (r *PostgresRepository) FindConnectAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.ConnectAccount, error) {
	var acc domain.ConnectAccount
	query := `
		SELECT user_id, external_account_id, onboarding_complete, payouts_enabled, updated_at
		FROM connect_accounts
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&acc.UserID, &acc.ExternalAccountID, &acc.OnboardingComplete, &acc.PayoutsEnabled, &acc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrConnectNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// FindConnectAccountByExternalID resolves the connect record from the processor account id.
func (r *PostgresRepository) FindConnectAccountByExternalID(ctx context.Context, externalAccountID string) (*domain.ConnectAccount, error) {
	var acc domain.ConnectAccount
	query := `
		SELECT user_id, external_account_id, onboarding_complete, payouts_enabled, updated_at
		FROM connect_accounts
		WHERE external_account_id = $1
	`
	err := r.db.QueryRow(ctx, query, externalAccountID).Scan(
		&acc.UserID, &acc.ExternalAccountID, &acc.OnboardingComplete, &acc.PayoutsEnabled, &acc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrConnectNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// SaveConnectAccount upserts a connect account keyed by user id.
func (r *PostgresRepository) SaveConnectAccount(ctx context.Context, account *domain.ConnectAccount) error {
	query := `
		INSERT INTO connect_accounts (user_id, external_account_id, onboarding_complete, payouts_enabled, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET external_account_id = EXCLUDED.external_account_id,
		    onboarding_complete = EXCLUDED.onboarding_complete,
		    payouts_enabled = EXCLUDED.payouts_enabled,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		account.UserID, account.ExternalAccountID, account.OnboardingComplete, account.PayoutsEnabled,
	)
	return err
}

// UpdateConnectAccountFlags applies an account.updated webhook last-write-wins.
func (r *PostgresRepository) UpdateConnectAccountFlags(ctx context.Context, externalAccountID string, onboardingComplete, payoutsEnabled bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE connect_accounts
		SET onboarding_complete = $2, payouts_enabled = $3, updated_at = NOW()
		WHERE external_account_id = $1
	`, externalAccountID, onboardingComplete, payoutsEnabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectNotFound
	}
	return nil
}

// FindPayoutMethodByID retrieves a saved payout destination.
func (r *PostgresRepository) FindPayoutMethodByID(ctx context.Context, payoutMethodID uuid.UUID) (*domain.PayoutMethod, error) {
	var method domain.PayoutMethod
	query := `
		SELECT id, user_id, status, external_id, created_at, updated_at
		FROM payout_methods
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, payoutMethodID).Scan(
		&method.ID, &method.UserID, &method.Status, &method.ExternalID, &method.CreatedAt, &method.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutMethodNotFound
		}
		return nil, err
	}
	return &method, nil
}

// UpdatePayoutMethodStatus transitions a payout method (e.g. to FAILED after a
// processor-side payout failure, requiring re-verification).
func (r *PostgresRepository) UpdatePayoutMethodStatus(ctx context.Context, payoutMethodID uuid.UUID, status domain.PayoutMethodStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payout_methods SET status = $2, updated_at = NOW() WHERE id = $1
	`, payoutMethodID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPayoutMethodNotFound
	}
	return nil
}

// CreateWithdrawal inserts a withdrawal in REQUESTED state; the row acts as a
// hold against the user's spendable balance until it resolves.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (id, user_id, payout_method_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		withdrawal.ID, withdrawal.UserID, withdrawal.PayoutMethodID,
		withdrawal.Amount, withdrawal.Currency, withdrawal.Status,
	).Scan(&withdrawal.CreatedAt, &withdrawal.UpdatedAt)
}

// MarkWithdrawalProcessing records processor acceptance and the external payout reference.
func (r *PostgresRepository) MarkWithdrawalProcessing(ctx context.Context, withdrawalID uuid.UUID, externalPayoutID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE withdrawals
		SET status = 'PROCESSING', external_payout_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'REQUESTED'
	`, withdrawalID, externalPayoutID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

// MarkWithdrawalCompleted finalizes a withdrawal on the transfer.created webhook.
func (r *PostgresRepository) MarkWithdrawalCompleted(ctx context.Context, externalPayoutID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE withdrawals
		SET status = 'COMPLETED', updated_at = NOW()
		WHERE external_payout_id = $1 AND status = 'PROCESSING'
	`, externalPayoutID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

// MarkWithdrawalFailed records a terminal failure with its reason.
func (r *PostgresRepository) MarkWithdrawalFailed(ctx context.Context, withdrawalID uuid.UUID, failureReason string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE withdrawals
		SET status = 'FAILED', failure_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, withdrawalID, failureReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

// FindWithdrawalByExternalPayoutID resolves a withdrawal from the processor payout id.
func (r *PostgresRepository) FindWithdrawalByExternalPayoutID(ctx context.Context, externalPayoutID string) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	query := `
		SELECT id, user_id, payout_method_id, amount, currency, status, external_payout_id, failure_reason, created_at, updated_at
		FROM withdrawals
		WHERE external_payout_id = $1
	`
	err := r.db.QueryRow(ctx, query, externalPayoutID).Scan(
		&w.ID, &w.UserID, &w.PayoutMethodID, &w.Amount, &w.Currency, &w.Status,
		&w.ExternalPayoutID, &w.FailureReason, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

// SumPendingWithdrawalHolds totals REQUESTED withdrawals for a user and currency.
func (r *PostgresRepository) SumPendingWithdrawalHolds(ctx context.Context, userID uuid.UUID, currency string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM withdrawals
		WHERE user_id = $1 AND currency = $2 AND status = 'REQUESTED'
	`, userID, currency).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// GetUserSecurityCredentialByUserID returns transaction PIN security metadata for a user.
func (r *PostgresRepository) GetUserSecurityCredentialByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error) {
	var credential domain.UserSecurityCredential
	query := `
		SELECT user_id, transaction_pin_hash, failed_attempts, locked_until
		FROM user_security_credentials
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&credential.UserID,
		&credential.TransactionPINHash,
		&credential.FailedAttempts,
		&credential.LockedUntil,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionPINNotSet
		}
		return nil, err
	}
	if credential.TransactionPINHash == "" {
		return nil, ErrTransactionPINNotSet
	}
	return &credential, nil
}

// RecordFailedTransactionPINAttempt atomically increments failed attempts and applies lockout.
func (r *PostgresRepository) RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.UserSecurityCredential, error) {
	var credential domain.UserSecurityCredential
	query := `
		UPDATE user_security_credentials
		SET
			failed_attempts = CASE
				WHEN (locked_until IS NOT NULL AND locked_until <= NOW())
					OR (locked_until IS NULL AND failed_attempts >= $2) THEN 1
				ELSE failed_attempts + 1
			END,
			last_failed_at = NOW(),
			locked_until = CASE
				WHEN (
					CASE
						WHEN (locked_until IS NOT NULL AND locked_until <= NOW())
							OR (locked_until IS NULL AND failed_attempts >= $2) THEN 1
						ELSE failed_attempts + 1
					END
				) >= $2 THEN NOW() + ($3 * INTERVAL '1 second')
				ELSE NULL
			END
		WHERE user_id = $1
		RETURNING user_id, transaction_pin_hash, failed_attempts, locked_until
	`
	err := r.db.QueryRow(ctx, query, userID, maxAttempts, lockoutDurationSeconds).Scan(
		&credential.UserID,
		&credential.TransactionPINHash,
		&credential.FailedAttempts,
		&credential.LockedUntil,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionPINNotSet
		}
		return nil, err
	}
	return &credential, nil
}

// ResetTransactionPINFailureState clears the failure counter after a successful verification.
func (r *PostgresRepository) ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_security_credentials
		SET failed_attempts = 0, locked_until = NULL
		WHERE user_id = $1
	`, userID)
	return err
}

// MarkEventProcessed records a processor webhook event id. Returns false when the
// event was already recorded, which makes replayed deliveries no-ops.
func (r *PostgresRepository) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO processed_events (event_id, event_type, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UnmarkEvent releases a recorded event id so the processor's redelivery can
// retry a dispatch that failed after the id was reserved.
func (r *PostgresRepository) UnmarkEvent(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID)
	return err
}
