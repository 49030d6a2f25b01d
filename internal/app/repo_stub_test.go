package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/store"
	"github.com/peerhaul/wallet-service/pkg/stripeclient"
)

// testRepo is a shared in-memory Repository stub for the engine tests. Only the
// methods the engines touch are implemented; anything else panics via the
// embedded nil interface.
type testRepo struct {
	store.Repository

	mu          sync.Mutex
	entries     map[string]*domain.LedgerEntry
	entryOrder  []string
	accounts    map[string]*domain.Account
	wallets     map[uuid.UUID]*domain.Wallet
	users       map[uuid.UUID]*domain.User
	requests    map[uuid.UUID]*domain.Request
	deposits    map[uuid.UUID]*domain.Deposit
	depositIDs  []uuid.UUID
	orders      map[uuid.UUID]*domain.Order
	connects    map[uuid.UUID]*domain.ConnectAccount
	methods     map[uuid.UUID]*domain.PayoutMethod
	withdrawals map[uuid.UUID]*domain.Withdrawal
	creds       map[uuid.UUID]*domain.UserSecurityCredential
	events      map[string]string
}

func newTestRepo() *testRepo {
	return &testRepo{
		entries:     make(map[string]*domain.LedgerEntry),
		accounts:    make(map[string]*domain.Account),
		wallets:     make(map[uuid.UUID]*domain.Wallet),
		users:       make(map[uuid.UUID]*domain.User),
		requests:    make(map[uuid.UUID]*domain.Request),
		deposits:    make(map[uuid.UUID]*domain.Deposit),
		orders:      make(map[uuid.UUID]*domain.Order),
		connects:    make(map[uuid.UUID]*domain.ConnectAccount),
		methods:     make(map[uuid.UUID]*domain.PayoutMethod),
		withdrawals: make(map[uuid.UUID]*domain.Withdrawal),
		creds:       make(map[uuid.UUID]*domain.UserSecurityCredential),
		events:      make(map[string]string),
	}
}

func (r *testRepo) PostLedgerEntry(ctx context.Context, draft domain.LedgerEntryDraft) (*domain.LedgerEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[draft.IdempotencyKey]; ok {
		return existing, false, nil
	}
	now := time.Now()
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
		CreatedAt:       now,
		CompletedAt:     &now,
	}
	r.entries[draft.IdempotencyKey] = entry
	r.entryOrder = append(r.entryOrder, draft.IdempotencyKey)
	return entry, true, nil
}

func (r *testRepo) FindLedgerEntryByKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		return entry, nil
	}
	return nil, store.ErrLedgerEntryNotFound
}

func (r *testRepo) BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var balance int64
	for _, entry := range r.entries {
		if entry.Status != domain.EntryStatusCompleted {
			continue
		}
		if entry.CreditAccountID == accountID {
			balance += entry.Amount
		}
		if entry.DebitAccountID == accountID {
			balance -= entry.Amount
		}
	}
	return balance, nil
}

func accountKey(ownerID *uuid.UUID, accountType domain.AccountType, currency string) string {
	owner := "platform"
	if ownerID != nil {
		owner = ownerID.String()
	}
	return fmt.Sprintf("%s|%s|%s", owner, accountType, currency)
}

func (r *testRepo) AccountFor(ctx context.Context, ownerID *uuid.UUID, accountType domain.AccountType, currency string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey(ownerID, accountType, currency)
	if account, ok := r.accounts[key]; ok {
		return account, nil
	}
	account := &domain.Account{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Type:     accountType,
		Currency: currency,
	}
	r.accounts[key] = account
	return account, nil
}

func (r *testRepo) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wallet, ok := r.wallets[userID]; ok {
		return wallet, nil
	}
	return nil, store.ErrWalletNotFound
}

func (r *testRepo) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		return user, nil
	}
	return nil, store.ErrUserNotFound
}

func (r *testRepo) FindRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if request, ok := r.requests[requestID]; ok {
		return request, nil
	}
	return nil, store.ErrRequestNotFound
}

func (r *testRepo) FindDepositByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Latest attempt wins, matching the store's ORDER BY created_at DESC.
	for i := len(r.depositIDs) - 1; i >= 0; i-- {
		if deposit := r.deposits[r.depositIDs[i]]; deposit.RequestID == requestID {
			return deposit, nil
		}
	}
	return nil, store.ErrDepositNotFound
}

func (r *testRepo) FindDepositByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, deposit := range r.deposits {
		if deposit.PaymentIntentID != nil && *deposit.PaymentIntentID == paymentIntentID {
			return deposit, nil
		}
	}
	return nil, store.ErrDepositNotFound
}

func (r *testRepo) CreateDeposit(ctx context.Context, deposit *domain.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors deposits_active_request_idx: failed attempts accumulate, but at
	// most one live deposit row may exist per request.
	for _, existing := range r.deposits {
		if existing.RequestID == deposit.RequestID && existing.Status != domain.DepositFailed {
			return fmt.Errorf("duplicate key value violates unique constraint %q", "deposits_active_request_idx")
		}
	}
	if deposit.CreatedAt.IsZero() {
		deposit.CreatedAt = time.Now()
	}
	r.deposits[deposit.ID] = deposit
	r.depositIDs = append(r.depositIDs, deposit.ID)
	return nil
}

func (r *testRepo) TransitionDepositStatus(ctx context.Context, depositID uuid.UUID, from []domain.DepositStatus, to domain.DepositStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deposit, ok := r.deposits[depositID]
	if !ok {
		return false, store.ErrDepositNotFound
	}
	for _, status := range from {
		if deposit.Status == status {
			deposit.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *testRepo) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order, ok := r.orders[orderID]; ok {
		return order, nil
	}
	return nil, store.ErrOrderNotFound
}

func (r *testRepo) FindOrderByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.OfferID == offerID {
			return order, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (r *testRepo) FindOrderByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.RequestID == requestID {
			return order, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (r *testRepo) FindAutoReleasableOrders(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.Status != domain.OrderPaid || order.DisputeOpenedAt != nil || order.PaidAt == nil {
			continue
		}
		if order.PaidAt.Before(paidBefore) {
			out = append(out, *order)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *testRepo) FindConnectAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.ConnectAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if connect, ok := r.connects[userID]; ok {
		return connect, nil
	}
	return nil, store.ErrConnectNotFound
}

func (r *testRepo) SaveConnectAccount(ctx context.Context, account *domain.ConnectAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects[account.UserID] = account
	return nil
}

func (r *testRepo) UpdateConnectAccountFlags(ctx context.Context, externalAccountID string, onboardingComplete, payoutsEnabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, connect := range r.connects {
		if connect.ExternalAccountID != nil && *connect.ExternalAccountID == externalAccountID {
			connect.OnboardingComplete = onboardingComplete
			connect.PayoutsEnabled = payoutsEnabled
			return nil
		}
	}
	return store.ErrConnectNotFound
}

func (r *testRepo) FindPayoutMethodByID(ctx context.Context, payoutMethodID uuid.UUID) (*domain.PayoutMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if method, ok := r.methods[payoutMethodID]; ok {
		return method, nil
	}
	return nil, store.ErrPayoutMethodNotFound
}

func (r *testRepo) UpdatePayoutMethodStatus(ctx context.Context, payoutMethodID uuid.UUID, status domain.PayoutMethodStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	method, ok := r.methods[payoutMethodID]
	if !ok {
		return store.ErrPayoutMethodNotFound
	}
	method.Status = status
	return nil
}

func (r *testRepo) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawals[withdrawal.ID] = withdrawal
	return nil
}

func (r *testRepo) MarkWithdrawalProcessing(ctx context.Context, withdrawalID uuid.UUID, externalPayoutID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	withdrawal, ok := r.withdrawals[withdrawalID]
	if !ok {
		return store.ErrWithdrawalNotFound
	}
	withdrawal.Status = domain.WithdrawalProcessing
	withdrawal.ExternalPayoutID = &externalPayoutID
	return nil
}

func (r *testRepo) MarkWithdrawalCompleted(ctx context.Context, externalPayoutID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, withdrawal := range r.withdrawals {
		if withdrawal.ExternalPayoutID != nil && *withdrawal.ExternalPayoutID == externalPayoutID {
			withdrawal.Status = domain.WithdrawalCompleted
			return nil
		}
	}
	return store.ErrWithdrawalNotFound
}

func (r *testRepo) MarkWithdrawalFailed(ctx context.Context, withdrawalID uuid.UUID, failureReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	withdrawal, ok := r.withdrawals[withdrawalID]
	if !ok {
		return store.ErrWithdrawalNotFound
	}
	withdrawal.Status = domain.WithdrawalFailed
	withdrawal.FailureReason = &failureReason
	return nil
}

func (r *testRepo) FindWithdrawalByExternalPayoutID(ctx context.Context, externalPayoutID string) (*domain.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, withdrawal := range r.withdrawals {
		if withdrawal.ExternalPayoutID != nil && *withdrawal.ExternalPayoutID == externalPayoutID {
			return withdrawal, nil
		}
	}
	return nil, store.ErrWithdrawalNotFound
}

func (r *testRepo) SumPendingWithdrawalHolds(ctx context.Context, userID uuid.UUID, currency string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, withdrawal := range r.withdrawals {
		if withdrawal.UserID == userID && withdrawal.Currency == currency && withdrawal.Status == domain.WithdrawalRequested {
			total += withdrawal.Amount
		}
	}
	return total, nil
}

func (r *testRepo) GetUserSecurityCredentialByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.creds[userID]; ok {
		return cred, nil
	}
	return nil, store.ErrTransactionPINNotSet
}

func (r *testRepo) RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts, lockoutDurationSeconds int) (*domain.UserSecurityCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[userID]
	if !ok {
		return nil, store.ErrTransactionPINNotSet
	}
	cred.FailedAttempts++
	if cred.FailedAttempts >= maxAttempts {
		until := time.Now().Add(time.Duration(lockoutDurationSeconds) * time.Second)
		cred.LockedUntil = &until
	}
	return cred, nil
}

func (r *testRepo) ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.creds[userID]; ok {
		cred.FailedAttempts = 0
		cred.LockedUntil = nil
	}
	return nil
}

func (r *testRepo) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[eventID]; ok {
		return false, nil
	}
	r.events[eventID] = eventType
	return true, nil
}

func (r *testRepo) UnmarkEvent(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, eventID)
	return nil
}

// entryByKey is a test convenience for asserting on postings.
func (r *testRepo) entryByKey(key string) *domain.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key]
}

func (r *testRepo) entryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// testProcessor records processor calls and returns canned results or errors.
type testProcessor struct {
	mu sync.Mutex

	intentErr   error
	transferErr error
	payoutErr   error
	refundErr   error
	accountErr  error

	intents   []stripeclient.PaymentIntentParams
	transfers []stripeclient.TransferParams
	payouts   []stripeclient.PayoutParams
	refunds   []int64
	accounts  []stripeclient.AccountParams
}

func (p *testProcessor) CreatePaymentIntent(ctx context.Context, params stripeclient.PaymentIntentParams) (*stripeclient.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.intentErr != nil {
		return nil, p.intentErr
	}
	p.intents = append(p.intents, params)
	return &stripeclient.PaymentIntent{
		ID:       fmt.Sprintf("pi_%d", len(p.intents)),
		Amount:   params.Amount,
		Currency: params.Currency,
		Status:   "requires_payment_method",
	}, nil
}

func (p *testProcessor) CreateRefund(ctx context.Context, paymentIntentID string, amount int64) (*stripeclient.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	p.refunds = append(p.refunds, amount)
	return &stripeclient.Refund{ID: "re_1", Status: "succeeded"}, nil
}

func (p *testProcessor) CreateTransfer(ctx context.Context, params stripeclient.TransferParams) (*stripeclient.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transferErr != nil {
		return nil, p.transferErr
	}
	p.transfers = append(p.transfers, params)
	return &stripeclient.Transfer{ID: fmt.Sprintf("tr_%d", len(p.transfers)), Amount: params.Amount}, nil
}

func (p *testProcessor) CreatePayout(ctx context.Context, params stripeclient.PayoutParams) (*stripeclient.Payout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payoutErr != nil {
		return nil, p.payoutErr
	}
	p.payouts = append(p.payouts, params)
	return &stripeclient.Payout{ID: fmt.Sprintf("po_%d", len(p.payouts)), Status: "pending"}, nil
}

func (p *testProcessor) CreateAccount(ctx context.Context, params stripeclient.AccountParams) (*stripeclient.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accountErr != nil {
		return nil, p.accountErr
	}
	p.accounts = append(p.accounts, params)
	return &stripeclient.Account{ID: fmt.Sprintf("acct_%d", len(p.accounts))}, nil
}

func (p *testProcessor) CreateAccountLink(ctx context.Context, accountID string) (*stripeclient.AccountLink, error) {
	return &stripeclient.AccountLink{URL: "https://onboarding.example/" + accountID}, nil
}

func testSettings() Settings {
	return Settings{
		ServiceFeePercent:  decimal.NewFromInt(15),
		ServiceFeeCap:      15000,
		PlatformFeePercent: decimal.NewFromInt(5),
		DepositFloorEUR:    2500,
		FXRates:            map[string]decimal.Decimal{"PLN": decimal.NewFromFloat(4.3)},
		MinWithdrawal:      1000,
		AutoReleaseAfter:   14 * 24 * time.Hour,
		PINMaxAttempts:     5,
		PINLockoutSeconds:  600,
	}
}

func newTestService(repo *testRepo, processor *testProcessor) *Service {
	return NewService(repo, processor, nil, testSettings())
}
