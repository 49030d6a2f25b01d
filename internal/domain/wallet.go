/**
 * @description
 * Domain models for wallets, deposits, withdrawals, payout methods and the
 * processor-side connect accounts. These structs map to their database tables and
 * are shared between the store, app and api layers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletStatus gates a user's outgoing operations. A frozen or closed wallet blocks
// withdrawals and new deposits but never blocks incoming credits.
type WalletStatus string

const (
	WalletActive WalletStatus = "ACTIVE"
	WalletFrozen WalletStatus = "FROZEN"
	WalletClosed WalletStatus = "CLOSED"
)

// Wallet aggregates one user's AVAILABLE/PENDING/FROZEN accounts.
type Wallet struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	Status    WalletStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// User is the simplified view of a marketplace user needed by the wallet-service.
type User struct {
	ID         uuid.UUID `json:"id"`
	IsTraveler bool      `json:"is_traveler"`
	Country    string    `json:"country"` // free-form country of residence
}

// RequestStatus is the marketplace request lifecycle, consumed but not owned here.
type RequestStatus string

const (
	RequestOpen      RequestStatus = "OPEN"
	RequestMatched   RequestStatus = "MATCHED"
	RequestCompleted RequestStatus = "COMPLETED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// Request is a buyer's delivery request; the deposit attaches to it.
type Request struct {
	ID         uuid.UUID     `json:"id"`
	BuyerID    uuid.UUID     `json:"buyer_id"`
	Status     RequestStatus `json:"status"`
	GoodsValue int64         `json:"goods_value"` // minor units
	Currency   string        `json:"currency"`
	CreatedAt  time.Time     `json:"created_at"`
}

// DepositStatus is the deposit state machine. TRANSFERRED and REFUNDED are terminal.
type DepositStatus string

const (
	DepositNone           DepositStatus = "NONE"
	DepositCreated        DepositStatus = "CREATED"
	DepositRequiresAction DepositStatus = "REQUIRES_ACTION"
	DepositCaptured       DepositStatus = "CAPTURED"
	DepositTransferred    DepositStatus = "TRANSFERRED"
	DepositRefunded       DepositStatus = "REFUNDED"
	DepositFailed         DepositStatus = "FAILED"
)

// Deposit tracks a request's buyer payment through the processor lifecycle.
type Deposit struct {
	ID              uuid.UUID     `json:"id"`
	RequestID       uuid.UUID     `json:"request_id"`
	BuyerID         uuid.UUID     `json:"buyer_id"`
	Status          DepositStatus `json:"status"`
	Amount          int64         `json:"amount"` // minor units
	Currency        string        `json:"currency"`
	PaymentIntentID *string       `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// OrderStatus is the match/order lifecycle, consumed but not owned by the ledger.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderInProgress     OrderStatus = "IN_PROGRESS"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderRefunded       OrderStatus = "REFUNDED"
	OrderDisputed       OrderStatus = "DISPUTED"
	OrderCancelled      OrderStatus = "CANCELLED"
)

// Order links an accepted offer to its request and traveller.
type Order struct {
	ID              uuid.UUID   `json:"id"`
	OfferID         uuid.UUID   `json:"offer_id"`
	RequestID       uuid.UUID   `json:"request_id"`
	BuyerID         uuid.UUID   `json:"buyer_id"`
	TravelerID      uuid.UUID   `json:"traveler_id"`
	Status          OrderStatus `json:"status"`
	PaidAt          *time.Time  `json:"paid_at,omitempty"`
	DisputeOpenedAt *time.Time  `json:"dispute_opened_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// ConnectAccount tracks a traveller's processor sub-account lifecycle.
type ConnectAccount struct {
	UserID             uuid.UUID `json:"user_id"`
	ExternalAccountID  *string   `json:"external_account_id,omitempty"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	PayoutsEnabled     bool      `json:"payouts_enabled"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TransferEligible reports whether released funds may be transferred to this
// traveller's processor sub-account.
func (c *ConnectAccount) TransferEligible() bool {
	return c != nil && c.ExternalAccountID != nil && *c.ExternalAccountID != "" && c.PayoutsEnabled
}

// PayoutMethodStatus gates which saved destinations are usable for withdrawals.
type PayoutMethodStatus string

const (
	PayoutMethodPendingVerification PayoutMethodStatus = "PENDING_VERIFICATION"
	PayoutMethodVerified            PayoutMethodStatus = "VERIFIED"
	PayoutMethodFailed              PayoutMethodStatus = "FAILED"
	PayoutMethodDisabled            PayoutMethodStatus = "DISABLED"
)

// PayoutMethod is a user's verified external withdrawal destination.
type PayoutMethod struct {
	ID         uuid.UUID          `json:"id"`
	UserID     uuid.UUID          `json:"user_id"`
	Status     PayoutMethodStatus `json:"status"`
	ExternalID string             `json:"external_id"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// WithdrawalStatus tracks a payout request through the processor.
type WithdrawalStatus string

const (
	WithdrawalRequested  WithdrawalStatus = "REQUESTED"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// Withdrawal is one payout attempt from a user's AVAILABLE balance.
type Withdrawal struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	PayoutMethodID   uuid.UUID        `json:"payout_method_id"`
	Amount           int64            `json:"amount"` // minor units
	Currency         string           `json:"currency"`
	Status           WithdrawalStatus `json:"status"`
	ExternalPayoutID *string          `json:"external_payout_id,omitempty"`
	FailureReason    *string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// WithdrawalResult is returned to the caller after the processor accepted a payout.
type WithdrawalResult struct {
	WithdrawalID     uuid.UUID `json:"withdrawal_id"`
	AvailableBalance int64     `json:"available_balance"`
	ExternalPayoutID string    `json:"external_payout_id"`
}

// UserSecurityCredential stores server-owned transaction PIN security metadata.
type UserSecurityCredential struct {
	UserID             uuid.UUID  `json:"user_id"`
	TransactionPINHash string     `json:"-"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
}
