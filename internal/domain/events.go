/**
 * @description
 * Message payloads published to RabbitMQ when wallet lifecycle milestones are
 * reached, and the inbound webhook envelope delivered by the payment processor.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DepositCapturedEvent is published after a capture webhook posted the deposit
// and fee allocation entries.
type DepositCapturedEvent struct {
	RequestID uuid.UUID `json:"request_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

// EscrowReleasedEvent is published after escrow moved to the traveller's pending
// balance on offer acceptance or via the auto-release sweep.
type EscrowReleasedEvent struct {
	RequestID   uuid.UUID `json:"request_id"`
	OrderID     uuid.UUID `json:"order_id"`
	TravelerID  uuid.UUID `json:"traveler_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	AutoRelease bool      `json:"auto_release"`
	Timestamp   time.Time `json:"timestamp"`
}

// DepositRefundedEvent is published after a captured deposit was refunded.
type DepositRefundedEvent struct {
	RequestID uuid.UUID `json:"request_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// WithdrawalCompletedEvent is published once the processor accepted a payout and
// the WITHDRAWAL entry was posted.
type WithdrawalCompletedEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	UserID       uuid.UUID `json:"user_id"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Timestamp    time.Time `json:"timestamp"`
}

// ProcessorEvent is the webhook envelope delivered by the payment processor.
// The event id is the idempotency boundary for the whole delivery.
type ProcessorEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentIntentObject is the payload of payment_intent.* events.
type PaymentIntentObject struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// TransferObject is the payload of transfer.* events. For payouts the id matches
// the withdrawal's external payout reference.
type TransferObject struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TransferGroup string `json:"transfer_group"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// AccountObject is the payload of account.updated events.
type AccountObject struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
}
