/**
 * @description
 * Validation failure taxonomy for the wallet engines. All of these are local,
 * synchronous failures returned to the caller: never retried automatically and
 * never swallowed. Processor-side failures are recorded as terminal states on the
 * affected records instead.
 */

package app

import "errors"

var (
	// Deposit/escrow engine.
	ErrInvalidRequestState     = errors.New("request is not in a state that allows this operation")
	ErrDepositAlreadyActive    = errors.New("request already has an active deposit")
	ErrNotRefundable           = errors.New("deposit is not refundable")
	ErrTravellerNotPayoutReady = errors.New("traveller has not completed payout onboarding")
	ErrInvalidDisputeState     = errors.New("order is not in dispute")

	// Payout/withdrawal engine.
	ErrWalletNotActive     = errors.New("wallet is not active")
	ErrBelowMinimum        = errors.New("amount is below the minimum withdrawal")
	ErrInvalidPayoutMethod = errors.New("payout method is not verified or does not belong to the user")
	ErrInsufficientFunds   = errors.New("insufficient available funds")

	// Ledger store.
	ErrInvalidAccounts   = errors.New("debit and credit accounts must differ")
	ErrNonPositiveAmount = errors.New("posting amount must be positive")

	// Transaction PIN.
	ErrInvalidTransactionPIN = errors.New("invalid transaction pin")
	ErrTransactionPINLocked  = errors.New("transaction pin is temporarily locked")

	// Integrity. A replayed idempotency key whose stored entry disagrees with the
	// attempted posting is a fatal inconsistency that must halt processing.
	ErrLedgerIntegrity = errors.New("ledger integrity violation")
)
