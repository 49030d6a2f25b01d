/**
 * @description
 * This file defines the ledger domain models for the wallet-service. The ledger is
 * the source of truth for every balance in the system: balances are never stored as
 * mutable counters, they are derived by summing completed entries.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents/grosz), which
 *   avoids floating-point inaccuracies with financial data.
 * - Every entry is a single atomic debit+credit pair. Multi-account movements share a
 *   common reference id across several entries instead of using multi-leg records.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryType enumerates the fixed set of ledger posting types.
type EntryType string

const (
	EntryDeposit        EntryType = "DEPOSIT"
	EntryFeeAllocation  EntryType = "FEE_ALLOCATION"
	EntryTravelerCredit EntryType = "TRAVELER_CREDIT"
	EntryRelease        EntryType = "RELEASE"
	EntryWithdrawal     EntryType = "WITHDRAWAL"
	EntryRefund         EntryType = "REFUND"
	EntryFreeze         EntryType = "FREEZE"
	EntryUnfreeze       EntryType = "UNFREEZE"
	EntryAdjustment     EntryType = "ADJUSTMENT"
	EntryChargeback     EntryType = "CHARGEBACK"
)

// EntryStatus is the lifecycle status of a ledger entry. Only COMPLETED entries
// contribute to balances.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusReversed  EntryStatus = "REVERSED"
)

// ReferenceType names the marketplace entity a posting is anchored to.
type ReferenceType string

const (
	ReferenceRequest    ReferenceType = "REQUEST"
	ReferenceOrder      ReferenceType = "ORDER"
	ReferenceWithdrawal ReferenceType = "WITHDRAWAL"
	ReferenceManual     ReferenceType = "MANUAL"
)

// LedgerEntry is an immutable double-entry record moving value between two accounts.
// This struct maps directly to the `ledger_entries` table.
type LedgerEntry struct {
	ID              uuid.UUID     `json:"id"`
	Type            EntryType     `json:"type"`
	Amount          int64         `json:"amount"` // minor units, always > 0
	Currency        string        `json:"currency"`
	DebitAccountID  uuid.UUID     `json:"debit_account_id"`
	CreditAccountID uuid.UUID     `json:"credit_account_id"`
	IdempotencyKey  string        `json:"idempotency_key"`
	Status          EntryStatus   `json:"status"`
	ReferenceType   ReferenceType `json:"reference_type"`
	ReferenceID     string        `json:"reference_id"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// LedgerEntryDraft carries everything needed to post a new entry.
type LedgerEntryDraft struct {
	Type            EntryType
	Amount          int64
	Currency        string
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	IdempotencyKey  string
	ReferenceType   ReferenceType
	ReferenceID     string
}

// LedgerKey derives the canonical idempotency key for a posting so replays of the
// same (type, referenceType, referenceId) combination resolve to one stored entry.
func LedgerKey(entryType EntryType, refType ReferenceType, refID string) string {
	return fmt.Sprintf("%s:%s:%s", entryType, refType, refID)
}

// AccountType enumerates the named sub-accounts of the registry.
type AccountType string

const (
	AccountAvailable AccountType = "AVAILABLE"
	AccountPending   AccountType = "PENDING"
	AccountFrozen    AccountType = "FROZEN"
	// Platform-only account types.
	AccountPlatformFees   AccountType = "PLATFORM_FEES"
	AccountPlatformEscrow AccountType = "PLATFORM_ESCROW"
	// Clearing models the external processor rail so every posting stays a
	// two-leg pair: money entering or leaving the platform debits or credits it.
	AccountPlatformClearing AccountType = "PLATFORM_CLEARING"
)

// IsPlatformOnly reports whether the account type belongs to the platform owner.
func (t AccountType) IsPlatformOnly() bool {
	switch t {
	case AccountPlatformFees, AccountPlatformEscrow, AccountPlatformClearing:
		return true
	}
	return false
}

// IsUserType reports whether the account type belongs to a user owner.
func (t AccountType) IsUserType() bool {
	switch t {
	case AccountAvailable, AccountPending, AccountFrozen:
		return true
	}
	return false
}

// Account identifies one sub-account of a user or of the platform. A nil OwnerID
// means the platform owns the account. Balance is always derived from the ledger.
type Account struct {
	ID        uuid.UUID   `json:"id"`
	OwnerID   *uuid.UUID  `json:"owner_id,omitempty"` // nil for platform accounts
	Type      AccountType `json:"type"`
	Currency  string      `json:"currency"`
	CreatedAt time.Time   `json:"created_at"`
}

// LedgerSummaryRow is one row of the read-only admin aggregate: the sum of posted
// amounts for an entry type over a date range.
type LedgerSummaryRow struct {
	Type   EntryType `json:"type"`
	Count  int64     `json:"count"`
	Amount int64     `json:"amount"`
}
