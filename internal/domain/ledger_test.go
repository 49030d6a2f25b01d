package domain

import "testing"

func TestLedgerKey(t *testing.T) {
	got := LedgerKey(EntryRelease, ReferenceOrder, "ord_123")
	if got != "RELEASE:ORDER:ord_123" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestAccountTypeOwnership(t *testing.T) {
	platformOnly := []AccountType{AccountPlatformFees, AccountPlatformEscrow, AccountPlatformClearing}
	for _, at := range platformOnly {
		if !at.IsPlatformOnly() || at.IsUserType() {
			t.Errorf("%s: expected platform-only", at)
		}
	}
	userTypes := []AccountType{AccountAvailable, AccountPending, AccountFrozen}
	for _, at := range userTypes {
		if !at.IsUserType() || at.IsPlatformOnly() {
			t.Errorf("%s: expected user-owned", at)
		}
	}
}

func TestTransferEligible(t *testing.T) {
	acct := "acct_1"
	empty := ""

	cases := []struct {
		name    string
		connect *ConnectAccount
		want    bool
	}{
		{"nil account", nil, false},
		{"no external id", &ConnectAccount{PayoutsEnabled: true}, false},
		{"empty external id", &ConnectAccount{ExternalAccountID: &empty, PayoutsEnabled: true}, false},
		{"payouts disabled", &ConnectAccount{ExternalAccountID: &acct}, false},
		{"ready", &ConnectAccount{ExternalAccountID: &acct, PayoutsEnabled: true}, true},
	}
	for _, tc := range cases {
		if got := tc.connect.TransferEligible(); got != tc.want {
			t.Errorf("%s: TransferEligible() = %t, want %t", tc.name, got, tc.want)
		}
	}
}
