package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/peerhaul/wallet-service/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunAutoReleaseSweep_ReleasesAgedOrders(t *testing.T) {
	repo := newTestRepo()
	s := newTestService(repo, &testProcessor{})
	ctx := context.Background()

	request, _ := seedFundedRequest(repo)
	captureDeposit(t, s, repo, request)
	travelerID := seedTraveler(repo, true)
	order := seedOrder(repo, request, travelerID, domain.OrderPaid)
	paidAt := time.Now().Add(-15 * 24 * time.Hour)
	order.PaidAt = &paidAt

	jobs := NewJobs(s, testLogger())
	jobs.RunAutoReleaseSweep()

	deposit, _ := repo.FindDepositByRequestID(ctx, request.ID)
	if deposit.Status != domain.DepositTransferred {
		t.Fatalf("expected sweep to release escrow, deposit is %s", deposit.Status)
	}
	balances, _ := s.BalancesFor(ctx, travelerID, "EUR")
	if balances.Pending != 11425 {
		t.Fatalf("expected traveller pending 11425, got %d", balances.Pending)
	}

	// Re-running the sweep must not double-post.
	before := repo.entryCount()
	jobs.RunAutoReleaseSweep()
	if repo.entryCount() != before {
		t.Fatal("second sweep must be a no-op")
	}
}

func TestRunAutoReleaseSweep_SkipsRecentAndDisputedOrders(t *testing.T) {
	repo := newTestRepo()
	s := newTestService(repo, &testProcessor{})
	ctx := context.Background()

	// Recently paid order stays in escrow.
	recentRequest, _ := seedFundedRequest(repo)
	captureDeposit(t, s, repo, recentRequest)
	travelerID := seedTraveler(repo, true)
	recentOrder := seedOrder(repo, recentRequest, travelerID, domain.OrderPaid)
	recentPaid := time.Now().Add(-24 * time.Hour)
	recentOrder.PaidAt = &recentPaid

	// Aged but disputed order stays in escrow too.
	disputedRequest, _ := seedFundedRequest(repo)
	captureDeposit(t, s, repo, disputedRequest)
	disputedOrder := seedOrder(repo, disputedRequest, travelerID, domain.OrderPaid)
	agedPaid := time.Now().Add(-20 * 24 * time.Hour)
	disputeOpened := time.Now().Add(-time.Hour)
	disputedOrder.PaidAt = &agedPaid
	disputedOrder.DisputeOpenedAt = &disputeOpened

	NewJobs(s, testLogger()).RunAutoReleaseSweep()

	recentDeposit, _ := repo.FindDepositByRequestID(ctx, recentRequest.ID)
	if recentDeposit.Status != domain.DepositCaptured {
		t.Fatalf("expected recent order's deposit to stay CAPTURED, got %s", recentDeposit.Status)
	}
	disputedDeposit, _ := repo.FindDepositByRequestID(ctx, disputedRequest.ID)
	if disputedDeposit.Status != domain.DepositCaptured {
		t.Fatalf("expected disputed order's deposit to stay CAPTURED, got %s", disputedDeposit.Status)
	}
}

func TestRunAutoReleaseSweep_RetriesNotPayoutReady(t *testing.T) {
	repo := newTestRepo()
	s := newTestService(repo, &testProcessor{})
	ctx := context.Background()

	request, _ := seedFundedRequest(repo)
	captureDeposit(t, s, repo, request)
	travelerID := seedTraveler(repo, false)
	order := seedOrder(repo, request, travelerID, domain.OrderPaid)
	paidAt := time.Now().Add(-15 * 24 * time.Hour)
	order.PaidAt = &paidAt

	jobs := NewJobs(s, testLogger())
	jobs.RunAutoReleaseSweep()

	deposit, _ := repo.FindDepositByRequestID(ctx, request.ID)
	if deposit.Status != domain.DepositCaptured {
		t.Fatalf("expected deposit to stay CAPTURED while traveller is not payout-ready, got %s", deposit.Status)
	}

	// Once onboarding completes, the next sweep picks the order up.
	externalID := "acct_ready"
	repo.connects[travelerID] = &domain.ConnectAccount{
		UserID:            travelerID,
		ExternalAccountID: &externalID,
		PayoutsEnabled:    true,
	}
	jobs.RunAutoReleaseSweep()

	deposit, _ = repo.FindDepositByRequestID(ctx, request.ID)
	if deposit.Status != domain.DepositTransferred {
		t.Fatalf("expected release after onboarding, got %s", deposit.Status)
	}
}
