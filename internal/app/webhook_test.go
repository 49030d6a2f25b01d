package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/peerhaul/wallet-service/internal/domain"
)

func processorEvent(id, eventType string, object interface{}) domain.ProcessorEvent {
	raw, _ := json.Marshal(object)
	event := domain.ProcessorEvent{ID: id, Type: eventType}
	event.Data.Object = raw
	return event
}

func TestProcessWebhookEvent_AppliesCaptureOnce(t *testing.T) {
	repo := newTestRepo()
	s := newTestService(repo, &testProcessor{})
	ctx := context.Background()

	request, buyerID := seedFundedRequest(repo)
	deposit, err := s.CreateDeposit(ctx, request.ID, buyerID)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	event := processorEvent("evt_1", "payment_intent.succeeded",
		domain.PaymentIntentObject{ID: *deposit.PaymentIntentID, Status: "succeeded"})

	outcome, err := s.ProcessWebhookEvent(ctx, event)
	if err != nil || outcome != WebhookOutcomeProcessed {
		t.Fatalf("expected processed, got outcome=%q err=%v", outcome, err)
	}
	if repo.deposits[deposit.ID].Status != domain.DepositCaptured {
		t.Fatalf("expected CAPTURED, got %s", repo.deposits[deposit.ID].Status)
	}

	// The same event id is a duplicate with no side effects.
	before := repo.entryCount()
	outcome, err = s.ProcessWebhookEvent(ctx, event)
	if err != nil || outcome != WebhookOutcomeDuplicate {
		t.Fatalf("expected duplicate, got outcome=%q err=%v", outcome, err)
	}
	if repo.entryCount() != before {
		t.Fatal("duplicate delivery must not post entries")
	}
}

func TestProcessWebhookEvent_FailedDispatchReleasesReservation(t *testing.T) {
	repo := newTestRepo()
	s := newTestService(repo, &testProcessor{})
	ctx := context.Background()

	event := domain.ProcessorEvent{ID: "evt_bad", Type: "payment_intent.succeeded"}
	event.Data.Object = []byte("{not json")

	outcome, err := s.ProcessWebhookEvent(ctx, event)
	if err == nil || outcome != WebhookOutcomeError {
		t.Fatalf("expected error outcome, got outcome=%q err=%v", outcome, err)
	}
	if _, recorded := repo.events["evt_bad"]; recorded {
		t.Fatal("expected reservation released so redelivery can retry")
	}
}

func TestProcessWebhookEvent_AcknowledgesUnhandledTypes(t *testing.T) {
	repo := newTestRepo()
	s := newTestService(repo, &testProcessor{})
	ctx := context.Background()

	event := processorEvent("evt_other", "charge.updated", map[string]string{"id": "ch_1"})
	outcome, err := s.ProcessWebhookEvent(ctx, event)
	if err != nil || outcome != WebhookOutcomeProcessed {
		t.Fatalf("expected unhandled type to be acknowledged, got outcome=%q err=%v", outcome, err)
	}
}

func TestProcessWebhookEvent_AccountUpdatedFlowsToConnect(t *testing.T) {
	repo := newTestRepo()
	s := newTestService(repo, &testProcessor{})
	ctx := context.Background()

	travelerID := seedTraveler(repo, true)
	externalID := *repo.connects[travelerID].ExternalAccountID

	event := processorEvent("evt_acct", "account.updated",
		domain.AccountObject{ID: externalID, DetailsSubmitted: true, PayoutsEnabled: true})
	if outcome, err := s.ProcessWebhookEvent(ctx, event); err != nil || outcome != WebhookOutcomeProcessed {
		t.Fatalf("expected processed, got outcome=%q err=%v", outcome, err)
	}
	if !repo.connects[travelerID].OnboardingComplete {
		t.Fatal("expected onboarding flag mirrored from webhook")
	}
}
