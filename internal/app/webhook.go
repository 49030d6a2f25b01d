/**
 * @description
 * Webhook event processing: the idempotency boundary keyed on the processor's
 * event id and the dispatch to the deposit, payout and connect engines.
 *
 * The event id is reserved in processed_events before any side effect runs. If
 * the dispatch fails the reservation is released so the processor's redelivery
 * can retry; every downstream handler is itself idempotent, so a crash between
 * dispatch and release is also healed by retry.
 */
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/peerhaul/wallet-service/internal/domain"
)

// Webhook outcome labels reported to metrics by the HTTP layer.
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeError     = "error"
)

// ProcessWebhookEvent applies one processor webhook delivery exactly once.
// Returns the outcome label; duplicates are acknowledged without side effects.
func (s *Service) ProcessWebhookEvent(ctx context.Context, event domain.ProcessorEvent) (string, error) {
	fresh, err := s.repo.MarkEventProcessed(ctx, event.ID, event.Type)
	if err != nil {
		return WebhookOutcomeError, fmt.Errorf("failed to record webhook event: %w", err)
	}
	if !fresh {
		log.Printf("level=info component=webhook msg=\"duplicate event skipped\" event_id=%s type=%s", event.ID, event.Type)
		return WebhookOutcomeDuplicate, nil
	}

	if err := s.dispatchWebhookEvent(ctx, event); err != nil {
		if unmarkErr := s.repo.UnmarkEvent(ctx, event.ID); unmarkErr != nil {
			log.Printf("level=error component=webhook msg=\"failed to release event reservation\" event_id=%s error=%q", event.ID, unmarkErr)
		}
		return WebhookOutcomeError, err
	}
	return WebhookOutcomeProcessed, nil
}

func (s *Service) dispatchWebhookEvent(ctx context.Context, event domain.ProcessorEvent) error {
	switch event.Type {
	case "payment_intent.succeeded":
		var intent domain.PaymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return fmt.Errorf("malformed payment_intent payload: %w", err)
		}
		return s.HandleCaptureConfirmed(ctx, intent.ID)

	case "payment_intent.payment_failed":
		var intent domain.PaymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return fmt.Errorf("malformed payment_intent payload: %w", err)
		}
		return s.HandleCaptureFailed(ctx, intent.ID)

	case "transfer.created":
		var transfer domain.TransferObject
		if err := json.Unmarshal(event.Data.Object, &transfer); err != nil {
			return fmt.Errorf("malformed transfer payload: %w", err)
		}
		return s.HandleTransferCreated(ctx, transfer.ID)

	case "transfer.failed":
		var transfer domain.TransferObject
		if err := json.Unmarshal(event.Data.Object, &transfer); err != nil {
			return fmt.Errorf("malformed transfer payload: %w", err)
		}
		return s.HandleTransferFailed(ctx, transfer.ID, transfer.FailureReason)

	case "account.updated":
		var account domain.AccountObject
		if err := json.Unmarshal(event.Data.Object, &account); err != nil {
			return fmt.Errorf("malformed account payload: %w", err)
		}
		return s.HandleAccountUpdated(ctx, account.ID, account.DetailsSubmitted, account.PayoutsEnabled)
	}

	// Unconsumed event types are acknowledged so the processor stops retrying.
	log.Printf("level=info component=webhook msg=\"unhandled event type acknowledged\" event_id=%s type=%s", event.ID, event.Type)
	return nil
}
