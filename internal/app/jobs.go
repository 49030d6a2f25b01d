/**
 * @description
 * Scheduled job implementations for the wallet-service. The auto-release sweep
 * releases escrow for orders that have been paid for longer than the configured
 * window without a dispute, so travellers are not held hostage by inactive
 * buyers.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
)

const autoReleaseBatchSize = 100

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service *Service
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *slog.Logger) *Jobs {
	return &Jobs{
		service: service,
		logger:  logger,
	}
}

// RunAutoReleaseSweep releases escrow for every eligible aged order. Each
// release is idempotent, so overlapping or re-run sweeps cannot double-post.
func (j *Jobs) RunAutoReleaseSweep() {
	j.logger.Info("starting auto-release sweep")
	ctx := context.Background()

	cutoff := j.service.now().Add(-j.service.settings.AutoReleaseAfter)
	orders, err := j.service.repo.FindAutoReleasableOrders(ctx, cutoff, autoReleaseBatchSize)
	if err != nil {
		j.logger.Error("failed to list auto-releasable orders", "error", err)
		return
	}

	released := 0
	for i := range orders {
		order := orders[i]
		if err := j.service.releaseEscrow(ctx, &order, true); err != nil {
			if errors.Is(err, ErrTravellerNotPayoutReady) {
				// Traveller onboarding still incomplete; the next sweep retries.
				j.logger.Warn("skipping release, traveller not payout-ready",
					"order_id", order.ID, "traveler_id", order.TravelerID)
				continue
			}
			j.logger.Error("auto-release failed", "order_id", order.ID, "error", err)
			continue
		}
		released++
	}

	j.logger.Info("auto-release sweep finished", "eligible", len(orders), "released", released)
}
