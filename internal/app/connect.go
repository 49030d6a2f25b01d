/**
 * @description
 * Connect onboarding tracker: creates processor sub-accounts for travellers,
 * hands out hosted onboarding links and mirrors the processor's account flags
 * from account.updated webhooks.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/peerhaul/wallet-service/internal/domain"
	"github.com/peerhaul/wallet-service/internal/store"
	"github.com/peerhaul/wallet-service/pkg/stripeclient"
)

// ErrNotTraveler is returned when a non-traveller attempts payout onboarding.
var ErrNotTraveler = errors.New("user is not registered as a traveller")

// countryCodes maps the free-form residence country recorded at signup to the
// 2-letter code the processor requires. Unknown values fall back to the
// platform's home market, which onboarding later corrects if wrong.
var countryCodes = map[string]string{
	"poland":         "PL",
	"germany":        "DE",
	"france":         "FR",
	"spain":          "ES",
	"italy":          "IT",
	"netherlands":    "NL",
	"belgium":        "BE",
	"austria":        "AT",
	"portugal":       "PT",
	"ireland":        "IE",
	"czech republic": "CZ",
	"czechia":        "CZ",
	"slovakia":       "SK",
	"lithuania":      "LT",
	"latvia":         "LV",
	"estonia":        "EE",
	"united kingdom": "GB",
	"ukraine":        "UA",
}

// MapCountryCode normalizes a residence country to a processor country code.
func MapCountryCode(country string) string {
	normalized := strings.ToLower(strings.TrimSpace(country))
	if len(normalized) == 2 {
		return strings.ToUpper(normalized)
	}
	if code, ok := countryCodes[normalized]; ok {
		return code
	}
	return "PL"
}

// StartOnboarding ensures the traveller has a processor sub-account and returns
// a fresh hosted onboarding link. Safe to call repeatedly: an existing
// sub-account is reused and only the link is re-issued.
func (s *Service) StartOnboarding(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !user.IsTraveler {
		return "", ErrNotTraveler
	}

	connect, err := s.repo.FindConnectAccountByUserID(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrConnectNotFound) {
		return "", err
	}

	if connect == nil || connect.ExternalAccountID == nil || *connect.ExternalAccountID == "" {
		account, err := s.processor.CreateAccount(ctx, stripeclient.AccountParams{
			Country:  MapCountryCode(user.Country),
			Metadata: map[string]string{"user_id": userID.String()},
		})
		if err != nil {
			return "", fmt.Errorf("sub-account creation failed: %w", err)
		}
		connect = &domain.ConnectAccount{
			UserID:            userID,
			ExternalAccountID: &account.ID,
		}
		if err := s.repo.SaveConnectAccount(ctx, connect); err != nil {
			return "", fmt.Errorf("failed to persist connect account: %w", err)
		}
		log.Printf("level=info component=connect msg=\"sub-account created\" user_id=%s account=%s", userID, account.ID)
	}

	link, err := s.processor.CreateAccountLink(ctx, *connect.ExternalAccountID)
	if err != nil {
		return "", fmt.Errorf("onboarding link creation failed: %w", err)
	}
	return link.URL, nil
}

// HandleAccountUpdated mirrors the processor's onboarding flags, last write wins.
// Updates for accounts this service never created are logged and dropped.
func (s *Service) HandleAccountUpdated(ctx context.Context, externalAccountID string, detailsSubmitted, payoutsEnabled bool) error {
	if err := s.repo.UpdateConnectAccountFlags(ctx, externalAccountID, detailsSubmitted, payoutsEnabled); err != nil {
		if errors.Is(err, store.ErrConnectNotFound) {
			log.Printf("level=warn component=connect msg=\"account update for unknown sub-account\" account=%s", externalAccountID)
			return nil
		}
		return err
	}
	log.Printf("level=info component=connect msg=\"account flags updated\" account=%s details_submitted=%t payouts_enabled=%t",
		externalAccountID, detailsSubmitted, payoutsEnabled)
	return nil
}
