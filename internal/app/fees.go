/**
 * @description
 * Fee breakdown and currency conversion math. All percentage arithmetic runs on
 * shopspring/decimal and is rounded half-up to minor units at the very end, so the
 * platform fee and traveller amount always sum exactly to the captured total.
 *
 * The FX table is a static, business-set conversion (EUR base), not a live feed.
 * Deposit figures for non-EUR currencies are derived from it at request time.
 */

package app

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/peerhaul/wallet-service/internal/domain"
)

// FeeBreakdown decomposes a captured deposit into its components, in minor units.
type FeeBreakdown struct {
	GoodsValue     int64 `json:"goods_value"`
	ServiceFee     int64 `json:"service_fee"`
	Total          int64 `json:"total"`
	PlatformFee    int64 `json:"platform_fee"`
	TravelerAmount int64 `json:"traveler_amount"`
}

var oneHundred = decimal.NewFromInt(100)

// ComputeFees derives the deposit fee breakdown for a goods value. The service
// fee is a percentage of the goods value capped at a flat EUR figure (converted
// for other currencies); the platform keeps a percentage of the service fee and
// the traveller earns the remainder of the total.
func (s *Service) ComputeFees(goodsValue int64, currency string) FeeBreakdown {
	goods := decimal.NewFromInt(goodsValue)

	serviceFee := goods.Mul(s.settings.ServiceFeePercent).Div(oneHundred)
	cap := decimal.NewFromInt(s.convertFromEUR(s.settings.ServiceFeeCap, currency))
	if serviceFee.GreaterThan(cap) {
		serviceFee = cap
	}
	serviceFeeMinor := serviceFee.Round(0).IntPart()

	platformFee := decimal.NewFromInt(serviceFeeMinor).
		Mul(s.settings.PlatformFeePercent).Div(oneHundred).
		Round(0).IntPart()

	total := goodsValue + serviceFeeMinor
	return FeeBreakdown{
		GoodsValue:     goodsValue,
		ServiceFee:     serviceFeeMinor,
		Total:          total,
		PlatformFee:    platformFee,
		TravelerAmount: total - platformFee,
	}
}

// DepositAmountFor computes the amount the buyer is charged for a request: the
// fee breakdown total, floored at the flat per-currency minimum deposit.
func (s *Service) DepositAmountFor(request *domain.Request) int64 {
	total := s.ComputeFees(request.GoodsValue, request.Currency).Total
	floor := s.convertFromEUR(s.settings.DepositFloorEUR, request.Currency)
	if total < floor {
		return floor
	}
	return total
}

// convertFromEUR converts a EUR minor-unit figure through the static rate table.
// Unknown currencies fall back to the EUR figure unchanged.
func (s *Service) convertFromEUR(amountEUR int64, currency string) int64 {
	currency = strings.ToUpper(currency)
	if currency == "EUR" {
		return amountEUR
	}
	rate, ok := s.settings.FXRates[currency]
	if !ok {
		return amountEUR
	}
	return decimal.NewFromInt(amountEUR).Mul(rate).Round(0).IntPart()
}

// paymentMethodTypesFor returns the processor payment-method types offered per
// currency: EUR is card only, PLN additionally supports BLIK and P24.
func paymentMethodTypesFor(currency string) []string {
	if strings.EqualFold(currency, "PLN") {
		return []string{"card", "blik", "p24"}
	}
	return []string{"card"}
}
