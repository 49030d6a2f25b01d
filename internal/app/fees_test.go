package app

import (
	"testing"

	"github.com/peerhaul/wallet-service/internal/domain"
)

func TestComputeFees_StandardBreakdown(t *testing.T) {
	s := newTestService(newTestRepo(), &testProcessor{})

	// 100.00 EUR goods: 15% service fee, 5% of that kept by the platform.
	b := s.ComputeFees(10000, "EUR")

	if b.ServiceFee != 1500 {
		t.Fatalf("expected service fee 1500, got %d", b.ServiceFee)
	}
	if b.Total != 11500 {
		t.Fatalf("expected total 11500, got %d", b.Total)
	}
	if b.PlatformFee != 75 {
		t.Fatalf("expected platform fee 75, got %d", b.PlatformFee)
	}
	if b.TravelerAmount != 11425 {
		t.Fatalf("expected traveler amount 11425, got %d", b.TravelerAmount)
	}
	if b.PlatformFee+b.TravelerAmount != b.Total {
		t.Fatalf("breakdown does not sum to total: %d + %d != %d", b.PlatformFee, b.TravelerAmount, b.Total)
	}
}

func TestComputeFees_ServiceFeeCapped(t *testing.T) {
	s := newTestService(newTestRepo(), &testProcessor{})

	// 2000.00 EUR goods would yield a 300.00 service fee; the cap is 150.00.
	b := s.ComputeFees(200000, "EUR")

	if b.ServiceFee != 15000 {
		t.Fatalf("expected capped service fee 15000, got %d", b.ServiceFee)
	}
	if b.Total != 215000 {
		t.Fatalf("expected total 215000, got %d", b.Total)
	}
}

func TestComputeFees_CapConvertedForPLN(t *testing.T) {
	s := newTestService(newTestRepo(), &testProcessor{})

	// The EUR cap converts through the static rate (4.3): 15000 -> 64500.
	b := s.ComputeFees(2000000, "PLN")

	if b.ServiceFee != 64500 {
		t.Fatalf("expected converted cap 64500, got %d", b.ServiceFee)
	}
}

func TestDepositAmountFor_FloorsSmallDeposits(t *testing.T) {
	s := newTestService(newTestRepo(), &testProcessor{})

	// 10.00 EUR goods: total 11.50 is below the 25.00 floor.
	amount := s.DepositAmountFor(&domain.Request{GoodsValue: 1000, Currency: "EUR"})
	if amount != 2500 {
		t.Fatalf("expected floored deposit 2500, got %d", amount)
	}

	// Above the floor the fee total wins.
	amount = s.DepositAmountFor(&domain.Request{GoodsValue: 10000, Currency: "EUR"})
	if amount != 11500 {
		t.Fatalf("expected deposit 11500, got %d", amount)
	}
}

func TestDepositAmountFor_FloorConvertedForPLN(t *testing.T) {
	s := newTestService(newTestRepo(), &testProcessor{})

	// Floor 2500 EUR minor units -> 10750 grosz at rate 4.3.
	amount := s.DepositAmountFor(&domain.Request{GoodsValue: 1000, Currency: "PLN"})
	if amount != 10750 {
		t.Fatalf("expected converted floor 10750, got %d", amount)
	}
}

func TestPaymentMethodTypesPerCurrency(t *testing.T) {
	types := paymentMethodTypesFor("PLN")
	if len(types) != 3 || types[1] != "blik" || types[2] != "p24" {
		t.Fatalf("expected PLN to offer card, blik, p24; got %v", types)
	}

	types = paymentMethodTypesFor("EUR")
	if len(types) != 1 || types[0] != "card" {
		t.Fatalf("expected EUR to offer card only; got %v", types)
	}
}
