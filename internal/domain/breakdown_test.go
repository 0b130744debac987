package domain

import (
	"testing"
)

func TestComputeBreakdownFreeOverridesOption(t *testing.T) {
	for _, option := range []PaymentOption{PaymentOptionUpfront, PaymentOptionSplit, PaymentOptionLater} {
		b := ComputeBreakdown(option, 0, 0, nil)
		if !b.IsFree {
			t.Fatalf("expected free breakdown for %s", option)
		}
		if b.DepositAmount != 0 || b.RemainingAmount != 0 || b.AmountDueNow != 0 || b.AmountRemaining != 0 {
			t.Fatalf("expected all-zero amounts for free %s order, got %+v", option, b)
		}
		if !b.DepositSatisfied {
			t.Fatalf("free order should satisfy deposit")
		}
	}
}

func TestComputeBreakdownUpfront(t *testing.T) {
	b := ComputeBreakdown(PaymentOptionUpfront, 20000, 0, nil)
	if b.AmountDueNow != 20000 {
		t.Fatalf("expected full price due now, got %d", b.AmountDueNow)
	}
	if b.DepositAmount != 20000 || b.RemainingAmount != 0 {
		t.Fatalf("unexpected deposit split %d/%d", b.DepositAmount, b.RemainingAmount)
	}
	if b.AmountRemaining != 20000 {
		t.Fatalf("expected remaining 20000, got %d", b.AmountRemaining)
	}
	if b.IsFree {
		t.Fatalf("paid order flagged free")
	}
}

func TestComputeBreakdownSplitDefaultDeposit(t *testing.T) {
	b := ComputeBreakdown(PaymentOptionSplit, 10000, 0, nil)
	if b.DepositAmount != 5000 {
		t.Fatalf("expected 50%% deposit 5000, got %d", b.DepositAmount)
	}
	if b.RemainingAmount != 5000 {
		t.Fatalf("expected remaining 5000, got %d", b.RemainingAmount)
	}
	if b.AmountDueNow != 5000 {
		t.Fatalf("expected deposit due now, got %d", b.AmountDueNow)
	}
}

func TestComputeBreakdownSplitRoundsHalfUpToCent(t *testing.T) {
	b := ComputeBreakdown(PaymentOptionSplit, 9999, 0, nil)
	if b.DepositAmount != 5000 {
		t.Fatalf("expected deposit rounded to 5000, got %d", b.DepositAmount)
	}
	if b.RemainingAmount != 4999 {
		t.Fatalf("expected remaining 4999, got %d", b.RemainingAmount)
	}
}

func TestComputeBreakdownSplitHonorsExplicitZeroDeposit(t *testing.T) {
	var zero int64
	b := ComputeBreakdown(PaymentOptionSplit, 10000, 0, &zero)
	if b.DepositAmount != 0 {
		t.Fatalf("explicit zero deposit must be honored, got %d", b.DepositAmount)
	}
	if b.RemainingAmount != 10000 {
		t.Fatalf("expected full remaining balance, got %d", b.RemainingAmount)
	}
	if !b.DepositSatisfied {
		t.Fatalf("zero deposit should be satisfied immediately")
	}
}

func TestComputeBreakdownSplitDepositOverride(t *testing.T) {
	override := int64(2500)
	b := ComputeBreakdown(PaymentOptionSplit, 10000, 2500, &override)
	if b.DepositAmount != 2500 || b.RemainingAmount != 7500 {
		t.Fatalf("unexpected split %d/%d", b.DepositAmount, b.RemainingAmount)
	}
	if !b.DepositSatisfied {
		t.Fatalf("paid deposit should be satisfied")
	}
	if b.AmountRemaining != 7500 {
		t.Fatalf("expected raw remaining 7500, got %d", b.AmountRemaining)
	}
}

func TestComputeBreakdownLater(t *testing.T) {
	b := ComputeBreakdown(PaymentOptionLater, 8000, 0, nil)
	if b.AmountDueNow != 0 {
		t.Fatalf("later option must owe nothing now, got %d", b.AmountDueNow)
	}
	if b.DepositAmount != 0 || b.RemainingAmount != 8000 {
		t.Fatalf("unexpected split %d/%d", b.DepositAmount, b.RemainingAmount)
	}
	if b.DepositSatisfied != true {
		t.Fatalf("zero deposit is satisfied by definition")
	}
}

func TestDisplayRemainingClampsOverpayment(t *testing.T) {
	b := ComputeBreakdown(PaymentOptionUpfront, 5000, 6000, nil)
	if b.AmountRemaining != -1000 {
		t.Fatalf("ledger remaining must stay unclamped, got %d", b.AmountRemaining)
	}
	if b.DisplayRemaining() != 0 {
		t.Fatalf("display remaining must clamp at zero, got %d", b.DisplayRemaining())
	}
}
