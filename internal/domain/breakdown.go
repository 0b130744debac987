package domain

// PaymentBreakdown captures the due-now/remaining split of an order's price.
// It is derived on every read from the order's payment option and ledger and
// is never persisted, so it cannot drift from the authoritative amounts.
type PaymentBreakdown struct {
	DepositAmount    int64
	RemainingAmount  int64
	AmountDueNow     int64
	AmountPaid       int64
	AmountRemaining  int64
	DepositSatisfied bool
	IsFree           bool
}

// DisplayRemaining clamps the outstanding balance at zero for presentation.
// The unclamped AmountRemaining stays available so an overpayment remains
// visible to reconciliation rather than being silently swallowed.
func (b PaymentBreakdown) DisplayRemaining() int64 {
	if b.AmountRemaining < 0 {
		return 0
	}
	return b.AmountRemaining
}

// ComputeBreakdown derives the payment breakdown for a booking. Amounts are
// minor units. splitDeposit overrides the default 50% deposit when provided;
// an explicit zero override is honored, not treated as missing.
func ComputeBreakdown(option PaymentOption, price int64, amountPaid int64, splitDeposit *int64) PaymentBreakdown {
	if price == 0 {
		// Free services override the payment option entirely.
		return PaymentBreakdown{IsFree: true, DepositSatisfied: true, AmountPaid: amountPaid}
	}

	breakdown := PaymentBreakdown{
		AmountPaid:      amountPaid,
		AmountRemaining: price - amountPaid,
	}

	switch option {
	case PaymentOptionUpfront:
		breakdown.DepositAmount = price
		breakdown.RemainingAmount = 0
		breakdown.AmountDueNow = price
	case PaymentOptionSplit:
		deposit := halfRoundedUp(price)
		if splitDeposit != nil {
			deposit = *splitDeposit
		}
		breakdown.DepositAmount = deposit
		breakdown.RemainingAmount = price - deposit
		breakdown.AmountDueNow = deposit
	case PaymentOptionLater:
		breakdown.DepositAmount = 0
		breakdown.RemainingAmount = price
		breakdown.AmountDueNow = 0
	}

	breakdown.DepositSatisfied = amountPaid >= breakdown.DepositAmount
	return breakdown
}

// halfRoundedUp returns half of the amount rounded half-up to the cent, so a
// 99.99 price yields a 50.00 deposit.
func halfRoundedUp(amount int64) int64 {
	return (amount + 1) / 2
}
