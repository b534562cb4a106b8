package service

import (
	providerdomain "github.com/tipwave/tipwave/internal/provider/domain"
	restaurantdomain "github.com/tipwave/tipwave/internal/restaurant/domain"
)

// computeNet applies the per-payout platform fee to the gross amount.
// When the restaurant absorbs the fee the employee receives gross and
// the fee is collected on the restaurant side instead.
func computeNet(grossCents, feeCents int64, feePayer string) int64 {
	if feePayer == restaurantdomain.FeePayerEmployee {
		return grossCents - feeCents
	}
	return grossCents
}

// instantCapable reports whether the destination payment method can
// receive instant funds.
func instantCapable(methodType string) bool {
	switch methodType {
	case providerdomain.MethodTypeRTP, providerdomain.MethodTypeRTPBank, providerdomain.MethodTypeDebitCard:
		return true
	}
	return false
}

// selectRail picks instant for amounts strictly above the restaurant's
// threshold, degrading to same-day ACH when the destination method
// cannot take instant funds. Amounts at or below the threshold always
// ride same-day ACH.
func selectRail(effectiveCents, thresholdCents int64, methodType string) string {
	if effectiveCents > thresholdCents && instantCapable(methodType) {
		return restaurantdomain.RailInstant
	}
	return restaurantdomain.RailSameDayACH
}
