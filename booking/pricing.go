/*
pricing.go - Business pricing policy

PURPOSE:
  Centralizes the three pricing rules the engines apply so they are
  configuration, not constants scattered through call sites:

  1. Per-seat price of a match:   ceil(field hourly price / max seats)
  2. Reservation advance:         half the full field price
  3. Platform fee per reservation: a flat amount

  The round-up rule mirrors the existing billing behavior and is deliberately
  configurable; switching RoundSeatPriceUp off divides exactly instead.
*/
package booking

import "github.com/shopspring/decimal"

// Pricing holds the configurable pricing policy.
type Pricing struct {
	// AdvanceRatio is the fraction of the full field price charged up front
	// on a reservation. Default one half.
	AdvanceRatio decimal.Decimal

	// PlatformFee is the flat fee debited with every reservation advance.
	PlatformFee Money

	// RoundSeatPriceUp rounds the per-seat match price up to a whole unit.
	RoundSeatPriceUp bool
}

// DefaultPricing returns the production policy: 50% advance, 0.50 flat fee,
// per-seat price rounded up.
func DefaultPricing() Pricing {
	return Pricing{
		AdvanceRatio:     decimal.NewFromInt(1).Div(decimal.NewFromInt(2)),
		PlatformFee:      MustParseMoney("0.50"),
		RoundSeatPriceUp: true,
	}
}

// PricePerSeat computes what each confirmed participant pays for a match.
func (p Pricing) PricePerSeat(fieldPrice Money, maxSeats int) Money {
	perSeat := fieldPrice.Value.Div(decimal.NewFromInt(int64(maxSeats)))
	if p.RoundSeatPriceUp {
		perSeat = perSeat.Ceil()
	}
	return Money{Value: perSeat}
}

// Advance computes the up-front portion of a reservation.
func (p Pricing) Advance(fullPrice Money) Money {
	return Money{Value: fullPrice.Value.Mul(p.AdvanceRatio)}
}

// ReservationCharge is the total wallet debit for creating a reservation.
func (p Pricing) ReservationCharge(fullPrice Money) Money {
	return p.Advance(fullPrice).Add(p.PlatformFee)
}
