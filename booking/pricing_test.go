package booking_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pampeo/booking-engine/booking"
)

func TestPricing_PerSeatRoundsUpByDefault(t *testing.T) {
	p := booking.DefaultPricing()

	assert.Equal(t, "10.00", p.PricePerSeat(booking.MustParseMoney("100.00"), 10).String())
	assert.Equal(t, "9.00", p.PricePerSeat(booking.MustParseMoney("100.00"), 12).String())
	assert.Equal(t, "8.00", p.PricePerSeat(booking.MustParseMoney("90.00"), 12).String())
}

func TestPricing_PerSeatExactWithoutRounding(t *testing.T) {
	p := booking.DefaultPricing()
	p.RoundSeatPriceUp = false

	assert.Equal(t, "7.50", p.PricePerSeat(booking.MustParseMoney("90.00"), 12).String())
}

func TestPricing_ReservationCharge(t *testing.T) {
	p := booking.DefaultPricing()

	full := booking.MustParseMoney("100.00")
	assert.Equal(t, "50.00", p.Advance(full).String())
	assert.Equal(t, "50.50", p.ReservationCharge(full).String())
}

func TestPricing_CustomAdvanceRatio(t *testing.T) {
	p := booking.DefaultPricing()
	p.AdvanceRatio = decimal.NewFromFloat(0.3)

	assert.Equal(t, "30.00", p.Advance(booking.MustParseMoney("100.00")).String())
}

func TestFormat_SeatCount(t *testing.T) {
	seats, err := booking.Format5v5.SeatCount()
	assert.NoError(t, err)
	assert.Equal(t, 10, seats)

	seats, err = booking.Format6v6.SeatCount()
	assert.NoError(t, err)
	assert.Equal(t, 12, seats)

	_, err = booking.Format("3v3").SeatCount()
	assert.Error(t, err)
}

func TestSlot_Validate(t *testing.T) {
	valid := booking.Slot{FieldID: "f1", Date: "2026-09-05", Start: "18:00"}
	assert.NoError(t, valid.Validate())

	for name, s := range map[string]booking.Slot{
		"missing field": {Date: "2026-09-05", Start: "18:00"},
		"bad date":      {FieldID: "f1", Date: "05/09/2026", Start: "18:00"},
		"bad time":      {FieldID: "f1", Date: "2026-09-05", Start: "6pm"},
	} {
		assert.Error(t, s.Validate(), name)
	}
}
