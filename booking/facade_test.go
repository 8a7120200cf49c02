package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pampeo/booking-engine/booking"
	"github.com/pampeo/booking-engine/booking/store"
)

// =============================================================================
// TOP UP
// =============================================================================

func TestTopUp_CreatesWalletOnFirstUse(t *testing.T) {
	f, _ := newTestFacade(t)

	balance, err := f.TopUp(context.Background(), "newcomer", booking.MustParseMoney("25.00"), "")
	require.NoError(t, err)
	assert.Equal(t, "25.00", balance.String())

	entries, err := f.WalletEntries(context.Background(), "newcomer", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, booking.EntryCredit, entries[0].Kind)
	assert.Equal(t, booking.KindTopUp, entries[0].Reference.Kind)
}

func TestTopUp_AddsToExistingBalance(t *testing.T) {
	f, s := newTestFacade(t)
	seedWallet(t, s, "p1", "10.00")

	balance, err := f.TopUp(context.Background(), "p1", booking.MustParseMoney("15.50"), "")
	require.NoError(t, err)
	assert.Equal(t, "25.50", balance.String())
}

func TestTopUp_NonPositiveAmount_Rejected(t *testing.T) {
	f, _ := newTestFacade(t)

	_, err := f.TopUp(context.Background(), "p1", booking.Money{}, "")
	assert.Error(t, err)

	_, err = f.TopUp(context.Background(), "p1", booking.MustParseMoney("-5.00"), "")
	assert.Error(t, err)
}

func TestTopUp_TokenReplay_SingleCredit(t *testing.T) {
	f, _ := newTestFacade(t)

	_, err := f.TopUp(context.Background(), "p1", booking.MustParseMoney("25.00"), "topup-1")
	require.NoError(t, err)

	balance, err := f.TopUp(context.Background(), "p1", booking.MustParseMoney("25.00"), "topup-1")
	require.NoError(t, err)
	assert.Equal(t, "25.00", balance.String(), "replayed top up credits once")
}

// =============================================================================
// OPEN WINDOWS
// =============================================================================

func TestBooking_OutsideOpenWindow_Rejected(t *testing.T) {
	// GIVEN: A field only open Saturdays 10:00-22:00
	// WHEN: Booking a Saturday slot inside the window and one outside it
	// THEN: Only the in-window slot is accepted

	s := store.NewMemory()
	catalog := booking.StaticCatalog{
		"field-w": {
			ID:          "field-w",
			Name:        "Weekend Pitch",
			HourlyPrice: booking.MustParseMoney("100.00"),
			Format:      booking.Format5v5,
			OpenWindows: []booking.TimeWindow{
				{Weekday: time.Saturday, Start: "10:00", End: "22:00"},
			},
		},
	}
	f := booking.NewFacade(s, catalog, booking.DefaultPricing())
	seedWallet(t, s, "creator", "0.00")

	// 2026-09-05 is a Saturday
	_, err := f.CreateMatch(context.Background(), booking.CreateMatchRequest{
		Slot:      booking.Slot{FieldID: "field-w", Date: "2026-09-05", Start: "18:00"},
		CreatorID: "creator",
		Format:    booking.Format5v5,
	})
	assert.NoError(t, err)

	_, err = f.CreateMatch(context.Background(), booking.CreateMatchRequest{
		Slot:      booking.Slot{FieldID: "field-w", Date: "2026-09-05", Start: "23:00"},
		CreatorID: "creator",
		Format:    booking.Format5v5,
	})
	assert.ErrorIs(t, err, booking.ErrNotJoinable, "slot past closing is rejected")

	// 2026-09-07 is a Monday
	_, err = f.CreateMatch(context.Background(), booking.CreateMatchRequest{
		Slot:      booking.Slot{FieldID: "field-w", Date: "2026-09-07", Start: "18:00"},
		CreatorID: "creator",
		Format:    booking.Format5v5,
	})
	assert.ErrorIs(t, err, booking.ErrNotJoinable, "closed weekday is rejected")
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, booking.IsRetryable(booking.ErrConcurrentModification))
	assert.False(t, booking.IsRetryable(booking.ErrSlotFull))

	assert.True(t, booking.IsConflict(booking.ErrSlotOccupied))
	assert.True(t, booking.IsConflict(booking.ErrSlotFull))
	assert.True(t, booking.IsConflict(booking.ErrAlreadyConfirmed))
	assert.False(t, booking.IsConflict(booking.ErrNotFound))

	assert.True(t, booking.IsNotFound(booking.ErrNotFound))

	insufficient := &booking.InsufficientBalanceError{
		PlayerID:  "p1",
		Available: booking.MustParseMoney("5.00"),
		Requested: booking.MustParseMoney("10.00"),
	}
	assert.ErrorIs(t, insufficient, booking.ErrInsufficientBalance)
	assert.True(t, booking.IsClientError(insufficient))

	occupied := &booking.SlotOccupiedError{
		Slot:     booking.Slot{FieldID: "f1", Date: "2026-09-05", Start: "18:00"},
		Existing: booking.BookingRef{Kind: booking.KindMatch, ID: "m1"},
	}
	assert.ErrorIs(t, occupied, booking.ErrSlotOccupied)
}
