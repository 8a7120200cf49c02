package booking_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pampeo/booking-engine/booking"
)

// =============================================================================
// CREATE
// =============================================================================

func TestCreateReservation_DebitsAdvancePlusFee(t *testing.T) {
	// GIVEN: A field priced 100.00/hour, advance 50%, fee 0.50, wallet 60.00
	// WHEN: Booking the whole field
	// THEN: Wallet drops to 9.50; outstanding 50.00 is owed off-platform

	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")

	res, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	r := res.Reservation
	assert.Equal(t, booking.ReservationReserved, r.State)
	assert.Equal(t, "100.00", r.FullPrice.String())
	assert.Equal(t, "50.00", r.Advance.String())
	assert.Equal(t, "0.50", r.PlatformFee.String())
	assert.Equal(t, "50.50", r.AmountDebited().String())
	assert.Equal(t, "9.50", res.WalletBalance.String())
	assert.Equal(t, "50.00", res.Outstanding.String())
}

func TestCreateReservation_InsufficientBalance_NothingHappens(t *testing.T) {
	// GIVEN: A wallet of 50.00 against a 50.50 charge
	// WHEN: Booking the field
	// THEN: InsufficientBalanceError; wallet and slot are untouched

	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "50.00")

	_, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	assert.ErrorIs(t, err, booking.ErrInsufficientBalance)

	w, err := f.Wallet(context.Background(), "booker")
	require.NoError(t, err)
	assert.Equal(t, "50.00", w.Balance.String())

	// The failed booking did not claim the slot
	seedWallet(t, s, "other", "60.00")
	_, err = f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "other",
	})
	assert.NoError(t, err)
}

func TestCreateReservation_OccupiedSlot_Rejected(t *testing.T) {
	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")
	seedWallet(t, s, "late", "60.00")

	_, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	_, err = f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "late",
	})
	assert.ErrorIs(t, err, booking.ErrSlotOccupied)

	w, err := f.Wallet(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, "60.00", w.Balance.String(), "loser keeps their balance")
}

func TestCreateReservation_ConcurrentSameSlot_SingleWinner(t *testing.T) {
	// Several funded players race for the same whole-field slot. Exactly one
	// reservation exists afterwards and only the winner was charged.

	f, s := newTestFacade(t)
	players := []string{"c-0", "c-1", "c-2", "c-3"}
	for _, p := range players {
		seedWallet(t, s, p, "60.00")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(players))
	for i, p := range players {
		wg.Add(1)
		go func(i int, player string) {
			defer wg.Done()
			_, errs[i] = f.CreateReservation(context.Background(), booking.CreateReservationRequest{
				Slot:      testSlot("18:00"),
				CreatorID: booking.PlayerID(player),
			})
		}(i, p)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		w, werr := f.Wallet(context.Background(), booking.PlayerID(players[i]))
		require.NoError(t, werr)
		if err == nil {
			winners++
			assert.Equal(t, "9.50", w.Balance.String())
			continue
		}
		assert.ErrorIs(t, err, booking.ErrSlotOccupied)
		assert.Equal(t, "60.00", w.Balance.String(), "loser %s must not be charged", players[i])
	}
	assert.Equal(t, 1, winners)
}

func TestCreateReservation_TokenReplay_SingleDebit(t *testing.T) {
	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "120.00")

	req := booking.CreateReservationRequest{
		Slot:             testSlot("18:00"),
		CreatorID:        "booker",
		IdempotencyToken: "res-tok",
	}
	first, err := f.CreateReservation(context.Background(), req)
	require.NoError(t, err)

	second, err := f.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Reservation.ID, second.Reservation.ID)
	assert.Equal(t, "69.50", second.WalletBalance.String(), "replay must not charge twice")
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancelReservation_RestoresFullBalance(t *testing.T) {
	// GIVEN: A booker who paid 50.50 from a 60.00 wallet
	// WHEN: Cancelling the reservation
	// THEN: The wallet is back at 60.00 and the slot frees up

	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")

	created, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	res, err := f.CancelReservation(context.Background(), created.Reservation.ID, "booker", "")
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationCancelled, res.Reservation.State)
	assert.Equal(t, "60.00", res.WalletBalance.String())

	// Slot is re-bookable, by a match this time
	seedWallet(t, s, "creator", "0.00")
	_, err = f.CreateMatch(context.Background(), booking.CreateMatchRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "creator",
		Format:    booking.Format5v5,
	})
	assert.NoError(t, err)
}

func TestCancelReservation_NonCreator_Forbidden(t *testing.T) {
	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")

	created, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	_, err = f.CancelReservation(context.Background(), created.Reservation.ID, "imposter", "")
	assert.ErrorIs(t, err, booking.ErrUnauthorized)
}

func TestCancelReservation_AfterConfirm_Rejected(t *testing.T) {
	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")

	created, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	_, err = f.ConfirmReservationWithOwner(context.Background(), created.Reservation.ID, "booker", "")
	require.NoError(t, err)

	_, err = f.CancelReservation(context.Background(), created.Reservation.ID, "booker", "")
	assert.ErrorIs(t, err, booking.ErrNotJoinable)
}

// =============================================================================
// CONFIRM / FINISH
// =============================================================================

func TestReservationLifecycle_ConfirmThenFinish(t *testing.T) {
	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")

	created, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	res, err := f.ConfirmReservationWithOwner(context.Background(), created.Reservation.ID, "booker", "")
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationConfirmed, res.Reservation.State)
	assert.Equal(t, "9.50", res.WalletBalance.String(), "confirming has no wallet effect")

	res, err = f.FinishReservation(context.Background(), created.Reservation.ID, "booker", "")
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationFinished, res.Reservation.State)

	// Finished reservation releases the slot
	seedWallet(t, s, "other", "60.00")
	_, err = f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "other",
	})
	assert.NoError(t, err)
}

func TestFinishReservation_BeforeConfirm_Rejected(t *testing.T) {
	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")

	created, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	_, err = f.FinishReservation(context.Background(), created.Reservation.ID, "booker", "")
	assert.ErrorIs(t, err, booking.ErrNotJoinable)
}

func TestConfirmReservation_TokenReplay_ReturnsRecordedOutcome(t *testing.T) {
	// GIVEN: A reservation confirmed with an idempotency token
	// WHEN: The same confirm request is retried with the same token
	// THEN: The recorded outcome comes back instead of ErrNotJoinable

	f, s := newTestFacade(t)
	seedWallet(t, s, "booker", "60.00")

	created, err := f.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	res, err := f.ConfirmReservationWithOwner(context.Background(), created.Reservation.ID, "booker", "confirm-tok")
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationConfirmed, res.Reservation.State)

	res, err = f.ConfirmReservationWithOwner(context.Background(), created.Reservation.ID, "booker", "confirm-tok")
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationConfirmed, res.Reservation.State)
	assert.Equal(t, "9.50", res.WalletBalance.String(), "replay has no wallet effect")
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestReservation_EndToEndWalletScenario(t *testing.T) {
	// The canonical arithmetic walk-through: field 100.00, advance 50%,
	// fee 0.50, wallet 60.00. Book -> 9.50, cancel -> 60.00, with the wallet
	// change log explaining every step.

	f, s := newTestFacade(t)
	ctx := context.Background()
	seedWallet(t, s, "booker", "60.00")

	created, err := f.CreateReservation(ctx, booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)
	assert.Equal(t, "9.50", created.WalletBalance.String())

	res, err := f.CancelReservation(ctx, created.Reservation.ID, "booker", "")
	require.NoError(t, err)
	assert.Equal(t, "60.00", res.WalletBalance.String())

	entries, err := f.WalletEntries(ctx, "booker", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	sum := booking.Money{}
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}
	assert.True(t, sum.IsZero(), "debit and refund cancel out, got %s", sum)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func TestOccupiedStartTimes_TracksActiveBookings(t *testing.T) {
	f, s := newTestFacade(t)
	ctx := context.Background()
	seedWallet(t, s, "booker", "60.00")
	seedWallet(t, s, "creator", "0.00")

	_, err := f.CreateReservation(ctx, booking.CreateReservationRequest{
		Slot:      testSlot("18:00"),
		CreatorID: "booker",
	})
	require.NoError(t, err)

	_, err = f.CreateMatch(ctx, booking.CreateMatchRequest{
		Slot:      testSlot("20:00"),
		CreatorID: "creator",
		Format:    booking.Format5v5,
	})
	require.NoError(t, err)

	occupied, err := f.OccupiedStartTimes(ctx, "field-1", "2026-09-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"18:00", "20:00"}, occupied)
}
