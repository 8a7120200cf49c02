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
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *store.Memory {
	t.Helper()
	return store.NewMemory()
}

func seedWallet(t *testing.T, s booking.Store, playerID string, balance string) {
	t.Helper()
	err := s.PutWallet(context.Background(), booking.Wallet{
		PlayerID:  booking.PlayerID(playerID),
		Balance:   booking.MustParseMoney(balance),
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func matchRef(id string) booking.BookingRef {
	return booking.BookingRef{Kind: booking.KindMatch, ID: id}
}

// =============================================================================
// DEBIT TESTS
// =============================================================================

func TestWalletLedger_Debit_UpdatesBalanceAndLog(t *testing.T) {
	// GIVEN: A player with 60.00
	// WHEN: Debiting 10.50
	// THEN: Balance is 49.50 and a debit entry with delta -10.50 is recorded

	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "p1", "60.00")

	ledger := booking.NewWalletLedger(s)
	balance, err := ledger.Debit(ctx, "p1", booking.MustParseMoney("10.50"), matchRef("m1"), "join match", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "49.50", balance.String())

	entries, err := s.WalletEntries(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, booking.EntryDebit, entries[0].Kind)
	assert.Equal(t, "-10.50", entries[0].Delta.String())
	assert.Equal(t, matchRef("m1"), entries[0].Reference)
}

func TestWalletLedger_Debit_InsufficientBalance_LeavesWalletUntouched(t *testing.T) {
	// GIVEN: A player with 5.00
	// WHEN: Debiting 10.00
	// THEN: InsufficientBalanceError, balance unchanged, no entry written

	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "p1", "5.00")

	ledger := booking.NewWalletLedger(s)
	_, err := ledger.Debit(ctx, "p1", booking.MustParseMoney("10.00"), matchRef("m1"), "join match", "tok-1")

	require.Error(t, err)
	var insufficientErr *booking.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficientErr)
	assert.ErrorIs(t, err, booking.ErrInsufficientBalance)
	assert.Equal(t, "5.00", insufficientErr.Available.String())
	assert.Equal(t, "10.00", insufficientErr.Requested.String())
	assert.Equal(t, "5.00", insufficientErr.Shortfall().String())

	w, err := s.GetWallet(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "5.00", w.Balance.String())

	entries, err := s.WalletEntries(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWalletLedger_Debit_ExactBalance_Allowed(t *testing.T) {
	// Draining the wallet to exactly zero is a valid debit.

	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "p1", "10.00")

	ledger := booking.NewWalletLedger(s)
	balance, err := ledger.Debit(ctx, "p1", booking.MustParseMoney("10.00"), matchRef("m1"), "join match", "tok-1")

	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestWalletLedger_Debit_UnknownPlayer(t *testing.T) {
	s := newTestStore(t)

	ledger := booking.NewWalletLedger(s)
	_, err := ledger.Debit(context.Background(), "ghost", booking.MustParseMoney("1.00"), matchRef("m1"), "join match", "tok-1")

	assert.ErrorIs(t, err, booking.ErrNotFound)
}

// =============================================================================
// CREDIT TESTS
// =============================================================================

func TestWalletLedger_Credit_UpdatesBalanceAndLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "p1", "49.50")

	ledger := booking.NewWalletLedger(s)
	balance, err := ledger.Credit(ctx, "p1", booking.MustParseMoney("10.50"), matchRef("m1"), "leave match", "tok-2")

	require.NoError(t, err)
	assert.Equal(t, "60.00", balance.String())

	entries, err := s.WalletEntries(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, booking.EntryCredit, entries[0].Kind)
	assert.Equal(t, "10.50", entries[0].Delta.String())
}

func TestWalletLedger_DuplicateEntryKey_Rejected(t *testing.T) {
	// GIVEN: A debit recorded under key "tok-1"
	// WHEN: Writing another entry with the same key
	// THEN: The second write fails and the balance reflects only the first

	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "p1", "60.00")

	ledger := booking.NewWalletLedger(s)
	_, err := ledger.Debit(ctx, "p1", booking.MustParseMoney("10.00"), matchRef("m1"), "join match", "tok-1")
	require.NoError(t, err)

	_, err = ledger.Debit(ctx, "p1", booking.MustParseMoney("10.00"), matchRef("m1"), "join match", "tok-1")
	assert.ErrorIs(t, err, booking.ErrDuplicateIdempotencyKey)
}

// =============================================================================
// CONSERVATION
// =============================================================================

func TestWalletLedger_BalanceEqualsEntrySum(t *testing.T) {
	// After arbitrary debits and credits, the balance must equal the initial
	// deposit plus the sum of all entry deltas.

	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "p1", "100.00")

	ledger := booking.NewWalletLedger(s)
	_, err := ledger.Debit(ctx, "p1", booking.MustParseMoney("30.00"), matchRef("m1"), "join", "k1")
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, "p1", booking.MustParseMoney("30.00"), matchRef("m1"), "refund", "k2")
	require.NoError(t, err)
	_, err = ledger.Debit(ctx, "p1", booking.MustParseMoney("12.50"), matchRef("m2"), "join", "k3")
	require.NoError(t, err)

	entries, err := s.WalletEntries(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	sum := booking.Money{}
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}

	w, err := s.GetWallet(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(booking.MustParseMoney("100.00").Add(sum)),
		"balance %s should equal 100.00 + entry sum %s", w.Balance, sum)
}
