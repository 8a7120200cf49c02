/*
wallet.go - WalletLedger: atomic debit/credit over a player's balance

PURPOSE:
  The only mutation path for wallet balances. Each debit or credit performs a
  version-guarded balance write plus an immutable WalletEntry, so balances are
  always explainable from the entry log.

COMPOSABILITY:
  A WalletLedger wraps whatever Store it is given. The engines construct one
  over the transactional Store inside WithTx, so the balance write commits in
  the same transaction as the seat and state changes it pays for. It is never
  an independently-committed step.

CONCURRENCY:
  UpdateWallet is compare-and-swap on the wallet version. A conflicting
  concurrent write surfaces as ErrConcurrentModification, which the calling
  engine retries as a whole transaction.

SEE ALSO:
  - store.go: UpdateWallet / AppendWalletEntry contracts
  - match.go, reservation.go: Callers
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WalletLedger performs atomic debit and credit against the wallet rows of
// the Store it wraps.
type WalletLedger struct {
	store Store
}

func NewWalletLedger(store Store) *WalletLedger {
	return &WalletLedger{store: store}
}

// Debit decreases the player's balance by amount and records an entry.
// Fails with InsufficientBalanceError, leaving the wallet untouched, if the
// balance does not cover the amount. Returns the new balance.
func (l *WalletLedger) Debit(ctx context.Context, playerID PlayerID, amount Money, ref BookingRef, reason, idemKey string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("debit: negative amount %s", amount)
	}

	w, err := l.store.GetWallet(ctx, playerID)
	if err != nil {
		return Money{}, fmt.Errorf("debit: load wallet %s: %w", playerID, err)
	}
	if w.Balance.LessThan(amount) {
		return Money{}, &InsufficientBalanceError{
			PlayerID:  playerID,
			Available: w.Balance,
			Requested: amount,
		}
	}

	newBalance := w.Balance.Sub(amount)
	if err := l.store.UpdateWallet(ctx, playerID, newBalance, w.Version); err != nil {
		return Money{}, err
	}
	if err := l.store.AppendWalletEntry(ctx, l.entry(playerID, EntryDebit, amount.Neg(), ref, reason, idemKey)); err != nil {
		return Money{}, err
	}
	return newBalance, nil
}

// Credit increases the player's balance by amount and records an entry.
// Credits are never rejected for business reasons; only an unknown player or
// a storage conflict fails. Returns the new balance.
func (l *WalletLedger) Credit(ctx context.Context, playerID PlayerID, amount Money, ref BookingRef, reason, idemKey string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("credit: negative amount %s", amount)
	}

	w, err := l.store.GetWallet(ctx, playerID)
	if err != nil {
		return Money{}, fmt.Errorf("credit: load wallet %s: %w", playerID, err)
	}

	newBalance := w.Balance.Add(amount)
	if err := l.store.UpdateWallet(ctx, playerID, newBalance, w.Version); err != nil {
		return Money{}, err
	}
	if err := l.store.AppendWalletEntry(ctx, l.entry(playerID, EntryCredit, amount, ref, reason, idemKey)); err != nil {
		return Money{}, err
	}
	return newBalance, nil
}

// Balance returns the authoritative current balance.
func (l *WalletLedger) Balance(ctx context.Context, playerID PlayerID) (Money, error) {
	w, err := l.store.GetWallet(ctx, playerID)
	if err != nil {
		return Money{}, err
	}
	return w.Balance, nil
}

func (l *WalletLedger) entry(playerID PlayerID, kind EntryKind, delta Money, ref BookingRef, reason, idemKey string) WalletEntry {
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	return WalletEntry{
		ID:             EntryID(uuid.NewString()),
		PlayerID:       playerID,
		Kind:           kind,
		Delta:          delta,
		Reference:      ref,
		Reason:         reason,
		IdempotencyKey: idemKey,
		CreatedAt:      time.Now().UTC(),
	}
}
