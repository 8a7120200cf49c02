/*
reservation.go - ReservationEngine: whole-field bookings under a 50% advance

PURPOSE:
  Owns the reservation state machine. Creating a reservation debits the
  creator's wallet by advance + platform fee and claims the slot in the same
  transaction; cancelling credits exactly what was debited and releases the
  slot.

STATE MACHINE:
  reserved -> confirmed_with_owner -> finished
  reserved -> cancelled

SETTLEMENT BOUNDARY:
  The remaining 50% is settled between creator and field owner off-platform.
  The engine exposes the outstanding figure for display only and never turns
  it into a wallet mutation; in-app money and off-platform settlement must
  not be conflated.

SEE ALSO:
  - match.go: The multiplayer sibling engine and the shared token helpers
  - pricing.go: Advance ratio and platform fee policy
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReservationEngine drives the lifecycle of single-party field reservations.
type ReservationEngine struct {
	store   TxStore
	catalog Catalog
	pricing Pricing
	retries int
}

func NewReservationEngine(store TxStore, catalog Catalog, pricing Pricing) *ReservationEngine {
	return &ReservationEngine{
		store:   store,
		catalog: catalog,
		pricing: pricing,
		retries: defaultRetryAttempts,
	}
}

// CreateReservationRequest describes a reservation of a free slot.
type CreateReservationRequest struct {
	Slot             Slot
	CreatorID        PlayerID
	IdempotencyToken string
}

// CreateReservation debits advance + fee from the creator and claims the
// slot, atomically. Fails with SlotOccupiedError or InsufficientBalanceError
// with no wallet effect.
func (e *ReservationEngine) CreateReservation(ctx context.Context, req CreateReservationRequest) (*Reservation, error) {
	if err := req.Slot.Validate(); err != nil {
		return nil, err
	}
	if r, ok, err := e.replayToken(ctx, req.IdempotencyToken, "create_reservation"); ok || err != nil {
		return r, err
	}

	field, err := e.catalog.Field(ctx, req.Slot.FieldID)
	if err != nil {
		return nil, fmt.Errorf("create reservation: field %s: %w", req.Slot.FieldID, err)
	}
	if !field.IsOpenAt(req.Slot) {
		return nil, fmt.Errorf("create reservation: field %s not open at %s: %w", field.ID, req.Slot, ErrNotJoinable)
	}

	r := &Reservation{
		ID:          ReservationID(uuid.NewString()),
		Slot:        req.Slot,
		CreatorID:   req.CreatorID,
		FullPrice:   field.HourlyPrice,
		Advance:     e.pricing.Advance(field.HourlyPrice),
		PlatformFee: e.pricing.PlatformFee,
		State:       ReservationReserved,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}

	err = withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			if err := NewSlotIndex(tx).Claim(ctx, req.Slot, r.Ref()); err != nil {
				return err
			}
			if _, err := NewWalletLedger(tx).Debit(ctx, req.CreatorID, r.AmountDebited(), r.Ref(), "reservation advance", entryKey(req.IdempotencyToken, "debit")); err != nil {
				return err
			}
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
			return recordToken(ctx, tx, req.IdempotencyToken, "create_reservation", r.Ref())
		})
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		r, _, err := e.replayToken(ctx, req.IdempotencyToken, "create_reservation")
		return r, err
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CancelReservation credits back exactly the amount debited at creation,
// marks the reservation cancelled, and releases the slot. Creator only;
// only from reserved.
func (e *ReservationEngine) CancelReservation(ctx context.Context, id ReservationID, actorID PlayerID, token string) (*Reservation, error) {
	if r, ok, err := e.replayToken(ctx, token, "cancel_reservation"); ok || err != nil {
		return r, err
	}

	var updated *Reservation
	err := withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			r, err := tx.GetReservation(ctx, id)
			if err != nil {
				return err
			}
			if r.CreatorID != actorID {
				return ErrUnauthorized
			}
			if r.State != ReservationReserved {
				return fmt.Errorf("cancel reservation %s in state %s: %w", r.ID, r.State, ErrNotJoinable)
			}

			if _, err := NewWalletLedger(tx).Credit(ctx, actorID, r.AmountDebited(), r.Ref(), "reservation cancelled", entryKey(token, "refund")); err != nil {
				return fmt.Errorf("refund reservation %s: %w", r.ID, err)
			}

			expect := r.Version
			r.State = ReservationCancelled
			if err := tx.UpdateReservation(ctx, r, expect); err != nil {
				return err
			}
			if err := NewSlotIndex(tx).Release(ctx, r.Slot); err != nil {
				return err
			}
			updated = r
			return recordToken(ctx, tx, token, "cancel_reservation", r.Ref())
		})
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		r, _, err := e.replayToken(ctx, token, "cancel_reservation")
		return r, err
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmWithOwner records that the creator arranged the remaining payment
// with the field owner. Creator only; reserved -> confirmed_with_owner.
// No wallet effect: the outstanding balance is settled off-platform.
func (e *ReservationEngine) ConfirmWithOwner(ctx context.Context, id ReservationID, actorID PlayerID, token string) (*Reservation, error) {
	return e.transition(ctx, id, actorID, token, "confirm_reservation", func(r *Reservation) error {
		if r.State != ReservationReserved {
			return fmt.Errorf("confirm reservation %s in state %s: %w", r.ID, r.State, ErrNotJoinable)
		}
		r.State = ReservationConfirmed
		return nil
	}, false)
}

// Finish terminates a confirmed reservation and releases the slot.
func (e *ReservationEngine) Finish(ctx context.Context, id ReservationID, actorID PlayerID, token string) (*Reservation, error) {
	return e.transition(ctx, id, actorID, token, "finish_reservation", func(r *Reservation) error {
		if r.State != ReservationConfirmed {
			return fmt.Errorf("finish reservation %s in state %s: %w", r.ID, r.State, ErrNotJoinable)
		}
		r.State = ReservationFinished
		return nil
	}, true)
}

func (e *ReservationEngine) transition(ctx context.Context, id ReservationID, actorID PlayerID, token, op string, apply func(*Reservation) error, releaseSlot bool) (*Reservation, error) {
	if r, ok, err := e.replayToken(ctx, token, op); ok || err != nil {
		return r, err
	}
	var updated *Reservation
	err := withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			r, err := tx.GetReservation(ctx, id)
			if err != nil {
				return err
			}
			if r.CreatorID != actorID {
				return ErrUnauthorized
			}
			expect := r.Version
			if err := apply(r); err != nil {
				return err
			}
			if err := tx.UpdateReservation(ctx, r, expect); err != nil {
				return err
			}
			if releaseSlot {
				if err := NewSlotIndex(tx).Release(ctx, r.Slot); err != nil {
					return err
				}
			}
			updated = r
			return recordToken(ctx, tx, token, op, r.Ref())
		})
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		r, _, err := e.replayToken(ctx, token, op)
		return r, err
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *ReservationEngine) replayToken(ctx context.Context, token, op string) (*Reservation, bool, error) {
	ref, ok, err := lookupToken(ctx, e.store, token, op, KindReservation)
	if !ok || err != nil {
		return nil, ok, err
	}
	r, err := e.store.GetReservation(ctx, ReservationID(ref.ID))
	return r, true, err
}
