/*
slot.go - SlotIndex: at most one active booking per (field, date, start)

The index is a thin façade over the store's uniqueness constraint. Claim never
performs a read-then-insert; the constraint itself decides the winner of
concurrent claims, so first-claim races resolve deterministically.
*/
package booking

import "context"

// SlotIndex enforces the one-active-booking-per-slot invariant.
type SlotIndex struct {
	store Store
}

func NewSlotIndex(store Store) *SlotIndex {
	return &SlotIndex{store: store}
}

// Claim records ref as the owner of the slot. On conflict it loads the
// existing owner and returns a SlotOccupiedError naming it.
func (i *SlotIndex) Claim(ctx context.Context, s Slot, ref BookingRef) error {
	err := i.store.ClaimSlot(ctx, s, ref)
	if err == nil {
		return nil
	}
	if !IsConflict(err) && !IsNotFound(err) {
		return err
	}
	existing, lookupErr := i.store.SlotClaim(ctx, s)
	if lookupErr != nil {
		// Claim lost the race but the winner released before we looked.
		// Report occupancy without an owner; the caller retries.
		return &SlotOccupiedError{Slot: s}
	}
	return &SlotOccupiedError{Slot: s, Existing: existing}
}

// Release frees the slot. Releasing an already-free slot is a no-op.
func (i *SlotIndex) Release(ctx context.Context, s Slot) error {
	return i.store.ReleaseSlot(ctx, s)
}

// Owner returns the active booking claiming the slot, or ErrNotFound.
func (i *SlotIndex) Owner(ctx context.Context, s Slot) (BookingRef, error) {
	return i.store.SlotClaim(ctx, s)
}
