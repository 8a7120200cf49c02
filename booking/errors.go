/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All expected booking outcomes in one place. Every error here is a
  recoverable business result returned to the caller, never a crash.

ERROR CATEGORIES:
  1. Slot errors      - Occupancy and capacity conflicts
  2. Lifecycle errors - Wrong state for the requested transition
  3. Wallet errors    - Balance and concurrency failures
  4. Store errors     - Persistence-level faults

USAGE:
  Callers match with errors.Is():

    if errors.Is(err, booking.ErrSlotFull) { ... }

  or extract context with errors.As():

    var ib *booking.InsufficientBalanceError
    if errors.As(err, &ib) { ... ib.Shortfall ... }

SEE ALSO:
  - match.go, reservation.go: Produce these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSlotOccupied is returned when an active booking already claims the
	// requested (field, date, start) slot.
	ErrSlotOccupied = errors.New("slot already occupied")

	// ErrSlotFull is returned when a join races for a seat that no longer
	// exists. The loser's wallet is untouched.
	ErrSlotFull = errors.New("match is full")

	// ErrNotJoinable is returned when the entity is in the wrong lifecycle
	// state for the requested transition.
	ErrNotJoinable = errors.New("wrong state for requested transition")

	// ErrAlreadyConfirmed is returned when a player joins a match they are
	// already confirmed in.
	ErrAlreadyConfirmed = errors.New("player already confirmed in match")

	// ErrNotAParticipant is returned when a player leaves a match they hold
	// no confirmed participation in.
	ErrNotAParticipant = errors.New("player is not a confirmed participant")

	// ErrTooLateToLeave is returned when a player tries to leave a match that
	// is in progress or later.
	ErrTooLateToLeave = errors.New("match already started, too late to leave")

	// ErrInsufficientBalance is returned when a debit exceeds the wallet balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is returned for an unknown match, reservation, player, or field.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when a compare-and-swap write
	// detects a conflicting update. Retried internally before surfacing.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnauthorized is returned when a non-creator attempts a creator-only action.
	ErrUnauthorized = errors.New("only the creator may perform this action")

	// ErrUnavailable is returned when the persistent store cannot be reached.
	// Always surfaced; never silently retried without bound.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrDuplicateIdempotencyKey is returned by stores when a wallet entry
	// with the same idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports how short the wallet is.
type InsufficientBalanceError struct {
	PlayerID  PlayerID
	Available Money
	Requested Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

func (e *InsufficientBalanceError) Shortfall() Money { return e.Requested.Sub(e.Available) }

// SlotOccupiedError reports which booking owns the contested slot.
type SlotOccupiedError struct {
	Slot     Slot
	Existing BookingRef
}

func (e *SlotOccupiedError) Error() string {
	return fmt.Sprintf("slot %s already claimed by %s", e.Slot, e.Existing)
}

func (e *SlotOccupiedError) Unwrap() error { return ErrSlotOccupied }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is a business outcome caused by the
// request itself, as opposed to an engine or storage fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSlotOccupied) ||
		errors.Is(err, ErrSlotFull) ||
		errors.Is(err, ErrNotJoinable) ||
		errors.Is(err, ErrAlreadyConfirmed) ||
		errors.Is(err, ErrNotAParticipant) ||
		errors.Is(err, ErrTooLateToLeave) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrUnauthorized)
}

// IsConflict returns true for conflicts another caller caused to win.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotOccupied) ||
		errors.Is(err, ErrSlotFull) ||
		errors.Is(err, ErrAlreadyConfirmed) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
