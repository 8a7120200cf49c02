/*
match.go - MatchEngine: lifecycle and seat accounting for pickup matches

PURPOSE:
  Owns the match state machine and its seat accounting, composing the
  WalletLedger and SlotIndex so a join's four effects -- wallet debit,
  participation upsert, seat increment, and a possible open->full transition
  -- commit as one atomic unit.

STATE MACHINE:
  open -> full -> in_progress -> finished
  open/full -> cancelled

  open:        seats available, players may join and leave
  full:        every seat confirmed; leaves reopen the match
  in_progress: started by the creator; leaving is now too late
  finished:    terminal; slot released
  cancelled:   terminal; every confirmed seat refunded, slot released

CONCURRENCY:
  Every operation runs inside Store.WithTx and re-reads the authoritative
  match row there, never trusting a cached projection. Seat decisions are
  guarded by the match version (compare-and-swap); the last seat of a race
  goes to exactly one caller, the other observes ErrSlotFull with an
  untouched wallet. Version conflicts are retried as whole transactions.

IDEMPOTENCY:
  Mutating operations accept a caller token. The token's outcome is recorded
  in the same transaction; a retried request that already committed replays
  the recorded outcome instead of double-charging.

SEE ALSO:
  - reservation.go: The single-party sibling engine
  - facade.go: Entry point routing to this engine
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENGINE
// =============================================================================

// MatchEngine drives the lifecycle of multiplayer matches.
type MatchEngine struct {
	store   TxStore
	catalog Catalog
	pricing Pricing
	retries int
}

func NewMatchEngine(store TxStore, catalog Catalog, pricing Pricing) *MatchEngine {
	return &MatchEngine{
		store:   store,
		catalog: catalog,
		pricing: pricing,
		retries: defaultRetryAttempts,
	}
}

// CreateMatchRequest describes a match to create on a free slot.
type CreateMatchRequest struct {
	Slot      Slot
	CreatorID PlayerID
	Format    Format

	// Exclusive makes slot contention an error. When false (the default, and
	// the behavior concurrent duplicate-create callers want), losing the
	// claim race to another *match* returns that winner instead of failing.
	Exclusive bool

	IdempotencyToken string
}

// =============================================================================
// CREATE
// =============================================================================

// CreateMatch creates an open match with zero confirmed seats and claims the
// slot. Concurrent duplicate creates resolve to a single winner; losers
// receive the winner unless Exclusive is set.
func (e *MatchEngine) CreateMatch(ctx context.Context, req CreateMatchRequest) (*Match, error) {
	if err := req.Slot.Validate(); err != nil {
		return nil, err
	}
	if m, ok, err := e.replayToken(ctx, req.IdempotencyToken, "create_match"); ok || err != nil {
		return m, err
	}

	field, err := e.catalog.Field(ctx, req.Slot.FieldID)
	if err != nil {
		return nil, fmt.Errorf("create match: field %s: %w", req.Slot.FieldID, err)
	}
	if !field.IsOpenAt(req.Slot) {
		return nil, fmt.Errorf("create match: field %s not open at %s: %w", field.ID, req.Slot, ErrNotJoinable)
	}

	maxSeats, err := req.Format.SeatCount()
	if err != nil {
		return nil, err
	}

	m := &Match{
		ID:           MatchID(uuid.NewString()),
		Slot:         req.Slot,
		Format:       req.Format,
		CreatorID:    req.CreatorID,
		MaxSeats:     maxSeats,
		PricePerSeat: e.pricing.PricePerSeat(field.HourlyPrice, maxSeats),
		State:        MatchOpen,
		Version:      1,
		CreatedAt:    time.Now().UTC(),
	}

	err = withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			if err := NewSlotIndex(tx).Claim(ctx, req.Slot, m.Ref()); err != nil {
				return err
			}
			if err := tx.InsertMatch(ctx, m); err != nil {
				return err
			}
			return recordToken(ctx, tx, req.IdempotencyToken, "create_match", m.Ref())
		})
	})

	var occupied *SlotOccupiedError
	if errors.As(err, &occupied) && !req.Exclusive && occupied.Existing.Kind == KindMatch {
		// Duplicate create: hand the caller the surviving match.
		return e.store.GetMatch(ctx, MatchID(occupied.Existing.ID))
	}
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		m, _, err := e.replayToken(ctx, req.IdempotencyToken, "create_match")
		return m, err
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// =============================================================================
// JOIN / LEAVE
// =============================================================================

// Join confirms a seat for the player, debiting the wallet by the per-seat
// price. The debit, participation, seat increment, and any open->full
// transition commit together or not at all.
func (e *MatchEngine) Join(ctx context.Context, matchID MatchID, playerID PlayerID, token string) (*Match, error) {
	if m, ok, err := e.replayToken(ctx, token, "join"); ok || err != nil {
		return m, err
	}

	var updated *Match
	err := withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			m, err := tx.GetMatch(ctx, matchID)
			if err != nil {
				return err
			}
			switch m.State {
			case MatchOpen:
			case MatchFull:
				return ErrSlotFull
			default:
				return fmt.Errorf("join match %s in state %s: %w", m.ID, m.State, ErrNotJoinable)
			}
			if m.ConfirmedSeats >= m.MaxSeats {
				return ErrSlotFull
			}

			p, err := tx.GetParticipation(ctx, matchID, playerID)
			if err != nil && !IsNotFound(err) {
				return err
			}
			if p != nil && p.Status == ParticipationConfirmed {
				return ErrAlreadyConfirmed
			}

			if _, err := NewWalletLedger(tx).Debit(ctx, playerID, m.PricePerSeat, m.Ref(), "match seat", entryKey(token, "debit")); err != nil {
				return err
			}

			now := time.Now().UTC()
			part := Participation{MatchID: matchID, PlayerID: playerID, Status: ParticipationConfirmed, JoinedAt: now, UpdatedAt: now}
			if p != nil {
				// Re-join after leaving reuses the record.
				part.JoinedAt = p.JoinedAt
			}
			if err := tx.UpsertParticipation(ctx, part); err != nil {
				return err
			}

			expect := m.Version
			m.ConfirmedSeats++
			if m.ConfirmedSeats == m.MaxSeats {
				m.State = MatchFull
			}
			if err := tx.UpdateMatch(ctx, m, expect); err != nil {
				return err
			}
			updated = m
			return recordToken(ctx, tx, token, "join", m.Ref())
		})
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		m, _, err := e.replayToken(ctx, token, "join")
		return m, err
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Leave releases the player's confirmed seat and credits the per-seat price
// back. A full match reopens. Leaving an in-progress or later match fails
// with ErrTooLateToLeave.
func (e *MatchEngine) Leave(ctx context.Context, matchID MatchID, playerID PlayerID, token string) (*Match, error) {
	if m, ok, err := e.replayToken(ctx, token, "leave"); ok || err != nil {
		return m, err
	}

	var updated *Match
	err := withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			m, err := tx.GetMatch(ctx, matchID)
			if err != nil {
				return err
			}
			if m.State == MatchInProgress || m.State == MatchFinished {
				return ErrTooLateToLeave
			}

			p, err := tx.GetParticipation(ctx, matchID, playerID)
			if err != nil {
				if IsNotFound(err) {
					return ErrNotAParticipant
				}
				return err
			}
			if p.Status != ParticipationConfirmed {
				return ErrNotAParticipant
			}

			if _, err := NewWalletLedger(tx).Credit(ctx, playerID, m.PricePerSeat, m.Ref(), "left match", entryKey(token, "credit")); err != nil {
				return err
			}

			p.Status = ParticipationLeft
			p.UpdatedAt = time.Now().UTC()
			if err := tx.UpsertParticipation(ctx, *p); err != nil {
				return err
			}

			expect := m.Version
			m.ConfirmedSeats--
			if m.State == MatchFull {
				m.State = MatchOpen
			}
			if err := tx.UpdateMatch(ctx, m, expect); err != nil {
				return err
			}
			updated = m
			return recordToken(ctx, tx, token, "leave", m.Ref())
		})
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		m, _, err := e.replayToken(ctx, token, "leave")
		return m, err
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// CANCEL / START / FINISH
// =============================================================================

// Cancel refunds every confirmed participant, marks the match cancelled, and
// releases the slot. Creator only; only from open or full. The multi-party
// refund is all-or-nothing: a single failed credit aborts the entire cancel.
func (e *MatchEngine) Cancel(ctx context.Context, matchID MatchID, actorID PlayerID, token string) (*Match, error) {
	if m, ok, err := e.replayToken(ctx, token, "cancel_match"); ok || err != nil {
		return m, err
	}

	var updated *Match
	err := withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			m, err := tx.GetMatch(ctx, matchID)
			if err != nil {
				return err
			}
			if m.CreatorID != actorID {
				return ErrUnauthorized
			}
			if m.State != MatchOpen && m.State != MatchFull {
				return fmt.Errorf("cancel match %s in state %s: %w", m.ID, m.State, ErrNotJoinable)
			}

			confirmed, err := tx.ListParticipations(ctx, matchID, ParticipationConfirmed)
			if err != nil {
				return err
			}

			wallets := NewWalletLedger(tx)
			now := time.Now().UTC()
			for _, p := range confirmed {
				// A refund failure must never be swallowed: it aborts the
				// transaction and no participant sees a partial cancel.
				if _, err := wallets.Credit(ctx, p.PlayerID, m.PricePerSeat, m.Ref(), "match cancelled", entryKey(token, "refund:"+string(p.PlayerID))); err != nil {
					return fmt.Errorf("refund %s: %w", p.PlayerID, err)
				}
				p.Status = ParticipationLeft
				p.UpdatedAt = now
				if err := tx.UpsertParticipation(ctx, p); err != nil {
					return err
				}
			}

			expect := m.Version
			m.ConfirmedSeats = 0
			m.State = MatchCancelled
			if err := tx.UpdateMatch(ctx, m, expect); err != nil {
				return err
			}
			if err := NewSlotIndex(tx).Release(ctx, m.Slot); err != nil {
				return err
			}
			updated = m
			return recordToken(ctx, tx, token, "cancel_match", m.Ref())
		})
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		m, _, err := e.replayToken(ctx, token, "cancel_match")
		return m, err
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Start moves an open or full match to in_progress. Creator only. After this
// point seats are locked in: no joins, no leaves, no cancellation.
func (e *MatchEngine) Start(ctx context.Context, matchID MatchID, actorID PlayerID, token string) (*Match, error) {
	return e.transition(ctx, matchID, actorID, token, "start_match", func(m *Match) error {
		if m.State != MatchOpen && m.State != MatchFull {
			return fmt.Errorf("start match %s in state %s: %w", m.ID, m.State, ErrNotJoinable)
		}
		m.State = MatchInProgress
		return nil
	}, false)
}

// Finish moves an in-progress match to finished and releases the slot so it
// is immediately re-bookable.
func (e *MatchEngine) Finish(ctx context.Context, matchID MatchID, actorID PlayerID, token string) (*Match, error) {
	return e.transition(ctx, matchID, actorID, token, "finish_match", func(m *Match) error {
		if m.State != MatchInProgress {
			return fmt.Errorf("finish match %s in state %s: %w", m.ID, m.State, ErrNotJoinable)
		}
		m.State = MatchFinished
		return nil
	}, true)
}

// transition applies a creator-only state change with no wallet effects.
func (e *MatchEngine) transition(ctx context.Context, matchID MatchID, actorID PlayerID, token, op string, apply func(*Match) error, releaseSlot bool) (*Match, error) {
	if m, ok, err := e.replayToken(ctx, token, op); ok || err != nil {
		return m, err
	}
	var updated *Match
	err := withRetry(ctx, e.retries, func() error {
		return e.store.WithTx(ctx, func(tx Store) error {
			m, err := tx.GetMatch(ctx, matchID)
			if err != nil {
				return err
			}
			if m.CreatorID != actorID {
				return ErrUnauthorized
			}
			expect := m.Version
			if err := apply(m); err != nil {
				return err
			}
			if err := tx.UpdateMatch(ctx, m, expect); err != nil {
				return err
			}
			if releaseSlot {
				if err := NewSlotIndex(tx).Release(ctx, m.Slot); err != nil {
					return err
				}
			}
			updated = m
			return recordToken(ctx, tx, token, op, m.Ref())
		})
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		m, _, err := e.replayToken(ctx, token, op)
		return m, err
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// IDEMPOTENCY HELPERS (shared with the reservation engine)
// =============================================================================

// replayToken returns the already-committed outcome for a token, if any.
func (e *MatchEngine) replayToken(ctx context.Context, token, op string) (*Match, bool, error) {
	ref, ok, err := lookupToken(ctx, e.store, token, op, KindMatch)
	if !ok || err != nil {
		return nil, ok, err
	}
	m, err := e.store.GetMatch(ctx, MatchID(ref.ID))
	return m, true, err
}

func lookupToken(ctx context.Context, s Store, token, op string, kind BookingKind) (BookingRef, bool, error) {
	if token == "" {
		return BookingRef{}, false, nil
	}
	rec, err := s.GetIdempotencyRecord(ctx, token)
	if IsNotFound(err) {
		return BookingRef{}, false, nil
	}
	if err != nil {
		return BookingRef{}, false, err
	}
	if rec.Operation != op || rec.Ref.Kind != kind {
		return BookingRef{}, false, fmt.Errorf("idempotency token %q was used for %s, not %s", token, rec.Operation, op)
	}
	return rec.Ref, true, nil
}

func recordToken(ctx context.Context, s Store, token, op string, ref BookingRef) error {
	if token == "" {
		return nil
	}
	return s.PutIdempotencyRecord(ctx, IdempotencyRecord{Key: token, Operation: op, Ref: ref})
}

// entryKey derives a deterministic wallet-entry idempotency key from the
// caller token, so a replayed transaction cannot double-write entries.
func entryKey(token, suffix string) string {
	if token == "" {
		return ""
	}
	return token + ":" + suffix
}
