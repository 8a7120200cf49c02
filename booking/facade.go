/*
facade.go - BookingFacade: the single entry point for external callers

PURPOSE:
  Routes each request to the MatchEngine or ReservationEngine and returns a
  consistent result shape: the updated entity plus the authoritative wallet
  balance, re-fetched after the transaction committed rather than assumed.
  Listing reads bypass the engines and query projections directly; anything
  that decides availability or balance happens inside the engines.

SEE ALSO:
  - match.go, reservation.go: The engines behind each operation
  - api/: HTTP exposure of this surface
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Facade is the booking entry point external callers use.
type Facade struct {
	store        TxStore
	matches      *MatchEngine
	reservations *ReservationEngine
}

func NewFacade(store TxStore, catalog Catalog, pricing Pricing) *Facade {
	return &Facade{
		store:        store,
		matches:      NewMatchEngine(store, catalog, pricing),
		reservations: NewReservationEngine(store, catalog, pricing),
	}
}

// MatchResult is the success payload of a match mutation.
type MatchResult struct {
	Match         *Match
	WalletBalance Money
}

// ReservationResult is the success payload of a reservation mutation.
// Outstanding is the off-platform remainder owed to the field owner,
// exposed for display only.
type ReservationResult struct {
	Reservation   *Reservation
	WalletBalance Money
	Outstanding   Money
}

// PlayerBookings groups everything a player is committed to.
type PlayerBookings struct {
	Matches      []Match
	Reservations []Reservation
}

// =============================================================================
// MATCH OPERATIONS
// =============================================================================

func (f *Facade) CreateMatch(ctx context.Context, req CreateMatchRequest) (*MatchResult, error) {
	m, err := f.matches.CreateMatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.matchResult(ctx, m, req.CreatorID)
}

func (f *Facade) JoinMatch(ctx context.Context, matchID MatchID, playerID PlayerID, token string) (*MatchResult, error) {
	m, err := f.matches.Join(ctx, matchID, playerID, token)
	if err != nil {
		return nil, err
	}
	return f.matchResult(ctx, m, playerID)
}

func (f *Facade) LeaveMatch(ctx context.Context, matchID MatchID, playerID PlayerID, token string) (*MatchResult, error) {
	m, err := f.matches.Leave(ctx, matchID, playerID, token)
	if err != nil {
		return nil, err
	}
	return f.matchResult(ctx, m, playerID)
}

func (f *Facade) CancelMatch(ctx context.Context, matchID MatchID, actorID PlayerID, token string) (*MatchResult, error) {
	m, err := f.matches.Cancel(ctx, matchID, actorID, token)
	if err != nil {
		return nil, err
	}
	return f.matchResult(ctx, m, actorID)
}

func (f *Facade) StartMatch(ctx context.Context, matchID MatchID, actorID PlayerID, token string) (*MatchResult, error) {
	m, err := f.matches.Start(ctx, matchID, actorID, token)
	if err != nil {
		return nil, err
	}
	return f.matchResult(ctx, m, actorID)
}

func (f *Facade) FinishMatch(ctx context.Context, matchID MatchID, actorID PlayerID, token string) (*MatchResult, error) {
	m, err := f.matches.Finish(ctx, matchID, actorID, token)
	if err != nil {
		return nil, err
	}
	return f.matchResult(ctx, m, actorID)
}

// =============================================================================
// RESERVATION OPERATIONS
// =============================================================================

func (f *Facade) CreateReservation(ctx context.Context, req CreateReservationRequest) (*ReservationResult, error) {
	r, err := f.reservations.CreateReservation(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.reservationResult(ctx, r, req.CreatorID)
}

func (f *Facade) CancelReservation(ctx context.Context, id ReservationID, actorID PlayerID, token string) (*ReservationResult, error) {
	r, err := f.reservations.CancelReservation(ctx, id, actorID, token)
	if err != nil {
		return nil, err
	}
	return f.reservationResult(ctx, r, actorID)
}

func (f *Facade) ConfirmReservationWithOwner(ctx context.Context, id ReservationID, actorID PlayerID, token string) (*ReservationResult, error) {
	r, err := f.reservations.ConfirmWithOwner(ctx, id, actorID, token)
	if err != nil {
		return nil, err
	}
	return f.reservationResult(ctx, r, actorID)
}

func (f *Facade) FinishReservation(ctx context.Context, id ReservationID, actorID PlayerID, token string) (*ReservationResult, error) {
	r, err := f.reservations.Finish(ctx, id, actorID, token)
	if err != nil {
		return nil, err
	}
	return f.reservationResult(ctx, r, actorID)
}

// =============================================================================
// READS
// =============================================================================

func (f *Facade) GetMatch(ctx context.Context, id MatchID) (*Match, []Participation, error) {
	m, err := f.store.GetMatch(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	parts, err := f.store.ListParticipations(ctx, id, ParticipationConfirmed)
	if err != nil {
		return nil, nil, err
	}
	return m, parts, nil
}

func (f *Facade) GetReservation(ctx context.Context, id ReservationID) (*Reservation, error) {
	return f.store.GetReservation(ctx, id)
}

func (f *Facade) ListOpenMatches(ctx context.Context, fieldID *FieldID) ([]Match, error) {
	return f.store.ListOpenMatches(ctx, fieldID)
}

func (f *Facade) ListPlayerBookings(ctx context.Context, playerID PlayerID) (*PlayerBookings, error) {
	matches, err := f.store.ListPlayerMatches(ctx, playerID)
	if err != nil {
		return nil, err
	}
	reservations, err := f.store.ListPlayerReservations(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return &PlayerBookings{Matches: matches, Reservations: reservations}, nil
}

func (f *Facade) ListFieldReservations(ctx context.Context, fieldID FieldID) ([]Reservation, error) {
	return f.store.ListFieldReservations(ctx, fieldID)
}

func (f *Facade) OccupiedStartTimes(ctx context.Context, fieldID FieldID, date string) ([]string, error) {
	return f.store.OccupiedStartTimes(ctx, fieldID, date)
}

func (f *Facade) Wallet(ctx context.Context, playerID PlayerID) (*Wallet, error) {
	return f.store.GetWallet(ctx, playerID)
}

func (f *Facade) WalletEntries(ctx context.Context, playerID PlayerID, limit int) ([]WalletEntry, error) {
	return f.store.WalletEntries(ctx, playerID, limit)
}

// TopUp credits a player's wallet, creating the wallet on first use.
// The real payment capture (card, transfer) happens upstream; this records
// the funds the platform now holds for the player.
func (f *Facade) TopUp(ctx context.Context, playerID PlayerID, amount Money, token string) (Money, error) {
	if amount.IsNegative() || amount.IsZero() {
		return Money{}, fmt.Errorf("top up: amount must be positive, got %s", amount)
	}

	var balance Money
	err := f.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetWallet(ctx, playerID); errors.Is(err, ErrNotFound) {
			w := Wallet{PlayerID: playerID, Balance: Money{}, Version: 1, UpdatedAt: time.Now().UTC()}
			if err := s.PutWallet(ctx, w); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		ref := BookingRef{Kind: KindTopUp, ID: uuid.NewString()}
		b, err := NewWalletLedger(s).Credit(ctx, playerID, amount, ref, "top up", token)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		w, gerr := f.store.GetWallet(ctx, playerID)
		if gerr != nil {
			return Money{}, gerr
		}
		return w.Balance, nil
	}
	if err != nil {
		return Money{}, err
	}
	return balance, nil
}

// =============================================================================
// RESULT HELPERS
// =============================================================================

func (f *Facade) matchResult(ctx context.Context, m *Match, playerID PlayerID) (*MatchResult, error) {
	w, err := f.store.GetWallet(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return &MatchResult{Match: m, WalletBalance: w.Balance}, nil
}

func (f *Facade) reservationResult(ctx context.Context, r *Reservation, playerID PlayerID) (*ReservationResult, error) {
	w, err := f.store.GetWallet(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return &ReservationResult{Reservation: r, WalletBalance: w.Balance, Outstanding: r.Outstanding()}, nil
}
