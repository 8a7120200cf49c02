/*
Package booking provides the match and reservation booking engine.

PURPOSE:
  This package contains the domain types and engines for booking playing-field
  time slots: multiplayer pickup matches billed per seat, and whole-field
  reservations billed under a 50%-advance policy. Both are paid from a
  player's prepaid wallet.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A fixed-point currency amount (decimal, never float)
  - Slot: A unique (field, date, start time) booking unit
  - Match / Participation: A pickup game and its per-player membership
  - Reservation: A single-party whole-field booking
  - Wallet / WalletEntry: A player's balance and its immutable change log

DESIGN PRINCIPLES:
  1. Atomicity: Every state-affecting operation commits wallet, seat, and
     lifecycle changes together, or not at all.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors.
  3. Closed state machines: Lifecycle states are typed constants; transition
     logic lives in the engines, never at call sites.
  4. Auditability: Every wallet change is an immutable WalletEntry with a
     reference and an idempotency key.

SEE ALSO:
  - match.go: MatchEngine lifecycle and seat accounting
  - reservation.go: ReservationEngine advance-payment lifecycle
  - wallet.go: WalletLedger debit/credit
  - store.go: Persistence interfaces
*/
package booking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point currency amount
// =============================================================================

// Money is a currency amount backed by a decimal. The zero value is zero money.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money        { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money   { return Money{Value: decimal.NewFromInt(value)} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }

// ParseMoney parses a decimal string such as "9.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{Value: d}, nil
}

// MustParseMoney parses a decimal string, returning zero on malformed input.
// Intended for constants and storage round-trips, not user input.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money      { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money      { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money             { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool           { return m.Value.IsZero() }
func (m Money) IsNegative() bool       { return m.Value.IsNegative() }
func (m Money) LessThan(o Money) bool  { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool     { return m.Value.Equal(o.Value) }
func (m Money) String() string         { return m.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PlayerID string
type FieldID string
type MatchID string
type ReservationID string
type EntryID string

// BookingKind distinguishes the two bookable units that can occupy a slot.
type BookingKind string

const (
	KindMatch       BookingKind = "match"
	KindReservation BookingKind = "reservation"

	// KindTopUp never claims a slot; it only references wallet entries.
	KindTopUp BookingKind = "topup"
)

// BookingRef identifies the active booking claiming a slot.
type BookingRef struct {
	Kind BookingKind
	ID   string
}

func (r BookingRef) String() string { return string(r.Kind) + ":" + r.ID }

// =============================================================================
// SLOT - A unique (field, date, start time) booking unit
// =============================================================================

// Slot identifies a bookable unit of field time. Date is YYYY-MM-DD and
// Start is HH:MM; both are kept as strings because they are lookup keys,
// not instants (the field's local timezone is a catalog concern).
type Slot struct {
	FieldID FieldID
	Date    string
	Start   string
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/%s@%s", s.FieldID, s.Date, s.Start)
}

// Validate checks the slot key components parse as a date and a wall-clock time.
func (s Slot) Validate() error {
	if s.FieldID == "" {
		return fmt.Errorf("slot: missing field id")
	}
	if _, err := time.Parse("2006-01-02", s.Date); err != nil {
		return fmt.Errorf("slot: bad date %q (want YYYY-MM-DD)", s.Date)
	}
	if _, err := time.Parse("15:04", s.Start); err != nil {
		return fmt.Errorf("slot: bad start time %q (want HH:MM)", s.Start)
	}
	return nil
}

// Weekday returns the day of week for the slot's date.
func (s Slot) Weekday() time.Weekday {
	t, _ := time.Parse("2006-01-02", s.Date)
	return t.Weekday()
}

// =============================================================================
// FIELD CATALOG (external collaborator, read-only)
// =============================================================================

// Format is a field's capacity format.
type Format string

const (
	Format5v5 Format = "5v5"
	Format6v6 Format = "6v6"
)

// SeatCount returns the number of seats a match of this format has.
func (f Format) SeatCount() (int, error) {
	switch f {
	case Format5v5:
		return 10, nil
	case Format6v6:
		return 12, nil
	}
	return 0, fmt.Errorf("unknown format %q", f)
}

// TimeWindow is a weekly open window of a field, [Start, End) wall-clock HH:MM.
type TimeWindow struct {
	Weekday time.Weekday
	Start   string
	End     string
}

// Contains reports whether a start time falls inside the window.
func (w TimeWindow) Contains(start string) bool {
	return start >= w.Start && start < w.End
}

// Field is a catalog record. Owned by the field catalog collaborator; the
// engine only reads it to validate slots and compute prices.
type Field struct {
	ID          FieldID
	Name        string
	HourlyPrice Money
	Format      Format
	OpenWindows []TimeWindow
}

// IsOpenAt reports whether the field is bookable at the given slot.
// Fields with no declared windows are treated as always open.
func (f Field) IsOpenAt(s Slot) bool {
	if len(f.OpenWindows) == 0 {
		return true
	}
	wd := s.Weekday()
	for _, w := range f.OpenWindows {
		if w.Weekday == wd && w.Contains(s.Start) {
			return true
		}
	}
	return false
}

// =============================================================================
// WALLET - Prepaid balance, mutated only through the WalletLedger
// =============================================================================

type Wallet struct {
	PlayerID PlayerID
	Balance  Money
	// Version increases on every balance change; updates are compare-and-swap
	// against the version read, so lost updates are impossible.
	Version   int64
	UpdatedAt time.Time
}

type EntryKind string

const (
	EntryDebit  EntryKind = "debit"
	EntryCredit EntryKind = "credit"
)

// WalletEntry is an immutable record of one balance change. Entries are
// append-only; corrections happen through compensating entries.
type WalletEntry struct {
	ID       EntryID
	PlayerID PlayerID
	Kind     EntryKind
	// Delta is signed: negative for debits, positive for credits.
	Delta          Money
	Reference      BookingRef
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// MATCH - Many-player pickup game with per-seat pricing
// =============================================================================

type MatchState string

const (
	MatchOpen       MatchState = "open"
	MatchFull       MatchState = "full"
	MatchInProgress MatchState = "in_progress"
	MatchFinished   MatchState = "finished"
	MatchCancelled  MatchState = "cancelled"
)

// Active reports whether the match still occupies its slot.
func (s MatchState) Active() bool {
	return s == MatchOpen || s == MatchFull || s == MatchInProgress
}

type Match struct {
	ID             MatchID
	Slot           Slot
	Format         Format
	CreatorID      PlayerID
	MaxSeats       int
	ConfirmedSeats int
	PricePerSeat   Money
	State          MatchState
	Version        int64
	CreatedAt      time.Time
}

func (m *Match) Ref() BookingRef { return BookingRef{Kind: KindMatch, ID: string(m.ID)} }

// =============================================================================
// PARTICIPATION - A player's membership record in a match
// =============================================================================

type ParticipationStatus string

const (
	ParticipationConfirmed ParticipationStatus = "confirmed"
	ParticipationLeft      ParticipationStatus = "left"
)

// Participation is unique per (match, player). A player who leaves and later
// re-joins reuses the same record, so history is preserved without duplicates.
type Participation struct {
	MatchID   MatchID
	PlayerID  PlayerID
	Status    ParticipationStatus
	JoinedAt  time.Time
	UpdatedAt time.Time
}

// =============================================================================
// RESERVATION - Single-party whole-field booking, 50%-advance policy
// =============================================================================

type ReservationState string

const (
	ReservationReserved  ReservationState = "reserved"
	ReservationConfirmed ReservationState = "confirmed_with_owner"
	ReservationFinished  ReservationState = "finished"
	ReservationCancelled ReservationState = "cancelled"
)

func (s ReservationState) Active() bool {
	return s == ReservationReserved || s == ReservationConfirmed
}

type Reservation struct {
	ID        ReservationID
	Slot      Slot
	CreatorID PlayerID
	// FullPrice is the whole-field price; Advance + PlatformFee is what was
	// debited from the creator's wallet at creation.
	FullPrice   Money
	Advance     Money
	PlatformFee Money
	State       ReservationState
	Version     int64
	CreatedAt   time.Time
}

func (r *Reservation) Ref() BookingRef { return BookingRef{Kind: KindReservation, ID: string(r.ID)} }

// AmountDebited is the wallet debit applied at creation, and the credit
// returned on cancellation.
func (r *Reservation) AmountDebited() Money { return r.Advance.Add(r.PlatformFee) }

// Outstanding is the remainder owed to the field owner, settled off-platform.
// It is a display figure only and never becomes a wallet mutation.
func (r *Reservation) Outstanding() Money { return r.FullPrice.Sub(r.Advance) }
