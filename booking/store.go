/*
store.go - Persistence interfaces for the booking engine

PURPOSE:
  Defines the contract between the engines and the database. The store must
  provide at least snapshot isolation plus two primitives the engines lean on:
  a uniqueness constraint (slot claims, idempotency keys) and a conditional
  write (version compare-and-swap on wallets, matches, reservations).

KEY INTERFACES:
  Store:   All reads and writes the engines issue.
  TxStore: Store plus WithTx for atomic multi-write operations.

ATOMICITY CONTRACT:
  Engines run every state-affecting operation inside WithTx. A join's wallet
  debit, participation upsert, seat increment, and state transition either all
  commit or all roll back; no other operation ever observes a partial result.

CONDITIONAL WRITES:
  UpdateWallet / UpdateMatch / UpdateReservation take the version the caller
  read. If the stored version differs, the store returns
  ErrConcurrentModification and writes nothing. The engines retry the whole
  transaction a bounded number of times.

UNIQUENESS AS SOURCE OF TRUTH:
  ClaimSlot must rely on the store's uniqueness primitive, not a prior read,
  so concurrent claims resolve deterministically with exactly one winner.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (WAL, unique indexes, sql transactions)
  - booking/store: in-memory store for tests and development

SEE ALSO:
  - wallet.go: WalletLedger composed over a Store
  - match.go, reservation.go: Engines composed over a TxStore
*/
package booking

import "context"

// Store is the persistence surface the engines are written against.
// Implementations must return booking sentinel errors (ErrNotFound,
// ErrSlotOccupied, ErrConcurrentModification, ErrDuplicateIdempotencyKey)
// for the conditions those name, and may wrap infrastructure failures
// in ErrUnavailable.
type Store interface {
	// --- Wallets ---

	// GetWallet returns the authoritative wallet. ErrNotFound if absent.
	GetWallet(ctx context.Context, playerID PlayerID) (*Wallet, error)

	// PutWallet creates or replaces a wallet record. Used at player signup
	// (external) and in tests; the engines never call it.
	PutWallet(ctx context.Context, w Wallet) error

	// UpdateWallet writes balance conditioned on the version read, and bumps
	// the version. ErrConcurrentModification if the version moved.
	UpdateWallet(ctx context.Context, playerID PlayerID, balance Money, expectVersion int64) error

	// AppendWalletEntry records one immutable balance change.
	// ErrDuplicateIdempotencyKey if the entry's key already exists.
	AppendWalletEntry(ctx context.Context, e WalletEntry) error

	// WalletEntries returns a player's entries, newest first.
	WalletEntries(ctx context.Context, playerID PlayerID, limit int) ([]WalletEntry, error)

	// --- Slots ---

	// ClaimSlot inserts the slot row for ref. ErrSlotOccupied (via the
	// uniqueness constraint, never a prior read) if already claimed.
	ClaimSlot(ctx context.Context, s Slot, ref BookingRef) error

	// ReleaseSlot frees the slot. Idempotent: releasing a free slot is a no-op.
	ReleaseSlot(ctx context.Context, s Slot) error

	// SlotClaim returns the booking currently claiming the slot.
	// ErrNotFound if the slot is free.
	SlotClaim(ctx context.Context, s Slot) (BookingRef, error)

	// --- Matches ---

	InsertMatch(ctx context.Context, m *Match) error
	GetMatch(ctx context.Context, id MatchID) (*Match, error)
	// UpdateMatch is a version compare-and-swap like UpdateWallet.
	UpdateMatch(ctx context.Context, m *Match, expectVersion int64) error

	GetParticipation(ctx context.Context, matchID MatchID, playerID PlayerID) (*Participation, error)
	UpsertParticipation(ctx context.Context, p Participation) error
	ListParticipations(ctx context.Context, matchID MatchID, status ParticipationStatus) ([]Participation, error)

	// --- Reservations ---

	InsertReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation, expectVersion int64) error

	// --- Idempotency ---

	// GetIdempotencyRecord returns the recorded outcome for a caller token.
	// ErrNotFound if the token was never applied.
	GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error)

	// PutIdempotencyRecord stores the outcome of a mutating request. Written
	// inside the same transaction as the mutation it records.
	PutIdempotencyRecord(ctx context.Context, rec IdempotencyRecord) error

	// --- Projections (listing reads) ---

	ListOpenMatches(ctx context.Context, fieldID *FieldID) ([]Match, error)
	ListPlayerMatches(ctx context.Context, playerID PlayerID) ([]Match, error)
	ListPlayerReservations(ctx context.Context, playerID PlayerID) ([]Reservation, error)
	ListFieldReservations(ctx context.Context, fieldID FieldID) ([]Reservation, error)
	// OccupiedStartTimes returns the HH:MM starts of active bookings on a date.
	OccupiedStartTimes(ctx context.Context, fieldID FieldID, date string) ([]string, error)
}

// TxStore wraps Store with transaction support. The engines issue every
// mutation through WithTx; the Store handed to fn sees uncommitted writes
// of the same transaction.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. fn returning an error rolls
	// everything back; nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// IdempotencyRecord ties a caller-supplied token to the booking it produced,
// so an ambiguous-network retry returns the original outcome instead of
// applying the operation twice.
type IdempotencyRecord struct {
	Key       string
	Operation string
	Ref       BookingRef
}

// Catalog is the read-only field catalog collaborator.
type Catalog interface {
	// Field returns the catalog record. ErrNotFound for unknown ids.
	Field(ctx context.Context, id FieldID) (*Field, error)
}

// StaticCatalog is an in-memory Catalog for tests and development.
type StaticCatalog map[FieldID]Field

func (c StaticCatalog) Field(_ context.Context, id FieldID) (*Field, error) {
	f, ok := c[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}
