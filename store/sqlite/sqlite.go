/*
Package sqlite provides the SQLite-backed implementation of the booking
storage interfaces.

PURPOSE:
  Implements booking.TxStore and booking.Catalog using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

INVARIANTS ENFORCED BY SCHEMA, NOT CODE:
  - One active booking per slot: slots PRIMARY KEY (field_id, date, start_time).
    Claiming is a plain INSERT; the constraint decides concurrent winners.
  - At-most-once wallet entries: wallet_entries.idempotency_key UNIQUE.
  - At-most-once request application: idempotency.key PRIMARY KEY.

CONDITIONAL WRITES:
  Wallet, match, and reservation updates run as
  UPDATE ... WHERE id = ? AND version = ?. Zero affected rows surfaces
  booking.ErrConcurrentModification and the engine retries.

CONCURRENCY:
  Uses sync.RWMutex for in-process serialization of writers. In production
  with PostgreSQL, database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/bookings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  facade := booking.NewFacade(st, st, booking.DefaultPricing())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pampeo/booking-engine/booking"
)

// Store implements booking.TxStore and booking.Catalog over SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Wallets: authoritative balance plus optimistic-concurrency version
	CREATE TABLE IF NOT EXISTS wallets (
		player_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	-- Wallet entries: append-only change log (no UPDATE, no DELETE)
	CREATE TABLE IF NOT EXISTS wallet_entries (
		id TEXT PRIMARY KEY,
		player_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		delta TEXT NOT NULL,
		ref_kind TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_entries_player
		ON wallet_entries(player_id, created_at DESC);

	-- CRITICAL: the slot primary key enforces one active booking per slot.
	-- Cancelling or finishing a booking deletes its row.
	CREATE TABLE IF NOT EXISTS slots (
		field_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		ref_kind TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		claimed_at TEXT NOT NULL,
		PRIMARY KEY (field_id, date, start_time)
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		field_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		format TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		max_seats INTEGER NOT NULL,
		confirmed_seats INTEGER NOT NULL DEFAULT 0,
		price_per_seat TEXT NOT NULL,
		state TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_state
		ON matches(state, field_id, date, start_time);
	CREATE INDEX IF NOT EXISTS idx_matches_creator
		ON matches(creator_id);

	CREATE TABLE IF NOT EXISTS participations (
		match_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		status TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (match_id, player_id)
	);

	CREATE INDEX IF NOT EXISTS idx_participations_player
		ON participations(player_id, status);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		field_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		full_price TEXT NOT NULL,
		advance TEXT NOT NULL,
		platform_fee TEXT NOT NULL,
		state TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_creator
		ON reservations(creator_id, state);
	CREATE INDEX IF NOT EXISTS idx_reservations_field
		ON reservations(field_id, state);

	-- Idempotency: one recorded outcome per caller token
	CREATE TABLE IF NOT EXISTS idempotency (
		key TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		ref_kind TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Field catalog (owned by the venue collaborator; read-mostly here)
	CREATE TABLE IF NOT EXISTS fields (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		hourly_price TEXT NOT NULL,
		format TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS field_windows (
		field_id TEXT NOT NULL,
		weekday INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_field_windows_field
		ON field_windows(field_id, weekday);
	`

	_, err := s.db.Exec(schema)
	return err
}

// executor abstracts *sql.DB and *sql.Tx so every operation can run either
// standalone or inside WithTx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (booking.TxStore)
// =============================================================================

// WithTx executes fn within one database transaction, holding the writer
// lock for its duration so booking operations are linearizable in-process.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the in-transaction view handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

// =============================================================================
// WALLETS
// =============================================================================

func (s *Store) GetWallet(ctx context.Context, playerID booking.PlayerID) (*booking.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWallet(ctx, s.db, playerID)
}

func (t *txStore) GetWallet(ctx context.Context, playerID booking.PlayerID) (*booking.Wallet, error) {
	return getWallet(ctx, t.tx, playerID)
}

func getWallet(ctx context.Context, ex executor, playerID booking.PlayerID) (*booking.Wallet, error) {
	var (
		w         booking.Wallet
		balance   string
		updatedAt string
	)
	err := ex.QueryRowContext(ctx,
		"SELECT player_id, balance, version, updated_at FROM wallets WHERE player_id = ?",
		playerID,
	).Scan(&w.PlayerID, &balance, &w.Version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	w.Balance = booking.MustParseMoney(balance)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

func (s *Store) PutWallet(ctx context.Context, w booking.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putWallet(ctx, s.db, w)
}

func (t *txStore) PutWallet(ctx context.Context, w booking.Wallet) error {
	return putWallet(ctx, t.tx, w)
}

func putWallet(ctx context.Context, ex executor, w booking.Wallet) error {
	if w.Version == 0 {
		w.Version = 1
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO wallets (player_id, balance, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			balance = excluded.balance,
			version = wallets.version + 1,
			updated_at = excluded.updated_at
	`, w.PlayerID, w.Balance.String(), w.Version, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put wallet: %w", err)
	}
	return nil
}

func (s *Store) UpdateWallet(ctx context.Context, playerID booking.PlayerID, balance booking.Money, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateWallet(ctx, s.db, playerID, balance, expectVersion)
}

func (t *txStore) UpdateWallet(ctx context.Context, playerID booking.PlayerID, balance booking.Money, expectVersion int64) error {
	return updateWallet(ctx, t.tx, playerID, balance, expectVersion)
}

func updateWallet(ctx context.Context, ex executor, playerID booking.PlayerID, balance booking.Money, expectVersion int64) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE wallets SET balance = ?, version = version + 1, updated_at = ?
		WHERE player_id = ? AND version = ?
	`, balance.String(), time.Now().UTC().Format(time.RFC3339), playerID, expectVersion)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return casOutcome(ctx, ex, res, "SELECT COUNT(*) FROM wallets WHERE player_id = ?", string(playerID))
}

func (s *Store) AppendWalletEntry(ctx context.Context, e booking.WalletEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendWalletEntry(ctx, s.db, e)
}

func (t *txStore) AppendWalletEntry(ctx context.Context, e booking.WalletEntry) error {
	return appendWalletEntry(ctx, t.tx, e)
}

func appendWalletEntry(ctx context.Context, ex executor, e booking.WalletEntry) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO wallet_entries
		(id, player_id, kind, delta, ref_kind, ref_id, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.PlayerID, e.Kind, e.Delta.String(),
		e.Reference.Kind, e.Reference.ID, e.Reason,
		nullString(e.IdempotencyKey),
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return booking.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("append wallet entry: %w", err)
	}
	return nil
}

func (s *Store) WalletEntries(ctx context.Context, playerID booking.PlayerID, limit int) ([]booking.WalletEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listWalletEntries(ctx, s.db, playerID, limit)
}

func (t *txStore) WalletEntries(ctx context.Context, playerID booking.PlayerID, limit int) ([]booking.WalletEntry, error) {
	return listWalletEntries(ctx, t.tx, playerID, limit)
}

func listWalletEntries(ctx context.Context, ex executor, playerID booking.PlayerID, limit int) ([]booking.WalletEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := ex.QueryContext(ctx, `
		SELECT id, player_id, kind, delta, ref_kind, ref_id, reason, idempotency_key, created_at
		FROM wallet_entries
		WHERE player_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet entries: %w", err)
	}
	defer rows.Close()

	var out []booking.WalletEntry
	for rows.Next() {
		var (
			e           booking.WalletEntry
			delta       string
			reason, key sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.Kind, &delta,
			&e.Reference.Kind, &e.Reference.ID, &reason, &key, &createdAt); err != nil {
			return nil, err
		}
		e.Delta = booking.MustParseMoney(delta)
		e.Reason = reason.String
		e.IdempotencyKey = key.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SLOTS
// =============================================================================

func (s *Store) ClaimSlot(ctx context.Context, slot booking.Slot, ref booking.BookingRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return claimSlot(ctx, s.db, slot, ref)
}

func (t *txStore) ClaimSlot(ctx context.Context, slot booking.Slot, ref booking.BookingRef) error {
	return claimSlot(ctx, t.tx, slot, ref)
}

func claimSlot(ctx context.Context, ex executor, slot booking.Slot, ref booking.BookingRef) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO slots (field_id, date, start_time, ref_kind, ref_id, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, slot.FieldID, slot.Date, slot.Start, ref.Kind, ref.ID, time.Now().UTC().Format(time.RFC3339))
	if isUniqueConstraintError(err) {
		return booking.ErrSlotOccupied
	}
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	return nil
}

func (s *Store) ReleaseSlot(ctx context.Context, slot booking.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return releaseSlot(ctx, s.db, slot)
}

func (t *txStore) ReleaseSlot(ctx context.Context, slot booking.Slot) error {
	return releaseSlot(ctx, t.tx, slot)
}

func releaseSlot(ctx context.Context, ex executor, slot booking.Slot) error {
	// Idempotent: deleting a missing row is a no-op.
	_, err := ex.ExecContext(ctx,
		"DELETE FROM slots WHERE field_id = ? AND date = ? AND start_time = ?",
		slot.FieldID, slot.Date, slot.Start)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (s *Store) SlotClaim(ctx context.Context, slot booking.Slot) (booking.BookingRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slotClaim(ctx, s.db, slot)
}

func (t *txStore) SlotClaim(ctx context.Context, slot booking.Slot) (booking.BookingRef, error) {
	return slotClaim(ctx, t.tx, slot)
}

func slotClaim(ctx context.Context, ex executor, slot booking.Slot) (booking.BookingRef, error) {
	var ref booking.BookingRef
	err := ex.QueryRowContext(ctx,
		"SELECT ref_kind, ref_id FROM slots WHERE field_id = ? AND date = ? AND start_time = ?",
		slot.FieldID, slot.Date, slot.Start,
	).Scan(&ref.Kind, &ref.ID)
	if err == sql.ErrNoRows {
		return booking.BookingRef{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.BookingRef{}, fmt.Errorf("slot claim: %w", err)
	}
	return ref, nil
}

// =============================================================================
// MATCHES
// =============================================================================

const matchColumns = `id, field_id, date, start_time, format, creator_id,
	max_seats, confirmed_seats, price_per_seat, state, version, created_at`

func (s *Store) InsertMatch(ctx context.Context, m *booking.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertMatch(ctx, s.db, m)
}

func (t *txStore) InsertMatch(ctx context.Context, m *booking.Match) error {
	return insertMatch(ctx, t.tx, m)
}

func insertMatch(ctx context.Context, ex executor, m *booking.Match) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Slot.FieldID, m.Slot.Date, m.Slot.Start, m.Format, m.CreatorID,
		m.MaxSeats, m.ConfirmedSeats, m.PricePerSeat.String(), m.State,
		m.Version, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, id booking.MatchID) (*booking.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMatch(ctx, s.db, id)
}

func (t *txStore) GetMatch(ctx context.Context, id booking.MatchID) (*booking.Match, error) {
	return getMatch(ctx, t.tx, id)
}

func getMatch(ctx context.Context, ex executor, id booking.MatchID) (*booking.Match, error) {
	row := ex.QueryRowContext(ctx, "SELECT "+matchColumns+" FROM matches WHERE id = ?", id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanMatch(r rowScanner) (*booking.Match, error) {
	var (
		m         booking.Match
		price     string
		createdAt string
	)
	err := r.Scan(&m.ID, &m.Slot.FieldID, &m.Slot.Date, &m.Slot.Start, &m.Format,
		&m.CreatorID, &m.MaxSeats, &m.ConfirmedSeats, &price, &m.State,
		&m.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	m.PricePerSeat = booking.MustParseMoney(price)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func (s *Store) UpdateMatch(ctx context.Context, m *booking.Match, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMatch(ctx, s.db, m, expectVersion)
}

func (t *txStore) UpdateMatch(ctx context.Context, m *booking.Match, expectVersion int64) error {
	return updateMatch(ctx, t.tx, m, expectVersion)
}

func updateMatch(ctx context.Context, ex executor, m *booking.Match, expectVersion int64) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE matches SET confirmed_seats = ?, state = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, m.ConfirmedSeats, m.State, m.ID, expectVersion)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if err := casOutcome(ctx, ex, res, "SELECT COUNT(*) FROM matches WHERE id = ?", string(m.ID)); err != nil {
		return err
	}
	m.Version = expectVersion + 1
	return nil
}

// =============================================================================
// PARTICIPATIONS
// =============================================================================

func (s *Store) GetParticipation(ctx context.Context, matchID booking.MatchID, playerID booking.PlayerID) (*booking.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getParticipation(ctx, s.db, matchID, playerID)
}

func (t *txStore) GetParticipation(ctx context.Context, matchID booking.MatchID, playerID booking.PlayerID) (*booking.Participation, error) {
	return getParticipation(ctx, t.tx, matchID, playerID)
}

func getParticipation(ctx context.Context, ex executor, matchID booking.MatchID, playerID booking.PlayerID) (*booking.Participation, error) {
	var (
		p                   booking.Participation
		joinedAt, updatedAt string
	)
	err := ex.QueryRowContext(ctx, `
		SELECT match_id, player_id, status, joined_at, updated_at
		FROM participations WHERE match_id = ? AND player_id = ?
	`, matchID, playerID).Scan(&p.MatchID, &p.PlayerID, &p.Status, &joinedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participation: %w", err)
	}
	p.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (s *Store) UpsertParticipation(ctx context.Context, p booking.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertParticipation(ctx, s.db, p)
}

func (t *txStore) UpsertParticipation(ctx context.Context, p booking.Participation) error {
	return upsertParticipation(ctx, t.tx, p)
}

func upsertParticipation(ctx context.Context, ex executor, p booking.Participation) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO participations (match_id, player_id, status, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(match_id, player_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		p.MatchID, p.PlayerID, p.Status,
		p.JoinedAt.UTC().Format(time.RFC3339),
		p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert participation: %w", err)
	}
	return nil
}

func (s *Store) ListParticipations(ctx context.Context, matchID booking.MatchID, status booking.ParticipationStatus) ([]booking.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listParticipations(ctx, s.db, matchID, status)
}

func (t *txStore) ListParticipations(ctx context.Context, matchID booking.MatchID, status booking.ParticipationStatus) ([]booking.Participation, error) {
	return listParticipations(ctx, t.tx, matchID, status)
}

func listParticipations(ctx context.Context, ex executor, matchID booking.MatchID, status booking.ParticipationStatus) ([]booking.Participation, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT match_id, player_id, status, joined_at, updated_at
		FROM participations
		WHERE match_id = ? AND status = ?
		ORDER BY player_id
	`, matchID, status)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	defer rows.Close()

	var out []booking.Participation
	for rows.Next() {
		var (
			p                   booking.Participation
			joinedAt, updatedAt string
		)
		if err := rows.Scan(&p.MatchID, &p.PlayerID, &p.Status, &joinedAt, &updatedAt); err != nil {
			return nil, err
		}
		p.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `id, field_id, date, start_time, creator_id,
	full_price, advance, platform_fee, state, version, created_at`

func (s *Store) InsertReservation(ctx context.Context, r *booking.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReservation(ctx, s.db, r)
}

func (t *txStore) InsertReservation(ctx context.Context, r *booking.Reservation) error {
	return insertReservation(ctx, t.tx, r)
}

func insertReservation(ctx context.Context, ex executor, r *booking.Reservation) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Slot.FieldID, r.Slot.Date, r.Slot.Start, r.CreatorID,
		r.FullPrice.String(), r.Advance.String(), r.PlatformFee.String(),
		r.State, r.Version, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReservation(ctx, s.db, id)
}

func (t *txStore) GetReservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return getReservation(ctx, t.tx, id)
}

func getReservation(ctx context.Context, ex executor, id booking.ReservationID) (*booking.Reservation, error) {
	row := ex.QueryRowContext(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func scanReservation(row rowScanner) (*booking.Reservation, error) {
	var (
		r                  booking.Reservation
		full, advance, fee string
		createdAt          string
	)
	err := row.Scan(&r.ID, &r.Slot.FieldID, &r.Slot.Date, &r.Slot.Start, &r.CreatorID,
		&full, &advance, &fee, &r.State, &r.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	r.FullPrice = booking.MustParseMoney(full)
	r.Advance = booking.MustParseMoney(advance)
	r.PlatformFee = booking.MustParseMoney(fee)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

func (s *Store) UpdateReservation(ctx context.Context, r *booking.Reservation, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReservation(ctx, s.db, r, expectVersion)
}

func (t *txStore) UpdateReservation(ctx context.Context, r *booking.Reservation, expectVersion int64) error {
	return updateReservation(ctx, t.tx, r, expectVersion)
}

func updateReservation(ctx context.Context, ex executor, r *booking.Reservation, expectVersion int64) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE reservations SET state = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, r.State, r.ID, expectVersion)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if err := casOutcome(ctx, ex, res, "SELECT COUNT(*) FROM reservations WHERE id = ?", string(r.ID)); err != nil {
		return err
	}
	r.Version = expectVersion + 1
	return nil
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (*booking.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getIdempotencyRecord(ctx, s.db, key)
}

func (t *txStore) GetIdempotencyRecord(ctx context.Context, key string) (*booking.IdempotencyRecord, error) {
	return getIdempotencyRecord(ctx, t.tx, key)
}

func getIdempotencyRecord(ctx context.Context, ex executor, key string) (*booking.IdempotencyRecord, error) {
	var rec booking.IdempotencyRecord
	err := ex.QueryRowContext(ctx,
		"SELECT key, operation, ref_kind, ref_id FROM idempotency WHERE key = ?", key,
	).Scan(&rec.Key, &rec.Operation, &rec.Ref.Kind, &rec.Ref.ID)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &rec, nil
}

func (s *Store) PutIdempotencyRecord(ctx context.Context, rec booking.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putIdempotencyRecord(ctx, s.db, rec)
}

func (t *txStore) PutIdempotencyRecord(ctx context.Context, rec booking.IdempotencyRecord) error {
	return putIdempotencyRecord(ctx, t.tx, rec)
}

func putIdempotencyRecord(ctx context.Context, ex executor, rec booking.IdempotencyRecord) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO idempotency (key, operation, ref_kind, ref_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Key, rec.Operation, rec.Ref.Kind, rec.Ref.ID, time.Now().UTC().Format(time.RFC3339))
	if isUniqueConstraintError(err) {
		return booking.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("put idempotency record: %w", err)
	}
	return nil
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func (s *Store) ListOpenMatches(ctx context.Context, fieldID *booking.FieldID) ([]booking.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOpenMatches(ctx, s.db, fieldID)
}

func (t *txStore) ListOpenMatches(ctx context.Context, fieldID *booking.FieldID) ([]booking.Match, error) {
	return listOpenMatches(ctx, t.tx, fieldID)
}

func listOpenMatches(ctx context.Context, ex executor, fieldID *booking.FieldID) ([]booking.Match, error) {
	query := "SELECT " + matchColumns + " FROM matches WHERE state = ?"
	args := []any{booking.MatchOpen}
	if fieldID != nil {
		query += " AND field_id = ?"
		args = append(args, *fieldID)
	}
	query += " ORDER BY date, start_time, id"
	return queryMatches(ctx, ex, query, args...)
}

func (s *Store) ListPlayerMatches(ctx context.Context, playerID booking.PlayerID) ([]booking.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlayerMatches(ctx, s.db, playerID)
}

func (t *txStore) ListPlayerMatches(ctx context.Context, playerID booking.PlayerID) ([]booking.Match, error) {
	return listPlayerMatches(ctx, t.tx, playerID)
}

func listPlayerMatches(ctx context.Context, ex executor, playerID booking.PlayerID) ([]booking.Match, error) {
	query := `
		SELECT m.id, m.field_id, m.date, m.start_time, m.format, m.creator_id,
		       m.max_seats, m.confirmed_seats, m.price_per_seat, m.state, m.version, m.created_at
		FROM matches m
		JOIN participations p ON p.match_id = m.id
		WHERE p.player_id = ? AND p.status = ? AND m.state != ?
		ORDER BY m.date, m.start_time, m.id
	`
	return queryMatches(ctx, ex, query, playerID, booking.ParticipationConfirmed, booking.MatchCancelled)
}

func queryMatches(ctx context.Context, ex executor, query string, args ...any) ([]booking.Match, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []booking.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) ListPlayerReservations(ctx context.Context, playerID booking.PlayerID) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlayerReservations(ctx, s.db, playerID)
}

func (t *txStore) ListPlayerReservations(ctx context.Context, playerID booking.PlayerID) ([]booking.Reservation, error) {
	return listPlayerReservations(ctx, t.tx, playerID)
}

func listPlayerReservations(ctx context.Context, ex executor, playerID booking.PlayerID) ([]booking.Reservation, error) {
	return queryReservations(ctx, ex,
		"SELECT "+reservationColumns+" FROM reservations WHERE creator_id = ? AND state != ? ORDER BY date, start_time, id",
		playerID, booking.ReservationCancelled)
}

func (s *Store) ListFieldReservations(ctx context.Context, fieldID booking.FieldID) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listFieldReservations(ctx, s.db, fieldID)
}

func (t *txStore) ListFieldReservations(ctx context.Context, fieldID booking.FieldID) ([]booking.Reservation, error) {
	return listFieldReservations(ctx, t.tx, fieldID)
}

func listFieldReservations(ctx context.Context, ex executor, fieldID booking.FieldID) ([]booking.Reservation, error) {
	return queryReservations(ctx, ex,
		"SELECT "+reservationColumns+" FROM reservations WHERE field_id = ? AND state != ? ORDER BY date, start_time, id",
		fieldID, booking.ReservationCancelled)
}

func queryReservations(ctx context.Context, ex executor, query string, args ...any) ([]booking.Reservation, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) OccupiedStartTimes(ctx context.Context, fieldID booking.FieldID, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return occupiedStartTimes(ctx, s.db, fieldID, date)
}

func (t *txStore) OccupiedStartTimes(ctx context.Context, fieldID booking.FieldID, date string) ([]string, error) {
	return occupiedStartTimes(ctx, t.tx, fieldID, date)
}

func occupiedStartTimes(ctx context.Context, ex executor, fieldID booking.FieldID, date string) ([]string, error) {
	rows, err := ex.QueryContext(ctx,
		"SELECT start_time FROM slots WHERE field_id = ? AND date = ? ORDER BY start_time",
		fieldID, date)
	if err != nil {
		return nil, fmt.Errorf("occupied start times: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var start string
		if err := rows.Scan(&start); err != nil {
			return nil, err
		}
		out = append(out, start)
	}
	return out, rows.Err()
}

// =============================================================================
// FIELD CATALOG (booking.Catalog)
// =============================================================================

// Field implements booking.Catalog.
func (s *Store) Field(ctx context.Context, id booking.FieldID) (*booking.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		f     booking.Field
		price string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, hourly_price, format FROM fields WHERE id = ?", id,
	).Scan(&f.ID, &f.Name, &price, &f.Format)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get field: %w", err)
	}
	f.HourlyPrice = booking.MustParseMoney(price)

	rows, err := s.db.QueryContext(ctx,
		"SELECT weekday, start_time, end_time FROM field_windows WHERE field_id = ? ORDER BY weekday, start_time", id)
	if err != nil {
		return nil, fmt.Errorf("get field windows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			w  booking.TimeWindow
			wd int
		)
		if err := rows.Scan(&wd, &w.Start, &w.End); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(wd)
		f.OpenWindows = append(f.OpenWindows, w)
	}
	return &f, rows.Err()
}

// SaveField upserts a catalog record and replaces its opening windows.
// Catalog management lives with the venue side; this exists for seeding.
func (s *Store) SaveField(ctx context.Context, f booking.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fields (id, name, hourly_price, format, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			hourly_price = excluded.hourly_price,
			format = excluded.format
	`, f.ID, f.Name, f.HourlyPrice.String(), f.Format, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save field: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM field_windows WHERE field_id = ?", f.ID); err != nil {
		return fmt.Errorf("clear field windows: %w", err)
	}
	for _, w := range f.OpenWindows {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO field_windows (field_id, weekday, start_time, end_time) VALUES (?, ?, ?, ?)",
			f.ID, int(w.Weekday), w.Start, w.End); err != nil {
			return fmt.Errorf("insert field window: %w", err)
		}
	}
	return nil
}

// ListFields returns every catalog record for display listings.
func (s *Store) ListFields(ctx context.Context) ([]booking.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, hourly_price, format FROM fields ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var out []booking.Field
	for rows.Next() {
		var (
			f     booking.Field
			price string
		)
		if err := rows.Scan(&f.ID, &f.Name, &price, &f.Format); err != nil {
			return nil, err
		}
		f.HourlyPrice = booking.MustParseMoney(price)
		out = append(out, f)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// casOutcome distinguishes a version conflict from a missing row after a
// conditional UPDATE touched zero rows.
func casOutcome(ctx context.Context, ex executor, res sql.Result, existsQuery, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := ex.QueryRowContext(ctx, existsQuery, id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return booking.ErrNotFound
	}
	return booking.ErrConcurrentModification
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
