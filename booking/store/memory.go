// Package store provides an in-memory booking.TxStore for tests and development.
//
// A single mutex serializes every operation, and WithTx holds it for the whole
// transaction while fn runs against the live state. Rollback is simulated by
// snapshotting the state before fn and restoring it on error, which gives the
// engines the same all-or-nothing and linearizability guarantees the SQL store
// provides through real transactions.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pampeo/booking-engine/booking"
)

type partKey struct {
	MatchID  booking.MatchID
	PlayerID booking.PlayerID
}

type state struct {
	wallets        map[booking.PlayerID]booking.Wallet
	entries        map[booking.PlayerID][]booking.WalletEntry
	entryKeys      map[string]bool
	slots          map[booking.Slot]booking.BookingRef
	matches        map[booking.MatchID]booking.Match
	participations map[partKey]booking.Participation
	reservations   map[booking.ReservationID]booking.Reservation
	idempotency    map[string]booking.IdempotencyRecord
}

func newState() *state {
	return &state{
		wallets:        make(map[booking.PlayerID]booking.Wallet),
		entries:        make(map[booking.PlayerID][]booking.WalletEntry),
		entryKeys:      make(map[string]bool),
		slots:          make(map[booking.Slot]booking.BookingRef),
		matches:        make(map[booking.MatchID]booking.Match),
		participations: make(map[partKey]booking.Participation),
		reservations:   make(map[booking.ReservationID]booking.Reservation),
		idempotency:    make(map[string]booking.IdempotencyRecord),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = append([]booking.WalletEntry{}, v...)
	}
	for k, v := range s.entryKeys {
		c.entryKeys[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.matches {
		c.matches[k] = v
	}
	for k, v := range s.participations {
		c.participations[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// Memory is an in-memory booking.TxStore.
type Memory struct {
	mu sync.RWMutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// WithTx runs fn against the live state under the write lock, restoring a
// pre-transaction snapshot if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(booking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txView exposes the unlocked state as a booking.Store inside WithTx.
type txView struct {
	st *state
}

// =============================================================================
// UNLOCKED OPERATIONS (shared by Memory methods and txView)
// =============================================================================

func (s *state) getWallet(playerID booking.PlayerID) (*booking.Wallet, error) {
	w, ok := s.wallets[playerID]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &w, nil
}

func (s *state) putWallet(w booking.Wallet) error {
	s.wallets[w.PlayerID] = w
	return nil
}

func (s *state) updateWallet(playerID booking.PlayerID, balance booking.Money, expectVersion int64) error {
	w, ok := s.wallets[playerID]
	if !ok {
		return booking.ErrNotFound
	}
	if w.Version != expectVersion {
		return booking.ErrConcurrentModification
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	s.wallets[playerID] = w
	return nil
}

func (s *state) appendWalletEntry(e booking.WalletEntry) error {
	if e.IdempotencyKey != "" {
		if s.entryKeys[e.IdempotencyKey] {
			return booking.ErrDuplicateIdempotencyKey
		}
		s.entryKeys[e.IdempotencyKey] = true
	}
	s.entries[e.PlayerID] = append(s.entries[e.PlayerID], e)
	return nil
}

func (s *state) walletEntries(playerID booking.PlayerID, limit int) ([]booking.WalletEntry, error) {
	all := s.entries[playerID]
	out := make([]booking.WalletEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *state) claimSlot(slot booking.Slot, ref booking.BookingRef) error {
	if _, exists := s.slots[slot]; exists {
		return booking.ErrSlotOccupied
	}
	s.slots[slot] = ref
	return nil
}

func (s *state) releaseSlot(slot booking.Slot) error {
	delete(s.slots, slot)
	return nil
}

func (s *state) slotClaim(slot booking.Slot) (booking.BookingRef, error) {
	ref, ok := s.slots[slot]
	if !ok {
		return booking.BookingRef{}, booking.ErrNotFound
	}
	return ref, nil
}

func (s *state) insertMatch(m *booking.Match) error {
	s.matches[m.ID] = *m
	return nil
}

func (s *state) getMatch(id booking.MatchID) (*booking.Match, error) {
	m, ok := s.matches[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &m, nil
}

func (s *state) updateMatch(m *booking.Match, expectVersion int64) error {
	cur, ok := s.matches[m.ID]
	if !ok {
		return booking.ErrNotFound
	}
	if cur.Version != expectVersion {
		return booking.ErrConcurrentModification
	}
	m.Version = expectVersion + 1
	s.matches[m.ID] = *m
	return nil
}

func (s *state) getParticipation(matchID booking.MatchID, playerID booking.PlayerID) (*booking.Participation, error) {
	p, ok := s.participations[partKey{matchID, playerID}]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &p, nil
}

func (s *state) upsertParticipation(p booking.Participation) error {
	s.participations[partKey{p.MatchID, p.PlayerID}] = p
	return nil
}

func (s *state) listParticipations(matchID booking.MatchID, status booking.ParticipationStatus) ([]booking.Participation, error) {
	var out []booking.Participation
	for k, p := range s.participations {
		if k.MatchID == matchID && p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (s *state) insertReservation(r *booking.Reservation) error {
	s.reservations[r.ID] = *r
	return nil
}

func (s *state) getReservation(id booking.ReservationID) (*booking.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &r, nil
}

func (s *state) updateReservation(r *booking.Reservation, expectVersion int64) error {
	cur, ok := s.reservations[r.ID]
	if !ok {
		return booking.ErrNotFound
	}
	if cur.Version != expectVersion {
		return booking.ErrConcurrentModification
	}
	r.Version = expectVersion + 1
	s.reservations[r.ID] = *r
	return nil
}

func (s *state) getIdempotencyRecord(key string) (*booking.IdempotencyRecord, error) {
	rec, ok := s.idempotency[key]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &rec, nil
}

func (s *state) putIdempotencyRecord(rec booking.IdempotencyRecord) error {
	if _, exists := s.idempotency[rec.Key]; exists {
		return booking.ErrDuplicateIdempotencyKey
	}
	s.idempotency[rec.Key] = rec
	return nil
}

func (s *state) listOpenMatches(fieldID *booking.FieldID) ([]booking.Match, error) {
	var out []booking.Match
	for _, m := range s.matches {
		if m.State != booking.MatchOpen {
			continue
		}
		if fieldID != nil && m.Slot.FieldID != *fieldID {
			continue
		}
		out = append(out, m)
	}
	sortMatches(out)
	return out, nil
}

func (s *state) listPlayerMatches(playerID booking.PlayerID) ([]booking.Match, error) {
	var out []booking.Match
	for k, p := range s.participations {
		if k.PlayerID != playerID || p.Status != booking.ParticipationConfirmed {
			continue
		}
		m, ok := s.matches[k.MatchID]
		if !ok || m.State == booking.MatchCancelled {
			continue
		}
		out = append(out, m)
	}
	sortMatches(out)
	return out, nil
}

func (s *state) listPlayerReservations(playerID booking.PlayerID) ([]booking.Reservation, error) {
	var out []booking.Reservation
	for _, r := range s.reservations {
		if r.CreatorID == playerID && r.State != booking.ReservationCancelled {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (s *state) listFieldReservations(fieldID booking.FieldID) ([]booking.Reservation, error) {
	var out []booking.Reservation
	for _, r := range s.reservations {
		if r.Slot.FieldID == fieldID && r.State != booking.ReservationCancelled {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (s *state) occupiedStartTimes(fieldID booking.FieldID, date string) ([]string, error) {
	var out []string
	for slot := range s.slots {
		if slot.FieldID == fieldID && slot.Date == date {
			out = append(out, slot.Start)
		}
	}
	sort.Strings(out)
	return out, nil
}

func sortMatches(ms []booking.Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Slot.Date != ms[j].Slot.Date {
			return ms[i].Slot.Date < ms[j].Slot.Date
		}
		if ms[i].Slot.Start != ms[j].Slot.Start {
			return ms[i].Slot.Start < ms[j].Slot.Start
		}
		return ms[i].ID < ms[j].ID
	})
}

func sortReservations(rs []booking.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Slot.Date != rs[j].Slot.Date {
			return rs[i].Slot.Date < rs[j].Slot.Date
		}
		if rs[i].Slot.Start != rs[j].Slot.Start {
			return rs[i].Slot.Start < rs[j].Slot.Start
		}
		return rs[i].ID < rs[j].ID
	})
}

// =============================================================================
// LOCKED Memory METHODS (booking.Store)
// =============================================================================

func (m *Memory) GetWallet(_ context.Context, playerID booking.PlayerID) (*booking.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getWallet(playerID)
}

func (m *Memory) PutWallet(_ context.Context, w booking.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.putWallet(w)
}

func (m *Memory) UpdateWallet(_ context.Context, playerID booking.PlayerID, balance booking.Money, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateWallet(playerID, balance, expectVersion)
}

func (m *Memory) AppendWalletEntry(_ context.Context, e booking.WalletEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendWalletEntry(e)
}

func (m *Memory) WalletEntries(_ context.Context, playerID booking.PlayerID, limit int) ([]booking.WalletEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.walletEntries(playerID, limit)
}

func (m *Memory) ClaimSlot(_ context.Context, slot booking.Slot, ref booking.BookingRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.claimSlot(slot, ref)
}

func (m *Memory) ReleaseSlot(_ context.Context, slot booking.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.releaseSlot(slot)
}

func (m *Memory) SlotClaim(_ context.Context, slot booking.Slot) (booking.BookingRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.slotClaim(slot)
}

func (m *Memory) InsertMatch(_ context.Context, match *booking.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertMatch(match)
}

func (m *Memory) GetMatch(_ context.Context, id booking.MatchID) (*booking.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getMatch(id)
}

func (m *Memory) UpdateMatch(_ context.Context, match *booking.Match, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateMatch(match, expectVersion)
}

func (m *Memory) GetParticipation(_ context.Context, matchID booking.MatchID, playerID booking.PlayerID) (*booking.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getParticipation(matchID, playerID)
}

func (m *Memory) UpsertParticipation(_ context.Context, p booking.Participation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.upsertParticipation(p)
}

func (m *Memory) ListParticipations(_ context.Context, matchID booking.MatchID, status booking.ParticipationStatus) ([]booking.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listParticipations(matchID, status)
}

func (m *Memory) InsertReservation(_ context.Context, r *booking.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertReservation(r)
}

func (m *Memory) GetReservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getReservation(id)
}

func (m *Memory) UpdateReservation(_ context.Context, r *booking.Reservation, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateReservation(r, expectVersion)
}

func (m *Memory) GetIdempotencyRecord(_ context.Context, key string) (*booking.IdempotencyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getIdempotencyRecord(key)
}

func (m *Memory) PutIdempotencyRecord(_ context.Context, rec booking.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.putIdempotencyRecord(rec)
}

func (m *Memory) ListOpenMatches(_ context.Context, fieldID *booking.FieldID) ([]booking.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listOpenMatches(fieldID)
}

func (m *Memory) ListPlayerMatches(_ context.Context, playerID booking.PlayerID) ([]booking.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPlayerMatches(playerID)
}

func (m *Memory) ListPlayerReservations(_ context.Context, playerID booking.PlayerID) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPlayerReservations(playerID)
}

func (m *Memory) ListFieldReservations(_ context.Context, fieldID booking.FieldID) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listFieldReservations(fieldID)
}

func (m *Memory) OccupiedStartTimes(_ context.Context, fieldID booking.FieldID, date string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.occupiedStartTimes(fieldID, date)
}

// =============================================================================
// txView METHODS (booking.Store, unlocked, inside WithTx)
// =============================================================================

func (v *txView) GetWallet(_ context.Context, playerID booking.PlayerID) (*booking.Wallet, error) {
	return v.st.getWallet(playerID)
}

func (v *txView) PutWallet(_ context.Context, w booking.Wallet) error { return v.st.putWallet(w) }

func (v *txView) UpdateWallet(_ context.Context, playerID booking.PlayerID, balance booking.Money, expectVersion int64) error {
	return v.st.updateWallet(playerID, balance, expectVersion)
}

func (v *txView) AppendWalletEntry(_ context.Context, e booking.WalletEntry) error {
	return v.st.appendWalletEntry(e)
}

func (v *txView) WalletEntries(_ context.Context, playerID booking.PlayerID, limit int) ([]booking.WalletEntry, error) {
	return v.st.walletEntries(playerID, limit)
}

func (v *txView) ClaimSlot(_ context.Context, slot booking.Slot, ref booking.BookingRef) error {
	return v.st.claimSlot(slot, ref)
}

func (v *txView) ReleaseSlot(_ context.Context, slot booking.Slot) error {
	return v.st.releaseSlot(slot)
}

func (v *txView) SlotClaim(_ context.Context, slot booking.Slot) (booking.BookingRef, error) {
	return v.st.slotClaim(slot)
}

func (v *txView) InsertMatch(_ context.Context, m *booking.Match) error { return v.st.insertMatch(m) }

func (v *txView) GetMatch(_ context.Context, id booking.MatchID) (*booking.Match, error) {
	return v.st.getMatch(id)
}

func (v *txView) UpdateMatch(_ context.Context, m *booking.Match, expectVersion int64) error {
	return v.st.updateMatch(m, expectVersion)
}

func (v *txView) GetParticipation(_ context.Context, matchID booking.MatchID, playerID booking.PlayerID) (*booking.Participation, error) {
	return v.st.getParticipation(matchID, playerID)
}

func (v *txView) UpsertParticipation(_ context.Context, p booking.Participation) error {
	return v.st.upsertParticipation(p)
}

func (v *txView) ListParticipations(_ context.Context, matchID booking.MatchID, status booking.ParticipationStatus) ([]booking.Participation, error) {
	return v.st.listParticipations(matchID, status)
}

func (v *txView) InsertReservation(_ context.Context, r *booking.Reservation) error {
	return v.st.insertReservation(r)
}

func (v *txView) GetReservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return v.st.getReservation(id)
}

func (v *txView) UpdateReservation(_ context.Context, r *booking.Reservation, expectVersion int64) error {
	return v.st.updateReservation(r, expectVersion)
}

func (v *txView) GetIdempotencyRecord(_ context.Context, key string) (*booking.IdempotencyRecord, error) {
	return v.st.getIdempotencyRecord(key)
}

func (v *txView) PutIdempotencyRecord(_ context.Context, rec booking.IdempotencyRecord) error {
	return v.st.putIdempotencyRecord(rec)
}

func (v *txView) ListOpenMatches(_ context.Context, fieldID *booking.FieldID) ([]booking.Match, error) {
	return v.st.listOpenMatches(fieldID)
}

func (v *txView) ListPlayerMatches(_ context.Context, playerID booking.PlayerID) ([]booking.Match, error) {
	return v.st.listPlayerMatches(playerID)
}

func (v *txView) ListPlayerReservations(_ context.Context, playerID booking.PlayerID) ([]booking.Reservation, error) {
	return v.st.listPlayerReservations(playerID)
}

func (v *txView) ListFieldReservations(_ context.Context, fieldID booking.FieldID) ([]booking.Reservation, error) {
	return v.st.listFieldReservations(fieldID)
}

func (v *txView) OccupiedStartTimes(_ context.Context, fieldID booking.FieldID, date string) ([]string, error) {
	return v.st.occupiedStartTimes(fieldID, date)
}
