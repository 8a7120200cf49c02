/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the booking facade via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Matches:
    GET    /api/matches                    List open matches (?field_id=)
    POST   /api/matches                    Create match
    GET    /api/matches/{id}               Match with confirmed participants
    POST   /api/matches/{id}/join          Join (debits one seat price)
    POST   /api/matches/{id}/leave         Leave (refunds one seat price)
    POST   /api/matches/{id}/cancel        Cancel (creator only, refunds all)
    POST   /api/matches/{id}/start         Mark in progress (creator only)
    POST   /api/matches/{id}/finish        Mark finished, frees the slot

  Reservations:
    POST   /api/reservations               Create (debits advance + fee)
    GET    /api/reservations/{id}          Get reservation
    POST   /api/reservations/{id}/cancel   Cancel (creator only, refunds)
    POST   /api/reservations/{id}/confirm  Confirm with field owner
    POST   /api/reservations/{id}/finish   Mark finished, frees the slot

  Players:
    GET    /api/players/{id}/wallet          Balance
    GET    /api/players/{id}/wallet/entries  Change log
    POST   /api/players/{id}/wallet/topup    Credit funds
    GET    /api/players/{id}/bookings        Matches + reservations

  Fields:
    GET    /api/fields                       Catalog listing
    GET    /api/fields/{id}                  One field with open windows
    GET    /api/fields/{id}/availability     Occupied starts (?date=)
    GET    /api/fields/{id}/reservations     Active reservations

ERROR HANDLING:
  Domain errors map to HTTP status via httpStatus():
  - 400: Validation errors, invalid input
  - 402: Insufficient wallet balance
  - 403: Acting player is not allowed to perform the operation
  - 404: Resource not found
  - 409: Slot occupied, match full, already joined, state conflicts
  - 503: Storage unavailable

SECURITY NOTE:
  Player identity is taken from the request body. Authentication sits in
  front of this service and is out of scope here.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - booking/facade.go: The domain surface behind these handlers
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pampeo/booking-engine/booking"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// FieldCatalog is the read surface the field endpoints need.
type FieldCatalog interface {
	Field(ctx context.Context, id booking.FieldID) (*booking.Field, error)
	ListFields(ctx context.Context) ([]booking.Field, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Facade *booking.Facade
	Fields FieldCatalog
}

// NewHandler creates a new handler over the booking facade.
func NewHandler(facade *booking.Facade, fields FieldCatalog) *Handler {
	return &Handler{Facade: facade, Fields: fields}
}

// =============================================================================
// MATCH HANDLERS
// =============================================================================

// ListOpenMatches returns joinable matches, optionally for one field.
func (h *Handler) ListOpenMatches(w http.ResponseWriter, r *http.Request) {
	var fieldID *booking.FieldID
	if q := r.URL.Query().Get("field_id"); q != "" {
		id := booking.FieldID(q)
		fieldID = &id
	}

	matches, err := h.Facade.ListOpenMatches(r.Context(), fieldID)
	if err != nil {
		writeDomainError(w, "Failed to list matches", err)
		return
	}

	dtos := make([]MatchDTO, len(matches))
	for i := range matches {
		dtos[i] = toMatchDTO(&matches[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMatch creates an open match on a free slot.
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "creator_id is required", nil)
		return
	}

	res, err := h.Facade.CreateMatch(r.Context(), booking.CreateMatchRequest{
		Slot:             req.Slot.toDomain(),
		CreatorID:        booking.PlayerID(req.CreatorID),
		Format:           booking.Format(req.Format),
		Exclusive:        req.Exclusive,
		IdempotencyToken: req.IdempotencyToken,
	})
	if err != nil {
		writeDomainError(w, "Failed to create match", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMatchResultDTO(res))
}

// GetMatch returns one match with its confirmed participants.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := booking.MatchID(chi.URLParam(r, "id"))

	m, participants, err := h.Facade.GetMatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get match", err)
		return
	}

	detail := MatchDetailDTO{Match: toMatchDTO(m), Participants: []ParticipantDTO{}}
	for _, p := range participants {
		detail.Participants = append(detail.Participants, ParticipantDTO{
			PlayerID: string(p.PlayerID),
			Status:   string(p.Status),
			JoinedAt: p.JoinedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

// JoinMatch confirms a seat for the player, debiting the seat price.
func (h *Handler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	h.matchAction(w, r, "Failed to join match", h.Facade.JoinMatch)
}

// LeaveMatch releases the player's seat and refunds the seat price.
func (h *Handler) LeaveMatch(w http.ResponseWriter, r *http.Request) {
	h.matchAction(w, r, "Failed to leave match", h.Facade.LeaveMatch)
}

// CancelMatch cancels the whole match and refunds every confirmed player.
func (h *Handler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	h.matchAction(w, r, "Failed to cancel match", h.Facade.CancelMatch)
}

// StartMatch marks the match in progress; leaving closes from here on.
func (h *Handler) StartMatch(w http.ResponseWriter, r *http.Request) {
	h.matchAction(w, r, "Failed to start match", h.Facade.StartMatch)
}

// FinishMatch marks the match finished and frees its slot.
func (h *Handler) FinishMatch(w http.ResponseWriter, r *http.Request) {
	h.matchAction(w, r, "Failed to finish match", h.Facade.FinishMatch)
}

type matchActionFn func(ctx context.Context, id booking.MatchID, playerID booking.PlayerID, token string) (*booking.MatchResult, error)

func (h *Handler) matchAction(w http.ResponseWriter, r *http.Request, failMsg string, fn matchActionFn) {
	id := booking.MatchID(chi.URLParam(r, "id"))

	var req PlayerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "player_id is required", nil)
		return
	}

	res, err := fn(r.Context(), id, booking.PlayerID(req.PlayerID), req.IdempotencyToken)
	if err != nil {
		writeDomainError(w, failMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResultDTO(res))
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation books a full field, debiting advance plus platform fee.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "creator_id is required", nil)
		return
	}

	res, err := h.Facade.CreateReservation(r.Context(), booking.CreateReservationRequest{
		Slot:             req.Slot.toDomain(),
		CreatorID:        booking.PlayerID(req.CreatorID),
		IdempotencyToken: req.IdempotencyToken,
	})
	if err != nil {
		writeDomainError(w, "Failed to create reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResultDTO(res))
}

// GetReservation returns one reservation.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Facade.GetReservation(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// CancelReservation refunds the creator and frees the slot.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	h.reservationAction(w, r, "Failed to cancel reservation", h.Facade.CancelReservation)
}

// ConfirmReservation records that the field owner confirmed the booking.
func (h *Handler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	h.reservationAction(w, r, "Failed to confirm reservation", h.Facade.ConfirmReservationWithOwner)
}

// FinishReservation marks the reservation finished and frees its slot.
func (h *Handler) FinishReservation(w http.ResponseWriter, r *http.Request) {
	h.reservationAction(w, r, "Failed to finish reservation", h.Facade.FinishReservation)
}

type reservationActionFn func(ctx context.Context, id booking.ReservationID, playerID booking.PlayerID, token string) (*booking.ReservationResult, error)

func (h *Handler) reservationAction(w http.ResponseWriter, r *http.Request, failMsg string, fn reservationActionFn) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	var req PlayerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "player_id is required", nil)
		return
	}

	res, err := fn(r.Context(), id, booking.PlayerID(req.PlayerID), req.IdempotencyToken)
	if err != nil {
		writeDomainError(w, failMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResultDTO(res))
}

// =============================================================================
// PLAYER HANDLERS
// =============================================================================

// GetWallet returns the player's authoritative balance.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	playerID := booking.PlayerID(chi.URLParam(r, "id"))

	wallet, err := h.Facade.Wallet(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, "Failed to get wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, WalletDTO{
		PlayerID: string(wallet.PlayerID),
		Balance:  wallet.Balance.String(),
	})
}

// GetWalletEntries returns the player's wallet change log, newest first.
func (h *Handler) GetWalletEntries(w http.ResponseWriter, r *http.Request) {
	playerID := booking.PlayerID(chi.URLParam(r, "id"))

	entries, err := h.Facade.WalletEntries(r.Context(), playerID, 100)
	if err != nil {
		writeDomainError(w, "Failed to get wallet entries", err)
		return
	}

	dtos := make([]WalletEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toWalletEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TopUpWallet credits funds to a player, creating the wallet on first use.
func (h *Handler) TopUpWallet(w http.ResponseWriter, r *http.Request) {
	playerID := booking.PlayerID(chi.URLParam(r, "id"))

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := booking.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	balance, err := h.Facade.TopUp(r.Context(), playerID, amount, req.IdempotencyToken)
	if err != nil {
		writeDomainError(w, "Failed to top up wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, WalletDTO{PlayerID: string(playerID), Balance: balance.String()})
}

// GetPlayerBookings returns everything the player is committed to.
func (h *Handler) GetPlayerBookings(w http.ResponseWriter, r *http.Request) {
	playerID := booking.PlayerID(chi.URLParam(r, "id"))

	bookings, err := h.Facade.ListPlayerBookings(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, "Failed to list bookings", err)
		return
	}

	dto := PlayerBookingsDTO{Matches: []MatchDTO{}, Reservations: []ReservationDTO{}}
	for i := range bookings.Matches {
		dto.Matches = append(dto.Matches, toMatchDTO(&bookings.Matches[i]))
	}
	for i := range bookings.Reservations {
		dto.Reservations = append(dto.Reservations, toReservationDTO(&bookings.Reservations[i]))
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// FIELD HANDLERS
// =============================================================================

// ListFields returns the field catalog.
func (h *Handler) ListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.Fields.ListFields(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list fields", err)
		return
	}

	dtos := make([]FieldDTO, len(fields))
	for i, f := range fields {
		dtos[i] = toFieldDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetField returns one catalog record with its opening windows.
func (h *Handler) GetField(w http.ResponseWriter, r *http.Request) {
	id := booking.FieldID(chi.URLParam(r, "id"))

	field, err := h.Fields.Field(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get field", err)
		return
	}
	writeJSON(w, http.StatusOK, toFieldDTO(*field))
}

// GetFieldAvailability returns the occupied start times for one date.
func (h *Handler) GetFieldAvailability(w http.ResponseWriter, r *http.Request) {
	id := booking.FieldID(chi.URLParam(r, "id"))
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required", nil)
		return
	}

	occupied, err := h.Facade.OccupiedStartTimes(r.Context(), id, date)
	if err != nil {
		writeDomainError(w, "Failed to get availability", err)
		return
	}
	if occupied == nil {
		occupied = []string{}
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{FieldID: string(id), Date: date, Occupied: occupied})
}

// GetFieldReservations returns the field's active reservations.
func (h *Handler) GetFieldReservations(w http.ResponseWriter, r *http.Request) {
	id := booking.FieldID(chi.URLParam(r, "id"))

	reservations, err := h.Facade.ListFieldReservations(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list reservations", err)
		return
	}

	dtos := make([]ReservationDTO, len(reservations))
	for i := range reservations {
		dtos[i] = toReservationDTO(&reservations[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a booking error to its HTTP status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, httpStatus(err), message, err)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, booking.ErrUnauthorized):
		return http.StatusForbidden
	case booking.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, booking.ErrUnavailable):
		return http.StatusServiceUnavailable
	case booking.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
