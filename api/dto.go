/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts are decimal strings with two fraction digits ("9.50").
  Clients must never send or receive floats for money.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/facade.go: Domain results these map from
*/
package api

import (
	"time"

	"github.com/pampeo/booking-engine/booking"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// SlotDTO identifies one bookable hour of one field.
type SlotDTO struct {
	FieldID string `json:"field_id"`
	Date    string `json:"date"`
	Start   string `json:"start"`
}

func (s SlotDTO) toDomain() booking.Slot {
	return booking.Slot{
		FieldID: booking.FieldID(s.FieldID),
		Date:    s.Date,
		Start:   s.Start,
	}
}

func toSlotDTO(s booking.Slot) SlotDTO {
	return SlotDTO{FieldID: string(s.FieldID), Date: s.Date, Start: s.Start}
}

// CreateMatchRequest is the body of POST /api/matches.
type CreateMatchRequest struct {
	Slot             SlotDTO `json:"slot"`
	CreatorID        string  `json:"creator_id"`
	Format           string  `json:"format"`
	Exclusive        bool    `json:"exclusive,omitempty"`
	IdempotencyToken string  `json:"idempotency_token,omitempty"`
}

// PlayerActionRequest is the body of join/leave/cancel/start/finish calls.
type PlayerActionRequest struct {
	PlayerID         string `json:"player_id"`
	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

// CreateReservationRequest is the body of POST /api/reservations.
type CreateReservationRequest struct {
	Slot             SlotDTO `json:"slot"`
	CreatorID        string  `json:"creator_id"`
	IdempotencyToken string  `json:"idempotency_token,omitempty"`
}

// MatchDTO represents a match in API responses.
type MatchDTO struct {
	ID             string  `json:"id"`
	Slot           SlotDTO `json:"slot"`
	Format         string  `json:"format"`
	CreatorID      string  `json:"creator_id"`
	MaxSeats       int     `json:"max_seats"`
	ConfirmedSeats int     `json:"confirmed_seats"`
	PricePerSeat   string  `json:"price_per_seat"`
	State          string  `json:"state"`
	CreatedAt      string  `json:"created_at"`
}

func toMatchDTO(m *booking.Match) MatchDTO {
	return MatchDTO{
		ID:             string(m.ID),
		Slot:           toSlotDTO(m.Slot),
		Format:         string(m.Format),
		CreatorID:      string(m.CreatorID),
		MaxSeats:       m.MaxSeats,
		ConfirmedSeats: m.ConfirmedSeats,
		PricePerSeat:   m.PricePerSeat.String(),
		State:          string(m.State),
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

// MatchResultDTO pairs a match with the acting player's wallet balance
// after the operation committed.
type MatchResultDTO struct {
	Match         MatchDTO `json:"match"`
	WalletBalance string   `json:"wallet_balance"`
}

func toMatchResultDTO(res *booking.MatchResult) MatchResultDTO {
	return MatchResultDTO{
		Match:         toMatchDTO(res.Match),
		WalletBalance: res.WalletBalance.String(),
	}
}

// ParticipantDTO represents one confirmed seat in a match.
type ParticipantDTO struct {
	PlayerID string `json:"player_id"`
	Status   string `json:"status"`
	JoinedAt string `json:"joined_at"`
}

// MatchDetailDTO is the payload of GET /api/matches/{id}.
type MatchDetailDTO struct {
	Match        MatchDTO         `json:"match"`
	Participants []ParticipantDTO `json:"participants"`
}

// ReservationDTO represents a full-field reservation in API responses.
type ReservationDTO struct {
	ID          string  `json:"id"`
	Slot        SlotDTO `json:"slot"`
	CreatorID   string  `json:"creator_id"`
	FullPrice   string  `json:"full_price"`
	Advance     string  `json:"advance"`
	PlatformFee string  `json:"platform_fee"`
	State       string  `json:"state"`
	CreatedAt   string  `json:"created_at"`
}

func toReservationDTO(r *booking.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:          string(r.ID),
		Slot:        toSlotDTO(r.Slot),
		CreatorID:   string(r.CreatorID),
		FullPrice:   r.FullPrice.String(),
		Advance:     r.Advance.String(),
		PlatformFee: r.PlatformFee.String(),
		State:       string(r.State),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

// ReservationResultDTO pairs a reservation with the creator's wallet balance
// and the off-platform remainder still owed to the field owner.
type ReservationResultDTO struct {
	Reservation   ReservationDTO `json:"reservation"`
	WalletBalance string         `json:"wallet_balance"`
	Outstanding   string         `json:"outstanding"`
}

func toReservationResultDTO(res *booking.ReservationResult) ReservationResultDTO {
	return ReservationResultDTO{
		Reservation:   toReservationDTO(res.Reservation),
		WalletBalance: res.WalletBalance.String(),
		Outstanding:   res.Outstanding.String(),
	}
}

// WalletDTO is the payload of GET /api/players/{id}/wallet.
type WalletDTO struct {
	PlayerID string `json:"player_id"`
	Balance  string `json:"balance"`
}

// WalletEntryDTO is one row of the wallet change log.
type WalletEntryDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Delta     string `json:"delta"`
	RefKind   string `json:"ref_kind"`
	RefID     string `json:"ref_id"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toWalletEntryDTO(e booking.WalletEntry) WalletEntryDTO {
	return WalletEntryDTO{
		ID:        string(e.ID),
		Kind:      string(e.Kind),
		Delta:     e.Delta.String(),
		RefKind:   string(e.Reference.Kind),
		RefID:     e.Reference.ID,
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

// TopUpRequest is the body of POST /api/players/{id}/wallet/topup.
type TopUpRequest struct {
	Amount           string `json:"amount"`
	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

// PlayerBookingsDTO groups everything a player is committed to.
type PlayerBookingsDTO struct {
	Matches      []MatchDTO       `json:"matches"`
	Reservations []ReservationDTO `json:"reservations"`
}

// FieldDTO represents a catalog record in API responses.
type FieldDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	HourlyPrice string          `json:"hourly_price"`
	Format      string          `json:"format"`
	OpenWindows []OpenWindowDTO `json:"open_windows,omitempty"`
}

// OpenWindowDTO is one weekly opening window of a field.
type OpenWindowDTO struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func toFieldDTO(f booking.Field) FieldDTO {
	dto := FieldDTO{
		ID:          string(f.ID),
		Name:        f.Name,
		HourlyPrice: f.HourlyPrice.String(),
		Format:      string(f.Format),
	}
	for _, w := range f.OpenWindows {
		dto.OpenWindows = append(dto.OpenWindows, OpenWindowDTO{
			Weekday: int(w.Weekday),
			Start:   w.Start,
			End:     w.End,
		})
	}
	return dto
}

// AvailabilityDTO is the payload of GET /api/fields/{id}/availability.
type AvailabilityDTO struct {
	FieldID  string   `json:"field_id"`
	Date     string   `json:"date"`
	Occupied []string `json:"occupied"`
}

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
