/*
handlers_test.go - HTTP-level tests for the booking API

Tests drive the full stack: router -> handlers -> facade -> sqlite store,
asserting both response bodies and status-code mapping of domain errors.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pampeo/booking-engine/booking"
	"github.com/pampeo/booking-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.SaveField(ctx, booking.Field{
		ID:          "field-1",
		Name:        "North Pitch",
		HourlyPrice: booking.MustParseMoney("100.00"),
		Format:      booking.Format5v5,
	}))

	facade := booking.NewFacade(st, st, booking.DefaultPricing())
	router := NewRouter(NewHandler(facade, st), []string{"http://localhost:5173"})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st
}

func seedWallet(t *testing.T, st *sqlite.Store, playerID, balance string) {
	t.Helper()
	require.NoError(t, st.PutWallet(context.Background(), booking.Wallet{
		PlayerID: booking.PlayerID(playerID),
		Balance:  booking.MustParseMoney(balance),
		Version:  1,
	}))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func slotBody(start string) map[string]string {
	return map[string]string{"field_id": "field-1", "date": "2026-09-05", "start": start}
}

func createMatchHTTP(t *testing.T, srv *httptest.Server, creator string) MatchResultDTO {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/matches", map[string]any{
		"slot":       slotBody("18:00"),
		"creator_id": creator,
		"format":     "5v5",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result MatchResultDTO
	decodeInto(t, resp, &result)
	return result
}

// =============================================================================
// MATCH ENDPOINTS
// =============================================================================

func TestHTTP_CreateMatch(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")

	result := createMatchHTTP(t, srv, "creator")

	assert.Equal(t, "open", result.Match.State)
	assert.Equal(t, 10, result.Match.MaxSeats)
	assert.Equal(t, "10.00", result.Match.PricePerSeat)
	assert.Equal(t, "0.00", result.WalletBalance)
}

func TestHTTP_CreateMatch_MissingCreator(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/matches", map[string]any{
		"slot":   slotBody("18:00"),
		"format": "5v5",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_JoinMatch_DebitsWallet(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")
	seedWallet(t, st, "p1", "60.00")

	m := createMatchHTTP(t, srv, "creator")

	resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": "p1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result MatchResultDTO
	decodeInto(t, resp, &result)
	assert.Equal(t, "50.00", result.WalletBalance)
	assert.Equal(t, 1, result.Match.ConfirmedSeats)
}

func TestHTTP_JoinMatch_InsufficientBalance_402(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")
	seedWallet(t, st, "poor", "5.00")

	m := createMatchHTTP(t, srv, "creator")

	resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": "poor"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestHTTP_JoinMatch_Twice_409(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")
	seedWallet(t, st, "p1", "60.00")

	m := createMatchHTTP(t, srv, "creator")

	resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": "p1"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": "p1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHTTP_FullMatch_Join_409(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")

	m := createMatchHTTP(t, srv, "creator")
	for i := 0; i < 10; i++ {
		player := fmt.Sprintf("p-%d", i)
		seedWallet(t, st, player, "50.00")
		resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": player})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	seedWallet(t, st, "late", "50.00")
	resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": "late"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHTTP_CancelMatch_NonCreator_403(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")

	m := createMatchHTTP(t, srv, "creator")

	resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/cancel", map[string]string{"player_id": "imposter"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTP_GetMatch_WithParticipants(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")
	seedWallet(t, st, "p1", "60.00")

	m := createMatchHTTP(t, srv, "creator")
	resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": "p1"})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/matches/" + m.Match.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail MatchDetailDTO
	decodeInto(t, resp, &detail)
	require.Len(t, detail.Participants, 1)
	assert.Equal(t, "p1", detail.Participants[0].PlayerID)
}

func TestHTTP_GetMatch_Unknown_404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/matches/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// RESERVATION ENDPOINTS
// =============================================================================

func TestHTTP_CreateReservation(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "booker", "60.00")

	resp := postJSON(t, srv.URL+"/api/reservations", map[string]any{
		"slot":       slotBody("18:00"),
		"creator_id": "booker",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result ReservationResultDTO
	decodeInto(t, resp, &result)
	assert.Equal(t, "reserved", result.Reservation.State)
	assert.Equal(t, "50.00", result.Reservation.Advance)
	assert.Equal(t, "0.50", result.Reservation.PlatformFee)
	assert.Equal(t, "9.50", result.WalletBalance)
	assert.Equal(t, "50.00", result.Outstanding)
}

func TestHTTP_CreateReservation_OccupiedSlot_409(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "booker", "60.00")
	seedWallet(t, st, "late", "60.00")

	resp := postJSON(t, srv.URL+"/api/reservations", map[string]any{
		"slot": slotBody("18:00"), "creator_id": "booker",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/reservations", map[string]any{
		"slot": slotBody("18:00"), "creator_id": "late",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHTTP_CancelReservation_Refunds(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "booker", "60.00")

	resp := postJSON(t, srv.URL+"/api/reservations", map[string]any{
		"slot": slotBody("18:00"), "creator_id": "booker",
	})
	var created ReservationResultDTO
	decodeInto(t, resp, &created)

	resp = postJSON(t, srv.URL+"/api/reservations/"+created.Reservation.ID+"/cancel",
		map[string]string{"player_id": "booker"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result ReservationResultDTO
	decodeInto(t, resp, &result)
	assert.Equal(t, "cancelled", result.Reservation.State)
	assert.Equal(t, "60.00", result.WalletBalance)
}

// =============================================================================
// PLAYER ENDPOINTS
// =============================================================================

func TestHTTP_WalletTopUpAndEntries(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/players/p1/wallet/topup", map[string]string{"amount": "25.00"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var wallet WalletDTO
	decodeInto(t, resp, &wallet)
	assert.Equal(t, "25.00", wallet.Balance)

	resp, err := http.Get(srv.URL + "/api/players/p1/wallet/entries")
	require.NoError(t, err)
	var entries []WalletEntryDTO
	decodeInto(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "credit", entries[0].Kind)
	assert.Equal(t, "25.00", entries[0].Delta)
}

func TestHTTP_WalletTopUp_BadAmount_400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/players/p1/wallet/topup", map[string]string{"amount": "lots"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_GetWallet_Unknown_404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/players/ghost/wallet")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_PlayerBookings(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "creator", "0.00")
	seedWallet(t, st, "p1", "60.00")

	m := createMatchHTTP(t, srv, "creator")
	resp := postJSON(t, srv.URL+"/api/matches/"+m.Match.ID+"/join", map[string]string{"player_id": "p1"})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/players/p1/bookings")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var bookings PlayerBookingsDTO
	decodeInto(t, resp, &bookings)
	require.Len(t, bookings.Matches, 1)
	assert.Equal(t, m.Match.ID, bookings.Matches[0].ID)
	assert.Empty(t, bookings.Reservations)
}

// =============================================================================
// FIELD ENDPOINTS
// =============================================================================

func TestHTTP_FieldAvailability(t *testing.T) {
	srv, st := newTestServer(t)
	seedWallet(t, st, "booker", "60.00")

	resp := postJSON(t, srv.URL+"/api/reservations", map[string]any{
		"slot": slotBody("18:00"), "creator_id": "booker",
	})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/fields/field-1/availability?date=2026-09-05")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var availability AvailabilityDTO
	decodeInto(t, resp, &availability)
	assert.Equal(t, []string{"18:00"}, availability.Occupied)
}

func TestHTTP_FieldAvailability_MissingDate_400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/fields/field-1/availability")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_ListFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/fields")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fields []FieldDTO
	decodeInto(t, resp, &fields)
	require.Len(t, fields, 1)
	assert.Equal(t, "North Pitch", fields[0].Name)
}

func TestHTTP_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
