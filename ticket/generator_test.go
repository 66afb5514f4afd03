package ticket

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubsincronica/clubd/calendar"
)

func confirmedReservation() *calendar.Reservation {
	return &calendar.Reservation{
		ID:            "res-123",
		EventID:       "evt-456",
		EventTitle:    "Sound Bath",
		EventDate:     "2030-06-01",
		EventTime:     "19:00",
		UserID:        "user-1",
		UserName:      "Ana",
		NumberOfSpots: 3,
		TotalPrice:    decimal.RequireFromString("45.00"),
		Status:        calendar.ReservationConfirmed,
	}
}

func TestGenerate(t *testing.T) {
	r := confirmedReservation()

	tk, err := Generate(r, 0)
	require.NoError(t, err)

	assert.Equal(t, "TKT-res-123-1", tk.ID)
	assert.Equal(t, "evt-456", tk.EventID)
	assert.Equal(t, "Ana", tk.AttendeeName)
	// 45.00 / 3 spots
	assert.True(t, tk.Price.Equal(decimal.RequireFromString("15.00")), "got %s", tk.Price)
	assert.NotEmpty(t, tk.QRData)

	var p QRPayload
	require.NoError(t, json.Unmarshal([]byte(tk.QRData), &p))
	assert.Equal(t, PayloadType, p.Type)
	assert.Equal(t, PayloadVersion, p.Version)
	assert.Equal(t, "15.00", p.Price)
	assert.NotEmpty(t, p.Checksum)
}

func TestGenerateRejectsUnconfirmed(t *testing.T) {
	r := confirmedReservation()
	r.Status = calendar.ReservationPending
	_, err := Generate(r, 0)
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestGenerateRejectsBadIndex(t *testing.T) {
	r := confirmedReservation()
	_, err := Generate(r, -1)
	assert.ErrorIs(t, err, ErrAttendeeIndex)
	_, err = Generate(r, 3)
	assert.ErrorIs(t, err, ErrAttendeeIndex)
}

func TestGenerateAll(t *testing.T) {
	r := confirmedReservation()
	tickets, err := GenerateAll(r)
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, "TKT-res-123-1", tickets[0].ID)
	assert.Equal(t, "TKT-res-123-3", tickets[2].ID)
}

func TestValidateQR_RoundTrip(t *testing.T) {
	r := confirmedReservation()
	tickets, err := GenerateAll(r)
	require.NoError(t, err)

	for _, tk := range tickets {
		v := ValidateQR([]byte(tk.QRData))
		require.True(t, v.Valid, "ticket %s: %s", tk.ID, v.Err)
		assert.Equal(t, tk.ID, v.Ticket.TicketID)
	}
}

func TestValidateQR_TamperedFields(t *testing.T) {
	r := confirmedReservation()
	tk, err := Generate(r, 0)
	require.NoError(t, err)

	mutations := map[string]func(*QRPayload){
		"ticket_id":      func(p *QRPayload) { p.TicketID = "TKT-res-123-2" },
		"event_id":       func(p *QRPayload) { p.EventID = "evt-other" },
		"reservation_id": func(p *QRPayload) { p.ReservationID = "res-other" },
		"attendee_name":  func(p *QRPayload) { p.AttendeeName = "Eve" },
		"event_date":     func(p *QRPayload) { p.EventDate = "2030-06-02" },
		"price":          func(p *QRPayload) { p.Price = "0.01" },
	}

	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			var p QRPayload
			require.NoError(t, json.Unmarshal([]byte(tk.QRData), &p))
			mutate(&p)
			data, _ := json.Marshal(p)
			v := ValidateQR(data)
			assert.False(t, v.Valid, "mutated %s should fail validation", field)
			assert.Equal(t, "checksum mismatch", v.Err)
		})
	}
}

func TestValidateQR_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"not json", "not-json", "malformed payload"},
		{"wrong type", `{"type":"OTHER","version":"1.0"}`, "not a club ticket"},
		{"wrong version", `{"type":"CLUB_SINCRONICA_TICKET","version":"2.0"}`, "unsupported ticket version"},
		{"missing fields", `{"type":"CLUB_SINCRONICA_TICKET","version":"1.0"}`, "missing field: ticket_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := ValidateQR([]byte(tc.payload))
			assert.False(t, v.Valid)
			assert.Equal(t, tc.wantErr, v.Err)
		})
	}
}

// The scanned fields are outside the checksum, so marking a ticket
// scanned keeps the payload valid.
func TestValidateQR_ScannedFieldsOutsideChecksum(t *testing.T) {
	r := confirmedReservation()
	tk, err := Generate(r, 0)
	require.NoError(t, err)

	var p QRPayload
	require.NoError(t, json.Unmarshal([]byte(tk.QRData), &p))
	p.Scanned = true
	p.ScannedLocation = "front door"
	data, _ := json.Marshal(p)

	v := ValidateQR(data)
	assert.True(t, v.Valid, v.Err)
}

func TestRollingHash(t *testing.T) {
	// Deterministic and order-sensitive
	assert.Equal(t, rollingHash("abc"), rollingHash("abc"))
	assert.NotEqual(t, rollingHash("abc"), rollingHash("acb"))
	// Anyone can recompute it; equal input gives equal output with no key
	assert.Equal(t, rollingHash(""), "0")
}
