// Package ticket derives shareable proof-of-reservation tickets with a
// QR-encodable payload, and validates scanned payloads.
//
// The payload checksum is a plain rolling hash, unkeyed and trivially
// recomputable by anyone. It flags accidental corruption and casual
// edits only; it is not a MAC and grants no security.
package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubsincronica/clubd/calendar"
	"github.com/clubsincronica/clubd/metrics"
)

// QR payload discriminators.
const (
	PayloadType    = "CLUB_SINCRONICA_TICKET"
	PayloadVersion = "1.0"
)

// Generator errors.
var (
	// ErrNotConfirmed is returned when generating tickets for a
	// reservation that is not confirmed.
	ErrNotConfirmed = errors.New("reservation is not confirmed")
	// ErrAttendeeIndex is returned for an attendee index outside the
	// reservation's spot range.
	ErrAttendeeIndex = errors.New("attendee index out of range")
)

// Ticket is one spot's proof of reservation.
type Ticket struct {
	ID            string          `json:"id"`
	ReservationID string          `json:"reservation_id"`
	EventID       string          `json:"event_id"`
	EventTitle    string          `json:"event_title"`
	EventDate     string          `json:"event_date"`
	EventTime     string          `json:"event_time,omitempty"`
	AttendeeName  string          `json:"attendee_name"`
	AttendeeIndex int             `json:"attendee_index"`
	Price         decimal.Decimal `json:"price"`
	QRData        string          `json:"qr_data"`
}

// QRPayload is the wire form embedded in the QR code. The scanned fields
// travel inside the payload itself rather than a server-side ledger, so
// a holder can strip them; see AttendanceManager.
type QRPayload struct {
	Type            string     `json:"type"`
	Version         string     `json:"version"`
	TicketID        string     `json:"ticket_id"`
	EventID         string     `json:"event_id"`
	ReservationID   string     `json:"reservation_id"`
	AttendeeName    string     `json:"attendee_name"`
	EventDate       string     `json:"event_date"`
	EventTime       string     `json:"event_time,omitempty"`
	Price           string     `json:"price"`
	Checksum        string     `json:"checksum"`
	Scanned         bool       `json:"scanned,omitempty"`
	ScannedAt       *time.Time `json:"scanned_at,omitempty"`
	ScannedLocation string     `json:"scanned_location,omitempty"`
}

// Generate builds the ticket for one reserved spot. attendeeIndex is
// zero-based; ticket IDs are one-based to match the printed form.
func Generate(r *calendar.Reservation, attendeeIndex int) (*Ticket, error) {
	if r.Status != calendar.ReservationConfirmed {
		return nil, ErrNotConfirmed
	}
	if attendeeIndex < 0 || attendeeIndex >= r.NumberOfSpots {
		return nil, ErrAttendeeIndex
	}

	t := &Ticket{
		ID:            fmt.Sprintf("TKT-%s-%d", r.ID, attendeeIndex+1),
		ReservationID: r.ID,
		EventID:       r.EventID,
		EventTitle:    r.EventTitle,
		EventDate:     r.EventDate,
		EventTime:     r.EventTime,
		AttendeeName:  r.UserName,
		AttendeeIndex: attendeeIndex,
		Price:         r.TotalPrice.DivRound(decimal.NewFromInt(int64(r.NumberOfSpots)), 2),
	}

	data, err := json.Marshal(NewQRPayload(t))
	if err != nil {
		return nil, fmt.Errorf("marshal qr payload: %w", err)
	}
	t.QRData = string(data)
	return t, nil
}

// GenerateAll builds one ticket per reserved spot.
func GenerateAll(r *calendar.Reservation) ([]*Ticket, error) {
	tickets := make([]*Ticket, 0, r.NumberOfSpots)
	for i := 0; i < r.NumberOfSpots; i++ {
		t, err := Generate(r, i)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// NewQRPayload builds the payload for a ticket, including its checksum.
func NewQRPayload(t *Ticket) QRPayload {
	p := QRPayload{
		Type:          PayloadType,
		Version:       PayloadVersion,
		TicketID:      t.ID,
		EventID:       t.EventID,
		ReservationID: t.ReservationID,
		AttendeeName:  t.AttendeeName,
		EventDate:     t.EventDate,
		EventTime:     t.EventTime,
		Price:         t.Price.StringFixed(2),
	}
	p.Checksum = p.computeChecksum()
	return p
}

// computeChecksum hashes the fixed field concatenation. Changing any of
// these fields invalidates the payload; the scanned fields are outside
// the hash so check-in can mark them without re-signing.
func (p *QRPayload) computeChecksum() string {
	fields := strings.Join([]string{
		p.TicketID,
		p.EventID,
		p.ReservationID,
		p.AttendeeName,
		p.EventDate,
		p.Price,
	}, "|")
	return rollingHash(fields)
}

// rollingHash is the multiply-and-shift hash (h*31 + ch over int32)
// the mobile client computes. Not cryptographic.
func rollingHash(s string) string {
	var h int32
	for _, r := range s {
		h = (h << 5) - h + int32(r)
	}
	return strconv.FormatInt(int64(h), 10)
}

// Validation is the structured result of validating a scanned payload.
// Validation never panics or returns an error; malformed input yields
// Valid=false with a reason.
type Validation struct {
	Valid  bool
	Ticket *QRPayload
	Err    string
}

func invalid(reason string) Validation {
	metrics.TicketsValidated.WithLabelValues("invalid").Inc()
	return Validation{Valid: false, Err: reason}
}

// ValidateQR parses and checks a scanned payload: discriminator,
// version, required fields, and checksum equality.
func ValidateQR(data []byte) Validation {
	var p QRPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return invalid("malformed payload")
	}
	if p.Type != PayloadType {
		return invalid("not a club ticket")
	}
	if p.Version != PayloadVersion {
		return invalid("unsupported ticket version")
	}
	for _, field := range []struct{ name, value string }{
		{"ticket_id", p.TicketID},
		{"event_id", p.EventID},
		{"reservation_id", p.ReservationID},
		{"attendee_name", p.AttendeeName},
		{"event_date", p.EventDate},
		{"price", p.Price},
		{"checksum", p.Checksum},
	} {
		if field.value == "" {
			return invalid("missing field: " + field.name)
		}
	}
	if p.computeChecksum() != p.Checksum {
		return invalid("checksum mismatch")
	}

	metrics.TicketsValidated.WithLabelValues("valid").Inc()
	return Validation{Valid: true, Ticket: &p}
}
