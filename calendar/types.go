// Package calendar manages provider-owned events, an event-booking cart,
// and reservations against events, maintaining the participant-count
// invariant.
package calendar

import (
	"time"

	"github.com/shopspring/decimal"
)

// Date and time-of-day layouts used by event fields. Events carry their
// schedule as strings, the same denormalized form the backend serves.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// EventStatus records explicit provider actions on an event. Whether an
// event is upcoming or past is never stored; it is derived by EventPhase.
type EventStatus string

const (
	EventActive    EventStatus = "upcoming"
	EventCancelled EventStatus = "cancelled"
)

// Phase is the derived temporal state of an event.
type Phase string

const (
	PhaseUpcoming Phase = "upcoming"
	PhasePast     Phase = "past"
)

// EventPhase derives whether an event is upcoming or past. This is the
// only place the derivation lives; callers must not re-implement the
// date comparison. An event is upcoming while its start has not passed;
// with no parseable time it counts as upcoming through the whole day.
func EventPhase(date, timeOfDay string, now time.Time) Phase {
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+timeOfDay, now.Location())
	if err != nil {
		day, dayErr := time.ParseInLocation(DateLayout, date, now.Location())
		if dayErr != nil {
			// Unparseable schedule: keep the event visible.
			return PhaseUpcoming
		}
		start = day.AddDate(0, 0, 1)
	}
	if start.Before(now) {
		return PhasePast
	}
	return PhaseUpcoming
}

// Event is a provider-owned calendar entry with capacity tracking.
// CurrentParticipants is mutated only by reservations and their
// cancellations.
type Event struct {
	ID                  string          `json:"id"`
	ProviderID          string          `json:"provider_id"`
	ProviderName        string          `json:"provider_name,omitempty"`
	Title               string          `json:"title"`
	Description         string          `json:"description,omitempty"`
	Date                string          `json:"date"`
	Time                string          `json:"time"`
	Location            string          `json:"location,omitempty"`
	Category            string          `json:"category,omitempty"`
	Price               decimal.Decimal `json:"price"`
	MaxParticipants     int             `json:"max_participants"`
	CurrentParticipants int             `json:"current_participants"`
	Status              EventStatus     `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// EventPatch carries the mutable event fields. Nil fields are left
// unchanged.
type EventPatch struct {
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Date            *string          `json:"date,omitempty"`
	Time            *string          `json:"time,omitempty"`
	Location        *string          `json:"location,omitempty"`
	Category        *string          `json:"category,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	MaxParticipants *int             `json:"max_participants,omitempty"`
	Status          *EventStatus     `json:"status,omitempty"`
}

// ReservationStatus is the booking state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// PaymentStatus tracks payment separately from the booking state.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Reservation is a user's claim on spots in an event. Event fields are
// denormalized at creation time for ticket generation and display.
type Reservation struct {
	ID            string            `json:"id"`
	EventID       string            `json:"event_id"`
	EventTitle    string            `json:"event_title"`
	EventDate     string            `json:"event_date"`
	EventTime     string            `json:"event_time"`
	UserID        string            `json:"user_id"`
	UserName      string            `json:"user_name"`
	NumberOfSpots int               `json:"number_of_spots"`
	TotalPrice    decimal.Decimal   `json:"total_price"`
	Status        ReservationStatus `json:"status"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CartEntry is one line in the booking cart. Event is a snapshot taken
// when the entry was added; if the provider edits the event afterwards
// the snapshot price drifts and is not reconciled.
type CartEntry struct {
	EventID string    `json:"event_id"`
	Spots   int       `json:"spots"`
	Event   Event     `json:"event"`
	AddedAt time.Time `json:"added_at"`
}

// Total is the snapshot price times spots.
func (e *CartEntry) Total() decimal.Decimal {
	return e.Event.Price.Mul(decimal.NewFromInt(int64(e.Spots)))
}

// Settings holds per-provider booking settings, persisted under the
// calendar settings key.
type Settings struct {
	// AutoConfirm marks providers whose reservations skip the pending
	// state.
	AutoConfirm map[string]bool `json:"auto_confirm,omitempty"`
}
