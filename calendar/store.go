package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubsincronica/clubd/identity"
	"github.com/clubsincronica/clubd/metrics"
	"github.com/clubsincronica/clubd/storage"
)

// Store operation errors.
var (
	// ErrEventNotFound is returned when an event ID is unknown.
	ErrEventNotFound = errors.New("event not found")
	// ErrReservationNotFound is returned when a reservation ID is unknown.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrInvalidSpots is returned for a spot count below 1.
	ErrInvalidSpots = errors.New("spots must be at least 1")
	// ErrCapacityExceeded is returned when capacity enforcement is on and
	// a reservation would overbook the event.
	ErrCapacityExceeded = errors.New("event capacity exceeded")
	// ErrEmptyCart is returned by CheckoutCart when the cart is empty.
	ErrEmptyCart = errors.New("booking cart is empty")
)

// Options configures store behavior.
type Options struct {
	// EnforceCapacity rejects reservations that would exceed an event's
	// MaxParticipants. Off by default: the shipped behavior allows
	// overbooking and relies on manual confirmation.
	EnforceCapacity bool
}

// Store manages events, the booking cart, reservations and settings.
// Same persistence contract as the food store: memory first, persist
// best-effort.
type Store struct {
	kv       storage.KV
	logger   *slog.Logger
	identity identity.Provider
	opts     Options

	mu           sync.RWMutex
	events       []Event
	reservations []Reservation
	cart         []CartEntry
	settings     Settings
}

// NewStore creates a calendar store. The identity provider supplies
// attribution for events and reservations.
func NewStore(kv storage.KV, id identity.Provider, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger, identity: id, opts: opts}
}

// Load restores persisted events, reservations, cart and settings.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, out := range map[string]any{
		storage.KeyCalendarEvents:   &s.events,
		storage.KeyCalendarResvs:    &s.reservations,
		storage.KeyCalendarCart:     &s.cart,
		storage.KeyCalendarSettings: &s.settings,
	} {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("load %s: %w", key, err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
	}
	return nil
}

// currentUser tolerates a nil identity provider.
func (s *Store) currentUser() (*identity.User, bool) {
	if s.identity == nil {
		return nil, false
	}
	return s.identity.Current()
}

// AddEvent creates an event attributed to the signed-in user as provider.
func (s *Store) AddEvent(ctx context.Context, e Event) (*Event, error) {
	user, ok := s.currentUser()
	if !ok {
		return nil, identity.ErrNotAuthenticated
	}

	now := time.Now()
	e.ID = uuid.New().String()
	e.ProviderID = user.ID
	e.ProviderName = user.Name
	e.CurrentParticipants = 0
	e.Status = EventActive
	e.CreatedAt = now
	e.UpdatedAt = now

	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()

	s.persistEvents(ctx)
	return &e, nil
}

// UpdateEvent applies the patch to the event with the given ID.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch EventPatch) (*Event, error) {
	s.mu.Lock()
	event := s.findEvent(id)
	if event == nil {
		s.mu.Unlock()
		return nil, ErrEventNotFound
	}
	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.Date != nil {
		event.Date = *patch.Date
	}
	if patch.Time != nil {
		event.Time = *patch.Time
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.Category != nil {
		event.Category = *patch.Category
	}
	if patch.Price != nil {
		event.Price = *patch.Price
	}
	if patch.MaxParticipants != nil {
		event.MaxParticipants = *patch.MaxParticipants
	}
	if patch.Status != nil {
		event.Status = *patch.Status
	}
	event.UpdatedAt = time.Now()
	updated := *event
	s.mu.Unlock()

	s.persistEvents(ctx)
	return &updated, nil
}

// DeleteEvent removes an event. Existing reservations keep their
// denormalized copy and survive the delete.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	events := s.events[:0]
	for _, e := range s.events {
		if e.ID == id {
			found = true
			continue
		}
		events = append(events, e)
	}
	s.events = events
	s.mu.Unlock()

	if !found {
		return ErrEventNotFound
	}
	s.persistEvents(ctx)
	return nil
}

// Event returns a copy of the event with the given ID.
func (s *Store) Event(id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.findEvent(id); e != nil {
		out := *e
		return &out, nil
	}
	return nil, ErrEventNotFound
}

// Events returns all events.
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// AddToCart adds an event to the booking cart, snapshotting the event as
// it is now. Adding the same event again accumulates spots on the
// existing entry without refreshing the snapshot.
func (s *Store) AddToCart(ctx context.Context, eventID string, spots int) (*CartEntry, error) {
	if spots < 1 {
		return nil, ErrInvalidSpots
	}

	s.mu.Lock()
	event := s.findEvent(eventID)
	if event == nil {
		s.mu.Unlock()
		return nil, ErrEventNotFound
	}

	var entry *CartEntry
	for i := range s.cart {
		if s.cart[i].EventID == eventID {
			s.cart[i].Spots += spots
			entry = &s.cart[i]
			break
		}
	}
	if entry == nil {
		s.cart = append(s.cart, CartEntry{
			EventID: eventID,
			Spots:   spots,
			Event:   *event,
			AddedAt: time.Now(),
		})
		entry = &s.cart[len(s.cart)-1]
	}
	out := *entry
	s.mu.Unlock()

	s.persistCart(ctx)
	return &out, nil
}

// RemoveFromCart removes the entry for the given event.
func (s *Store) RemoveFromCart(ctx context.Context, eventID string) error {
	s.mu.Lock()
	found := false
	cart := s.cart[:0]
	for _, entry := range s.cart {
		if entry.EventID == eventID {
			found = true
			continue
		}
		cart = append(cart, entry)
	}
	s.cart = cart
	s.mu.Unlock()

	if !found {
		return ErrEventNotFound
	}
	s.persistCart(ctx)
	return nil
}

// ClearCart empties the booking cart.
func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.cart = nil
	s.mu.Unlock()
	s.persistCart(ctx)
}

// Cart returns the booking cart entries.
func (s *Store) Cart() []CartEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CartEntry(nil), s.cart...)
}

// CartTotal sums snapshot price × spots over the cart.
func (s *Store) CartTotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for i := range s.cart {
		total = total.Add(s.cart[i].Total())
	}
	return total
}

// CreateReservation books spots on an event for the signed-in user.
// The participant count is incremented by the spot count; unless
// capacity enforcement is enabled this can overbook the event, which is
// the shipped behavior.
func (s *Store) CreateReservation(ctx context.Context, eventID string, spots int, paymentMethod string) (*Reservation, error) {
	if spots < 1 {
		return nil, ErrInvalidSpots
	}
	user, ok := s.currentUser()
	if !ok {
		return nil, identity.ErrNotAuthenticated
	}

	now := time.Now()

	s.mu.Lock()
	event := s.findEvent(eventID)
	if event == nil {
		s.mu.Unlock()
		return nil, ErrEventNotFound
	}
	if s.opts.EnforceCapacity && event.MaxParticipants > 0 &&
		event.CurrentParticipants+spots > event.MaxParticipants {
		s.mu.Unlock()
		return nil, ErrCapacityExceeded
	}

	status := ReservationPending
	if s.settings.AutoConfirm[event.ProviderID] {
		status = ReservationConfirmed
	}

	r := Reservation{
		ID:            uuid.New().String(),
		EventID:       event.ID,
		EventTitle:    event.Title,
		EventDate:     event.Date,
		EventTime:     event.Time,
		UserID:        user.ID,
		UserName:      user.Name,
		NumberOfSpots: spots,
		TotalPrice:    event.Price.Mul(decimal.NewFromInt(int64(spots))),
		Status:        status,
		PaymentStatus: PaymentPending,
		PaymentMethod: paymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	event.CurrentParticipants += spots
	event.UpdatedAt = now
	s.reservations = append(s.reservations, r)
	s.mu.Unlock()

	metrics.ReservationsCreated.Inc()

	s.persistEvents(ctx)
	s.persistReservations(ctx)
	return &r, nil
}

// CancelReservation cancels a reservation and returns its spots to the
// event, flooring the participant count at zero. Cancelling an already
// cancelled reservation is a no-op.
func (s *Store) CancelReservation(ctx context.Context, id string) (*Reservation, error) {
	now := time.Now()

	s.mu.Lock()
	var r *Reservation
	for i := range s.reservations {
		if s.reservations[i].ID == id {
			r = &s.reservations[i]
			break
		}
	}
	if r == nil {
		s.mu.Unlock()
		return nil, ErrReservationNotFound
	}
	if r.Status == ReservationCancelled {
		out := *r
		s.mu.Unlock()
		return &out, nil
	}

	r.Status = ReservationCancelled
	r.UpdatedAt = now

	if event := s.findEvent(r.EventID); event != nil {
		event.CurrentParticipants -= r.NumberOfSpots
		if event.CurrentParticipants < 0 {
			event.CurrentParticipants = 0
		}
		event.UpdatedAt = now
	}
	out := *r
	s.mu.Unlock()

	metrics.ReservationsCancelled.Inc()

	s.persistEvents(ctx)
	s.persistReservations(ctx)
	return &out, nil
}

// Reservation returns a copy of the reservation with the given ID.
func (s *Store) Reservation(id string) (*Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.reservations {
		if s.reservations[i].ID == id {
			out := s.reservations[i]
			return &out, nil
		}
	}
	return nil, ErrReservationNotFound
}

// Reservations returns all reservations.
func (s *Store) Reservations() []Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Reservation(nil), s.reservations...)
}

// CheckoutCart creates one reservation per cart entry, then clears the
// cart. There is no transaction: a failure part-way returns the
// reservations created so far together with the error, and the cart is
// left in place.
func (s *Store) CheckoutCart(ctx context.Context, paymentMethod string) ([]Reservation, error) {
	entries := s.Cart()
	if len(entries) == 0 {
		return nil, ErrEmptyCart
	}

	created := make([]Reservation, 0, len(entries))
	for _, entry := range entries {
		r, err := s.CreateReservation(ctx, entry.EventID, entry.Spots, paymentMethod)
		if err != nil {
			return created, fmt.Errorf("reserve %s: %w", entry.EventID, err)
		}
		created = append(created, *r)
	}

	s.ClearCart(ctx)
	return created, nil
}

// UserEvents returns the events the signed-in user provides.
func (s *Store) UserEvents() []Event {
	user, ok := s.currentUser()
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.ProviderID == user.ID {
			out = append(out, e)
		}
	}
	return out
}

// UserReservations returns the signed-in user's reservations.
func (s *Store) UserReservations() []Reservation {
	user, ok := s.currentUser()
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reservation
	for _, r := range s.reservations {
		if r.UserID == user.ID {
			out = append(out, r)
		}
	}
	return out
}

// UpcomingEvents returns active events whose phase at now is upcoming,
// sorted by date and time.
func (s *Store) UpcomingEvents(now time.Time) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Status != EventActive {
			continue
		}
		if EventPhase(e.Date, e.Time, now) != PhaseUpcoming {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// SetAutoConfirm toggles auto-confirmation of reservations for a
// provider.
func (s *Store) SetAutoConfirm(ctx context.Context, providerID string, v bool) {
	s.mu.Lock()
	if s.settings.AutoConfirm == nil {
		s.settings.AutoConfirm = make(map[string]bool)
	}
	s.settings.AutoConfirm[providerID] = v
	s.mu.Unlock()
	s.persistSettings(ctx)
}

// findEvent returns a pointer into the events slice. Caller holds a lock.
func (s *Store) findEvent(id string) *Event {
	for i := range s.events {
		if s.events[i].ID == id {
			return &s.events[i]
		}
	}
	return nil
}

func (s *Store) persistEvents(ctx context.Context) {
	s.mu.RLock()
	events := append([]Event(nil), s.events...)
	s.mu.RUnlock()
	s.persistKey(ctx, storage.KeyCalendarEvents, events)
}

func (s *Store) persistReservations(ctx context.Context) {
	s.mu.RLock()
	reservations := append([]Reservation(nil), s.reservations...)
	s.mu.RUnlock()
	s.persistKey(ctx, storage.KeyCalendarResvs, reservations)
}

func (s *Store) persistCart(ctx context.Context) {
	s.mu.RLock()
	cart := append([]CartEntry(nil), s.cart...)
	s.mu.RUnlock()
	s.persistKey(ctx, storage.KeyCalendarCart, cart)
}

func (s *Store) persistSettings(ctx context.Context) {
	s.mu.RLock()
	settings := Settings{}
	if s.settings.AutoConfirm != nil {
		settings.AutoConfirm = make(map[string]bool, len(s.settings.AutoConfirm))
		for k, v := range s.settings.AutoConfirm {
			settings.AutoConfirm[k] = v
		}
	}
	s.mu.RUnlock()
	s.persistKey(ctx, storage.KeyCalendarSettings, settings)
}

func (s *Store) persistKey(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal state", "key", key, "error", err)
		return
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		s.logger.Warn("Failed to persist state", "key", key, "error", err)
	}
}
