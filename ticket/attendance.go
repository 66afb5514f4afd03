package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clubsincronica/clubd/metrics"
	"github.com/clubsincronica/clubd/storage"
)

// Check-in errors.
var (
	// ErrInvalidTicket wraps a failed payload validation.
	ErrInvalidTicket = errors.New("invalid ticket")
	// ErrWrongEvent is returned for a ticket belonging to another event.
	ErrWrongEvent = errors.New("ticket is for a different event")
	// ErrAlreadyScanned is returned when the payload carries the scanned
	// flag. The flag lives in the payload, not in a server ledger, so a
	// holder who strips it can scan again; this mirrors the mobile
	// client and must not be treated as fraud protection.
	ErrAlreadyScanned = errors.New("ticket already scanned")
)

// AttendeeRecord is one check-in on an event.
type AttendeeRecord struct {
	TicketID  string    `json:"ticket_id"`
	Name      string    `json:"name"`
	ScannedAt time.Time `json:"scanned_at"`
	Location  string    `json:"location,omitempty"`
}

// Summary is the per-event attendance roll-up.
type Summary struct {
	EventID   string           `json:"event_id"`
	Total     int              `json:"total"`
	Scanned   int              `json:"scanned"`
	Rate      float64          `json:"rate"`
	Attendees []AttendeeRecord `json:"attendees,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// AttendanceManager checks tickets in at the door and keeps a per-event
// attendance summary in storage.
type AttendanceManager struct {
	kv     storage.KV
	logger *slog.Logger
	mu     sync.Mutex
}

// NewAttendanceManager creates an attendance manager over the given KV.
func NewAttendanceManager(kv storage.KV, logger *slog.Logger) *AttendanceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceManager{kv: kv, logger: logger}
}

// SetExpected records how many tickets are expected for the event, so
// the scan rate has a denominator before the first check-in.
func (m *AttendanceManager) SetExpected(ctx context.Context, eventID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary, err := m.loadSummary(ctx, eventID)
	if err != nil {
		return err
	}
	summary.Total = total
	m.recompute(summary)
	return m.saveSummary(ctx, summary)
}

// CheckIn validates the payload, rejects wrong-event and already-scanned
// tickets, marks the payload scanned, and updates the event's summary.
// The returned payload carries the scan timestamp and location.
func (m *AttendanceManager) CheckIn(ctx context.Context, eventID string, payload []byte, location string) (*QRPayload, error) {
	v := ValidateQR(payload)
	if !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTicket, v.Err)
	}
	t := v.Ticket
	if t.EventID != eventID {
		return nil, ErrWrongEvent
	}
	if t.Scanned {
		return nil, ErrAlreadyScanned
	}

	now := time.Now()
	t.Scanned = true
	t.ScannedAt = &now
	t.ScannedLocation = location

	m.mu.Lock()
	defer m.mu.Unlock()

	summary, err := m.loadSummary(ctx, eventID)
	if err != nil {
		return nil, err
	}
	summary.Scanned++
	summary.Attendees = append(summary.Attendees, AttendeeRecord{
		TicketID:  t.TicketID,
		Name:      t.AttendeeName,
		ScannedAt: now,
		Location:  location,
	})
	m.recompute(summary)
	if err := m.saveSummary(ctx, summary); err != nil {
		// Check-in already happened; the summary write is best-effort
		// like every other persistence path.
		m.logger.Warn("Failed to persist attendance summary", "event_id", eventID, "error", err)
	}

	metrics.CheckIns.Inc()
	return t, nil
}

// Summary returns the attendance summary for an event. An event with no
// check-ins yields an empty summary, not an error.
func (m *AttendanceManager) Summary(ctx context.Context, eventID string) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadSummary(ctx, eventID)
}

func (m *AttendanceManager) loadSummary(ctx context.Context, eventID string) (*Summary, error) {
	data, err := m.kv.Get(ctx, storage.AttendanceKey(eventID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &Summary{EventID: eventID}, nil
		}
		return nil, fmt.Errorf("load attendance for %s: %w", eventID, err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal attendance for %s: %w", eventID, err)
	}
	return &s, nil
}

// recompute keeps Total consistent with the scan count and refreshes the
// rate.
func (m *AttendanceManager) recompute(s *Summary) {
	if s.Scanned > s.Total {
		s.Total = s.Scanned
	}
	if s.Total > 0 {
		s.Rate = float64(s.Scanned) / float64(s.Total)
	} else {
		s.Rate = 0
	}
	s.UpdatedAt = time.Now()
}

func (m *AttendanceManager) saveSummary(ctx context.Context, s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal attendance for %s: %w", s.EventID, err)
	}
	return m.kv.Put(ctx, storage.AttendanceKey(s.EventID), data)
}
