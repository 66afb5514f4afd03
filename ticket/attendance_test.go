package ticket

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubsincronica/clubd/storage"
)

func TestCheckIn(t *testing.T) {
	ctx := context.Background()
	m := NewAttendanceManager(storage.NewMemKV(), nil)

	r := confirmedReservation()
	tk, err := Generate(r, 0)
	require.NoError(t, err)

	t.Run("valid ticket checks in", func(t *testing.T) {
		scanned, err := m.CheckIn(ctx, r.EventID, []byte(tk.QRData), "front door")
		require.NoError(t, err)
		assert.True(t, scanned.Scanned)
		require.NotNil(t, scanned.ScannedAt)
		assert.Equal(t, "front door", scanned.ScannedLocation)
	})

	t.Run("summary reflects the check-in", func(t *testing.T) {
		summary, err := m.Summary(ctx, r.EventID)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Scanned)
		assert.Equal(t, 1, summary.Total)
		assert.InDelta(t, 1.0, summary.Rate, 1e-9)
		require.Len(t, summary.Attendees, 1)
		assert.Equal(t, tk.ID, summary.Attendees[0].TicketID)
	})

	t.Run("garbage payload", func(t *testing.T) {
		_, err := m.CheckIn(ctx, r.EventID, []byte("junk"), "")
		assert.ErrorIs(t, err, ErrInvalidTicket)
	})

	t.Run("wrong event", func(t *testing.T) {
		_, err := m.CheckIn(ctx, "evt-other", []byte(tk.QRData), "")
		assert.ErrorIs(t, err, ErrWrongEvent)
	})

	t.Run("payload already marked scanned", func(t *testing.T) {
		var p QRPayload
		require.NoError(t, json.Unmarshal([]byte(tk.QRData), &p))
		p.Scanned = true
		data, _ := json.Marshal(p)
		_, err := m.CheckIn(ctx, r.EventID, data, "")
		assert.ErrorIs(t, err, ErrAlreadyScanned)
	})

	// The original payload carries no scanned flag, so presenting it
	// again checks in again. The flag is payload-borne, not a ledger.
	t.Run("unmarked payload re-scans", func(t *testing.T) {
		_, err := m.CheckIn(ctx, r.EventID, []byte(tk.QRData), "side door")
		require.NoError(t, err)
		summary, _ := m.Summary(ctx, r.EventID)
		assert.Equal(t, 2, summary.Scanned)
	})
}

func TestSetExpected(t *testing.T) {
	ctx := context.Background()
	m := NewAttendanceManager(storage.NewMemKV(), nil)

	require.NoError(t, m.SetExpected(ctx, "evt-1", 10))

	r := confirmedReservation()
	r.EventID = "evt-1"
	tk, err := Generate(r, 0)
	require.NoError(t, err)

	_, err = m.CheckIn(ctx, "evt-1", []byte(tk.QRData), "")
	require.NoError(t, err)

	summary, err := m.Summary(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 1, summary.Scanned)
	assert.InDelta(t, 0.1, summary.Rate, 1e-9)
}

func TestSummaryForUnknownEvent(t *testing.T) {
	m := NewAttendanceManager(storage.NewMemKV(), nil)
	summary, err := m.Summary(context.Background(), "evt-none")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
	assert.Empty(t, summary.Attendees)
}

func TestAttendancePersists(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()

	r := confirmedReservation()
	tk, err := Generate(r, 0)
	require.NoError(t, err)

	first := NewAttendanceManager(kv, nil)
	_, err = first.CheckIn(ctx, r.EventID, []byte(tk.QRData), "door")
	require.NoError(t, err)

	second := NewAttendanceManager(kv, nil)
	summary, err := second.Summary(ctx, r.EventID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
}
