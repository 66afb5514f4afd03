package storage

import (
	"context"
	"testing"
)

func TestMemKV(t *testing.T) {
	ctx := context.Background()

	t.Run("Get on missing key returns ErrNotFound", func(t *testing.T) {
		kv := NewMemKV()
		_, err := kv.Get(ctx, "absent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Put then Get round-trips", func(t *testing.T) {
		kv := NewMemKV()
		if err := kv.Put(ctx, KeyFoodCart, []byte(`{"items":[]}`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := kv.Get(ctx, KeyFoodCart)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != `{"items":[]}` {
			t.Errorf("unexpected value: %s", got)
		}
	})

	t.Run("Put overwrites previous value", func(t *testing.T) {
		kv := NewMemKV()
		_ = kv.Put(ctx, "k", []byte("one"))
		_ = kv.Put(ctx, "k", []byte("two"))
		got, err := kv.Get(ctx, "k")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("expected two, got %s", got)
		}
	})

	t.Run("Delete removes key and is idempotent", func(t *testing.T) {
		kv := NewMemKV()
		_ = kv.Put(ctx, "k", []byte("v"))
		if err := kv.Delete(ctx, "k"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := kv.Get(ctx, "k"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := kv.Delete(ctx, "k"); err != nil {
			t.Errorf("second delete should not error, got %v", err)
		}
	})

	t.Run("Keys lists all keys sorted", func(t *testing.T) {
		kv := NewMemKV()
		_ = kv.Put(ctx, "b", []byte("2"))
		_ = kv.Put(ctx, "a", []byte("1"))
		keys, err := kv.Keys(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("unexpected keys: %v", keys)
		}
	})

	t.Run("Returned value is a copy", func(t *testing.T) {
		kv := NewMemKV()
		_ = kv.Put(ctx, "k", []byte("abc"))
		got, _ := kv.Get(ctx, "k")
		got[0] = 'x'
		again, _ := kv.Get(ctx, "k")
		if string(again) != "abc" {
			t.Errorf("stored value mutated through returned slice: %s", again)
		}
	})
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"food-cart", "food-cart"},
		{"calendar_events", "calendar_events"},
		{"attendance evt/1", "attendance_evt_1"},
		{"evt:123", "evt_123"},
	}
	for _, tc := range tests {
		if got := sanitizeKey(tc.in); got != tc.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAttendanceKey(t *testing.T) {
	if got := AttendanceKey("evt-1"); got != "attendance_evt-1" {
		t.Errorf("unexpected attendance key: %s", got)
	}
}
