// Package storage provides the key-value persistence layer for clubd
// state, backed by NATS JetStream KV.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// Fixed state keys. Every store serializes its state as a JSON blob
// under one of these keys.
const (
	KeyCurrentUser       = "current-user"
	KeyFoodCart          = "food-cart"
	KeyFoodOrders        = "food-orders"
	KeyFoodNotifications = "food-notifications"
	KeyCalendarEvents    = "calendar_events"
	KeyCalendarResvs     = "calendar_reservations"
	KeyCalendarCart      = "calendar_cart"
	KeyCalendarSettings  = "calendar_settings"
	KeyVendorMenu        = "vendor_menu"
)

// AttendanceKey returns the state key for an event's attendance summary.
func AttendanceKey(eventID string) string {
	return "attendance_" + sanitizeKey(eventID)
}

// DefaultBucket is the KV bucket holding all clubd state.
const DefaultBucket = "CLUB_STATE"

// KV is the persistent key-value capability the stores are built on.
// Implementations must tolerate concurrent use.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists all keys currently present.
	Keys(ctx context.Context) ([]string, error)
}

// NATSKV is a KV backed by a NATS JetStream key-value bucket.
type NATSKV struct {
	bucket jetstream.KeyValue
}

// NewNATSKV opens (or creates) the named bucket and returns a KV over it.
func NewNATSKV(ctx context.Context, js jetstream.JetStream, name string) (*NATSKV, error) {
	bucket, err := getOrCreateBucket(ctx, js, name)
	if err != nil {
		return nil, fmt.Errorf("create %s bucket: %w", name, err)
	}
	return &NATSKV{bucket: bucket}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Clubd %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Get returns the value stored under key.
func (n *NATSKV) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.bucket.Get(ctx, sanitizeKey(key))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Put stores value under key.
func (n *NATSKV) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.bucket.Put(ctx, sanitizeKey(key), value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key from the bucket.
func (n *NATSKV) Delete(ctx context.Context, key string) error {
	if err := n.bucket.Delete(ctx, sanitizeKey(key)); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists all keys in the bucket.
func (n *NATSKV) Keys(ctx context.Context) ([]string, error) {
	keys, err := n.bucket.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// sanitizeKey maps state keys onto the NATS KV key alphabet. The fixed
// keys above are already valid; entity-derived keys (attendance) may
// carry characters NATS rejects.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && (err == jetstream.ErrKeyNotFound || strings.Contains(err.Error(), "key not found"))
}
