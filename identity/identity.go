// Package identity holds the signed-in user and is the single source of
// identity for the other stores. Consumers receive it as a read-only
// Provider; only the auth flow mutates it.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clubsincronica/clubd/storage"
)

// Common identity errors.
var (
	// ErrNotAuthenticated is returned by operations that require a
	// signed-in user.
	ErrNotAuthenticated = errors.New("no user signed in")
)

// Role distinguishes member, vendor and admin accounts.
type Role string

const (
	RoleMember Role = "member"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

// PaymentMethod is a stored payment instrument reference. Only the
// display fields live client-side; the token resolves server-side.
type PaymentMethod struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"` // card, cash, transfer
	Label string `json:"label"`
	Last4 string `json:"last4,omitempty"`
}

// User is the signed-in account.
type User struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Role           Role              `json:"role"`
	PaymentMethods []PaymentMethod   `json:"payment_methods,omitempty"`
	Preferences    map[string]string `json:"preferences,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// clone deep-copies the user. Values handed out of the store (and fed
// to the persist path after the lock is released) must not share
// backing storage with the store's own copy.
func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PaymentMethods = append([]PaymentMethod(nil), u.PaymentMethods...)
	if u.Preferences != nil {
		out.Preferences = make(map[string]string, len(u.Preferences))
		for k, v := range u.Preferences {
			out.Preferences[k] = v
		}
	}
	return &out
}

// ProfilePatch carries the mutable profile fields. Nil fields are left
// unchanged.
type ProfilePatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// Provider is the read-only view of the identity store that the other
// stores depend on.
type Provider interface {
	// Current returns the signed-in user, or false when signed out.
	Current() (*User, bool)
}

// Store holds the current user, persisted under the current-user key.
// Mutations update memory first; persistence failures are logged and do
// not roll the in-memory state back.
type Store struct {
	kv     storage.KV
	logger *slog.Logger

	mu   sync.RWMutex
	user *User
}

// NewStore creates an identity store over the given KV.
func NewStore(kv storage.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load restores the persisted user, if any.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.kv.Get(ctx, storage.KeyCurrentUser)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load current user: %w", err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("unmarshal current user: %w", err)
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return nil
}

// SignIn sets the current user. A missing ID is assigned.
func (s *Store) SignIn(ctx context.Context, u User) (*User, error) {
	now := time.Now()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	s.persist(ctx)
	return &u, nil
}

// SignOut clears the current user.
func (s *Store) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, storage.KeyCurrentUser); err != nil {
		s.logger.Warn("Failed to clear persisted user", "error", err)
	}
}

// Current returns a copy of the signed-in user, or false when signed out.
func (s *Store) Current() (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	return s.user.clone(), true
}

// UpdateProfile applies the patch to the signed-in user.
func (s *Store) UpdateProfile(ctx context.Context, patch ProfilePatch) (*User, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if patch.Name != nil {
		s.user.Name = *patch.Name
	}
	if patch.Email != nil {
		s.user.Email = *patch.Email
	}
	s.user.UpdatedAt = time.Now()
	u := s.user.clone()
	s.mu.Unlock()

	s.persist(ctx)
	return u, nil
}

// AddPaymentMethod appends a payment method to the signed-in user.
func (s *Store) AddPaymentMethod(ctx context.Context, pm PaymentMethod) (*PaymentMethod, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if pm.ID == "" {
		pm.ID = uuid.New().String()
	}
	s.user.PaymentMethods = append(s.user.PaymentMethods, pm)
	s.user.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.persist(ctx)
	return &pm, nil
}

// RemovePaymentMethod removes the payment method with the given ID.
// Removing an unknown ID is not an error.
func (s *Store) RemovePaymentMethod(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	methods := s.user.PaymentMethods[:0]
	for _, pm := range s.user.PaymentMethods {
		if pm.ID != id {
			methods = append(methods, pm)
		}
	}
	s.user.PaymentMethods = methods
	s.user.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// SetPreference stores a user preference key.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if s.user.Preferences == nil {
		s.user.Preferences = make(map[string]string)
	}
	s.user.Preferences[key] = value
	s.user.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	u := s.user.clone()
	s.mu.RUnlock()
	if u == nil {
		return
	}

	data, err := json.Marshal(u)
	if err != nil {
		s.logger.Error("Failed to marshal current user", "error", err)
		return
	}
	if err := s.kv.Put(ctx, storage.KeyCurrentUser, data); err != nil {
		s.logger.Warn("Failed to persist current user", "error", err)
	}
}
