// Package session holds the client-side authentication session: a bearer
// token and the signed-in user, persisted as one record so both halves are
// always written together.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"heritagecoffee/pkg/domain"
	"heritagecoffee/pkg/kvstore"
)

const (
	// Key is the persisted key of the combined session record.
	Key = "auth_session"
	// LegacyTokenKey and LegacyUserKey are the split keys written by older
	// clients. They are migrated into Key on open.
	LegacyTokenKey = "auth_token"
	LegacyUserKey  = "auth_user"
)

// Record is the persisted session. The zero value is the signed-out state.
type Record struct {
	Token string       `json:"token,omitempty"`
	User  *domain.User `json:"user,omitempty"`
}

// IsAuthenticated reports whether a token is present.
func (r Record) IsAuthenticated() bool {
	return r.Token != ""
}

// UserID returns the user id, or 0 without a user.
func (r Record) UserID() int64 {
	if r.User == nil {
		return 0
	}
	return r.User.ID
}

// SameIdentity reports whether r and other designate the same signed-in
// principal. Profile edits keep the identity.
func (r Record) SameIdentity(other Record) bool {
	return r.Token == other.Token && r.UserID() == other.UserID()
}

func (r Record) clone() Record {
	if r.User != nil {
		u := *r.User
		r.User = &u
	}
	return r
}

// Listener receives the record before and after a change.
type Listener func(prev, next Record)

// Store is the session root of trust. Its operations never fail: storage
// errors are logged by the underlying value and the in-memory state wins.
type Store struct {
	value  *kvstore.Value[Record]
	logger *slog.Logger

	mu        sync.Mutex
	current   Record
	listeners map[int]Listener
	nextID    int
	unwatch   func()
}

// Open loads the persisted session from backend, migrating legacy keys.
func Open(ctx context.Context, backend kvstore.Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	migrateLegacy(ctx, backend, logger)
	s := &Store{
		value:     kvstore.Open(ctx, backend, Key, Record{}, logger),
		logger:    logger,
		listeners: make(map[int]Listener),
	}
	s.current = s.value.Get()
	s.unwatch = s.value.OnChange(s.applyExternal)
	return s
}

// Login stores token and user, replacing any previous session.
func (s *Store) Login(ctx context.Context, token string, user domain.User) {
	s.replace(ctx, Record{Token: token, User: &user})
}

// Logout clears the session.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	prev := s.current
	s.current = Record{}
	s.mu.Unlock()
	s.value.Reset(ctx)
	s.notify(prev, Record{})
}

// UpdateUser replaces the stored user, keeping the token.
func (s *Store) UpdateUser(ctx context.Context, user domain.User) {
	s.mu.Lock()
	next := Record{Token: s.current.Token, User: &user}
	s.mu.Unlock()
	s.replace(ctx, next)
}

func (s *Store) replace(ctx context.Context, next Record) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()
	s.value.Set(ctx, next)
	s.notify(prev, next)
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Token returns the current token, empty when signed out.
func (s *Store) Token() string {
	return s.Snapshot().Token
}

// User returns a copy of the current user, or nil.
func (s *Store) User() *domain.User {
	return s.Snapshot().User
}

// PersistedToken reads the token from storage rather than memory, so a
// login or logout made by another process is honoured by the next request.
func (s *Store) PersistedToken(ctx context.Context) (string, bool) {
	rec, ok := s.value.Load(ctx)
	if !ok || rec.Token == "" {
		return "", false
	}
	return rec.Token, true
}

// IsAuthenticated is derived from the token on every call.
func (s *Store) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

// Subscribe registers fn for local mutations and changes applied from
// other sessions sharing the backend.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close stops watching the backend.
func (s *Store) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
	s.value.Close()
}

func (s *Store) applyExternal(next Record) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()
	s.logger.Debug("session changed externally", "authenticated", next.IsAuthenticated())
	s.notify(prev, next)
}

func (s *Store) notify(prev, next Record) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(prev.clone(), next.clone())
	}
}

func migrateLegacy(ctx context.Context, backend kvstore.Backend, logger *slog.Logger) {
	if _, err := backend.Get(ctx, Key); err == nil || !errors.Is(err, kvstore.ErrNotFound) {
		return
	}
	rawToken, err := backend.Get(ctx, LegacyTokenKey)
	if err != nil {
		return
	}
	var rec Record
	if err := json.Unmarshal(rawToken, &rec.Token); err != nil || rec.Token == "" {
		logger.Warn("session: ignoring malformed legacy token", "err", err)
		return
	}
	if rawUser, err := backend.Get(ctx, LegacyUserKey); err == nil {
		var user domain.User
		if err := json.Unmarshal(rawUser, &user); err != nil {
			logger.Warn("session: ignoring malformed legacy user", "err", err)
		} else if string(rawUser) != "null" {
			rec.User = &user
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := backend.Set(ctx, Key, data); err != nil {
		logger.Error("session: legacy migration failed", "err", err)
		return
	}
	for _, key := range []string{LegacyTokenKey, LegacyUserKey} {
		if err := backend.Delete(ctx, key); err != nil {
			logger.Warn("session: remove legacy key failed", "key", key, "err", err)
		}
	}
	logger.Info("session: migrated legacy keys")
}
