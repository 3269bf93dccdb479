package database

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/blake2b"
)

type scopeKey struct{}

// Scope is one unit of work. It caches a Session per credential pair so
// every call inside the unit shares connections and batch state.
type Scope struct {
	m        *Manager
	mu       sync.Mutex
	sessions map[[blake2b.Size256]byte]*Session
	closed   bool
}

// Scope binds a new Scope into ctx. Close it when the unit of work ends.
func (m *Manager) Scope(ctx context.Context) (context.Context, *Scope) {
	sc := &Scope{m: m, sessions: make(map[[blake2b.Size256]byte]*Session)}
	return context.WithValue(ctx, scopeKey{}, sc), sc
}

// ScopeFrom returns the scope bound to ctx.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(*Scope)
	return sc, ok
}

func credentialKey(c Credentials) [blake2b.Size256]byte {
	buf := make([]byte, 0, len(c.User)+len(c.Password)+1)
	buf = append(buf, c.User...)
	buf = append(buf, 0)
	buf = append(buf, c.Password...)
	return blake2b.Sum256(buf)
}

// Default returns the session for the manager's configured credentials.
func (sc *Scope) Default() *Session {
	return sc.Session(sc.m.defaultCredentials(), false)
}

// Session returns the cached session for creds, creating it on first use.
// With reopen set the cached session is closed and replaced.
func (sc *Scope) Session(creds Credentials, reopen bool) *Session {
	key := credentialKey(creds)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if s, ok := sc.sessions[key]; ok && !s.closed {
		if !reopen {
			return s
		}
		if err := s.Close(context.Background()); err != nil {
			sc.m.log.Warn("failed to close replaced session",
				"session", s.id,
				"error", err)
		}
	}
	s := newSession(sc.m, creds)
	if !sc.closed {
		sc.sessions[key] = s
	}
	return s
}

// Close closes every cached session, including unended batches.
func (sc *Scope) Close(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var errs []error
	for key, s := range sc.sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(sc.sessions, key)
	}
	sc.closed = true
	return errors.Join(errs...)
}
