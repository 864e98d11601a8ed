package persistence

import (
	"context"
	"errors"
)

// ErrNoSession is returned when a session-scoped backend is used outside a session.
var ErrNoSession = errors.New("no session in context")

type sessionKey struct{}

// WithSession returns a context carrying the browser session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext extracts the session id set by WithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

// SessionBackend scopes every key to the session found in the context, so
// two browser tabs never see each other's data.
type SessionBackend struct {
	inner Backend
}

// NewSessionBackend decorates inner with per-session key namespacing.
func NewSessionBackend(inner Backend) *SessionBackend {
	return &SessionBackend{inner: inner}
}

func (s *SessionBackend) Name() string { return "session+" + s.inner.Name() }

func (s *SessionBackend) scoped(ctx context.Context, key string) (string, error) {
	id, ok := SessionFromContext(ctx)
	if !ok {
		return "", ErrNoSession
	}
	return "session:" + id + ":" + key, nil
}

func (s *SessionBackend) Get(ctx context.Context, key string) (string, bool, error) {
	k, err := s.scoped(ctx, key)
	if err != nil {
		return "", false, err
	}
	return s.inner.Get(ctx, k)
}

func (s *SessionBackend) Set(ctx context.Context, key, value string) error {
	k, err := s.scoped(ctx, key)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, k, value)
}

func (s *SessionBackend) Delete(ctx context.Context, key string) error {
	k, err := s.scoped(ctx, key)
	if err != nil {
		return err
	}
	return s.inner.Delete(ctx, k)
}

func (s *SessionBackend) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }
