package manager

import (
	"context"
	"sync"

	"github.com/DannyMyles/fitness-gateway/internal/session"
)

// SessionTokenStore is a Store backed by the signed session token service.
// It holds the current signed token in memory, which makes it the non-HTTP
// equivalent of the browser cookie: every Fetch re-derives the user from the
// token rather than trusting accumulated local state.
type SessionTokenStore struct {
	svc *session.Service

	mu           sync.Mutex
	signed       string
	refreshToken string
}

func NewSessionTokenStore(svc *session.Service) *SessionTokenStore {
	return &SessionTokenStore{svc: svc}
}

// Fetch decodes the held token, applying sliding renewal as a request through
// the cookie path would.
func (s *SessionTokenStore) Fetch(ctx context.Context) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signed == "" {
		return nil, nil
	}
	sess, renewed := s.svc.ReadAndRenew(s.signed)
	if sess == nil {
		// Expired or tampered counts the same as no session.
		s.signed = ""
		s.refreshToken = ""
		return nil, nil
	}
	if renewed != "" {
		s.signed = renewed
	}

	return &User{
		ID:          sess.ID,
		Name:        sess.Name,
		Email:       sess.Email,
		Role:        sess.Role,
		AccessToken: sess.AccessToken,
	}, nil
}

// Establish mints a fresh session token for the given user.
func (s *SessionTokenStore) Establish(ctx context.Context, user User, refreshToken string) error {
	signed, err := s.svc.Issue(session.Session{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		AccessToken: user.AccessToken,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.signed = signed
	s.refreshToken = refreshToken
	s.mu.Unlock()
	return nil
}

// Clear drops the session token.
func (s *SessionTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.signed = ""
	s.refreshToken = ""
	s.mu.Unlock()
	return nil
}
