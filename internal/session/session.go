// Package session mints and reads the signed session token that identifies a
// browser principal. The token is an HS256 JWT carrying the backend user's
// identity plus the backend-issued access token; it lives in an httpOnly
// cookie and is the single source of truth for "who is logged in".
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// Session is the decoded claim set for an authenticated principal.
type Session struct {
	ID          string
	Email       string
	Name        string
	Role        string
	AccessToken string
	// RefreshToken stays inside the signed httpOnly cookie and is only ever
	// read server-side by the refresh path.
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// HasToken reports whether the session carries a usable backend token. A
// session without one is still valid for public pages; protected calls will
// fail fast in the API client.
func (s *Session) HasToken() bool {
	return s != nil && s.AccessToken != ""
}

// Claims is the JWT claim layout for session tokens.
type Claims struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	jwt.RegisteredClaims
}

// Update describes a partial mutation applied to an existing valid session
// without re-authentication. Nil fields are left untouched.
type Update struct {
	Name        *string
	AccessToken *string
}

// Service issues and validates session tokens.
type Service struct {
	signingKey []byte
	maxAge     time.Duration
	renewAfter time.Duration
	now        func() time.Time
}

const (
	defaultMaxAge     = 24 * time.Hour
	defaultRenewAfter = 60 * time.Minute
)

// Option configures a Service.
type Option func(*Service)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(signingKey string, maxAge, renewAfter time.Duration, opts ...Option) *Service {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if renewAfter <= 0 {
		renewAfter = defaultRenewAfter
	}
	s := &Service{
		signingKey: []byte(signingKey),
		maxAge:     maxAge,
		renewAfter: renewAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a signed session token for the given principal.
func (s *Service) Issue(sess Session) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:        sess.Email,
		Name:         sess.Name,
		Role:         sess.Role,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", apierror.Wrap(err, apierror.CodeInternal, "could not sign session token")
	}
	return signed, nil
}

// Read decodes and validates a session token. A tampered, expired, or
// otherwise invalid token yields nil, indistinguishable from no session.
func (s *Service) Read(tokenString string) *Session {
	if tokenString == "" {
		return nil
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil
	}

	return &Session{
		ID:           claims.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
		Role:         claims.Role,
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		IssuedAt:     claims.IssuedAt.Time,
		ExpiresAt:    claims.ExpiresAt.Time,
	}
}

// ReadAndRenew reads a session and, when it was issued more than the renewal
// interval ago, silently reissues it with a fresh expiry. The returned string
// is the renewed token, empty when no renewal happened.
func (s *Service) ReadAndRenew(tokenString string) (*Session, string) {
	sess := s.Read(tokenString)
	if sess == nil {
		return nil, ""
	}
	if s.now().Sub(sess.IssuedAt) < s.renewAfter {
		return sess, ""
	}

	renewed, err := s.Issue(*sess)
	if err != nil {
		// A failed renewal never invalidates the still-valid session.
		return sess, ""
	}
	sess.IssuedAt = s.now()
	sess.ExpiresAt = s.now().Add(s.maxAge)
	return sess, renewed
}

// ErrInvalidSession is returned by Apply when the token being updated does not
// decode to a valid session.
var ErrInvalidSession = errors.New("invalid session token")

// Apply reissues an existing valid session with the given updates applied.
// Used after profile edits (name) and backend token refreshes (access token).
func (s *Service) Apply(tokenString string, upd Update) (string, *Session, error) {
	sess := s.Read(tokenString)
	if sess == nil {
		return "", nil, ErrInvalidSession
	}

	if upd.Name != nil {
		sess.Name = *upd.Name
	}
	if upd.AccessToken != nil {
		sess.AccessToken = *upd.AccessToken
	}

	signed, err := s.Issue(*sess)
	if err != nil {
		return "", nil, err
	}
	return signed, sess, nil
}
