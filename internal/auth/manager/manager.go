// Package manager bridges the session mechanism into a reactive value that
// callers can read without awaiting a fetch on every use. A single internal
// refresh funnel is fed by a background poll and by explicit sign-in,
// sign-out, and session-updated triggers; monotonic sequence numbers make the
// latest resolution win so a stale poll can never clobber a newer event.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DannyMyles/fitness-gateway/internal/auth/provider"
)

// State is the lifecycle of the managed session view.
type State int32

const (
	// StateInitializing holds until the first session fetch resolves, so
	// consumers never flash "logged out" before the truth is known.
	StateInitializing State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// User is the view model consumers read. It is re-derived from the session on
// every refresh, never mutated in place.
type User struct {
	ID          string
	Name        string
	Email       string
	Image       string
	Role        string
	AccessToken string
}

// Snapshot is what subscribers receive on every state change.
type Snapshot struct {
	State State
	User  *User
}

// Store abstracts the session mechanism the manager sits on. Fetch returns
// nil with no error when there is no session.
type Store interface {
	Fetch(ctx context.Context) (*User, error)
	Establish(ctx context.Context, user User, refreshToken string) error
	Clear(ctx context.Context) error
}

// CredentialExchanger performs the backend credential exchange. Satisfied by
// *provider.Provider.
type CredentialExchanger interface {
	Login(ctx context.Context, email, password string) (*provider.Result, error)
}

// RefreshFunc exchanges a refresh token for a new access token. Satisfied by
// (*provider.Provider).Refresh.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, error)

// LoginResult is returned by Login; the method itself never fails with a Go
// error, callers branch on Success.
type LoginResult struct {
	Success bool
	Error   string
}

const defaultPollInterval = 5 * time.Second

var errNoRefresh = errors.New("no refresh exchange configured")

// Manager owns the reactive session view. Construct one per application
// lifetime and call Start before use.
type Manager struct {
	store        Store
	exchanger    CredentialExchanger
	refreshFn    RefreshFunc
	pollInterval time.Duration
	logger       *slog.Logger

	mu           sync.RWMutex
	state        State
	user         *User
	refreshToken string
	lastApplied  uint64
	subs         map[int]chan Snapshot
	nextSub      int

	seq       atomic.Uint64
	triggers  chan string
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the background poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.pollInterval = d
	}
}

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRefreshFunc wires the token refresh exchange.
func WithRefreshFunc(fn RefreshFunc) Option {
	return func(m *Manager) {
		m.refreshFn = fn
	}
}

func New(store Store, exchanger CredentialExchanger, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		exchanger:    exchanger,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
		state:        StateInitializing,
		subs:         make(map[int]chan Snapshot),
		triggers:     make(chan string, 8),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start performs the initial session resolution and launches the poll loop.
func (m *Manager) Start(ctx context.Context) {
	m.refreshSession(ctx, "initial")
	go m.run(ctx)
}

// Close stops the poll loop and closes all subscriber channels.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		defer m.mu.Unlock()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
	})
}

func (m *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case reason := <-m.triggers:
			m.refreshSession(ctx, reason)
		case <-ticker.C:
			// Serve any pending trigger first so the poll cannot starve
			// event-driven refreshes.
			select {
			case reason := <-m.triggers:
				m.refreshSession(ctx, reason)
			default:
			}
			m.refreshSession(ctx, "poll")
		}
	}
}

// fire queues an event-driven refresh; dropped when the queue is full because
// a refresh is already pending.
func (m *Manager) fire(reason string) {
	select {
	case m.triggers <- reason:
	default:
	}
}

// refreshSession is the single funnel every trigger source goes through. The
// sequence number taken before the fetch makes the latest resolution win.
func (m *Manager) refreshSession(ctx context.Context, reason string) {
	seq := m.seq.Add(1)

	user, err := m.store.Fetch(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "session fetch failed", "reason", reason, "error", err)
		user = nil
	}

	m.mu.Lock()
	if seq < m.lastApplied {
		// An older fetch resolved after a newer one; discard it.
		m.mu.Unlock()
		return
	}
	m.lastApplied = seq

	prevState, prevUser := m.state, m.user
	if user != nil {
		m.state = StateAuthenticated
		m.user = user
	} else {
		m.state = StateUnauthenticated
		m.user = nil
		m.refreshToken = ""
	}
	changed := prevState != m.state || !sameUser(prevUser, m.user)
	snap := Snapshot{State: m.state, User: m.user}
	m.mu.Unlock()

	if changed {
		m.notify(snap)
	}
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Manager) notify(snap Snapshot) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Login delegates to the credential provider and establishes the session on
// success. It never returns a Go error; callers branch on the result.
func (m *Manager) Login(ctx context.Context, email, password string) LoginResult {
	res, err := m.exchanger.Login(ctx, email, password)
	if err != nil {
		m.logger.InfoContext(ctx, "login rejected", "error", err)
		return LoginResult{Success: false, Error: err.Error()}
	}

	user := User{
		ID:          res.User.ID,
		Name:        res.User.Name,
		Email:       res.User.Email,
		Role:        res.User.Role,
		AccessToken: res.Token,
	}
	if err := m.store.Establish(ctx, user, res.RefreshToken); err != nil {
		m.logger.ErrorContext(ctx, "could not establish session", "error", err)
		return LoginResult{Success: false, Error: "Could not establish session"}
	}

	m.mu.Lock()
	m.refreshToken = res.RefreshToken
	m.mu.Unlock()

	m.refreshSession(ctx, "signin")
	m.fire("signin")
	return LoginResult{Success: true}
}

// Logout clears the session. The state flips immediately rather than waiting
// for the next poll.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "session clear failed", "error", err)
	}

	m.mu.Lock()
	m.state = StateUnauthenticated
	m.user = nil
	m.refreshToken = ""
	m.lastApplied = m.seq.Add(1)
	snap := Snapshot{State: m.state}
	m.mu.Unlock()

	m.notify(snap)
	m.fire("signout")
}

// RefreshUser forces an immediate re-fetch, used after a profile mutation.
func (m *Manager) RefreshUser(ctx context.Context) {
	m.refreshSession(ctx, "session-updated")
	m.fire("session-updated")
}

// GetAccessToken returns the token from the in-memory user when present, else
// performs one fresh session fetch as a fallback. Empty when neither yields a
// token; it never fails.
func (m *Manager) GetAccessToken(ctx context.Context) string {
	m.mu.RLock()
	if m.user != nil && m.user.AccessToken != "" {
		token := m.user.AccessToken
		m.mu.RUnlock()
		return token
	}
	m.mu.RUnlock()

	user, err := m.store.Fetch(ctx)
	if err != nil || user == nil {
		return ""
	}
	return user.AccessToken
}

// Token implements the API client's TokenSource.
func (m *Manager) Token(ctx context.Context) (string, error) {
	return m.GetAccessToken(ctx), nil
}

// Refresh implements the API client's Refresher: it exchanges the stored
// refresh token, re-establishes the session with the new access token, and
// fires a session-updated event.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	refreshToken := m.refreshToken
	user := m.user
	m.mu.RUnlock()

	if m.refreshFn == nil {
		return "", errNoRefresh
	}

	token, err := m.refreshFn(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	if user != nil {
		updated := *user
		updated.AccessToken = token
		if err := m.store.Establish(ctx, updated, refreshToken); err != nil {
			m.logger.WarnContext(ctx, "could not persist refreshed token", "error", err)
		}
	}
	m.RefreshUser(ctx)
	return token, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Loading reports whether the first session resolution is still pending.
func (m *Manager) Loading() bool {
	return m.State() == StateInitializing
}

// CurrentUser returns the current user view, nil when unauthenticated.
func (m *Manager) CurrentUser() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Subscribe registers a listener for snapshots. The returned cancel func
// removes it.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, 4)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			close(sub)
			delete(m.subs, id)
		}
	}
}
