package httptransport

import (
	"net/http"
	"sync"
	"time"

	"github.com/DannyMyles/fitness-gateway/internal/platform/metrics"
	"github.com/DannyMyles/fitness-gateway/internal/requestcontext"
	"github.com/DannyMyles/fitness-gateway/internal/session"
	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
	"github.com/DannyMyles/fitness-gateway/pkg/tokenutil"
)

// idleTracker times out sessions that stop making requests. Each session ID
// gets an ActivityMonitor; a request touches it, absence of requests within
// the window marks the session revoked so the next request signs it out.
// Revoked markers only matter while the session cookie could still come
// back, so they are dropped after the retention period to bound the map.
type idleTracker struct {
	mu        sync.Mutex
	window    time.Duration
	retention time.Duration
	now       func() time.Time
	monitors  map[string]*tokenutil.ActivityMonitor
	revoked   map[string]time.Time
	metrics   *metrics.Metrics
}

func newIdleTracker(window, retention time.Duration, m *metrics.Metrics) *idleTracker {
	return &idleTracker{
		window:    window,
		retention: retention,
		now:       time.Now,
		monitors:  make(map[string]*tokenutil.ActivityMonitor),
		revoked:   make(map[string]time.Time),
		metrics:   m,
	}
}

// touch records activity for the session. Returns false when the session was
// already revoked by the idle timer.
func (t *idleTracker) touch(id string) bool {
	if t.window <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked()
	if _, gone := t.revoked[id]; gone {
		return false
	}
	if mon, ok := t.monitors[id]; ok {
		mon.Touch()
		return true
	}
	t.monitors[id] = tokenutil.NewActivityMonitor(t.window, func() {
		t.expire(id)
	})
	return true
}

func (t *idleTracker) expire(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.monitors, id)
	t.revoked[id] = t.now()
	if t.metrics != nil {
		t.metrics.IdleSignOuts.Inc()
	}
}

// purgeLocked drops revoked markers older than the retention period, the
// point where the session cookie has expired on its own. Callers hold mu.
func (t *idleTracker) purgeLocked() {
	if t.retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	for id, at := range t.revoked {
		if at.Before(cutoff) {
			delete(t.revoked, id)
		}
	}
}

// forget drops all state for the session, typically on logout.
func (t *idleTracker) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if mon, ok := t.monitors[id]; ok {
		mon.Stop()
		delete(t.monitors, id)
	}
	delete(t.revoked, id)
}

// withSession decodes the session cookie, applies the sliding renewal, and
// places the session plus a mutable token state into the request context.
// Invalid or missing cookies leave the request anonymous; handlers that need
// a session sit behind requireSession.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie := session.FromRequest(r)
		if cookie == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, renewed := h.sessions.ReadAndRenew(cookie)
		if sess == nil {
			h.cookies.Clear(w)
			next.ServeHTTP(w, r)
			return
		}

		if !h.idle.touch(sess.ID) {
			h.idle.forget(sess.ID)
			h.cookies.Clear(w)
			h.logger.Info("session signed out after inactivity", "session_id", sess.ID)
			next.ServeHTTP(w, r)
			return
		}

		signed := cookie
		if renewed != "" {
			signed = renewed
			if h.metrics != nil {
				h.metrics.SessionRenewals.Inc()
			}
		}

		state := requestcontext.NewTokenState(signed, sess.AccessToken, sess.RefreshToken)
		if renewed != "" {
			// A renewed cookie must reach the browser even when the
			// access token never changes during the request.
			state.SetAccessToken(sess.AccessToken)
		}

		ctx := requestcontext.WithSession(r.Context(), sess)
		ctx = requestcontext.WithTokenState(ctx, state)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession rejects anonymous requests before they reach the backend.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.Session(r.Context()) == nil {
			h.writeError(w, r, apierror.WithStatus(
				apierror.CodeUnauthorized,
				"No authentication token found. Please log in again.",
				http.StatusUnauthorized,
			))
			return
		}
		next.ServeHTTP(w, r)
	})
}
