package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/DannyMyles/fitness-gateway/internal/auth/manager"
	"github.com/DannyMyles/fitness-gateway/internal/auth/provider"
	"github.com/DannyMyles/fitness-gateway/internal/backend"
	"github.com/DannyMyles/fitness-gateway/internal/services/blog"
	"github.com/DannyMyles/fitness-gateway/internal/services/contact"
	"github.com/DannyMyles/fitness-gateway/internal/services/testimonial"
	"github.com/DannyMyles/fitness-gateway/internal/services/user"
	"github.com/DannyMyles/fitness-gateway/internal/session"
)

// HandlerSuite runs the full router against a stub backend, so every test
// exercises the same path a browser request takes.
type HandlerSuite struct {
	suite.Suite

	backend  *httptest.Server
	handlers map[string]http.HandlerFunc
	sessions *session.Service
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.handlers = map[string]http.HandlerFunc{}
	s.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		if fn, ok := s.handlers[key]; ok {
			fn(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.sessions = session.NewService("test-signing-key", 24*time.Hour, time.Hour)

	p := provider.New(s.backend.URL, provider.WithLogger(logger))
	api := backend.New(s.backend.URL,
		ContextTokenSource(nil),
		backend.WithRefresher(ContextRefresher(p, nil)),
		backend.WithLogger(logger),
	)

	h := NewHandler(
		p,
		s.sessions,
		session.CookieCodec{MaxAge: 24 * time.Hour},
		Services{
			Blogs:        blog.NewService(api),
			Testimonials: testimonial.NewService(api),
			Users:        user.NewService(api),
			Contacts:     contact.NewService(api),
		},
		0, // no idle timeout unless a test installs one
		logger,
		nil,
	)
	s.router = NewRouter(h, logger)
}

func (s *HandlerSuite) TearDownTest() {
	s.backend.Close()
}

func (s *HandlerSuite) stub(method, path string, fn http.HandlerFunc) {
	s.handlers[method+" "+path] = fn
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) jsonReq(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// sessionCookie issues a signed session and returns it as a request cookie.
func (s *HandlerSuite) sessionCookie(sess session.Session) *http.Cookie {
	signed, err := s.sessions.Issue(sess)
	s.Require().NoError(err)
	return &http.Cookie{Name: session.CookieName, Value: signed}
}

func setCookieValue(rec *httptest.ResponseRecorder, name string) (string, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func (s *HandlerSuite) TestLoginIssuesSessionCookie() {
	s.stub("POST", "/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{
				"id":    "u1",
				"email": "ana@example.com",
				"name":  "Ana",
				"role":  "admin",
				"token": "tok123",
			},
		})
	})

	rec := s.do(s.jsonReq("POST", "/login", map[string]string{
		"email":    "ana@example.com",
		"password": "secret",
	}))

	s.Equal(http.StatusOK, rec.Code)

	var body sessionResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("u1", body.User.ID)
	s.Equal("admin", body.User.Role)

	signed, ok := setCookieValue(rec, session.CookieName)
	s.Require().True(ok, "login must set the session cookie")
	sess := s.sessions.Read(signed)
	s.Require().NotNil(sess)
	s.Equal("tok123", sess.AccessToken)
}

func (s *HandlerSuite) TestLoginRejectedByBackend() {
	s.stub("POST", "/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
	})

	rec := s.do(s.jsonReq("POST", "/login", map[string]string{
		"email":    "ana@example.com",
		"password": "wrong",
	}))

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "Invalid credentials")
	s.Contains(rec.Body.String(), `"/login"`)
}

func (s *HandlerSuite) TestLoginValidation() {
	rec := s.do(s.jsonReq("POST", "/login", map[string]string{"email": "not-an-email"}))
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "Email and password are required")
}

func (s *HandlerSuite) TestSessionEndpoint() {
	s.Run("anonymous", func() {
		rec := s.do(httptest.NewRequest("GET", "/session", nil))
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"user":null}`, rec.Body.String())
	})

	s.Run("authenticated", func() {
		req := httptest.NewRequest("GET", "/session", nil)
		req.AddCookie(s.sessionCookie(session.Session{
			ID: "u1", Email: "ana@example.com", Name: "Ana", Role: "user", AccessToken: "tok123",
		}))
		rec := s.do(req)

		s.Equal(http.StatusOK, rec.Code)
		var body sessionResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal("Ana", body.User.Name)
		s.NotContains(rec.Body.String(), "tok123", "tokens must not leak to the client")
	})
}

func (s *HandlerSuite) TestLogoutClearsCookie() {
	req := httptest.NewRequest("POST", "/logout", nil)
	req.AddCookie(s.sessionCookie(session.Session{ID: "u1", Email: "a@b.com"}))
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	s.Require().NotEmpty(cookies)
	s.Equal(session.CookieName, cookies[0].Name)
	s.Empty(cookies[0].Value)
	s.Negative(cookies[0].MaxAge)
}

func (s *HandlerSuite) TestProtectedRouteRequiresSession() {
	rec := s.do(httptest.NewRequest("GET", "/api/v1/users", nil))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "No authentication token found")
	s.Contains(rec.Body.String(), `"redirect":"/login"`)
}

func (s *HandlerSuite) TestPublicBlogListNeedsNoSession() {
	s.stub("GET", "/api/v1/blogs", func(w http.ResponseWriter, r *http.Request) {
		s.Empty(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]map[string]any{{"_id": "b1", "title": "First"}})
	})

	rec := s.do(httptest.NewRequest("GET", "/api/v1/blogs", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "First")
}

func (s *HandlerSuite) TestProtectedCallCarriesBearerToken() {
	s.stub("GET", "/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("Bearer tok123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]map[string]any{{"_id": "u1", "name": "Ana"}})
	})

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.AddCookie(s.sessionCookie(session.Session{ID: "u1", Email: "a@b.com", AccessToken: "tok123"}))
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Ana")
}

func (s *HandlerSuite) TestExpiredTokenRefreshedAndCookieReissued() {
	calls := 0
	s.stub("GET", "/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"_id": "u1"}})
	})
	s.stub("POST", "/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		s.Equal("rt-1", body["refreshToken"])
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "fresh"})
	})

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.AddCookie(s.sessionCookie(session.Session{
		ID: "u1", Email: "a@b.com", AccessToken: "stale", RefreshToken: "rt-1",
	}))
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(2, calls, "one rejected attempt, one retry")

	signed, ok := setCookieValue(rec, session.CookieName)
	s.Require().True(ok, "refreshed token must reach the browser")
	sess := s.sessions.Read(signed)
	s.Require().NotNil(sess)
	s.Equal("fresh", sess.AccessToken)
}

func (s *HandlerSuite) TestFailedRefreshSignsOut() {
	s.stub("GET", "/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	s.stub("POST", "/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.AddCookie(s.sessionCookie(session.Session{
		ID: "u1", Email: "a@b.com", AccessToken: "stale", RefreshToken: "rt-1",
	}))
	rec := s.do(req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "Session expired")

	value, ok := setCookieValue(rec, session.CookieName)
	s.Require().True(ok)
	s.Empty(value, "cookie must be cleared")
}

func (s *HandlerSuite) TestProfileUpdatePropagatesNameIntoSession() {
	s.stub("PUT", "/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"_id": "u1", "name": "New Name", "email": "a@b.com"})
	})

	req := s.jsonReq("PUT", "/api/v1/users/me", map[string]string{"name": "New Name"})
	req.AddCookie(s.sessionCookie(session.Session{
		ID: "u1", Email: "a@b.com", Name: "Old Name", AccessToken: "tok123",
	}))
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)

	signed, ok := setCookieValue(rec, session.CookieName)
	s.Require().True(ok)
	sess := s.sessions.Read(signed)
	s.Require().NotNil(sess)
	s.Equal("New Name", sess.Name)
	s.Equal("tok123", sess.AccessToken)
}

func (s *HandlerSuite) TestContactValidationShortCircuits() {
	// No stub installed: a network call would 404 and fail the test.
	rec := s.do(s.jsonReq("POST", "/api/v1/contacts", map[string]string{"name": "Ana"}))
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "Please fill in your name")
}

func (s *HandlerSuite) TestInvalidCookieTreatedAsAnonymous() {
	req := httptest.NewRequest("GET", "/session", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "garbage"})
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"user":null}`, rec.Body.String())

	value, ok := setCookieValue(rec, session.CookieName)
	s.Require().True(ok)
	s.Empty(value)
}

func (s *HandlerSuite) TestBlogMultipartUploadForwarded() {
	s.stub("POST", "/api/v1/blogs", func(w http.ResponseWriter, r *http.Request) {
		s.Require().NoError(r.ParseMultipartForm(1 << 20))
		s.Equal("Post Title", r.FormValue("title"))
		file, header, err := r.FormFile("image")
		s.Require().NoError(err)
		defer file.Close()
		s.Equal("cover.png", header.Filename)
		data, _ := io.ReadAll(file)
		s.Equal("fake-image-bytes", string(data))
		json.NewEncoder(w).Encode(map[string]any{"_id": "b1", "title": "Post Title"})
	})

	var buf bytes.Buffer
	mw := newMultipartBody(&buf, map[string]string{
		"title":     "Post Title",
		"content":   "Body",
		"category":  "training",
		"published": "true",
	}, "image", "cover.png", "fake-image-bytes")

	req := httptest.NewRequest("POST", "/api/v1/blogs", &buf)
	req.Header.Set("Content-Type", mw)
	req.AddCookie(s.sessionCookie(session.Session{ID: "u1", Email: "a@b.com", AccessToken: "tok123"}))
	rec := s.do(req)

	s.Equal(http.StatusCreated, rec.Code)
	s.Contains(rec.Body.String(), "Post Title")
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.do(httptest.NewRequest("GET", "/healthz", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "ok")
}

// TestServiceAccountBacksAnonymousTraffic wires the composed stack the way
// the binary does when a service account is configured: the session manager
// owns the gateway's own backend session, and calls without a browser
// session fall back to its token.
func TestServiceAccountBacksAnonymousTraffic(t *testing.T) {
	var blogAuth string
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			json.NewEncoder(w).Encode(map[string]any{
				"user": map[string]any{
					"id": "svc", "email": "gateway@example.com", "token": "svc-tok",
				},
			})
		case "/api/v1/blogs":
			blogAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode([]map[string]any{{"_id": "b1", "title": "First"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer stub.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewService("test-signing-key", 24*time.Hour, time.Hour)
	p := provider.New(stub.URL, provider.WithLogger(logger))

	svc := manager.New(
		manager.NewSessionTokenStore(sessions),
		p,
		manager.WithLogger(logger),
		manager.WithRefreshFunc(p.Refresh),
	)
	svc.Start(context.Background())
	defer svc.Close()
	if res := svc.Login(context.Background(), "gateway@example.com", "svc-secret"); !res.Success {
		t.Fatalf("service login failed: %s", res.Error)
	}

	api := backend.New(stub.URL,
		ContextTokenSource(backend.TokenSourceFunc(svc.Token)),
		backend.WithRefresher(ContextRefresher(p, backend.RefresherFunc(svc.Refresh))),
		backend.WithLogger(logger),
	)
	h := NewHandler(p, sessions, session.CookieCodec{MaxAge: 24 * time.Hour},
		Services{
			Blogs:        blog.NewService(api),
			Testimonials: testimonial.NewService(api),
			Users:        user.NewService(api),
			Contacts:     contact.NewService(api),
		}, 0, logger, nil)
	router := NewRouter(h, logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/blogs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if blogAuth != "Bearer svc-tok" {
		t.Fatalf("anonymous proxy call must carry the service token, got %q", blogAuth)
	}
}

func TestIdleTrackerRevokesAfterWindow(t *testing.T) {
	tracker := newIdleTracker(50*time.Millisecond, time.Hour, nil)

	if !tracker.touch("s1") {
		t.Fatal("first touch must succeed")
	}
	time.Sleep(120 * time.Millisecond)
	if tracker.touch("s1") {
		t.Fatal("session should be revoked after the idle window")
	}

	// forget clears the revocation, a later login starts fresh
	tracker.forget("s1")
	if !tracker.touch("s1") {
		t.Fatal("touch after forget must succeed")
	}
}

func TestIdleTrackerActivityKeepsSessionAlive(t *testing.T) {
	tracker := newIdleTracker(80*time.Millisecond, time.Hour, nil)
	tracker.touch("s1")
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		if !tracker.touch("s1") {
			t.Fatal("active session must not be revoked")
		}
	}
}

func TestIdleTrackerDropsStaleRevocations(t *testing.T) {
	tracker := newIdleTracker(time.Minute, time.Hour, nil)

	now := time.Now()
	tracker.now = func() time.Time { return now }

	tracker.expire("gone")
	tracker.expire("recent")
	if tracker.touch("gone") {
		t.Fatal("revoked session must stay revoked within retention")
	}

	// Past the retention period the marker is useless: the cookie itself has
	// expired, so the map entry must not outlive it.
	now = now.Add(2 * time.Hour)
	if !tracker.touch("recent") {
		t.Fatal("revocation must lapse once the session cookie has expired")
	}
	tracker.mu.Lock()
	remaining := len(tracker.revoked)
	tracker.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected stale revocations to be purged, %d left", remaining)
	}
}

// newMultipartBody writes a multipart form and returns its content type.
func newMultipartBody(buf *bytes.Buffer, fields map[string]string, fileField, fileName, fileBody string) string {
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, _ := mw.CreateFormFile(fileField, fileName)
	io.Copy(fw, strings.NewReader(fileBody))
	mw.Close()
	return mw.FormDataContentType()
}
