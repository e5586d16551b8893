// Package httptransport is the thin HTTP layer of the gateway. Handlers
// delegate to the session service, the credential provider, and the feature
// services; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DannyMyles/fitness-gateway/internal/auth/provider"
	"github.com/DannyMyles/fitness-gateway/internal/platform/metrics"
	"github.com/DannyMyles/fitness-gateway/internal/platform/middleware"
	"github.com/DannyMyles/fitness-gateway/internal/services/blog"
	"github.com/DannyMyles/fitness-gateway/internal/services/contact"
	"github.com/DannyMyles/fitness-gateway/internal/services/testimonial"
	"github.com/DannyMyles/fitness-gateway/internal/services/user"
	"github.com/DannyMyles/fitness-gateway/internal/session"
)

// Services bundles the feature services the handlers fan out to.
type Services struct {
	Blogs        *blog.Service
	Testimonials *testimonial.Service
	Users        *user.Service
	Contacts     *contact.Service
}

// Handler is the HTTP layer. It owns cookie handling and error translation;
// everything else is delegated.
type Handler struct {
	provider *provider.Provider
	sessions *session.Service
	cookies  session.CookieCodec
	services Services
	idle     *idleTracker
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewHandler(
	p *provider.Provider,
	sessions *session.Service,
	cookies session.CookieCodec,
	services Services,
	idleWindow time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		provider: p,
		sessions: sessions,
		cookies:  cookies,
		services: services,
		idle:     newIdleTracker(idleWindow, cookies.MaxAge, m),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		metrics:  m,
	}
}

// NewRouter wires all endpoints with the middleware stack.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(h.withSession)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/blogs", h.handleBlogList)
		r.Get("/blogs/{id}", h.handleBlogGet)
		r.Get("/testimonials", h.handleTestimonialList)
		r.Post("/contacts", h.handleContactSubmit)

		// Everything below needs a session; the backend enforces roles.
		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Get("/users/me", h.handleProfile)
			r.Put("/users/me", h.handleProfileUpdate)

			r.Post("/blogs", h.handleBlogCreate)
			r.Put("/blogs/{id}", h.handleBlogUpdate)
			r.Delete("/blogs/{id}", h.handleBlogDelete)

			r.Post("/testimonials", h.handleTestimonialCreate)
			r.Put("/testimonials/{id}/approve", h.handleTestimonialApprove)
			r.Delete("/testimonials/{id}", h.handleTestimonialDelete)

			r.Get("/users", h.handleUserList)
			r.Put("/users/{id}", h.handleUserRole)
			r.Delete("/users/{id}", h.handleUserDelete)

			r.Get("/contacts", h.handleContactList)
			r.Delete("/contacts/{id}", h.handleContactDelete)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
