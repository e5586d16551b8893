// Command server runs the fitness gateway: the HTTP front door that owns
// sessions and proxies feature traffic to the backend API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DannyMyles/fitness-gateway/internal/auth/manager"
	"github.com/DannyMyles/fitness-gateway/internal/auth/provider"
	"github.com/DannyMyles/fitness-gateway/internal/backend"
	"github.com/DannyMyles/fitness-gateway/internal/platform/config"
	"github.com/DannyMyles/fitness-gateway/internal/platform/httpserver"
	"github.com/DannyMyles/fitness-gateway/internal/platform/logger"
	"github.com/DannyMyles/fitness-gateway/internal/platform/metrics"
	"github.com/DannyMyles/fitness-gateway/internal/services/blog"
	"github.com/DannyMyles/fitness-gateway/internal/services/contact"
	"github.com/DannyMyles/fitness-gateway/internal/services/testimonial"
	"github.com/DannyMyles/fitness-gateway/internal/services/user"
	"github.com/DannyMyles/fitness-gateway/internal/session"
	httptransport "github.com/DannyMyles/fitness-gateway/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	sessions := session.NewService(cfg.SessionSigningKey, cfg.SessionMaxAge, cfg.SessionRenewAfter)
	cookies := session.CookieCodec{Secure: cfg.SecureCookies, MaxAge: cfg.SessionMaxAge}

	authProvider := provider.New(cfg.BackendURL, provider.WithLogger(log))

	// The gateway keeps its own backend session when a service account is
	// configured. Calls without a browser session (warmup, scheduled work,
	// anonymous proxies) then authenticate as the gateway itself, with the
	// manager's poll loop keeping the token current.
	var serviceSession *manager.Manager
	if cfg.ServiceEmail != "" {
		serviceSession = manager.New(
			manager.NewSessionTokenStore(sessions),
			authProvider,
			manager.WithLogger(log),
			manager.WithPollInterval(cfg.PollInterval),
			manager.WithRefreshFunc(authProvider.Refresh),
		)
		serviceSession.Start(context.Background())
		defer serviceSession.Close()
		if res := serviceSession.Login(context.Background(), cfg.ServiceEmail, cfg.ServicePassword); !res.Success {
			log.Warn("service account login failed; gateway traffic stays anonymous", "error", res.Error)
		}
	}

	var fallbackTokens backend.TokenSource
	var fallbackRefresh backend.Refresher
	if serviceSession != nil {
		fallbackTokens = backend.TokenSourceFunc(serviceSession.Token)
		fallbackRefresh = backend.RefresherFunc(serviceSession.Refresh)
	}

	api := backend.New(cfg.BackendURL,
		httptransport.ContextTokenSource(fallbackTokens),
		backend.WithRefresher(httptransport.ContextRefresher(authProvider, fallbackRefresh)),
		backend.WithLogger(log),
		backend.WithMetrics(m),
	)

	services := httptransport.Services{
		Blogs:        blog.NewService(api),
		Testimonials: testimonial.NewService(api),
		Users:        user.NewService(api),
		Contacts:     contact.NewService(api),
	}

	handler := httptransport.NewHandler(
		authProvider, sessions, cookies, services, cfg.IdleTimeout, log, m,
	)
	router := httptransport.NewRouter(handler, log)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("gateway listening", "addr", cfg.Addr, "backend", cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	if err := httpserver.Shutdown(srv, 10*time.Second); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
