package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Server captures gateway-level configuration.
type Server struct {
	Addr              string
	BackendURL        string
	SessionSigningKey string
	SessionMaxAge     time.Duration
	SessionRenewAfter time.Duration
	IdleTimeout       time.Duration
	PollInterval      time.Duration
	SecureCookies     bool

	// ServiceEmail and ServicePassword are the gateway's own backend account.
	// When set, gateway-originated traffic authenticates as this account
	// instead of going out anonymously.
	ServiceEmail    string
	ServicePassword string
}

// Defaults mirror the browser-facing behaviour: sessions live at most a day,
// are silently renewed every hour of activity, and idle users are signed out
// after fifteen minutes.
var (
	SessionMaxAge     = 24 * time.Hour
	SessionRenewAfter = 60 * time.Minute
	IdleTimeout       = 15 * time.Minute
	PollInterval      = 5 * time.Second
)

// FromEnv builds a Server config from environment variables so main stays lean.
// A local .env file is loaded first when present.
func FromEnv() Server {
	_ = godotenv.Load()

	addr := os.Getenv("GATEWAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:5000"
	}

	signingKey := os.Getenv("SESSION_SIGNING_KEY")
	if signingKey == "" {
		// Use a default for development - should be overridden in production
		signingKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:              addr,
		BackendURL:        backendURL,
		SessionSigningKey: signingKey,
		SessionMaxAge:     durationFromEnv("SESSION_MAX_AGE", SessionMaxAge),
		SessionRenewAfter: durationFromEnv("SESSION_RENEW_AFTER", SessionRenewAfter),
		IdleTimeout:       durationFromEnv("IDLE_TIMEOUT", IdleTimeout),
		PollInterval:      durationFromEnv("SESSION_POLL_INTERVAL", PollInterval),
		SecureCookies:     os.Getenv("SECURE_COOKIES") == "true",
		ServiceEmail:      os.Getenv("SERVICE_ACCOUNT_EMAIL"),
		ServicePassword:   os.Getenv("SERVICE_ACCOUNT_PASSWORD"),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
