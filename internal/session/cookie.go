package session

import (
	"net/http"
	"time"
)

// CookieName is the session cookie the gateway owns. Feature code must never
// read or write it directly; everything goes through this package.
const CookieName = "fitness_session"

// CookieCodec writes and clears the session cookie.
type CookieCodec struct {
	Secure bool
	MaxAge time.Duration
}

// Set writes the session token as an httpOnly cookie.
func (c CookieCodec) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (c CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest extracts the raw session token from the request cookie, empty
// when absent.
func FromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
