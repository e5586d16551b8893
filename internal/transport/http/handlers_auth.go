package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/mssola/useragent"

	"github.com/DannyMyles/fitness-gateway/internal/requestcontext"
	"github.com/DannyMyles/fitness-gateway/internal/session"
	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	User      sessionUser `json:"user"`
	ExpiresAt int64       `json:"expiresAt"`
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// handleLogin exchanges credentials for a backend token and hands the browser
// a signed session cookie. The backend token itself never reaches the client.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apierror.New(apierror.CodeValidation, "Email and password are required"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, apierror.New(apierror.CodeValidation, "Email and password are required"))
		return
	}

	result, err := h.provider.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.LoginFailures.Inc()
		}
		h.writeError(w, r, err)
		return
	}

	sess := session.Session{
		ID:           result.User.ID,
		Email:        result.User.Email,
		Name:         result.User.Name,
		Role:         result.User.Role,
		AccessToken:  result.Token,
		RefreshToken: result.RefreshToken,
	}
	signed, err := h.sessions.Issue(sess)
	if err != nil {
		h.logger.Error("failed to issue session", "error", err)
		h.writeError(w, r, apierror.New(apierror.CodeInternal, "Internal server error"))
		return
	}

	h.cookies.Set(w, signed)
	h.idle.touch(sess.ID)
	if h.metrics != nil {
		h.metrics.Logins.Inc()
		h.metrics.ActiveSessions.Inc()
	}
	h.logger.Info("user logged in",
		"user_id", result.User.ID,
		"role", result.User.Role,
		"device", deviceName(r.UserAgent()),
	)

	issued := h.sessions.Read(signed)
	h.respond(w, r, http.StatusOK, sessionResponse{
		User: sessionUser{
			ID:    sess.ID,
			Email: sess.Email,
			Name:  sess.Name,
			Role:  sess.Role,
		},
		ExpiresAt: issued.ExpiresAt.Unix(),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := requestcontext.Session(r.Context()); sess != nil {
		h.idle.forget(sess.ID)
		h.logger.Info("user logged out", "user_id", sess.ID)
		if h.metrics != nil {
			h.metrics.ActiveSessions.Dec()
		}
	}
	h.cookies.Clear(w)
	h.respond(w, r, http.StatusOK, map[string]bool{"success": true})
}

// handleSession mirrors the current session back to the client. Anonymous
// requests get an empty object rather than an error so the frontend can poll
// it cheaply.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := requestcontext.Session(r.Context())
	if sess == nil {
		h.respond(w, r, http.StatusOK, map[string]any{"user": nil})
		return
	}
	h.respond(w, r, http.StatusOK, sessionResponse{
		User: sessionUser{
			ID:    sess.ID,
			Email: sess.Email,
			Name:  sess.Name,
			Role:  sess.Role,
		},
		ExpiresAt: sess.ExpiresAt.Unix(),
	})
}

// deviceName condenses a User-Agent header for log lines.
func deviceName(raw string) string {
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	label := name
	if version != "" {
		label += " " + version
	}
	if os := ua.OS(); os != "" {
		label += " on " + os
	}
	return label
}
