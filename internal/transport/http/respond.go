package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DannyMyles/fitness-gateway/internal/requestcontext"
	"github.com/DannyMyles/fitness-gateway/internal/session"
	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// respond writes a JSON body after flushing any pending session cookie
// change. A token refreshed mid-request or a renewed session lands in the
// browser here, so the next request carries the fresh credentials.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	h.flushSessionCookie(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) flushSessionCookie(w http.ResponseWriter, r *http.Request) {
	state := requestcontext.TokenStateFrom(r.Context())
	if state == nil {
		return
	}
	var upd session.Update
	if token, dirty := state.Updated(); dirty {
		upd.AccessToken = &token
	}
	if name, dirty := state.UpdatedName(); dirty {
		upd.Name = &name
	}
	if upd.AccessToken == nil && upd.Name == nil {
		return
	}
	signed, _, err := h.sessions.Apply(state.Signed(), upd)
	if err != nil {
		h.logger.Error("failed to re-issue session cookie", "error", err)
		return
	}
	h.cookies.Set(w, signed)
}

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Redirect string `json:"redirect,omitempty"`
}

// writeError translates an apierror into the gateway's error envelope. An
// unauthorized error means the session is no longer usable: the cookie is
// cleared and the client is told where to go.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		apiErr = &apierror.Error{Code: apierror.CodeInternal, Message: "Internal server error"}
	}

	body := errorBody{Error: apiErr.Error(), Code: string(apiErr.Code)}
	if apiErr.Code == apierror.CodeUnauthorized {
		if sess := requestcontext.Session(r.Context()); sess != nil {
			h.idle.forget(sess.ID)
			if h.metrics != nil {
				h.metrics.ForcedSignOuts.Inc()
			}
		}
		h.cookies.Clear(w)
		body.Redirect = "/login"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierror.ToHTTPStatus(apiErr.Code))
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
