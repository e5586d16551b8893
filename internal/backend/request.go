package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// Multipart is a prepared multipart/form-data body. The content type carries
// the boundary chosen by the multipart writer; the client sets exactly that
// and never an explicit application/json header.
type Multipart struct {
	Body        []byte
	ContentType string
}

// NewMultipart assembles a multipart body from form fields plus one file.
func NewMultipart(fields map[string]string, fileField, fileName string, file io.Reader) (*Multipart, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %q: %w", k, err)
		}
	}
	if file != nil {
		part, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			return nil, fmt.Errorf("create file part: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, fmt.Errorf("copy file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &Multipart{Body: buf.Bytes(), ContentType: w.FormDataContentType()}, nil
}

// Request describes one backend call. The zero value of Public means the
// request requires a valid token; only the public endpoint tier opts out.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any        // JSON-encoded unless Multipart is set
	Multipart *Multipart // file upload; mutually exclusive with Body
	Public    bool       // true skips the token requirement
}

const (
	msgNoToken        = "No authentication token found. Please log in again."
	msgSessionExpired = "Session expired. Please sign in again."
	msgBadJSON        = "Invalid JSON response from server"
)

// Do executes a request through the full pipeline: header construction, token
// attachment, the single 401 refresh-and-retry, and error normalization. On
// success it returns the raw JSON body for the caller to decode.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "backend.request",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.Path),
		))
	defer span.End()

	raw, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return raw, err
}

func (c *Client) do(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, contentType, err := encodeBody(req)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "could not encode request body")
	}

	token, err := c.resolveToken(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.send(ctx, req, payload, contentType, token)
	if err != nil {
		return nil, err
	}

	// Exactly one refresh and one retry; the retried request is only issued
	// once the refreshed token is in hand.
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		newToken, refreshErr := c.refreshToken(ctx, token)
		if refreshErr != nil {
			c.signOut(ctx, "token refresh failed", refreshErr)
			return nil, apierror.WithStatus(apierror.CodeUnauthorized, msgSessionExpired, http.StatusUnauthorized)
		}

		resp, body, err = c.send(ctx, req, payload, contentType, newToken)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.signOut(ctx, "retry after refresh still unauthorized", nil)
			return nil, apierror.WithStatus(apierror.CodeUnauthorized, msgSessionExpired, http.StatusUnauthorized)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, mapStatus(resp.StatusCode, body)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		// 204-style responses carry no body.
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, apierror.WithStatus(apierror.CodeBadResponse, msgBadJSON, resp.StatusCode)
	}
	return json.RawMessage(body), nil
}

// resolveToken fetches the bearer token, honoring the auth requirement. One
// extra fetch attempt covers a session accessor that was momentarily empty.
// A required request without a token never reaches the network.
func (c *Client) resolveToken(ctx context.Context, req Request) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		token = ""
	}
	if token == "" && !req.Public {
		token, err = c.tokens.Token(ctx)
		if err != nil {
			token = ""
		}
		if token == "" {
			c.signOut(ctx, "no token available for protected request", nil)
			return "", apierror.New(apierror.CodeUnauthorized, msgNoToken)
		}
	}
	return token, nil
}

// send issues one HTTP exchange and reads the full body. The payload is a
// byte slice so the 401 retry can replay it.
func (c *Client) send(ctx context.Context, req Request, payload []byte, contentType, token string) (*http.Response, []byte, error) {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, bodyReader)
	if err != nil {
		return nil, nil, apierror.Wrap(err, apierror.CodeInternal, "could not build request")
	}

	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		return c.http.Do(httpReq)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, nil, apierror.Wrap(err, apierror.CodeUnavailable, "Service temporarily unavailable. Please try again later.")
		}
		return nil, nil, apierror.Wrap(err, apierror.CodeUnavailable, "Network error. Please try again later.")
	}
	resp := result.(*http.Response)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, nil, apierror.Wrap(err, apierror.CodeUnavailable, "Network error. Please try again later.")
	}

	if c.metrics != nil {
		c.metrics.BackendRequests.WithLabelValues(req.Method, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		c.metrics.BackendLatency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}
	c.logger.DebugContext(ctx, "backend request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resp, body, nil
}

// refreshToken coalesces concurrent refresh attempts for one principal:
// however many of their requests hit a 401 at once, the refresh endpoint is
// called exactly once and every caller awaits that result. The flight is
// keyed by the rejected token so requests from different principals never
// share a refresh or each other's new token. The in-flight marker clears
// once settled so a later 401 can trigger a fresh attempt.
func (c *Client) refreshToken(ctx context.Context, staleToken string) (string, error) {
	if c.refresh == nil {
		return "", apierror.New(apierror.CodeUnauthorized, "no refresh path configured")
	}

	if c.metrics != nil {
		c.metrics.TokenRefreshes.Inc()
	}

	v, err, _ := c.refreshGroup.Do(staleToken, func() (any, error) {
		return c.refresh.Refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) signOut(ctx context.Context, reason string, err error) {
	c.logger.WarnContext(ctx, "forcing sign-out", "reason", reason, "error", err)
	if c.metrics != nil {
		c.metrics.ForcedSignOuts.Inc()
	}
	c.onAuthFailure()
}

func encodeBody(req Request) (payload []byte, contentType string, err error) {
	if req.Multipart != nil {
		return req.Multipart.Body, req.Multipart.ContentType, nil
	}
	if req.Body == nil {
		// Content-Type is still JSON for bodyless writes; harmless for GETs.
		return nil, "application/json", nil
	}
	payload, err = json.Marshal(req.Body)
	if err != nil {
		return nil, "", err
	}
	return payload, "application/json", nil
}

// mapStatus converts a non-2xx response into the normalized error shape with
// a user-facing message.
func mapStatus(status int, body []byte) error {
	switch {
	case status == http.StatusForbidden:
		return apierror.WithStatus(apierror.CodeForbidden, "You do not have permission to perform this action.", status)
	case status == http.StatusTooManyRequests:
		return apierror.WithStatus(apierror.CodeRateLimited, "Too many requests. Please try again later.", status)
	case status == http.StatusNotFound:
		return apierror.WithStatus(apierror.CodeNotFound, "The requested resource was not found.", status)
	case status >= 500:
		return apierror.WithStatus(apierror.CodeUnavailable, "Server error. Please try again later.", status)
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"error", "message"} {
			if msg, ok := parsed[key].(string); ok && msg != "" {
				return apierror.WithStatus(apierror.CodeInternal, msg, status)
			}
		}
	}
	return apierror.WithStatus(apierror.CodeInternal, fmt.Sprintf("Request failed with status %d", status), status)
}
