package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// The backend's REST surface falls into three trust tiers. The gateway only
// attaches whatever token it has; role enforcement for the admin tier is the
// backend's responsibility and no role-based branching happens client-side.
//
// public: no token required - login, register, password reset, contact form,
// public blog and testimonial reads.
// protected: a valid session, no elevated role - the current user's profile.
// admin: elevated role, enforced upstream - user management, blog and
// testimonial mutation, contact inbox.
const (
	PathLogin         = "/api/v1/auth/login"
	PathRegister      = "/api/v1/auth/register"
	PathRefresh       = "/api/v1/auth/refresh"
	PathPasswordReset = "/api/v1/auth/password-reset"

	PathBlogs        = "/api/v1/blogs"
	PathTestimonials = "/api/v1/testimonials"
	PathUsers        = "/api/v1/users"
	PathContacts     = "/api/v1/contacts"
	PathProfile      = "/api/v1/users/me"
)

// Get issues a GET and decodes the response into out (skipped when out is nil).
func (c *Client) Get(ctx context.Context, path string, query url.Values, public bool, out any) error {
	raw, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Public: public})
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// Post issues a JSON POST and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body any, public bool, out any) error {
	raw, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Public: public})
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// PostMultipart issues a multipart POST (file upload) and decodes the
// response into out.
func (c *Client) PostMultipart(ctx context.Context, path string, mp *Multipart, out any) error {
	raw, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Multipart: mp})
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// Put issues a JSON PUT and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	raw, err := c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// PutMultipart issues a multipart PUT and decodes the response into out.
func (c *Client) PutMultipart(ctx context.Context, path string, mp *Multipart, out any) error {
	raw, err := c.Do(ctx, Request{Method: http.MethodPut, Path: path, Multipart: mp})
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
	return err
}

func decodeInto(raw json.RawMessage, out any) error {
	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierror.Wrap(err, apierror.CodeBadResponse, msgBadJSON)
	}
	return nil
}
