// Package user wraps the backend user endpoints: the signed-in profile plus
// the admin user management surface.
package user

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/DannyMyles/fitness-gateway/internal/backend"
)

// User is an account record as the backend returns it.
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar"`
}

// ProfileUpdate is the subset a user may change about themselves.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Service exposes domain-shaped user calls over the API client.
type Service struct {
	api *backend.Client
}

func NewService(api *backend.Client) *Service {
	return &Service{api: api}
}

// Profile returns the signed-in user's record.
func (s *Service) Profile(ctx context.Context) (*User, error) {
	var u User
	if err := s.api.Get(ctx, backend.PathProfile, nil, false, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile edits the signed-in user's record and returns the new state.
// The caller is responsible for propagating a changed name into the session.
func (s *Service) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*User, error) {
	var u User
	if err := s.api.Put(ctx, backend.PathProfile, upd, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns all accounts. Admin-tier upstream.
func (s *Service) List(ctx context.Context) ([]User, error) {
	raw, err := s.api.Do(ctx, backend.Request{Method: http.MethodGet, Path: backend.PathUsers})
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// UpdateRole changes an account's role. Admin-tier upstream.
func (s *Service) UpdateRole(ctx context.Context, id, role string) (*User, error) {
	var u User
	if err := s.api.Put(ctx, backend.PathUsers+"/"+id, map[string]string{"role": role}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Delete removes an account. Admin-tier upstream.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, backend.PathUsers+"/"+id)
}

func decodeList(raw json.RawMessage) ([]User, error) {
	var items []User
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var envelope struct {
		Data []User `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
