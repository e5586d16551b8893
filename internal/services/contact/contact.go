// Package contact wraps the backend contact-form endpoints. Submission is
// public and validated before any network call; the inbox is admin-tier.
package contact

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/DannyMyles/fitness-gateway/internal/backend"
	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// Message is a contact-form submission.
type Message struct {
	ID        string    `json:"_id,omitempty"`
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	Subject   string    `json:"subject"`
	Body      string    `json:"message" validate:"required"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Service exposes domain-shaped contact calls over the API client.
type Service struct {
	api      *backend.Client
	validate *validator.Validate
}

func NewService(api *backend.Client) *Service {
	return &Service{
		api:      api,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Submit validates and sends a contact-form message. Validation failures are
// surfaced before any network call.
func (s *Service) Submit(ctx context.Context, msg Message) error {
	if err := s.validate.Struct(msg); err != nil {
		return apierror.Wrap(err, apierror.CodeValidation, "Please fill in your name, a valid email, and a message.")
	}
	return s.api.Post(ctx, backend.PathContacts, msg, true, nil)
}

// List returns the contact inbox. Admin-tier upstream.
func (s *Service) List(ctx context.Context) ([]Message, error) {
	raw, err := s.api.Do(ctx, backend.Request{Method: http.MethodGet, Path: backend.PathContacts})
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// Delete removes a message from the inbox. Admin-tier upstream.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, backend.PathContacts+"/"+id)
}

func decodeList(raw json.RawMessage) ([]Message, error) {
	var items []Message
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var envelope struct {
		Data []Message `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
