// Package testimonial wraps the backend testimonial endpoints.
package testimonial

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DannyMyles/fitness-gateway/internal/backend"
)

// Testimonial is a client review as the backend returns it.
type Testimonial struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Rating    int       `json:"rating"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"createdAt"`
}

// Input is the mutable subset sent on create.
type Input struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Message string `json:"message"`
	Rating  int    `json:"rating"`
}

// Service exposes domain-shaped testimonial calls over the API client.
type Service struct {
	api *backend.Client
}

func NewService(api *backend.Client) *Service {
	return &Service{api: api}
}

// List returns all testimonials. The read is public.
func (s *Service) List(ctx context.Context) ([]Testimonial, error) {
	raw, err := s.api.Do(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   backend.PathTestimonials,
		Public: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// Create submits a new testimonial on behalf of the signed-in client.
func (s *Service) Create(ctx context.Context, in Input) (*Testimonial, error) {
	var t Testimonial
	if err := s.api.Post(ctx, backend.PathTestimonials, in, false, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Approve marks a testimonial as publishable. Admin-tier upstream.
func (s *Service) Approve(ctx context.Context, id string) (*Testimonial, error) {
	var t Testimonial
	if err := s.api.Put(ctx, backend.PathTestimonials+"/"+id, map[string]bool{"approved": true}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes a testimonial. Admin-tier upstream.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, backend.PathTestimonials+"/"+id)
}

// ApprovedOnly filters to the testimonials the marketing pages may show.
func ApprovedOnly(items []Testimonial) []Testimonial {
	out := make([]Testimonial, 0, len(items))
	for _, t := range items {
		if t.Approved {
			out = append(out, t)
		}
	}
	return out
}

// AverageRating aggregates the star rating across approved testimonials,
// zero when there are none.
func AverageRating(items []Testimonial) float64 {
	var sum, count int
	for _, t := range items {
		if t.Approved && t.Rating > 0 {
			sum += t.Rating
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func decodeList(raw json.RawMessage) ([]Testimonial, error) {
	var items []Testimonial
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var envelope struct {
		Data []Testimonial `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
