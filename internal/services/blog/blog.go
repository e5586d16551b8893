// Package blog wraps the backend blog endpoints. Reads are public; mutations
// ride the caller's session token and are authorized upstream.
package blog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/DannyMyles/fitness-gateway/internal/backend"
)

// Post is a blog entry as the backend returns it.
type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	ImageURL  string    `json:"imageUrl"`
	Author    string    `json:"author"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Input is the mutable subset sent on create and update.
type Input struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	Published bool   `json:"published"`
}

// Stats is the aggregation shown on the admin dashboard.
type Stats struct {
	Total      int
	Published  int
	Drafts     int
	Categories map[string]int
}

// Service exposes domain-shaped blog calls over the API client.
type Service struct {
	api *backend.Client
}

func NewService(api *backend.Client) *Service {
	return &Service{api: api}
}

// List returns all posts. The read is public.
func (s *Service) List(ctx context.Context) ([]Post, error) {
	raw, err := s.api.Do(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   backend.PathBlogs,
		Public: true,
	})
	if err != nil {
		return nil, err
	}
	return decodePosts(raw)
}

// Get returns one post by id. The read is public.
func (s *Service) Get(ctx context.Context, id string) (*Post, error) {
	var post Post
	if err := s.api.Get(ctx, backend.PathBlogs+"/"+id, nil, true, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Create uploads a new post. When an image is supplied the request goes out
// as multipart form data so the backend receives the file alongside the
// fields.
func (s *Service) Create(ctx context.Context, in Input, imageName string, image io.Reader) (*Post, error) {
	var post Post
	if image == nil {
		if err := s.api.Post(ctx, backend.PathBlogs, in, false, &post); err != nil {
			return nil, err
		}
		return &post, nil
	}

	mp, err := backend.NewMultipart(fieldsFor(in), "image", imageName, image)
	if err != nil {
		return nil, err
	}
	if err := s.api.PostMultipart(ctx, backend.PathBlogs, mp, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Update rewrites a post, optionally replacing its image.
func (s *Service) Update(ctx context.Context, id string, in Input, imageName string, image io.Reader) (*Post, error) {
	var post Post
	path := backend.PathBlogs + "/" + id
	if image == nil {
		if err := s.api.Put(ctx, path, in, &post); err != nil {
			return nil, err
		}
		return &post, nil
	}

	mp, err := backend.NewMultipart(fieldsFor(in), "image", imageName, image)
	if err != nil {
		return nil, err
	}
	if err := s.api.PutMultipart(ctx, path, mp, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Delete removes a post.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, backend.PathBlogs+"/"+id)
}

// Aggregate computes dashboard stats from a post list.
func Aggregate(posts []Post) Stats {
	stats := Stats{Categories: make(map[string]int)}
	for _, p := range posts {
		stats.Total++
		if p.Published {
			stats.Published++
		} else {
			stats.Drafts++
		}
		if p.Category != "" {
			stats.Categories[p.Category]++
		}
	}
	return stats
}

// FormatPublishDate renders a post date the way the site displays it.
func FormatPublishDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

func fieldsFor(in Input) map[string]string {
	published := "false"
	if in.Published {
		published = "true"
	}
	return map[string]string{
		"title":     in.Title,
		"content":   in.Content,
		"category":  in.Category,
		"published": published,
	}
}

// decodePosts accepts both a bare array and the {"data": [...]} envelope the
// backend sometimes wraps lists in.
func decodePosts(raw json.RawMessage) ([]Post, error) {
	var posts []Post
	if err := json.Unmarshal(raw, &posts); err == nil {
		return posts, nil
	}
	var envelope struct {
		Data []Post `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
