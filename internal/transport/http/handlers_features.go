package httptransport

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/DannyMyles/fitness-gateway/internal/requestcontext"
	"github.com/DannyMyles/fitness-gateway/internal/services/blog"
	"github.com/DannyMyles/fitness-gateway/internal/services/contact"
	"github.com/DannyMyles/fitness-gateway/internal/services/testimonial"
	"github.com/DannyMyles/fitness-gateway/internal/services/user"
	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

const maxUploadSize = 10 << 20 // 10 MiB image uploads

// ---- blogs ----

func (h *Handler) handleBlogList(w http.ResponseWriter, r *http.Request) {
	posts, err := h.services.Blogs.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, posts)
}

func (h *Handler) handleBlogGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.services.Blogs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, post)
}

func (h *Handler) handleBlogCreate(w http.ResponseWriter, r *http.Request) {
	in, imageName, image, err := h.blogInput(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := h.services.Blogs.Create(r.Context(), in, imageName, image)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, post)
}

func (h *Handler) handleBlogUpdate(w http.ResponseWriter, r *http.Request) {
	in, imageName, image, err := h.blogInput(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := h.services.Blogs.Update(r.Context(), chi.URLParam(r, "id"), in, imageName, image)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, post)
}

func (h *Handler) handleBlogDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Blogs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]bool{"success": true})
}

// blogInput reads a blog payload from either a JSON body or a multipart form
// carrying an image alongside the fields.
func (h *Handler) blogInput(r *http.Request) (blog.Input, string, io.Reader, error) {
	var in blog.Input

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, "", nil, apierror.New(apierror.CodeValidation, "Invalid request body")
		}
		return in, "", nil, nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return in, "", nil, apierror.New(apierror.CodeValidation, "Invalid multipart form")
	}
	in.Title = r.FormValue("title")
	in.Content = r.FormValue("content")
	in.Category = r.FormValue("category")
	in.Published, _ = strconv.ParseBool(r.FormValue("published"))

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return in, "", nil, nil
	}
	if err != nil {
		return in, "", nil, apierror.New(apierror.CodeValidation, "Invalid image upload")
	}
	return in, header.Filename, file, nil
}

// ---- testimonials ----

func (h *Handler) handleTestimonialList(w http.ResponseWriter, r *http.Request) {
	items, err := h.services.Testimonials.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, items)
}

func (h *Handler) handleTestimonialCreate(w http.ResponseWriter, r *http.Request) {
	var in testimonial.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, r, apierror.New(apierror.CodeValidation, "Invalid request body"))
		return
	}
	item, err := h.services.Testimonials.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, item)
}

func (h *Handler) handleTestimonialApprove(w http.ResponseWriter, r *http.Request) {
	item, err := h.services.Testimonials.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, item)
}

func (h *Handler) handleTestimonialDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Testimonials.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]bool{"success": true})
}

// ---- users ----

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.services.Users.Profile(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, u)
}

func (h *Handler) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var upd user.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.writeError(w, r, apierror.New(apierror.CodeValidation, "Invalid request body"))
		return
	}
	u, err := h.services.Users.UpdateProfile(r.Context(), upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// Keep the session's display name in step with the backend record.
	if state := requestcontext.TokenStateFrom(r.Context()); state != nil && u.Name != "" {
		state.SetName(u.Name)
	}
	h.respond(w, r, http.StatusOK, u)
}

func (h *Handler) handleUserList(w http.ResponseWriter, r *http.Request) {
	users, err := h.services.Users.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, users)
}

func (h *Handler) handleUserRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Role == "" {
		h.writeError(w, r, apierror.New(apierror.CodeValidation, "Role is required"))
		return
	}
	u, err := h.services.Users.UpdateRole(r.Context(), chi.URLParam(r, "id"), body.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, u)
}

func (h *Handler) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]bool{"success": true})
}

// ---- contacts ----

func (h *Handler) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	var msg contact.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.writeError(w, r, apierror.New(apierror.CodeValidation, "Invalid request body"))
		return
	}
	if err := h.services.Contacts.Submit(r.Context(), msg); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, map[string]bool{"success": true})
}

func (h *Handler) handleContactList(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.services.Contacts.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, msgs)
}

func (h *Handler) handleContactDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Contacts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]bool{"success": true})
}
