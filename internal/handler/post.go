package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
	"github.com/sakif/starblog/internal/service"
)

type PostHandler struct {
	posts  *service.PostService
	logger *slog.Logger
}

func NewPostHandler(posts *service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

type postRequest struct {
	Title      string   `json:"title"`
	Content    *string  `json:"content"`
	Date       *string  `json:"date"`
	Categories []string `json:"categories"`
}

func (req postRequest) input() repository.PostInput {
	return repository.PostInput{
		Title:      req.Title,
		Content:    req.Content,
		Date:       req.Date,
		Categories: req.Categories,
	}
}

type createdResponse struct {
	Message    string `json:"message"`
	InsertedID int64  `json:"insertedId"`
}

type postUpdatedResponse struct {
	Message string      `json:"message"`
	Post    *model.Post `json:"post"`
}

type likesResponse struct {
	Likes int `json:"likes"`
}

// HandleList serves GET /api/posts?limit=&offset=. With a principal, each
// post's likedByCurrentUser is filled in.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	posts, err := h.posts.List(r.Context(), repository.ListOptions{
		Limit:    limit,
		Offset:   offset,
		ViewerID: viewerID(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleGet serves GET /api/posts/{id}.
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "post")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.posts.Get(r.Context(), id, viewerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleCreate serves POST /api/posts. The caller becomes the author.
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.posts.Create(r.Context(), caller(r).ID, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Message: "Post created successfully.", InsertedID: id})
}

// HandleUpdate serves PUT /api/posts/{id}; author only.
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "post")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.posts.Update(r.Context(), id, caller(r).ID, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postUpdatedResponse{Message: "Post updated successfully.", Post: p})
}

// HandleDelete serves DELETE /api/posts/{id}; author only.
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "post")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.posts.Delete(r.Context(), id, caller(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Post deleted successfully."})
}

// HandleLike serves POST /api/posts/{id}/like.
func (h *PostHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "post")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.posts.Like(r.Context(), id, caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, likesResponse{Likes: n})
}

// HandleUnlike serves DELETE /api/posts/{id}/like.
func (h *PostHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "post")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.posts.Unlike(r.Context(), id, caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likesResponse{Likes: n})
}
