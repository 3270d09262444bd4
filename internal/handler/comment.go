package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
	"github.com/sakif/starblog/internal/service"
)

type CommentHandler struct {
	comments *service.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

type commentRequest struct {
	Content string `json:"content"`
}

type commentUpdatedResponse struct {
	Message string         `json:"message"`
	Comment *model.Comment `json:"comment"`
}

// HandleList serves GET /api/posts/{id}/comments.
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r, "id", "post")
	if err != nil {
		writeError(w, r, err)
		return
	}
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

	comments, err := h.comments.List(r.Context(), postID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// HandleCreate serves POST /api/posts/{id}/comments. The post's author is
// notified over the socket if someone else commented.
func (h *CommentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r, "id", "post")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.comments.Create(r.Context(), postID, caller(r).ID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleUpdate serves PUT /api/comments/{id}; comment author only.
func (h *CommentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "comment")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.comments.Update(r.Context(), id, caller(r).ID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commentUpdatedResponse{Message: "Comment updated successfully.", Comment: c})
}

// HandleDelete serves DELETE /api/comments/{id}; comment author only.
func (h *CommentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "comment")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.comments.Delete(r.Context(), id, caller(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Comment deleted successfully."})
}
