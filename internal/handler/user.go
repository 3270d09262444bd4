package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/service"
)

type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type profileRequest struct {
	Name *string `json:"name"`
}

type profileUpdatedResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

// HandleUpdateProfile serves PUT /api/users/profile. Multipart carries
// "name" and/or an "avatar" file; plain JSON can only change the name.
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var (
		in     service.ProfileInput
		closer io.Closer
	)

	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			writeError(w, r, err)
			return
		}
		if vals, ok := r.MultipartForm.Value["name"]; ok && len(vals) > 0 {
			in.Name = &vals[0]
		}
		upload, c, err := formUpload(r, "avatar")
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Avatar, closer = upload, c
	} else {
		var req profileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		in.Name = req.Name
	}
	defer closeUpload(closer)

	u, err := h.users.UpdateProfile(r.Context(), caller(r).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileUpdatedResponse{Message: "Profile updated successfully.", User: u})
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// HandleChangePassword serves PUT /api/users/password.
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), caller(r).ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated successfully."})
}
