package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/starblog/internal/auth"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/service"
)

const stateCookie = "oauth_state"

// GoogleExchanger is satisfied by *auth.GoogleProvider.
type GoogleExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*model.ExternalProfile, error)
}

// AuthHandler serves registration, both login paths and /me.
type AuthHandler struct {
	auth      *service.AuthService
	google    GoogleExchanger
	clientURL string
	secure    bool
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler. clientURL is the browser app the
// Google flow redirects back to; secure marks the state cookie Secure.
func NewAuthHandler(svc *service.AuthService, google GoogleExchanger, clientURL string, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      svc,
		google:    google,
		clientURL: strings.TrimRight(clientURL, "/"),
		secure:    secure,
		logger:    logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

// HandleRegister accepts JSON, or multipart when an avatar is attached.
//
// HTTP: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var (
		req    registerRequest
		in     service.RegisterInput
		closer io.Closer
	)

	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			writeError(w, r, err)
			return
		}
		req = registerRequest{
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
			Name:     r.FormValue("name"),
		}
		upload, c, err := formUpload(r, "avatar")
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Avatar, closer = upload, c
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	defer closeUpload(closer)

	in.Email, in.Password, in.Name = req.Email, req.Password, req.Name
	u, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "User registered successfully.",
		UserID:  u.ID,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// HandleLogin
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, User: res.User})
}

// HandleMe returns the stored profile of the caller, not the token claims.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.Me(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleGoogleLogin redirects the browser to Google with a CSRF state that
// is echoed back on the callback and checked against a short-lived cookie.
//
// HTTP: GET /api/auth/google
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback finishes the flow and hands the token to the client
// app in the query string of its /auth/callback page. Every failure ends in
// a redirect to the login page with an error marker.
//
// HTTP: GET /api/auth/google/callback?code=...&state=...
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/api/auth/google", MaxAge: -1})

	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("google callback: state mismatch")
		h.redirectError(w, r, "google-auth-failed")
		return
	}
	if e := q.Get("error"); e != "" {
		h.logger.Info("google callback: authorization denied", slog.String("error", e))
		h.redirectError(w, r, "google-auth-failed")
		return
	}
	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, "google-auth-failed")
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("google callback: exchange failed", slog.String("error", err.Error()))
		h.redirectError(w, r, "google-auth-failed")
		return
	}

	res, err := h.auth.LoginWithGoogle(r.Context(), profile)
	if err != nil {
		reason := "google-auth-failed"
		if errors.Is(err, service.ErrTokenIssue) {
			reason = "token-generation-failed"
		}
		h.logger.Error("google callback: login failed", slog.String("error", err.Error()))
		h.redirectError(w, r, reason)
		return
	}

	target := h.clientURL + "/auth/callback?token=" + url.QueryEscape(res.Token)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.clientURL+"/login?error="+reason, http.StatusFound)
}

var _ GoogleExchanger = (*auth.GoogleProvider)(nil)
