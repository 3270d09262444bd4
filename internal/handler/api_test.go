package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/starblog/internal/auth"
	"github.com/sakif/starblog/internal/handler"
	"github.com/sakif/starblog/internal/logger"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/realtime"
	"github.com/sakif/starblog/internal/render"
	"github.com/sakif/starblog/internal/repository/sqlite"
	"github.com/sakif/starblog/internal/service"
	"github.com/sakif/starblog/internal/storage"
)

const (
	testSecret    = "handler-test-secret-0123456789"
	testClientURL = "http://localhost:5173"
)

type fakeGoogle struct {
	profile *model.ExternalProfile
	err     error
	code    string
}

func (f *fakeGoogle) AuthURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (f *fakeGoogle) Exchange(_ context.Context, code string) (*model.ExternalProfile, error) {
	f.code = code
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

// testAPI is the /api surface on a fresh SQLite file, routed the same way
// the server routes it.
type testAPI struct {
	router    http.Handler
	tokens    *auth.TokenService
	google    *fakeGoogle
	uploadDir string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := logger.Discard()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	uploadDir := t.TempDir()
	avatars, err := storage.NewLocal(uploadDir)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	hub := realtime.NewHub(log)
	google := &fakeGoogle{}

	users := db.Users()
	authH := handler.NewAuthHandler(
		service.NewAuthService(users, service.NewIdentityReconciler(users, log), tokens, passwords, avatars, log),
		google, testClientURL, false, log)
	userH := handler.NewUserHandler(service.NewUserService(users, passwords, avatars, log), log)
	postH := handler.NewPostHandler(service.NewPostService(db.Posts(), db.Likes(), render.NewMarkdown(), log), log)
	commentH := handler.NewCommentHandler(
		service.NewCommentService(db.Comments(), db.Posts(), service.NewCommentNotifier(hub, log), log), log)

	gate := auth.NewGate(tokens, log)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authH.HandleRegister)
		r.Post("/auth/login", authH.HandleLogin)
		r.Get("/auth/google", authH.HandleGoogleLogin)
		r.Get("/auth/google/callback", authH.HandleGoogleCallback)
		r.With(gate.Require).Get("/auth/me", authH.HandleMe)

		r.With(gate.Optional).Get("/posts", postH.HandleList)
		r.With(gate.Optional).Get("/posts/{id}", postH.HandleGet)
		r.Get("/posts/{id}/comments", commentH.HandleList)

		r.Group(func(r chi.Router) {
			r.Use(gate.Require)
			r.Post("/posts", postH.HandleCreate)
			r.Put("/posts/{id}", postH.HandleUpdate)
			r.Delete("/posts/{id}", postH.HandleDelete)
			r.Post("/posts/{id}/like", postH.HandleLike)
			r.Delete("/posts/{id}/like", postH.HandleUnlike)
			r.Post("/posts/{id}/comments", commentH.HandleCreate)
			r.Put("/comments/{id}", commentH.HandleUpdate)
			r.Delete("/comments/{id}", commentH.HandleDelete)
			r.Put("/users/profile", userH.HandleUpdateProfile)
			r.Put("/users/password", userH.HandleChangePassword)
		})
	})

	return &testAPI{router: r, tokens: tokens, google: google, uploadDir: uploadDir}
}

// do sends body as JSON (nil for none) with an optional bearer token.
func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token)
}

func (a *testAPI) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// signup registers and logs in, returning the token and user id.
func (a *testAPI) signup(t *testing.T, email, name string) (string, int64) {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"email": email, "password": "secret123", "name": name}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": "secret123"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	decode(t, rr, &res)
	return res.Token, res.User.ID
}

func (a *testAPI) createPost(t *testing.T, token, title string) int64 {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/posts",
		map[string]any{"title": title, "content": "# Hi\n\nbody", "categories": []string{"go"}}, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res struct {
		InsertedID int64 `json:"insertedId"`
	}
	decode(t, rr, &res)
	return res.InsertedID
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var e handler.ErrorResponse
	decode(t, rr, &e)
	return e
}
