package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
)

// contextKey is an unexported type used for context keys in this package, so
// no other package can read or shadow the principal.
type contextKey string

const principalKey contextKey = "principal"

// ErrNoToken is returned by Resolve when the request carries no bearer token.
var ErrNoToken = apperror.Unauthorized("No token provided")

// Gate turns a bearer token into a request principal.
//
// Two middlewares are built on the same Resolve step:
//
//	Require   401 and stop the chain when no valid principal can be resolved
//	Optional  attach a principal when possible, continue anonymously otherwise
type Gate struct {
	tokens *TokenService
	logger *slog.Logger
}

// NewGate creates a Gate verifying tokens with tokens.
func NewGate(tokens *TokenService, logger *slog.Logger) *Gate {
	return &Gate{tokens: tokens, logger: logger}
}

// Resolve extracts "Authorization: Bearer <token>" and verifies it.
//
// A missing header, a non-Bearer scheme and an empty token all yield
// ErrNoToken; anything the token service rejects yields ErrInvalidToken.
func (g *Gate) Resolve(r *http.Request) (*model.Principal, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, ErrNoToken
	}
	return g.tokens.Verify(token)
}

// Require is the mandatory gate. On failure it responds 401 and the wrapped
// handler is never invoked.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Resolve(r)
		if err != nil {
			msg := "Token is not valid"
			if errors.Is(err, ErrNoToken) {
				msg = "No token, authorization denied"
			}
			g.logger.Debug("request rejected by auth gate",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			writeUnauthorized(w, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Optional is the non-blocking gate: a valid token attaches a principal,
// anything else continues as an anonymous request.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Resolve(r)
		if err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		} else if !errors.Is(err, ErrNoToken) {
			g.logger.Debug("ignoring invalid token on optional route",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal attached by a gate.
//
// Returns (nil, false) for anonymous requests.
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*model.Principal)
	return p, ok && p != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeUnauthorized mirrors the handler package's error shape. It lives here
// because handler imports auth.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}
