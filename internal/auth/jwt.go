// Package auth provides token minting/verification, the request authorization
// gate, password hashing and the Google OAuth provider.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The client logs in with email + password, or through Google OAuth
//  2. Either path ends with a canonical model.User (see service.IdentityReconciler)
//  3. TokenService.Mint signs a 1-hour JWT carrying {userId, email, name, avatarUrl}
//  4. The client sends it as "Authorization: Bearer <token>" on REST calls and
//     as the "token" query parameter on the socket handshake
//  5. Gate verifies it and attaches a model.Principal to the request context
//
// Verification is stateless: no store lookup, no revocation list. A token
// stays valid until it expires, so principal data can be up to one hour stale.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
)

// TokenTTL is the fixed lifetime of every minted token.
const TokenTTL = time.Hour

const issuer = "star-blog"

var (
	// ErrMissingSecret means the server was started without a signing secret.
	ErrMissingSecret = apperror.Configuration("auth: JWT secret is not configured")

	// ErrIncompleteIdentity is returned by Mint for a user without id or email.
	ErrIncompleteIdentity = errors.New("auth: incomplete user identity for token")

	// ErrInvalidToken covers malformed, mis-signed and expired tokens. It
	// unwraps to apperror.ErrUnauthorized.
	ErrInvalidToken = apperror.Unauthorized("auth: invalid token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used to sign and verify tokens. The secret is set
// once at startup and never read from the environment afterwards.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if len(secret) < 16 {
		return nil, apperror.Configuration("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// WithClock returns a copy of s that reads time from now. Used to test the
// expiry boundary without sleeping.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	return &TokenService{secret: s.secret, now: now}
}

// Claims is the JWT payload. The custom fields use the same names clients
// already decode ("userId", "avatarUrl"); the registered claims carry exp,
// iat and iss.
type Claims struct {
	UserID    int64   `json:"userId"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
	jwt.RegisteredClaims
}

// Mint creates and signs a token for user, valid for TokenTTL.
//
// Signing algorithm: HS256 (HMAC-SHA256). Symmetric, so the same secret
// signs and verifies; fine for a single backend.
func (s *TokenService) Mint(user *model.User) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrMissingSecret
	}
	if user == nil || user.ID == 0 || user.Email == "" {
		return "", ErrIncompleteIdentity
	}

	now := s.clock()
	c := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and checks a token and returns the principal it encodes.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (exp is required and in the future)
//   - Issuer matches
//   - Algorithm is HS256 (rejects "none" and RS/HS confusion)
//
// Every failure is reported as ErrInvalidToken; the cause is wrapped for logs.
func (s *TokenService) Verify(tokenStr string) (*model.Principal, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, invalid(ErrMissingSecret)
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, invalid(errors.New("token expired"))
		}
		return nil, invalid(err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, invalid(errors.New("invalid token claims"))
	}
	if c.UserID == 0 {
		return nil, invalid(errors.New("token has no user id"))
	}

	return &model.Principal{
		ID:        c.UserID,
		Email:     c.Email,
		Name:      c.Name,
		AvatarURL: c.AvatarURL,
	}, nil
}

func (s *TokenService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// invalidTokenError keeps the cause for logging while matching ErrInvalidToken.
type invalidTokenError struct {
	cause error
}

func (e *invalidTokenError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidToken.Message, e.cause)
}

func (e *invalidTokenError) Unwrap() []error {
	return []error{ErrInvalidToken, e.cause}
}

func invalid(cause error) error {
	return &invalidTokenError{cause: cause}
}
