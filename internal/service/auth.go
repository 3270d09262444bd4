// Package service holds the business rules of the blog. Handlers call into
// it with plain values; it talks to storage only through the repository
// interfaces and returns apperror values the HTTP layer maps to status codes.
//
//	Handler (HTTP) → Service (rules) → Repository (SQL)
//	                          ↘ TokenService, PasswordService, storage.Store, realtime.Publisher
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/auth"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
	"github.com/sakif/starblog/internal/storage"
)

// ErrTokenIssue marks a login that succeeded but could not be turned into
// a token. The OAuth callback redirects with a distinct error for it.
var ErrTokenIssue = errors.New("service: issuing token")

// AuthService handles registration and both login paths. Every successful
// login ends in the same place: a token minted from the canonical user.
type AuthService struct {
	users      repository.UserRepository
	identities *IdentityReconciler
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	avatars    storage.Store
	logger     *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	identities *IdentityReconciler,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	avatars storage.Store,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		identities: identities,
		tokens:     tokens,
		passwords:  passwords,
		avatars:    avatars,
		logger:     logger,
	}
}

// AuthResult bundles the user and the issued token.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is a password registration. Avatar is optional.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Avatar   *storage.Upload
}

// Register creates a password account. The name defaults to the local part
// of the email address.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, apperror.ValidationFailed("password", "Email and password are required.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "Please provide a valid email address.")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters long.", auth.MinPasswordLength))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer.")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	var avatarURL string
	if in.Avatar != nil {
		if avatarURL, err = s.avatars.Save(ctx, *in.Avatar); err != nil {
			return nil, err
		}
	}

	u := &model.User{
		Email:      email,
		Name:       name,
		AvatarURL:  model.StringPtr(avatarURL),
		Credential: model.PasswordCredential{Hash: hash},
	}
	if err := s.users.Create(ctx, u); err != nil {
		s.discardAvatar(ctx, avatarURL)
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ConflictMessage("This email is already registered.")
		}
		return nil, fmt.Errorf("service/auth: registering %s: %w", email, err)
	}

	s.logger.Info("user registered", slog.Int64("user_id", u.ID))
	return u, nil
}

// Login checks an email and password. Unknown email is NotFound; a wrong
// password, or an account that only has a Google identity, is Unauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required.")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	hash, ok := model.PasswordHash(u.Credential)
	if !ok {
		return nil, apperror.Unauthorized("This account uses Google sign-in. Please log in with Google.")
	}
	if err := s.passwords.Verify(hash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized("Incorrect password.")
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %d: %w", u.ID, err)
	}

	return s.issue(u, "password")
}

// LoginWithGoogle reconciles the profile into a local user and issues a
// token for it.
func (s *AuthService) LoginWithGoogle(ctx context.Context, p *model.ExternalProfile) (*AuthResult, error) {
	u, err := s.identities.Reconcile(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.issue(u, "google")
}

// Me returns the current record for the principal's id. Token claims may be
// up to an hour stale; this read is not.
func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AuthService) issue(u *model.User, method string) (*AuthResult, error) {
	token, err := s.tokens.Mint(u)
	if err != nil {
		return nil, fmt.Errorf("%w for user %d: %w", ErrTokenIssue, u.ID, err)
	}
	s.logger.Info("user authenticated",
		slog.Int64("user_id", u.ID),
		slog.String("method", method),
	)
	return &AuthResult{User: u, Token: token}, nil
}

// discardAvatar removes a just-saved avatar whose user row was never written.
func (s *AuthService) discardAvatar(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := s.avatars.Delete(ctx, url); err != nil {
		s.logger.Warn("failed to remove orphaned avatar",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}
