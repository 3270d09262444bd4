package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
)

// DefaultDisplayName is used when a Google profile carries no name.
const DefaultDisplayName = "Google User"

// Concurrent first logins for one identity race on the unique columns; the
// loser re-runs the lookups and finds the winner's row.
const maxReconcileAttempts = 3

// ErrIdentity is returned when an external profile has no email. Email is
// the only key shared by both login paths, so such a profile cannot be
// reconciled.
var ErrIdentity = apperror.ValidationFailed("email", "No email address was returned by the identity provider.")

// ErrUnverifiedEmail is returned when an unverified external email matches an
// existing account. Linking on it would hand that account to whoever created
// the external identity.
var ErrUnverifiedEmail = apperror.Unauthorized(
	"This email is already registered. Log in with your password or verify the address with Google first.")

// IdentityReconciler maps an external profile to exactly one local user.
//
// Resolution order, first hit wins:
//
//  1. external id     refresh name/avatar if they changed
//  2. verified email  attach the external id to that account (merge point)
//  3. nothing         create an external-only user
type IdentityReconciler struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewIdentityReconciler(users repository.UserRepository, logger *slog.Logger) *IdentityReconciler {
	return &IdentityReconciler{users: users, logger: logger}
}

// Reconcile returns the canonical user for p. A unique-constraint conflict
// from a concurrent login is retried as a lookup, never surfaced.
func (r *IdentityReconciler) Reconcile(ctx context.Context, p *model.ExternalProfile) (*model.User, error) {
	if p == nil || strings.TrimSpace(p.ProviderID) == "" {
		return nil, apperror.ValidationFailed("providerId", "Identity provider returned no user id.")
	}
	email := primaryEmail(p.Emails)
	if email == "" {
		return nil, ErrIdentity
	}

	var err error
	for attempt := 1; attempt <= maxReconcileAttempts; attempt++ {
		var u *model.User
		u, err = r.resolve(ctx, p, email)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		r.logger.Debug("identity conflict, retrying lookup",
			slog.String("provider_id", p.ProviderID),
			slog.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("service/identity: reconciling %s: %w", p.ProviderID, err)
}

func (r *IdentityReconciler) resolve(ctx context.Context, p *model.ExternalProfile, email string) (*model.User, error) {
	u, err := r.users.GetByExternalID(ctx, p.ProviderID)
	switch {
	case err == nil:
		return r.refresh(ctx, u, p)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/identity: looking up external id: %w", err)
	}

	u, err = r.users.GetByEmail(ctx, email)
	switch {
	case err == nil && !p.EmailVerified:
		r.logger.Warn("refusing to link unverified Google email",
			slog.Int64("user_id", u.ID),
			slog.String("provider_id", p.ProviderID),
		)
		return nil, ErrUnverifiedEmail
	case err == nil:
		name, avatar := mergedProfile(u, p)
		linked, err := r.users.LinkExternal(ctx, u.ID, p.ProviderID, name, avatar)
		if err != nil {
			return nil, fmt.Errorf("service/identity: linking user %d: %w", u.ID, err)
		}
		r.logger.Info("linked Google identity to existing account", slog.Int64("user_id", u.ID))
		return linked, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/identity: looking up email: %w", err)
	}

	nu := &model.User{
		Email:      email,
		Name:       displayName(p),
		AvatarURL:  model.StringPtr(strings.TrimSpace(p.AvatarURL)),
		Credential: model.ExternalCredential{ProviderID: p.ProviderID},
	}
	if err := r.users.Create(ctx, nu); err != nil {
		return nil, fmt.Errorf("service/identity: creating user: %w", err)
	}
	r.logger.Info("created user from Google login", slog.Int64("user_id", nu.ID))
	return nu, nil
}

// refresh writes the provider's name and avatar only when they differ from
// what is stored.
func (r *IdentityReconciler) refresh(ctx context.Context, u *model.User, p *model.ExternalProfile) (*model.User, error) {
	name, avatar := mergedProfile(u, p)
	if name == u.Name && model.StringValue(avatar) == model.StringValue(u.AvatarURL) {
		return u, nil
	}
	updated, err := r.users.UpdateProfile(ctx, u.ID, name, avatar)
	if err != nil {
		return nil, fmt.Errorf("service/identity: refreshing user %d: %w", u.ID, err)
	}
	return updated, nil
}

// mergedProfile prefers the provider's values and keeps stored ones the
// provider left empty.
func mergedProfile(u *model.User, p *model.ExternalProfile) (string, *string) {
	name := u.Name
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		name = n
	}
	avatar := u.AvatarURL
	if a := strings.TrimSpace(p.AvatarURL); a != "" {
		avatar = &a
	}
	return name, avatar
}

func displayName(p *model.ExternalProfile) string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	return DefaultDisplayName
}

func primaryEmail(emails []string) string {
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			return e
		}
	}
	return ""
}
