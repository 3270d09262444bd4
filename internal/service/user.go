package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/auth"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
	"github.com/sakif/starblog/internal/storage"
)

// UserService manages a signed-in user's own account.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	avatars   storage.Store
	logger    *slog.Logger
}

func NewUserService(users repository.UserRepository, passwords *auth.PasswordService, avatars storage.Store, logger *slog.Logger) *UserService {
	return &UserService{users: users, passwords: passwords, avatars: avatars, logger: logger}
}

// ProfileInput holds the optional fields of a profile update. A nil or
// blank Name leaves the name unchanged.
type ProfileInput struct {
	Name   *string
	Avatar *storage.Upload
}

// UpdateProfile changes the name and/or avatar. A replaced avatar is
// deleted best effort, and only when this server stored it.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*model.User, error) {
	name := ""
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if name == "" && in.Avatar == nil {
		return nil, apperror.ValidationFailed("name", "No update data provided.")
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = current.Name
	}

	avatar := current.AvatarURL
	newURL := ""
	if in.Avatar != nil {
		if newURL, err = s.avatars.Save(ctx, *in.Avatar); err != nil {
			return nil, err
		}
		avatar = &newURL
	}

	updated, err := s.users.UpdateProfile(ctx, userID, name, avatar)
	if err != nil {
		if newURL != "" {
			s.removeAvatar(ctx, newURL)
		}
		return nil, fmt.Errorf("service/user: updating profile of user %d: %w", userID, err)
	}

	if old := model.StringValue(current.AvatarURL); newURL != "" && old != "" && old != newURL && s.avatars.Owns(old) {
		s.removeAvatar(ctx, old)
	}

	s.logger.Info("profile updated", slog.Int64("user_id", userID))
	return updated, nil
}

// ChangePassword replaces the password of a password account after
// checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperror.ValidationFailed("password", "Current and new passwords are required.")
	}
	if len(newPassword) < auth.MinPasswordLength {
		return apperror.ValidationFailed("newPassword",
			fmt.Sprintf("New password must be at least %d characters long.", auth.MinPasswordLength))
	}
	if currentPassword == newPassword {
		return apperror.ValidationFailed("newPassword", "New password must be different from the current password.")
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	hash, ok := model.PasswordHash(u.Credential)
	if !ok {
		return apperror.ValidationFailed("password", "Cannot change password for social login accounts.")
	}
	if err := s.passwords.Verify(hash, currentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperror.Unauthorized("Incorrect current password.")
		}
		return fmt.Errorf("service/user: verifying password for user %d: %w", userID, err)
	}

	newHash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return apperror.ValidationFailed("newPassword", "Password must be 72 bytes or fewer.")
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("service/user: storing password for user %d: %w", userID, err)
	}

	s.logger.Info("password changed", slog.Int64("user_id", userID))
	return nil
}

// removeAvatar never fails the request: a leftover file is only garbage.
func (s *UserService) removeAvatar(ctx context.Context, url string) {
	if err := s.avatars.Delete(ctx, url); err != nil {
		s.logger.Warn("failed to delete avatar",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}
