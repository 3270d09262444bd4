package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

// UserStore persists users. The credential sum type is flattened into the
// nullable password_hash and google_id columns and rebuilt on read.
type UserStore struct {
	db *DB
}

const userColumns = `id, email, name, password_hash, google_id, avatar_url, created_at, updated_at`

// Create inserts u. The email is stored lower-cased and trimmed so lookups
// by email are case-insensitive.
func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	hash, _ := model.PasswordHash(u.Credential)
	providerID, _ := model.ExternalID(u.Credential)
	if hash == "" && providerID == "" {
		return apperror.ValidationFailed("credential", "user needs a password or an external identity")
	}

	now := time.Now().UTC()
	email := normalizeEmail(u.Email)

	res, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, google_id, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		email,
		nullString(u.Name),
		nullString(hash),
		nullString(providerID),
		u.AvatarURL,
		now,
		now,
	)
	if err != nil {
		if kind, col := classify(err); kind == constraintUnique {
			return apperror.Conflict("user", strings.TrimPrefix(col, "users."))
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", email, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new user id: %w", err)
	}

	u.ID = id
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// GetByID returns apperror.ErrNotFound if no user exists with that ID.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	u, err := scanUser(s.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("User not found.")
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByExternalID(ctx context.Context, providerID string) (*model.User, error) {
	u, err := scanUser(s.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = ?`, providerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("User not found.")
		}
		return nil, fmt.Errorf("sqlite: getting user by external id: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id int64, name string, avatarURL *string) (*model.User, error) {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		nullString(name), avatarURL, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating user %d profile: %w", id, err)
	}
	if err := requireAffected(res, "user", id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) LinkExternal(ctx context.Context, id int64, providerID, name string, avatarURL *string) (*model.User, error) {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE users SET google_id = ?, name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		providerID, nullString(name), avatarURL, time.Now().UTC(), id,
	)
	if err != nil {
		if kind, _ := classify(err); kind == constraintUnique {
			return nil, apperror.Conflict("user", "google_id")
		}
		return nil, fmt.Errorf("sqlite: linking user %d: %w", id, err)
	}
	if err := requireAffected(res, "user", id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %d password: %w", id, err)
	}
	return requireAffected(res, "user", id)
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u          model.User
		name       sql.NullString
		hash       sql.NullString
		providerID sql.NullString
		avatar     sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &hash, &providerID, &avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Name = name.String
	u.AvatarURL = ptrFromNull(avatar)
	u.Credential = model.CredentialFrom(hash.String, providerID.String)
	return &u, nil
}

func requireAffected(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// nullString stores "" as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}
