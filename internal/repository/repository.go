// Package repository declares the storage contracts the service layer
// depends on. internal/repository/sqlite implements them; service tests use
// hand-written fakes.
//
// Errors follow internal/apperror: a missing row is ErrNotFound, a unique
// violation is ErrConflict, an ownership mismatch is ErrForbidden. Anything
// else is an internal failure.
package repository

import (
	"context"

	"github.com/sakif/starblog/internal/model"
)

// Page size bounds applied by every List method.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ListOptions paginates list queries. ViewerID, when non-zero, makes the
// store compute LikedByCurrentUser for that user.
type ListOptions struct {
	Limit    int
	Offset   int
	ViewerID int64
}

// Normalize clamps Limit to [1, MaxLimit] (0 means DefaultLimit) and Offset
// to >= 0.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

type UserRepository interface {
	// Create inserts u and fills in ID and timestamps. A taken email or
	// external id yields ErrConflict.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByExternalID(ctx context.Context, providerID string) (*model.User, error)

	// UpdateProfile overwrites name and avatar and returns the stored row.
	UpdateProfile(ctx context.Context, id int64, name string, avatarURL *string) (*model.User, error)

	// LinkExternal attaches providerID to the user and refreshes name and
	// avatar in the same statement. ErrConflict if providerID belongs to
	// another user.
	LinkExternal(ctx context.Context, id int64, providerID, name string, avatarURL *string) (*model.User, error)

	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// PostInput carries the writable fields of a post.
type PostInput struct {
	Title      string
	Content    *string
	Date       *string
	Categories []string
}

type PostRepository interface {
	Create(ctx context.Context, authorID int64, in PostInput) (int64, error)

	// GetByID returns the post joined with its author and aggregates.
	// viewerID may be 0 for anonymous reads.
	GetByID(ctx context.Context, id, viewerID int64) (*model.Post, error)
	List(ctx context.Context, opts ListOptions) ([]model.Post, error)

	// UpdateOwned and DeleteOwned run the ownership-checked mutation
	// protocol: NotFound, then Forbidden, then mutate, all in one
	// transaction.
	UpdateOwned(ctx context.Context, id, callerID int64, in PostInput) (*model.Post, error)
	DeleteOwned(ctx context.Context, id, callerID int64) error
}

type CommentRepository interface {
	// Create returns ErrNotFound when postID does not exist.
	Create(ctx context.Context, postID, userID int64, content string) (*model.Comment, error)
	GetByID(ctx context.Context, id int64) (*model.Comment, error)
	ListByPost(ctx context.Context, postID int64, opts ListOptions) ([]model.Comment, error)
	UpdateOwned(ctx context.Context, id, callerID int64, content string) (*model.Comment, error)
	DeleteOwned(ctx context.Context, id, callerID int64) error
}

type LikeRepository interface {
	// Like returns ErrConflict when already liked and ErrNotFound for an
	// unknown post.
	Like(ctx context.Context, postID, userID int64) error
	// Unlike returns ErrNotFound when there is no like to remove.
	Unlike(ctx context.Context, postID, userID int64) error
	Count(ctx context.Context, postID int64) (int, error)
}
