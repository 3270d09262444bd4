// Package storage saves user avatars and hands back the public URL stored
// in users.avatar_url.
//
// Two backends share the Store interface: Local (files served by the HTTP
// server under /uploads/) and S3 (any S3-compatible bucket, MinIO included).
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/starblog/internal/apperror"
)

// MaxAvatarBytes bounds a single avatar upload.
const MaxAvatarBytes = 5 << 20

// Upload is one file taken from a multipart form.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists avatars.
type Store interface {
	// Save stores u under a fresh name and returns its public URL.
	Save(ctx context.Context, u Upload) (string, error)

	// Delete removes the object behind url. URLs the store does not own
	// (external avatars such as Google profile pictures) are left alone.
	Delete(ctx context.Context, url string) error

	// Owns reports whether url points into this store.
	Owns(url string) bool
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Validate checks size and content type and returns the file extension to
// store the avatar under.
func Validate(u Upload) (string, error) {
	if u.Body == nil {
		return "", apperror.ValidationFailed("avatar", "Avatar file is empty.")
	}
	if u.Size > MaxAvatarBytes {
		return "", apperror.ValidationFailed("avatar",
			fmt.Sprintf("Avatar must be at most %d MB.", MaxAvatarBytes>>20))
	}
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := allowedTypes[ct]
	if !ok {
		return "", apperror.ValidationFailed("avatar", "Only JPEG, PNG, GIF and WebP images are allowed.")
	}
	return ext, nil
}

// objectName returns a unique, sortable file name such as
// "avatar-cv37rs3pp9olc6atsptg.png".
func objectName(ext string) string {
	return "avatar-" + xid.New().String() + ext
}
