package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sakif/starblog/internal/apperror"
)

// PublicPrefix is the URL path the server mounts the upload directory on.
const PublicPrefix = "/uploads/"

const avatarDir = "avatars"

// Local keeps avatars on disk under <root>/avatars and publishes them as
// /uploads/avatars/<name>.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates the avatar directory under root if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(root, avatarDir), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating upload directory: %w", err)
	}
	return &Local{root: root}, nil
}

// Root is the directory served at PublicPrefix.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) Save(_ context.Context, u Upload) (string, error) {
	ext, err := Validate(u)
	if err != nil {
		return "", err
	}

	name := objectName(ext)
	dst := filepath.Join(l.root, avatarDir, name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", name, err)
	}

	// Read one byte past the limit so an understated Size is still caught.
	n, err := io.Copy(f, io.LimitReader(u.Body, MaxAvatarBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxAvatarBytes {
		os.Remove(dst)
		return "", apperror.ValidationFailed("avatar",
			fmt.Sprintf("Avatar must be at most %d MB.", MaxAvatarBytes>>20))
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}

	return path.Join(PublicPrefix, avatarDir, name), nil
}

// Delete removes a file previously returned by Save. A file that is already
// gone is not an error.
func (l *Local) Delete(_ context.Context, url string) error {
	p, ok := l.pathFor(url)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: deleting %s: %w", url, err)
	}
	return nil
}

func (l *Local) Owns(url string) bool {
	_, ok := l.pathFor(url)
	return ok
}

// pathFor maps "/uploads/avatars/x.png" to "<root>/avatars/x.png". Anything
// outside the avatar directory, including traversal attempts, is rejected.
func (l *Local) pathFor(url string) (string, bool) {
	rest, ok := strings.CutPrefix(url, PublicPrefix+avatarDir+"/")
	if !ok || rest == "" || strings.ContainsAny(rest, `/\`) || rest == "." || rest == ".." {
		return "", false
	}
	return filepath.Join(l.root, avatarDir, rest), true
}
