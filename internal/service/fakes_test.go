package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/auth"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/realtime"
	"github.com/sakif/starblog/internal/repository"
	"github.com/sakif/starblog/internal/storage"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory implementations of the repository interfaces. Each
// one stores copies so a test cannot mutate "stored" rows by accident.

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64

	// count of calls that write, so tests can assert compare-then-write
	writes int

	createErr error
	updateErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	ext, hasExt := model.ExternalID(u.Credential)
	for _, existing := range f.users {
		if existing.Email == email {
			return apperror.Conflict("user", "email")
		}
		if id, ok := model.ExternalID(existing.Credential); hasExt && ok && id == ext {
			return apperror.Conflict("user", "google_id")
		}
	}
	f.nextID++
	f.writes++
	u.ID = f.nextID
	u.Email = email
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFoundMessage("User not found.")
}

func (f *fakeUserRepo) GetByExternalID(_ context.Context, providerID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if id, ok := model.ExternalID(u.Credential); ok && id == providerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFoundMessage("User not found.")
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id int64, name string, avatarURL *string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	f.writes++
	u.Name = name
	u.AvatarURL = avatarURL
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) LinkExternal(_ context.Context, id int64, providerID, name string, avatarURL *string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	f.writes++
	// same rebuild as the sqlite store: password column kept, google_id set
	hash, _ := model.PasswordHash(u.Credential)
	u.Credential = model.CredentialFrom(hash, providerID)
	u.Name = name
	u.AvatarURL = avatarURL
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	f.writes++
	providerID, _ := model.ExternalID(u.Credential)
	u.Credential = model.CredentialFrom(hash, providerID)
	return nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakePostRepo keeps posts and honors the ownership contract: NotFound
// before Forbidden.
type fakePostRepo struct {
	posts  map[int64]*model.Post
	nextID int64
}

var _ repository.PostRepository = (*fakePostRepo)(nil)

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[int64]*model.Post)}
}

func (f *fakePostRepo) Create(_ context.Context, authorID int64, in repository.PostInput) (int64, error) {
	f.nextID++
	f.posts[f.nextID] = &model.Post{
		ID:         f.nextID,
		Title:      in.Title,
		Content:    in.Content,
		Date:       in.Date,
		Categories: in.Categories,
		Author:     model.PublicUser{ID: authorID, Name: fmt.Sprintf("user-%d", authorID)},
	}
	return f.nextID, nil
}

func (f *fakePostRepo) GetByID(_ context.Context, id, _ int64) (*model.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePostRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Post, error) {
	out := make([]model.Post, 0, len(f.posts))
	for id := int64(1); id <= f.nextID; id++ {
		if p, ok := f.posts[id]; ok {
			out = append(out, *p)
		}
	}
	if opts.Offset >= len(out) {
		return []model.Post{}, nil
	}
	out = out[opts.Offset:]
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakePostRepo) owned(id, callerID int64) (*model.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	if p.Author.ID != callerID {
		return nil, apperror.Forbidden("User not authorized to edit this post.")
	}
	return p, nil
}

func (f *fakePostRepo) UpdateOwned(_ context.Context, id, callerID int64, in repository.PostInput) (*model.Post, error) {
	p, err := f.owned(id, callerID)
	if err != nil {
		return nil, err
	}
	p.Title, p.Content, p.Date, p.Categories = in.Title, in.Content, in.Date, in.Categories
	cp := *p
	return &cp, nil
}

func (f *fakePostRepo) DeleteOwned(_ context.Context, id, callerID int64) error {
	if _, err := f.owned(id, callerID); err != nil {
		return err
	}
	delete(f.posts, id)
	return nil
}

type fakeCommentRepo struct {
	comments map[int64]*model.Comment
	nextID   int64
	posts    *fakePostRepo
}

var _ repository.CommentRepository = (*fakeCommentRepo)(nil)

func newFakeCommentRepo(posts *fakePostRepo) *fakeCommentRepo {
	return &fakeCommentRepo{comments: make(map[int64]*model.Comment), posts: posts}
}

func (f *fakeCommentRepo) Create(_ context.Context, postID, userID int64, content string) (*model.Comment, error) {
	if _, ok := f.posts.posts[postID]; !ok {
		return nil, apperror.NotFound("post", postID)
	}
	f.nextID++
	c := &model.Comment{
		ID:        f.nextID,
		PostID:    postID,
		Content:   content,
		User:      model.PublicUser{ID: userID, Name: fmt.Sprintf("user-%d", userID)},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.comments[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeCommentRepo) GetByID(_ context.Context, id int64) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCommentRepo) ListByPost(_ context.Context, postID int64, _ repository.ListOptions) ([]model.Comment, error) {
	out := make([]model.Comment, 0)
	for id := f.nextID; id >= 1; id-- {
		if c, ok := f.comments[id]; ok && c.PostID == postID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCommentRepo) owned(id, callerID int64) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	if c.User.ID != callerID {
		return nil, apperror.Forbidden("User not authorized to edit this comment.")
	}
	return c, nil
}

func (f *fakeCommentRepo) UpdateOwned(_ context.Context, id, callerID int64, content string) (*model.Comment, error) {
	c, err := f.owned(id, callerID)
	if err != nil {
		return nil, err
	}
	c.Content = content
	cp := *c
	return &cp, nil
}

func (f *fakeCommentRepo) DeleteOwned(_ context.Context, id, callerID int64) error {
	if _, err := f.owned(id, callerID); err != nil {
		return err
	}
	delete(f.comments, id)
	return nil
}

type likeKey struct{ post, user int64 }

type fakeLikeRepo struct {
	likes map[likeKey]bool
	posts *fakePostRepo
}

var _ repository.LikeRepository = (*fakeLikeRepo)(nil)

func newFakeLikeRepo(posts *fakePostRepo) *fakeLikeRepo {
	return &fakeLikeRepo{likes: make(map[likeKey]bool), posts: posts}
}

func (f *fakeLikeRepo) Like(_ context.Context, postID, userID int64) error {
	if _, ok := f.posts.posts[postID]; !ok {
		return apperror.NotFound("post", postID)
	}
	k := likeKey{postID, userID}
	if f.likes[k] {
		return apperror.Conflict("like", "post_likes")
	}
	f.likes[k] = true
	return nil
}

func (f *fakeLikeRepo) Unlike(_ context.Context, postID, userID int64) error {
	k := likeKey{postID, userID}
	if !f.likes[k] {
		return apperror.NotFoundMessage("Like not found.")
	}
	delete(f.likes, k)
	return nil
}

func (f *fakeLikeRepo) Count(_ context.Context, postID int64) (int, error) {
	n := 0
	for k := range f.likes {
		if k.post == postID {
			n++
		}
	}
	return n, nil
}

// fakeStore is an avatar store that records what it saved and deleted.
type fakeStore struct {
	saved   []string
	deleted []string
	n       int

	saveErr   error
	deleteErr error
}

var _ storage.Store = (*fakeStore)(nil)

func (f *fakeStore) Save(_ context.Context, u storage.Upload) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if _, err := io.ReadAll(u.Body); err != nil {
		return "", err
	}
	f.n++
	url := fmt.Sprintf("/uploads/avatars/avatar-%d.png", f.n)
	f.saved = append(f.saved, url)
	return url, nil
}

func (f *fakeStore) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return f.deleteErr
}

func (f *fakeStore) Owns(url string) bool {
	return strings.HasPrefix(url, "/uploads/avatars/")
}

// recordingPublisher captures published events per user.
type recordingPublisher struct {
	mu     sync.Mutex
	events map[int64][]realtime.Event
	err    error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[int64][]realtime.Event)}
}

func (p *recordingPublisher) PublishUser(ctx context.Context, userID int64, e realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.err != nil {
		return p.err
	}
	p.events[userID] = append(p.events[userID], e)
	return nil
}

func (p *recordingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, evs := range p.events {
		n += len(evs)
	}
	return n
}

// =========================================================================
// HELPERS
// =========================================================================

var errDB = errors.New("database is on fire")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	return ts
}

func testPasswords() *auth.PasswordService {
	return auth.NewPasswordServiceForTest(bcrypt.MinCost)
}

func pngUpload() *storage.Upload {
	body := "png bytes"
	return &storage.Upload{
		Filename:    "me.png",
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

// seedPasswordUser stores a password account directly in the fake.
func seedPasswordUser(t *testing.T, repo *fakeUserRepo, email, name, password string) *model.User {
	t.Helper()
	hash, err := testPasswords().Hash(password)
	require.NoError(t, err)
	u := &model.User{Email: email, Name: name, Credential: model.PasswordCredential{Hash: hash}}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}
