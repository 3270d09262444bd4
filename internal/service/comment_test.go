package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/realtime"
	"github.com/sakif/starblog/internal/repository"
)

type commentFixture struct {
	svc      *CommentService
	posts    *fakePostRepo
	comments *fakeCommentRepo
	pub      *recordingPublisher
	postID   int64 // authored by user 1
}

func newCommentFixture(t *testing.T) *commentFixture {
	t.Helper()
	posts := newFakePostRepo()
	comments := newFakeCommentRepo(posts)
	pub := newRecordingPublisher()
	logger := testLogger()

	postID, err := posts.Create(context.Background(), 1, repository.PostInput{Title: "Hi"})
	require.NoError(t, err)

	return &commentFixture{
		svc:      NewCommentService(comments, posts, NewCommentNotifier(pub, logger), logger),
		posts:    posts,
		comments: comments,
		pub:      pub,
		postID:   postID,
	}
}

func TestCommentCreate_Validation(t *testing.T) {
	f := newCommentFixture(t)

	for _, content := range []string{"", "   \n", strings.Repeat("x", MaxCommentLength+1)} {
		_, err := f.svc.Create(context.Background(), f.postID, 2, content)
		assert.ErrorIs(t, err, apperror.ErrValidation)
	}
	assert.Empty(t, f.comments.comments)
	assert.Zero(t, f.pub.total())
}

func TestCommentCreate_UnknownPost(t *testing.T) {
	f := newCommentFixture(t)

	_, err := f.svc.Create(context.Background(), 999, 2, "hello")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Zero(t, f.pub.total())
}

func TestCommentCreate_NotifiesPostAuthorOnce(t *testing.T) {
	f := newCommentFixture(t)

	c, err := f.svc.Create(context.Background(), f.postID, 2, "  nice post  ")
	require.NoError(t, err)
	assert.Equal(t, "nice post", c.Content)

	require.Len(t, f.pub.events[1], 1)
	assert.Equal(t, 1, f.pub.total())

	e := f.pub.events[1][0]
	assert.Equal(t, realtime.EventNewNotification, e.Name)
	n, ok := e.Data.(model.Notification)
	require.True(t, ok)
	assert.Equal(t, `user-2 commented on your post "Hi"`, n.Message)
	assert.Equal(t, f.postID, n.PostID)
	assert.Equal(t, c.ID, n.CommentID)
	assert.Equal(t, c.CreatedAt, n.Timestamp)
}

func TestCommentCreate_SelfCommentIsSilent(t *testing.T) {
	f := newCommentFixture(t)

	_, err := f.svc.Create(context.Background(), f.postID, 1, "replying to myself")
	require.NoError(t, err)
	assert.Zero(t, f.pub.total())
}

func TestCommentCreate_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newCommentFixture(t)
	f.pub.err = errDB

	c, err := f.svc.Create(context.Background(), f.postID, 2, "hello")
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
}

func TestCommentOwnership_IsTheCommentAuthorOnly(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.postID, 2, "by user 2")
	require.NoError(t, err)

	// user 1 owns the post, not the comment
	_, err = f.svc.Update(ctx, c.ID, 1, "moderated")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, c.ID, 1), apperror.ErrForbidden)
	assert.Equal(t, "by user 2", f.comments.comments[c.ID].Content)

	_, err = f.svc.Update(ctx, c.ID, 2, "  ")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	updated, err := f.svc.Update(ctx, c.ID, 2, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)

	require.NoError(t, f.svc.Delete(ctx, c.ID, 2))
	assert.ErrorIs(t, f.svc.Delete(ctx, c.ID, 2), apperror.ErrNotFound)
}

func TestCommentList(t *testing.T) {
	f := newCommentFixture(t)
	ctx := context.Background()

	for _, s := range []string{"first", "second"} {
		_, err := f.svc.Create(ctx, f.postID, 2, s)
		require.NoError(t, err)
	}

	got, err := f.svc.List(ctx, f.postID, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Content)

	got, err = f.svc.List(ctx, 999, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
