package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/repository"
)

func TestPostCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@x.com", "alice")

	date := "2024-05-01"
	id, err := db.Posts().Create(ctx, alice.ID, repository.PostInput{Title: "Hi", Date: &date})
	require.NoError(t, err)
	assert.NotZero(t, id)

	p, err := db.Posts().GetByID(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hi", p.Title)
	assert.Nil(t, p.Content)
	assert.Equal(t, &date, p.Date)
	assert.Equal(t, []string{}, p.Categories)
	assert.Equal(t, alice.ID, p.Author.ID)
	assert.Equal(t, "alice", p.Author.Name)
	assert.Equal(t, 0, p.Likes)
	assert.Equal(t, 0, p.CommentCount)
	assert.False(t, p.LikedByCurrentUser)
}

func TestPostGet_UnknownAuthorFallback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	nameless := createTestUser(t, db, "nameless@x.com", "")

	id := createTestPost(t, db, nameless.ID, "untitled author")
	p, err := db.Posts().GetByID(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, UnknownAuthor, p.Author.Name)
}

func TestPostGet_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Posts().GetByID(context.Background(), 404, 0)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPostList_AggregatesAndViewer(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@x.com", "alice")
	bob := createTestUser(t, db, "bob@x.com", "bob")

	first := createTestPost(t, db, alice.ID, "first")
	second := createTestPost(t, db, alice.ID, "second")

	require.NoError(t, db.Likes().Like(ctx, first, alice.ID))
	require.NoError(t, db.Likes().Like(ctx, first, bob.ID))
	_, err := db.Comments().Create(ctx, first, bob.ID, "nice")
	require.NoError(t, err)
	_, err = db.Comments().Create(ctx, first, bob.ID, "really nice")
	require.NoError(t, err)

	posts, err := db.Posts().List(ctx, repository.ListOptions{ViewerID: bob.ID})
	require.NoError(t, err)
	require.Len(t, posts, 2)

	// newest first
	assert.Equal(t, second, posts[0].ID)
	assert.Equal(t, first, posts[1].ID)

	// two likes and two comments must not multiply into four
	assert.Equal(t, 2, posts[1].Likes)
	assert.Equal(t, 2, posts[1].CommentCount)
	assert.True(t, posts[1].LikedByCurrentUser)
	assert.False(t, posts[0].LikedByCurrentUser)
	assert.Equal(t, []string{"go", "sqlite"}, posts[1].Categories)

	anon, err := db.Posts().List(ctx, repository.ListOptions{})
	require.NoError(t, err)
	assert.False(t, anon[1].LikedByCurrentUser)
}

func TestPostList_Pagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@x.com", "alice")
	for i := 0; i < 5; i++ {
		createTestPost(t, db, alice.ID, "post")
	}

	page, err := db.Posts().List(ctx, repository.ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = db.Posts().List(ctx, repository.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestListOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   repository.ListOptions
		want repository.ListOptions
	}{
		{"zero uses default", repository.ListOptions{}, repository.ListOptions{Limit: 20}},
		{"over max is clamped", repository.ListOptions{Limit: 500}, repository.ListOptions{Limit: 100}},
		{"negative offset", repository.ListOptions{Limit: 5, Offset: -3}, repository.ListOptions{Limit: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPostDelete_CascadesToCommentsAndLikes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@x.com", "alice")
	bob := createTestUser(t, db, "bob@x.com", "bob")
	id := createTestPost(t, db, alice.ID, "doomed")

	c, err := db.Comments().Create(ctx, id, bob.ID, "first!")
	require.NoError(t, err)
	require.NoError(t, db.Likes().Like(ctx, id, bob.ID))

	require.NoError(t, db.Posts().DeleteOwned(ctx, id, alice.ID))

	_, err = db.Comments().GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	n, err := db.Likes().Count(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLikes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@x.com", "alice")
	id := createTestPost(t, db, alice.ID, "likeable")

	require.NoError(t, db.Likes().Like(ctx, id, alice.ID))
	assert.ErrorIs(t, db.Likes().Like(ctx, id, alice.ID), apperror.ErrConflict)
	assert.ErrorIs(t, db.Likes().Like(ctx, 9999, alice.ID), apperror.ErrNotFound)

	n, err := db.Likes().Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.Likes().Unlike(ctx, id, alice.ID))
	assert.ErrorIs(t, db.Likes().Unlike(ctx, id, alice.ID), apperror.ErrNotFound)
}

func TestCommentCreate_UnknownPost(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@x.com", "alice")

	_, err := db.Comments().Create(context.Background(), 9999, alice.ID, "hello?")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCommentListByPost(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@x.com", "alice")
	id := createTestPost(t, db, alice.ID, "p")

	c1, err := db.Comments().Create(ctx, id, alice.ID, "one")
	require.NoError(t, err)
	c2, err := db.Comments().Create(ctx, id, alice.ID, "two")
	require.NoError(t, err)

	list, err := db.Comments().ListByPost(ctx, id, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c2.ID, list[0].ID)
	assert.Equal(t, c1.ID, list[1].ID)
	assert.Equal(t, "alice", list[0].User.Name)

	empty, err := db.Comments().ListByPost(ctx, 9999, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
