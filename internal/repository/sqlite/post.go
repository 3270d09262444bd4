package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
)

var _ repository.PostRepository = (*PostStore)(nil)

// UnknownAuthor is shown when the author row carries no name.
const UnknownAuthor = "Unknown Author"

// PostStore persists posts. Likes and comment counts are computed with
// correlated subqueries rather than a GROUP BY over two LEFT JOINs, which
// would multiply rows.
type PostStore struct {
	db *DB
}

// postSelect takes the viewer id as its first argument (0 for anonymous).
const postSelect = `
	SELECT p.id, p.title, p.content, p.date, p.categories, p.created_at, p.updated_at,
	       p.author_id, u.name, u.avatar_url,
	       (SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = p.id),
	       (SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
	       EXISTS (SELECT 1 FROM post_likes pl WHERE pl.post_id = p.id AND pl.user_id = ?)
	FROM posts p
	LEFT JOIN users u ON u.id = p.author_id`

func (s *PostStore) Create(ctx context.Context, authorID int64, in repository.PostInput) (int64, error) {
	cats, err := encodeCategories(in.Categories)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO posts (author_id, title, content, date, categories, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		authorID, in.Title, in.Content, in.Date, cats, now, now,
	)
	if err != nil {
		if kind, _ := classify(err); kind == constraintForeignKey {
			return 0, apperror.NotFound("user", authorID)
		}
		return 0, fmt.Errorf("sqlite: creating post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading new post id: %w", err)
	}
	return id, nil
}

func (s *PostStore) GetByID(ctx context.Context, id, viewerID int64) (*model.Post, error) {
	return getPost(ctx, s.db.conn, id, viewerID)
}

// List returns posts newest first.
func (s *PostStore) List(ctx context.Context, opts repository.ListOptions) ([]model.Post, error) {
	opts = opts.Normalize()

	rows, err := s.db.conn.QueryContext(ctx,
		postSelect+`
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ? OFFSET ?`,
		opts.ViewerID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0, opts.Limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}
	return posts, nil
}

// UpdateOwned replaces every writable field of the post. The returned post
// is read inside the same transaction.
func (s *PostStore) UpdateOwned(ctx context.Context, id, callerID int64, in repository.PostInput) (*model.Post, error) {
	cats, err := encodeCategories(in.Categories)
	if err != nil {
		return nil, err
	}

	var updated *model.Post
	err = s.db.runOwned(ctx, id, callerID, ownedMutation{
		resource:   "post",
		action:     "edit",
		ownerQuery: `SELECT author_id FROM posts WHERE id = ?`,
		mutate: func(ctx context.Context, tx *sql.Tx) (sql.Result, error) {
			return tx.ExecContext(ctx,
				`UPDATE posts SET title = ?, content = ?, date = ?, categories = ?, updated_at = ?
				 WHERE id = ?`,
				in.Title, in.Content, in.Date, cats, time.Now().UTC(), id,
			)
		},
		reload: func(ctx context.Context, tx *sql.Tx) error {
			p, err := getPost(ctx, tx, id, callerID)
			updated = p
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteOwned removes the post; comments and likes go with it through
// ON DELETE CASCADE.
func (s *PostStore) DeleteOwned(ctx context.Context, id, callerID int64) error {
	return s.db.runOwned(ctx, id, callerID, ownedMutation{
		resource:   "post",
		action:     "delete",
		ownerQuery: `SELECT author_id FROM posts WHERE id = ?`,
		mutate: func(ctx context.Context, tx *sql.Tx) (sql.Result, error) {
			return tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		},
	})
}

func getPost(ctx context.Context, q querier, id, viewerID int64) (*model.Post, error) {
	p, err := scanPost(q.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, viewerID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}
	return p, nil
}

func scanPost(row scanner) (*model.Post, error) {
	var (
		p          model.Post
		content    sql.NullString
		date       sql.NullString
		categories string
		authorName sql.NullString
		avatar     sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Title, &content, &date, &categories, &p.CreatedAt, &p.UpdatedAt,
		&p.Author.ID, &authorName, &avatar,
		&p.Likes, &p.CommentCount, &p.LikedByCurrentUser,
	)
	if err != nil {
		return nil, err
	}

	p.Content = ptrFromNull(content)
	p.Date = ptrFromNull(date)
	p.Author.Name = authorName.String
	if p.Author.Name == "" {
		p.Author.Name = UnknownAuthor
	}
	p.Author.AvatarURL = ptrFromNull(avatar)

	p.Categories = []string{}
	if categories != "" {
		if err := json.Unmarshal([]byte(categories), &p.Categories); err != nil {
			return nil, fmt.Errorf("decoding categories of post %d: %w", p.ID, err)
		}
	}
	return &p, nil
}

func encodeCategories(cats []string) (string, error) {
	if cats == nil {
		cats = []string{}
	}
	b, err := json.Marshal(cats)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding categories: %w", err)
	}
	return string(b), nil
}
