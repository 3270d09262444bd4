package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
)

var _ repository.CommentRepository = (*CommentStore)(nil)

// CommentStore persists comments. Ownership of a comment is its author's,
// never the post author's.
type CommentStore struct {
	db *DB
}

const commentSelect = `
	SELECT c.id, c.post_id, c.content, c.created_at, c.updated_at,
	       u.id, u.name, u.avatar_url
	FROM comments c
	JOIN users u ON u.id = c.user_id`

// Create inserts a comment; a missing post is reported as NotFound through
// the foreign key.
func (s *CommentStore) Create(ctx context.Context, postID, userID int64, content string) (*model.Comment, error) {
	now := time.Now().UTC()
	res, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO comments (post_id, user_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		postID, userID, content, now, now,
	)
	if err != nil {
		if kind, _ := classify(err); kind == constraintForeignKey {
			return nil, apperror.NotFound("post", postID)
		}
		return nil, fmt.Errorf("sqlite: creating comment on post %d: %w", postID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading new comment id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *CommentStore) GetByID(ctx context.Context, id int64) (*model.Comment, error) {
	return getComment(ctx, s.db.conn, id)
}

// ListByPost returns the comments of a post, newest first. An unknown post
// simply has no comments.
func (s *CommentStore) ListByPost(ctx context.Context, postID int64, opts repository.ListOptions) ([]model.Comment, error) {
	opts = opts.Normalize()

	rows, err := s.db.conn.QueryContext(ctx,
		commentSelect+`
		WHERE c.post_id = ?
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT ? OFFSET ?`,
		postID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of post %d: %w", postID, err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

func (s *CommentStore) UpdateOwned(ctx context.Context, id, callerID int64, content string) (*model.Comment, error) {
	var updated *model.Comment
	err := s.db.runOwned(ctx, id, callerID, ownedMutation{
		resource:   "comment",
		action:     "edit",
		ownerQuery: `SELECT user_id FROM comments WHERE id = ?`,
		mutate: func(ctx context.Context, tx *sql.Tx) (sql.Result, error) {
			return tx.ExecContext(ctx,
				`UPDATE comments SET content = ?, updated_at = ? WHERE id = ?`,
				content, time.Now().UTC(), id,
			)
		},
		reload: func(ctx context.Context, tx *sql.Tx) error {
			c, err := getComment(ctx, tx, id)
			updated = c
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *CommentStore) DeleteOwned(ctx context.Context, id, callerID int64) error {
	return s.db.runOwned(ctx, id, callerID, ownedMutation{
		resource:   "comment",
		action:     "delete",
		ownerQuery: `SELECT user_id FROM comments WHERE id = ?`,
		mutate: func(ctx context.Context, tx *sql.Tx) (sql.Result, error) {
			return tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
		},
	})
}

func getComment(ctx context.Context, q querier, id int64) (*model.Comment, error) {
	c, err := scanComment(q.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %d: %w", id, err)
	}
	return c, nil
}

func scanComment(row scanner) (*model.Comment, error) {
	var (
		c      model.Comment
		name   sql.NullString
		avatar sql.NullString
	)
	if err := row.Scan(&c.ID, &c.PostID, &c.Content, &c.CreatedAt, &c.UpdatedAt,
		&c.User.ID, &name, &avatar); err != nil {
		return nil, err
	}
	c.User.Name = name.String
	c.User.AvatarURL = ptrFromNull(avatar)
	return &c, nil
}
