package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/repository"
)

var _ repository.LikeRepository = (*LikeStore)(nil)

// LikeStore persists post_likes. The (user_id, post_id) primary key is what
// guarantees one like per user and post.
type LikeStore struct {
	db *DB
}

func (s *LikeStore) Like(ctx context.Context, postID, userID int64) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO post_likes (user_id, post_id, created_at) VALUES (?, ?, ?)`,
		userID, postID, time.Now().UTC(),
	)
	if err != nil {
		switch kind, _ := classify(err); kind {
		case constraintUnique:
			return apperror.Conflict("like", "post_likes")
		case constraintForeignKey:
			return apperror.NotFound("post", postID)
		}
		return fmt.Errorf("sqlite: liking post %d: %w", postID, err)
	}
	return nil
}

func (s *LikeStore) Unlike(ctx context.Context, postID, userID int64) error {
	res, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM post_likes WHERE user_id = ? AND post_id = ?`,
		userID, postID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unliking post %d: %w", postID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFoundMessage("Like not found.")
	}
	return nil
}

func (s *LikeStore) Count(ctx context.Context, postID int64) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_likes WHERE post_id = ?`, postID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting likes of post %d: %w", postID, err)
	}
	return n, nil
}
