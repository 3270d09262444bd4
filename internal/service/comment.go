package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
)

const MaxCommentLength = 5000

// CommentService creates comments and notifies the post's author. Only a
// comment's own author may edit or delete it.
type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	notifier *CommentNotifier
	logger   *slog.Logger
}

func NewCommentService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	notifier *CommentNotifier,
	logger *slog.Logger,
) *CommentService {
	return &CommentService{comments: comments, posts: posts, notifier: notifier, logger: logger}
}

// Create adds a comment by userID to postID. The author of the post is
// notified unless they wrote the comment themselves.
func (s *CommentService) Create(ctx context.Context, postID, userID int64, content string) (*model.Comment, error) {
	content, err := cleanComment(content)
	if err != nil {
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, postID, 0)
	if err != nil {
		return nil, err
	}

	c, err := s.comments.Create(ctx, postID, userID, content)
	if err != nil {
		return nil, fmt.Errorf("service/comment: creating comment on post %d: %w", postID, err)
	}

	s.logger.Info("comment created",
		slog.Int64("comment_id", c.ID),
		slog.Int64("post_id", postID),
	)

	if s.notifier != nil {
		s.notifier.CommentCreated(ctx, post, c)
	}
	return c, nil
}

// List returns a post's comments newest first. An unknown post has none.
func (s *CommentService) List(ctx context.Context, postID int64, opts repository.ListOptions) ([]model.Comment, error) {
	comments, err := s.comments.ListByPost(ctx, postID, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("service/comment: listing comments of post %d: %w", postID, err)
	}
	return comments, nil
}

func (s *CommentService) Update(ctx context.Context, id, callerID int64, content string) (*model.Comment, error) {
	content, err := cleanComment(content)
	if err != nil {
		return nil, err
	}
	c, err := s.comments.UpdateOwned(ctx, id, callerID, content)
	if err != nil {
		return nil, err
	}
	s.logger.Info("comment updated", slog.Int64("comment_id", id))
	return c, nil
}

func (s *CommentService) Delete(ctx context.Context, id, callerID int64) error {
	if err := s.comments.DeleteOwned(ctx, id, callerID); err != nil {
		return err
	}
	s.logger.Info("comment deleted", slog.Int64("comment_id", id))
	return nil
}

func cleanComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperror.ValidationFailed("content", "Comment content cannot be empty.")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return "", apperror.ValidationFailed("content",
			fmt.Sprintf("Comment must be %d characters or less.", MaxCommentLength))
	}
	return content, nil
}
