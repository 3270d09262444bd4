package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/render"
	"github.com/sakif/starblog/internal/repository"
)

const (
	MaxTitleLength    = 200
	MaxCategories     = 10
	MaxCategoryLength = 40

	// DateLayout is the accepted format of a post's publish date.
	DateLayout = "2006-01-02"
)

// PostService validates post input and enforces that only the author edits
// or deletes a post. The ownership check itself runs in the repository,
// inside the same transaction as the write.
type PostService struct {
	posts  repository.PostRepository
	likes  repository.LikeRepository
	md     *render.Markdown
	logger *slog.Logger
}

func NewPostService(posts repository.PostRepository, likes repository.LikeRepository, md *render.Markdown, logger *slog.Logger) *PostService {
	return &PostService{posts: posts, likes: likes, md: md, logger: logger}
}

// Create stores a post authored by authorID and returns its id.
func (s *PostService) Create(ctx context.Context, authorID int64, in repository.PostInput) (int64, error) {
	in, err := cleanPostInput(in)
	if err != nil {
		return 0, err
	}

	id, err := s.posts.Create(ctx, authorID, in)
	if err != nil {
		return 0, fmt.Errorf("service/post: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.Int64("post_id", id),
		slog.Int64("author_id", authorID),
	)
	return id, nil
}

// Get returns one post with its Markdown body rendered. viewerID is 0 for
// anonymous readers.
func (s *PostService) Get(ctx context.Context, id, viewerID int64) (*model.Post, error) {
	p, err := s.posts.GetByID(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	s.renderBody(p)
	return p, nil
}

func (s *PostService) List(ctx context.Context, opts repository.ListOptions) ([]model.Post, error) {
	posts, err := s.posts.List(ctx, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts: %w", err)
	}
	return posts, nil
}

// Update replaces the post's fields. NotFound and Forbidden come from the
// ownership check.
func (s *PostService) Update(ctx context.Context, id, callerID int64, in repository.PostInput) (*model.Post, error) {
	in, err := cleanPostInput(in)
	if err != nil {
		return nil, err
	}

	p, err := s.posts.UpdateOwned(ctx, id, callerID, in)
	if err != nil {
		return nil, err
	}
	s.renderBody(p)

	s.logger.Info("post updated", slog.Int64("post_id", id))
	return p, nil
}

func (s *PostService) Delete(ctx context.Context, id, callerID int64) error {
	if err := s.posts.DeleteOwned(ctx, id, callerID); err != nil {
		return err
	}
	s.logger.Info("post deleted", slog.Int64("post_id", id))
	return nil
}

// Like records that userID likes postID and returns the new like count.
func (s *PostService) Like(ctx context.Context, postID, userID int64) (int, error) {
	if err := s.likes.Like(ctx, postID, userID); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return 0, apperror.ConflictMessage("You have already liked this post.")
		}
		return 0, err
	}
	return s.likes.Count(ctx, postID)
}

// Unlike removes the like and returns the new like count.
func (s *PostService) Unlike(ctx context.Context, postID, userID int64) (int, error) {
	if err := s.likes.Unlike(ctx, postID, userID); err != nil {
		return 0, err
	}
	return s.likes.Count(ctx, postID)
}

// renderBody fills ContentHTML. A render failure leaves it empty; the raw
// Markdown is still returned.
func (s *PostService) renderBody(p *model.Post) {
	if p.Content == nil || s.md == nil {
		return
	}
	html, err := s.md.Render(*p.Content)
	if err != nil {
		s.logger.Warn("failed to render post body",
			slog.Int64("post_id", p.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	p.ContentHTML = html
}

func cleanPostInput(in repository.PostInput) (repository.PostInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, apperror.ValidationFailed("title", "Title is required.")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return in, apperror.ValidationFailed("title",
			fmt.Sprintf("Title must be %d characters or less.", MaxTitleLength))
	}

	if in.Date != nil {
		d := strings.TrimSpace(*in.Date)
		if d == "" {
			in.Date = nil
		} else {
			if _, err := time.Parse(DateLayout, d); err != nil {
				return in, apperror.ValidationFailed("date", "Date must be in YYYY-MM-DD format.")
			}
			in.Date = &d
		}
	}

	cats := make([]string, 0, len(in.Categories))
	seen := make(map[string]bool, len(in.Categories))
	for _, c := range in.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if utf8.RuneCountInString(c) > MaxCategoryLength {
			return in, apperror.ValidationFailed("categories",
				fmt.Sprintf("Categories must be %d characters or less.", MaxCategoryLength))
		}
		seen[c] = true
		cats = append(cats, c)
	}
	if len(cats) > MaxCategories {
		return in, apperror.ValidationFailed("categories",
			fmt.Sprintf("A post can have at most %d categories.", MaxCategories))
	}
	in.Categories = cats
	return in, nil
}
