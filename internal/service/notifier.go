package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/realtime"
)

const publishTimeout = 2 * time.Second

// CommentNotifier tells a post's author about comments from other users.
// Delivery is fire-and-forget: errors are logged and an offline author
// simply misses the event.
type CommentNotifier struct {
	pub    realtime.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewCommentNotifier(pub realtime.Publisher, logger *slog.Logger) *CommentNotifier {
	return &CommentNotifier{pub: pub, logger: logger, now: time.Now}
}

// CommentCreated publishes one new_notification event to the post author
// and reports whether it did. Comments on one's own post publish nothing.
func (n *CommentNotifier) CommentCreated(ctx context.Context, post *model.Post, c *model.Comment) bool {
	if post == nil || c == nil || post.Author.ID == 0 || post.Author.ID == c.User.ID {
		return false
	}

	commenter := c.User.Name
	if commenter == "" {
		commenter = "Someone"
	}
	title := post.Title
	if title == "" {
		title = "Post"
	}
	ts := c.CreatedAt
	if ts.IsZero() {
		ts = n.now()
	}

	event := realtime.Event{
		Name: realtime.EventNewNotification,
		Data: model.Notification{
			Message:   fmt.Sprintf(`%s commented on your post "%s"`, commenter, title),
			PostID:    post.ID,
			CommentID: c.ID,
			Timestamp: ts.UTC(),
		},
	}

	// The request may finish before a remote publish does.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.pub.PublishUser(ctx, post.Author.ID, event); err != nil {
		n.logger.Warn("failed to publish comment notification",
			slog.Int64("recipient_id", post.Author.ID),
			slog.Int64("comment_id", c.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
