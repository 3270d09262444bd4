package model

import "time"

// Post is a blog entry owned by exactly one author.
//
// Likes and CommentCount are aggregates computed by the store; they are not
// columns. LikedByCurrentUser is only meaningful when the read was made with
// a principal attached.
type Post struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Content            *string    `json:"content"`
	ContentHTML        string     `json:"contentHtml,omitempty"`
	Date               *string    `json:"date"`
	Categories         []string   `json:"categories"`
	Author             PublicUser `json:"author"`
	Likes              int        `json:"likes"`
	CommentCount       int        `json:"commentCount"`
	LikedByCurrentUser bool       `json:"likedByCurrentUser"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Comment belongs to one post and one author. Only the author may edit or
// delete it; the post's author has no moderation rights over it.
type Comment struct {
	ID        int64      `json:"id"`
	PostID    int64      `json:"postId"`
	Content   string     `json:"content"`
	User      PublicUser `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Notification is the payload of a "new_notification" socket event.
type Notification struct {
	Message   string    `json:"message"`
	PostID    int64     `json:"postId"`
	CommentID int64     `json:"commentId"`
	Timestamp time.Time `json:"timestamp"`
}
