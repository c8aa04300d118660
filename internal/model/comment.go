package model

import "time"

// Comment is one entry in a post's comment log. Immutable once appended.
type Comment struct {
	ID        int64        `db:"id" json:"id"`
	PostID    int64        `db:"post_id" json:"-"`
	AuthorID  int64        `db:"author_id" json:"-"`
	Text      string       `db:"content" json:"text"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	Author    *UserSummary `json:"author,omitempty"` // Joined field
}

// AddCommentRequest is the request body for appending a comment.
type AddCommentRequest struct {
	Text string `json:"text"`
}
