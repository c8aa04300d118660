package model

import (
	"errors"
	"time"
)

// Post represents an image post. Likes are a set of user ids (membership is
// authoritative, not a count) and Comments are the full append-only log in
// insertion order.
type Post struct {
	ID        int64     `db:"id" json:"id"`
	AuthorID  int64     `db:"author_id" json:"author_id"`
	ImageURL  string    `db:"image_url" json:"image_url"`
	Caption   string    `db:"caption" json:"caption"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Joined fields (not in the posts table)
	Author   *UserSummary `json:"author,omitempty"`
	Likes    []int64      `json:"likes"`
	Comments []Comment    `json:"comments"`
}

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	ImageURL string `json:"image_url"`
	Caption  string `json:"caption"`
}

// Pagination is the page/limit metadata attached to every post listing.
type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// PostPage is a page of posts plus pagination metadata. Used by the feed and
// by per-author listings, which share the same contract.
type PostPage struct {
	Posts      []Post     `json:"posts"`
	Pagination Pagination `json:"pagination"`
}

// CommentedPost is a post plus an explicit reference to the comment that was
// just appended, so callers can render it without re-deriving "last element".
type CommentedPost struct {
	Post
	NewComment Comment `json:"new_comment"`
}

const (
	MaxPostCaptionLength = 2200 // Instagram's limit
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrNotPostOwner = errors.New("not the owner of this post")
)
