package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"pictogram/internal/cache"
	"pictogram/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetSummariesByIDs batches the minimal identities used to decorate
	// posts and comments.
	GetSummariesByIDs(ctx context.Context, ids []int64) (map[int64]*model.UserSummary, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	IncrementFollowerCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error
	IncrementFollowingCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error
	IncrementPostCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error
}

type FollowRepository interface {
	// Create inserts the edge. Returns false when the edge already exists.
	Create(ctx context.Context, tx *sqlx.Tx, followerID, followeeID int64) (bool, error)
	// Delete removes the edge. Returns false when the edge was absent,
	// which is not an error (unfollow is idempotent).
	Delete(ctx context.Context, tx *sqlx.Tx, followerID, followeeID int64) (bool, error)
	Exists(ctx context.Context, followerID, followeeID int64) (bool, error)
	GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error)
	GetFolloweeIDs(ctx context.Context, userID int64) ([]int64, error)
}

type PostRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, post *model.Post) error
	GetByID(ctx context.Context, postID int64) (*model.Post, error)
	// GetByIDs returns posts in the same order as the input ids.
	GetByIDs(ctx context.Context, postIDs []int64) ([]model.Post, error)
	Delete(ctx context.Context, tx *sqlx.Tx, postID int64) error
	GetAuthorID(ctx context.Context, postID int64) (int64, error)
	Exists(ctx context.Context, postID int64) (bool, error)

	// Reverse-chronological listings shared by the feed and profile views.
	ListByAuthors(ctx context.Context, authorIDs []int64, limit, offset int) ([]model.Post, error)
	CountByAuthors(ctx context.Context, authorIDs []int64) (int64, error)

	// Feed-cache support
	GetRecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.PostScore, error)
	GetFeedPostIDs(ctx context.Context, authorIDs []int64, limit int) ([]cache.PostScore, error)

	// Like set. Insert/delete are conditional so repeated calls are no-ops;
	// the bool reports whether a row actually changed.
	Like(ctx context.Context, postID, userID int64) (bool, error)
	Unlike(ctx context.Context, postID, userID int64) (bool, error)
	GetLikeUserIDs(ctx context.Context, postID int64) ([]int64, error)
	GetLikesForPosts(ctx context.Context, postIDs []int64) (map[int64][]int64, error)
}

type CommentRepository interface {
	// Create appends a comment to the post's log.
	Create(ctx context.Context, postID, authorID int64, content string) (*model.Comment, error)
	// ListByPost returns the full comment log in insertion order with
	// author identities attached.
	ListByPost(ctx context.Context, postID int64) ([]model.Comment, error)
	ListByPosts(ctx context.Context, postIDs []int64) (map[int64][]model.Comment, error)
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}
