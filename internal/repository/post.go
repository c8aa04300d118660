package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pictogram/internal/cache"
	"pictogram/internal/model"
)

type postRepository struct {
	db *sqlx.DB
}

func NewPostRepository(db *sqlx.DB) PostRepository {
	return &postRepository{db: db}
}

// Create inserts a new post. Runs inside the caller's transaction so the
// author's post counter moves with it.
func (r *postRepository) Create(ctx context.Context, tx *sqlx.Tx, post *model.Post) error {
	query := `
		INSERT INTO posts (author_id, image_url, caption)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := tx.QueryRowxContext(ctx, query, post.AuthorID, post.ImageURL, post.Caption).
		Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// GetByID retrieves a single post row (no joins).
func (r *postRepository) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	query := `
		SELECT id, author_id, image_url, caption, created_at
		FROM posts
		WHERE id = $1
	`
	var post model.Post
	err := r.db.GetContext(ctx, &post, query, postID)
	if err == sql.ErrNoRows {
		return nil, model.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}

	return &post, nil
}

// GetByIDs retrieves multiple posts and re-orders them to match the input
// order. Used for hydrating feed pages from the cache.
func (r *postRepository) GetByIDs(ctx context.Context, postIDs []int64) ([]model.Post, error) {
	if len(postIDs) == 0 {
		return []model.Post{}, nil
	}

	query := `
		SELECT id, author_id, image_url, caption, created_at
		FROM posts
		WHERE id = ANY($1)
	`
	var posts []model.Post
	err := r.db.SelectContext(ctx, &posts, query, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("get posts by ids: %w", err)
	}

	postsMap := make(map[int64]model.Post, len(posts))
	for _, p := range posts {
		postsMap[p.ID] = p
	}
	ordered := make([]model.Post, 0, len(postIDs))
	for _, id := range postIDs {
		if p, ok := postsMap[id]; ok {
			ordered = append(ordered, p)
		}
	}

	return ordered, nil
}

// Delete removes a post for good. Comments and likes go with it via
// ON DELETE CASCADE. Ownership is checked by the service before this runs.
func (r *postRepository) Delete(ctx context.Context, tx *sqlx.Tx, postID int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrPostNotFound
	}

	return nil
}

// GetAuthorID returns the author of a post (for authorization checks and
// event publishing).
func (r *postRepository) GetAuthorID(ctx context.Context, postID int64) (int64, error) {
	var authorID int64
	err := r.db.GetContext(ctx, &authorID, `SELECT author_id FROM posts WHERE id = $1`, postID)
	if err == sql.ErrNoRows {
		return 0, model.ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get author id: %w", err)
	}
	return authorID, nil
}

// Exists checks if a post exists.
func (r *postRepository) Exists(ctx context.Context, postID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID)
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return exists, nil
}

// ListByAuthors returns one page of posts from the given authors, newest
// first. Ties on created_at break on id so pagination stays deterministic.
func (r *postRepository) ListByAuthors(ctx context.Context, authorIDs []int64, limit, offset int) ([]model.Post, error) {
	if len(authorIDs) == 0 {
		return []model.Post{}, nil
	}

	query := `
		SELECT id, author_id, image_url, caption, created_at
		FROM posts
		WHERE author_id = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	var posts []model.Post
	err := r.db.SelectContext(ctx, &posts, query, pq.Array(authorIDs), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posts by authors: %w", err)
	}
	return posts, nil
}

// CountByAuthors returns the total number of posts from the given authors.
func (r *postRepository) CountByAuthors(ctx context.Context, authorIDs []int64) (int64, error) {
	if len(authorIDs) == 0 {
		return 0, nil
	}

	var total int64
	query := `SELECT COUNT(*) FROM posts WHERE author_id = ANY($1)`
	err := r.db.GetContext(ctx, &total, query, pq.Array(authorIDs))
	if err != nil {
		return 0, fmt.Errorf("count posts by authors: %w", err)
	}
	return total, nil
}

// GetRecentPostsByAuthor returns recent posts by one author as cache scores
// (for follow backfill and unfollow cleanup).
func (r *postRepository) GetRecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.PostScore, error) {
	query := `
		SELECT id, (EXTRACT(EPOCH FROM created_at) * 1000)::bigint AS timestamp
		FROM posts
		WHERE author_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	type row struct {
		ID        int64 `db:"id"`
		Timestamp int64 `db:"timestamp"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, query, authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent posts: %w", err)
	}

	posts := make([]cache.PostScore, len(rows))
	for i, r := range rows {
		posts[i] = cache.PostScore{PostID: r.ID, Timestamp: r.Timestamp}
	}
	return posts, nil
}

// GetFeedPostIDs returns post ids from all given authors for cache warming,
// newest first, up to limit.
func (r *postRepository) GetFeedPostIDs(ctx context.Context, authorIDs []int64, limit int) ([]cache.PostScore, error) {
	if len(authorIDs) == 0 {
		return []cache.PostScore{}, nil
	}

	query := `
		SELECT id, (EXTRACT(EPOCH FROM created_at) * 1000)::bigint AS timestamp
		FROM posts
		WHERE author_id = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	type row struct {
		ID        int64 `db:"id"`
		Timestamp int64 `db:"timestamp"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, query, pq.Array(authorIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("get feed post ids: %w", err)
	}

	posts := make([]cache.PostScore, len(rows))
	for i, r := range rows {
		posts[i] = cache.PostScore{PostID: r.ID, Timestamp: r.Timestamp}
	}
	return posts, nil
}

// Like inserts into the like set. ON CONFLICT DO NOTHING gives set
// semantics: liking twice changes nothing and is not an error.
func (r *postRepository) Like(ctx context.Context, postID, userID int64) (bool, error) {
	query := `
		INSERT INTO post_likes (post_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (post_id, user_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, postID, userID)
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Unlike removes from the like set. Absence is a no-op.
func (r *postRepository) Unlike(ctx context.Context, postID, userID int64) (bool, error) {
	query := `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, postID, userID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetLikeUserIDs returns the like set of a post.
func (r *postRepository) GetLikeUserIDs(ctx context.Context, postID int64) ([]int64, error) {
	query := `SELECT user_id FROM post_likes WHERE post_id = $1 ORDER BY created_at, user_id`
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, query, postID)
	if err != nil {
		return nil, fmt.Errorf("get like user ids: %w", err)
	}
	return ids, nil
}

// GetLikesForPosts returns the like sets of multiple posts in one query.
func (r *postRepository) GetLikesForPosts(ctx context.Context, postIDs []int64) (map[int64][]int64, error) {
	if len(postIDs) == 0 {
		return map[int64][]int64{}, nil
	}

	query := `
		SELECT post_id, user_id
		FROM post_likes
		WHERE post_id = ANY($1)
		ORDER BY post_id, created_at, user_id
	`
	type row struct {
		PostID int64 `db:"post_id"`
		UserID int64 `db:"user_id"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, query, pq.Array(postIDs))
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("get likes for posts: %w", err)
	}

	result := make(map[int64][]int64)
	for _, r := range rows {
		result[r.PostID] = append(result[r.PostID], r.UserID)
	}
	return result, nil
}
