package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pictogram/internal/model"
)

type commentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create appends a comment. The serial primary key fixes the position in the
// log at insert time, so concurrent appends never race on ordering.
func (r *commentRepository) Create(ctx context.Context, postID, authorID int64, content string) (*model.Comment, error) {
	query := `
		INSERT INTO post_comments (post_id, author_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, post_id, author_id, content, created_at
	`
	var comment model.Comment
	err := r.db.GetContext(ctx, &comment, query, postID, authorID, content)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &comment, nil
}

// ListByPost returns a post's full comment log, oldest first, with author
// identities joined in.
func (r *commentRepository) ListByPost(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := r.queryWithAuthors(ctx, []int64{postID})
	if err != nil {
		return nil, err
	}
	return rows[postID], nil
}

// ListByPosts batches the comment logs of multiple posts in one query.
func (r *commentRepository) ListByPosts(ctx context.Context, postIDs []int64) (map[int64][]model.Comment, error) {
	if len(postIDs) == 0 {
		return map[int64][]model.Comment{}, nil
	}
	return r.queryWithAuthors(ctx, postIDs)
}

func (r *commentRepository) queryWithAuthors(ctx context.Context, postIDs []int64) (map[int64][]model.Comment, error) {
	query := `
		SELECT c.id, c.post_id, c.author_id, c.content, c.created_at,
		       u.id AS "author.id", u.username AS "author.username", u.avatar_url AS "author.avatar_url"
		FROM post_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = ANY($1)
		ORDER BY c.post_id, c.created_at ASC, c.id ASC
	`

	type commentRow struct {
		ID            int64     `db:"id"`
		PostID        int64     `db:"post_id"`
		AuthorID      int64     `db:"author_id"`
		Content       string    `db:"content"`
		CreatedAt     time.Time `db:"created_at"`
		JoinAuthorID  int64     `db:"author.id"`
		JoinUsername  string    `db:"author.username"`
		JoinAvatarURL *string   `db:"author.avatar_url"`
	}

	var rows []commentRow
	err := r.db.SelectContext(ctx, &rows, query, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}

	result := make(map[int64][]model.Comment)
	for _, row := range rows {
		result[row.PostID] = append(result[row.PostID], model.Comment{
			ID:        row.ID,
			PostID:    row.PostID,
			AuthorID:  row.AuthorID,
			Text:      row.Content,
			CreatedAt: row.CreatedAt,
			Author: &model.UserSummary{
				ID:        row.JoinAuthorID,
				Username:  row.JoinUsername,
				AvatarURL: row.JoinAvatarURL,
			},
		})
	}
	return result, nil
}
