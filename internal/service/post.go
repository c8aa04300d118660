package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"pictogram/internal/model"
	"pictogram/internal/queue"
	"pictogram/internal/repository"
)

// PostService handles post creation, deletion, and the like set.
type PostService struct {
	db          *sqlx.DB
	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	publisher   queue.Publisher
}

func NewPostService(db *sqlx.DB, userRepo repository.UserRepository, postRepo repository.PostRepository, commentRepo repository.CommentRepository, publisher queue.Publisher) *PostService {
	return &PostService{
		db:          db,
		userRepo:    userRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		publisher:   publisher,
	}
}

// Create validates and stores a new post, bumping the author's post counter
// in the same transaction, then announces it to the feed workers.
func (s *PostService) Create(ctx context.Context, authorID int64, req *model.CreatePostRequest) (*model.Post, error) {
	imageURL := strings.TrimSpace(req.ImageURL)

	verr := model.NewValidationError()
	if imageURL == "" {
		verr.Add("image_url", "Image URL is required")
	} else if !isHTTPURL(imageURL) {
		verr.Add("image_url", "Image URL must be a valid http(s) URL")
	}
	if utf8.RuneCountInString(req.Caption) > model.MaxPostCaptionLength {
		verr.Add("caption", fmt.Sprintf("Caption must be at most %d characters", model.MaxPostCaptionLength))
	}
	if verr.HasErrors() {
		return nil, verr
	}

	post := &model.Post{
		AuthorID: authorID,
		ImageURL: imageURL,
		Caption:  req.Caption,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.postRepo.Create(ctx, tx, post); err != nil {
		return nil, err
	}
	if err := s.userRepo.IncrementPostCount(ctx, tx, authorID, 1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit post: %w", err)
	}

	if _, err := s.publisher.Publish(ctx, queue.StreamFeed, queue.NewPostCreatedEvent(post.ID, authorID, post.CreatedAt)); err != nil {
		log.Printf("[PostService] publish post_created FAILED: post=%d err=%v", post.ID, err)
	}

	return s.enriched(ctx, post)
}

// GetByID returns a post with author, like set, and comment log attached.
func (s *PostService) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return s.enriched(ctx, post)
}

// Delete removes a post permanently. Only the author may delete it; the
// like set and comment log go with the row.
func (s *PostService) Delete(ctx context.Context, postID, userID int64) error {
	authorID, err := s.postRepo.GetAuthorID(ctx, postID)
	if err != nil {
		return err
	}
	if authorID != userID {
		return model.ErrNotPostOwner
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.postRepo.Delete(ctx, tx, postID); err != nil {
		return err
	}
	if err := s.userRepo.IncrementPostCount(ctx, tx, authorID, -1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	if _, err := s.publisher.Publish(ctx, queue.StreamFeed, queue.NewPostDeletedEvent(postID, authorID)); err != nil {
		log.Printf("[PostService] publish post_deleted FAILED: post=%d err=%v", postID, err)
	}

	return nil
}

// Like adds the user to the post's like set. Liking twice is a no-op.
// Returns the post with its current like set.
func (s *PostService) Like(ctx context.Context, postID, userID int64) (*model.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	if _, err := s.postRepo.Like(ctx, postID, userID); err != nil {
		return nil, err
	}

	return s.enriched(ctx, post)
}

// Unlike removes the user from the post's like set. Removing an absent like
// is a no-op. Returns the post with its current like set.
func (s *PostService) Unlike(ctx context.Context, postID, userID int64) (*model.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	if _, err := s.postRepo.Unlike(ctx, postID, userID); err != nil {
		return nil, err
	}

	return s.enriched(ctx, post)
}

func (s *PostService) enriched(ctx context.Context, post *model.Post) (*model.Post, error) {
	posts, err := hydratePosts(ctx, s.userRepo, s.postRepo, s.commentRepo, []model.Post{*post})
	if err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// isHTTPURL accepts absolute http:// and https:// URLs only.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
