package service

import (
	"context"
	"strings"

	"pictogram/internal/model"
	"pictogram/internal/repository"
)

// CommentService appends to and reads the per-post comment log. Comments are
// never edited or deleted.
type CommentService struct {
	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
}

func NewCommentService(userRepo repository.UserRepository, postRepo repository.PostRepository, commentRepo repository.CommentRepository) *CommentService {
	return &CommentService{
		userRepo:    userRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
	}
}

// AddComment appends a comment to the post's log and returns the updated
// post along with a direct reference to the comment just added.
func (s *CommentService) AddComment(ctx context.Context, postID, authorID int64, req *model.AddCommentRequest) (*model.CommentedPost, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		verr := model.NewValidationError()
		verr.Add("text", "Comment text is required")
		return nil, verr
	}

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment, err := s.commentRepo.Create(ctx, postID, authorID, text)
	if err != nil {
		return nil, err
	}

	posts, err := hydratePosts(ctx, s.userRepo, s.postRepo, s.commentRepo, []model.Post{*post})
	if err != nil {
		return nil, err
	}
	enriched := posts[0]

	// The hydrated log already contains the new comment (it was committed
	// before the read); pull the decorated copy so Author is attached.
	newComment := *comment
	for i := range enriched.Comments {
		if enriched.Comments[i].ID == comment.ID {
			newComment = enriched.Comments[i]
			break
		}
	}

	return &model.CommentedPost{Post: enriched, NewComment: newComment}, nil
}

// ListComments returns a post's full comment log in insertion order.
func (s *CommentService) ListComments(ctx context.Context, postID int64) ([]model.Comment, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	return s.commentRepo.ListByPost(ctx, postID)
}
