package service

import (
	"context"
	"fmt"

	"pictogram/internal/model"
	"pictogram/internal/repository"
)

// hydratePosts decorates bare post rows with author identity, the like set,
// and the full comment log. Three batched queries regardless of page size.
func hydratePosts(ctx context.Context, userRepo repository.UserRepository, postRepo repository.PostRepository, commentRepo repository.CommentRepository, posts []model.Post) ([]model.Post, error) {
	if len(posts) == 0 {
		return []model.Post{}, nil
	}

	postIDs := make([]int64, len(posts))
	authorIDs := make([]int64, 0, len(posts))
	seen := make(map[int64]bool)
	for i, p := range posts {
		postIDs[i] = p.ID
		if !seen[p.AuthorID] {
			seen[p.AuthorID] = true
			authorIDs = append(authorIDs, p.AuthorID)
		}
	}

	authors, err := userRepo.GetSummariesByIDs(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate authors: %w", err)
	}

	likes, err := postRepo.GetLikesForPosts(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate likes: %w", err)
	}

	comments, err := commentRepo.ListByPosts(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate comments: %w", err)
	}

	for i := range posts {
		posts[i].Author = authors[posts[i].AuthorID]
		posts[i].Likes = likes[posts[i].ID]
		if posts[i].Likes == nil {
			posts[i].Likes = []int64{}
		}
		posts[i].Comments = comments[posts[i].ID]
		if posts[i].Comments == nil {
			posts[i].Comments = []model.Comment{}
		}
	}

	return posts, nil
}
