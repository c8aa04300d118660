package service

import (
	"context"
	"fmt"
	"log"

	"pictogram/internal/cache"
	"pictogram/internal/model"
	"pictogram/internal/repository"
)

const (
	// DefaultFeedPage is used when the caller omits the page parameter.
	DefaultFeedPage = 1

	// DefaultFeedLimit is used when the caller omits the limit parameter.
	DefaultFeedLimit = 10

	// MaxFeedLimit caps the page size.
	MaxFeedLimit = 100
)

// FeedService assembles reverse-chronological feeds. The page window is
// served from the Redis feed cache when it covers the window; the total and
// any window beyond the cache come from Postgres, which stays the source of
// truth throughout.
type FeedService struct {
	userRepo    repository.UserRepository
	followRepo  repository.FollowRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	feedCache   cache.FeedCache
}

func NewFeedService(userRepo repository.UserRepository, followRepo repository.FollowRepository, postRepo repository.PostRepository, commentRepo repository.CommentRepository, feedCache cache.FeedCache) *FeedService {
	return &FeedService{
		userRepo:    userRepo,
		followRepo:  followRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		feedCache:   feedCache,
	}
}

// GetFeed returns one page of the user's feed: posts by everyone they
// follow plus their own, newest first.
func (s *FeedService) GetFeed(ctx context.Context, userID int64, page, limit int) (*model.PostPage, error) {
	page, limit = normalizePage(page, limit)

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	followees, err := s.followRepo.GetFolloweeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get followees: %w", err)
	}
	// The user's own posts belong in their feed.
	authorIDs := append(followees, userID)

	total, err := s.postRepo.CountByAuthors(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("count feed posts: %w", err)
	}

	offset := (page - 1) * limit

	var posts []model.Post
	if ids, ok := s.windowFromCache(ctx, userID, authorIDs, total, offset, limit); ok {
		posts, err = s.postRepo.GetByIDs(ctx, ids)
	} else {
		posts, err = s.postRepo.ListByAuthors(ctx, authorIDs, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	posts, err = hydratePosts(ctx, s.userRepo, s.postRepo, s.commentRepo, posts)
	if err != nil {
		return nil, err
	}

	return &model.PostPage{
		Posts: posts,
		Pagination: model.Pagination{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasMore: int64(page*limit) < total,
		},
	}, nil
}

// ListUserPosts returns one page of a single user's posts, newest first,
// under the same pagination contract as the feed.
func (s *FeedService) ListUserPosts(ctx context.Context, authorID int64, page, limit int) (*model.PostPage, error) {
	page, limit = normalizePage(page, limit)

	if _, err := s.userRepo.GetByID(ctx, authorID); err != nil {
		return nil, err
	}

	authorIDs := []int64{authorID}

	total, err := s.postRepo.CountByAuthors(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("count user posts: %w", err)
	}

	posts, err := s.postRepo.ListByAuthors(ctx, authorIDs, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	posts, err = hydratePosts(ctx, s.userRepo, s.postRepo, s.commentRepo, posts)
	if err != nil {
		return nil, err
	}

	return &model.PostPage{
		Posts: posts,
		Pagination: model.Pagination{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasMore: int64(page*limit) < total,
		},
	}, nil
}

// windowFromCache tries to serve the page window from the feed cache. Any
// cache trouble falls back to the database; the feed must not break because
// Redis is down.
func (s *FeedService) windowFromCache(ctx context.Context, userID int64, authorIDs []int64, total int64, offset, limit int) ([]int64, bool) {
	exists, err := s.feedCache.Exists(ctx, userID)
	if err != nil {
		return nil, false
	}

	if !exists {
		scores, err := s.postRepo.GetFeedPostIDs(ctx, authorIDs, cache.FeedCacheCap)
		if err != nil || len(scores) == 0 {
			return nil, false
		}
		if err := s.feedCache.WarmCache(ctx, userID, scores); err != nil {
			return nil, false
		}
		log.Printf("[FeedService] warmed cache: user=%d posts=%d", userID, len(scores))
	}

	size, err := s.feedCache.Size(ctx, userID)
	if err != nil {
		return nil, false
	}

	// A cache holding more entries than the store counts has kept posts the
	// feed no longer contains (a removal fan-out that never landed). Drop it
	// so the next read warms it fresh, and serve this one from the store.
	if size > total {
		if err := s.feedCache.Invalidate(ctx, userID); err != nil {
			log.Printf("[FeedService] invalidate stale cache FAILED: user=%d err=%v", userID, err)
		} else {
			log.Printf("[FeedService] dropped stale cache: user=%d size=%d total=%d", userID, size, total)
		}
		return nil, false
	}

	// The cache only holds the newest FeedCacheCap posts. Serve from it
	// when the window is inside what it holds, or when it holds the whole
	// feed (then a trailing partial page is fine too).
	if int64(offset+limit) > size && size < total {
		return nil, false
	}

	ids, err := s.feedCache.GetPage(ctx, userID, offset, limit)
	if err != nil {
		return nil, false
	}
	return ids, true
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultFeedPage
	}
	if limit < 1 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}
	return page, limit
}
