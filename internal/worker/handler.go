package worker

import (
	"context"
	"fmt"
	"log"

	"pictogram/internal/cache"
	"pictogram/internal/queue"
)

// Backfill/cleanup depths for follow and unfollow events. Unfollow cleanup
// reaches to the cache cap since any of the followee's cached posts may sit
// in the follower's feed.
const (
	followBackfillLimit  = 20
	unfollowRemovalLimit = cache.FeedCacheCap
)

// FollowerProvider supplies the follower side of the graph to workers
// without pulling in the whole repository surface.
type FollowerProvider interface {
	GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// RecentPostsProvider supplies recent posts as (id, timestamp) pairs for
// backfill and removal.
type RecentPostsProvider interface {
	GetRecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.PostScore, error)
}

// Handler applies feed events to the per-user feed caches.
type Handler struct {
	feedCache cache.FeedCache
	followers FollowerProvider
	posts     RecentPostsProvider
}

// NewHandler creates a new event handler.
func NewHandler(feedCache cache.FeedCache, followers FollowerProvider, posts RecentPostsProvider) *Handler {
	return &Handler{
		feedCache: feedCache,
		followers: followers,
		posts:     posts,
	}
}

// HandleEvent routes an event to its handler by type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.FeedEvent) error {
	switch event.Type {
	case queue.EventPostCreated:
		return h.handlePostCreated(ctx, event)
	case queue.EventPostDeleted:
		return h.handlePostDeleted(ctx, event)
	case queue.EventUserFollowed:
		return h.handleUserFollowed(ctx, event)
	case queue.EventUserUnfollowed:
		return h.handleUserUnfollowed(ctx, event)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}

// handlePostCreated fans the new post out to every follower's feed cache,
// and to the author's own (authors see their own posts).
func (h *Handler) handlePostCreated(ctx context.Context, event queue.FeedEvent) error {
	followers, err := h.followers.GetFollowerIDs(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("get followers: %w", err)
	}

	// One failed cache write must not abort the rest of the fan-out, but a
	// cache we failed to update can no longer be trusted.
	var failed int
	for _, followerID := range followers {
		if err := h.feedCache.AddPost(ctx, followerID, event.PostID, event.Timestamp); err != nil {
			failed++
			h.dropCache(ctx, followerID)
		}
	}
	if err := h.feedCache.AddPost(ctx, event.AuthorID, event.PostID, event.Timestamp); err != nil {
		failed++
		h.dropCache(ctx, event.AuthorID)
	}

	log.Printf("[Worker] post_created: post=%d fanout=%d failed=%d", event.PostID, len(followers)+1, failed)
	return nil
}

// handlePostDeleted removes the post from every follower's feed cache and
// from the author's own.
func (h *Handler) handlePostDeleted(ctx context.Context, event queue.FeedEvent) error {
	followers, err := h.followers.GetFollowerIDs(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("get followers: %w", err)
	}

	var failed int
	for _, followerID := range followers {
		if err := h.feedCache.RemovePost(ctx, followerID, event.PostID); err != nil {
			failed++
			h.dropCache(ctx, followerID)
		}
	}
	if err := h.feedCache.RemovePost(ctx, event.AuthorID, event.PostID); err != nil {
		failed++
		h.dropCache(ctx, event.AuthorID)
	}

	log.Printf("[Worker] post_deleted: post=%d fanout=%d failed=%d", event.PostID, len(followers)+1, failed)
	return nil
}

// handleUserFollowed backfills the followee's recent posts into the
// follower's feed cache.
func (h *Handler) handleUserFollowed(ctx context.Context, event queue.FeedEvent) error {
	posts, err := h.posts.GetRecentPostsByAuthor(ctx, event.FolloweeID, followBackfillLimit)
	if err != nil {
		return fmt.Errorf("get recent posts: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}

	var failed int
	for _, p := range posts {
		if err := h.feedCache.AddPost(ctx, event.FollowerID, p.PostID, p.Timestamp); err != nil {
			failed++
		}
	}
	if failed > 0 {
		h.dropCache(ctx, event.FollowerID)
	}

	log.Printf("[Worker] user_followed: follower=%d backfilled=%d failed=%d", event.FollowerID, len(posts), failed)
	return nil
}

// invalidateFor drops every cache the event should have touched. Called when
// an event is acked without being fully applied, so the caches rebuild from
// the store on their next read instead of serving what the event missed.
func (h *Handler) invalidateFor(ctx context.Context, event queue.FeedEvent) {
	switch event.Type {
	case queue.EventPostCreated, queue.EventPostDeleted:
		h.dropCache(ctx, event.AuthorID)
		followers, err := h.followers.GetFollowerIDs(ctx, event.AuthorID)
		if err != nil {
			log.Printf("[Worker] invalidate fanout: get followers: %v", err)
			return
		}
		for _, followerID := range followers {
			h.dropCache(ctx, followerID)
		}
	case queue.EventUserFollowed, queue.EventUserUnfollowed:
		h.dropCache(ctx, event.FollowerID)
	}
}

func (h *Handler) dropCache(ctx context.Context, userID int64) {
	if err := h.feedCache.Invalidate(ctx, userID); err != nil {
		log.Printf("[Worker] invalidate cache FAILED: user=%d err=%v", userID, err)
	}
}

// handleUserUnfollowed removes the followee's posts from the follower's
// feed cache.
func (h *Handler) handleUserUnfollowed(ctx context.Context, event queue.FeedEvent) error {
	posts, err := h.posts.GetRecentPostsByAuthor(ctx, event.FolloweeID, unfollowRemovalLimit)
	if err != nil {
		return fmt.Errorf("get posts to remove: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}

	var failed int
	for _, p := range posts {
		if err := h.feedCache.RemovePost(ctx, event.FollowerID, p.PostID); err != nil {
			failed++
		}
	}
	if failed > 0 {
		h.dropCache(ctx, event.FollowerID)
	}

	log.Printf("[Worker] user_unfollowed: follower=%d removed=%d failed=%d", event.FollowerID, len(posts), failed)
	return nil
}
