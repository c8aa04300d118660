package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// FeedCachePrefix is the key prefix for user feed caches
	FeedCachePrefix = "feed:user:"

	// FeedCacheCap is the maximum number of posts to cache per user
	FeedCacheCap = 500

	// FeedCacheTTL is the TTL for feed cache (7 days)
	FeedCacheTTL = 7 * 24 * time.Hour
)

// PostScore represents a post with its timestamp score for caching.
// Timestamps are unix milliseconds so that posts created within the same
// second still keep their relative order in the sorted set.
type PostScore struct {
	PostID    int64
	Timestamp int64 // Unix milliseconds
}

// FeedCache holds the newest post ids per user in a Redis sorted set scored
// by post creation time, so a page window maps to a ZREVRANGE. The cache is
// bounded by FeedCacheCap; callers must fall back to the store for windows
// beyond what the cache holds.
type FeedCache interface {
	// AddPost adds a post to a user's feed cache.
	AddPost(ctx context.Context, userID, postID int64, timestamp int64) error

	// RemovePost removes a post from a user's feed cache.
	RemovePost(ctx context.Context, userID, postID int64) error

	// GetPage returns post ids for the window [offset, offset+limit), newest first.
	GetPage(ctx context.Context, userID int64, offset, limit int) ([]int64, error)

	// WarmCache bulk-inserts posts into a user's feed cache.
	WarmCache(ctx context.Context, userID int64, posts []PostScore) error

	// GetScore returns a post's score in a user's feed cache and whether
	// the post is present at all.
	GetScore(ctx context.Context, userID, postID int64) (int64, bool, error)

	// Size returns the number of posts in a user's feed cache.
	Size(ctx context.Context, userID int64) (int64, error)

	// Exists checks if a user has a feed cache entry. Returns false for a
	// new user or after TTL expiry; the service layer warms it then.
	Exists(ctx context.Context, userID int64) (bool, error)

	// Invalidate drops a user's feed cache entirely.
	Invalidate(ctx context.Context, userID int64) error
}

// RedisFeedCache implements FeedCache using Redis Sorted Sets.
type RedisFeedCache struct {
	client *redis.Client
}

// NewFeedCache creates a new FeedCache backed by Redis.
func NewFeedCache(client *redis.Client) FeedCache {
	return &RedisFeedCache{client: client}
}

func feedKey(userID int64) string {
	return fmt.Sprintf("%s%d", FeedCachePrefix, userID)
}

// feedMember encodes a post id as a fixed-width member. ZREVRANGE breaks
// equal-score ties by reverse-lexicographic member order; zero-padding makes
// that order agree with the store's id DESC tie-break regardless of digit
// count.
func feedMember(postID int64) string {
	return fmt.Sprintf("%019d", postID)
}

// AddPost adds a post to a user's feed cache using a pipeline:
// ZADD + ZREMRANGEBYRANK (trim to cap) + EXPIRE (refresh TTL).
func (c *RedisFeedCache) AddPost(ctx context.Context, userID, postID int64, timestamp int64) error {
	key := feedKey(userID)

	pipe := c.client.Pipeline()

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(timestamp),
		Member: feedMember(postID),
	})

	// ZREMRANGEBYRANK removes [start, stop] inclusive, rank 0 is the lowest
	// score (oldest). Keep the newest FeedCacheCap entries.
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-FeedCacheCap-1))

	pipe.Expire(ctx, key, FeedCacheTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[FeedCache] AddPost FAILED: user=%d post=%d err=%v", userID, postID, err)
		return fmt.Errorf("add post to feed: %w", err)
	}

	return nil
}

// RemovePost removes a post from a user's feed cache.
func (c *RedisFeedCache) RemovePost(ctx context.Context, userID, postID int64) error {
	key := feedKey(userID)

	if err := c.client.ZRem(ctx, key, feedMember(postID)).Err(); err != nil {
		log.Printf("[FeedCache] RemovePost FAILED: user=%d post=%d err=%v", userID, postID, err)
		return fmt.Errorf("remove post from feed: %w", err)
	}

	return nil
}

// GetPage retrieves a page window of post ids, newest first.
func (c *RedisFeedCache) GetPage(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	key := feedKey(userID)

	members, err := c.client.ZRevRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		log.Printf("[FeedCache] GetPage FAILED: user=%d err=%v", userID, err)
		return nil, fmt.Errorf("get feed page: %w", err)
	}

	// No TTL refresh here: a cache that went stale must age out even while
	// it is being read, so that expiry forces a fresh warm.

	postIDs := make([]int64, len(members))
	for i, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse post id: %w", err)
		}
		postIDs[i] = id
	}

	return postIDs, nil
}

// WarmCache bulk-inserts posts into a user's feed cache using a pipeline.
func (c *RedisFeedCache) WarmCache(ctx context.Context, userID int64, posts []PostScore) error {
	if len(posts) == 0 {
		return nil
	}

	key := feedKey(userID)
	startTime := time.Now()

	pipe := c.client.Pipeline()

	members := make([]redis.Z, len(posts))
	for i, p := range posts {
		members[i] = redis.Z{
			Score:  float64(p.Timestamp),
			Member: feedMember(p.PostID),
		}
	}
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-FeedCacheCap-1))
	pipe.Expire(ctx, key, FeedCacheTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[FeedCache] WarmCache FAILED: user=%d posts=%d err=%v", userID, len(posts), err)
		return fmt.Errorf("warm cache: %w", err)
	}

	log.Printf("[FeedCache] WarmCache OK: user=%d posts=%d duration=%v",
		userID, len(posts), time.Since(startTime))
	return nil
}

// GetScore looks up a post's score with ZSCORE.
func (c *RedisFeedCache) GetScore(ctx context.Context, userID, postID int64) (int64, bool, error) {
	score, err := c.client.ZScore(ctx, feedKey(userID), feedMember(postID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get post score: %w", err)
	}
	return int64(score), true, nil
}

// Size returns the number of posts in a user's feed cache.
func (c *RedisFeedCache) Size(ctx context.Context, userID int64) (int64, error) {
	size, err := c.client.ZCard(ctx, feedKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("get cache size: %w", err)
	}
	return size, nil
}

// Exists checks if a user has a feed cache entry.
func (c *RedisFeedCache) Exists(ctx context.Context, userID int64) (bool, error) {
	exists, err := c.client.Exists(ctx, feedKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check cache exists: %w", err)
	}
	return exists > 0, nil
}

// Invalidate drops a user's feed cache.
func (c *RedisFeedCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, feedKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate feed cache: %w", err)
	}
	return nil
}
