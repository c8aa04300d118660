package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried on the feed stream.
const (
	EventPostCreated    = "post_created"
	EventPostDeleted    = "post_deleted"
	EventUserFollowed   = "user_followed"
	EventUserUnfollowed = "user_unfollowed"
)

const (
	// StreamFeed is the Redis stream feed events are published to.
	StreamFeed = "stream:feed"

	// ConsumerGroupFeed is the consumer group the feed workers join.
	ConsumerGroupFeed = "feed_workers"
)

// FeedEvent is the single envelope for everything on the feed stream. Post
// events fill PostID/AuthorID; follow events fill FollowerID/FolloweeID.
// Timestamp is unix milliseconds; for post_created it is the post's creation
// time and doubles as the feed cache score.
type FeedEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	PostID   int64 `json:"post_id,omitempty"`
	AuthorID int64 `json:"author_id,omitempty"`

	FollowerID int64 `json:"follower_id,omitempty"`
	FolloweeID int64 `json:"followee_id,omitempty"`
}

// NewPostCreatedEvent signals the workers to fan the post out to every
// follower's feed cache. createdAt must be the post's persisted creation
// time so cache scores agree with database ordering.
func NewPostCreatedEvent(postID, authorID int64, createdAt time.Time) FeedEvent {
	return FeedEvent{
		Type:      EventPostCreated,
		Timestamp: createdAt.UnixMilli(),
		PostID:    postID,
		AuthorID:  authorID,
	}
}

// NewPostDeletedEvent signals the workers to drop the post from every
// follower's feed cache.
func NewPostDeletedEvent(postID, authorID int64) FeedEvent {
	return FeedEvent{
		Type:      EventPostDeleted,
		Timestamp: time.Now().UnixMilli(),
		PostID:    postID,
		AuthorID:  authorID,
	}
}

// NewUserFollowedEvent signals the workers to backfill the followee's recent
// posts into the follower's feed cache.
func NewUserFollowedEvent(followerID, followeeID int64) FeedEvent {
	return FeedEvent{
		Type:       EventUserFollowed,
		Timestamp:  time.Now().UnixMilli(),
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
}

// NewUserUnfollowedEvent signals the workers to remove the followee's posts
// from the follower's feed cache.
func NewUserUnfollowedEvent(followerID, followeeID int64) FeedEvent {
	return FeedEvent{
		Type:       EventUserUnfollowed,
		Timestamp:  time.Now().UnixMilli(),
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
}

// ToMap serializes the event for XADD. Streams store flat field-value pairs,
// so the event body rides in a single JSON "data" field alongside "type".
func (e FeedEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseFeedEvent decodes an event from stream message values.
func ParseFeedEvent(values map[string]interface{}) (FeedEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return FeedEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event FeedEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return FeedEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
