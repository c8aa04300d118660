package model

import (
	"errors"
	"time"
)

// Follow is a directed edge in the follow graph: follower follows followee.
// The edge lives in a single relation row, so both sides of the graph are
// consistent by construction.
type Follow struct {
	FollowerID int64     `db:"follower_id" json:"follower_id"`
	FolloweeID int64     `db:"followee_id" json:"followee_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FollowResponse carries both refreshed users after a graph mutation so the
// caller observes the updated counters immediately.
type FollowResponse struct {
	CurrentUser *User `json:"current_user"`
	TargetUser  *User `json:"target_user"`
}

var (
	ErrCannotFollowSelf = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following this user")
)
