package service

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"pictogram/internal/model"
	"pictogram/internal/queue"
	"pictogram/internal/repository"
)

// FollowService manages the follow graph. The edge row and both users'
// counters move in one transaction, so the two sides of the relationship can
// never disagree.
type FollowService struct {
	db         *sqlx.DB
	userRepo   repository.UserRepository
	followRepo repository.FollowRepository
	publisher  queue.Publisher
}

func NewFollowService(db *sqlx.DB, userRepo repository.UserRepository, followRepo repository.FollowRepository, publisher queue.Publisher) *FollowService {
	return &FollowService{
		db:         db,
		userRepo:   userRepo,
		followRepo: followRepo,
		publisher:  publisher,
	}
}

// Follow creates the edge follower -> followee. Following yourself is
// rejected, and following someone you already follow is an error, not a
// no-op. Returns both users with refreshed counters.
func (s *FollowService) Follow(ctx context.Context, followerID, followeeID int64) (*model.FollowResponse, error) {
	if followerID == followeeID {
		return nil, model.ErrCannotFollowSelf
	}

	if _, err := s.userRepo.GetByID(ctx, followeeID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	created, err := s.followRepo.Create(ctx, tx, followerID, followeeID)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, model.ErrAlreadyFollowing
	}

	if err := s.userRepo.IncrementFollowingCount(ctx, tx, followerID, 1); err != nil {
		return nil, err
	}
	if err := s.userRepo.IncrementFollowerCount(ctx, tx, followeeID, 1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit follow: %w", err)
	}

	// Feed backfill is async; a lost event only delays cache convergence.
	if _, err := s.publisher.Publish(ctx, queue.StreamFeed, queue.NewUserFollowedEvent(followerID, followeeID)); err != nil {
		log.Printf("[FollowService] publish user_followed FAILED: follower=%d followee=%d err=%v", followerID, followeeID, err)
	}

	return s.response(ctx, followerID, followeeID)
}

// Unfollow removes the edge follower -> followee. Removing an edge that does
// not exist is a no-op, not an error; counters only move when a row was
// actually deleted.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followeeID int64) (*model.FollowResponse, error) {
	if _, err := s.userRepo.GetByID(ctx, followeeID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	deleted, err := s.followRepo.Delete(ctx, tx, followerID, followeeID)
	if err != nil {
		return nil, err
	}

	if deleted {
		if err := s.userRepo.IncrementFollowingCount(ctx, tx, followerID, -1); err != nil {
			return nil, err
		}
		if err := s.userRepo.IncrementFollowerCount(ctx, tx, followeeID, -1); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unfollow: %w", err)
	}

	if deleted {
		if _, err := s.publisher.Publish(ctx, queue.StreamFeed, queue.NewUserUnfollowedEvent(followerID, followeeID)); err != nil {
			log.Printf("[FollowService] publish user_unfollowed FAILED: follower=%d followee=%d err=%v", followerID, followeeID, err)
		}
	}

	return s.response(ctx, followerID, followeeID)
}

// IsFollowing reports whether the edge follower -> followee exists.
func (s *FollowService) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	return s.followRepo.Exists(ctx, followerID, followeeID)
}

func (s *FollowService) response(ctx context.Context, followerID, followeeID int64) (*model.FollowResponse, error) {
	current, err := s.userRepo.GetByID(ctx, followerID)
	if err != nil {
		return nil, err
	}
	target, err := s.userRepo.GetByID(ctx, followeeID)
	if err != nil {
		return nil, err
	}
	return &model.FollowResponse{CurrentUser: current, TargetUser: target}, nil
}
