package model

import (
	"errors"
	"time"
)

// User represents a user account. Counters are denormalized and kept in
// sync with the follows/posts tables inside the same transaction that
// mutates them.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          string    `db:"email" json:"email"`
	PasswordHashed string    `db:"password_hashed" json:"-"`
	FullName       *string   `db:"full_name" json:"full_name"`
	AvatarURL      *string   `db:"avatar_url" json:"avatar_url"`
	Bio            *string   `db:"bio" json:"bio"`
	FollowersCount int       `db:"follower_count" json:"followers_count"`
	FollowingCount int       `db:"following_count" json:"following_count"`
	PostsCount     int       `db:"post_count" json:"posts_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// UserSummary is the minimal identity attached to posts and comments.
type UserSummary struct {
	ID        int64   `db:"id" json:"id"`
	Username  string  `db:"username" json:"username"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url"`
}

// Summary projects the fields safe to embed in other entities.
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
	}
}

// Profile is a user plus their posts, newest first.
type Profile struct {
	User
	Posts []Post `json:"posts"`
}

// RegisterRequest represents the data needed to sign up.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginRequest represents the data needed to log in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

const MinPasswordLength = 6

var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameExists is returned when attempting to sign up with a taken username
	ErrUsernameExists = errors.New("username already taken")

	// ErrEmailExists is returned when attempting to sign up with a taken email
	ErrEmailExists = errors.New("email already in use")

	// ErrInvalidCredentials is returned when login credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")
)
