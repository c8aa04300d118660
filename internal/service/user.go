package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"pictogram/internal/model"
	"pictogram/internal/repository"
)

// MaxProfilePosts caps how many posts a profile read returns. Older posts
// are reachable through the paginated user-posts listing.
const MaxProfilePosts = 100

// UserService handles signup, login, and profile reads.
type UserService struct {
	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
}

func NewUserService(userRepo repository.UserRepository, postRepo repository.PostRepository, commentRepo repository.CommentRepository) *UserService {
	return &UserService{
		userRepo:    userRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
	}
}

// Register creates a new account. Username and email are case-folded before
// uniqueness checks so "Alice" and "alice" collide.
func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)

	verr := model.NewValidationError()
	if username == "" {
		verr.Add("username", "Username is required")
	}
	if email == "" {
		verr.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		verr.Add("email", "Email is invalid")
	}
	if len(req.Password) < model.MinPasswordLength {
		verr.Add("password", fmt.Sprintf("Password must be at least %d characters", model.MinPasswordLength))
	}
	if verr.HasErrors() {
		return nil, verr
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, model.ErrUsernameExists
	}

	exists, err = s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, model.ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:       username,
		Email:          email,
		PasswordHashed: string(hashed),
	}
	if fullName != "" {
		user.FullName = &fullName
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login verifies email + password. Returns ErrInvalidCredentials for both an
// unknown email and a wrong password so callers cannot probe for accounts.
func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHashed), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	return user, nil
}

// GetByID returns a single user.
func (s *UserService) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// GetProfile returns a user together with their posts, newest first.
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Fixed cap rather than the denormalized post counter: a drifted counter
	// must not truncate (or inflate) the listing.
	posts, err := s.postRepo.ListByAuthors(ctx, []int64{userID}, MaxProfilePosts, 0)
	if err != nil {
		return nil, fmt.Errorf("list profile posts: %w", err)
	}

	posts, err = hydratePosts(ctx, s.userRepo, s.postRepo, s.commentRepo, posts)
	if err != nil {
		return nil, err
	}

	return &model.Profile{User: *user, Posts: posts}, nil
}
