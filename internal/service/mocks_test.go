package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pictogram/internal/cache"
	"pictogram/internal/model"
	"pictogram/internal/queue"
)

// =============================================================================
// FAKE TRANSACTION DRIVER
// =============================================================================
//
// Services open transactions themselves and hand the *sqlx.Tx to their
// repositories. In unit tests the repositories are mocked and never touch
// the tx, so all we need is a driver whose Begin/Commit/Rollback succeed.
// Statements are unsupported on purpose: if a test ever reaches one, the
// loud failure is exactly what we want.

type nopTxDriver struct{}

func (nopTxDriver) Open(name string) (driver.Conn, error) { return &nopTxConn{}, nil }

type nopTxConn struct{}

func (*nopTxConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("statements not supported in unit tests")
}
func (*nopTxConn) Close() error              { return nil }
func (*nopTxConn) Begin() (driver.Tx, error) { return nopTx{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

func init() {
	sql.Register("noptx", nopTxDriver{})
}

func newTestDB() *sqlx.DB {
	db, err := sql.Open("noptx", "")
	if err != nil {
		panic(err)
	}
	return sqlx.NewDb(db, "postgres")
}

// =============================================================================
// MOCK REPOSITORIES
// =============================================================================
//
// Function fields let each test define exactly the behavior it needs; the
// zero value behaves like an empty but healthy store.

type counterCall struct {
	kind   string // "follower", "following", "post"
	userID int64
	delta  int
}

type mockUserRepository struct {
	createFn           func(ctx context.Context, user *model.User) error
	getByIDFn          func(ctx context.Context, id int64) (*model.User, error)
	getByEmailFn       func(ctx context.Context, email string) (*model.User, error)
	existsByUsernameFn func(ctx context.Context, username string) (bool, error)
	existsByEmailFn    func(ctx context.Context, email string) (bool, error)

	createCalls  []*model.User
	counterCalls []counterCall
}

func (m *mockUserRepository) Create(ctx context.Context, user *model.User) error {
	m.createCalls = append(m.createCalls, user)
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	user.ID = 1
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &model.User{ID: id, Username: fmt.Sprintf("user%d", id)}, nil
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetSummariesByIDs(ctx context.Context, ids []int64) (map[int64]*model.UserSummary, error) {
	result := make(map[int64]*model.UserSummary, len(ids))
	for _, id := range ids {
		result[id] = &model.UserSummary{ID: id, Username: fmt.Sprintf("user%d", id)}
	}
	return result, nil
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if m.existsByUsernameFn != nil {
		return m.existsByUsernameFn(ctx, username)
	}
	return false, nil
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.existsByEmailFn != nil {
		return m.existsByEmailFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepository) IncrementFollowerCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error {
	m.counterCalls = append(m.counterCalls, counterCall{kind: "follower", userID: userID, delta: delta})
	return nil
}

func (m *mockUserRepository) IncrementFollowingCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error {
	m.counterCalls = append(m.counterCalls, counterCall{kind: "following", userID: userID, delta: delta})
	return nil
}

func (m *mockUserRepository) IncrementPostCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error {
	m.counterCalls = append(m.counterCalls, counterCall{kind: "post", userID: userID, delta: delta})
	return nil
}

type mockFollowRepository struct {
	createFn         func(ctx context.Context, followerID, followeeID int64) (bool, error)
	deleteFn         func(ctx context.Context, followerID, followeeID int64) (bool, error)
	existsFn         func(ctx context.Context, followerID, followeeID int64) (bool, error)
	getFolloweeIDsFn func(ctx context.Context, userID int64) ([]int64, error)
	getFollowerIDsFn func(ctx context.Context, userID int64) ([]int64, error)
}

func (m *mockFollowRepository) Create(ctx context.Context, tx *sqlx.Tx, followerID, followeeID int64) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, followerID, followeeID)
	}
	return true, nil
}

func (m *mockFollowRepository) Delete(ctx context.Context, tx *sqlx.Tx, followerID, followeeID int64) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, followerID, followeeID)
	}
	return true, nil
}

func (m *mockFollowRepository) Exists(ctx context.Context, followerID, followeeID int64) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, followerID, followeeID)
	}
	return false, nil
}

func (m *mockFollowRepository) GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	if m.getFollowerIDsFn != nil {
		return m.getFollowerIDsFn(ctx, userID)
	}
	return []int64{}, nil
}

func (m *mockFollowRepository) GetFolloweeIDs(ctx context.Context, userID int64) ([]int64, error) {
	if m.getFolloweeIDsFn != nil {
		return m.getFolloweeIDsFn(ctx, userID)
	}
	return []int64{}, nil
}

type mockPostRepository struct {
	createFn             func(ctx context.Context, post *model.Post) error
	getByIDFn            func(ctx context.Context, postID int64) (*model.Post, error)
	getByIDsFn           func(ctx context.Context, postIDs []int64) ([]model.Post, error)
	deleteFn             func(ctx context.Context, postID int64) error
	getAuthorIDFn        func(ctx context.Context, postID int64) (int64, error)
	listByAuthorsFn      func(ctx context.Context, authorIDs []int64, limit, offset int) ([]model.Post, error)
	countByAuthorsFn     func(ctx context.Context, authorIDs []int64) (int64, error)
	getFeedPostIDsFn     func(ctx context.Context, authorIDs []int64, limit int) ([]cache.PostScore, error)
	likeFn               func(ctx context.Context, postID, userID int64) (bool, error)
	unlikeFn             func(ctx context.Context, postID, userID int64) (bool, error)
	getLikesForPostsFn   func(ctx context.Context, postIDs []int64) (map[int64][]int64, error)
	getByIDsCalls        [][]int64
	listByAuthorsCalls   []struct{ limit, offset int }
	countByAuthorsCalls  [][]int64
}

func (m *mockPostRepository) Create(ctx context.Context, tx *sqlx.Tx, post *model.Post) error {
	if m.createFn != nil {
		return m.createFn(ctx, post)
	}
	post.ID = 1
	post.CreatedAt = time.Now()
	return nil
}

func (m *mockPostRepository) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, postID)
	}
	return &model.Post{ID: postID, AuthorID: 1, ImageURL: "https://cdn.example.com/p.jpg"}, nil
}

func (m *mockPostRepository) GetByIDs(ctx context.Context, postIDs []int64) ([]model.Post, error) {
	m.getByIDsCalls = append(m.getByIDsCalls, postIDs)
	if m.getByIDsFn != nil {
		return m.getByIDsFn(ctx, postIDs)
	}
	posts := make([]model.Post, len(postIDs))
	for i, id := range postIDs {
		posts[i] = model.Post{ID: id, AuthorID: 1}
	}
	return posts, nil
}

func (m *mockPostRepository) Delete(ctx context.Context, tx *sqlx.Tx, postID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, postID)
	}
	return nil
}

func (m *mockPostRepository) GetAuthorID(ctx context.Context, postID int64) (int64, error) {
	if m.getAuthorIDFn != nil {
		return m.getAuthorIDFn(ctx, postID)
	}
	return 1, nil
}

func (m *mockPostRepository) Exists(ctx context.Context, postID int64) (bool, error) {
	return true, nil
}

func (m *mockPostRepository) ListByAuthors(ctx context.Context, authorIDs []int64, limit, offset int) ([]model.Post, error) {
	m.listByAuthorsCalls = append(m.listByAuthorsCalls, struct{ limit, offset int }{limit, offset})
	if m.listByAuthorsFn != nil {
		return m.listByAuthorsFn(ctx, authorIDs, limit, offset)
	}
	return []model.Post{}, nil
}

func (m *mockPostRepository) CountByAuthors(ctx context.Context, authorIDs []int64) (int64, error) {
	m.countByAuthorsCalls = append(m.countByAuthorsCalls, authorIDs)
	if m.countByAuthorsFn != nil {
		return m.countByAuthorsFn(ctx, authorIDs)
	}
	return 0, nil
}

func (m *mockPostRepository) GetRecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.PostScore, error) {
	return []cache.PostScore{}, nil
}

func (m *mockPostRepository) GetFeedPostIDs(ctx context.Context, authorIDs []int64, limit int) ([]cache.PostScore, error) {
	if m.getFeedPostIDsFn != nil {
		return m.getFeedPostIDsFn(ctx, authorIDs, limit)
	}
	return []cache.PostScore{}, nil
}

func (m *mockPostRepository) Like(ctx context.Context, postID, userID int64) (bool, error) {
	if m.likeFn != nil {
		return m.likeFn(ctx, postID, userID)
	}
	return true, nil
}

func (m *mockPostRepository) Unlike(ctx context.Context, postID, userID int64) (bool, error) {
	if m.unlikeFn != nil {
		return m.unlikeFn(ctx, postID, userID)
	}
	return true, nil
}

func (m *mockPostRepository) GetLikeUserIDs(ctx context.Context, postID int64) ([]int64, error) {
	return []int64{}, nil
}

func (m *mockPostRepository) GetLikesForPosts(ctx context.Context, postIDs []int64) (map[int64][]int64, error) {
	if m.getLikesForPostsFn != nil {
		return m.getLikesForPostsFn(ctx, postIDs)
	}
	return map[int64][]int64{}, nil
}

type mockCommentRepository struct {
	createFn      func(ctx context.Context, postID, authorID int64, content string) (*model.Comment, error)
	listByPostFn  func(ctx context.Context, postID int64) ([]model.Comment, error)
	listByPostsFn func(ctx context.Context, postIDs []int64) (map[int64][]model.Comment, error)

	createCalls []string
}

func (m *mockCommentRepository) Create(ctx context.Context, postID, authorID int64, content string) (*model.Comment, error) {
	m.createCalls = append(m.createCalls, content)
	if m.createFn != nil {
		return m.createFn(ctx, postID, authorID, content)
	}
	return &model.Comment{ID: 1, PostID: postID, AuthorID: authorID, Text: content, CreatedAt: time.Now()}, nil
}

func (m *mockCommentRepository) ListByPost(ctx context.Context, postID int64) ([]model.Comment, error) {
	if m.listByPostFn != nil {
		return m.listByPostFn(ctx, postID)
	}
	return []model.Comment{}, nil
}

func (m *mockCommentRepository) ListByPosts(ctx context.Context, postIDs []int64) (map[int64][]model.Comment, error) {
	if m.listByPostsFn != nil {
		return m.listByPostsFn(ctx, postIDs)
	}
	return map[int64][]model.Comment{}, nil
}

type mockFeedCache struct {
	existsFn  func(ctx context.Context, userID int64) (bool, error)
	sizeFn    func(ctx context.Context, userID int64) (int64, error)
	getPageFn func(ctx context.Context, userID int64, offset, limit int) ([]int64, error)

	warmCalls       int
	invalidateCalls int
}

func (m *mockFeedCache) AddPost(ctx context.Context, userID, postID int64, timestamp int64) error {
	return nil
}

func (m *mockFeedCache) RemovePost(ctx context.Context, userID, postID int64) error {
	return nil
}

func (m *mockFeedCache) GetPage(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	if m.getPageFn != nil {
		return m.getPageFn(ctx, userID, offset, limit)
	}
	return []int64{}, nil
}

func (m *mockFeedCache) WarmCache(ctx context.Context, userID int64, posts []cache.PostScore) error {
	m.warmCalls++
	return nil
}

func (m *mockFeedCache) GetScore(ctx context.Context, userID, postID int64) (int64, bool, error) {
	return 0, false, nil
}

func (m *mockFeedCache) Size(ctx context.Context, userID int64) (int64, error) {
	if m.sizeFn != nil {
		return m.sizeFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockFeedCache) Exists(ctx context.Context, userID int64) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, userID)
	}
	return false, nil
}

func (m *mockFeedCache) Invalidate(ctx context.Context, userID int64) error {
	m.invalidateCalls++
	return nil
}

type mockPublisher struct {
	publishFn func(ctx context.Context, stream string, event queue.FeedEvent) (string, error)

	events []queue.FeedEvent
}

func (m *mockPublisher) Publish(ctx context.Context, stream string, event queue.FeedEvent) (string, error) {
	m.events = append(m.events, event)
	if m.publishFn != nil {
		return m.publishFn(ctx, stream, event)
	}
	return "1-0", nil
}
