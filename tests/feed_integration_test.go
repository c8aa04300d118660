package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// End-to-end tests against a running server. Set TEST_BASE_URL to enable,
// e.g. TEST_BASE_URL=http://localhost:8080 go test ./tests/...
//
// Each test registers its own users, so no seed data is required. Workers
// process feed events asynchronously; the short sleeps give them time.

const workerWait = 500 * time.Millisecond

func baseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TEST_BASE_URL")
	if url == "" {
		t.Skip("TEST_BASE_URL not set, skipping end-to-end tests")
	}
	return url
}

// =============================================================================
// HTTP client helpers
// =============================================================================

type apiClient struct {
	client  *http.Client
	baseURL string
	token   string
}

func newClient(baseURL string) *apiClient {
	return &apiClient{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

func (c *apiClient) withToken(token string) *apiClient {
	c.token = token
	return c
}

func (c *apiClient) do(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.client.Do(req)
}

func (c *apiClient) get(path string) (*http.Response, error) {
	return c.do("GET", path, nil)
}

func (c *apiClient) post(path string, body interface{}) (*http.Response, error) {
	return c.do("POST", path, body)
}

func (c *apiClient) delete(path string) (*http.Response, error) {
	return c.do("DELETE", path, nil)
}

func parseJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body)
	}
}

// =============================================================================
// Account helpers
// =============================================================================

type account struct {
	ID       int64
	Username string
	Token    string
}

type authPayload struct {
	User struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	AccessToken string `json:"access_token"`
}

// registerUser creates a throwaway account with a unique username.
func registerUser(t *testing.T, base, prefix string) account {
	t.Helper()

	username := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	resp, err := newClient(base).post("/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	requireStatus(t, resp, http.StatusCreated)

	var payload authPayload
	parseJSON(t, resp, &payload)
	return account{ID: payload.User.ID, Username: payload.User.Username, Token: payload.AccessToken}
}

func createPost(t *testing.T, base string, author account, caption string) int64 {
	t.Helper()

	resp, err := newClient(base).withToken(author.Token).post("/posts", map[string]string{
		"image_url": "https://picsum.photos/seed/" + caption + "/1080/1080",
		"caption":   caption,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	requireStatus(t, resp, http.StatusCreated)

	var post struct {
		ID int64 `json:"id"`
	}
	parseJSON(t, resp, &post)
	return post.ID
}

func follow(t *testing.T, base string, follower, followee account) {
	t.Helper()

	resp, err := newClient(base).withToken(follower.Token).post(fmt.Sprintf("/users/%d/follow", followee.ID), nil)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	requireStatus(t, resp, http.StatusOK)
}

type feedPayload struct {
	Posts []struct {
		ID      int64  `json:"id"`
		Caption string `json:"caption"`
		Author  struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"author"`
		Likes    []int64 `json:"likes"`
		Comments []struct {
			ID   int64  `json:"id"`
			Text string `json:"text"`
		} `json:"comments"`
	} `json:"posts"`
	Pagination struct {
		Page    int   `json:"page"`
		Limit   int   `json:"limit"`
		Total   int64 `json:"total"`
		HasMore bool  `json:"has_more"`
	} `json:"pagination"`
}

func getFeed(t *testing.T, base string, user account, query string) feedPayload {
	t.Helper()

	resp, err := newClient(base).withToken(user.Token).get("/feed" + query)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	requireStatus(t, resp, http.StatusOK)

	var feed feedPayload
	parseJSON(t, resp, &feed)
	return feed
}

// =============================================================================
// Test cases
// =============================================================================

func TestEmptyFeed(t *testing.T) {
	base := baseURL(t)
	user := registerUser(t, base, "loner")

	feed := getFeed(t, base, user, "")

	if len(feed.Posts) != 0 {
		t.Errorf("expected empty feed, got %d posts", len(feed.Posts))
	}
	if feed.Pagination.Total != 0 || feed.Pagination.HasMore {
		t.Errorf("pagination = %+v, want total 0 and no more", feed.Pagination)
	}
}

func TestFollowBackfillsFeed(t *testing.T) {
	base := baseURL(t)
	author := registerUser(t, base, "author")
	reader := registerUser(t, base, "reader")

	for i := 0; i < 3; i++ {
		createPost(t, base, author, fmt.Sprintf("backfill%d", i))
	}

	follow(t, base, reader, author)
	time.Sleep(workerWait)

	feed := getFeed(t, base, reader, "")
	if len(feed.Posts) != 3 {
		t.Errorf("feed posts = %d, want 3 after follow backfill", len(feed.Posts))
	}
	for i, p := range feed.Posts {
		if p.Author.ID != author.ID {
			t.Errorf("post %d author = %d, want %d", i, p.Author.ID, author.ID)
		}
	}
}

func TestCreatePostFanout(t *testing.T) {
	base := baseURL(t)
	author := registerUser(t, base, "author")
	reader := registerUser(t, base, "reader")

	follow(t, base, reader, author)
	time.Sleep(workerWait)

	postID := createPost(t, base, author, "fanout")
	time.Sleep(workerWait)

	feed := getFeed(t, base, reader, "?limit=1")
	if len(feed.Posts) != 1 || feed.Posts[0].ID != postID {
		t.Fatalf("feed head = %+v, want post %d first", feed.Posts, postID)
	}

	// The author sees their own post too.
	ownFeed := getFeed(t, base, author, "")
	if len(ownFeed.Posts) != 1 || ownFeed.Posts[0].ID != postID {
		t.Errorf("author's feed = %+v, want own post %d", ownFeed.Posts, postID)
	}
}

func TestFeedPagination(t *testing.T) {
	base := baseURL(t)
	author := registerUser(t, base, "author")
	reader := registerUser(t, base, "reader")

	follow(t, base, reader, author)
	for i := 0; i < 5; i++ {
		createPost(t, base, author, fmt.Sprintf("page%d", i))
	}
	time.Sleep(workerWait)

	page1 := getFeed(t, base, reader, "?page=1&limit=2")
	if len(page1.Posts) != 2 {
		t.Fatalf("page 1 posts = %d, want 2", len(page1.Posts))
	}
	if page1.Pagination.Total != 5 || !page1.Pagination.HasMore {
		t.Errorf("page 1 pagination = %+v, want total 5 and has_more", page1.Pagination)
	}

	page3 := getFeed(t, base, reader, "?page=3&limit=2")
	if len(page3.Posts) != 1 {
		t.Errorf("page 3 posts = %d, want 1", len(page3.Posts))
	}
	if page3.Pagination.HasMore {
		t.Error("page 3 should be the last page")
	}

	// No overlap between pages.
	seen := map[int64]bool{}
	for _, p := range page1.Posts {
		seen[p.ID] = true
	}
	for _, p := range page3.Posts {
		if seen[p.ID] {
			t.Errorf("post %d appears on both pages", p.ID)
		}
	}
}

func TestDeletePostRemoval(t *testing.T) {
	base := baseURL(t)
	author := registerUser(t, base, "author")
	reader := registerUser(t, base, "reader")

	follow(t, base, reader, author)
	postID := createPost(t, base, author, "doomed")
	time.Sleep(workerWait)

	resp, err := newClient(base).withToken(author.Token).delete(fmt.Sprintf("/posts/%d", postID))
	if err != nil {
		t.Fatalf("delete post: %v", err)
	}
	requireStatus(t, resp, http.StatusNoContent)
	time.Sleep(workerWait)

	feed := getFeed(t, base, reader, "")
	for _, p := range feed.Posts {
		if p.ID == postID {
			t.Errorf("deleted post %d still in reader's feed", postID)
		}
	}
}

func TestUnfollowRemovesPosts(t *testing.T) {
	base := baseURL(t)
	author := registerUser(t, base, "author")
	reader := registerUser(t, base, "reader")

	follow(t, base, reader, author)
	createPost(t, base, author, "ephemeral")
	time.Sleep(workerWait)

	if feed := getFeed(t, base, reader, ""); len(feed.Posts) != 1 {
		t.Fatalf("feed posts before unfollow = %d, want 1", len(feed.Posts))
	}

	resp, err := newClient(base).withToken(reader.Token).delete(fmt.Sprintf("/users/%d/follow", author.ID))
	if err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	requireStatus(t, resp, http.StatusOK)
	time.Sleep(workerWait)

	if feed := getFeed(t, base, reader, ""); len(feed.Posts) != 0 {
		t.Errorf("feed posts after unfollow = %d, want 0", len(feed.Posts))
	}
}

func TestLikeAndComment(t *testing.T) {
	base := baseURL(t)
	author := registerUser(t, base, "author")
	fan := registerUser(t, base, "fan")

	postID := createPost(t, base, author, "likeable")
	fanClient := newClient(base).withToken(fan.Token)

	// Like twice; the set holds the fan once either way.
	for i := 0; i < 2; i++ {
		resp, err := fanClient.post(fmt.Sprintf("/posts/%d/like", postID), nil)
		if err != nil {
			t.Fatalf("like: %v", err)
		}
		requireStatus(t, resp, http.StatusOK)
	}

	resp, err := fanClient.post(fmt.Sprintf("/posts/%d/comments", postID), map[string]string{
		"text": "great shot",
	})
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	requireStatus(t, resp, http.StatusCreated)

	resp, err = newClient(base).get(fmt.Sprintf("/posts/%d", postID))
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	requireStatus(t, resp, http.StatusOK)

	var post struct {
		Likes    []int64 `json:"likes"`
		Comments []struct {
			Text   string `json:"text"`
			Author struct {
				ID int64 `json:"id"`
			} `json:"author"`
		} `json:"comments"`
	}
	parseJSON(t, resp, &post)

	if len(post.Likes) != 1 || post.Likes[0] != fan.ID {
		t.Errorf("likes = %v, want [%d]", post.Likes, fan.ID)
	}
	if len(post.Comments) != 1 || post.Comments[0].Text != "great shot" {
		t.Errorf("comments = %+v, want one %q", post.Comments, "great shot")
	}
	if len(post.Comments) == 1 && post.Comments[0].Author.ID != fan.ID {
		t.Errorf("comment author = %d, want %d", post.Comments[0].Author.ID, fan.ID)
	}
}
