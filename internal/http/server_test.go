package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realworld-apps/conduit/internal/auth"
	"github.com/realworld-apps/conduit/internal/config"
	"github.com/realworld-apps/conduit/internal/rate"
	"github.com/realworld-apps/conduit/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	st, err := sqlite.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	authSvc := auth.NewService(st, "test-secret", time.Hour)
	limits := config.RateLimits{ArticlePerMinute: 1000, CommentPerMinute: 1000, RelationPerMinute: 1000}
	srv := NewServer(st, authSvc, rate.NewMemory(), limits)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

type testClient struct {
	t       *testing.T
	baseURL string
	token   string
}

func (c *testClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func registerUser(t *testing.T, ts *httptest.Server, username, email string) *testClient {
	t.Helper()
	c := &testClient{t: t, baseURL: ts.URL}
	resp := c.do(http.MethodPost, "/api/users", map[string]map[string]string{
		"user": {"username": username, "email": email, "password": "secret123"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeJSON[userResponse](t, resp)
	require.NotEmpty(t, env.User.Token)
	c.token = env.User.Token
	return c
}

func createArticle(t *testing.T, c *testClient, title string, tags []string) articleView {
	t.Helper()
	resp := c.do(http.MethodPost, "/api/articles", map[string]any{
		"article": map[string]any{
			"title":       title,
			"description": "desc",
			"body":        "body",
			"tagList":     tags,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeJSON[articleResponse](t, resp).Article
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts, "alice", "alice@example.com")

	anon := &testClient{t: t, baseURL: ts.URL}

	resp := anon.do(http.MethodPost, "/api/users/login", map[string]map[string]string{
		"user": {"email": "alice@example.com", "password": "secret123"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeJSON[userResponse](t, resp)
	assert.Equal(t, "alice", env.User.Username)
	assert.NotEmpty(t, env.User.Token)

	resp = anon.do(http.MethodPost, "/api/users/login", map[string]map[string]string{
		"user": {"email": "alice@example.com", "password": "wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = anon.do(http.MethodPost, "/api/users/login", map[string]map[string]string{
		"user": {"email": "nobody@example.com", "password": "secret123"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterDuplicate(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts, "alice", "alice@example.com")

	anon := &testClient{t: t, baseURL: ts.URL}
	resp := anon.do(http.MethodPost, "/api/users", map[string]map[string]string{
		"user": {"username": "alice", "email": "other@example.com", "password": "secret123"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCurrentUserAndUpdate(t *testing.T) {
	ts := newTestServer(t)
	c := registerUser(t, ts, "alice", "alice@example.com")

	resp := c.do(http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeJSON[userResponse](t, resp)
	assert.Equal(t, "alice@example.com", env.User.Email)

	resp = c.do(http.MethodPut, "/api/user", map[string]map[string]string{
		"user": {"bio": "I write tests"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env = decodeJSON[userResponse](t, resp)
	assert.Equal(t, "I write tests", env.User.Bio)
	assert.Equal(t, "alice", env.User.Username)

	anon := &testClient{t: t, baseURL: ts.URL}
	resp = anon.do(http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestFollowFlip(t *testing.T) {
	ts := newTestServer(t)
	alice := registerUser(t, ts, "alice", "alice@example.com")
	registerUser(t, ts, "bob", "bob@example.com")

	resp := alice.do(http.MethodGet, "/api/profiles/bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeJSON[profileResponse](t, resp).Profile
	assert.False(t, profile.Following)

	resp = alice.do(http.MethodPost, "/api/profiles/bob/follow", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile = decodeJSON[profileResponse](t, resp).Profile
	assert.True(t, profile.Following)

	resp = alice.do(http.MethodPost, "/api/profiles/bob/follow", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = alice.do(http.MethodDelete, "/api/profiles/bob/follow", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile = decodeJSON[profileResponse](t, resp).Profile
	assert.False(t, profile.Following)

	resp = alice.do(http.MethodDelete, "/api/profiles/bob/follow", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateArticleSortsTags(t *testing.T) {
	ts := newTestServer(t)
	c := registerUser(t, ts, "alice", "alice@example.com")

	article := createArticle(t, c, "Tag Order", []string{"b", "a", "a", " "})
	assert.Equal(t, []string{"a", "b"}, article.TagList)
	assert.Contains(t, article.Slug, "-tag-order")
	assert.Equal(t, "alice", article.Author.Username)
}

func TestUpdateArticleForbiddenForNonAuthor(t *testing.T) {
	ts := newTestServer(t)
	alice := registerUser(t, ts, "alice", "alice@example.com")
	bob := registerUser(t, ts, "bob", "bob@example.com")

	article := createArticle(t, alice, "Mine", nil)

	resp := bob.do(http.MethodPut, "/api/articles/"+article.Slug, map[string]map[string]string{
		"article": {"title": "Stolen"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = bob.do(http.MethodDelete, "/api/articles/"+article.Slug, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = alice.do(http.MethodPut, "/api/articles/"+article.Slug, map[string]map[string]string{
		"article": {"title": "Renamed"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeJSON[articleResponse](t, resp).Article
	assert.Equal(t, "Renamed", updated.Title)
	// Slug stays stable across edits.
	assert.Equal(t, article.Slug, updated.Slug)
}

func TestDeleteArticle(t *testing.T) {
	ts := newTestServer(t)
	c := registerUser(t, ts, "alice", "alice@example.com")
	article := createArticle(t, c, "Doomed", nil)

	resp := c.do(http.MethodDelete, "/api/articles/"+article.Slug, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/articles/"+article.Slug, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestFavoriteRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	alice := registerUser(t, ts, "alice", "alice@example.com")
	bob := registerUser(t, ts, "bob", "bob@example.com")
	article := createArticle(t, alice, "Likeable", nil)

	resp := bob.do(http.MethodPost, "/api/articles/"+article.Slug+"/favorite", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[articleResponse](t, resp).Article
	assert.True(t, got.Favorited)
	assert.Equal(t, 1, got.FavoritesCount)

	// The author sees the count but not the flag.
	resp = alice.do(http.MethodGet, "/api/articles/"+article.Slug, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decodeJSON[articleResponse](t, resp).Article
	assert.False(t, got.Favorited)
	assert.Equal(t, 1, got.FavoritesCount)

	resp = bob.do(http.MethodPost, "/api/articles/"+article.Slug+"/favorite", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = bob.do(http.MethodDelete, "/api/articles/"+article.Slug+"/favorite", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decodeJSON[articleResponse](t, resp).Article
	assert.False(t, got.Favorited)
	assert.Equal(t, 0, got.FavoritesCount)

	resp = bob.do(http.MethodDelete, "/api/articles/"+article.Slug+"/favorite", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestFeedRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	anon := &testClient{t: t, baseURL: ts.URL}

	resp := anon.do(http.MethodGet, "/api/articles/feed", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestFeedListsFavoritedArticles(t *testing.T) {
	ts := newTestServer(t)
	alice := registerUser(t, ts, "alice", "alice@example.com")
	bob := registerUser(t, ts, "bob", "bob@example.com")

	liked := createArticle(t, alice, "Liked One", nil)
	createArticle(t, alice, "Ignored One", nil)

	resp := bob.do(http.MethodPost, "/api/articles/"+liked.Slug+"/favorite", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = bob.do(http.MethodGet, "/api/articles/feed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	feed := decodeJSON[articlesResponse](t, resp)
	require.Equal(t, 1, feed.ArticlesCount)
	assert.Equal(t, liked.Slug, feed.Articles[0].Slug)
	assert.True(t, feed.Articles[0].Favorited)
}

func TestListArticlesFilters(t *testing.T) {
	ts := newTestServer(t)
	alice := registerUser(t, ts, "alice", "alice@example.com")
	bob := registerUser(t, ts, "bob", "bob@example.com")

	createArticle(t, alice, "Go Piece", []string{"go"})
	createArticle(t, bob, "Go Other", []string{"go"})
	createArticle(t, alice, "Rust Piece", []string{"rust"})

	anon := &testClient{t: t, baseURL: ts.URL}

	resp := anon.do(http.MethodGet, "/api/articles?tag=go", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeJSON[articlesResponse](t, resp)
	assert.Equal(t, 2, list.ArticlesCount)

	resp = anon.do(http.MethodGet, "/api/articles?tag=go&author=alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decodeJSON[articlesResponse](t, resp)
	require.Equal(t, 1, list.ArticlesCount)
	assert.Equal(t, "Go Piece", list.Articles[0].Title)

	resp = anon.do(http.MethodGet, "/api/articles?tag=none", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decodeJSON[articlesResponse](t, resp)
	assert.Equal(t, 0, list.ArticlesCount)
	assert.NotNil(t, list.Articles)
}

func TestCommentsFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := registerUser(t, ts, "alice", "alice@example.com")
	bob := registerUser(t, ts, "bob", "bob@example.com")
	article := createArticle(t, alice, "Discussable", nil)

	resp := bob.do(http.MethodPost, "/api/articles/"+article.Slug+"/comments", map[string]map[string]string{
		"comment": {"body": "nice one"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	comment := decodeJSON[commentResponse](t, resp).Comment
	assert.Equal(t, "nice one", comment.Body)
	assert.Equal(t, "bob", comment.Author.Username)

	anon := &testClient{t: t, baseURL: ts.URL}
	resp = anon.do(http.MethodGet, "/api/articles/"+article.Slug+"/comments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	comments := decodeJSON[commentsResponse](t, resp).Comments
	require.Len(t, comments, 1)
	assert.Equal(t, comment.ID, comments[0].ID)

	resp = anon.do(http.MethodPost, "/api/articles/"+article.Slug+"/comments", map[string]map[string]string{
		"comment": {"body": "anon"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestTagsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	c := registerUser(t, ts, "alice", "alice@example.com")
	createArticle(t, c, "Tagged", []string{"zebra", "apple"})

	anon := &testClient{t: t, baseURL: ts.URL}
	resp := anon.do(http.MethodGet, "/api/tags", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tags := decodeJSON[tagsResponse](t, resp)
	assert.Equal(t, []string{"apple", "zebra"}, tags.Tags)
}

func TestRouting(t *testing.T) {
	ts := newTestServer(t)
	anon := &testClient{t: t, baseURL: ts.URL}

	resp := anon.do(http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = anon.do(http.MethodPatch, "/api/tags", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()

	resp = anon.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestInvalidTokenIsAnonymousOnOptionalRoutes(t *testing.T) {
	ts := newTestServer(t)
	alice := registerUser(t, ts, "alice", "alice@example.com")
	article := createArticle(t, alice, "Public", nil)

	bad := &testClient{t: t, baseURL: ts.URL, token: "garbage"}
	resp := bad.do(http.MethodGet, "/api/articles/"+article.Slug, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[articleResponse](t, resp).Article
	assert.False(t, got.Favorited)

	// The same garbage token on a guarded route fails.
	resp = bad.do(http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
