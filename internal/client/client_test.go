package client

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/realworld-apps/conduit/internal/auth"
	"github.com/realworld-apps/conduit/internal/config"
	httpserver "github.com/realworld-apps/conduit/internal/http"
	"github.com/realworld-apps/conduit/internal/rate"
	"github.com/realworld-apps/conduit/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	st, err := sqlite.Open(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	authSvc := auth.NewService(st, "client-test-secret", time.Hour)
	limits := config.RateLimits{ArticlePerMinute: 1000, CommentPerMinute: 1000, RelationPerMinute: 1000}
	srv := httpserver.NewServer(st, authSvc, rate.NewMemory(), limits)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func TestGetTokenRegistersThenLogsIn(t *testing.T) {
	ts := newTestServer(t)

	h := &TestHelper{Client: New(ts.URL)}
	token, err := h.GetToken("helper", "helper@example.com", "secret123")
	if err != nil {
		t.Fatalf("first GetToken: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	// Second call hits the conflict path and falls back to login.
	h2 := &TestHelper{Client: New(ts.URL)}
	token2, err := h2.GetToken("helper", "helper@example.com", "secret123")
	if err != nil {
		t.Fatalf("second GetToken: %v", err)
	}
	if token2 == "" {
		t.Fatal("empty token on login path")
	}
}

func TestGetTokenWrongPassword(t *testing.T) {
	ts := newTestServer(t)

	h := &TestHelper{Client: New(ts.URL)}
	if _, err := h.GetToken("helper", "helper@example.com", "secret123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	h2 := &TestHelper{Client: New(ts.URL)}
	if _, err := h2.GetToken("helper", "helper@example.com", "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestTokenAttachedToRequests(t *testing.T) {
	ts := newTestServer(t)

	c := New(ts.URL)
	if _, err := c.Register("writer", "writer@example.com", "secret123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := c.CurrentUser()
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.Username != "writer" {
		t.Fatalf("got %q, want writer", user.Username)
	}

	article, err := c.CreateArticle("Client Side", "d", "b", []string{"client"})
	if err != nil {
		t.Fatalf("create article: %v", err)
	}
	if article.Author.Username != "writer" {
		t.Fatalf("author %q, want writer", article.Author.Username)
	}

	if err := c.DeleteArticle(article.Slug); err != nil {
		t.Fatalf("delete article: %v", err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	ts := newTestServer(t)

	c := New(ts.URL)
	_, err := c.GetArticle("no-such-slug")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("got %T, want *APIError", err)
	}
	if apiErr.StatusCode != 404 {
		t.Fatalf("status %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Error() == "" {
		t.Fatal("empty error string")
	}
}
