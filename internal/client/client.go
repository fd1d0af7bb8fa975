// Package client is a typed Go client for the Conduit REST API. It is
// used by cmd/seed and by the integration tests.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type User struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	Image    string `json:"image"`
}

type Profile struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	Image     string `json:"image"`
	Following bool   `json:"following"`
}

type Article struct {
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Body           string    `json:"body"`
	TagList        []string  `json:"tagList"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Favorited      bool      `json:"favorited"`
	FavoritesCount int       `json:"favoritesCount"`
	Author         Profile   `json:"author"`
}

type Comment struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Body      string    `json:"body"`
	Author    Profile   `json:"author"`
}

type ArticleList struct {
	Articles      []Article `json:"articles"`
	ArticlesCount int       `json:"articlesCount"`
}

type userEnvelope struct {
	User User `json:"user"`
}

type profileEnvelope struct {
	Profile Profile `json:"profile"`
}

type articleEnvelope struct {
	Article Article `json:"article"`
}

type commentEnvelope struct {
	Comment Comment `json:"comment"`
}

type commentsEnvelope struct {
	Comments []Comment `json:"comments"`
}

type tagsEnvelope struct {
	Tags []string `json:"tags"`
}

func (c *Client) doRequest(method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Token "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Register creates an account and stores its token on the client.
func (c *Client) Register(username, email, password string) (User, error) {
	body := map[string]map[string]string{"user": {
		"username": username,
		"email":    email,
		"password": password,
	}}
	var env userEnvelope
	if err := c.doRequest(http.MethodPost, "/api/users", body, &env); err != nil {
		return User{}, err
	}
	c.Token = env.User.Token
	return env.User, nil
}

// Login authenticates and stores the token on the client.
func (c *Client) Login(email, password string) (User, error) {
	body := map[string]map[string]string{"user": {
		"email":    email,
		"password": password,
	}}
	var env userEnvelope
	if err := c.doRequest(http.MethodPost, "/api/users/login", body, &env); err != nil {
		return User{}, err
	}
	c.Token = env.User.Token
	return env.User, nil
}

func (c *Client) CurrentUser() (User, error) {
	var env userEnvelope
	err := c.doRequest(http.MethodGet, "/api/user", nil, &env)
	return env.User, err
}

func (c *Client) UpdateUser(fields map[string]string) (User, error) {
	body := map[string]map[string]string{"user": fields}
	var env userEnvelope
	err := c.doRequest(http.MethodPut, "/api/user", body, &env)
	return env.User, err
}

func (c *Client) GetProfile(username string) (Profile, error) {
	var env profileEnvelope
	err := c.doRequest(http.MethodGet, "/api/profiles/"+url.PathEscape(username), nil, &env)
	return env.Profile, err
}

func (c *Client) Follow(username string) (Profile, error) {
	var env profileEnvelope
	err := c.doRequest(http.MethodPost, "/api/profiles/"+url.PathEscape(username)+"/follow", nil, &env)
	return env.Profile, err
}

func (c *Client) Unfollow(username string) (Profile, error) {
	var env profileEnvelope
	err := c.doRequest(http.MethodDelete, "/api/profiles/"+url.PathEscape(username)+"/follow", nil, &env)
	return env.Profile, err
}

// ListOptions filter and paginate article listings; zero values are
// omitted from the query string.
type ListOptions struct {
	Tag       string
	Author    string
	Favorited string
	Limit     int
	Offset    int
}

func (o ListOptions) encode() string {
	q := url.Values{}
	if o.Tag != "" {
		q.Set("tag", o.Tag)
	}
	if o.Author != "" {
		q.Set("author", o.Author)
	}
	if o.Favorited != "" {
		q.Set("favorited", o.Favorited)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) ListArticles(opts ListOptions) (ArticleList, error) {
	var list ArticleList
	err := c.doRequest(http.MethodGet, "/api/articles"+opts.encode(), nil, &list)
	return list, err
}

func (c *Client) Feed(opts ListOptions) (ArticleList, error) {
	var list ArticleList
	err := c.doRequest(http.MethodGet, "/api/articles/feed"+opts.encode(), nil, &list)
	return list, err
}

func (c *Client) GetArticle(slug string) (Article, error) {
	var env articleEnvelope
	err := c.doRequest(http.MethodGet, "/api/articles/"+url.PathEscape(slug), nil, &env)
	return env.Article, err
}

func (c *Client) CreateArticle(title, description, body string, tags []string) (Article, error) {
	reqBody := map[string]any{"article": map[string]any{
		"title":       title,
		"description": description,
		"body":        body,
		"tagList":     tags,
	}}
	var env articleEnvelope
	err := c.doRequest(http.MethodPost, "/api/articles", reqBody, &env)
	return env.Article, err
}

func (c *Client) UpdateArticle(slug string, fields map[string]string) (Article, error) {
	body := map[string]map[string]string{"article": fields}
	var env articleEnvelope
	err := c.doRequest(http.MethodPut, "/api/articles/"+url.PathEscape(slug), body, &env)
	return env.Article, err
}

func (c *Client) DeleteArticle(slug string) error {
	return c.doRequest(http.MethodDelete, "/api/articles/"+url.PathEscape(slug), nil, nil)
}

func (c *Client) Favorite(slug string) (Article, error) {
	var env articleEnvelope
	err := c.doRequest(http.MethodPost, "/api/articles/"+url.PathEscape(slug)+"/favorite", nil, &env)
	return env.Article, err
}

func (c *Client) Unfavorite(slug string) (Article, error) {
	var env articleEnvelope
	err := c.doRequest(http.MethodDelete, "/api/articles/"+url.PathEscape(slug)+"/favorite", nil, &env)
	return env.Article, err
}

func (c *Client) ListComments(slug string) ([]Comment, error) {
	var env commentsEnvelope
	err := c.doRequest(http.MethodGet, "/api/articles/"+url.PathEscape(slug)+"/comments", nil, &env)
	return env.Comments, err
}

func (c *Client) CreateComment(slug, body string) (Comment, error) {
	reqBody := map[string]map[string]string{"comment": {"body": body}}
	var env commentEnvelope
	err := c.doRequest(http.MethodPost, "/api/articles/"+url.PathEscape(slug)+"/comments", reqBody, &env)
	return env.Comment, err
}

func (c *Client) ListTags() ([]string, error) {
	var env tagsEnvelope
	err := c.doRequest(http.MethodGet, "/api/tags", nil, &env)
	return env.Tags, err
}

// TestHelper wraps a client for tests that need an authenticated user
// without caring how it came to exist.
type TestHelper struct {
	Client *Client
}

// GetToken registers the user if needed and returns a usable token.
func (h *TestHelper) GetToken(username, email, password string) (string, error) {
	user, err := h.Client.Register(username, email, password)
	if err == nil {
		return user.Token, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		user, err = h.Client.Login(email, password)
		if err != nil {
			return "", err
		}
		return user.Token, nil
	}
	return "", err
}
