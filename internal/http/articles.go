package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/realworld-apps/conduit/internal/model"
	"github.com/realworld-apps/conduit/internal/store"
)

type articleBody struct {
	Article struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Body        string   `json:"body"`
		TagList     []string `json:"tagList"`
	} `json:"article"`
}

type articleUpdateBody struct {
	Article struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Body        *string `json:"body"`
	} `json:"article"`
}

type commentBody struct {
	Comment struct {
		Body string `json:"body"`
	} `json:"comment"`
}

type articleResponse struct {
	Article articleView `json:"article"`
}

type articlesResponse struct {
	Articles      []articleView `json:"articles"`
	ArticlesCount int           `json:"articlesCount"`
}

type commentResponse struct {
	Comment commentView `json:"comment"`
}

type commentsResponse struct {
	Comments []commentView `json:"comments"`
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// makeSlug derives a slug from the creation instant and the title. The
// timestamp prefix keeps slugs for same-titled articles distinct down
// to the minute; collisions within a minute surface as a conflict.
func makeSlug(title string, now time.Time) string {
	return now.UTC().Format("20060102T15:04") + "-" + strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request, _ params) {
	q := r.URL.Query()
	filter := store.ArticleFilter{
		Tag:         q.Get("tag"),
		Author:      q.Get("author"),
		FavoritedBy: q.Get("favorited"),
		Limit:       clamp(parseIntDefault(q.Get("limit"), defaultPageLimit), 1, maxPageLimit),
		Offset:      parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	s.respondWithArticles(w, r, filter, s.currentUser(r))
}

// handleFeed lists the articles the caller has favorited.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, _ params) {
	user := requireUser(r)
	q := r.URL.Query()
	filter := store.ArticleFilter{
		FavoritedByID: user.ID,
		Limit:         clamp(parseIntDefault(q.Get("limit"), defaultPageLimit), 1, maxPageLimit),
		Offset:        parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	s.respondWithArticles(w, r, filter, &user)
}

func (s *Server) respondWithArticles(w http.ResponseWriter, r *http.Request, filter store.ArticleFilter, viewer *model.User) {
	articles, err := s.store.ListArticles(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]articleView, 0, len(articles))
	for _, article := range articles {
		view, err := s.articleViewOf(r.Context(), article, viewer)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, articlesResponse{Articles: views, ArticlesCount: len(views)})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request, ps params) {
	article, err := s.store.GetArticleBySlug(r.Context(), ps["slug"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	view, err := s.articleViewOf(r.Context(), article, s.currentUser(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{Article: view})
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request, _ params) {
	if !s.allowRateLimit(w, r, "article", s.limits.ArticlePerMinute) {
		return
	}
	user := requireUser(r)

	var body articleBody
	if !readJSON(w, r, &body) {
		return
	}
	title := strings.TrimSpace(body.Article.Title)
	if title == "" || body.Article.Description == "" || body.Article.Body == "" {
		writeError(w, http.StatusBadRequest, "title, description and body are required")
		return
	}

	now := time.Now()
	article := model.Article{
		Slug:        makeSlug(title, now),
		Title:       title,
		Description: body.Article.Description,
		Body:        body.Article.Body,
		AuthorID:    user.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.store.CreateArticle(r.Context(), &article)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	article.ID = id

	// Tags are ensured first and linked second, so concurrent creates
	// sharing a tag converge on one tag row.
	for _, name := range normalizeTags(body.Article.TagList) {
		tagID, err := s.store.EnsureTag(r.Context(), name)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if err := s.store.TagArticle(r.Context(), article.ID, tagID); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	view, err := s.articleViewOf(r.Context(), article, &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{Article: view})
}

func normalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var tags []string
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tags = append(tags, name)
	}
	return tags
}

func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request, ps params) {
	if !s.allowRateLimit(w, r, "article", s.limits.ArticlePerMinute) {
		return
	}
	user := requireUser(r)

	article, err := s.store.GetArticleBySlug(r.Context(), ps["slug"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if article.AuthorID != user.ID {
		writeError(w, http.StatusForbidden, "not the article author")
		return
	}

	var body articleUpdateBody
	if !readJSON(w, r, &body) {
		return
	}

	updated, err := s.store.UpdateArticle(r.Context(), article.ID, store.ArticleUpdate{
		Title:       body.Article.Title,
		Description: body.Article.Description,
		Body:        body.Article.Body,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	view, err := s.articleViewOf(r.Context(), updated, &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{Article: view})
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request, ps params) {
	if !s.allowRateLimit(w, r, "article", s.limits.ArticlePerMinute) {
		return
	}
	user := requireUser(r)

	article, err := s.store.GetArticleBySlug(r.Context(), ps["slug"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if article.AuthorID != user.ID {
		writeError(w, http.StatusForbidden, "not the article author")
		return
	}
	if err := s.store.DeleteArticle(r.Context(), article.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request, ps params) {
	if !s.allowRateLimit(w, r, "relation", s.limits.RelationPerMinute) {
		return
	}
	user := requireUser(r)

	article, err := s.store.GetArticleBySlug(r.Context(), ps["slug"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.CreateFavorite(r.Context(), user.ID, article.ID); err != nil {
		writeStoreError(w, err)
		return
	}

	view, err := s.articleViewOf(r.Context(), article, &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{Article: view})
}

func (s *Server) handleUnfavorite(w http.ResponseWriter, r *http.Request, ps params) {
	if !s.allowRateLimit(w, r, "relation", s.limits.RelationPerMinute) {
		return
	}
	user := requireUser(r)

	article, err := s.store.GetArticleBySlug(r.Context(), ps["slug"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.DeleteFavorite(r.Context(), user.ID, article.ID); err != nil {
		writeStoreError(w, err)
		return
	}

	view, err := s.articleViewOf(r.Context(), article, &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{Article: view})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request, ps params) {
	article, err := s.store.GetArticleBySlug(r.Context(), ps["slug"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	comments, err := s.store.ListCommentsByArticle(r.Context(), article.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	viewer := s.currentUser(r)
	views := make([]commentView, 0, len(comments))
	for _, comment := range comments {
		view, err := s.commentViewOf(r.Context(), comment, viewer)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, commentsResponse{Comments: views})
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, ps params) {
	if !s.allowRateLimit(w, r, "comment", s.limits.CommentPerMinute) {
		return
	}
	user := requireUser(r)

	article, err := s.store.GetArticleBySlug(r.Context(), ps["slug"])
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var body commentBody
	if !readJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Comment.Body) == "" {
		writeError(w, http.StatusBadRequest, "comment body is required")
		return
	}

	now := time.Now()
	comment := model.Comment{
		ArticleID: article.ID,
		AuthorID:  user.ID,
		Body:      body.Comment.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.store.CreateComment(r.Context(), &comment)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	comment.ID = id

	view, err := s.commentViewOf(r.Context(), comment, &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commentResponse{Comment: view})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request, _ params) {
	tags, err := s.store.ListTags(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, tagsResponse{Tags: tags})
}
