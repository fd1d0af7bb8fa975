package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/realworld-apps/conduit/internal/auth"
	"github.com/realworld-apps/conduit/internal/config"
	"github.com/realworld-apps/conduit/internal/model"
	"github.com/realworld-apps/conduit/internal/rate"
	"github.com/realworld-apps/conduit/internal/store"
)

type Server struct {
	store   store.Store
	auth    *auth.Service
	limiter rate.Limiter
	limits  config.RateLimits
	routes  []route
}

// route is one entry in the dispatch table. Pattern segments starting
// with ':' capture the path segment under that name.
type route struct {
	method   string
	segments []string
	auth     bool
	handler  func(http.ResponseWriter, *http.Request, params)
}

type params map[string]string

func NewServer(st store.Store, authSvc *auth.Service, limiter rate.Limiter, limits config.RateLimits) *Server {
	s := &Server{
		store:   st,
		auth:    authSvc,
		limiter: limiter,
		limits:  limits,
	}
	s.routes = []route{
		{method: http.MethodGet, segments: split("/api/health"), handler: s.handleHealth},

		{method: http.MethodPost, segments: split("/api/users"), handler: s.handleRegister},
		{method: http.MethodPost, segments: split("/api/users/login"), handler: s.handleLogin},
		{method: http.MethodGet, segments: split("/api/user"), auth: true, handler: s.handleCurrentUser},
		{method: http.MethodPut, segments: split("/api/user"), auth: true, handler: s.handleUpdateUser},

		{method: http.MethodGet, segments: split("/api/profiles/:username"), handler: s.handleGetProfile},
		{method: http.MethodPost, segments: split("/api/profiles/:username/follow"), auth: true, handler: s.handleFollow},
		{method: http.MethodDelete, segments: split("/api/profiles/:username/follow"), auth: true, handler: s.handleUnfollow},

		{method: http.MethodGet, segments: split("/api/articles"), handler: s.handleListArticles},
		{method: http.MethodGet, segments: split("/api/articles/feed"), auth: true, handler: s.handleFeed},
		{method: http.MethodPost, segments: split("/api/articles"), auth: true, handler: s.handleCreateArticle},
		{method: http.MethodGet, segments: split("/api/articles/:slug"), handler: s.handleGetArticle},
		{method: http.MethodPut, segments: split("/api/articles/:slug"), auth: true, handler: s.handleUpdateArticle},
		{method: http.MethodDelete, segments: split("/api/articles/:slug"), auth: true, handler: s.handleDeleteArticle},

		{method: http.MethodPost, segments: split("/api/articles/:slug/favorite"), auth: true, handler: s.handleFavorite},
		{method: http.MethodDelete, segments: split("/api/articles/:slug/favorite"), auth: true, handler: s.handleUnfavorite},

		{method: http.MethodGet, segments: split("/api/articles/:slug/comments"), handler: s.handleListComments},
		{method: http.MethodPost, segments: split("/api/articles/:slug/comments"), auth: true, handler: s.handleCreateComment},

		{method: http.MethodGet, segments: split("/api/tags"), handler: s.handleListTags},
	}
	return s
}

func split(pattern string) []string {
	return strings.Split(strings.Trim(pattern, "/"), "/")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := split(r.URL.Path)

	pathMatched := false
	for _, rt := range s.routes {
		ps, ok := match(rt.segments, segments)
		if !ok {
			continue
		}
		pathMatched = true
		if rt.method != r.Method {
			continue
		}
		if rt.auth {
			user, err := s.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			r = r.WithContext(withUser(r.Context(), user))
		}
		rt.handler(w, r, ps)
		return
	}

	if pathMatched {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeError(w, http.StatusNotFound, "not found")
}

func match(pattern, segments []string) (params, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	var ps params
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if segments[i] == "" {
				return nil, false
			}
			if ps == nil {
				ps = make(params)
			}
			ps[seg[1:]] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}
	return ps, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allowRateLimit enforces a per-client fixed window and writes a 429 if
// the caller is over it. Returns false when the request should stop.
func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, class string, perMinute int) bool {
	if s.limiter == nil || perMinute <= 0 {
		return true
	}
	key := class + ":" + clientIP(r)
	ok, retryIn := s.limiter.Allow(key, perMinute, time.Minute)
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryIn.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type ctxKey int

const userCtxKey ctxKey = iota

func withUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// requireUser returns the authenticated user placed on the context by
// the route table's auth guard.
func requireUser(r *http.Request) model.User {
	user, _ := r.Context().Value(userCtxKey).(model.User)
	return user
}

// currentUser resolves an optional identity: a valid token yields the
// user, anything else yields nil without failing the request.
func (s *Server) currentUser(r *http.Request) *model.User {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil
	}
	user, err := s.auth.Authenticate(r.Context(), header)
	if err != nil {
		return nil
	}
	return &user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the store's sentinel errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already taken")
	case errors.Is(err, store.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, "username already taken")
	case errors.Is(err, store.ErrDuplicateSlug):
		writeError(w, http.StatusConflict, "an article with this slug already exists")
	case errors.Is(err, store.ErrDuplicateFavorite):
		writeError(w, http.StatusConflict, "article already favorited")
	case errors.Is(err, store.ErrDuplicateFollow):
		writeError(w, http.StatusConflict, "already following this profile")
	default:
		log.Printf("http: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
