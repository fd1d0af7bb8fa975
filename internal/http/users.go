package http

import (
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/realworld-apps/conduit/internal/model"
	"github.com/realworld-apps/conduit/internal/store"
)

type userBody struct {
	User struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"user"`
}

type userUpdateBody struct {
	User struct {
		Email    *string `json:"email"`
		Username *string `json:"username"`
		Password *string `json:"password"`
		Bio      *string `json:"bio"`
		Image    *string `json:"image"`
	} `json:"user"`
}

type userResponse struct {
	User userView `json:"user"`
}

type profileResponse struct {
	Profile profileView `json:"profile"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ params) {
	var body userBody
	if !readJSON(w, r, &body) {
		return
	}
	email := strings.TrimSpace(body.User.Email)
	username := strings.TrimSpace(body.User.Username)
	if email == "" || username == "" || body.User.Password == "" {
		writeError(w, http.StatusBadRequest, "email, username and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.User.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("http: hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	user := model.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := s.store.CreateUser(r.Context(), &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	user.ID = id

	s.respondWithUser(w, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ params) {
	var body userBody
	if !readJSON(w, r, &body) {
		return
	}
	if body.User.Email == "" || body.User.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), body.User.Email)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.User.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.respondWithUser(w, user)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request, _ params) {
	s.respondWithUser(w, requireUser(r))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, _ params) {
	user := requireUser(r)

	var body userUpdateBody
	if !readJSON(w, r, &body) {
		return
	}

	upd := store.UserUpdate{
		Email:    body.User.Email,
		Username: body.User.Username,
		Bio:      body.User.Bio,
		Image:    body.User.Image,
	}
	if body.User.Password != nil {
		if *body.User.Password == "" {
			writeError(w, http.StatusBadRequest, "password must not be empty")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*body.User.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("http: hash password: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hashed := string(hash)
		upd.PasswordHash = &hashed
	}

	updated, err := s.store.UpdateUser(r.Context(), user.ID, upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.respondWithUser(w, updated)
}

// respondWithUser issues a fresh token and writes the user envelope.
func (s *Server) respondWithUser(w http.ResponseWriter, user model.User) {
	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		log.Printf("http: issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: s.userView(user, token)})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, ps params) {
	target, err := s.store.GetUserByUsername(r.Context(), ps["username"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	profile, err := s.profileViewOf(r.Context(), target, s.currentUser(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: profile})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request, ps params) {
	if !s.allowRateLimit(w, r, "relation", s.limits.RelationPerMinute) {
		return
	}
	user := requireUser(r)

	target, err := s.store.GetUserByUsername(r.Context(), ps["username"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if target.ID == user.ID {
		writeError(w, http.StatusConflict, "cannot follow yourself")
		return
	}
	if err := s.store.CreateFollow(r.Context(), user.ID, target.ID); err != nil {
		writeStoreError(w, err)
		return
	}

	profile, err := s.profileViewOf(r.Context(), target, &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: profile})
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request, ps params) {
	if !s.allowRateLimit(w, r, "relation", s.limits.RelationPerMinute) {
		return
	}
	user := requireUser(r)

	target, err := s.store.GetUserByUsername(r.Context(), ps["username"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.DeleteFollow(r.Context(), user.ID, target.ID); err != nil {
		writeStoreError(w, err)
		return
	}

	profile, err := s.profileViewOf(r.Context(), target, &user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: profile})
}
