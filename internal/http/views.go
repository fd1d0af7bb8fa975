package http

import (
	"context"
	"time"

	"github.com/realworld-apps/conduit/internal/model"
)

// Response shapes. Every entity the API returns is assembled from
// several store reads; the assemblers below do that composition.

type userView struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	Image    string `json:"image"`
}

type profileView struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	Image     string `json:"image"`
	Following bool   `json:"following"`
}

type articleView struct {
	Slug           string      `json:"slug"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Body           string      `json:"body"`
	TagList        []string    `json:"tagList"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	Favorited      bool        `json:"favorited"`
	FavoritesCount int         `json:"favoritesCount"`
	Author         profileView `json:"author"`
}

type commentView struct {
	ID        int64       `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Body      string      `json:"body"`
	Author    profileView `json:"author"`
}

func (s *Server) userView(user model.User, token string) userView {
	return userView{
		Email:    user.Email,
		Token:    token,
		Username: user.Username,
		Bio:      user.Bio,
		Image:    user.Image,
	}
}

// profileViewOf reports the target user as seen by the viewer; following
// is false when there is no viewer.
func (s *Server) profileViewOf(ctx context.Context, target model.User, viewer *model.User) (profileView, error) {
	following := false
	if viewer != nil && viewer.ID != target.ID {
		var err error
		following, err = s.store.IsFollowing(ctx, viewer.ID, target.ID)
		if err != nil {
			return profileView{}, err
		}
	}
	return profileView{
		Username:  target.Username,
		Bio:       target.Bio,
		Image:     target.Image,
		Following: following,
	}, nil
}

// articleViewOf assembles the full article read model: sorted tag list,
// favorites count, the viewer's favorited flag and the author profile.
func (s *Server) articleViewOf(ctx context.Context, article model.Article, viewer *model.User) (articleView, error) {
	tags, err := s.store.ListArticleTags(ctx, article.ID)
	if err != nil {
		return articleView{}, err
	}
	if tags == nil {
		tags = []string{}
	}

	favoriteIDs, err := s.store.ListFavoriteUserIDs(ctx, article.ID)
	if err != nil {
		return articleView{}, err
	}
	favorited := false
	if viewer != nil {
		for _, id := range favoriteIDs {
			if id == viewer.ID {
				favorited = true
				break
			}
		}
	}

	author, err := s.store.GetUser(ctx, article.AuthorID)
	if err != nil {
		return articleView{}, err
	}
	authorProfile, err := s.profileViewOf(ctx, author, viewer)
	if err != nil {
		return articleView{}, err
	}

	return articleView{
		Slug:           article.Slug,
		Title:          article.Title,
		Description:    article.Description,
		Body:           article.Body,
		TagList:        tags,
		CreatedAt:      article.CreatedAt,
		UpdatedAt:      article.UpdatedAt,
		Favorited:      favorited,
		FavoritesCount: len(favoriteIDs),
		Author:         authorProfile,
	}, nil
}

func (s *Server) commentViewOf(ctx context.Context, comment model.Comment, viewer *model.User) (commentView, error) {
	author, err := s.store.GetUser(ctx, comment.AuthorID)
	if err != nil {
		return commentView{}, err
	}
	authorProfile, err := s.profileViewOf(ctx, author, viewer)
	if err != nil {
		return commentView{}, err
	}
	return commentView{
		ID:        comment.ID,
		CreatedAt: comment.CreatedAt,
		UpdatedAt: comment.UpdatedAt,
		Body:      comment.Body,
		Author:    authorProfile,
	}, nil
}
