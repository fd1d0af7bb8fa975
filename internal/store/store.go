package store

import (
	"context"
	"errors"

	"github.com/realworld-apps/conduit/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateSlug     = errors.New("duplicate slug")
	ErrDuplicateFavorite = errors.New("duplicate favorite")
	ErrDuplicateFollow   = errors.New("duplicate follow")
)

// ArticleFilter is a conjunctive list of article predicates. A zero-value
// field means the predicate is absent and must not constrain the result.
type ArticleFilter struct {
	Tag           string // articles carrying this tag name
	Author        string // articles authored by this username
	FavoritedBy   string // articles favorited by this username
	FavoritedByID int64  // articles favorited by this user id (feed)
	Limit         int
	Offset        int
}

// UserUpdate carries a partial user mutation; nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	Username     *string
	PasswordHash *string
	Bio          *string
	Image        *string
}

// ArticleUpdate carries a partial article mutation; nil fields are left untouched.
type ArticleUpdate struct {
	Title       *string
	Description *string
	Body        *string
}

type Store interface {
	UserStore
	ArticleStore
	CommentStore
	TagStore
	FavoriteStore
	FollowStore
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (model.User, error)
}

type ArticleStore interface {
	CreateArticle(ctx context.Context, article *model.Article) (int64, error)
	GetArticleBySlug(ctx context.Context, slug string) (model.Article, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error)
	UpdateArticle(ctx context.Context, id int64, upd ArticleUpdate) (model.Article, error)
	DeleteArticle(ctx context.Context, id int64) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	ListCommentsByArticle(ctx context.Context, articleID int64) ([]model.Comment, error)
}

type TagStore interface {
	EnsureTag(ctx context.Context, name string) (int64, error)
	TagArticle(ctx context.Context, articleID, tagID int64) error
	ListArticleTags(ctx context.Context, articleID int64) ([]string, error)
	ListTags(ctx context.Context) ([]string, error)
}

type FavoriteStore interface {
	CreateFavorite(ctx context.Context, userID, articleID int64) error
	DeleteFavorite(ctx context.Context, userID, articleID int64) error
	ListFavoriteUserIDs(ctx context.Context, articleID int64) ([]int64, error)
}

type FollowStore interface {
	CreateFollow(ctx context.Context, followerID, followingID int64) error
	DeleteFollow(ctx context.Context, followerID, followingID int64) error
	IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error)
}
