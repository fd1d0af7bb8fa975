package model

import "time"

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Bio          string
	Image        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Article struct {
	ID          int64
	Slug        string
	Title       string
	Description string
	Body        string
	AuthorID    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Comment struct {
	ID        int64
	ArticleID int64
	AuthorID  int64
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Tag struct {
	ID   int64
	Name string
}

// Favorite is a (user, article) like relation, unique per pair.
type Favorite struct {
	UserID    int64
	ArticleID int64
	CreatedAt time.Time
}

// Follow is a one-directional (follower, following) relation, unique per pair.
type Follow struct {
	FollowerID  int64
	FollowingID int64
	CreatedAt   time.Time
}
