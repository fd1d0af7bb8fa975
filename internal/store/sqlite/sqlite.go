package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/realworld-apps/conduit/internal/model"
	"github.com/realworld-apps/conduit/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL,
	username TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	bio TEXT,
	image TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	body TEXT NOT NULL,
	author_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_slug ON articles(slug);
CREATE INDEX IF NOT EXISTS idx_articles_author ON articles(author_id);
CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at DESC);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name ON tags(name);

CREATE TABLE IF NOT EXISTS article_tags (
	article_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	FOREIGN KEY(article_id) REFERENCES articles(id),
	FOREIGN KEY(tag_id) REFERENCES tags(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_article_tags_unique ON article_tags(article_id, tag_id);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	article_id INTEGER NOT NULL,
	author_id INTEGER NOT NULL,
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(article_id) REFERENCES articles(id),
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_article ON comments(article_id);

CREATE TABLE IF NOT EXISTS favorites (
	user_id INTEGER NOT NULL,
	article_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id),
	FOREIGN KEY(article_id) REFERENCES articles(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_favorites_unique ON favorites(user_id, article_id);

CREATE TABLE IF NOT EXISTS follows (
	follower_id INTEGER NOT NULL,
	following_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(follower_id) REFERENCES users(id),
	FOREIGN KEY(following_id) REFERENCES users(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_follows_unique ON follows(follower_id, following_id);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (email, username, password_hash, bio, image, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, user.Email, user.Username, user.PasswordHash, nullIfEmpty(user.Bio), nullIfEmpty(user.Image), user.CreatedAt.Unix(), user.UpdatedAt.Unix())
	if err != nil {
		return 0, mapUserUniqueViolation(err)
	}
	return res.LastInsertId()
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, username, password_hash, bio, image, created_at, updated_at
FROM users
WHERE id = ?
`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, username, password_hash, bio, image, created_at, updated_at
FROM users
WHERE email = ?
`, email)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, username, password_hash, bio, image, created_at, updated_at
FROM users
WHERE username = ?
`, username)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd store.UserUpdate) (model.User, error) {
	var sets []string
	var args []any
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *upd.Email)
	}
	if upd.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *upd.Username)
	}
	if upd.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *upd.PasswordHash)
	}
	if upd.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, nullIfEmpty(*upd.Bio))
	}
	if upd.Image != nil {
		sets = append(sets, "image = ?")
		args = append(args, nullIfEmpty(*upd.Image))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().Unix())
		args = append(args, id)
		query := fmt.Sprintf(`UPDATE users SET %s WHERE id = ?`, strings.Join(sets, ", "))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return model.User{}, mapUserUniqueViolation(err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return model.User{}, store.ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) CreateArticle(ctx context.Context, article *model.Article) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO articles (slug, title, description, body, author_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, article.Slug, article.Title, article.Description, article.Body, article.AuthorID, article.CreatedAt.Unix(), article.UpdatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateSlug
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetArticleBySlug(ctx context.Context, slug string) (model.Article, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, slug, title, description, body, author_id, created_at, updated_at
FROM articles
WHERE slug = ?
`, slug)
	return scanArticle(row)
}

// ListArticles composes the present filters conjunctively. Each predicate is
// appended to the WHERE clause only when its filter field is set.
func (s *Store) ListArticles(ctx context.Context, filter store.ArticleFilter) ([]model.Article, error) {
	conds := []string{"1 = 1"}
	var args []any

	if filter.Tag != "" {
		conds = append(conds, `a.id IN (
			SELECT at.article_id FROM article_tags at
			JOIN tags t ON t.id = at.tag_id
			WHERE t.name = ?)`)
		args = append(args, filter.Tag)
	}
	if filter.Author != "" {
		conds = append(conds, `a.author_id IN (SELECT id FROM users WHERE username = ?)`)
		args = append(args, filter.Author)
	}
	if filter.FavoritedBy != "" {
		conds = append(conds, `a.id IN (
			SELECT f.article_id FROM favorites f
			JOIN users u ON u.id = f.user_id
			WHERE u.username = ?)`)
		args = append(args, filter.FavoritedBy)
	}
	if filter.FavoritedByID != 0 {
		conds = append(conds, `a.id IN (SELECT article_id FROM favorites WHERE user_id = ?)`)
		args = append(args, filter.FavoritedByID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
SELECT a.id, a.slug, a.title, a.description, a.body, a.author_id, a.created_at, a.updated_at
FROM articles a
WHERE %s
ORDER BY a.created_at DESC, a.id DESC
LIMIT ? OFFSET ?
`, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func (s *Store) UpdateArticle(ctx context.Context, id int64, upd store.ArticleUpdate) (model.Article, error) {
	var sets []string
	var args []any
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *upd.Body)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().Unix())
		args = append(args, id)
		query := fmt.Sprintf(`UPDATE articles SET %s WHERE id = ?`, strings.Join(sets, ", "))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return model.Article{}, err
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return model.Article{}, store.ErrNotFound
		}
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, slug, title, description, body, author_id, created_at, updated_at
FROM articles
WHERE id = ?
`, id)
	return scanArticle(row)
}

// DeleteArticle removes the article's favorites, tag links and comments
// before the article row itself. The schema has no ON DELETE CASCADE.
func (s *Store) DeleteArticle(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE article_id = ?`, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = ?`, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE article_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO comments (article_id, author_id, body, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, comment.ArticleID, comment.AuthorID, comment.Body, comment.CreatedAt.Unix(), comment.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListCommentsByArticle(ctx context.Context, articleID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, article_id, author_id, body, created_at, updated_at
FROM comments
WHERE article_id = ?
ORDER BY created_at ASC, id ASC
`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.AuthorID, &c.Body, &created, &updated); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(created, 0)
		c.UpdatedAt = time.Unix(updated, 0)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// EnsureTag creates the tag if it does not exist and returns its id either way.
func (s *Store) EnsureTag(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err == nil {
		return res.LastInsertId()
	}
	if !isUniqueViolation(err) {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) TagArticle(ctx context.Context, articleID, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO article_tags (article_id, tag_id)
VALUES (?, ?)
`, articleID, tagID)
	if err != nil && isUniqueViolation(err) {
		// Linking the same tag twice is harmless.
		return nil
	}
	return err
}

func (s *Store) ListArticleTags(ctx context.Context, articleID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.name
FROM article_tags at
JOIN tags t ON t.id = at.tag_id
WHERE at.article_id = ?
ORDER BY t.name ASC
`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) CreateFavorite(ctx context.Context, userID, articleID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO favorites (user_id, article_id, created_at)
VALUES (?, ?, ?)
`, userID, articleID, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateFavorite
		}
		return err
	}
	return nil
}

func (s *Store) DeleteFavorite(ctx context.Context, userID, articleID int64) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM favorites WHERE user_id = ? AND article_id = ?
`, userID, articleID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListFavoriteUserIDs(ctx context.Context, articleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id FROM favorites WHERE article_id = ?
`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CreateFollow(ctx context.Context, followerID, followingID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO follows (follower_id, following_id, created_at)
VALUES (?, ?, ?)
`, followerID, followingID, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateFollow
		}
		return err
	}
	return nil
}

func (s *Store) DeleteFollow(ctx context.Context, followerID, followingID int64) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM follows WHERE follower_id = ? AND following_id = ?
`, followerID, followingID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM follows WHERE follower_id = ? AND following_id = ?
`, followerID, followingID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (model.User, error) {
	var u model.User
	var bio, image sql.NullString
	var created, updated int64
	if err := scanner.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &bio, &image, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	if bio.Valid {
		u.Bio = bio.String
	}
	if image.Valid {
		u.Image = image.String
	}
	u.CreatedAt = time.Unix(created, 0)
	u.UpdatedAt = time.Unix(updated, 0)
	return u, nil
}

func scanArticle(scanner interface{ Scan(dest ...any) error }) (model.Article, error) {
	var a model.Article
	var created, updated int64
	if err := scanner.Scan(&a.ID, &a.Slug, &a.Title, &a.Description, &a.Body, &a.AuthorID, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Article{}, store.ErrNotFound
		}
		return model.Article{}, err
	}
	a.CreatedAt = time.Unix(created, 0)
	a.UpdatedAt = time.Unix(updated, 0)
	return a, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

func mapUserUniqueViolation(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "users.email") {
		return store.ErrDuplicateEmail
	}
	if strings.Contains(msg, "users.username") {
		return store.ErrDuplicateUsername
	}
	return err
}
