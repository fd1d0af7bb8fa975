// Command seed populates a running server with demo users, articles,
// comments, favorites and follows via the public API.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/realworld-apps/conduit/internal/client"
)

type seedUser struct {
	username string
	email    string
	bio      string
}

var seedUsers = []seedUser{
	{"jules-v", "jules@example.com", "Writes about distributed systems."},
	{"mira-chen", "mira@example.com", "Backend engineer, coffee first."},
	{"tomasz-k", "tomasz@example.com", "Recovering frontend developer."},
	{"anika-r", "anika@example.com", ""},
}

type seedArticle struct {
	author      int // index into seedUsers
	title       string
	description string
	body        string
	tags        []string
}

var seedArticles = []seedArticle{
	{0, "Why We Moved Off The Monolith", "A migration retrospective", "It took eighteen months and we would do it again, mostly.", []string{"architecture", "microservices"}},
	{0, "Idempotency Keys In Practice", "Retries without double charges", "The trick is storing the response, not just the key.", []string{"api-design", "reliability"}},
	{1, "Profiling A Slow Query", "From 4s to 40ms", "EXPLAIN is underrated. Start there, not with the ORM docs.", []string{"databases", "performance"}},
	{2, "CSS Was Never The Problem", "A confession", "The problem was me refusing to read the flexbox docs.", []string{"frontend"}},
	{3, "Notes On Pair Programming", "What actually worked for us", "Rotating daily beat rotating weekly by a wide margin.", []string{"teams"}},
}

var seedComments = []string{
	"Great writeup, thanks for sharing.",
	"We hit exactly the same wall last quarter.",
	"Do you have numbers on the before/after?",
	"Bookmarking this for the next incident review.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	password := flag.String("password", "password123", "password for all seeded users")
	flag.Parse()

	if err := run(*baseURL, *password); err != nil {
		log.Fatal(err)
	}
}

func run(baseURL, password string) error {
	clients := make([]*client.Client, len(seedUsers))
	for i, u := range seedUsers {
		c := client.New(baseURL)
		helper := &client.TestHelper{Client: c}
		if _, err := helper.GetToken(u.username, u.email, password); err != nil {
			return fmt.Errorf("seed user %s: %w", u.username, err)
		}
		if u.bio != "" {
			if _, err := c.UpdateUser(map[string]string{"bio": u.bio}); err != nil {
				return fmt.Errorf("set bio for %s: %w", u.username, err)
			}
		}
		clients[i] = c
		log.Printf("user %s ready", u.username)
	}

	var slugs []string
	for _, a := range seedArticles {
		article, err := clients[a.author].CreateArticle(a.title, a.description, a.body, a.tags)
		if err != nil {
			return fmt.Errorf("create article %q: %w", a.title, err)
		}
		slugs = append(slugs, article.Slug)
		log.Printf("article %s", article.Slug)
	}

	// Random cross-relations: each user favorites and comments on a few
	// articles they did not write, and follows one other user.
	for i, c := range clients {
		for j, slug := range slugs {
			if seedArticles[j].author == i {
				continue
			}
			if rand.Intn(2) == 0 {
				continue
			}
			if _, err := c.Favorite(slug); err != nil {
				return fmt.Errorf("favorite %s: %w", slug, err)
			}
			if _, err := c.CreateComment(slug, seedComments[rand.Intn(len(seedComments))]); err != nil {
				return fmt.Errorf("comment on %s: %w", slug, err)
			}
		}
		target := seedUsers[(i+1)%len(seedUsers)].username
		if _, err := c.Follow(target); err != nil {
			return fmt.Errorf("follow %s: %w", target, err)
		}
	}

	log.Printf("seeded %d users, %d articles", len(seedUsers), len(seedArticles))
	return nil
}
