// Package http serves the Conduit REST API: users, profiles, articles,
// comments, favorites, follows and tags, with bearer-token auth.
package http
