// Command conduit runs the Conduit API server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/realworld-apps/conduit/internal/auth"
	"github.com/realworld-apps/conduit/internal/config"
	httpserver "github.com/realworld-apps/conduit/internal/http"
	"github.com/realworld-apps/conduit/internal/rate"
	"github.com/realworld-apps/conduit/internal/store/sqlite"
)

func main() {
	if err := runServer(); err != nil {
		log.Fatal(err)
	}
}

func runServer() error {
	cfg := config.Load()

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc := auth.NewService(st, cfg.TokenSecret, cfg.TokenTTL)
	limiter := rate.NewMemory()
	srv := httpserver.NewServer(st, authSvc, limiter, cfg.RateLimits)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (db %s)", cfg.Addr, cfg.DBPath)
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}
