package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"decay-fit/internal/api"
	"decay-fit/internal/api/handlers"
	"decay-fit/internal/config"
	"decay-fit/internal/data"
	"decay-fit/internal/storage/postgres"

	"github.com/gin-gonic/gin"
)

func main() {
	// Get configuration from environment
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := api.Options{
		Cache:    data.GetCache(),
		MaxFiles: envInt("API_MAX_FILES", 500),
	}
	if opts.Cache != nil {
		log.Printf("Fit cache enabled")
	}

	// Results are stored when a DSN is configured; otherwise they are only returned.
	if dsn := os.Getenv(config.EnvPostgresDSN); dsn != "" {
		pool, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := pool.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}
		var store handlers.TableSaver = postgres.NewResultStore(pool)
		opts.Store = store
		log.Printf("Storing batch results in postgres")
	}

	router := api.NewRouter(opts)

	addr := fmt.Sprintf(":%s", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	log.Printf("Starting API server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
