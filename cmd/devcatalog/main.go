// Command devcatalog serves an in-memory catalog and sign-in API on a local port so desk can be
// tried without the real catalog service. Nothing is persisted.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"librarydesk/internal/config"
	"librarydesk/internal/entity"
	"librarydesk/internal/testutil/fakeapi"
)

func main() {
	config.LoadEnvFiles()

	serverAddress := getEnv("DEV_ADDR", ":8080")
	bookCount, err := strconv.Atoi(getEnv("DEV_BOOKS", "25"))
	if err != nil || bookCount < 0 {
		log.Fatalf("invalid DEV_BOOKS: %q", os.Getenv("DEV_BOOKS"))
	}

	catalog := fakeapi.New()
	catalog.AddUser(getEnv("DEV_ADMIN_EMAIL", "admin@library.test"), getEnv("DEV_ADMIN_PASSWORD", "admin"), entity.RoleAdmin)
	catalog.AddUser(getEnv("DEV_USER_EMAIL", "reader@library.test"), getEnv("DEV_USER_PASSWORD", "reader"), entity.RoleUser)
	catalog.Seed(sampleBooks(bookCount, time.Now().UnixNano())...)
	log.Printf("seeded books=%d", bookCount)

	router := http.NewServeMux()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/", catalog.Handler())

	httpServer := &http.Server{
		Addr:         serverAddress,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting dev catalog on %s", serverAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
