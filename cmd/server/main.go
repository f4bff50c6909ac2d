package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ANADelta/AlphaClassBot-App2/internal/clients"
	"github.com/ANADelta/AlphaClassBot-App2/internal/config"
	"github.com/ANADelta/AlphaClassBot-App2/internal/db"
	internalhttp "github.com/ANADelta/AlphaClassBot-App2/internal/http"
	"github.com/ANADelta/AlphaClassBot-App2/internal/jobs"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	deps, err := clients.New(ctx, cfg)
	if err != nil {
		log.Fatalf("client init failed: %v", err)
	}
	defer deps.Close()

	server := internalhttp.NewServer(cfg, store, deps.AI, deps.Redis)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartReminderJob(ctx, cfg, store)

	go func() {
		log.Printf("alphaclassbot http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
