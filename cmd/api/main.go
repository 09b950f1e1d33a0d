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

	"github.com/fieldwork/fieldwork-backend/config"
	"github.com/fieldwork/fieldwork-backend/internal/bootstrap"
	"github.com/fieldwork/fieldwork-backend/internal/cache"
	"github.com/fieldwork/fieldwork-backend/internal/db"
	"github.com/fieldwork/fieldwork-backend/internal/files"
	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
	"github.com/fieldwork/fieldwork-backend/internal/workers"
)

const serviceName = "fieldwork-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()

	pool, err := db.Open(ctx, db.Options{DSN: cfg.Database.DSN()})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	redisClient, err := cache.Connect(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	objectStore, err := files.NewMinioStore(cfg.Minio)
	if err != nil {
		log.Fatal("Failed to init object store:", err)
	}

	sweeper := workers.NewURLSweeper(repository.NewAnnexRepository(pool))
	go sweeper.Start()
	defer sweeper.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Cfg:         cfg,
		DB:          pool,
		Redis:       redisClient,
		ObjectStore: objectStore,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.Server.Port)
		log.Printf("API available at http://localhost:%s/api/v1", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start:", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited properly")
}
