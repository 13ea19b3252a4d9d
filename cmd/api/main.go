package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gridshare/api/internal/app"
	"gridshare/api/internal/blob"
	"gridshare/api/internal/config"
	"gridshare/api/internal/email"
	"gridshare/api/internal/export"
	"gridshare/api/internal/grid"
	"gridshare/api/internal/search"
	"gridshare/api/internal/sharestore"
	"gridshare/api/internal/snapshot"
	"gridshare/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	var fallback sharestore.Backend
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisBackend, err := sharestore.NewRedisBackend(cfg.RedisURL, cfg.ShareNamespace)
		if err != nil {
			log.Printf("WARNING: redis unavailable, using in-memory fallback: %v", err)
			fallback = sharestore.NewMemoryBackend(cfg.ShareNamespace)
		} else {
			log.Printf("Using Redis as share fallback tier")
			defer redisBackend.Close()
			fallback = redisBackend
		}
	} else {
		log.Printf("Using in-memory share fallback tier")
		fallback = sharestore.NewMemoryBackend(cfg.ShareNamespace)
	}
	links := sharestore.New(sharestore.NewSQLBackend(db), fallback, sharestore.Options{
		TTL:     cfg.ShareTTL,
		Timeout: cfg.StoreTimeout,
	})

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, grid.Suggestions)
	}
	searchService := search.NewService(meiliClient, search.NewLocal(grid.Suggestions))
	defer searchService.Close()

	var blobs *blob.Store
	blobCfg := blob.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}
	if blobCfg.IsConfigured() {
		blobs, err = blob.New(blobCfg)
		if err == nil {
			bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = blobs.EnsureBucket(bucketCtx)
			cancel()
		}
		if err != nil {
			log.Printf("WARNING: export storage disabled: %v", err)
			blobs = nil
		}
	}

	service := app.New(cfg, app.Deps{
		Links:     links,
		Snapshots: snapshot.New(cfg.SnapshotsDir),
		Exporter:  export.NewService(),
		Search:    searchService,
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Blobs: blobs,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go service.RunJanitor(janitorCtx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Grid Share API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	stopJanitor()
	service.Close()
}
