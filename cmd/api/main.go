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

	"progress/api/internal/app"
	"progress/api/internal/blob"
	"progress/api/internal/config"
	"progress/api/internal/email"
	"progress/api/internal/livequery"
	"progress/api/internal/search"
	"progress/api/internal/session"
	"progress/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	if cfg.SecurityCode != "" {
		if err := dataStore.SetAccessCode(ctx, store.SecurityCodeDocument, cfg.SecurityCode); err != nil {
			log.Fatalf("seed security code: %v", err)
		}
	}

	deps := app.Deps{Store: dataStore}

	// Redis carries refresh sessions and the change bus so several API
	// processes see each other's writes. Without it one process is assumed.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, using PostgreSQL sessions and an in-process bus: %v", err)
		} else {
			defer client.Close()
			deps.Sessions = session.NewRedisStore(client)
			deps.Bus = livequery.NewRedisBus(client)
			log.Printf("Using Redis for sessions and live updates")
		}
	}
	if deps.Bus == nil {
		deps.Bus = livequery.NewHub()
	}

	blobs, err := blob.NewMinioStore(ctx, blob.MinioConfig{
		Endpoint:      cfg.BlobEndpoint,
		AccessKey:     cfg.BlobAccessKey,
		SecretKey:     cfg.BlobSecretKey,
		Bucket:        cfg.BlobBucket,
		UseSSL:        cfg.BlobUseSSL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		log.Printf("WARNING: blob storage unavailable, keeping uploads in memory: %v", err)
		deps.Blobs = blob.NewMemory(cfg.PublicBaseURL)
	} else {
		deps.Blobs = blobs
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPostgres(db))
	go searchService.Reindex(ctx)
	deps.Search = searchService

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	} else {
		log.Printf("SMTP not configured; password reset tokens are returned in responses")
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Progress API listening on %s", cfg.Addr)
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
}
