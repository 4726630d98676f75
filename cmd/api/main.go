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

	"banter/api/internal/app"
	"banter/api/internal/blob"
	"banter/api/internal/config"
	"banter/api/internal/identity"
	"banter/api/internal/notify"
	"banter/api/internal/search"
	"banter/api/internal/session"
	"banter/api/internal/store"
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

	dataStore := store.NewPostgresStore(db)

	bus, err := notify.NewBus(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer bus.Close()

	sessionStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis session store failed: %v", err)
	}
	defer sessionStore.Close()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	var blobs *blob.Store
	if strings.TrimSpace(cfg.BlobEndpoint) != "" {
		blobs, err = blob.New(ctx, blob.Options{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			UseSSL:    cfg.BlobUseSSL,
			PublicURL: cfg.BlobPublicURL,
		})
		if err != nil {
			log.Printf("WARNING: blob store unavailable, uploads disabled: %v", err)
			blobs = nil
		}
	}

	authState := identity.NewState()
	defer authState.Stop()
	identityService := identity.NewService(dataStore, sessionStore, authState, cfg.TokenSecret, cfg.AccessTTL, cfg.RefreshTTL)

	service := app.New(cfg, dataStore, bus, identityService, searchService, blobs)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // streaming endpoints hold the response open
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Banter API listening on %s", cfg.Addr)
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
