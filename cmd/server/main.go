package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gallery/internal/config"
	"gallery/internal/handlers"
	"gallery/internal/imagepipe"
	mw "gallery/internal/middleware"
	"gallery/internal/services"
	"gallery/internal/store"
	"gallery/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	// Storage
	if err := config.InitStorage(cfg); err != nil {
		log.Fatalf("init storage: %v", err)
	}

	// Database
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to db: %v", err)
	}
	defer dbPool.Close()

	if err := store.Migrate(ctx, dbPool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	artworks := store.New(dbPool)

	// WebSocket Hub
	hub := ws.NewHub()
	go hub.Run()

	// Image pipeline
	thumbr := imagepipe.NewThumbnailer(cfg.UploadsDir, cfg.ThumbnailsDir)
	thumbr.Size = cfg.ThumbSize
	thumbr.Quality = cfg.JPEGQuality

	// Thumbnail backfill workers
	processor := services.NewThumbnailProcessor(thumbr, cfg.Workers,
		func(job services.ThumbnailJob, thumbPath string) {
			hub.Broadcast(ws.Event{
				Type:         ws.EventThumbnailReady,
				ArtworkID:    job.ArtworkID,
				Title:        job.Title,
				ThumbnailURL: "/thumbnail/" + filepath.Base(thumbPath),
			})
		})
	go processor.BackfillMissing(ctx, artworks)

	// Handlers
	artworkHandler := handlers.NewArtworkHandler(artworks, cfg, thumbr, hub)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(mw.Cors)
	r.Use(mw.SecurityHeaders)

	// Static files
	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(cfg.UploadsDir))))
	r.Handle("/thumbnails/*", http.StripPrefix("/thumbnails/",
		http.FileServer(http.Dir(cfg.ThumbnailsDir))))
	r.Get("/thumbnail/{filename}", artworkHandler.ServeThumbnail)

	// API
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", artworkHandler.Health)
		r.Get("/search", artworkHandler.Search)
		r.Route("/artworks", func(r chi.Router) {
			r.Get("/", artworkHandler.List)
			r.Post("/", artworkHandler.Create)
			r.Post("/order", artworkHandler.Reorder)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", artworkHandler.Info)
				r.Post("/", artworkHandler.Update)
				r.Delete("/", artworkHandler.Delete)
				r.Patch("/text", artworkHandler.UpdateText)
				r.Get("/metadata", artworkHandler.Metadata)
				r.Get("/metadata/all", artworkHandler.MetadataAll)
			})
		})
	})

	// WebSocket
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.HandleWebSocket(hub, w, r)
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		log.Infof("Server starting on %s ...", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv.Shutdown(shutdownCtx)
	hub.Shutdown()
	processor.Shutdown()
	dbPool.Close()
}
