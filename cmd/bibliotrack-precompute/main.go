// Command bibliotrack-precompute runs the vector sweeps offline:
// image features and semantic embeddings for books and listings, and a
// fresh recommendation model.
//
// Usage: bibliotrack-precompute [--force] features|embeddings|recommend-model
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"bibliotrack/internal/app"
	"bibliotrack/internal/config"
	"bibliotrack/internal/util"
	"bibliotrack/internal/worker"
	"bibliotrack/pkg/ai"
	"bibliotrack/pkg/storage"
	"bibliotrack/pkg/store"
)

func main() {
	force := flag.Bool("force", false, "recompute even when covers are unchanged")
	configPath := flag.String("config", config.ConfigPath, "path to the config file")
	flag.Parse()

	target := flag.Arg(0)
	switch target {
	case "features", "embeddings", "recommend-model":
	default:
		fmt.Fprintln(os.Stderr, "usage: bibliotrack-precompute [--force] features|embeddings|recommend-model")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	ctx := context.Background()
	if target == "recommend-model" {
		if err := retrainModel(ctx, dataStore, cfg, logger); err != nil {
			log.Fatalf("recommendation model rebuild failed: %v", err)
		}
		slog.Info("recommendation model rebuilt", "path", cfg.ModelPath)
		return
	}

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	var embedder ai.Embedder
	var vision ai.FeatureExtractor
	switch target {
	case "embeddings":
		if cfg.EmbedServiceURL == "" {
			log.Fatalf("embedServiceURL is required for embeddings")
		}
		embedder = ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.EmbedServiceURL), cfg.EmbedModel, cfg.EmbedDimensions)
	case "features":
		if cfg.VisionServiceURL == "" {
			log.Fatalf("visionServiceURL is required for features")
		}
		vision = ai.NewVisionClient(cfg.VisionServiceURL)
	}

	precompute, err := worker.New(worker.Config{
		Store:       dataStore,
		Objects:     objects,
		Embedder:    embedder,
		Vision:      vision,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	books, bookErr := precompute.SweepBooks(ctx, *force)
	listings, listingErr := precompute.SweepListings(ctx, *force)
	slog.Info("precompute sweep finished", "target", target, "books", books, "listings", listings)
	if bookErr != nil {
		log.Fatalf("book sweep: %v", bookErr)
	}
	if listingErr != nil {
		log.Fatalf("listing sweep: %v", listingErr)
	}
}

func retrainModel(ctx context.Context, dataStore store.Store, cfg config.FileConfig, logger *slog.Logger) error {
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, 0, nil, store.JWTOptions{})
	if err != nil {
		return err
	}
	appCore, err := app.New(app.Config{
		Store:     dataStore,
		Sessions:  sessions,
		ModelPath: cfg.ModelPath,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	return appCore.RetrainModel(ctx)
}
