// Command bibliotrack-seed loads the books.csv dataset into the catalog.
// Reruns are safe: rows are matched on title+author and updated in place.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"bibliotrack/internal/config"
	"bibliotrack/internal/util"
	"bibliotrack/pkg/catalog"
	"bibliotrack/pkg/store"
)

func main() {
	csvPath := flag.String("csv", "books.csv", "path to the books CSV file")
	configPath := flag.String("config", config.ConfigPath, "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *csvPath, err)
	}
	defer f.Close()

	result, err := catalog.SeedFromCSV(f, dataStore)
	if err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	slog.Info("catalog seeded",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
	)
}
