// Package worker computes the vectors that search and recommendations
// depend on: semantic embeddings of catalog text and image features of
// cover art. It consumes jobs from the Redis stream queue and also runs
// full sweeps for the precompute CLI.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bibliotrack/pkg/ai"
	"bibliotrack/pkg/queue"
	"bibliotrack/pkg/storage"
	"bibliotrack/pkg/store"
)

const coverFetchTimeout = 30 * time.Second

// Config wires the precompute worker's dependencies. Store is required;
// a nil Embedder or Vision skips the corresponding vector.
type Config struct {
	Store       store.Store
	Objects     storage.ObjectStore
	Embedder    ai.Embedder
	Vision      ai.FeatureExtractor
	HTTPClient  *http.Client
	Concurrency int
	Logger      *slog.Logger
}

// Precompute fills in embeddings and image features for books and
// marketplace listings.
type Precompute struct {
	store       store.Store
	objects     storage.ObjectStore
	embedder    ai.Embedder
	vision      ai.FeatureExtractor
	httpClient  *http.Client
	concurrency int
	logger      *slog.Logger
}

// New constructs the worker.
func New(cfg Config) (*Precompute, error) {
	if cfg.Store == nil {
		return nil, errors.New("worker: store is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: coverFetchTimeout}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Precompute{
		store:       cfg.Store,
		objects:     cfg.Objects,
		embedder:    cfg.Embedder,
		vision:      cfg.Vision,
		httpClient:  httpClient,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Handle processes a single queued job. Unknown kinds fail permanently
// rather than being retried.
func (p *Precompute) Handle(ctx context.Context, job queue.JobStatus) error {
	switch job.Kind {
	case queue.KindBookVectors:
		return p.ProcessBook(ctx, job.TargetID, false)
	case queue.KindListingVectors:
		return p.ProcessListing(ctx, job.TargetID, false)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// ProcessBook recomputes vectors for one catalog book. Image features
// are skipped when the cover is unchanged, unless force is set.
func (p *Precompute) ProcessBook(ctx context.Context, bookID string, force bool) error {
	book, ok, err := p.store.GetBook(bookID)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		p.logger.Warn("book vanished before precompute", "book_id", bookID)
		return nil
	}

	embedding, err := p.embedText(ctx, book.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embed book %s: %w", bookID, err)
	}
	if embedding == nil {
		embedding = book.Embedding
	}

	features := book.ImageFeatures
	imageHash := book.ImageHash
	if p.vision != nil && strings.TrimSpace(book.CoverImageURL) != "" {
		cover, err := p.fetchCoverURL(ctx, book.CoverImageURL)
		if err != nil {
			return fmt.Errorf("fetch cover for book %s: %w", bookID, err)
		}
		hash := contentHash(cover)
		if force || hash != book.ImageHash {
			features, err = p.vision.ExtractFeatures(ctx, cover)
			if err != nil {
				return fmt.Errorf("extract features for book %s: %w", bookID, err)
			}
			imageHash = hash
		}
	}

	if err := p.store.SetBookVectors(bookID, embedding, features, imageHash); err != nil {
		return fmt.Errorf("store book vectors: %w", err)
	}
	p.logger.Info("book vectors updated", "book_id", bookID)
	return nil
}

// ProcessListing recomputes vectors for one marketplace listing. The
// cover comes from object storage rather than a public URL.
func (p *Precompute) ProcessListing(ctx context.Context, listingID string, force bool) error {
	listing, ok, err := p.store.GetUserBook(listingID)
	if err != nil {
		return fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		p.logger.Warn("listing vanished before precompute", "listing_id", listingID)
		return nil
	}

	embedding, err := p.embedText(ctx, listing.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embed listing %s: %w", listingID, err)
	}
	if embedding == nil {
		embedding = listing.Embedding
	}

	features := listing.ImageFeatures
	imageHash := listing.ImageHash
	if p.vision != nil && p.objects != nil && listing.CoverKey != "" {
		cover, err := p.fetchCoverObject(ctx, listing.CoverKey)
		if err != nil {
			return fmt.Errorf("fetch cover for listing %s: %w", listingID, err)
		}
		hash := contentHash(cover)
		if force || hash != listing.ImageHash {
			features, err = p.vision.ExtractFeatures(ctx, cover)
			if err != nil {
				return fmt.Errorf("extract features for listing %s: %w", listingID, err)
			}
			imageHash = hash
		}
	}

	if err := p.store.SetUserBookVectors(listingID, embedding, features, imageHash); err != nil {
		return fmt.Errorf("store listing vectors: %w", err)
	}
	p.logger.Info("listing vectors updated", "listing_id", listingID)
	return nil
}

// SweepBooks recomputes vectors for the whole catalog and returns the
// number of books processed. Failures are logged and counted, not fatal.
func (p *Precompute) SweepBooks(ctx context.Context, force bool) (int, error) {
	books, err := p.store.ListBooks(store.BookFilter{})
	if err != nil {
		return 0, fmt.Errorf("list books: %w", err)
	}
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, book := range books {
		id := book.ID
		g.Go(func() error {
			if err := p.ProcessBook(gctx, id, force); err != nil {
				p.logger.Error("book precompute failed", "book_id", id, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	n := int(failed.Load())
	if n > 0 {
		return len(books) - n, fmt.Errorf("%d of %d books failed", n, len(books))
	}
	return len(books), nil
}

// SweepListings recomputes vectors for every available listing.
func (p *Precompute) SweepListings(ctx context.Context, force bool) (int, error) {
	listings, err := p.store.ListUserBooks(store.UserBookFilter{OnlyAvailable: true})
	if err != nil {
		return 0, fmt.Errorf("list listings: %w", err)
	}
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, listing := range listings {
		id := listing.ID
		g.Go(func() error {
			if err := p.ProcessListing(gctx, id, force); err != nil {
				p.logger.Error("listing precompute failed", "listing_id", id, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	n := int(failed.Load())
	if n > 0 {
		return len(listings) - n, fmt.Errorf("%d of %d listings failed", n, len(listings))
	}
	return len(listings), nil
}

func (p *Precompute) embedText(ctx context.Context, text string) ([]float32, error) {
	if p.embedder == nil || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return p.embedder.EmbedText(ctx, text)
}

func (p *Precompute) fetchCoverURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover fetch returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 20<<20))
}

func (p *Precompute) fetchCoverObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
