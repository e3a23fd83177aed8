package app

import (
	"context"
	"errors"
	"testing"
)

func TestSemanticSearchCachesByQuery(t *testing.T) {
	embedder := &countingEmbedder{}
	a, st := newTestApp(t, func(cfg *Config) {
		cfg.Embedder = embedder
		cfg.Redis = testRedis(t)
	})
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	vec, _ := embedder.EmbedText(context.Background(), "seed")
	embedder.calls = 0
	if err := st.SetBookVectors("b1", vec, nil, ""); err != nil {
		t.Fatalf("set vectors: %v", err)
	}
	ctx := context.Background()

	first, err := a.SemanticSearch(ctx, "desert planet epic", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(first) != 1 || first[0].Book.ID != "b1" {
		t.Fatalf("results = %+v", first)
	}
	second, err := a.SemanticSearch(ctx, "desert planet epic", 5)
	if err != nil {
		t.Fatalf("cached search: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("cached results = %+v", second)
	}
	if embedder.calls != 1 {
		t.Fatalf("embedder calls = %d, want 1 (second query served from cache)", embedder.calls)
	}
}

func TestSemanticSearchRequiresConfiguration(t *testing.T) {
	a, _ := newTestApp(t, nil)
	if _, err := a.SemanticSearch(context.Background(), "anything", 5); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("got %v, want ErrNotConfigured", err)
	}
}

func TestSemanticSearchRejectsEmptyQuery(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *Config) { cfg.Embedder = &countingEmbedder{} })
	if _, err := a.SemanticSearch(context.Background(), "   ", 5); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestVisualSearchCachesExtractedFeatures(t *testing.T) {
	extractor := &countingExtractor{vec: []float32{1, 0, 0, 0}}
	a, st := newTestApp(t, func(cfg *Config) { cfg.Vision = extractor })
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	if err := st.SetBookVectors("b1", nil, []float32{1, 0, 0, 0}, "hash1"); err != nil {
		t.Fatalf("set vectors: %v", err)
	}
	image := []byte("fake-jpeg-bytes")
	ctx := context.Background()

	first, err := a.VisualSearch(ctx, image, 5)
	if err != nil {
		t.Fatalf("visual search: %v", err)
	}
	if len(first) != 1 || first[0].Book.ID != "b1" || first[0].Score < 0.99 {
		t.Fatalf("results = %+v", first)
	}
	if _, err := a.VisualSearch(ctx, image, 5); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if extractor.calls != 1 {
		t.Fatalf("extractor calls = %d, want 1 (features cached by image hash)", extractor.calls)
	}
	// A different image misses the cache.
	if _, err := a.VisualSearch(ctx, []byte("other-image"), 5); err != nil {
		t.Fatalf("third search: %v", err)
	}
	if extractor.calls != 2 {
		t.Fatalf("extractor calls = %d, want 2", extractor.calls)
	}
}

func TestVisualSearchRequiresImage(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *Config) { cfg.Vision = &countingExtractor{vec: []float32{1}} })
	if _, err := a.VisualSearch(context.Background(), nil, 5); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}
