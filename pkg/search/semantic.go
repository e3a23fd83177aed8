// Package search implements semantic text search over catalog embeddings
// and visual search over cover-image feature vectors.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"bibliotrack/pkg/ai"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

// SemanticSearcher ranks catalog books and available marketplace listings
// against a free-text query by cosine similarity of precomputed embeddings.
type SemanticSearcher struct {
	embedder ai.Embedder
	store    store.Store
}

// NewSemanticSearcher builds a semantic searcher.
func NewSemanticSearcher(embedder ai.Embedder, st store.Store) *SemanticSearcher {
	return &SemanticSearcher{embedder: embedder, store: st}
}

// Search embeds the query and returns the nearest catalog books and
// available listings, best first.
func (s *SemanticSearcher) Search(ctx context.Context, query string, limit int) ([]domain.ScoredBook, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query required")
	}
	if limit <= 0 {
		limit = 10
	}
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	books, err := s.store.SearchBooksByEmbedding(embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("search book embeddings: %w", err)
	}
	listings, err := s.store.SearchUserBooksByEmbedding(embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("search listing embeddings: %w", err)
	}
	results := make([]domain.ScoredBook, 0, len(books)+len(listings))
	for i := range books {
		book := books[i]
		results = append(results, domain.ScoredBook{
			Book:  &book,
			Score: CosineSimilarity(embedding, book.Embedding),
		})
	}
	for i := range listings {
		listing := listings[i]
		results = append(results, domain.ScoredBook{
			UserBook: &listing,
			Score:    CosineSimilarity(embedding, listing.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CosineSimilarity computes cosine similarity between two float32 vectors.
// Mismatched or empty vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	fa := make([]float64, len(a))
	fb := make([]float64, len(b))
	for i := range a {
		fa[i] = float64(a[i])
		fb[i] = float64(b[i])
	}
	na := floats.Norm(fa, 2)
	nb := floats.Norm(fb, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(fa, fb) / (na * nb)
}
