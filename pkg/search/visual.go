package search

import (
	"context"
	"fmt"
	"sort"

	"bibliotrack/pkg/ai"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

// visualMatchThreshold is the cosine similarity a cover match must exceed.
const visualMatchThreshold = 0.5

// VisualSearcher matches an uploaded cover photo against stored feature
// vectors of catalog books and available marketplace listings.
type VisualSearcher struct {
	extractor ai.FeatureExtractor
	store     store.Store
}

// NewVisualSearcher builds a visual searcher.
func NewVisualSearcher(extractor ai.FeatureExtractor, st store.Store) *VisualSearcher {
	return &VisualSearcher{extractor: extractor, store: st}
}

// ExtractFeatures runs the feature extractor over a cover photo.
func (s *VisualSearcher) ExtractFeatures(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image data required")
	}
	features, err := s.extractor.ExtractFeatures(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("extract image features: %w", err)
	}
	return features, nil
}

// SearchByImage extracts features from the image and returns matches above
// the similarity threshold, best first.
func (s *VisualSearcher) SearchByImage(ctx context.Context, image []byte, limit int) ([]domain.ScoredBook, error) {
	features, err := s.ExtractFeatures(ctx, image)
	if err != nil {
		return nil, err
	}
	return s.SearchByFeatures(features, limit)
}

// SearchByFeatures matches a precomputed feature vector against catalog and
// marketplace covers.
func (s *VisualSearcher) SearchByFeatures(features []float32, limit int) ([]domain.ScoredBook, error) {
	if limit <= 0 {
		limit = 10
	}
	books, err := s.store.ListBooks(store.BookFilter{})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	listings, err := s.store.ListUserBooks(store.UserBookFilter{OnlyAvailable: true})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	var results []domain.ScoredBook
	for i := range books {
		score := CosineSimilarity(features, books[i].ImageFeatures)
		if score > visualMatchThreshold {
			book := books[i]
			results = append(results, domain.ScoredBook{Book: &book, Score: score})
		}
	}
	for i := range listings {
		score := CosineSimilarity(features, listings[i].ImageFeatures)
		if score > visualMatchThreshold {
			listing := listings[i]
			results = append(results, domain.ScoredBook{UserBook: &listing, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
