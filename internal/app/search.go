package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bibliotrack/pkg/domain"
)

const semanticCacheKeyPrefix = "bibliotrack:search:semantic:"

// SemanticSearch embeds the query and ranks catalog books by vector
// similarity. Identical queries are served from cache for the search TTL.
func (a *App) SemanticSearch(ctx context.Context, query string, limit int) ([]domain.ScoredBook, error) {
	if a.semantic == nil {
		return nil, wrapf(ErrNotConfigured, "semantic search")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidf("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	cacheKey := fmt.Sprintf("%s%s:%d", semanticCacheKeyPrefix, hex.EncodeToString(sum[:]), limit)
	if cached, ok := a.cacheGet(ctx, cacheKey); ok {
		var hits []domain.ScoredBook
		if err := json.Unmarshal(cached, &hits); err == nil {
			return hits, nil
		}
	}

	hits, err := a.semantic.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	a.cacheSet(ctx, cacheKey, hits, searchCacheTTL)
	return hits, nil
}

// VisualSearch matches an uploaded cover photo against stored cover
// features. Extracted features are cached in-process by image hash so a
// retried upload skips the extractor.
func (a *App) VisualSearch(ctx context.Context, image []byte, limit int) ([]domain.ScoredBook, error) {
	if a.visual == nil {
		return nil, wrapf(ErrNotConfigured, "visual search")
	}
	if len(image) == 0 {
		return nil, invalidf("image data is required")
	}
	features, err := a.imageFeatures(ctx, image)
	if err != nil {
		return nil, err
	}
	return a.visual.SearchByFeatures(features, limit)
}

func (a *App) imageFeatures(ctx context.Context, image []byte) ([]float32, error) {
	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])

	a.featureMu.Lock()
	cached, ok := a.features[key]
	a.featureMu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.vector, nil
	}

	features, err := a.visual.ExtractFeatures(ctx, image)
	if err != nil {
		return nil, err
	}

	a.featureMu.Lock()
	for k, v := range a.features {
		if time.Now().After(v.expiresAt) {
			delete(a.features, k)
		}
	}
	a.features[key] = cachedFeatures{vector: features, expiresAt: time.Now().Add(visualFeatureTTL)}
	a.featureMu.Unlock()
	return features, nil
}
