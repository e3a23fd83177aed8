package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/recommend"
	"bibliotrack/pkg/store"
)

const similarCacheKeyPrefix = "bibliotrack:rec:similar:"

// currentModel returns the content model, rebuilding it when it is older
// than the model TTL. On first use it tries the persisted model before
// fitting from scratch.
func (a *App) currentModel(ctx context.Context) (*recommend.Model, error) {
	a.modelMu.Lock()
	defer a.modelMu.Unlock()

	if a.model != nil && time.Since(a.modelAt) < recommendModelTTL {
		return a.model, nil
	}
	if a.model == nil && a.modelPath != "" {
		if m, err := recommend.LoadFile(a.modelPath); err == nil {
			a.model = m
			a.modelAt = time.Now()
			return m, nil
		}
	}
	m, err := a.buildModel()
	if err != nil {
		if a.model != nil {
			a.logger.Warn("model rebuild failed, serving stale model", "error", err)
			return a.model, nil
		}
		return nil, err
	}
	a.model = m
	a.modelAt = time.Now()
	return m, nil
}

func (a *App) buildModel() (*recommend.Model, error) {
	books, err := a.store.ListBooks(store.BookFilter{})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	listings, err := a.store.ListUserBooks(store.UserBookFilter{OnlyAvailable: true})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return recommend.BuildModel(books, listings), nil
}

// RetrainModel rebuilds the content model immediately and persists it.
func (a *App) RetrainModel(ctx context.Context) error {
	m, err := a.buildModel()
	if err != nil {
		return err
	}
	a.modelMu.Lock()
	a.model = m
	a.modelAt = time.Now()
	a.modelMu.Unlock()

	if a.modelPath != "" {
		if err := m.SaveFile(a.modelPath); err != nil {
			return fmt.Errorf("persist model: %w", err)
		}
	}
	a.logger.Info("recommendation model retrained", "path", a.modelPath)
	return nil
}

// SimilarBooks returns items similar to a catalog book. Results are cached
// for the recommendation cache TTL; books the model has never seen fall
// back to the most popular titles.
func (a *App) SimilarBooks(ctx context.Context, bookID string, limit int) ([]domain.ScoredBook, error) {
	if limit <= 0 {
		limit = 5
	}
	cacheKey := fmt.Sprintf("%s%s:%d", similarCacheKeyPrefix, bookID, limit)
	if cached, ok := a.cacheGet(ctx, cacheKey); ok {
		var hits []domain.ScoredBook
		if err := json.Unmarshal(cached, &hits); err == nil {
			return hits, nil
		}
	}

	model, err := a.currentModel(ctx)
	if err != nil {
		return nil, err
	}
	hits, err := a.resolveScored(model.ContentSimilar(bookID, limit))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		if hits, err = a.popularFallback(bookID, limit); err != nil {
			return nil, err
		}
	}
	a.cacheSet(ctx, cacheKey, hits, recommendCacheTTL)
	return hits, nil
}

// Personalized blends collaborative and content signals for a user. Users
// with no purchase history get the popularity ranking.
func (a *App) Personalized(ctx context.Context, userID string, limit int) ([]domain.ScoredBook, error) {
	if limit <= 0 {
		limit = 10
	}
	model, err := a.currentModel(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := a.store.ListOrders(domain.OrderConfirmed, domain.OrderDelivered)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	interactions := recommend.BuildInteractions(orders)

	// Seed content similarity from the user's most recent purchase.
	var seedBookID string
	for _, o := range orders {
		if o.UserID == userID && o.BookID != "" {
			if seedBookID == "" {
				seedBookID = o.BookID
			}
		}
	}

	hits, err := a.resolveScored(recommend.Hybrid(model, interactions, userID, seedBookID, limit))
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool)
	for _, o := range orders {
		if o.UserID == userID && o.BookID != "" {
			owned[o.BookID] = true
		}
	}
	filtered := hits[:0]
	for _, h := range hits {
		if h.Book != nil && owned[h.Book.ID] {
			continue
		}
		filtered = append(filtered, h)
	}
	if len(filtered) > 0 {
		return filtered, nil
	}
	return a.popularFallback("", limit)
}

// resolveScored maps model keys back to catalog and marketplace records,
// dropping anything that has since been deleted or sold.
func (a *App) resolveScored(scored []recommend.Scored) ([]domain.ScoredBook, error) {
	hits := make([]domain.ScoredBook, 0, len(scored))
	for _, s := range scored {
		bookID, listingID := recommend.SplitKey(s.Key)
		switch {
		case bookID != "":
			book, ok, err := a.store.GetBook(bookID)
			if err != nil {
				return nil, fmt.Errorf("fetch book: %w", err)
			}
			if !ok {
				continue
			}
			hits = append(hits, domain.ScoredBook{Book: &book, Score: s.Score})
		case listingID != "":
			listing, ok, err := a.store.GetUserBook(listingID)
			if err != nil {
				return nil, fmt.Errorf("fetch listing: %w", err)
			}
			if !ok || !listing.Available {
				continue
			}
			hits = append(hits, domain.ScoredBook{UserBook: &listing, Score: s.Score})
		}
	}
	return hits, nil
}

func (a *App) popularFallback(excludeBookID string, limit int) ([]domain.ScoredBook, error) {
	books, err := a.store.ListBooks(store.BookFilter{})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	counts, err := a.store.OrderCountsByBook()
	if err != nil {
		return nil, fmt.Errorf("order counts: %w", err)
	}
	popular := recommend.PopularBooks(books, counts, limit+1)
	hits := make([]domain.ScoredBook, 0, limit)
	for _, book := range popular {
		if book.ID == excludeBookID {
			continue
		}
		b := book
		hits = append(hits, domain.ScoredBook{Book: &b})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// cacheGet reads a JSON cache entry from Redis. A nil client or any Redis
// error reads as a miss.
func (a *App) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if a.redis == nil {
		return nil, false
	}
	raw, err := a.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (a *App) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if a.redis == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := a.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
		a.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
