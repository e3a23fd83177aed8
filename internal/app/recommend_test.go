package app

import (
	"context"
	"testing"
	"time"

	"bibliotrack/pkg/domain"
)

func seedSciFiShelf(t *testing.T, a *App) {
	t.Helper()
	st := a.store
	books := []domain.Book{
		{ID: "b1", Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction", Category: "Fiction",
			Description: "desert planet spice empire", Price: 29900, Stock: 5},
		{ID: "b2", Title: "Dune Messiah", Author: "Frank Herbert", Genre: "Science Fiction", Category: "Fiction",
			Description: "desert planet spice empire sequel", Price: 24900, Stock: 5},
		{ID: "b3", Title: "Mediterranean Cooking", Author: "Elena Rossi", Genre: "Cooking", Category: "Nonfiction",
			Description: "olive oil recipes kitchen", Price: 19900, Stock: 5},
	}
	for _, b := range books {
		b.CoverImageURL = "https://covers.example.com/" + b.ID + ".jpg"
		b.CreatedAt = time.Now().UTC()
		if err := st.SaveBook(b); err != nil {
			t.Fatalf("save book: %v", err)
		}
	}
}

func TestSimilarBooksRanksSharedVocabulary(t *testing.T) {
	a, _ := newTestApp(t, nil)
	seedSciFiShelf(t, a)

	similar, err := a.SimilarBooks(context.Background(), "b1", 2)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(similar) == 0 || similar[0].Book == nil || similar[0].Book.ID != "b2" {
		t.Fatalf("similar to Dune = %+v, want Dune Messiah first", similar)
	}
}

func TestSimilarBooksFallsBackToPopular(t *testing.T) {
	a, st := newTestApp(t, nil)
	seedSciFiShelf(t, a)
	// b3 is the most ordered title.
	if err := st.SaveOrder(domain.Order{
		ID: "o1", UserID: "u1", BookID: "b3", Quantity: 1, Status: domain.OrderConfirmed,
	}); err != nil {
		t.Fatalf("save order: %v", err)
	}

	similar, err := a.SimilarBooks(context.Background(), "unknown-book", 2)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(similar) == 0 || similar[0].Book == nil || similar[0].Book.ID != "b3" {
		t.Fatalf("fallback = %+v, want most popular b3 first", similar)
	}
}

func TestSimilarBooksUsesCache(t *testing.T) {
	a, st := newTestApp(t, func(cfg *Config) { cfg.Redis = testRedis(t) })
	seedSciFiShelf(t, a)
	ctx := context.Background()

	first, err := a.SimilarBooks(ctx, "b1", 2)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	// Deleting the source of truth proves the second read comes from cache.
	if err := st.DeleteBook("b2"); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	cached, err := a.SimilarBooks(ctx, "b1", 2)
	if err != nil {
		t.Fatalf("cached similar: %v", err)
	}
	if len(cached) != len(first) || cached[0].Book.ID != first[0].Book.ID {
		t.Fatalf("cached = %+v, want %+v", cached, first)
	}
}

func TestPersonalizedFallsBackToPopularForNewUser(t *testing.T) {
	a, st := newTestApp(t, nil)
	seedSciFiShelf(t, a)
	if err := st.SaveOrder(domain.Order{
		ID: "o1", UserID: "someone-else", BookID: "b1", Quantity: 1, Status: domain.OrderConfirmed,
	}); err != nil {
		t.Fatalf("save order: %v", err)
	}

	recs, err := a.Personalized(context.Background(), "brand-new-user", 3)
	if err != nil {
		t.Fatalf("personalized: %v", err)
	}
	if len(recs) == 0 || recs[0].Book == nil || recs[0].Book.ID != "b1" {
		t.Fatalf("fallback recs = %+v, want popular b1 first", recs)
	}
}

func TestPersonalizedExcludesOwnedBooks(t *testing.T) {
	a, st := newTestApp(t, nil)
	seedSciFiShelf(t, a)
	// Two buyers share a purchase so collaborative filtering has signal.
	for _, o := range []domain.Order{
		{ID: "o1", UserID: "u1", BookID: "b1", Quantity: 1, Status: domain.OrderConfirmed},
		{ID: "o2", UserID: "u2", BookID: "b1", Quantity: 1, Status: domain.OrderConfirmed},
		{ID: "o3", UserID: "u2", BookID: "b2", Quantity: 1, Status: domain.OrderConfirmed},
	} {
		if err := st.SaveOrder(o); err != nil {
			t.Fatalf("save order: %v", err)
		}
	}

	recs, err := a.Personalized(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("personalized: %v", err)
	}
	for _, r := range recs {
		if r.Book != nil && r.Book.ID == "b1" {
			t.Fatalf("recommended an already-owned book: %+v", recs)
		}
	}
}

func TestRetrainModelPersists(t *testing.T) {
	path := t.TempDir() + "/model.gob"
	a, _ := newTestApp(t, func(cfg *Config) { cfg.ModelPath = path })
	seedSciFiShelf(t, a)

	if err := a.RetrainModel(context.Background()); err != nil {
		t.Fatalf("retrain: %v", err)
	}
	// A fresh app picks the persisted model up without rebuilding.
	b, _ := newTestApp(t, func(cfg *Config) { cfg.ModelPath = path })
	seedSciFiShelf(t, b)
	if _, err := b.SimilarBooks(context.Background(), "b1", 2); err != nil {
		t.Fatalf("similar from persisted model: %v", err)
	}
}
