package recommend

import (
	"testing"

	"bibliotrack/pkg/domain"
)

func catalog() []domain.Book {
	return []domain.Book{
		{ID: "b1", Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction", Category: "Fiction", Description: "desert planet spice empire"},
		{ID: "b2", Title: "Foundation", Author: "Isaac Asimov", Genre: "Science Fiction", Category: "Fiction", Description: "galactic empire psychohistory"},
		{ID: "b3", Title: "Mastering Pasta", Author: "Marc Vetri", Genre: "Cooking", Category: "Nonfiction", Description: "pasta dough recipes kitchen"},
	}
}

func TestContentSimilarPrefersSameGenre(t *testing.T) {
	model := BuildModel(catalog(), nil)
	hits := model.ContentSimilar("b1", 5)
	if len(hits) == 0 {
		t.Fatalf("expected content hits for b1")
	}
	if hits[0].Key != BookKey("b2") {
		t.Fatalf("top hit = %q, want %q", hits[0].Key, BookKey("b2"))
	}
	for _, h := range hits {
		if h.Key == BookKey("b1") {
			t.Fatalf("book recommended to itself")
		}
		if h.Score <= minSimilarity {
			t.Fatalf("hit below similarity floor: %+v", h)
		}
	}
}

func TestContentSimilarIncludesAvailableListingsOnly(t *testing.T) {
	listings := []domain.UserBook{
		{ID: "ub1", Title: "Dune Messiah", Author: "Frank Herbert", Genre: "Science Fiction", Category: "Fiction", Available: true},
		{ID: "ub2", Title: "Children of Dune", Author: "Frank Herbert", Genre: "Science Fiction", Category: "Fiction", Available: false},
	}
	model := BuildModel(catalog(), listings)
	hits := model.ContentSimilar("b1", 10)
	var sawAvailable, sawSold bool
	for _, h := range hits {
		if h.Key == ListingKey("ub1") {
			sawAvailable = true
		}
		if h.Key == ListingKey("ub2") {
			sawSold = true
		}
	}
	if !sawAvailable {
		t.Fatalf("available listing missing from content hits: %+v", hits)
	}
	if sawSold {
		t.Fatalf("sold listing surfaced in content hits")
	}
}

func TestCollaborativeScoresSuggestUnseenItems(t *testing.T) {
	orders := []domain.Order{
		{UserID: "u1", BookID: "b1", Status: domain.OrderConfirmed},
		{UserID: "u2", BookID: "b1", Status: domain.OrderDelivered},
		{UserID: "u2", BookID: "b2", Status: domain.OrderConfirmed},
		{UserID: "u3", BookID: "b3", Status: domain.OrderConfirmed},
		// Cart lines are not purchases.
		{UserID: "u1", BookID: "b3", Status: domain.OrderCart},
	}
	interactions := BuildInteractions(orders)
	if _, ok := interactions["u1"][BookKey("b3")]; ok {
		t.Fatalf("cart order counted as interaction")
	}

	scores := CollaborativeScores(interactions, "u1")
	if scores[BookKey("b2")] <= 0 {
		t.Fatalf("expected b2 suggested via overlapping buyer, got %v", scores)
	}
	if _, ok := scores[BookKey("b1")]; ok {
		t.Fatalf("already-purchased item was scored")
	}
}

func TestHybridBlendsAndDeduplicates(t *testing.T) {
	books := catalog()
	model := BuildModel(books, nil)
	orders := []domain.Order{
		{UserID: "u1", BookID: "b1", Status: domain.OrderConfirmed},
		{UserID: "u2", BookID: "b1", Status: domain.OrderConfirmed},
		{UserID: "u2", BookID: "b2", Status: domain.OrderConfirmed},
		{UserID: "u3", BookID: "b3", Status: domain.OrderConfirmed},
	}
	recs := Hybrid(model, BuildInteractions(orders), "u1", "b1", 4)
	if len(recs) == 0 {
		t.Fatalf("expected hybrid recommendations")
	}
	seen := make(map[string]bool)
	for _, r := range recs {
		if seen[r.Key] {
			t.Fatalf("duplicate key %q in hybrid output", r.Key)
		}
		seen[r.Key] = true
	}
	// b2 arrives via both sources; collaborative ran first and wins.
	if recs[0].Key != BookKey("b2") || recs[0].Source != "collaborative" {
		t.Fatalf("unexpected first recommendation: %+v", recs[0])
	}
}

func TestPopularBooksOrdersBySalesThenRating(t *testing.T) {
	books := []domain.Book{
		{ID: "b1", Rating: 3.0},
		{ID: "b2", Rating: 4.8},
		{ID: "b3", Rating: 4.2},
	}
	counts := map[string]int{"b1": 7, "b2": 2, "b3": 2}
	top := PopularBooks(books, counts, 2)
	if len(top) != 2 || top[0].ID != "b1" || top[1].ID != "b2" {
		t.Fatalf("unexpected popularity order: %+v", top)
	}
}

func TestClusterMatesStayInCluster(t *testing.T) {
	books := catalog()
	model := BuildModel(books, nil)
	mates := model.ClusterMates("b1", 5)
	for _, id := range mates {
		if id == "b1" {
			t.Fatalf("book returned as its own cluster mate")
		}
	}
}
