package app

import (
	"context"
	"errors"
	"testing"
)

func TestWishlistAddIsIdempotent(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	if _, err := a.AddToWishlist(ctx, user.ID, "b1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := a.AddToWishlist(ctx, user.ID, "b1"); !errors.Is(err, ErrWishlistDuplicate) {
		t.Fatalf("duplicate add: got %v, want ErrWishlistDuplicate", err)
	}
	if _, err := a.AddToWishlist(ctx, user.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing book: got %v, want ErrNotFound", err)
	}

	books, err := a.Wishlist(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 || books[0].ID != "b1" {
		t.Fatalf("wishlist = %+v", books)
	}
}

func TestWishlistRemove(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	if _, err := a.AddToWishlist(ctx, user.ID, "b1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := a.RemoveFromWishlist(ctx, user.ID, "b1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// Removing again is quietly ignored.
	if err := a.RemoveFromWishlist(ctx, user.ID, "b1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	books, _ := a.Wishlist(ctx, user.ID)
	if len(books) != 0 {
		t.Fatalf("wishlist not empty: %+v", books)
	}
}
