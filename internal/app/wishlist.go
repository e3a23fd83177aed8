package app

import (
	"context"
	"fmt"
	"time"

	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
)

// AddToWishlist saves a book on the caller's wishlist. Adding a book that
// is already wishlisted is rejected rather than duplicated.
func (a *App) AddToWishlist(ctx context.Context, userID, bookID string) (domain.WishlistItem, error) {
	_, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.WishlistItem{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.WishlistItem{}, wrapf(ErrNotFound, "book %s", bookID)
	}
	items, err := a.store.ListWishlist(userID)
	if err != nil {
		return domain.WishlistItem{}, fmt.Errorf("list wishlist: %w", err)
	}
	for _, item := range items {
		if item.BookID == bookID {
			return domain.WishlistItem{}, wrapf(ErrWishlistDuplicate, "book %s", bookID)
		}
	}
	item := domain.WishlistItem{
		ID:      util.NewID(),
		UserID:  userID,
		BookID:  bookID,
		AddedAt: time.Now().UTC(),
	}
	if err := a.store.AddWishlistItem(item); err != nil {
		return domain.WishlistItem{}, fmt.Errorf("save wishlist item: %w", err)
	}
	return item, nil
}

// RemoveFromWishlist drops a book from the caller's wishlist. Removing a
// book that was never wishlisted succeeds quietly.
func (a *App) RemoveFromWishlist(ctx context.Context, userID, bookID string) error {
	if err := a.store.RemoveWishlistItem(userID, bookID); err != nil {
		return fmt.Errorf("remove wishlist item: %w", err)
	}
	return nil
}

// Wishlist lists the caller's wishlisted books, newest first, resolving
// each entry to its catalog record.
func (a *App) Wishlist(ctx context.Context, userID string) ([]domain.Book, error) {
	items, err := a.store.ListWishlist(userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	books := make([]domain.Book, 0, len(items))
	for _, item := range items {
		book, ok, err := a.store.GetBook(item.BookID)
		if err != nil {
			return nil, fmt.Errorf("fetch book: %w", err)
		}
		if !ok {
			continue
		}
		books = append(books, book)
	}
	return books, nil
}
