package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

// BookDetail bundles a book with its reviews and similar titles.
type BookDetail struct {
	Book    domain.Book         `json:"book"`
	Reviews []domain.Review     `json:"reviews"`
	Similar []domain.ScoredBook `json:"similar,omitempty"`
}

// ListBooks returns catalog books. Books without a cover image are hidden
// unless the filter explicitly asks for everything (admin views do).
func (a *App) ListBooks(ctx context.Context, filter store.BookFilter, includeCoverless bool) ([]domain.Book, error) {
	books, err := a.store.ListBooks(filter)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if includeCoverless {
		return books, nil
	}
	visible := books[:0]
	for _, b := range books {
		if strings.TrimSpace(b.CoverImageURL) != "" {
			visible = append(visible, b)
		}
	}
	return visible, nil
}

// GetBookDetail returns the book, its reviews and cached similar titles.
func (a *App) GetBookDetail(ctx context.Context, bookID string) (BookDetail, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return BookDetail{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return BookDetail{}, wrapf(ErrNotFound, "book %s", bookID)
	}
	reviews, err := a.store.ListReviewsByBook(bookID)
	if err != nil {
		return BookDetail{}, fmt.Errorf("list reviews: %w", err)
	}
	similar, err := a.SimilarBooks(ctx, bookID, 5)
	if err != nil {
		a.logger.Warn("similar books unavailable", "book_id", bookID, "error", err)
		similar = nil
	}
	return BookDetail{Book: book, Reviews: reviews, Similar: similar}, nil
}

// Genres lists distinct catalog genres.
func (a *App) Genres(ctx context.Context) ([]string, error) {
	return a.store.ListGenres()
}

// Categories lists distinct catalog categories.
func (a *App) Categories(ctx context.Context) ([]string, error) {
	return a.store.ListCategories()
}

// AddReview records one review per user per book (second submission
// replaces the first) and refreshes the book's average rating. Toxic
// comments are rejected.
func (a *App) AddReview(ctx context.Context, user domain.User, bookID string, rating int, comment string) (domain.Review, error) {
	if rating < 1 || rating > 5 {
		return domain.Review{}, invalidf("rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return domain.Review{}, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return domain.Review{}, wrapf(ErrNotFound, "book %s", bookID)
	}
	if a.moderator != nil && comment != "" {
		if result := a.moderator.Moderate(comment); result.Flagged {
			a.logger.Info("review rejected by moderation",
				"user_id", user.ID, "book_id", bookID, "confidence", result.Confidence)
			return domain.Review{}, wrapf(ErrContentRejected, "review comment")
		}
	}

	review := domain.Review{
		ID:        util.NewID(),
		UserID:    user.ID,
		Username:  user.Username,
		BookID:    bookID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if existing, ok, err := a.store.GetReview(bookID, user.ID); err != nil {
		return domain.Review{}, fmt.Errorf("fetch review: %w", err)
	} else if ok {
		review.ID = existing.ID
		review.CreatedAt = existing.CreatedAt
	}
	if err := a.store.SaveReview(review); err != nil {
		return domain.Review{}, fmt.Errorf("save review: %w", err)
	}
	if err := a.store.RefreshBookRating(bookID); err != nil {
		a.logger.Warn("rating refresh failed", "book_id", bookID, "error", err)
	}
	return review, nil
}
