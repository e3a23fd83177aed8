package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/queue"
	"bibliotrack/pkg/store"
)

const coverURLExpiry = time.Hour

// ListingInput carries the fields a seller provides for a listing.
type ListingInput struct {
	Title       string
	Author      string
	Genre       string
	Category    string
	Price       domain.Paise
	Condition   string
	Description string
}

func (in ListingInput) validate() (domain.BookCondition, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		return "", invalidf("title and author are required")
	}
	if in.Price <= 0 {
		return "", invalidf("price must be positive")
	}
	condition, ok := domain.ParseCondition(in.Condition)
	if !ok {
		return "", invalidf("unknown condition %q", in.Condition)
	}
	return condition, nil
}

// ListMarketplace returns available listings, newest first by default.
func (a *App) ListMarketplace(ctx context.Context, filter store.UserBookFilter) ([]domain.UserBook, error) {
	filter.OnlyAvailable = true
	listings, err := a.store.ListUserBooks(filter)
	if err != nil {
		return nil, fmt.Errorf("list marketplace: %w", err)
	}
	return listings, nil
}

// MyListings returns all of the seller's listings, sold ones included.
func (a *App) MyListings(ctx context.Context, sellerID string) ([]domain.UserBook, error) {
	listings, err := a.store.ListUserBooks(store.UserBookFilter{SellerID: sellerID})
	if err != nil {
		return nil, fmt.Errorf("list own listings: %w", err)
	}
	return listings, nil
}

// CreateListing publishes a marketplace listing with an optional cover
// image stored in object storage.
func (a *App) CreateListing(ctx context.Context, seller domain.User, in ListingInput, cover []byte, coverType string) (domain.UserBook, error) {
	condition, err := in.validate()
	if err != nil {
		return domain.UserBook{}, err
	}
	listing := domain.UserBook{
		ID:          util.NewID(),
		SellerID:    seller.ID,
		SellerName:  seller.Username,
		Title:       strings.TrimSpace(in.Title),
		Author:      strings.TrimSpace(in.Author),
		Genre:       strings.TrimSpace(in.Genre),
		Category:    strings.TrimSpace(in.Category),
		Price:       in.Price,
		Condition:   condition,
		Description: strings.TrimSpace(in.Description),
		Available:   true,
		CreatedAt:   time.Now().UTC(),
	}
	if len(cover) > 0 {
		key, err := a.storeCover(ctx, listing.ID, cover, coverType)
		if err != nil {
			return domain.UserBook{}, err
		}
		listing.CoverKey = key
	}
	if err := a.store.SaveUserBook(listing); err != nil {
		return domain.UserBook{}, fmt.Errorf("save listing: %w", err)
	}
	a.enqueueVectors(ctx, queue.KindListingVectors, listing.ID)
	return listing, nil
}

// UpdateListing edits a seller's own listing. A new cover replaces the
// stored object.
func (a *App) UpdateListing(ctx context.Context, seller domain.User, listingID string, in ListingInput, cover []byte, coverType string) (domain.UserBook, error) {
	condition, err := in.validate()
	if err != nil {
		return domain.UserBook{}, err
	}
	listing, err := a.ownListing(seller, listingID)
	if err != nil {
		return domain.UserBook{}, err
	}
	listing.Title = strings.TrimSpace(in.Title)
	listing.Author = strings.TrimSpace(in.Author)
	listing.Genre = strings.TrimSpace(in.Genre)
	listing.Category = strings.TrimSpace(in.Category)
	listing.Price = in.Price
	listing.Condition = condition
	listing.Description = strings.TrimSpace(in.Description)
	listing.UpdatedAt = time.Now().UTC()
	if len(cover) > 0 {
		key, err := a.storeCover(ctx, listing.ID, cover, coverType)
		if err != nil {
			return domain.UserBook{}, err
		}
		listing.CoverKey = key
	}
	if err := a.store.SaveUserBook(listing); err != nil {
		return domain.UserBook{}, fmt.Errorf("save listing: %w", err)
	}
	a.enqueueVectors(ctx, queue.KindListingVectors, listing.ID)
	return listing, nil
}

// RemoveListing withdraws a seller's own listing from the marketplace.
func (a *App) RemoveListing(ctx context.Context, seller domain.User, listingID string) error {
	if _, err := a.ownListing(seller, listingID); err != nil {
		return err
	}
	if err := a.store.SetUserBookAvailable(listingID, false); err != nil {
		return fmt.Errorf("withdraw listing: %w", err)
	}
	return nil
}

// CoverURL returns a presigned URL for a listing's cover image.
func (a *App) CoverURL(ctx context.Context, listingID string) (string, error) {
	listing, ok, err := a.store.GetUserBook(listingID)
	if err != nil {
		return "", fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return "", wrapf(ErrNotFound, "listing %s", listingID)
	}
	if listing.CoverKey == "" {
		return "", wrapf(ErrNotFound, "listing %s has no cover", listingID)
	}
	if a.objects == nil {
		return "", wrapf(ErrNotConfigured, "object storage")
	}
	url, err := a.objects.PresignGet(ctx, listing.CoverKey, coverURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign cover: %w", err)
	}
	return url, nil
}

func (a *App) ownListing(seller domain.User, listingID string) (domain.UserBook, error) {
	listing, ok, err := a.store.GetUserBook(listingID)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return domain.UserBook{}, wrapf(ErrNotFound, "listing %s", listingID)
	}
	if listing.SellerID != seller.ID && seller.Role != domain.RoleAdmin {
		return domain.UserBook{}, wrapf(ErrForbidden, "not the seller")
	}
	return listing, nil
}

func (a *App) storeCover(ctx context.Context, listingID string, cover []byte, contentType string) (string, error) {
	if a.objects == nil {
		return "", wrapf(ErrNotConfigured, "object storage")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := fmt.Sprintf("covers/%s", listingID)
	if err := a.objects.Put(ctx, key, bytes.NewReader(cover), int64(len(cover)), contentType); err != nil {
		return "", fmt.Errorf("upload cover: %w", err)
	}
	return key, nil
}
