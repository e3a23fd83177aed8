package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/queue"
)

// BookInput carries the fields an admin provides for a catalog book.
type BookInput struct {
	Title         string
	Author        string
	Genre         string
	Category      string
	Price         domain.Paise
	Stock         int
	CoverImageURL string
	Description   string
}

func (in BookInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		return invalidf("title and author are required")
	}
	if in.Price <= 0 {
		return invalidf("price must be positive")
	}
	if in.Stock < 0 {
		return invalidf("stock cannot be negative")
	}
	return nil
}

// ListUsers returns every account, oldest first.
func (a *App) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetUserStatus enables or disables an account. Admins cannot disable
// themselves.
func (a *App) SetUserStatus(ctx context.Context, actor domain.User, userID string, status domain.UserStatus) error {
	if status != domain.StatusActive && status != domain.StatusDisabled {
		return invalidf("unknown status %q", status)
	}
	if actor.ID == userID && status == domain.StatusDisabled {
		return wrapf(ErrForbidden, "cannot disable your own account")
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return wrapf(ErrNotFound, "user %s", userID)
	}
	user.Status = status
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if status == domain.StatusDisabled && a.refresh != nil {
		if err := a.refresh.RevokeUserRefreshTokens(userID); err != nil {
			a.logger.Error("revoke refresh tokens failed", "user_id", userID, "error", err)
		}
	}
	a.logger.Info("user status changed", "user_id", userID, "status", string(status), "actor_id", actor.ID)
	return nil
}

// SetUserRole promotes or demotes an account. Admins cannot change their
// own role.
func (a *App) SetUserRole(ctx context.Context, actor domain.User, userID string, role domain.UserRole) error {
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return invalidf("unknown role %q", role)
	}
	if actor.ID == userID {
		return wrapf(ErrForbidden, "cannot change your own role")
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return wrapf(ErrNotFound, "user %s", userID)
	}
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	a.logger.Info("user role changed", "user_id", userID, "role", string(role), "actor_id", actor.ID)
	return nil
}

// CreateBook adds a catalog book and schedules its vector precompute.
func (a *App) CreateBook(ctx context.Context, in BookInput) (domain.Book, error) {
	if err := in.validate(); err != nil {
		return domain.Book{}, err
	}
	book := domain.Book{
		ID:            util.NewID(),
		Title:         strings.TrimSpace(in.Title),
		Author:        strings.TrimSpace(in.Author),
		Genre:         strings.TrimSpace(in.Genre),
		Category:      strings.TrimSpace(in.Category),
		Price:         in.Price,
		Stock:         in.Stock,
		CoverImageURL: strings.TrimSpace(in.CoverImageURL),
		Description:   strings.TrimSpace(in.Description),
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	a.enqueueVectors(ctx, queue.KindBookVectors, book.ID)
	return book, nil
}

// UpdateBook edits a catalog book.
func (a *App) UpdateBook(ctx context.Context, bookID string, in BookInput) (domain.Book, error) {
	if err := in.validate(); err != nil {
		return domain.Book{}, err
	}
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, wrapf(ErrNotFound, "book %s", bookID)
	}
	coverChanged := book.CoverImageURL != strings.TrimSpace(in.CoverImageURL)
	book.Title = strings.TrimSpace(in.Title)
	book.Author = strings.TrimSpace(in.Author)
	book.Genre = strings.TrimSpace(in.Genre)
	book.Category = strings.TrimSpace(in.Category)
	book.Price = in.Price
	book.Stock = in.Stock
	book.CoverImageURL = strings.TrimSpace(in.CoverImageURL)
	book.Description = strings.TrimSpace(in.Description)
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	if coverChanged {
		a.enqueueVectors(ctx, queue.KindBookVectors, book.ID)
	}
	return book, nil
}

// DeleteBook removes a catalog book.
func (a *App) DeleteBook(ctx context.Context, bookID string) error {
	_, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return wrapf(ErrNotFound, "book %s", bookID)
	}
	if err := a.store.DeleteBook(bookID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// AllOrders lists every non-cart order for the admin dashboard.
func (a *App) AllOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := a.store.ListOrders(
		domain.OrderPending, domain.OrderConfirmed, domain.OrderShipped, domain.OrderDelivered, domain.OrderCancelled)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order along the fulfilment flow and notifies
// the buyer.
func (a *App) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, trackingID string) error {
	if _, ok := domain.ParseOrderStatus(string(status)); !ok || status == domain.OrderCart {
		return invalidf("unknown order status %q", status)
	}
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if !ok || order.Status == domain.OrderCart {
		return wrapf(ErrNotFound, "order %s", orderID)
	}
	if err := a.store.UpdateOrderStatus(orderID, status, trackingID); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	msg := fmt.Sprintf("Order %s is now %s.", orderID, status)
	if trackingID != "" {
		msg = fmt.Sprintf("Order %s is now %s. Tracking ID: %s", orderID, status, trackingID)
	}
	a.notifyUser(ctx, order.UserID, domain.NotifyOrderStatus, msg)
	return nil
}

// PaymentEvents lists recent gateway webhook deliveries, newest first.
func (a *App) PaymentEvents(ctx context.Context, limit int) ([]domain.PaymentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := a.store.ListPaymentEvents(limit)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	return events, nil
}
