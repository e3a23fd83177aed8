package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bibliotrack/internal/mail"
	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/notify"
	"bibliotrack/pkg/payment"
	"bibliotrack/pkg/store"
)

// Cart is the caller's open cart with its total.
type Cart struct {
	Items []domain.Order `json:"items"`
	Total domain.Paise   `json:"total"`
}

// CheckoutResult is returned to the client to launch the gateway widget.
type CheckoutResult struct {
	GatewayOrderID string       `json:"gatewayOrderId"`
	KeyID          string       `json:"keyId"`
	Amount         domain.Paise `json:"amount"`
	Currency       string       `json:"currency"`
}

// AddToCart adds a catalog book to the cart; adding the same book again
// increments its quantity.
func (a *App) AddToCart(ctx context.Context, userID, bookID string, quantity int) (domain.Order, error) {
	if quantity <= 0 {
		quantity = 1
	}
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Order{}, wrapf(ErrNotFound, "book %s", bookID)
	}
	if book.Stock <= 0 {
		return domain.Order{}, wrapf(ErrOutOfStock, "%s", book.Title)
	}

	order, exists, err := a.store.GetCartOrder(userID, bookID, "")
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch cart line: %w", err)
	}
	if exists {
		order.Quantity += quantity
	} else {
		order = domain.Order{
			ID:        util.NewID(),
			UserID:    userID,
			BookID:    bookID,
			Quantity:  quantity,
			Status:    domain.OrderCart,
			OrderedAt: time.Now().UTC(),
		}
	}
	if order.Quantity > book.Stock {
		return domain.Order{}, wrapf(ErrOutOfStock, "only %d of %s in stock", book.Stock, book.Title)
	}
	order.TotalPrice = book.Price * domain.Paise(order.Quantity)
	order.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveOrder(order); err != nil {
		return domain.Order{}, fmt.Errorf("save cart line: %w", err)
	}
	return order, nil
}

// AddListingToCart puts a marketplace listing in the cart. Listings are
// single items; buyers cannot buy their own listings.
func (a *App) AddListingToCart(ctx context.Context, userID, listingID string) (domain.Order, error) {
	listing, ok, err := a.store.GetUserBook(listingID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return domain.Order{}, wrapf(ErrNotFound, "listing %s", listingID)
	}
	if !listing.Available {
		return domain.Order{}, wrapf(ErrListingSold, "%s", listing.Title)
	}
	if listing.SellerID == userID {
		return domain.Order{}, wrapf(ErrOwnListing, "%s", listing.Title)
	}
	if _, exists, err := a.store.GetCartOrder(userID, "", listingID); err != nil {
		return domain.Order{}, fmt.Errorf("fetch cart line: %w", err)
	} else if exists {
		return domain.Order{}, wrapf(ErrConflict, "listing already in cart")
	}
	order := domain.Order{
		ID:         util.NewID(),
		UserID:     userID,
		UserBookID: listingID,
		Quantity:   1,
		Status:     domain.OrderCart,
		TotalPrice: listing.Price,
		OrderedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := a.store.SaveOrder(order); err != nil {
		return domain.Order{}, fmt.Errorf("save cart line: %w", err)
	}
	return order, nil
}

// UpdateCartQuantity sets a cart line's quantity; zero removes the line.
func (a *App) UpdateCartQuantity(ctx context.Context, userID, orderID string, quantity int) error {
	order, err := a.cartLine(userID, orderID)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		return a.RemoveFromCart(ctx, userID, orderID)
	}
	if order.UserBookID != "" && quantity != 1 {
		return invalidf("marketplace listings are single items")
	}
	if order.BookID != "" {
		book, ok, err := a.store.GetBook(order.BookID)
		if err != nil {
			return fmt.Errorf("fetch book: %w", err)
		}
		if !ok {
			return wrapf(ErrNotFound, "book %s", order.BookID)
		}
		if quantity > book.Stock {
			return wrapf(ErrOutOfStock, "only %d of %s in stock", book.Stock, book.Title)
		}
		order.TotalPrice = book.Price * domain.Paise(quantity)
	}
	order.Quantity = quantity
	order.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveOrder(order); err != nil {
		return fmt.Errorf("save cart line: %w", err)
	}
	return nil
}

// RemoveFromCart drops a cart line.
func (a *App) RemoveFromCart(ctx context.Context, userID, orderID string) error {
	order, err := a.cartLine(userID, orderID)
	if err != nil {
		return err
	}
	if err := a.store.UpdateOrderStatus(order.ID, domain.OrderCancelled, ""); err != nil {
		return fmt.Errorf("cancel cart line: %w", err)
	}
	return nil
}

// GetCart lists the caller's open cart.
func (a *App) GetCart(ctx context.Context, userID string) (Cart, error) {
	items, err := a.store.ListOrdersByUser(userID, domain.OrderCart)
	if err != nil {
		return Cart{}, fmt.Errorf("list cart: %w", err)
	}
	cart := Cart{Items: items}
	for _, item := range items {
		cart.Total += item.TotalPrice
	}
	return cart, nil
}

// BuyNow creates a checkout for exactly one book, bypassing the cart.
func (a *App) BuyNow(ctx context.Context, userID, bookID string, quantity int, shippingAddress string) (CheckoutResult, error) {
	if quantity <= 0 {
		quantity = 1
	}
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return CheckoutResult{}, wrapf(ErrNotFound, "book %s", bookID)
	}
	if book.Stock < quantity {
		return CheckoutResult{}, wrapf(ErrOutOfStock, "only %d of %s in stock", book.Stock, book.Title)
	}
	order := domain.Order{
		ID:         util.NewID(),
		UserID:     userID,
		BookID:     bookID,
		Quantity:   quantity,
		Status:     domain.OrderCart,
		TotalPrice: book.Price * domain.Paise(quantity),
		OrderedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := a.store.SaveOrder(order); err != nil {
		return CheckoutResult{}, fmt.Errorf("save order: %w", err)
	}
	return a.checkoutOrders(ctx, []domain.Order{order}, shippingAddress)
}

// Checkout validates the cart and registers a gateway order covering it.
func (a *App) Checkout(ctx context.Context, userID, shippingAddress string) (CheckoutResult, error) {
	items, err := a.store.ListOrdersByUser(userID, domain.OrderCart)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("list cart: %w", err)
	}
	if len(items) == 0 {
		return CheckoutResult{}, wrapf(ErrCartEmpty, "nothing to check out")
	}
	return a.checkoutOrders(ctx, items, shippingAddress)
}

func (a *App) checkoutOrders(ctx context.Context, items []domain.Order, shippingAddress string) (CheckoutResult, error) {
	if a.gateway == nil {
		return CheckoutResult{}, wrapf(ErrNotConfigured, "payment gateway")
	}
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return CheckoutResult{}, invalidf("shipping address is required")
	}

	var total domain.Paise
	for _, item := range items {
		if item.BookID != "" {
			book, ok, err := a.store.GetBook(item.BookID)
			if err != nil {
				return CheckoutResult{}, fmt.Errorf("fetch book: %w", err)
			}
			if !ok || book.Stock < item.Quantity {
				return CheckoutResult{}, wrapf(ErrOutOfStock, "%s", item.BookID)
			}
		}
		if item.UserBookID != "" {
			listing, ok, err := a.store.GetUserBook(item.UserBookID)
			if err != nil {
				return CheckoutResult{}, fmt.Errorf("fetch listing: %w", err)
			}
			if !ok || !listing.Available {
				return CheckoutResult{}, wrapf(ErrListingSold, "%s", item.UserBookID)
			}
		}
		total += item.TotalPrice
	}

	receipt := "rcpt_" + uuid.NewString()
	gatewayOrder, err := a.gateway.CreateOrder(ctx, total, receipt)
	if err != nil {
		a.logger.Error("gateway order failed", "error", err)
		return CheckoutResult{}, wrapf(ErrPaymentGateway, "%v", err)
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if err := a.store.MarkOrdersPending(ids, gatewayOrder.ID); err != nil {
		return CheckoutResult{}, fmt.Errorf("mark orders pending: %w", err)
	}
	pending, err := a.store.ListOrdersByGatewayOrderID(gatewayOrder.ID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("list pending orders: %w", err)
	}
	for _, order := range pending {
		order.ShippingAddress = shippingAddress
		order.UpdatedAt = time.Now().UTC()
		if err := a.store.SaveOrder(order); err != nil {
			return CheckoutResult{}, fmt.Errorf("stamp shipping address: %w", err)
		}
	}

	a.logger.Info("checkout created", "gateway_order_id", gatewayOrder.ID, "amount_paise", int64(total), "lines", len(items))
	return CheckoutResult{
		GatewayOrderID: gatewayOrder.ID,
		KeyID:          a.keyID,
		Amount:         total,
		Currency:       "INR",
	}, nil
}

// CapturePayment verifies the gateway callback and finalizes the purchase:
// orders flip to confirmed, stock is decremented and listings are marked
// sold, all atomically. Mail and notifications are best-effort afterward.
func (a *App) CapturePayment(ctx context.Context, user domain.User, gatewayOrderID, paymentID, signature string) ([]domain.Order, error) {
	if err := payment.VerifyPaymentSignature(gatewayOrderID, paymentID, signature, a.keySecret); err != nil {
		a.logger.Warn("payment signature rejected", "gateway_order_id", gatewayOrderID, "user_id", user.ID)
		return nil, wrapf(ErrPaymentSignature, "%v", err)
	}
	if a.gateway != nil {
		pay, err := a.gateway.FetchPayment(ctx, paymentID)
		if err != nil {
			return nil, wrapf(ErrPaymentGateway, "%v", err)
		}
		if pay.Status != "captured" {
			return nil, wrapf(ErrPaymentGateway, "payment %s not captured (status %s)", paymentID, pay.Status)
		}
	}
	confirmed, err := a.confirmGatewayOrder(ctx, gatewayOrderID, paymentID)
	if err != nil {
		return nil, err
	}
	a.sendInvoice(ctx, user, confirmed, paymentID)
	return confirmed, nil
}

func (a *App) confirmGatewayOrder(ctx context.Context, gatewayOrderID, paymentID string) ([]domain.Order, error) {
	confirmed, err := a.store.ConfirmOrders(gatewayOrderID, paymentID)
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return nil, wrapf(ErrOutOfStock, "%v", err)
	case errors.Is(err, store.ErrListingUnavailable):
		return nil, wrapf(ErrListingSold, "%v", err)
	case errors.Is(err, store.ErrNoPendingOrders):
		return nil, wrapf(ErrNotFound, "no pending orders for %s", gatewayOrderID)
	case err != nil:
		return nil, fmt.Errorf("confirm orders: %w", err)
	}
	a.logger.Info("payment captured", "gateway_order_id", gatewayOrderID, "payment_id", paymentID, "orders", len(confirmed))
	for _, order := range confirmed {
		a.notifyUser(ctx, order.UserID, domain.NotifyOrderStatus,
			fmt.Sprintf("Order %s confirmed. Thank you for your purchase!", order.ID))
	}
	return confirmed, nil
}

func (a *App) sendInvoice(ctx context.Context, user domain.User, orders []domain.Order, paymentID string) {
	if len(orders) == 0 {
		return
	}
	inv := mail.Invoice{
		Number:    "INV-" + orders[0].ID,
		Date:      time.Now().UTC(),
		Customer:  user.Username,
		Email:     user.Email,
		Address:   orders[0].ShippingAddress,
		PaymentID: paymentID,
	}
	for _, order := range orders {
		title := order.BookID
		if order.BookID != "" {
			if book, ok, err := a.store.GetBook(order.BookID); err == nil && ok {
				title = book.Title
			}
		} else if order.UserBookID != "" {
			title = order.UserBookID
			if listing, ok, err := a.store.GetUserBook(order.UserBookID); err == nil && ok {
				title = listing.Title + " (used)"
			}
		}
		unit := order.TotalPrice
		if order.Quantity > 0 {
			unit = order.TotalPrice / domain.Paise(order.Quantity)
		}
		inv.Lines = append(inv.Lines, mail.InvoiceLine{
			Title:     title,
			Quantity:  order.Quantity,
			UnitPrice: unit,
			Total:     order.TotalPrice,
		})
		inv.Total += order.TotalPrice
	}
	pdf, err := mail.RenderInvoicePDF(inv)
	if err != nil {
		a.logger.Error("invoice render failed", "error", err)
		return
	}
	att := mail.Attachment{Filename: inv.Number + ".pdf", ContentType: "application/pdf", Data: pdf}
	body := fmt.Sprintf("Your order is confirmed. Invoice %s is attached.", inv.Number)
	if err := a.mailer.Send(user.Email, "Order confirmation", body, att); err != nil {
		a.logger.Error("confirmation mail failed", "user_id", user.ID, "error", err)
	}
}

// MyOrders lists the caller's non-cart orders.
func (a *App) MyOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := a.store.ListOrdersByUser(userID,
		domain.OrderPending, domain.OrderConfirmed, domain.OrderShipped, domain.OrderDelivered, domain.OrderCancelled)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// razorpayWebhookEvent is the subset of the gateway webhook payload the
// application reads.
type razorpayWebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies and processes one gateway webhook delivery.
// Replayed events are acknowledged without a second side effect.
func (a *App) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) error {
	if err := payment.VerifyWebhookSignature(body, signature, a.webhookSecret); err != nil {
		a.logger.Warn("webhook signature rejected")
		return wrapf(ErrPaymentSignature, "%v", err)
	}
	var event razorpayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return invalidf("malformed webhook payload")
	}
	if event.Event == "" {
		return invalidf("webhook event type missing")
	}
	if eventID == "" {
		sum := sha256.Sum256(body)
		eventID = hex.EncodeToString(sum[:])
	}

	entity := event.Payload.Payment.Entity
	inserted, err := a.store.SavePaymentEvent(domain.PaymentEvent{
		ID:             util.NewID(),
		GatewayEventID: eventID,
		Event:          event.Event,
		GatewayOrderID: entity.OrderID,
		GatewayPayment: entity.ID,
		Amount:         domain.Paise(entity.Amount),
		Payload:        body,
		ReceivedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save payment event: %w", err)
	}
	if !inserted {
		a.logger.Info("webhook replay ignored", "gateway_event_id", eventID)
		return nil
	}
	a.logger.Info("webhook accepted", "event", event.Event, "gateway_order_id", entity.OrderID)

	switch event.Event {
	case "payment.captured":
		if entity.OrderID == "" {
			return nil
		}
		if _, err := a.confirmGatewayOrder(ctx, entity.OrderID, entity.ID); err != nil {
			// The client capture callback usually wins the race.
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
	case "payment.failed":
		if entity.OrderID == "" {
			return nil
		}
		pending, err := a.store.ListOrdersByGatewayOrderID(entity.OrderID)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		for _, order := range pending {
			if order.Status != domain.OrderPending {
				continue
			}
			if err := a.store.UpdateOrderStatus(order.ID, domain.OrderCancelled, ""); err != nil {
				return fmt.Errorf("cancel order: %w", err)
			}
			a.notifyUser(ctx, order.UserID, domain.NotifyOrderStatus,
				fmt.Sprintf("Payment failed for order %s.", order.ID))
		}
	}
	return nil
}

// notifyUser persists a notification and pushes it to the user's live
// connections.
func (a *App) notifyUser(ctx context.Context, userID string, kind domain.NotificationKind, message string) {
	n := domain.Notification{
		ID:        util.NewID(),
		UserID:    userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveNotification(n); err != nil {
		a.logger.Error("save notification failed", "user_id", userID, "error", err)
		return
	}
	a.emit(ctx, notify.Message{Type: notify.TypeNotification, UserID: userID, Data: n})
}

func (a *App) cartLine(userID, orderID string) (domain.Order, error) {
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch order: %w", err)
	}
	if !ok || order.UserID != userID || order.Status != domain.OrderCart {
		return domain.Order{}, wrapf(ErrNotFound, "cart line %s", orderID)
	}
	return order, nil
}
