package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bibliotrack/pkg/domain"
)

func TestAddToCartIncrementsQuantity(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	first, err := a.AddToCart(ctx, user.ID, "b1", 1)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	second, err := a.AddToCart(ctx, user.ID, "b1", 2)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second add created a new line %s, want %s", second.ID, first.ID)
	}
	if second.Quantity != 3 || second.TotalPrice != 3*29900 {
		t.Fatalf("line = qty %d / %d paise, want 3 / %d", second.Quantity, second.TotalPrice, 3*29900)
	}
	cart, err := a.GetCart(ctx, user.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Total != 3*29900 {
		t.Fatalf("cart = %d items / %d paise", len(cart.Items), cart.Total)
	}
}

func TestAddToCartRespectsStock(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 2)
	ctx := context.Background()

	if _, err := a.AddToCart(ctx, user.ID, "b1", 3); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("over-stock add: got %v, want ErrOutOfStock", err)
	}
	if _, err := a.AddToCart(ctx, user.ID, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing book: got %v, want ErrNotFound", err)
	}
}

func TestAddListingToCartRejectsOwnListing(t *testing.T) {
	a, st := newTestApp(t, nil)
	seller, _ := signupUser(t, a, "seller")
	buyer, _ := signupUser(t, a, "buyer")
	seedListing(t, st, "l1", seller.ID, "Old Dune", 9900)
	ctx := context.Background()

	if _, err := a.AddListingToCart(ctx, seller.ID, "l1"); !errors.Is(err, ErrOwnListing) {
		t.Fatalf("own listing: got %v, want ErrOwnListing", err)
	}
	if _, err := a.AddListingToCart(ctx, buyer.ID, "l1"); err != nil {
		t.Fatalf("buyer add: %v", err)
	}
	if _, err := a.AddListingToCart(ctx, buyer.ID, "l1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate listing line: got %v, want ErrConflict", err)
	}
}

func TestUpdateCartQuantityZeroRemovesLine(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	line, err := a.AddToCart(ctx, user.ID, "b1", 2)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if err := a.UpdateCartQuantity(ctx, user.ID, line.ID, 0); err != nil {
		t.Fatalf("set qty 0: %v", err)
	}
	cart, err := a.GetCart(ctx, user.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("cart still has %d items", len(cart.Items))
	}
}

func TestCheckoutMarksOrdersPending(t *testing.T) {
	gw := &fakeGateway{}
	a, st := newTestApp(t, func(cfg *Config) { cfg.Gateway = gw })
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	seedCatalogBook(t, st, "b2", "Hyperion", 19900, 5)
	ctx := context.Background()

	if _, err := a.AddToCart(ctx, user.ID, "b1", 2); err != nil {
		t.Fatalf("add b1: %v", err)
	}
	if _, err := a.AddToCart(ctx, user.ID, "b2", 1); err != nil {
		t.Fatalf("add b2: %v", err)
	}

	result, err := a.Checkout(ctx, user.ID, "42 Arrakeen Way")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	wantTotal := domain.Paise(2*29900 + 19900)
	if result.Amount != wantTotal || result.Currency != "INR" || result.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected checkout result %+v", result)
	}
	if len(gw.created) != 1 || gw.created[0].Amount != wantTotal {
		t.Fatalf("gateway order %+v, want amount %d", gw.created, wantTotal)
	}

	pending, err := st.ListOrdersByGatewayOrderID(result.GatewayOrderID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending lines = %d, want 2", len(pending))
	}
	for _, o := range pending {
		if o.Status != domain.OrderPending {
			t.Fatalf("order %s status = %q, want pending", o.ID, o.Status)
		}
		if o.ShippingAddress != "42 Arrakeen Way" {
			t.Fatalf("order %s address = %q", o.ID, o.ShippingAddress)
		}
	}
	cart, _ := a.GetCart(ctx, user.ID)
	if len(cart.Items) != 0 {
		t.Fatal("cart not emptied by checkout")
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	if _, err := a.Checkout(context.Background(), user.ID, "addr"); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("empty cart checkout: got %v, want ErrCartEmpty", err)
	}
}

func TestBuyNowCreatesSinglePendingOrder(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)

	result, err := a.BuyNow(context.Background(), user.ID, "b1", 1, "42 Arrakeen Way")
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	pending, err := st.ListOrdersByGatewayOrderID(result.GatewayOrderID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Status != domain.OrderPending || pending[0].BookID != "b1" {
		t.Fatalf("unexpected pending orders %+v", pending)
	}
}

func TestCapturePaymentConfirmsOrdersAndDecrementsStock(t *testing.T) {
	mailer := &recordingMailer{}
	a, st := newTestApp(t, func(cfg *Config) { cfg.Mailer = mailer })
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	result, err := a.BuyNow(ctx, user.ID, "b1", 2, "42 Arrakeen Way")
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	sig := signPayment(result.GatewayOrderID, "pay_1")
	confirmed, err := a.CapturePayment(ctx, user, result.GatewayOrderID, "pay_1", sig)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].Status != domain.OrderConfirmed {
		t.Fatalf("confirmed = %+v", confirmed)
	}
	book, _, _ := st.GetBook("b1")
	if book.Stock != 3 {
		t.Fatalf("stock = %d, want 3", book.Stock)
	}
	notes, err := st.ListNotificationsByUser(user.ID, false)
	if err != nil || len(notes) == 0 {
		t.Fatalf("no order notification (err %v)", err)
	}
	if sent, ok := mailer.last(); !ok || sent.To != user.Email {
		t.Fatalf("confirmation mail = %+v", sent)
	}
}

func TestCapturePaymentRejectsBadSignature(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	result, err := a.BuyNow(ctx, user.ID, "b1", 1, "addr street")
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	if _, err := a.CapturePayment(ctx, user, result.GatewayOrderID, "pay_1", "deadbeef"); !errors.Is(err, ErrPaymentSignature) {
		t.Fatalf("bad signature: got %v, want ErrPaymentSignature", err)
	}
	pending, _ := st.ListOrdersByGatewayOrderID(result.GatewayOrderID)
	if len(pending) != 1 || pending[0].Status != domain.OrderPending {
		t.Fatalf("order mutated by rejected capture: %+v", pending)
	}
}

func webhookBody(t *testing.T, event, orderID, paymentID string, amount domain.Paise) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": orderID,
					"amount":   int64(amount),
					"status":   "captured",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return body
}

func TestWebhookCapturedConfirmsOnce(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	result, err := a.BuyNow(ctx, user.ID, "b1", 1, "addr street")
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	body := webhookBody(t, "payment.captured", result.GatewayOrderID, "pay_1", result.Amount)
	if err := a.HandleWebhook(ctx, body, signWebhook(body), "evt_1"); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	book, _, _ := st.GetBook("b1")
	if book.Stock != 4 {
		t.Fatalf("stock = %d, want 4", book.Stock)
	}

	// Same delivery replayed: acknowledged, no second decrement.
	if err := a.HandleWebhook(ctx, body, signWebhook(body), "evt_1"); err != nil {
		t.Fatalf("replayed webhook: %v", err)
	}
	book, _, _ = st.GetBook("b1")
	if book.Stock != 4 {
		t.Fatalf("stock after replay = %d, want 4", book.Stock)
	}
	events, err := st.ListPaymentEvents(10)
	if err != nil || len(events) != 1 {
		t.Fatalf("payment events = %d (err %v), want 1", len(events), err)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	a, _ := newTestApp(t, nil)
	body := webhookBody(t, "payment.captured", "order_x", "pay_x", 100)
	err := a.HandleWebhook(context.Background(), body, "deadbeef", "evt_1")
	if !errors.Is(err, ErrPaymentSignature) {
		t.Fatalf("bad webhook signature: got %v, want ErrPaymentSignature", err)
	}
}

func TestWebhookPaymentFailedCancelsPending(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	result, err := a.BuyNow(ctx, user.ID, "b1", 1, "addr street")
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	body := webhookBody(t, "payment.failed", result.GatewayOrderID, "pay_1", result.Amount)
	if err := a.HandleWebhook(ctx, body, signWebhook(body), "evt_1"); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	orders, _ := st.ListOrdersByGatewayOrderID(result.GatewayOrderID)
	if len(orders) != 1 || orders[0].Status != domain.OrderCancelled {
		t.Fatalf("orders after failure = %+v", orders)
	}
	book, _, _ := st.GetBook("b1")
	if book.Stock != 5 {
		t.Fatalf("stock touched by failed payment: %d", book.Stock)
	}
}

func TestConfirmedMarketplacePurchaseMarksListingSold(t *testing.T) {
	a, st := newTestApp(t, nil)
	seller, _ := signupUser(t, a, "seller")
	buyer, _ := signupUser(t, a, "buyer")
	seedListing(t, st, "l1", seller.ID, "Old Dune", 9900)
	ctx := context.Background()

	if _, err := a.AddListingToCart(ctx, buyer.ID, "l1"); err != nil {
		t.Fatalf("add listing: %v", err)
	}
	result, err := a.Checkout(ctx, buyer.ID, "addr street")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	sig := signPayment(result.GatewayOrderID, "pay_1")
	if _, err := a.CapturePayment(ctx, buyer, result.GatewayOrderID, "pay_1", sig); err != nil {
		t.Fatalf("capture: %v", err)
	}
	listing, _, _ := st.GetUserBook("l1")
	if listing.Available {
		t.Fatal("listing still available after sale")
	}
}
