package store

import (
	"errors"
	"testing"
	"time"

	"bibliotrack/pkg/domain"
)

func seedBook(t *testing.T, s *MemoryStore, id string, stock int) {
	t.Helper()
	if err := s.SaveBook(domain.Book{
		ID:        id,
		Title:     "Book " + id,
		Author:    "Author",
		Price:     2999,
		Stock:     stock,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("save book: %v", err)
	}
}

func TestConfirmOrdersDecrementsStock(t *testing.T) {
	s := NewMemoryStore()
	seedBook(t, s, "b1", 3)
	order := domain.Order{
		ID:         "o1",
		UserID:     "u1",
		BookID:     "b1",
		Quantity:   2,
		TotalPrice: 5998,
		Status:     domain.OrderCart,
		OrderedAt:  time.Now().UTC(),
	}
	if err := s.SaveOrder(order); err != nil {
		t.Fatalf("save order: %v", err)
	}
	if err := s.MarkOrdersPending([]string{"o1"}, "order_rzp1"); err != nil {
		t.Fatalf("mark pending: %v", err)
	}

	confirmed, err := s.ConfirmOrders("order_rzp1", "pay_123")
	if err != nil {
		t.Fatalf("confirm orders: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].Status != domain.OrderConfirmed {
		t.Fatalf("unexpected confirmed orders: %+v", confirmed)
	}
	if confirmed[0].GatewayPayment != "pay_123" {
		t.Fatalf("gateway payment = %q, want pay_123", confirmed[0].GatewayPayment)
	}
	book, _, _ := s.GetBook("b1")
	if book.Stock != 1 {
		t.Fatalf("stock = %d, want 1", book.Stock)
	}

	// Second capture of the same gateway order finds nothing pending.
	if _, err := s.ConfirmOrders("order_rzp1", "pay_123"); !errors.Is(err, ErrNoPendingOrders) {
		t.Fatalf("expected ErrNoPendingOrders, got %v", err)
	}
}

func TestConfirmOrdersRejectsInsufficientStockWithoutPartialApply(t *testing.T) {
	s := NewMemoryStore()
	seedBook(t, s, "b1", 5)
	seedBook(t, s, "b2", 1)
	for _, o := range []domain.Order{
		{ID: "o1", UserID: "u1", BookID: "b1", Quantity: 1, Status: domain.OrderCart},
		{ID: "o2", UserID: "u1", BookID: "b2", Quantity: 3, Status: domain.OrderCart},
	} {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("save order: %v", err)
		}
	}
	if err := s.MarkOrdersPending([]string{"o1", "o2"}, "order_rzp2"); err != nil {
		t.Fatalf("mark pending: %v", err)
	}

	if _, err := s.ConfirmOrders("order_rzp2", "pay_456"); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	book, _, _ := s.GetBook("b1")
	if book.Stock != 5 {
		t.Fatalf("stock of b1 changed to %d on failed capture", book.Stock)
	}
	order, _, _ := s.GetOrder("o1")
	if order.Status != domain.OrderPending {
		t.Fatalf("order o1 status = %q, want pending", order.Status)
	}
}

func TestConfirmOrdersMarksListingSold(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveUserBook(domain.UserBook{
		ID:        "ub1",
		SellerID:  "seller",
		Title:     "Used Copy",
		Author:    "Author",
		Condition: domain.ConditionGood,
		Price:     1500,
		Available: true,
	}); err != nil {
		t.Fatalf("save user book: %v", err)
	}
	if err := s.SaveOrder(domain.Order{ID: "o1", UserID: "u1", UserBookID: "ub1", Quantity: 1, Status: domain.OrderCart}); err != nil {
		t.Fatalf("save order: %v", err)
	}
	if err := s.MarkOrdersPending([]string{"o1"}, "order_rzp3"); err != nil {
		t.Fatalf("mark pending: %v", err)
	}
	if _, err := s.ConfirmOrders("order_rzp3", "pay_789"); err != nil {
		t.Fatalf("confirm orders: %v", err)
	}
	ub, _, _ := s.GetUserBook("ub1")
	if ub.Available {
		t.Fatalf("listing still available after purchase")
	}

	// A listing already sold cannot be confirmed again.
	if err := s.SaveOrder(domain.Order{ID: "o2", UserID: "u2", UserBookID: "ub1", Quantity: 1, Status: domain.OrderCart}); err != nil {
		t.Fatalf("save order: %v", err)
	}
	if err := s.MarkOrdersPending([]string{"o2"}, "order_rzp4"); err != nil {
		t.Fatalf("mark pending: %v", err)
	}
	if _, err := s.ConfirmOrders("order_rzp4", "pay_790"); !errors.Is(err, ErrListingUnavailable) {
		t.Fatalf("expected ErrListingUnavailable, got %v", err)
	}
}

func TestWishlistAddIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	item := domain.WishlistItem{ID: "w1", UserID: "u1", BookID: "b1", AddedAt: time.Now().UTC()}
	if err := s.AddWishlistItem(item); err != nil {
		t.Fatalf("add wishlist: %v", err)
	}
	item.ID = "w2"
	if err := s.AddWishlistItem(item); err != nil {
		t.Fatalf("re-add wishlist: %v", err)
	}
	items, err := s.ListWishlist("u1")
	if err != nil {
		t.Fatalf("list wishlist: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("wishlist has %d items, want 1", len(items))
	}
}

func TestSavePaymentEventDeduplicates(t *testing.T) {
	s := NewMemoryStore()
	event := domain.PaymentEvent{
		ID:             "pe1",
		GatewayEventID: "evt_abc",
		Event:          "payment.captured",
		Amount:         2999,
		ReceivedAt:     time.Now().UTC(),
	}
	inserted, err := s.SavePaymentEvent(event)
	if err != nil || !inserted {
		t.Fatalf("first delivery: inserted=%v err=%v", inserted, err)
	}
	event.ID = "pe2"
	inserted, err = s.SavePaymentEvent(event)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate gateway event id was inserted again")
	}
}

func TestRefreshBookRatingAverages(t *testing.T) {
	s := NewMemoryStore()
	seedBook(t, s, "b1", 1)
	for i, rating := range []int{5, 3} {
		if err := s.SaveReview(domain.Review{
			ID:        "r" + string(rune('1'+i)),
			BookID:    "b1",
			UserID:    "u" + string(rune('1'+i)),
			Rating:    rating,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("save review: %v", err)
		}
	}
	if err := s.RefreshBookRating("b1"); err != nil {
		t.Fatalf("refresh rating: %v", err)
	}
	book, _, _ := s.GetBook("b1")
	if book.Rating != 4 {
		t.Fatalf("rating = %v, want 4", book.Rating)
	}
}
