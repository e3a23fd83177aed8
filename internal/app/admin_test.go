package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/queue"
)

func TestSetUserRoleGuards(t *testing.T) {
	a, st := newTestApp(t, nil)
	admin, _ := signupUser(t, a, "admin")
	user, _ := signupUser(t, a, "bob")
	ctx := context.Background()

	if err := a.SetUserRole(ctx, admin, admin.ID, domain.RoleUser); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self demotion: got %v, want ErrForbidden", err)
	}
	if err := a.SetUserRole(ctx, admin, user.ID, "superuser"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bogus role: got %v, want ErrInvalid", err)
	}
	if err := a.SetUserRole(ctx, admin, user.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	promoted, _, _ := st.GetUserByID(user.ID)
	if promoted.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want admin", promoted.Role)
	}
}

func TestSetUserStatusGuards(t *testing.T) {
	a, st := newTestApp(t, nil)
	admin, _ := signupUser(t, a, "admin")
	user, session := signupUser(t, a, "bob")
	ctx := context.Background()

	if err := a.SetUserStatus(ctx, admin, admin.ID, domain.StatusDisabled); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self disable: got %v, want ErrForbidden", err)
	}
	if err := a.SetUserStatus(ctx, admin, user.ID, domain.StatusDisabled); err != nil {
		t.Fatalf("disable: %v", err)
	}
	disabled, _, _ := st.GetUserByID(user.ID)
	if disabled.Status != domain.StatusDisabled {
		t.Fatalf("status = %q, want disabled", disabled.Status)
	}
	// Disabling revokes outstanding refresh tokens.
	if _, err := a.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after disable: got %v, want ErrUnauthorized", err)
	}
}

func TestCreateBookEnqueuesVectorJob(t *testing.T) {
	jobs := &recordingQueue{}
	a, _ := newTestApp(t, func(cfg *Config) { cfg.Jobs = jobs })

	book, err := a.CreateBook(context.Background(), BookInput{
		Title: "Dune", Author: "Frank Herbert", Price: 29900, Stock: 5,
		CoverImageURL: "https://covers.example.com/dune.jpg",
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if len(jobs.jobs) != 1 || jobs.jobs[0].Kind != queue.KindBookVectors || jobs.jobs[0].TargetID != book.ID {
		t.Fatalf("jobs = %+v", jobs.jobs)
	}
}

func TestUpdateBookEnqueuesOnlyOnCoverChange(t *testing.T) {
	jobs := &recordingQueue{}
	a, _ := newTestApp(t, func(cfg *Config) { cfg.Jobs = jobs })
	ctx := context.Background()

	book, err := a.CreateBook(ctx, BookInput{
		Title: "Dune", Author: "Frank Herbert", Price: 29900, Stock: 5,
		CoverImageURL: "https://covers.example.com/dune.jpg",
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	in := BookInput{
		Title: "Dune", Author: "Frank Herbert", Price: 31900, Stock: 4,
		CoverImageURL: "https://covers.example.com/dune.jpg",
	}
	if _, err := a.UpdateBook(ctx, book.ID, in); err != nil {
		t.Fatalf("price update: %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("price-only update enqueued a job: %+v", jobs.jobs)
	}
	in.CoverImageURL = "https://covers.example.com/dune-v2.jpg"
	if _, err := a.UpdateBook(ctx, book.ID, in); err != nil {
		t.Fatalf("cover update: %v", err)
	}
	if len(jobs.jobs) != 2 {
		t.Fatalf("cover update did not enqueue: %+v", jobs.jobs)
	}
}

func TestUpdateOrderStatusNotifiesBuyer(t *testing.T) {
	a, st := newTestApp(t, nil)
	user, _ := signupUser(t, a, "alice")
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	ctx := context.Background()

	result, err := a.BuyNow(ctx, user.ID, "b1", 1, "addr street")
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	sig := signPayment(result.GatewayOrderID, "pay_1")
	confirmed, err := a.CapturePayment(ctx, user, result.GatewayOrderID, "pay_1", sig)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	if err := a.UpdateOrderStatus(ctx, confirmed[0].ID, domain.OrderShipped, "TRK123"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	order, _, _ := st.GetOrder(confirmed[0].ID)
	if order.Status != domain.OrderShipped || order.TrackingID != "TRK123" {
		t.Fatalf("order = %+v", order)
	}
	notes, _ := st.ListNotificationsByUser(user.ID, false)
	var shippedNote bool
	for _, n := range notes {
		if n.Kind == domain.NotifyOrderStatus && strings.Contains(n.Message, "shipped") && strings.Contains(n.Message, "TRK123") {
			shippedNote = true
		}
	}
	if !shippedNote {
		t.Fatalf("no shipped notification in %+v", notes)
	}

	if err := a.UpdateOrderStatus(ctx, confirmed[0].ID, domain.OrderCart, ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("cart status: got %v, want ErrInvalid", err)
	}
	if err := a.UpdateOrderStatus(ctx, "missing", domain.OrderShipped, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing order: got %v, want ErrNotFound", err)
	}
}
