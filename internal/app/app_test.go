package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"bibliotrack/internal/mail"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/payment"
	"bibliotrack/pkg/queue"
	"bibliotrack/pkg/store"
)

const (
	testKeySecret     = "test-key-secret"
	testWebhookSecret = "test-webhook-secret"
)

type fakeGateway struct {
	mu        sync.Mutex
	created   []payment.Order
	payments  map[string]payment.Payment
	createErr error
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount domain.Paise, receipt string) (payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payment.Order{}, g.createErr
	}
	o := payment.Order{
		ID:       fmt.Sprintf("order_rzp%d", len(g.created)+1),
		Amount:   amount,
		Currency: "INR",
		Receipt:  receipt,
		Status:   "created",
	}
	g.created = append(g.created, o)
	return o, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, paymentID string) (payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.payments[paymentID]; ok {
		return p, nil
	}
	return payment.Payment{ID: paymentID, Status: "captured"}, nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(to, subject, body string, _ ...mail.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *countingEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i]) / 255
	}
	return vec, nil
}

type countingExtractor struct {
	mu    sync.Mutex
	calls int
	vec   []float32
}

func (e *countingExtractor) ExtractFeatures(_ context.Context, _ []byte) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.vec, nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.JobStatus
}

func (q *recordingQueue) Enqueue(_ context.Context, kind, targetID string) (queue.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := queue.JobStatus{ID: fmt.Sprintf("job%d", len(q.jobs)+1), Kind: kind, TargetID: targetID}
	q.jobs = append(q.jobs, job)
	return job, nil
}

func newTestApp(t *testing.T, mutate func(*Config)) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret-0123456789", time.Hour, nil, store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	cfg := Config{
		Store:                st,
		Sessions:             sessions,
		Refresh:              store.NewMemoryRefreshTokenStore(),
		Gateway:              &fakeGateway{},
		GatewayKeyID:         "rzp_test_key",
		GatewayKeySecret:     testKeySecret,
		GatewayWebhookSecret: testWebhookSecret,
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func signupUser(t *testing.T, a *App, username string) (domain.User, Session) {
	t.Helper()
	user, session, err := a.SignUp(context.Background(), username, username+"@example.com", "password123")
	if err != nil {
		t.Fatalf("sign up %s: %v", username, err)
	}
	return user, session
}

func seedCatalogBook(t *testing.T, st *store.MemoryStore, id, title string, price domain.Paise, stock int) domain.Book {
	t.Helper()
	book := domain.Book{
		ID:            id,
		Title:         title,
		Author:        "Author " + id,
		Genre:         "Fiction",
		Category:      "Books",
		Price:         price,
		Stock:         stock,
		CoverImageURL: "https://covers.example.com/" + id + ".jpg",
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := st.SaveBook(book); err != nil {
		t.Fatalf("save book: %v", err)
	}
	return book
}

func seedListing(t *testing.T, st *store.MemoryStore, id, sellerID, title string, price domain.Paise) domain.UserBook {
	t.Helper()
	listing := domain.UserBook{
		ID:         id,
		SellerID:   sellerID,
		SellerName: "seller",
		Title:      title,
		Author:     "Used Author",
		Price:      price,
		Condition:  domain.ConditionGood,
		Available:  true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.SaveUserBook(listing); err != nil {
		t.Fatalf("save listing: %v", err)
	}
	return listing
}

func signPayment(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testKeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
