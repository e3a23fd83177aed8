package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateOrderSendsPaiseWithBasicAuth(t *testing.T) {
	var got createOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Errorf("bad basic auth: %q %q %v", user, pass, ok)
		}
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Order{ID: "order_abc", Amount: 2999, Currency: "INR", Status: "created"})
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "key", "secret")
	order, err := client.CreateOrder(context.Background(), 2999, "order_o1")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_abc" {
		t.Fatalf("order id = %q", order.ID)
	}
	if got.Amount != 2999 || got.Currency != "INR" || got.PaymentCapture != 1 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	client := NewRazorpayClient("http://127.0.0.1:1", "key", "secret")
	if _, err := client.CreateOrder(context.Background(), 0, "r"); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestCreateOrderSurfacesGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"description":"Authentication failed"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "key", "wrong")
	if _, err := client.CreateOrder(context.Background(), 100, "r"); err == nil {
		t.Fatal("expected gateway error")
	}
}

func TestFetchPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/pay_123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Payment{ID: "pay_123", OrderID: "order_abc", Amount: 2999, Status: "captured"})
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "key", "secret")
	payment, err := client.FetchPayment(context.Background(), "pay_123")
	if err != nil {
		t.Fatalf("FetchPayment: %v", err)
	}
	if payment.Status != "captured" {
		t.Fatalf("status = %q", payment.Status)
	}
}

func hmacHex(t *testing.T, message, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	sig := hmacHex(t, "order_abc|pay_123", "secret")
	if err := VerifyPaymentSignature("order_abc", "pay_123", sig, "secret"); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifyPaymentSignature("order_abc", "pay_123", sig, "other"); err == nil {
		t.Fatal("wrong secret accepted")
	}
	if err := VerifyPaymentSignature("order_abc", "pay_999", sig, "secret"); err == nil {
		t.Fatal("wrong payment id accepted")
	}
	if err := VerifyPaymentSignature("", "pay_123", sig, "secret"); err == nil {
		t.Fatal("missing order id accepted")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := hmacHex(t, string(body), "whsecret")
	if err := VerifyWebhookSignature(body, sig, "whsecret"); err != nil {
		t.Fatalf("valid webhook signature rejected: %v", err)
	}
	if err := VerifyWebhookSignature([]byte(`{"event":"tampered"}`), sig, "whsecret"); err == nil {
		t.Fatal("tampered body accepted")
	}
	if err := VerifyWebhookSignature(body, "", "whsecret"); err == nil {
		t.Fatal("empty signature accepted")
	}
}
