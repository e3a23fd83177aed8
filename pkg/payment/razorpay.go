// Package payment integrates the Razorpay gateway: order creation, payment
// lookup and HMAC signature verification for captures and webhooks.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bibliotrack/pkg/domain"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com"

// Gateway is the payment-provider surface the application depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, amount domain.Paise, receipt string) (Order, error)
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
}

// Order is a gateway order awaiting payment.
type Order struct {
	ID       string       `json:"id"`
	Amount   domain.Paise `json:"amount"`
	Currency string       `json:"currency"`
	Receipt  string       `json:"receipt"`
	Status   string       `json:"status"`
}

// Payment is a gateway payment record.
type Payment struct {
	ID      string       `json:"id"`
	OrderID string       `json:"order_id"`
	Amount  domain.Paise `json:"amount"`
	Status  string       `json:"status"`
	Method  string       `json:"method"`
	Email   string       `json:"email"`
}

// RazorpayClient calls the Razorpay REST API with basic auth.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewRazorpayClient constructs a client. baseURL may be empty for the
// production endpoint.
func NewRazorpayClient(baseURL, keyID, keySecret string) *RazorpayClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &RazorpayClient{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

// CreateOrder registers an order with the gateway. Amount is in paise and
// auto-capture is enabled.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount domain.Paise, receipt string) (Order, error) {
	if amount <= 0 {
		return Order{}, fmt.Errorf("order amount must be positive")
	}
	reqBody := createOrderRequest{
		Amount:         int64(amount),
		Currency:       "INR",
		Receipt:        receipt,
		PaymentCapture: 1,
	}
	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", reqBody, &order); err != nil {
		return Order{}, err
	}
	if order.ID == "" {
		return Order{}, fmt.Errorf("razorpay order response missing id")
	}
	return order, nil
}

// FetchPayment retrieves a payment record.
func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("payment id required")
	}
	var payment Payment
	if err := c.doJSON(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

func (c *RazorpayClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal razorpay request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build razorpay request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call razorpay: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read razorpay response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("razorpay %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode razorpay response: %w", err)
		}
	}
	return nil
}
