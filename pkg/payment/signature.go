package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// VerifyPaymentSignature checks the checkout callback signature: the hex
// HMAC-SHA256 of "orderID|paymentID" keyed with the API key secret.
func VerifyPaymentSignature(orderID, paymentID, signature, keySecret string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return fmt.Errorf("order id, payment id and signature required")
	}
	expected := signHex([]byte(orderID+"|"+paymentID), keySecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("payment signature mismatch")
	}
	return nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body using the webhook secret.
func VerifyWebhookSignature(body []byte, signature, webhookSecret string) error {
	if signature == "" {
		return fmt.Errorf("webhook signature required")
	}
	expected := signHex(body, webhookSecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("webhook signature mismatch")
	}
	return nil
}

func signHex(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
