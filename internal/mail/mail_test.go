package mail

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestBuildMessagePlain(t *testing.T) {
	msg := string(buildMessage("shop@example.com", "user@example.com", "Your OTP", "Code: 123456", nil))
	for _, want := range []string{
		"From: shop@example.com",
		"To: user@example.com",
		"Subject: Your OTP",
		"Code: 123456",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if strings.Contains(msg, "multipart/mixed") {
		t.Error("plain message should not be multipart")
	}
}

func TestBuildMessageWithAttachment(t *testing.T) {
	att := Attachment{Filename: "invoice.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 test")}
	msg := string(buildMessage("shop@example.com", "user@example.com", "Order confirmed", "Thanks!", []Attachment{att}))
	for _, want := range []string{
		"multipart/mixed",
		`filename="invoice.pdf"`,
		"Content-Type: application/pdf",
		"Content-Transfer-Encoding: base64",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendValidatesConfigAndRecipient(t *testing.T) {
	if err := NewSMTPMailer(SMTPConfig{}).Send("user@example.com", "s", "b"); err == nil {
		t.Fatal("expected error without smtp config")
	}
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "shop@example.com"})
	if err := m.Send("not-an-address", "s", "b"); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestRenderInvoicePDF(t *testing.T) {
	data, err := RenderInvoicePDF(Invoice{
		Number:   "INV-42",
		Date:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Customer: "Asha",
		Email:    "asha@example.com",
		Lines: []InvoiceLine{
			{Title: "The Silent Patient", Quantity: 1, UnitPrice: 29900, Total: 29900},
			{Title: "Atomic Habits", Quantity: 2, UnitPrice: 19900, Total: 39800},
		},
		Total:     69700,
		PaymentID: "pay_123",
	})
	if err != nil {
		t.Fatalf("RenderInvoicePDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF, starts with %q", data[:8])
	}
	if len(data) < 500 {
		t.Fatalf("suspiciously small PDF: %d bytes", len(data))
	}
}

func TestLogMailerNeverFails(t *testing.T) {
	if err := (LogMailer{}).Send("user@example.com", "s", "b"); err != nil {
		t.Fatalf("LogMailer.Send: %v", err)
	}
}
