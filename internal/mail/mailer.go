// Package mail sends transactional email: OTP codes for password resets and
// order confirmations with PDF invoices attached.
package mail

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends messages to a single recipient.
type Mailer interface {
	Send(to, subject, body string, attachments ...Attachment) error
}

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer builds a mailer. Config is validated on first send so the
// service can boot without SMTP in development.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send builds a MIME message and submits it to the relay.
func (m *SMTPMailer) Send(to, subject, body string, attachments ...Attachment) error {
	if m.cfg.Host == "" || m.cfg.From == "" {
		return fmt.Errorf("smtp host and from address required")
	}
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid recipient %q", to)
	}

	msg := buildMessage(m.cfg.From, to, subject, body, attachments)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

const mimeBoundary = "bibliotrack-mime-boundary"

func buildMessage(from, to, subject, body string, attachments []Attachment) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
		return []byte(b.String())
	}

	b.WriteString("Content-Type: multipart/mixed; boundary=" + mimeBoundary + "\r\n\r\n")
	b.WriteString("--" + mimeBoundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	for _, att := range attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		b.WriteString("--" + mimeBoundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + att.Filename + "\"\r\n\r\n")
		b.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(att.Data)))
		b.WriteString("\r\n")
	}
	b.WriteString("--" + mimeBoundary + "--\r\n")
	return []byte(b.String())
}

// wrapBase64 folds encoded data at 76 columns per RFC 2045.
func wrapBase64(s string) string {
	var b strings.Builder
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteString("\r\n")
		s = s[76:]
	}
	b.WriteString(s)
	return b.String()
}

// LogMailer writes messages to the log instead of sending them. Used when
// SMTP is not configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(to, subject, body string, attachments ...Attachment) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail suppressed (smtp not configured)",
		"to", to, "subject", subject, "attachments", len(attachments))
	return nil
}
