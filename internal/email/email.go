package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"deyn.app/cloud/internal/logger"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewSender returns an SMTP sender, or a sender that only logs when no SMTP
// host is configured.
func NewSender(cfg SMTPConfig) Sender {
	if cfg.Host == "" {
		logger.Warn("SMTP not configured, e-mails will be logged only")
		return LogSender{}
	}
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if s.cfg.Host == "" || s.cfg.Port == "" || s.cfg.Username == "" || s.cfg.Password == "" {
		logger.Error("SMTP configuration missing")
		return errors.New("SMTP configuration missing")
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, from, []string{to}, buildMessage(from, to, subject, body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", from, to, subject, body))
}

// LogSender records the e-mail instead of delivering it.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	logger.Info("E-mail not sent, SMTP disabled", map[string]interface{}{
		"to":      to,
		"subject": subject,
	})
	return nil
}

// SubscriptionReceipt renders the e-mail sent after a subscription payment.
func SubscriptionReceipt(transactionID, amount string, accessUntil time.Time) (subject, body string) {
	subject = "Deyn subscription receipt"
	body = fmt.Sprintf(`Hello,

Thank you for your payment. Your Deyn subscription is active.

RECEIPT
Transaction: %s
Amount Paid: $%s
Access until: %s

If you have any questions, reply to this email.

The Deyn Team`, transactionID, amount, accessUntil.UTC().Format("2 January 2006"))
	return subject, body
}
