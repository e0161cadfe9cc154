// Package mail hands auth emails to the delivery pipeline.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Kind identifies an email template
type Kind string

const (
	KindTwoFactorCode     Kind = "two_factor_code"
	KindPasswordReset     Kind = "password_reset"
	KindEmailVerification Kind = "email_verification"
)

// Message is the payload consumed by the delivery worker
type Message struct {
	Kind      Kind              `json:"kind"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Mailer sends auth emails
type Mailer interface {
	SendTwoFactorCode(ctx context.Context, to, code string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error
	SendEmailVerification(ctx context.Context, to, link string, expiresAt time.Time) error
}

// sender delivers a built message
type sender interface {
	send(ctx context.Context, msg Message) error
}

type mailer struct {
	from   string
	sender sender
}

func (m *mailer) SendTwoFactorCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	return m.deliver(ctx, KindTwoFactorCode, to, map[string]string{
		"code":      code,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (m *mailer) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	return m.deliver(ctx, KindPasswordReset, to, map[string]string{
		"link":      link,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (m *mailer) SendEmailVerification(ctx context.Context, to, link string, expiresAt time.Time) error {
	return m.deliver(ctx, KindEmailVerification, to, map[string]string{
		"link":      link,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (m *mailer) deliver(ctx context.Context, kind Kind, to string, data map[string]string) error {
	msg := Message{
		Kind:      kind,
		From:      m.from,
		To:        to,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.sender.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	return nil
}

// logSender writes messages to the log. Secrets in Data are not logged.
type logSender struct {
	logger *zap.Logger
}

func (s *logSender) send(_ context.Context, msg Message) error {
	s.logger.Info("email queued",
		zap.String("kind", string(msg.Kind)),
		zap.String("to_domain", domainOf(msg.To)),
		zap.String("expires_at", msg.Data["expiresAt"]),
	)
	return nil
}

// NewLogMailer returns a mailer for development that only logs deliveries
func NewLogMailer(from string, logger *zap.Logger) Mailer {
	return &mailer{from: from, sender: &logSender{logger: logger}}
}

// outboxSender pushes JSON messages onto a Redis list drained by the delivery worker
type outboxSender struct {
	client redis.Cmdable
	key    string
}

func (s *outboxSender) send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to outbox: %w", err)
	}
	return nil
}

// NewRedisOutboxMailer returns a mailer that enqueues messages on a Redis list
func NewRedisOutboxMailer(client redis.Cmdable, key, from string) Mailer {
	return &mailer{from: from, sender: &outboxSender{client: client, key: key}}
}

func domainOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			return addr[i+1:]
		}
	}
	return ""
}
