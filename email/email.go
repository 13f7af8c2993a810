// Package email renders digest payloads and delivers them via pluggable
// providers.
package email

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"moodle-notifier/pkg/digest"
)

// DefaultSubject is used when no subject line is configured.
const DefaultSubject = "Learning System Notification"

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send delivers one email. textBody and htmlBody are the alternative
	// representations of the same digest.
	Send(ctx context.Context, to, toName, subject, textBody, htmlBody string) error
}

// Sender renders digest payloads and sends them using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	subject  string
}

// New creates a new digest sender with the given provider.
func New(provider Provider, logger *slog.Logger, subject string) *Sender {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sender{
		provider: provider,
		logger:   logger,
		subject:  subject,
	}
}

// SendDigest renders and delivers one recipient's digest.
func (s *Sender) SendDigest(ctx context.Context, p *digest.Payload) error {
	if p == nil {
		return errors.New("nil digest payload")
	}

	textBody := formatTextBody(p)
	htmlBody := formatHTMLBody(p)

	s.logger.Info("Sending digest email",
		"to", p.Email,
		"user_id", p.UserID,
		"forum_entries", len(p.Entries),
		"unread_messages", p.Unread)

	return s.provider.Send(ctx, p.Email, p.Name, s.subject, textBody, htmlBody)
}

// sanitizeHeader removes newlines and control characters to prevent header
// injection. RFC 5322 headers are newline-delimited, so any newline in a
// header value allows an attacker to inject arbitrary headers or body
// content.
func sanitizeHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}
