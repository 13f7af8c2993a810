package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// SMTPProvider sends emails over SMTP with STARTTLS.
type SMTPProvider struct {
	logger   *slog.Logger
	host     string
	port     string
	username string
	password string
	fromAddr string
	fromName string
}

// NewSMTPProvider creates a new SMTP email provider.
func NewSMTPProvider(host, port, username, password, fromAddr, fromName string, logger *slog.Logger) *SMTPProvider {
	return &SMTPProvider{
		logger:   logger,
		host:     host,
		port:     port,
		username: username,
		password: password,
		fromAddr: fromAddr,
		fromName: fromName,
	}
}

// Send delivers an email over SMTP. Each call dials its own connection so
// a rejected recipient never poisons the session for later recipients.
func (p *SMTPProvider) Send(ctx context.Context, to, toName, subject, textBody, htmlBody string) error {
	to = sanitizeHeader(to)
	toName = sanitizeHeader(toName)
	subject = sanitizeHeader(subject)

	msg, err := buildMIME(p.fromName, p.fromAddr, to, toName, subject, textBody, htmlBody)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	return retry.Do(
		func() error {
			p.logger.Info("SMTP delivery starting", "host", p.host, "to", to)

			startTime := time.Now()
			err := p.deliver(ctx, to, msg)
			duration := time.Since(startTime)

			if err != nil {
				p.logger.Warn("SMTP delivery failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}

			p.logger.Info("SMTP delivery completed",
				"to", to,
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying SMTP delivery after error", "attempt", n, "error", err)
		}),
	)
}

func (p *SMTPProvider) deliver(ctx context.Context, to, msg string) error {
	addr := net.JoinHostPort(p.host, p.port)

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	c, err := smtp.NewClient(conn, p.host)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			p.logger.Warn("Failed to close SMTP connection", "error", closeErr)
		}
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			p.logger.Debug("Failed to close SMTP client", "error", closeErr)
		}
	}()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: p.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if p.username != "" {
		auth := smtp.PlainAuth("", p.username, p.password, p.host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(p.fromAddr); err != nil {
		return fmt.Errorf("mail from %s: %w", p.fromAddr, err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to %s: %w", to, err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return c.Quit()
}
