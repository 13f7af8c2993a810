package email

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// buildMIME assembles a multipart/alternative message with plain-text and
// HTML parts. All header values must already be sanitized by the caller.
func buildMIME(fromName, fromAddr, to, toName, subject, textBody, htmlBody string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	textPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return "", fmt.Errorf("create text part: %w", err)
	}
	if _, err := textPart.Write([]byte(textBody)); err != nil {
		return "", fmt.Errorf("write text part: %w", err)
	}

	htmlPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return "", fmt.Errorf("create html part: %w", err)
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return "", fmt.Errorf("write html part: %w", err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	if fromAddr != "" {
		msg.WriteString(fmt.Sprintf("From: %s<%s>\r\n", fromName, fromAddr))
	}
	if toName != "" {
		msg.WriteString(fmt.Sprintf("To: %s<%s>\r\n", toName, to))
	} else {
		msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%s\r\n\r\n", w.Boundary()))
	msg.WriteString(body.String())

	return msg.String(), nil
}
