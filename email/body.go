package email

import (
	"fmt"
	"strings"

	"moodle-notifier/pkg/digest"
)

func formatHTMLBody(p *digest.Payload) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".header { border-bottom: 2px solid #2980b9; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".entry { margin-bottom: 20px; padding-bottom: 15px; border-bottom: 1px solid #ecf0f1; }\n")
	b.WriteString(".entry:last-of-type { border-bottom: none; }\n")
	b.WriteString(".course { color: #2980b9; font-weight: 600; }\n")
	b.WriteString(".author { color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString(".messages { background: #f8f9fa; padding: 15px 20px; border-radius: 8px; margin: 20px 0; font-weight: 600; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; font-size: 0.9em; color: #7f8c8d; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".course { color: #5dade2; }\n")
	b.WriteString(".author { color: #a0a0a0; }\n")
	b.WriteString(".messages { background: #2a2a2a; }\n")
	b.WriteString(".footer { border-top-color: #444; color: #a0a0a0; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	b.WriteString(fmt.Sprintf("<h2>Hello %s</h2>\n", escapeHTML(p.Name)))
	b.WriteString("</div>\n")

	if len(p.Entries) == 1 {
		b.WriteString("<p>There is new forum activity in your courses:</p>\n")
	} else if len(p.Entries) > 1 {
		b.WriteString(fmt.Sprintf("<p>There are %d new forum posts in your courses:</p>\n", len(p.Entries)))
	}

	for _, entry := range p.Entries {
		b.WriteString("<div class=\"entry\">\n")
		b.WriteString(fmt.Sprintf("<span class=\"course\">%s</span><br>\n", escapeHTML(entry.CourseName)))
		b.WriteString(fmt.Sprintf("<strong>%s</strong><br>\n", escapeHTML(entry.Subject)))
		b.WriteString(fmt.Sprintf("<span class=\"author\">started by %s</span>\n", escapeHTML(entry.Author)))
		b.WriteString("</div>\n")
	}

	if p.MessageLine != "" {
		b.WriteString(fmt.Sprintf("<div class=\"messages\">You have %s.</div>\n", escapeHTML(p.MessageLine)))
	}

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString("<p>Log in to the learning system to read the full discussions and messages.</p>\n")
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

func formatTextBody(p *digest.Payload) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Hello %s,\n\n", p.Name))

	if len(p.Entries) > 0 {
		b.WriteString("New forum activity in your courses:\n\n")
		for _, entry := range p.Entries {
			b.WriteString(fmt.Sprintf("  * [%s] %s (started by %s)\n", entry.CourseName, entry.Subject, entry.Author))
		}
		b.WriteString("\n")
	}

	if p.MessageLine != "" {
		b.WriteString(fmt.Sprintf("You have %s.\n\n", p.MessageLine))
	}

	b.WriteString("Log in to the learning system to read the full discussions and messages.\n")

	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
