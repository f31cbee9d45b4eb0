package mailparse

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is the part of an RFC 822 email the cleaner cares about
type Message struct {
	MessageID   string
	From        string
	FromName    string
	Subject     string
	Date        time.Time
	Body        string // first text/plain part
	HTMLBody    string // first text/html part
	Attachments []string
}

// Parse reads a raw email. Header fields that fail to decode are left empty;
// only an unreadable message envelope is an error.
func Parse(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	msg := &Message{}

	h := mr.Header
	msg.MessageID, _ = h.MessageID()
	msg.Subject, _ = h.Subject()
	msg.Date, _ = h.Date()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
		msg.FromName = from[0].Name
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return msg, fmt.Errorf("failed to read message part: %w", err)
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return msg, fmt.Errorf("failed to read %s part: %w", ct, err)
			}

			if strings.HasPrefix(ct, "text/plain") && msg.Body == "" {
				msg.Body = string(body)
			} else if strings.HasPrefix(ct, "text/html") && msg.HTMLBody == "" {
				msg.HTMLBody = string(body)
			}
		case *mail.AttachmentHeader:
			if name, err := ph.Filename(); err == nil && name != "" {
				msg.Attachments = append(msg.Attachments, name)
			}
		}
	}

	return msg, nil
}

// Text returns the plain body, falling back to the HTML body rendered as text
func (m *Message) Text() string {
	if strings.TrimSpace(m.Body) != "" {
		return m.Body
	}
	if m.HTMLBody != "" {
		return HTMLToText(m.HTMLBody)
	}
	return ""
}

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)

	blockElements = "p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, table"
)

// HTMLToText renders an HTML body as plain text with paragraph breaks kept
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("head, script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	text := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
