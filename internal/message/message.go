package message

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/firefart/dmarcingest/internal/helper"

	// needed to handle other charsets too
	_ "github.com/emersion/go-message/charset"
)

// Attachment is a file taken from an inbound message. MIMEType is the type
// declared by the sender and can not be trusted.
type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

// Message is an inbound email reduced to what the pipeline needs. The header
// fields are only used for logging.
type Message struct {
	Subject     string
	From        string
	MessageID   string
	Attachments []Attachment
}

// Read parses a raw RFC 5322 message and collects its attachments. Inline
// parts are treated as attachments when they carry a gzip or zip archive.
func Read(ctx context.Context, r io.Reader, logger *slog.Logger) (*Message, error) {
	m, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not create reader: %w", err)
	}
	defer m.Close()

	msg := &Message{
		Subject:   m.Header.Get("Subject"),
		From:      m.Header.Get("From"),
		MessageID: m.Header.Get("Message-Id"),
	}
	if s, err := m.Header.Subject(); err == nil {
		msg.Subject = s
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := m.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("could not get next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("could not read inline body: %w", err)
			}
			// sometimes the attachment is inlined so we check the magic bytes
			if !helper.IsSupportedArchive(b) {
				logger.Debug("skipping inline part", slog.Int("length", len(b)))
				continue
			}
			contentType, params, _ := h.ContentType()
			_, dispParams, _ := h.ContentDisposition()
			filename := dispParams["filename"]
			if filename == "" {
				filename = params["name"]
			}
			logger.Info("found inline attachment", slog.String("filename", filename))
			msg.Attachments = append(msg.Attachments, newAttachment(filename, contentType, b))
		case *mail.AttachmentHeader:
			filename, err := h.Filename()
			if err != nil {
				return nil, fmt.Errorf("could not get attachment filename: %w", err)
			}
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("could not read attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, newAttachment(filename, contentType, b))
		default:
			logger.Info("no header type implemented", slog.String("type", fmt.Sprintf("%T", p.Header)))
		}
	}
	return msg, nil
}

// newAttachment replaces a generic declared type with the sniffed one and
// makes sure the attachment has a usable filename
func newAttachment(filename, contentType string, content []byte) Attachment {
	if helper.IsGenericMIMEType(contentType) {
		contentType = helper.SniffMIMEType(content)
	}
	if filename == "" {
		filename = "attachment" + helper.Extension(contentType)
	}
	return Attachment{
		Filename: sanitizeFilename(filename),
		MIMEType: contentType,
		Content:  content,
	}
}

// sanitizeFilename strips any path from a sender supplied filename
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}
	if filename == "" || filename == "." || filename == ".." {
		return "attachment"
	}
	return filename
}
