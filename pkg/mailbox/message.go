package mailbox

import (
	"errors"
	"fmt"
	"io"
	"strings"

	// Registers decoders for non UTF-8 charsets.
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// maxBodyBytes caps each body part copied into the payload.
const maxBodyBytes = 256 << 10

// parseBody extracts the first text/plain and text/html parts of an RFC 5322 message.
// Attachments are skipped.
func parseBody(r io.Reader) (string, string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to read message: %w", err)
	}

	defer func() { _ = mr.Close() }()

	var text, html string

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return text, html, fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()

		body, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if err != nil {
			return text, html, fmt.Errorf("failed to read message part: %w", err)
		}

		switch {
		case strings.EqualFold(contentType, "text/html") && html == "":
			html = string(body)
		case (contentType == "" || strings.EqualFold(contentType, "text/plain")) && text == "":
			text = string(body)
		}
	}

	return text, html, nil
}
