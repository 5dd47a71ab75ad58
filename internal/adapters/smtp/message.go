package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/mikey/email-gateway/internal/core"
)

const maxMultipartDepth = 8

// wordDecoder decodes RFC 2047 encoded words, including non-UTF-8
// charsets still common in the wild.
var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

func decodeHeaderValue(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// ParseMessage turns a raw wire-format message into an InboundEmail.
// The raw bytes are retained untouched for signature verification.
func ParseMessage(raw []byte, sender string, recipients []string, sourceIP string) (*core.InboundEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	email := &core.InboundEmail{
		Sender:     sender,
		Recipients: recipients,
		SourceIP:   sourceIP,
		ReceivedAt: time.Now(),
		Headers:    parseRawHeaders(raw),
		Raw:        raw,
	}
	email.MessageID = strings.Trim(email.Header("Message-ID"), "<>")
	email.Subject = decodeHeaderValue(email.Header("Subject"))
	if email.Sender == "" {
		if addr, err := mail.ParseAddress(email.Header("From")); err == nil {
			email.Sender = addr.Address
		}
	}

	if err := walkParts(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"),
		msg.Header.Get("Content-Disposition"), msg.Body, email, 0); err != nil {
		return nil, fmt.Errorf("failed to extract message parts: %w", err)
	}
	return email, nil
}

// parseRawHeaders reads the header block directly so the original order
// survives; net/mail only offers an unordered map.
func parseRawHeaders(raw []byte) []core.Header {
	var headers []core.Header
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	sep := []byte("\r\n")
	if end == -1 {
		end = bytes.Index(raw, []byte("\n\n"))
		sep = []byte("\n")
	}
	if end == -1 {
		end = len(raw)
	}
	for _, line := range bytes.Split(raw[:end], sep) {
		if len(line) == 0 {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			// Continuation of the previous header.
			if n := len(headers); n > 0 {
				headers[n-1].Value += " " + string(bytes.TrimSpace(line))
			}
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		headers = append(headers, core.Header{
			Name:  string(bytes.TrimSpace(line[:colon])),
			Value: string(bytes.TrimSpace(line[colon+1:])),
		})
	}
	return headers
}

// walkParts recursively descends into multipart bodies collecting text,
// HTML and attachments.
func walkParts(contentType, transferEncoding, disposition string, body io.Reader, email *core.InboundEmail, depth int) error {
	if depth > maxMultipartDepth {
		return fmt.Errorf("multipart nesting deeper than %d levels", maxMultipartDepth)
	}

	mediaType := "text/plain"
	params := map[string]string{}
	if contentType != "" {
		parsed, parsedParams, err := mime.ParseMediaType(contentType)
		if err == nil {
			mediaType = parsed
			params = parsedParams
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary, ok := params["boundary"]
		if !ok {
			return fmt.Errorf("multipart message without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// A damaged trailing part should not discard what
				// was already collected.
				return nil
			}
			err = walkParts(
				part.Header.Get("Content-Type"),
				part.Header.Get("Content-Transfer-Encoding"),
				part.Header.Get("Content-Disposition"),
				part, email, depth+1)
			if err != nil {
				return err
			}
		}
	}

	content, err := decodeTransferEncoding(body, transferEncoding)
	if err != nil {
		return err
	}

	filename := partFilename(disposition, params)
	isAttachment := filename != "" || strings.HasPrefix(strings.ToLower(disposition), "attachment")

	switch {
	case isAttachment:
		if filename == "" {
			filename = "unnamed"
		}
		email.Attachments = append(email.Attachments, core.Attachment{
			Filename: decodeHeaderValue(filename),
			MimeType: mediaType,
			Size:     int64(len(content)),
			Content:  content,
		})
	case mediaType == "text/plain":
		if email.BodyText != "" {
			email.BodyText += "\n"
		}
		email.BodyText += string(content)
	case mediaType == "text/html":
		if email.BodyHTML != "" {
			email.BodyHTML += "\n"
		}
		email.BodyHTML += string(content)
	default:
		// Inline binary without a filename still needs scanning.
		email.Attachments = append(email.Attachments, core.Attachment{
			Filename: "inline",
			MimeType: mediaType,
			Size:     int64(len(content)),
			Content:  content,
		})
	}
	return nil
}

func decodeTransferEncoding(body io.Reader, encoding string) ([]byte, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		cleaned := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			// Deliver the undecoded bytes rather than drop the part.
			return raw, nil
		}
		return decoded, nil
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return raw, nil
		}
		return decoded, nil
	default:
		return raw, nil
	}
}

func partFilename(disposition string, typeParams map[string]string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return typeParams["name"]
}
