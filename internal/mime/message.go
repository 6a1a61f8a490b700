// Package mime renders an envelope into an RFC 2822 style message with the
// multipart layout expected by local MTAs: a multipart/mixed container whose
// first part is either the plain body or a multipart/alternative pair (HTML
// followed by a plain text fallback), followed by one part per attachment.
package mime

import (
	"bytes"
	"crypto/md5" // #nosec G501 -- boundary token only, not used for security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	stdmime "mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lattiq/courier/internal/core"
)

// ErrUnsupportedContentType is returned for content types other than
// multipart/mixed, text/html and text/plain.
var ErrUnsupportedContentType = errors.New("mail service does not accept the specified content type")

// Options controls rendering.
type Options struct {
	// Now is used for the Date header and boundary. Zero means time.Now.
	Now time.Time

	// OmitBcc leaves the Bcc header out, for transports that take the
	// envelope recipients separately.
	OmitBcc bool

	// MessageIDDomain is the right hand side of the generated Message-ID.
	MessageIDDomain string
}

// Message is a rendered message.
type Message struct {
	// ID is the generated Message-ID without angle brackets.
	ID string

	// Header holds the header block, CRLF terminated, in write order.
	Header []string

	// Body is everything after the blank line separating it from the header.
	Body string
}

// Bytes returns the complete message.
func (m *Message) Bytes() []byte {
	var sb strings.Builder
	for _, h := range m.Header {
		sb.WriteString(h)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(m.Body)
	return []byte(sb.String())
}

// Boundary derives the boundary token from a timestamp.
func Boundary(now time.Time) string {
	sum := md5.Sum([]byte(now.Format(time.RFC1123Z))) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// Build renders env. The envelope is expected to have passed Validate.
func Build(env *core.Envelope, opts Options) (*Message, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	domain := opts.MessageIDDomain
	if domain == "" {
		domain = hostOf(env.Sender.Email())
	}

	msg := &Message{ID: uuid.New().String() + "@" + domain}

	header := []string{
		"To: " + strings.Join(core.Strings(env.Recipients), ", "),
		"Subject: " + stdmime.QEncoding.Encode("utf-8", env.Subject),
		"MIME-Version: 1.0",
		"From: " + env.Sender.String(),
	}
	if !env.ReplyTo.IsZero() {
		header = append(header, "Reply-To: "+env.ReplyTo.String())
	}
	if len(env.CC) > 0 {
		header = append(header, "Cc: "+strings.Join(core.Strings(env.CC), ", "))
	}
	if len(env.BCC) > 0 && !opts.OmitBcc {
		header = append(header, "Bcc: "+strings.Join(core.Strings(env.BCC), ", "))
	}
	header = append(header,
		"Date: "+now.Format(time.RFC1123Z),
		"Message-ID: <"+msg.ID+">",
		"Accept-Language: en-US",
		"Content-Language: en-US",
	)

	contentType := env.ContentType
	if len(env.Attachments) > 0 {
		contentType = core.ContentTypeMixed
	}

	boundary := Boundary(now)

	var body bytes.Buffer
	switch contentType {
	case core.ContentTypeMixed:
		mixed := multipart.NewWriter(&body)
		if err := mixed.SetBoundary("mixed-" + boundary); err != nil {
			return nil, fmt.Errorf("failed to set boundary: %w", err)
		}
		header = append(header, fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q", mixed.Boundary()))

		if env.ContentType == core.ContentTypeHTML {
			if err := writeAlternative(mixed, "alt-"+boundary, env); err != nil {
				return nil, err
			}
		} else if err := writeTextPart(mixed, core.ContentTypeText, env.Message); err != nil {
			return nil, err
		}

		for _, a := range env.Attachments {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Type", fmt.Sprintf("%s; name=%q", a.MIME(), a.Name()))
			h.Set("Content-Transfer-Encoding", a.Encoding())
			h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name()))
			part, err := mixed.CreatePart(h)
			if err != nil {
				return nil, fmt.Errorf("failed to create attachment part: %w", err)
			}
			if _, err := io.WriteString(part, a.Data()); err != nil {
				return nil, fmt.Errorf("failed to write attachment %s: %w", a.Name(), err)
			}
		}
		if err := mixed.Close(); err != nil {
			return nil, fmt.Errorf("failed to close multipart body: %w", err)
		}

	case core.ContentTypeHTML, core.ContentTypeText:
		header = append(header,
			fmt.Sprintf("Content-Type: %s; charset=%q", contentType, charsetOf(env.Message)),
			"Content-Transfer-Encoding: quoted-printable",
		)
		if err := encodeQP(&body, env.Message); err != nil {
			return nil, err
		}
		body.WriteString("\r\n")

	default:
		return nil, ErrUnsupportedContentType
	}

	msg.Header = header
	msg.Body = body.String()
	return msg, nil
}

// writeAlternative nests a multipart/alternative part holding the HTML body
// followed by its plain text fallback.
func writeAlternative(mixed *multipart.Writer, boundary string, env *core.Envelope) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	part, err := mixed.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}

	alt := multipart.NewWriter(part)
	if err := alt.SetBoundary(boundary); err != nil {
		return fmt.Errorf("failed to set boundary: %w", err)
	}
	if err := writeTextPart(alt, core.ContentTypeHTML, env.Message); err != nil {
		return err
	}
	if err := writeTextPart(alt, core.ContentTypeText, plainAlternative(env)); err != nil {
		return err
	}
	return alt.Close()
}

func writeTextPart(w *multipart.Writer, contentType, text string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", fmt.Sprintf("%s; charset=%q", contentType, charsetOf(text)))
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	return encodeQP(part, text)
}

// encodeQP writes text quoted-printable encoded, which keeps every line
// within 76 columns.
func encodeQP(w io.Writer, text string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, text); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return nil
}

// plainAlternative returns the alt message, or the tag-stripped HTML body.
func plainAlternative(env *core.Envelope) string {
	if env.AltMessage != "" {
		return env.AltMessage
	}
	return StripTags(env.Message)
}

func charsetOf(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return "utf-8"
		}
	}
	return "us-ascii"
}

func hostOf(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}
