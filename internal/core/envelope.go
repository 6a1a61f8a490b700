package core

import (
	"log/slog"
	"strings"
)

// DefaultSubject replaces an empty or unusable subject.
const DefaultSubject = "(no subject)"

// Content types accepted by SetContentType.
const (
	ContentTypeMixed = "multipart/mixed"
	ContentTypeHTML  = "text/html"
	ContentTypeText  = "text/plain"
)

// ErrEmbedUnsupported is the message recorded by drivers without inline
// image support.
const ErrEmbedUnsupported = "Failed to embed image because mail service does not support this feature."

// lineBreaks matches everything PCRE's \R would.
var lineBreaks = strings.NewReplacer(
	"\r\n", "",
	"\r", "",
	"\n", "",
	"\v", "",
	"\f", "",
	"\u0085", "",
	"\u2028", "",
	"\u2029", "",
)

// SanitizeSubject removes line breaks, trims the result and substitutes
// DefaultSubject when nothing is left.
func SanitizeSubject(subject string) string {
	subject = strings.TrimSpace(lineBreaks.Replace(subject))
	if subject == "" {
		return DefaultSubject
	}
	return subject
}

// EmbeddedImage is an inline image referenced from HTML through cid:<CID>.
type EmbeddedImage struct {
	CID   string
	File  string
	Alias string
}

// Envelope holds the message state shared by all mail drivers and implements
// the bookkeeping half of the Driver contract. Drivers embed it and add Send,
// plus overrides for capabilities they handle differently.
type Envelope struct {
	Recipients  []EmailAddress
	CC          []EmailAddress
	BCC         []EmailAddress
	Sender      EmailAddress
	ReplyTo     EmailAddress
	Subject     string
	ContentType string
	Message     string
	AltMessage  string
	Attachments []*Attachment
	Images      []EmbeddedImage

	err     *ErrorRecord
	logging bool
}

// NewEnvelope creates an envelope seeded from a driver configuration. When no
// reply-to is configured it defaults to the sender.
func NewEnvelope(cfg DriverConfig) Envelope {
	e := Envelope{
		Subject:     DefaultSubject,
		ContentType: ContentTypeText,
	}
	if cfg.Sender != nil {
		e.Sender = *cfg.Sender
	}
	if cfg.ReplyTo != nil {
		e.ReplyTo = *cfg.ReplyTo
	} else {
		e.ReplyTo = e.Sender
	}
	return e
}

// Configure ignores all options.
func (e *Envelope) Configure(Options) {}

// Successful mutating calls clear the recorded error, so LastError always
// describes the most recent operation.

// AddRecipient appends a "To" recipient.
func (e *Envelope) AddRecipient(address EmailAddress) bool {
	e.Recipients = append(e.Recipients, address)
	e.err = nil
	return true
}

// AddCC appends a carbon copy recipient.
func (e *Envelope) AddCC(address EmailAddress) bool {
	e.CC = append(e.CC, address)
	e.err = nil
	return true
}

// AddBCC appends a blind carbon copy recipient.
func (e *Envelope) AddBCC(address EmailAddress) bool {
	e.BCC = append(e.BCC, address)
	e.err = nil
	return true
}

// SetSender sets the "From" address.
func (e *Envelope) SetSender(address EmailAddress) bool {
	e.Sender = address
	e.err = nil
	return true
}

// SetReplyTo sets the "Reply-To" address.
func (e *Envelope) SetReplyTo(address EmailAddress) bool {
	e.ReplyTo = address
	e.err = nil
	return true
}

// SetSubject stores a sanitized subject.
func (e *Envelope) SetSubject(subject string) {
	e.Subject = SanitizeSubject(subject)
	e.err = nil
}

// SetContentType stores the content type lower-cased.
func (e *Envelope) SetContentType(mime string) {
	e.ContentType = strings.ToLower(strings.TrimSpace(mime))
	e.err = nil
}

// SetMessage sets the body.
func (e *Envelope) SetMessage(message string) {
	e.Message = message
	e.err = nil
}

// SetAltMessage sets the alternative body.
func (e *Envelope) SetAltMessage(message string) {
	e.AltMessage = message
	e.err = nil
}

// AddAttachment appends an attachment. A nil attachment is refused.
func (e *Envelope) AddAttachment(attachment *Attachment) bool {
	if attachment == nil {
		e.Fail("Failed to add attachment because it is empty.", 0)
		return false
	}
	e.Attachments = append(e.Attachments, attachment)
	e.err = nil
	return true
}

// SetEmbeddedImage reports the feature as unsupported.
func (e *Envelope) SetEmbeddedImage(string, string, string) bool {
	e.Fail(ErrEmbedUnsupported, 0)
	return false
}

// LastError returns the most recent error or nil.
func (e *Envelope) LastError() *ErrorRecord {
	return e.err
}

// Log toggles logging of sent messages.
func (e *Envelope) Log(enabled bool) {
	e.logging = enabled
}

// Logging reports whether sent messages are logged.
func (e *Envelope) Logging() bool {
	return e.logging
}

// Fail records an error.
func (e *Envelope) Fail(message string, code int) {
	e.err = NewErrorRecord(message, code)
}

// FailWith records an existing error record, or a generic one when nil.
func (e *Envelope) FailWith(record *ErrorRecord) {
	if record == nil {
		record = NewErrorRecord("Failed to deliver email.", 0)
	}
	e.err = record
}

// Succeed clears the recorded error.
func (e *Envelope) Succeed() {
	e.err = nil
}

// Validate checks the fields every driver needs before delivery and records
// the failure.
func (e *Envelope) Validate() bool {
	switch {
	case e.Sender.IsZero():
		e.Fail("Failed to send email because no sender has been set.", 0)
		return false
	case len(e.Recipients) == 0:
		e.Fail("Failed to send email because no recipient has been set.", 0)
		return false
	case e.Message == "":
		e.Fail("Failed to send email because no message has been set.", 0)
		return false
	}
	return true
}

// IsHTML reports whether the body should be treated as HTML.
func (e *Envelope) IsHTML() bool {
	return e.ContentType == ContentTypeHTML
}

// TotalRecipients returns the total number of recipients (To + CC + BCC).
func (e *Envelope) TotalRecipients() int {
	return len(e.Recipients) + len(e.CC) + len(e.BCC)
}

// LogSent writes the basic header information of a sent message when
// logging is enabled.
func (e *Envelope) LogSent(logger *slog.Logger, driver, messageID string) {
	if !e.logging || logger == nil {
		return
	}
	logger.Info("email sent",
		slog.String("driver", driver),
		slog.String("message_id", messageID),
		slog.String("from", e.Sender.String()),
		slog.Any("to", Strings(e.Recipients)),
		slog.Int("recipients", e.TotalRecipients()),
		slog.String("subject", e.Subject),
		slog.Int("attachments", len(e.Attachments)),
	)
}

// Strings formats a list of addresses.
func Strings(addresses []EmailAddress) []string {
	out := make([]string, len(addresses))
	for i, a := range addresses {
		out[i] = a.String()
	}
	return out
}
