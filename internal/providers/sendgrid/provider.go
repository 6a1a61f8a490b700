package sendgrid

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lattiq/courier/internal/core"
	"github.com/lattiq/courier/internal/mime"
)

// Name is the driver identifier.
const Name = "sendgrid"

// Client is the subset of the SendGrid client used by the provider.
type Client interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// inline is an embedded image already read from disk.
type inline struct {
	core.EmbeddedImage
	contents []byte
}

// Provider implements the mail driver contract for SendGrid.
type Provider struct {
	core.Envelope

	client     Client
	logger     *slog.Logger
	categories []string
	headers    map[string]string
	inlines    []inline
}

// NewProvider creates a new SendGrid provider. The API key is taken from the
// "api_key" setting or, failing that, the credentials password.
func NewProvider(cfg core.DriverConfig) (*Provider, error) {
	apiKey := cfg.Settings.Get("api_key")
	if apiKey == "" && cfg.Credentials != nil {
		apiKey = cfg.Credentials.Password()
	}
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "SendGrid API key is required")
	}

	return NewWithClient(cfg, sendgrid.NewSendClient(apiKey)), nil
}

// NewWithClient creates a provider with a custom client, used for testing.
func NewWithClient(cfg core.DriverConfig, client Client) *Provider {
	return &Provider{
		Envelope: core.NewEnvelope(cfg),
		client:   client,
		logger:   cfg.Log().With(slog.String("driver", Name)),
		headers:  map[string]string{},
	}
}

// Configure accepts "categories" ([]string) and "headers" (map[string]string).
func (p *Provider) Configure(options core.Options) {
	if categories, ok := options["categories"].([]string); ok {
		p.categories = append(p.categories, categories...)
	}
	if headers, ok := options["headers"].(map[string]string); ok {
		for k, v := range headers {
			p.headers[k] = v
		}
	}
}

// SetEmbeddedImage reads file and attaches it inline under cid.
func (p *Provider) SetEmbeddedImage(cid, file, alias string) bool {
	contents, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		p.Fail("Failed to embed image: "+err.Error(), 0)
		return false
	}
	if alias == "" {
		alias = filepath.Base(file)
	}
	p.inlines = append(p.inlines, inline{
		EmbeddedImage: core.EmbeddedImage{CID: cid, File: file, Alias: alias},
		contents:      contents,
	})
	p.Succeed()
	return true
}

// Send sends the message through the SendGrid v3 API.
func (p *Provider) Send(ctx context.Context) bool {
	if !p.Validate() {
		return false
	}

	response, err := p.client.SendWithContext(ctx, p.build())
	if err != nil {
		p.logger.Debug("sendgrid request failed", slog.Any("error", err))
		p.Fail("failed to send email: "+err.Error(), 0)
		return false
	}

	if response.StatusCode >= 400 {
		p.Fail("SendGrid API error: "+response.Body, response.StatusCode)
		return false
	}

	// SendGrid reports the message id in X-Message-Id.
	messageID := "unknown"
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	p.Succeed()
	p.LogSent(p.logger, Name, messageID)
	return true
}

func (p *Provider) build() *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(p.Sender.Name(), p.Sender.Email()))
	message.Subject = p.Subject

	if !p.ReplyTo.IsZero() {
		message.SetReplyTo(mail.NewEmail(p.ReplyTo.Name(), p.ReplyTo.Email()))
	}

	personalization := mail.NewPersonalization()
	for _, r := range p.Recipients {
		personalization.AddTos(mail.NewEmail(r.Name(), r.Email()))
	}
	for _, r := range p.CC {
		personalization.AddCCs(mail.NewEmail(r.Name(), r.Email()))
	}
	for _, r := range p.BCC {
		personalization.AddBCCs(mail.NewEmail(r.Name(), r.Email()))
	}
	message.AddPersonalizations(personalization)

	// text/plain must precede text/html.
	if p.IsHTML() {
		text := p.AltMessage
		if text == "" {
			text = mime.StripTags(p.Message)
		}
		message.AddContent(
			mail.NewContent(core.ContentTypeText, text),
			mail.NewContent(core.ContentTypeHTML, p.Message),
		)
	} else {
		message.AddContent(mail.NewContent(core.ContentTypeText, p.Message))
	}

	for _, a := range p.Attachments {
		att := mail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Contents()))
		att.SetType(a.MIME())
		att.SetFilename(a.Name())
		att.SetDisposition("attachment")
		message.AddAttachment(att)
	}

	for _, img := range p.inlines {
		att := mail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(img.contents))
		att.SetType(core.DetectContentType(img.Alias, img.contents))
		att.SetFilename(img.Alias)
		att.SetDisposition("inline")
		att.SetContentID(img.CID)
		message.AddAttachment(att)
	}

	if len(p.categories) > 0 {
		message.AddCategories(p.categories...)
	}
	if len(p.headers) > 0 {
		message.Headers = make(map[string]string, len(p.headers))
		for key, value := range p.headers {
			message.Headers[key] = value
		}
	}

	return message
}
