package mailgun

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lattiq/courier/internal/core"
	"github.com/lattiq/courier/internal/mime"
)

// Name is the driver identifier.
const Name = "mailgun"

// SendFunc delivers a prepared message and returns the API response message
// and the message id.
type SendFunc func(ctx context.Context, message *mailgun.Message) (string, string, error)

// Provider implements the mail driver contract for Mailgun.
type Provider struct {
	core.Envelope

	send    SendFunc
	logger  *slog.Logger
	tags    []string
	headers map[string]string
	inlines map[string][]byte
	order   []string
}

// NewProvider creates a new Mailgun provider.
func NewProvider(cfg core.DriverConfig) (*Provider, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithSender(cfg, func(ctx context.Context, m *mailgun.Message) (string, string, error) {
		return client.Send(ctx, m)
	}), nil
}

// NewClient builds a Mailgun client from the "api_key", "domain" and optional
// "base_url" settings. The credentials password is used when api_key is unset.
func NewClient(cfg core.DriverConfig) (*mailgun.MailgunImpl, error) {
	apiKey := cfg.Settings.Get("api_key")
	if apiKey == "" && cfg.Credentials != nil {
		apiKey = cfg.Credentials.Password()
	}
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "Mailgun API key is required")
	}

	domain := cfg.Settings.Get("domain")
	if domain == "" {
		return nil, core.NewValidationError("domain", "Mailgun domain is required")
	}

	client := mailgun.NewMailgun(domain, apiKey)

	// Set base URL if provided (for EU customers)
	if baseURL := cfg.Settings.Get("base_url"); baseURL != "" {
		client.SetAPIBase(baseURL)
	}
	return client, nil
}

// NewWithSender creates a provider with a custom send function, used for
// testing.
func NewWithSender(cfg core.DriverConfig, send SendFunc) *Provider {
	return &Provider{
		Envelope: core.NewEnvelope(cfg),
		send:     send,
		logger:   cfg.Log().With(slog.String("driver", Name)),
		headers:  map[string]string{},
		inlines:  map[string][]byte{},
	}
}

// Configure accepts "tags" ([]string) and "headers" (map[string]string).
func (p *Provider) Configure(options core.Options) {
	if tags, ok := options["tags"].([]string); ok {
		p.tags = append(p.tags, tags...)
	}
	if headers, ok := options["headers"].(map[string]string); ok {
		for k, v := range headers {
			p.headers[k] = v
		}
	}
}

// SetEmbeddedImage reads file and attaches it inline. Mailgun uses the inline
// file name as content id, so the image is uploaded under cid.
func (p *Provider) SetEmbeddedImage(cid, file, _ string) bool {
	contents, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		p.Fail("Failed to embed image: "+err.Error(), 0)
		return false
	}
	if _, exists := p.inlines[cid]; !exists {
		p.order = append(p.order, cid)
	}
	p.inlines[cid] = contents
	p.Succeed()
	return true
}

// Send sends the message through the Mailgun API.
func (p *Provider) Send(ctx context.Context) bool {
	if !p.Validate() {
		return false
	}

	text := p.Message
	if p.IsHTML() {
		text = p.AltMessage
		if text == "" {
			text = mime.StripTags(p.Message)
		}
	}

	message := mailgun.NewMessage(p.Sender.String(), p.Subject, text, p.Recipients[0].String())

	for _, r := range p.Recipients[1:] {
		if err := message.AddRecipient(r.String()); err != nil {
			p.Fail("failed to add recipient "+r.String()+": "+err.Error(), 0)
			return false
		}
	}
	for _, cc := range p.CC {
		message.AddCC(cc.String())
	}
	for _, bcc := range p.BCC {
		message.AddBCC(bcc.String())
	}

	if !p.ReplyTo.IsZero() {
		message.SetReplyTo(p.ReplyTo.String())
	}
	if p.IsHTML() {
		message.SetHTML(p.Message)
	}

	for key, value := range p.headers {
		message.AddHeader(key, value)
	}
	if len(p.tags) > 0 {
		if err := message.AddTag(p.tags...); err != nil {
			p.Fail("failed to add tags: "+err.Error(), 0)
			return false
		}
	}

	for _, a := range p.Attachments {
		message.AddBufferAttachment(a.Name(), a.Contents())
	}
	for _, cid := range p.order {
		message.AddReaderInline(cid, io.NopCloser(bytes.NewReader(p.inlines[cid])))
	}

	_, id, err := p.send(ctx, message)
	if err != nil {
		p.logger.Debug("mailgun request failed", slog.Any("error", err))
		p.Fail("failed to send email: "+err.Error(), statusCode(err))
		return false
	}

	p.Succeed()
	p.LogSent(p.logger, Name, id)
	return true
}

// statusCode extracts the HTTP status from a Mailgun API error.
func statusCode(err error) int {
	if code := mailgun.GetStatusFromErr(err); code > 0 {
		return code
	}
	return 0
}
