package smtp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/lattiq/courier/internal/core"
	"github.com/lattiq/courier/internal/mime"
)

// Driver identifiers.
const (
	Name          = "smtp"
	GmailName     = "gmail"
	OneAndOneName = "oneandone"
)

// Preset holds the connection defaults of a hosted SMTP service. Settings in
// the driver configuration override them.
type Preset struct {
	Host string
	Port int
	TLS  string
}

var (
	// Gmail relays through Google's submission port with STARTTLS.
	Gmail = Preset{Host: "smtp.gmail.com", Port: 587, TLS: "mandatory"}

	// OneAndOne relays through 1&1 without transport security.
	OneAndOne = Preset{Host: "smtp.1and1.com", Port: 587, TLS: "none"}
)

// Client delivers prepared messages to an SMTP server.
type Client interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Provider implements the mail driver contract for SMTP relays.
type Provider struct {
	core.Envelope

	client  Client
	name    string
	domain  string
	logger  *slog.Logger
	headers map[string]string
}

// NewProvider creates a new SMTP provider. The "host" setting is required,
// "port" defaults to 587 and "tls" is one of mandatory, opportunistic (the
// default), ssl or none. Credentials enable PLAIN authentication.
func NewProvider(cfg core.DriverConfig) (*Provider, error) {
	return newPreset(Name, Preset{Port: 587, TLS: "opportunistic"}, cfg)
}

// NewGmailProvider creates an SMTP provider preconfigured for Gmail.
func NewGmailProvider(cfg core.DriverConfig) (*Provider, error) {
	return newPreset(GmailName, Gmail, cfg)
}

// NewOneAndOneProvider creates an SMTP provider preconfigured for 1&1.
func NewOneAndOneProvider(cfg core.DriverConfig) (*Provider, error) {
	return newPreset(OneAndOneName, OneAndOne, cfg)
}

func newPreset(name string, preset Preset, cfg core.DriverConfig) (*Provider, error) {
	host := cfg.Settings.GetOr("host", preset.Host)
	if host == "" {
		return nil, core.NewValidationError("host", "SMTP host is required")
	}

	port := cfg.Settings.Int("port", preset.Port)
	if port <= 0 || port > 65535 {
		return nil, core.NewValidationErrorWithValue("port", "invalid port number", cfg.Settings.Get("port"))
	}

	opts := []mail.Option{mail.WithPort(port)}

	switch mode := strings.ToLower(cfg.Settings.GetOr("tls", preset.TLS)); mode {
	case "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "ssl":
		opts = append(opts, mail.WithSSLPort(false))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, core.NewValidationErrorWithValue("tls", "unknown TLS mode", mode)
	}

	if cfg.Credentials != nil && cfg.Credentials.Username() != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Credentials.Username()),
			mail.WithPassword(cfg.Credentials.Password()),
		)
	}

	if raw := cfg.Settings.Get("timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, core.NewValidationErrorWithValue("timeout", "invalid duration", raw)
		}
		opts = append(opts, mail.WithTimeout(timeout))
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, core.NewProviderError(name, "client_error", "failed to create mail client: "+err.Error())
	}

	p := NewWithClient(cfg, client)
	p.name = name
	p.logger = cfg.Log().With(slog.String("driver", name))
	if p.domain == "" {
		p.domain = host
	}
	return p, nil
}

// NewWithClient creates a provider with a custom client, used for testing.
func NewWithClient(cfg core.DriverConfig, client Client) *Provider {
	return &Provider{
		Envelope: core.NewEnvelope(cfg),
		client:   client,
		name:     Name,
		domain:   cfg.Settings.Get("message_id_domain"),
		logger:   cfg.Log().With(slog.String("driver", Name)),
		headers:  map[string]string{},
	}
}

// Configure accepts "headers" (map[string]string).
func (p *Provider) Configure(options core.Options) {
	if headers, ok := options["headers"].(map[string]string); ok {
		for k, v := range headers {
			p.headers[k] = v
		}
	}
}

// SetEmbeddedImage records an inline image. The file is read when the
// message is sent.
func (p *Provider) SetEmbeddedImage(cid, file, alias string) bool {
	p.Images = append(p.Images, core.EmbeddedImage{CID: cid, File: file, Alias: alias})
	p.Succeed()
	return true
}

// Send builds the message and delivers it to the relay.
func (p *Provider) Send(ctx context.Context) bool {
	if !p.Validate() {
		return false
	}

	msg, id, err := p.build()
	if errors.Is(err, mime.ErrUnsupportedContentType) {
		p.Fail("Mail service does not accept the specified content type.", 0)
		return false
	}
	if err != nil {
		p.Fail(err.Error(), 0)
		return false
	}

	if err := p.client.DialAndSendWithContext(ctx, msg); err != nil {
		p.logger.Debug("smtp delivery failed", slog.Any("error", err))
		p.Fail("Failed to deliver email: "+err.Error(), 0)
		return false
	}

	p.Succeed()
	p.LogSent(p.logger, p.name, id)
	return true
}

func (p *Provider) build() (*mail.Msg, string, error) {
	m := mail.NewMsg()

	if err := m.FromFormat(p.Sender.Name(), p.Sender.Email()); err != nil {
		return nil, "", core.NewValidationErrorWithValue("sender", err.Error(), p.Sender.String())
	}
	for _, r := range p.Recipients {
		if err := m.AddToFormat(r.Name(), r.Email()); err != nil {
			return nil, "", core.NewValidationErrorWithValue("recipient", err.Error(), r.String())
		}
	}
	for _, r := range p.CC {
		if err := m.AddCcFormat(r.Name(), r.Email()); err != nil {
			return nil, "", core.NewValidationErrorWithValue("cc", err.Error(), r.String())
		}
	}
	for _, r := range p.BCC {
		if err := m.AddBccFormat(r.Name(), r.Email()); err != nil {
			return nil, "", core.NewValidationErrorWithValue("bcc", err.Error(), r.String())
		}
	}
	if !p.ReplyTo.IsZero() {
		if err := m.ReplyToFormat(p.ReplyTo.Name(), p.ReplyTo.Email()); err != nil {
			return nil, "", core.NewValidationErrorWithValue("reply_to", err.Error(), p.ReplyTo.String())
		}
	}

	m.Subject(p.Subject)
	m.SetDate()
	domain := p.domain
	if domain == "" {
		domain = "localhost"
	}
	id := uuid.NewString() + "@" + domain
	m.SetMessageIDWithValue(id)
	m.SetGenHeader(mail.HeaderContentLang, "en-US")
	for key, value := range p.headers {
		m.SetGenHeader(mail.Header(key), value)
	}

	switch {
	case p.IsHTML():
		text := p.AltMessage
		if text == "" {
			text = mime.StripTags(p.Message)
		}
		m.SetBodyString(mail.TypeTextPlain, text)
		m.AddAlternativeString(mail.TypeTextHTML, p.Message)
	case p.ContentType == core.ContentTypeText, p.ContentType == core.ContentTypeMixed:
		m.SetBodyString(mail.TypeTextPlain, p.Message)
	default:
		return nil, "", mime.ErrUnsupportedContentType
	}

	for _, a := range p.Attachments {
		if err := m.AttachReader(a.Name(), bytes.NewReader(a.Contents()),
			mail.WithFileContentType(mail.ContentType(a.MIME()))); err != nil {
			return nil, "", core.NewValidationErrorWithValue("attachment", err.Error(), a.Name())
		}
	}
	for _, img := range p.Images {
		name := img.Alias
		if name == "" {
			name = img.CID
		}
		// cid: references resolve against the bracketed msg-id form.
		m.EmbedFile(img.File, mail.WithFileName(name), mail.WithFileContentID("<"+img.CID+">"))
	}

	return m, id, nil
}
