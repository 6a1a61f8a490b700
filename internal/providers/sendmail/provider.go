// Package sendmail implements a mail driver that hands messages to the local
// mail transfer agent through the sendmail command.
package sendmail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/lattiq/courier/internal/core"
	"github.com/lattiq/courier/internal/mime"
)

// Name is the driver identifier.
const Name = "sendmail"

// DefaultPath is the sendmail binary used when no "path" setting is given.
const DefaultPath = "/usr/sbin/sendmail"

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, from string, msg []byte) error
}

// CommandTransport pipes messages into a sendmail compatible binary, letting
// it read recipients from the headers.
type CommandTransport struct {
	Path string
}

// Deliver runs "sendmail -t -i -f from" with msg on stdin.
func (t CommandTransport) Deliver(ctx context.Context, from string, msg []byte) error {
	path := t.Path
	if path == "" {
		path = DefaultPath
	}

	cmd := exec.CommandContext(ctx, path, "-t", "-i", "-f", from) // #nosec G204 -- path comes from driver configuration
	cmd.Stdin = bytes.NewReader(msg)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if detail := strings.TrimSpace(string(out)); detail != "" {
			return fmt.Errorf("%w: %s", err, detail)
		}
		return err
	}
	return nil
}

// Provider sends mail through the local MTA.
type Provider struct {
	core.Envelope

	transport Transport
	logger    *slog.Logger
	domain    string
	now       func() time.Time
}

// NewProvider creates a sendmail driver. The "path" setting overrides the
// binary and "message_id_domain" the Message-ID host.
func NewProvider(cfg core.DriverConfig) (*Provider, error) {
	return NewWithTransport(cfg, CommandTransport{Path: cfg.Settings.GetOr("path", DefaultPath)}), nil
}

// NewWithTransport creates a driver with a custom transport, used for testing.
func NewWithTransport(cfg core.DriverConfig, transport Transport) *Provider {
	return &Provider{
		Envelope:  core.NewEnvelope(cfg),
		transport: transport,
		logger:    cfg.Log().With(slog.String("driver", Name)),
		domain:    cfg.Settings.Get("message_id_domain"),
		now:       time.Now,
	}
}

// Send renders the message and delivers it.
func (p *Provider) Send(ctx context.Context) bool {
	if !p.Validate() {
		return false
	}

	msg, err := mime.Build(&p.Envelope, mime.Options{
		Now:             p.now(),
		MessageIDDomain: p.domain,
	})
	if err != nil {
		p.Fail("Mail service does not accept the specified content type.", 0)
		return false
	}

	if err := p.transport.Deliver(ctx, p.Sender.Email(), msg.Bytes()); err != nil {
		p.logger.Debug("sendmail delivery failed", slog.Any("error", err))
		p.Fail("Failed to deliver email: "+err.Error(), 0)
		return false
	}

	p.Succeed()
	p.LogSent(p.logger, Name, msg.ID)
	return true
}
