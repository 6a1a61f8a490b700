package courier

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring a Mailer.
type Option func(*Config)

// WithGroup appends a named backend group resolved through the ConfigSource.
func WithGroup(names ...string) Option {
	return func(c *Config) {
		for _, name := range names {
			c.Backends = append(c.Backends, Backend{Group: name})
		}
	}
}

// WithBackend appends an inline backend spec.
func WithBackend(spec BackendSpec) Option {
	return func(c *Config) {
		c.Backends = append(c.Backends, Backend{Spec: &spec})
	}
}

// WithConfigSource sets the source of named groups and mailing lists.
func WithConfigSource(src ConfigSource) Option {
	return func(c *Config) {
		c.Source = src
	}
}

// WithRegistry sets the driver registry.
func WithRegistry(r *Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithLogger sets the logger handed to drivers.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTemplates enables template functionality and sets the template directory.
func WithTemplates(directory string) Option {
	return func(c *Config) {
		c.Templates.Enabled = true
		c.Templates.Directory = directory
	}
}

// WithSendmail appends a sendmail backend sending as sender.
func WithSendmail(sender Address) Option {
	return WithBackend(BackendSpec{Driver: "sendmail", Sender: &sender})
}

// WithSMTP appends an SMTP relay backend.
func WithSMTP(host, port, username, password string) Option {
	spec := BackendSpec{
		Driver:   "smtp",
		Settings: map[string]string{"host": host, "port": port},
	}
	if username != "" {
		spec.Credentials = &CredentialSpec{Username: username, Password: password}
	}
	return WithBackend(spec)
}

// WithAWSSES appends an AWS SES backend using the default credential chain.
func WithAWSSES(region string) Option {
	return WithBackend(BackendSpec{
		Driver:   "aws_ses",
		Settings: map[string]string{"region": region},
	})
}

// WithSendGrid appends a SendGrid backend.
func WithSendGrid(apiKey string) Option {
	return WithBackend(BackendSpec{
		Driver:   "sendgrid",
		Settings: map[string]string{"api_key": apiKey},
	})
}

// WithMailgun appends a Mailgun backend.
func WithMailgun(apiKey, domain string) Option {
	return WithBackend(BackendSpec{
		Driver:   "mailgun",
		Settings: map[string]string{"api_key": apiKey, "domain": domain},
	})
}

// WithMailgunEU appends a Mailgun backend for the EU region.
func WithMailgunEU(apiKey, domain string) Option {
	return WithBackend(BackendSpec{
		Driver: "mailgun",
		Settings: map[string]string{
			"api_key":  apiKey,
			"domain":   domain,
			"base_url": "https://api.eu.mailgun.net",
		},
	})
}

// SubscriberOption is a functional option for configuring a Subscriber.
type SubscriberOption func(*SubscriberConfig)

// WithSubscriberGroup selects a named subscription group.
func WithSubscriberGroup(name string) SubscriberOption {
	return func(c *SubscriberConfig) {
		c.Group = name
		c.Spec = nil
	}
}

// WithSubscriberBackend selects an inline subscription spec.
func WithSubscriberBackend(spec BackendSpec) SubscriberOption {
	return func(c *SubscriberConfig) {
		c.Group = ""
		c.Spec = &spec
	}
}

// WithSubscriberSource sets the source of named subscription groups.
func WithSubscriberSource(src ConfigSource) SubscriberOption {
	return func(c *SubscriberConfig) {
		c.Source = src
	}
}

// WithSubscriberRegistry sets the driver registry.
func WithSubscriberRegistry(r *Registry) SubscriberOption {
	return func(c *SubscriberConfig) {
		c.Registry = r
	}
}

// WithSubscriberLogger sets the logger handed to the driver.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(c *SubscriberConfig) {
		c.Logger = logger
	}
}

// WithSubscriberTracerProvider sets the OpenTelemetry tracer provider.
func WithSubscriberTracerProvider(tp trace.TracerProvider) SubscriberOption {
	return func(c *SubscriberConfig) {
		c.TracerProvider = tp
	}
}

// WithSubscriberMetrics enables Prometheus metrics.
func WithSubscriberMetrics(m *Metrics) SubscriberOption {
	return func(c *SubscriberConfig) {
		c.Metrics = m
	}
}
