package courier

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/lattiq/courier/internal/core"
)

// DefaultGroup is used when a Mailer or Subscriber is built without backends.
const DefaultGroup = "default"

// Config holds the complete mailer configuration.
type Config struct {
	// Backends are resolved in order; the order is the broadcast order and
	// the fallback priority of Send.
	Backends []Backend

	// Source resolves named groups and mailing lists.
	Source ConfigSource

	// Registry resolves driver ids. Nil means DefaultRegistry().
	Registry *Registry

	// Logger is handed to every driver. Nil means slog.Default().
	Logger *slog.Logger

	// TracerProvider creates the tracer. Nil means the global provider.
	TracerProvider trace.TracerProvider

	// Metrics records send attempts. Optional.
	Metrics *Metrics

	// Templates contains template engine configuration.
	Templates TemplateConfig
}

// Backend is either a named group or an inline spec.
type Backend struct {
	Group string
	Spec  *BackendSpec
}

// String returns the group name or the inline driver id.
func (b Backend) String() string {
	if b.Spec != nil {
		return "inline:" + b.Spec.Driver
	}
	return b.Group
}

// BackendSpec configures one driver. Keys other than driver, credentials,
// sender and reply_to are passed to the driver as settings.
type BackendSpec struct {
	Driver      string            `yaml:"driver"`
	Credentials *CredentialSpec   `yaml:"credentials,omitempty"`
	Sender      *Address          `yaml:"sender,omitempty"`
	ReplyTo     *Address          `yaml:"reply_to,omitempty"`
	Settings    map[string]string `yaml:",inline"`
}

// CredentialSpec is the configuration form of Credentials.
type CredentialSpec struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Address is the configuration form of EmailAddress.
type Address struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name,omitempty"`
}

// EmailAddress converts the address into a value object.
func (a Address) EmailAddress() EmailAddress {
	return core.NewEmailAddress(a.Email, a.Name)
}

// MailingList maps a recipient category (recipient, cc or bcc) to addresses.
type MailingList map[string][]Address

// Validate checks the spec before it is handed to a factory.
func (s *BackendSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: empty backend spec", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(s.Driver) == "" {
		return fmt.Errorf("%w: backend spec has no driver", ErrInvalidConfiguration)
	}
	if s.Sender != nil && strings.TrimSpace(s.Sender.Email) == "" {
		return fmt.Errorf("%w: sender of driver %s has no email", ErrInvalidConfiguration, s.Driver)
	}
	if s.ReplyTo != nil && strings.TrimSpace(s.ReplyTo.Email) == "" {
		return fmt.Errorf("%w: reply_to of driver %s has no email", ErrInvalidConfiguration, s.Driver)
	}
	return nil
}

// driverConfig wraps the spec's sub-structures into value objects.
func (s *BackendSpec) driverConfig(logger *slog.Logger) core.DriverConfig {
	cfg := core.DriverConfig{
		Driver:   normalizeID(s.Driver),
		Settings: core.ProviderSettings{},
		Logger:   logger,
	}
	for k, v := range s.Settings {
		cfg.Settings[k] = v
	}
	if s.Credentials != nil {
		cfg.Credentials = core.NewCredentials(s.Credentials.Username, s.Credentials.Password)
	}
	if s.Sender != nil {
		sender := s.Sender.EmailAddress()
		cfg.Sender = &sender
	}
	if s.ReplyTo != nil {
		replyTo := s.ReplyTo.EmailAddress()
		cfg.ReplyTo = &replyTo
	}
	return cfg
}

// DefaultConfig returns a configuration that resolves the default group.
func DefaultConfig() Config {
	return Config{
		Templates: DefaultTemplateConfig(),
	}
}

// Validate checks if the configuration is valid and complete.
func (c *Config) Validate() error {
	for i, b := range c.Backends {
		switch {
		case b.Spec != nil && b.Group != "":
			return fmt.Errorf("%w: backend %d has both a group and an inline spec", ErrInvalidConfiguration, i)
		case b.Spec != nil:
			if err := b.Spec.Validate(); err != nil {
				return fmt.Errorf("backend %d: %w", i, err)
			}
		case strings.TrimSpace(b.Group) == "":
			return fmt.Errorf("%w: backend %d is empty", ErrInvalidConfiguration, i)
		}
	}
	return nil
}

// ConfigSource resolves named configuration groups.
type ConfigSource interface {
	// Mailer returns the backend spec of a mail group.
	Mailer(group string) (BackendSpec, bool)

	// MailingList returns a named mailing list.
	MailingList(name string) (MailingList, bool)

	// Subscriber returns the backend spec of a subscription group.
	Subscriber(group string) (BackendSpec, bool)
}

// MapSource is an in-memory ConfigSource.
type MapSource struct {
	Mailers      map[string]BackendSpec `yaml:"mailer"`
	MailingLists map[string]MailingList `yaml:"mailer-lists"`
	Subscribers  map[string]BackendSpec `yaml:"subscriber"`
}

// Mailer implements ConfigSource.
func (m *MapSource) Mailer(group string) (BackendSpec, bool) {
	spec, ok := m.Mailers[group]
	return spec, ok
}

// MailingList implements ConfigSource.
func (m *MapSource) MailingList(name string) (MailingList, bool) {
	list, ok := m.MailingLists[name]
	return list, ok
}

// Subscriber implements ConfigSource.
func (m *MapSource) Subscriber(group string) (BackendSpec, bool) {
	spec, ok := m.Subscribers[group]
	return spec, ok
}

var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// LoadFile reads a YAML configuration file with top level sections mailer,
// mailer-lists and subscriber. ${VAR} references are expanded from the
// environment before parsing.
func LoadFile(path string) (*MapSource, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration document. See LoadFile.
func ParseConfig(data []byte) (*MapSource, error) {
	expanded := envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		if v, ok := os.LookupEnv(string(ref[2 : len(ref)-1])); ok {
			return []byte(v)
		}
		return ref
	})

	src := &MapSource{}
	if err := yaml.Unmarshal(expanded, src); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrInvalidConfiguration, err)
	}
	return src, nil
}
