package core

import (
	"fmt"
	"log/slog"
	"mime"
	"strconv"
	"strings"
)

// EmailAddress is an immutable email address with an optional display name.
type EmailAddress struct {
	email string
	name  string
}

// NewEmailAddress creates an address. Surrounding whitespace is trimmed.
func NewEmailAddress(email, name string) EmailAddress {
	return EmailAddress{
		email: strings.TrimSpace(email),
		name:  strings.TrimSpace(name),
	}
}

// Email returns the bare address.
func (a EmailAddress) Email() string { return a.email }

// Name returns the display name, which may be empty.
func (a EmailAddress) Name() string { return a.name }

// IsZero reports whether no address has been set.
func (a EmailAddress) IsZero() bool { return a.email == "" }

// String returns the formatted email address.
// If a name is present, returns "Name <email@domain.com>",
// otherwise returns just "email@domain.com".
func (a EmailAddress) String() string {
	if a.name != "" {
		return mime.QEncoding.Encode("UTF-8", a.name) + " <" + a.email + ">"
	}
	return a.email
}

// Credentials is an immutable username/password pair handed to drivers.
type Credentials struct {
	username string
	password string
}

// NewCredentials creates a credentials value.
func NewCredentials(username, password string) *Credentials {
	return &Credentials{username: username, password: password}
}

// Username returns the user name.
func (c *Credentials) Username() string { return c.username }

// Password returns the password.
func (c *Credentials) Password() string { return c.password }

// AsMap returns the components keyed by name.
func (c *Credentials) AsMap() map[string]string {
	return map[string]string{
		"username": c.username,
		"password": c.password,
	}
}

// String never exposes the password.
func (c *Credentials) String() string {
	return "Credentials{username: " + c.username + "}"
}

// ErrorRecord is the last error reported by a driver.
type ErrorRecord struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NewErrorRecord creates an error record.
func NewErrorRecord(message string, code int) *ErrorRecord {
	return &ErrorRecord{Message: message, Code: code}
}

// Error implements the error interface.
func (e *ErrorRecord) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

// ProviderSettings holds driver specific configuration values.
type ProviderSettings map[string]string

// Get retrieves a configuration value by key.
func (ps ProviderSettings) Get(key string) string {
	return ps[key]
}

// GetOr retrieves a configuration value, returning def when it is unset.
func (ps ProviderSettings) GetOr(key, def string) string {
	if v, ok := ps[key]; ok && v != "" {
		return v
	}
	return def
}

// Bool interprets a value as a boolean flag.
func (ps ProviderSettings) Bool(key string) bool {
	b, err := strconv.ParseBool(ps[key])
	return err == nil && b
}

// Int interprets a value as an integer, returning def when unset or invalid.
func (ps ProviderSettings) Int(key string, def int) int {
	n, err := strconv.Atoi(ps[key])
	if err != nil {
		return def
	}
	return n
}

// Set sets a configuration value.
func (ps ProviderSettings) Set(key, value string) {
	ps[key] = value
}

// Options carries per-send driver options passed through Configure.
type Options map[string]any

// DriverConfig is what a driver factory receives. Credentials and addresses
// are already wrapped into value objects.
type DriverConfig struct {
	// Driver is the identifier the factory was registered under.
	Driver string

	// Credentials for the backend, if configured.
	Credentials *Credentials

	// Sender is the default sender, if configured.
	Sender *EmailAddress

	// ReplyTo is the default reply-to address, if configured.
	ReplyTo *EmailAddress

	// Settings holds every remaining driver specific key.
	Settings ProviderSettings

	// Logger receives driver logs. Never nil when built by the dispatcher.
	Logger *slog.Logger
}

// Log returns the configured logger or the default one.
func (c DriverConfig) Log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
