package courier

import (
	"sort"
	"strings"
	"sync"

	"github.com/lattiq/courier/internal/core"
	"github.com/lattiq/courier/internal/providers/mailgun"
	"github.com/lattiq/courier/internal/providers/sendgrid"
	"github.com/lattiq/courier/internal/providers/sendmail"
	"github.com/lattiq/courier/internal/providers/ses"
	"github.com/lattiq/courier/internal/providers/smtp"
	"github.com/lattiq/courier/internal/subscribers/mailchimp"
	mgsubscriber "github.com/lattiq/courier/internal/subscribers/mailgun"
)

// Factory builds a driver from its configuration. The product is checked
// against the capability contract by the caller, so a factory may return any
// value.
type Factory func(cfg DriverConfig) (any, error)

// Registry resolves driver ids to factories. Ids are case-insensitive.
// All methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	mailers     map[string]Factory
	subscribers map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		mailers:     map[string]Factory{},
		subscribers: map[string]Factory{},
	}
}

// RegisterMailer registers a mail driver factory, replacing any previous one.
func (r *Registry) RegisterMailer(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailers[normalizeID(id)] = f
}

// RegisterSubscriber registers a subscription driver factory, replacing any
// previous one.
func (r *Registry) RegisterSubscriber(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[normalizeID(id)] = f
}

// Mailers lists the registered mail driver ids.
func (r *Registry) Mailers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.mailers)
}

// Subscribers lists the registered subscription driver ids.
func (r *Registry) Subscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.subscribers)
}

func (r *Registry) mailer(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.mailers[normalizeID(id)]
	return f, ok
}

func (r *Registry) subscriber(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.subscribers[normalizeID(id)]
	return f, ok
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry holding the built-in drivers. Drivers
// registered on it are visible to every Mailer and Subscriber built without
// WithRegistry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		r.RegisterMailer(sendmail.Name, wrap(sendmail.NewProvider))
		r.RegisterMailer(smtp.Name, wrap(smtp.NewProvider))
		r.RegisterMailer(smtp.GmailName, wrap(smtp.NewGmailProvider))
		r.RegisterMailer(smtp.OneAndOneName, wrap(smtp.NewOneAndOneProvider))
		r.RegisterMailer(ses.Name, wrap(ses.NewProvider))
		r.RegisterMailer(sendgrid.Name, wrap(sendgrid.NewProvider))
		r.RegisterMailer(mailgun.Name, wrap(mailgun.NewProvider))
		r.RegisterSubscriber(mailchimp.Name, wrap(mailchimp.NewSubscriber))
		r.RegisterSubscriber(mgsubscriber.Name, wrap(mgsubscriber.NewSubscriber))
		defaultRegistry = r
	})
	return defaultRegistry
}

// wrap adapts a typed constructor to a Factory.
func wrap[T any](fn func(core.DriverConfig) (T, error)) Factory {
	return func(cfg DriverConfig) (any, error) {
		return fn(cfg)
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func keys(m map[string]Factory) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
