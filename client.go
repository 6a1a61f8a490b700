package courier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lattiq/courier"

// Mailer composes one message and dispatches it through an ordered list of
// drivers. Mutating calls are broadcast to every driver and report the AND of
// the individual results; Send stops at the first driver that delivers.
//
// A Mailer is built per logical send and is not safe for concurrent use.
type Mailer struct {
	drivers   []Driver
	ids       []string
	source    ConfigSource
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	templates *TemplateEngine

	// delivered is set by a successful Send and cleared by the next call
	// that changes the message.
	delivered bool
}

// New creates a Mailer. Backends are resolved in order; with none configured
// the "default" group is used. Any resolution or contract failure aborts
// construction.
func New(config Config, opts ...Option) (*Mailer, error) {
	// Apply functional options
	for _, opt := range opts {
		opt(&config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	m := &Mailer{
		source:  config.Source,
		logger:  config.Logger,
		metrics: config.Metrics,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	m.tracer = tp.Tracer(tracerName)

	registry := config.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	backends := config.Backends
	if len(backends) == 0 {
		backends = []Backend{{Group: DefaultGroup}}
	}

	for i, b := range backends {
		spec, err := resolve(b, "mailer", config.Source)
		if err != nil {
			return nil, err
		}
		driver, err := buildMailDriver(registry, spec, m.logger)
		if err != nil {
			return nil, fmt.Errorf("backend %d (%s): %w", i, b, err)
		}
		m.drivers = append(m.drivers, driver)
		m.ids = append(m.ids, normalizeID(spec.Driver))
	}

	if config.Templates.Enabled {
		engine, err := NewTemplateEngine(config.Templates)
		if err != nil {
			return nil, fmt.Errorf("failed to create template engine: %w", err)
		}
		m.templates = engine
	}

	return m, nil
}

// NewWithDrivers creates a Mailer over already constructed drivers.
func NewWithDrivers(drivers ...Driver) (*Mailer, error) {
	if len(drivers) == 0 {
		return nil, fmt.Errorf("%w: no drivers", ErrInvalidConfiguration)
	}
	m := &Mailer{
		logger: slog.Default(),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	for i, d := range drivers {
		if d == nil {
			return nil, fmt.Errorf("%w: driver %d is nil", ErrInvalidConfiguration, i)
		}
		m.drivers = append(m.drivers, d)
		m.ids = append(m.ids, fmt.Sprintf("%T", d))
	}
	return m, nil
}

// resolve turns a backend reference into a spec. section names the group
// namespace ("mailer" or "subscriber").
func resolve(b Backend, section string, source ConfigSource) (BackendSpec, error) {
	if b.Spec != nil {
		return *b.Spec, b.Spec.Validate()
	}
	if source == nil {
		return BackendSpec{}, groupError(section, b.Group)
	}

	var (
		spec BackendSpec
		ok   bool
	)
	if section == "subscriber" {
		spec, ok = source.Subscriber(b.Group)
	} else {
		spec, ok = source.Mailer(b.Group)
	}
	if !ok {
		return BackendSpec{}, groupError(section, b.Group)
	}
	if err := spec.Validate(); err != nil {
		return BackendSpec{}, fmt.Errorf("group %s.%s: %w", section, b.Group, err)
	}
	return spec, nil
}

func buildMailDriver(registry *Registry, spec BackendSpec, logger *slog.Logger) (Driver, error) {
	factory, ok := registry.mailer(spec.Driver)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, spec.Driver)
	}
	product, err := factory(spec.driverConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("%w: driver %s: %w", ErrInvalidConfiguration, spec.Driver, err)
	}
	driver, ok := product.(Driver)
	if !ok {
		return nil, &ContractError{Driver: spec.Driver, Contract: "Driver", Type: fmt.Sprintf("%T", product)}
	}
	return driver, nil
}

// Drivers returns the driver ids in dispatch order.
func (m *Mailer) Drivers() []string {
	return append([]string(nil), m.ids...)
}

// each calls fn on every driver in order and reports whether all succeeded.
func (m *Mailer) each(fn func(Driver) bool) bool {
	m.delivered = false
	ok := true
	for _, d := range m.drivers {
		if !fn(d) {
			ok = false
		}
	}
	return ok
}

// Configure passes driver specific options to every driver.
func (m *Mailer) Configure(options Options) {
	m.delivered = false
	for _, d := range m.drivers {
		d.Configure(options)
	}
}

// AddRecipient adds a "To" recipient on every driver.
func (m *Mailer) AddRecipient(address EmailAddress) bool {
	return m.each(func(d Driver) bool { return d.AddRecipient(address) })
}

// AddCC adds a carbon copy recipient on every driver.
func (m *Mailer) AddCC(address EmailAddress) bool {
	return m.each(func(d Driver) bool { return d.AddCC(address) })
}

// AddBCC adds a blind carbon copy recipient on every driver.
func (m *Mailer) AddBCC(address EmailAddress) bool {
	return m.each(func(d Driver) bool { return d.AddBCC(address) })
}

// SetSender sets the sender on every driver.
func (m *Mailer) SetSender(address EmailAddress) bool {
	return m.each(func(d Driver) bool { return d.SetSender(address) })
}

// SetReplyTo sets the reply-to address on every driver.
func (m *Mailer) SetReplyTo(address EmailAddress) bool {
	return m.each(func(d Driver) bool { return d.SetReplyTo(address) })
}

// SetSubject sets the subject on every driver.
func (m *Mailer) SetSubject(subject string) {
	m.delivered = false
	for _, d := range m.drivers {
		d.SetSubject(subject)
	}
}

// SetContentType sets the content type on every driver.
func (m *Mailer) SetContentType(mime string) {
	m.delivered = false
	for _, d := range m.drivers {
		d.SetContentType(mime)
	}
}

// SetMessage sets the body on every driver.
func (m *Mailer) SetMessage(message string) {
	m.delivered = false
	for _, d := range m.drivers {
		d.SetMessage(message)
	}
}

// SetAltMessage sets the alternative body on every driver.
func (m *Mailer) SetAltMessage(message string) {
	m.delivered = false
	for _, d := range m.drivers {
		d.SetAltMessage(message)
	}
}

// AddAttachment adds an attachment on every driver.
func (m *Mailer) AddAttachment(attachment *Attachment) bool {
	return m.each(func(d Driver) bool { return d.AddAttachment(attachment) })
}

// SetEmbeddedImage embeds an image on every driver.
func (m *Mailer) SetEmbeddedImage(cid, file, alias string) bool {
	return m.each(func(d Driver) bool { return d.SetEmbeddedImage(cid, file, alias) })
}

// Log toggles send logging on every driver.
func (m *Mailer) Log(enabled bool) {
	for _, d := range m.drivers {
		d.Log(enabled)
	}
}

// Send tries each driver in order and returns true at the first success.
// Later drivers are not called once one has delivered.
func (m *Mailer) Send(ctx context.Context) bool {
	ctx, span := m.tracer.Start(ctx, "courier.Mailer.Send",
		trace.WithAttributes(attribute.Int("courier.drivers", len(m.drivers))),
	)
	defer span.End()

	m.delivered = false
	for i, d := range m.drivers {
		start := time.Now()
		ok := d.Send(ctx)
		elapsed := time.Since(start)

		m.metrics.observeSend(m.ids[i], ok, elapsed)
		span.AddEvent("driver.send", trace.WithAttributes(
			attribute.Int("courier.driver.index", i),
			attribute.String("courier.driver", m.ids[i]),
			attribute.Bool("courier.success", ok),
			attribute.Int64("courier.duration_ms", elapsed.Milliseconds()),
		))

		if ok {
			span.SetAttributes(attribute.String("courier.delivered_by", m.ids[i]))
			span.SetStatus(codes.Ok, "email sent")
			m.delivered = true
			return true
		}

		attrs := []any{slog.String("driver", m.ids[i]), slog.Int("index", i)}
		if rec := d.LastError(); rec != nil {
			attrs = append(attrs, slog.String("error", rec.Message), slog.Int("code", rec.Code))
		}
		m.logger.Warn("driver failed to send email", attrs...)
	}

	if rec := m.LastError(); rec != nil {
		span.RecordError(rec)
	}
	span.SetStatus(codes.Error, "all drivers failed")
	return false
}

// LastError returns the first non-nil error in driver order. After a
// successful Send it returns nil, even when drivers tried before the one
// that delivered failed, until the message is changed or sent again.
func (m *Mailer) LastError() *ErrorRecord {
	if m.delivered {
		return nil
	}
	for _, d := range m.drivers {
		if rec := d.LastError(); rec != nil {
			return rec
		}
	}
	return nil
}

// AddMailingList adds every address of list through AddRecipient, AddCC or
// AddBCC according to its category. Categories match case-insensitively;
// unknown ones are skipped. The result is always true: per-address failures
// are not tracked.
func (m *Mailer) AddMailingList(list MailingList) bool {
	categories := make([]string, 0, len(list))
	for category := range list {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		var add func(EmailAddress) bool
		switch strings.ToLower(category) {
		case "recipient":
			add = m.AddRecipient
		case "cc":
			add = m.AddCC
		case "bcc":
			add = m.AddBCC
		default:
			m.logger.Debug("skipping unknown mailing list category", slog.String("category", category))
			continue
		}
		for _, a := range list[category] {
			add(a.EmailAddress())
		}
	}
	return true
}

// AddNamedMailingList loads a mailing list from the ConfigSource and adds it.
func (m *Mailer) AddNamedMailingList(name string) (bool, error) {
	if m.source == nil {
		return false, groupError("mailer-lists", name)
	}
	list, ok := m.source.MailingList(name)
	if !ok {
		return false, groupError("mailer-lists", name)
	}
	return m.AddMailingList(list), nil
}

// RequestEmailVerification asks the first driver to verify address. It is
// not broadcast; drivers that cannot verify report false.
func (m *Mailer) RequestEmailVerification(ctx context.Context, address EmailAddress) bool {
	verifier, ok := m.drivers[0].(EmailVerifier)
	if !ok {
		m.logger.Warn("driver does not support email verification", slog.String("driver", m.ids[0]))
		return false
	}
	return verifier.RequestEmailVerification(ctx, address)
}

// ApplyTemplate renders the named message template and broadcasts the
// result: subject, body and, for HTML templates, the text alternative.
func (m *Mailer) ApplyTemplate(name string, data any) error {
	if m.templates == nil {
		return errors.New("template engine not enabled")
	}

	msg, err := m.templates.RenderMessage(name, data)
	if err != nil {
		return err
	}

	if msg.Subject != "" {
		m.SetSubject(msg.Subject)
	}
	if msg.HTML != "" {
		m.SetContentType(ContentTypeHTML)
		m.SetMessage(msg.HTML)
		m.SetAltMessage(msg.Text)
		return nil
	}
	m.SetContentType(ContentTypeText)
	m.SetMessage(msg.Text)
	return nil
}

// Templates returns the template engine, or nil when templates are disabled.
func (m *Mailer) Templates() *TemplateEngine {
	return m.templates
}
