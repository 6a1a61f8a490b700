package courier

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SubscriberConfig selects the single subscription backend of a Subscriber.
type SubscriberConfig struct {
	// Group names a subscriber group in Source. Ignored when Spec is set.
	Group string

	// Spec is an inline backend spec.
	Spec *BackendSpec

	// Source resolves Group.
	Source ConfigSource

	// Registry resolves driver ids. Nil means DefaultRegistry().
	Registry *Registry

	// Logger is handed to the driver. Nil means slog.Default().
	Logger *slog.Logger

	// TracerProvider creates the tracer. Nil means the global provider.
	TracerProvider trace.TracerProvider

	// Metrics records subscription operations. Optional.
	Metrics *Metrics
}

// Subscriber manages list membership through one subscription driver and
// optionally sends a notification through a Notifier after a successful
// operation.
//
// A Subscriber is not safe for concurrent use.
type Subscriber struct {
	driver   SubscriptionDriver
	id       string
	names    FieldNames
	notify   bool
	notifier Notifier
	err      *ErrorRecord
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
}

// NewSubscriber creates a Subscriber. With neither group nor spec the
// "default" subscriber group is used.
func NewSubscriber(config SubscriberConfig, opts ...SubscriberOption) (*Subscriber, error) {
	for _, opt := range opts {
		opt(&config)
	}

	backend := Backend{Group: config.Group, Spec: config.Spec}
	if backend.Spec != nil {
		backend.Group = ""
	} else if backend.Group == "" {
		backend.Group = DefaultGroup
	}

	spec, err := resolve(backend, "subscriber", config.Source)
	if err != nil {
		return nil, err
	}

	registry := config.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	factory, ok := registry.subscriber(spec.Driver)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, spec.Driver)
	}
	product, err := factory(spec.driverConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("%w: driver %s: %w", ErrInvalidConfiguration, spec.Driver, err)
	}
	driver, ok := product.(SubscriptionDriver)
	if !ok {
		return nil, &ContractError{Driver: spec.Driver, Contract: "SubscriptionDriver", Type: fmt.Sprintf("%T", product)}
	}

	s := newSubscriber(driver, normalizeID(spec.Driver), logger)
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	s.tracer = tp.Tracer(tracerName)
	s.metrics = config.Metrics
	return s, nil
}

// NewSubscriberWithDriver creates a Subscriber over an already constructed
// driver.
func NewSubscriberWithDriver(driver SubscriptionDriver) (*Subscriber, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is nil", ErrInvalidConfiguration)
	}
	s := newSubscriber(driver, fmt.Sprintf("%T", driver), slog.Default())
	s.tracer = otel.GetTracerProvider().Tracer(tracerName)
	return s, nil
}

func newSubscriber(driver SubscriptionDriver, id string, logger *slog.Logger) *Subscriber {
	names := DefaultFieldNames
	if namer, ok := driver.(FieldNamer); ok {
		names = namer.FieldNames()
	}
	return &Subscriber{
		driver: driver,
		id:     id,
		names:  names,
		logger: logger,
	}
}

// SetMailingList selects the mailing list.
func (s *Subscriber) SetMailingList(list string) {
	s.driver.SetMailingList(list)
}

// SetSubscriber sets the subscriber's address and profile. Empty fields are
// dropped and the rest renamed to the driver's field names; nil data clears
// previously set fields.
func (s *Subscriber) SetSubscriber(email string, data *SubscriberData) {
	s.driver.SetSubscriber(email, data.Normalize(s.names))
}

// SetContentType sets the subscriber's preferred email format.
func (s *Subscriber) SetContentType(mime string) {
	s.driver.SetContentType(mime)
}

// DoNotify enables or disables the post-action notification. A non-nil
// notifier is sent after each successful operation; a nil notifier clears the
// stored one and lets the provider send its own notification instead.
func (s *Subscriber) DoNotify(send bool, notifier Notifier) {
	s.notify = send
	s.notifier = notifier
	s.driver.DoNotify(send && notifier == nil)
}

// Subscribe adds the subscriber to the list. With force an existing member
// is updated.
func (s *Subscriber) Subscribe(ctx context.Context, force bool) bool {
	return s.run(ctx, "subscribe", attribute.Bool("courier.force", force), func(ctx context.Context) bool {
		return s.driver.Subscribe(ctx, force)
	})
}

// Unsubscribe removes the subscriber from the list. With remove the member is
// deleted rather than marked unsubscribed.
func (s *Subscriber) Unsubscribe(ctx context.Context, remove bool) bool {
	return s.run(ctx, "unsubscribe", attribute.Bool("courier.delete", remove), func(ctx context.Context) bool {
		return s.driver.Unsubscribe(ctx, remove)
	})
}

// run performs one operation followed by the optional notification. A failed
// notification fails the operation and replaces the error.
func (s *Subscriber) run(ctx context.Context, operation string, attr attribute.KeyValue, fn func(context.Context) bool) bool {
	ctx, span := s.tracer.Start(ctx, "courier.Subscriber."+operation,
		trace.WithAttributes(attribute.String("courier.driver", s.id), attr),
	)
	defer span.End()

	s.err = nil
	if !fn(ctx) {
		s.err = s.driver.LastError()
		s.metrics.observeSubscription(s.id, operation, false)
		if s.err != nil {
			span.RecordError(s.err)
		}
		span.SetStatus(codes.Error, operation+" failed")
		return false
	}
	s.metrics.observeSubscription(s.id, operation, true)

	if s.notify && s.notifier != nil {
		sent := s.notifier.Send(ctx)
		span.AddEvent("notification", trace.WithAttributes(attribute.Bool("courier.success", sent)))
		if !sent {
			s.err = s.notifier.LastError()
			if s.err == nil {
				s.err = NewErrorRecord("Failed to send notification email.", 0)
			}
			s.logger.Warn("notification failed after "+operation,
				slog.String("driver", s.id),
				slog.String("error", s.err.Message),
			)
			span.RecordError(s.err)
			span.SetStatus(codes.Error, "notification failed")
			return false
		}
	}

	span.SetStatus(codes.Ok, operation+" succeeded")
	return true
}

// LastError returns the error of the last operation, or nil after success.
// Before any operation it reports the driver's error.
func (s *Subscriber) LastError() *ErrorRecord {
	if s.err != nil {
		return s.err
	}
	return s.driver.LastError()
}
