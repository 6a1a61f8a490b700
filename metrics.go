package courier

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by Mailer and Subscriber.
// A nil *Metrics records nothing.
type Metrics struct {
	sendAttempts  *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	subscriptions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. Collectors
// already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Name:      "send_attempts_total",
			Help:      "Send attempts per driver and result.",
		}, []string{"driver", "result"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "courier",
			Name:      "send_duration_seconds",
			Help:      "Duration of driver send attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"driver"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Name:      "subscription_operations_total",
			Help:      "Subscription operations per driver, operation and result.",
		}, []string{"driver", "operation", "result"}),
	}

	var err error
	if m.sendAttempts, err = register(reg, m.sendAttempts); err != nil {
		return nil, err
	}
	if m.sendDuration, err = register(reg, m.sendDuration); err != nil {
		return nil, err
	}
	if m.subscriptions, err = register(reg, m.subscriptions); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeSend(driver string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sendAttempts.WithLabelValues(driver, result(ok)).Inc()
	m.sendDuration.WithLabelValues(driver).Observe(elapsed.Seconds())
}

func (m *Metrics) observeSubscription(driver, operation string, ok bool) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(driver, operation, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
