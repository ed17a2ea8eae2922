// Package metrics exposes client-runtime counters for Prometheus, fed from
// the event bus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-banking-client/internal/event"
)

type Collector struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	logouts       prometheus.Counter
	forcedLogouts *prometheus.CounterVec
	warnings      prometheus.Counter
	resets        prometheus.Counter
	activity      *prometheus.CounterVec
	sessionState  *prometheus.GaugeVec
	transfers     *prometheus.CounterVec
	discarded     prometheus.Counter
	httpRequests  *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_client_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banking_client_logouts_total",
			Help: "Completed logouts, user-initiated or forced.",
		}),
		forcedLogouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_client_forced_logouts_total",
			Help: "Sessions ended by the idle supervisor, by reason.",
		}, []string{"reason"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banking_client_session_warnings_total",
			Help: "Idle warnings shown.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banking_client_session_resets_total",
			Help: "Explicit session resets.",
		}),
		activity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_client_activity_signals_total",
			Help: "Qualifying activity signals observed, by kind.",
		}, []string{"kind"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "banking_client_session_state",
			Help: "1 for the current supervisor state, 0 otherwise.",
		}, []string{"state"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_client_transfers_total",
			Help: "Transfers by outcome.",
		}, []string{"status"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banking_client_identity_records_discarded_total",
			Help: "Persisted identity records deleted as corrupt or stale.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banking_client_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.logins, c.logouts, c.forcedLogouts, c.warnings, c.resets,
		c.activity, c.sessionState, c.transfers, c.discarded, c.httpRequests,
	)
	c.setState("dormant")

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// InstrumentHandler counts requests by method and status code.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(c.httpRequests, next)
}

// Run folds bus events into the metrics until ctx is done.
func (c *Collector) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

func (c *Collector) Observe(e event.Event) {
	switch e.Type {
	case event.TypeLoginSucceeded:
		c.logins.WithLabelValues("success").Inc()
	case event.TypeLoginFailed:
		c.logins.WithLabelValues("failure").Inc()
	case event.TypeLoggedOut:
		c.logouts.Inc()
	case event.TypeRecordDiscarded:
		c.discarded.Inc()
	case event.TypeSessionStarted:
		c.setState("active")
	case event.TypeSessionReset:
		c.resets.Inc()
		c.setState("active")
	case event.TypeSessionActivity:
		c.activity.WithLabelValues(payloadString(e, "kind")).Inc()
		if cleared, _ := payloadValue(e, "warning_cleared").(bool); cleared {
			c.setState("active")
		}
	case event.TypeSessionWarning:
		c.warnings.Inc()
		c.setState("warning")
	case event.TypeSessionExpired:
		c.forcedLogouts.WithLabelValues(payloadString(e, "reason")).Inc()
		c.setState("dormant")
	case event.TypeSessionEnded:
		c.setState("dormant")
	case event.TypeTransferCompleted:
		c.transfers.WithLabelValues("success").Inc()
	case event.TypeTransferFailed:
		c.transfers.WithLabelValues("failed").Inc()
	}
}

func (c *Collector) setState(current string) {
	for _, state := range []string{"dormant", "active", "warning"} {
		value := 0.0
		if state == current {
			value = 1
		}
		c.sessionState.WithLabelValues(state).Set(value)
	}
}

func payloadValue(e event.Event, key string) any {
	payload, ok := e.Payload.(map[string]any)
	if !ok {
		return nil
	}
	return payload[key]
}

func payloadString(e event.Event, key string) string {
	value, _ := payloadValue(e, key).(string)
	if value == "" {
		return "unknown"
	}
	return value
}
