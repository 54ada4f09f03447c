// Package metrics exposes device call, poll and reconcile counters on a
// prometheus registry and optionally mirrors them to a statsd agent.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/poll"
)

// Sink is the subset of the statsd client the mirror uses.
type Sink interface {
	Count(name string, value int64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

// Metrics holds every collector of the daemon.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	polls           *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	pollBackoff     *prometheus.GaugeVec
	reconcileOps    *prometheus.CounterVec
	relays          prometheus.Gauge
	notices         *prometheus.CounterVec

	sink Sink
}

// New creates the collectors on a fresh registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_requests_total",
			Help:      "Device API calls by operation and HTTP status (0 = transport error).",
		}, []string{"op", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_request_duration_seconds",
			Help:      "Device API call latency.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Completed polls by poller and result.",
		}, []string{"poller", "result"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Poll duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"poller"}),
		pollBackoff: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_backoff_seconds",
			Help:      "Current backoff window, 0 when healthy.",
		}, []string{"poller"}),
		reconcileOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_ops_total",
			Help:      "Applied reconcile operations by collection and kind.",
		}, []string{"collection", "op"}),
		relays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relays",
			Help:      "Relays currently rendered.",
		}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "User-visible failure notices by operation.",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.requests, m.requestDuration,
		m.polls, m.pollDuration, m.pollBackoff,
		m.reconcileOps, m.relays, m.notices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// NewStatsd connects the statsd mirror. An empty addr returns a nil sink.
func NewStatsd(addr, namespace string, tags []string) (Sink, error) {
	if addr == "" {
		return nil, nil
	}
	client, err := statsd.New(addr, statsd.WithNamespace(namespace), statsd.WithTags(tags))
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Statsd metrics initialized")
	return client, nil
}

// SetSink attaches a statsd mirror.
func (m *Metrics) SetSink(s Sink) {
	m.sink = s
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// ObserveRequest records one device call.
func (m *Metrics) ObserveRequest(op string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(op, code).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())

	tags := []string{"op:" + op, "code:" + code}
	m.emit(func(s Sink) error { return s.Count("device.requests", 1, tags, 1) })
	m.emit(func(s Sink) error { return s.Timing("device.request_duration", d, tags, 1) })
}

// ObservePoll records one poll outcome.
func (m *Metrics) ObservePoll(poller string, r poll.Result) {
	result := "ok"
	if r.Err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(poller, result).Inc()
	m.pollDuration.WithLabelValues(poller).Observe(r.Duration.Seconds())
	m.pollBackoff.WithLabelValues(poller).Set(r.Backoff.Seconds())

	tags := []string{"poller:" + poller, "result:" + result}
	m.emit(func(s Sink) error { return s.Count("polls", 1, tags, 1) })
	m.emit(func(s Sink) error { return s.Gauge("poll.backoff_seconds", r.Backoff.Seconds(), tags[:1], 1) })
}

// ObserveOps records applied reconcile operations.
func (m *Metrics) ObserveOps(collection string, created, updated, removed int) {
	for op, n := range map[string]int{"create": created, "update": updated, "remove": removed} {
		if n == 0 {
			continue
		}
		m.reconcileOps.WithLabelValues(collection, op).Add(float64(n))
		tags := []string{"collection:" + collection, "op:" + op}
		m.emit(func(s Sink) error { return s.Count("reconcile.ops", int64(n), tags, 1) })
	}
}

// SetRelays records the rendered relay count.
func (m *Metrics) SetRelays(n int) {
	m.relays.Set(float64(n))
	m.emit(func(s Sink) error { return s.Gauge("relays", float64(n), nil, 1) })
}

// Notice counts a user-visible failure notice.
func (m *Metrics) Notice(op string) {
	m.notices.WithLabelValues(op).Inc()
	m.emit(func(s Sink) error { return s.Count("notices", 1, []string{"op:" + op}, 1) })
}

// Close flushes the statsd mirror.
func (m *Metrics) Close() error {
	if m.sink == nil {
		return nil
	}
	return m.sink.Close()
}

func (m *Metrics) emit(fn func(Sink) error) {
	if m.sink == nil {
		return
	}
	if err := fn(m.sink); err != nil {
		log.Debug().Err(err).Msg("Failed to emit statsd metric")
	}
}
