// Package prom exposes dispatcher metrics to Prometheus through the same Sink interface the StatsD client implements.
package prom

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/target/creative-dispatch/internal/observability/statsd"
)

const unknownLabel = "unknown"

// Options configures a Sink.
type Options struct {
	// Namespace prefixes every metric name, e.g. "creative_dispatch".
	Namespace string
	// Registry receives the collectors. A fresh registry with Go and process collectors is created when nil.
	Registry *prometheus.Registry
}

// Sink lazily creates one vector per metric name. The label set of a metric is fixed by its first use;
// later calls fill missing labels with "unknown" and drop extra ones.
type Sink struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*labelled[*prometheus.CounterVec]
	gauges     map[string]*labelled[*prometheus.GaugeVec]
	histograms map[string]*labelled[*prometheus.HistogramVec]
}

type labelled[V any] struct {
	vec    V
	labels []string
}

var _ statsd.Sink = (*Sink)(nil)

// NewSink constructs a Sink.
func NewSink(opts Options) *Sink {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return &Sink{
		namespace:  metricName("", opts.Namespace),
		registry:   reg,
		counters:   make(map[string]*labelled[*prometheus.CounterVec]),
		gauges:     make(map[string]*labelled[*prometheus.GaugeVec]),
		histograms: make(map[string]*labelled[*prometheus.HistogramVec]),
	}
}

// Registry returns the underlying registry.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Count adds value to the counter "<name>_total".
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	if s == nil || value < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricName(s.namespace, name) + "_total"
	m, ok := s.counters[key]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: key, Help: "Counter " + name}, labels)
		if err := s.registry.Register(vec); err != nil {
			return
		}
		m = &labelled[*prometheus.CounterVec]{vec: vec, labels: labels}
		s.counters[key] = m
	}
	m.vec.WithLabelValues(labelValues(m.labels, tags)...).Add(float64(value))
}

// Gauge sets the gauge "<name>".
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricName(s.namespace, name)
	m, ok := s.gauges[key]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: key, Help: "Gauge " + name}, labels)
		if err := s.registry.Register(vec); err != nil {
			return
		}
		m = &labelled[*prometheus.GaugeVec]{vec: vec, labels: labels}
		s.gauges[key] = m
	}
	m.vec.WithLabelValues(labelValues(m.labels, tags)...).Set(value)
}

// Timing observes value in seconds on the histogram "<name>_seconds".
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricName(s.namespace, name) + "_seconds"
	m, ok := s.histograms[key]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: key,
			Help: "Duration of " + name,
			// Handlers range from milliseconds to tens of minutes.
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, labels)
		if err := s.registry.Register(vec); err != nil {
			return
		}
		m = &labelled[*prometheus.HistogramVec]{vec: vec, labels: labels}
		s.histograms[key] = m
	}
	m.vec.WithLabelValues(labelValues(m.labels, tags)...).Observe(value.Seconds())
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		if n := sanitize(k); n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags map[string]string) []string {
	byName := make(map[string]string, len(tags))
	for k, v := range tags {
		byName[sanitize(k)] = strings.TrimSpace(v)
	}
	values := make([]string, len(names))
	for i, n := range names {
		v := byName[n]
		if v == "" {
			v = unknownLabel
		}
		values[i] = v
	}
	return values
}

func metricName(namespace, name string) string {
	n := sanitize(name)
	if namespace == "" {
		return n
	}
	if n == "" {
		return namespace
	}
	return namespace + "_" + n
}

// sanitize maps a StatsD-style name onto the Prometheus charset [a-zA-Z0-9_].
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
