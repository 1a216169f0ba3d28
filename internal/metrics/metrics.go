// Package metrics holds the Prometheus collectors for the HTTP surface and
// for the enrollment and feedback workflows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulsecheck"

// Enrollment outcomes.
const (
	OutcomeEnrolled      = "enrolled"
	OutcomeBadPassKey    = "bad_passkey"
	OutcomeDuplicate     = "duplicate"
	OutcomeCourseMissing = "course_missing"
	OutcomeUnenrolled    = "unenrolled"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	Enrollments       *prometheus.CounterVec
	MembershipChanges *prometheus.CounterVec
	FeedbackSubmitted *prometheus.CounterVec
}

// New builds a private registry with Go runtime and process collectors plus
// the application collectors. A private registry keeps tests independent.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Enrollments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrollments_total",
				Help:      "Enrollment attempts by outcome",
			},
			[]string{"outcome"},
		),
		MembershipChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "membership_changes_total",
				Help:      "Members added or removed by instructors and admins",
			},
			[]string{"action"},
		),
		FeedbackSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_submitted_total",
				Help:      "Feedback submissions",
			},
			[]string{"anonymous"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.Enrollments,
		m.MembershipChanges,
		m.FeedbackSubmitted,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordEnrollment(outcome string) {
	m.Enrollments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordMembershipChange(action string) {
	m.MembershipChanges.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordFeedback(anonymous bool) {
	m.FeedbackSubmitted.WithLabelValues(strconv.FormatBool(anonymous)).Inc()
}

// Middleware records one sample per request, labelled by the chi route
// pattern so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.RecordRequest(r.Method, route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
