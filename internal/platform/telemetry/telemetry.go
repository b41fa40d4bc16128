// Package telemetry provides Prometheus metrics and OpenTelemetry spans for
// repository operations, hydration fallbacks and PHI access.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/phi"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// InstrumentationName identifies spans created by this module.
const InstrumentationName = "github.com/ehr/recordstore"

// Operation outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeIntegrity   = "integrity"
	OutcomeError       = "error"
)

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics holds the Prometheus collectors for the engine. Each instance owns
// its registry so tests and multiple engines never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Operations      *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	ColumnFallbacks *prometheus.CounterVec
	DateFallbacks   *prometheus.CounterVec
	PHIAccess       *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_operations_total",
				Help:      "Repository operations by entity, operation and outcome.",
			},
			[]string{"entity", "operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "repository_operation_duration_seconds",
				Help:      "Repository operation latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		ColumnFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hydration_column_fallbacks_total",
				Help:      "Attributes hydrated from a legacy column.",
			},
			[]string{"entity", "attribute", "column"},
		),
		DateFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hydration_date_fallbacks_total",
				Help:      "Unparseable dates replaced according to the date policy.",
			},
			[]string{"entity", "attribute", "policy"},
		),
		PHIAccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phi_access_total",
				Help:      "Audited accesses to encrypted PHI values.",
			},
			[]string{"entity", "field", "action"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served by the operator endpoints.",
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.Operations,
		m.Duration,
		m.ColumnFallbacks,
		m.DateFallbacks,
		m.PHIAccess,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ColumnFallback implements hydrate.Observer.
func (m *Metrics) ColumnFallback(entity, attribute, column string) {
	if m == nil {
		return
	}
	m.ColumnFallbacks.WithLabelValues(entity, attribute, column).Inc()
}

// DateFallback implements hydrate.Observer.
func (m *Metrics) DateFallback(entity, attribute string, policy hydrate.DatePolicy) {
	if m == nil {
		return
	}
	m.DateFallbacks.WithLabelValues(entity, attribute, string(policy)).Inc()
}

// CountingAuditor wraps next so every successfully audited PHI access is
// also counted.
func (m *Metrics) CountingAuditor(next phi.Auditor) phi.Auditor {
	return countingAuditor{metrics: m, next: next}
}

type countingAuditor struct {
	metrics *Metrics
	next    phi.Auditor
}

func (a countingAuditor) RecordAccess(ctx context.Context, e phi.AccessEvent) error {
	if err := a.next.RecordAccess(ctx, e); err != nil {
		return err
	}
	if a.metrics != nil {
		a.metrics.PHIAccess.WithLabelValues(e.Entity, e.Field, e.Action).Inc()
	}
	return nil
}

// Middleware counts HTTP requests by route and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			m.HTTPRequests.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Operation instrumentation
// ---------------------------------------------------------------------------

// Instrumentation starts a span and records metrics for each repository
// operation. A nil *Instrumentation is valid and records nothing.
type Instrumentation struct {
	metrics *Metrics
	tracer  trace.Tracer
}

// New returns instrumentation recording into metrics (may be nil) and
// tracing through tp (nil uses the global provider).
func New(metrics *Metrics, tp trace.TracerProvider) *Instrumentation {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Instrumentation{metrics: metrics, tracer: tp.Tracer(InstrumentationName)}
}

// Metrics returns the metrics the instrumentation records into.
func (i *Instrumentation) Metrics() *Metrics {
	if i == nil {
		return nil
	}
	return i.metrics
}

// Op is one in-flight instrumented operation.
type Op struct {
	i         *Instrumentation
	span      trace.Span
	entity    string
	operation string
	start     time.Time
}

// Start begins the span "repository.<operation>".
func (i *Instrumentation) Start(ctx context.Context, entity, operation string, attrs ...attribute.KeyValue) (context.Context, *Op) {
	op := &Op{i: i, entity: entity, operation: operation, start: time.Now()}
	if i == nil {
		op.span = trace.SpanFromContext(ctx)
		return ctx, op
	}
	attrs = append(attrs,
		attribute.String("db.system", "postgresql"),
		attribute.String("recordstore.entity", entity),
	)
	ctx, op.span = i.tracer.Start(ctx, "repository."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, op
}

// End finishes the span and records the outcome of err.
func (o *Op) End(err error) {
	if o.i == nil {
		return
	}
	outcome := Outcome(err)
	if err != nil && outcome != OutcomeNotFound {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	o.span.SetAttributes(attribute.String("recordstore.outcome", outcome))
	o.span.End()

	if m := o.i.metrics; m != nil {
		m.Operations.WithLabelValues(o.entity, o.operation, outcome).Inc()
		m.Duration.WithLabelValues(o.entity, o.operation).Observe(time.Since(o.start).Seconds())
	}
}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, storeerr.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, storeerr.ErrStorageUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, storeerr.ErrCryptographicIntegrity):
		return OutcomeIntegrity
	case errors.Is(err, storeerr.ErrInvalidFormat),
		errors.Is(err, storeerr.ErrUnknownField),
		errors.Is(err, storeerr.ErrMissingRequiredColumn):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
