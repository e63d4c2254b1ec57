package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	export "go.opentelemetry.io/otel/sdk/export/metric"
	"go.opentelemetry.io/otel/sdk/metric/aggregator/histogram"
	controller "go.opentelemetry.io/otel/sdk/metric/controller/basic"
	processor "go.opentelemetry.io/otel/sdk/metric/processor/basic"
	selector "go.opentelemetry.io/otel/sdk/metric/selector/simple"
)

// unmatchedRoute labels requests no route matched, keeping raw paths out of
// the label set.
const unmatchedRoute = "unmatched"

var (
	methodKey = attribute.Key("http.method")
	routeKey  = attribute.Key("http.route")
	codeKey   = attribute.Key("http.status_code")
	opKey     = attribute.Key("article.op")
	statusKey = attribute.Key("article.status")
)

// Telemetry owns the prometheus exporter and the service instruments.
type Telemetry struct {
	exporter  *prometheus.Exporter
	completed metric.Int64Counter
	duration  metric.Float64ValueRecorder
	outcomes  metric.Int64Counter
}

// New installs a prometheus backed global meter provider.
func New(serviceName string) (*Telemetry, error) {
	config := prometheus.Config{}
	c := controller.New(
		processor.New(
			selector.NewWithHistogramDistribution(
				histogram.WithExplicitBoundaries(config.DefaultHistogramBoundaries),
			),
			export.CumulativeExportKindSelector(),
			processor.WithMemory(true),
		),
	)
	exporter, err := prometheus.New(config, c)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	global.SetMeterProvider(exporter.MeterProvider())

	meter := metric.Must(global.Meter(serviceName))

	return &Telemetry{
		exporter: exporter,
		completed: meter.NewInt64Counter(
			"http/server/completed_count",
			metric.WithDescription("Count of completed requests, by HTTP method, route and response status"),
		),
		duration: meter.NewFloat64ValueRecorder(
			"http/server/duration_ms",
			metric.WithDescription("Request handling time in milliseconds"),
		),
		outcomes: meter.NewInt64Counter(
			"article/outcome_count",
			metric.WithDescription("Envelopes sent, by operation and envelope status"),
		),
	}, nil
}

// Handler serves the prometheus scrape endpoint.
func (t *Telemetry) Handler() http.Handler {
	return http.HandlerFunc(t.exporter.ServeHTTP)
}

// Middleware counts and times every request by its chi route pattern.
func (t *Telemetry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		labels := []attribute.KeyValue{
			methodKey.String(r.Method),
			routeKey.String(route),
			codeKey.Int(code),
		}
		t.completed.Add(r.Context(), 1, labels...)
		t.duration.Record(r.Context(), float64(time.Since(start).Microseconds())/1000, labels...)
	})
}

// Outcome implements article.Recorder and upload.Recorder.
func (t *Telemetry) Outcome(ctx context.Context, op string, ok bool) {
	t.outcomes.Add(ctx, 1, opKey.String(op), statusKey.Bool(ok))
}
