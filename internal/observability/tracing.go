package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/regchan/internal/logging"
)

// TracerName is the instrumentation scope of the channel engine spans.
const TracerName = "github.com/signalsfoundry/regchan"

const (
	defaultServiceName  = "regchan"
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// TracingConfig selects the span exporter. Exporter is "stdout" or "otlp";
// Endpoint only applies to otlp.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// TracingConfigFromEnv reads REG_TRACING_* and REG_OTLP_ENDPOINT. A sample
// ratio outside [0, 1] is ignored.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv("REG_TRACING_ENABLED"), "true"),
		ServiceName: envOr("REG_TRACING_SERVICE_NAME", defaultServiceName),
		Exporter:    strings.ToLower(envOr("REG_TRACING_EXPORTER", "stdout")),
		Endpoint:    os.Getenv("REG_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if v, err := strconv.ParseFloat(os.Getenv("REG_TRACING_SAMPLE_RATIO"), 64); err == nil && v >= 0 && v <= 1 {
		cfg.SampleRatio = v
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// InitTracing installs the global tracer provider and propagators. The
// returned function flushes and stops the exporter. With tracing disabled
// a noop provider is installed and the shutdown function does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	log = logging.OrNoop(log)

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	service := cfg.ServiceName
	if service == "" {
		service = defaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", service),
		attribute.String("service.namespace", "regulatory"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", service),
		logging.Any("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// samplerFor respects the parent's decision and samples root spans at ratio.
func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "stdout":
		return stdouttrace.New(
			stdouttrace.WithWriter(os.Stdout),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout runs shutdown with a bounded deadline and logs, but
// does not return, its error.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logging.OrNoop(log).Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// Tracer returns the tracer used for recompute and notification spans.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRecompute opens the span covering one recomputation of a radio's
// lists. The trigger id, when present on ctx, is recorded as an attribute.
func StartRecompute(ctx context.Context, phy uint8, trigger string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "regchan.recompute", trace.WithAttributes(spanAttrs(ctx, phy,
		attribute.String("regchan.trigger", trigger))...))
}

// StartDelivery opens the span covering one southbound delivery.
func StartDelivery(ctx context.Context, phy uint8, kind string, generation uint64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "regchan.south.deliver",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(spanAttrs(ctx, phy,
			attribute.String("regchan.south.kind", kind),
			attribute.Int64("regchan.generation", int64(generation)))...))
}

func spanAttrs(ctx context.Context, phy uint8, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := append([]attribute.KeyValue{attribute.Int("regchan.phy_id", int(phy))}, extra...)
	if id := logging.TriggerIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("regchan.trigger_id", id))
	}
	return attrs
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
