package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/signalsfoundry/regchan/internal/logging"
	"github.com/signalsfoundry/regchan/model"
)

func TestObserveRecomputeRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRegCollector(reg)
	if err != nil {
		t.Fatalf("NewRegCollector: %v", err)
	}

	collector.ObserveRecompute(1, "policy", 2*time.Millisecond, nil)
	collector.ObserveRecompute(1, "rules", time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(collector.Recomputes.WithLabelValues("1", "policy", "ok")); got != 1 {
		t.Fatalf("regchan_recomputes_total{policy,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Recomputes.WithLabelValues("1", "rules", "error")); got != 1 {
		t.Fatalf("regchan_recomputes_total{rules,error} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "regchan_recompute_duration_seconds", map[string]string{"phy": "1"}); count != 2 {
		t.Fatalf("regchan_recompute_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestCollectorRegistersTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRegCollector(reg)
	if err != nil {
		t.Fatalf("NewRegCollector: %v", err)
	}
	second, err := NewRegCollector(reg)
	if err != nil {
		t.Fatalf("second NewRegCollector: %v", err)
	}
	if first.Recomputes != second.Recomputes {
		t.Fatalf("expected the existing collector to be reused")
	}
}

func TestMetricsHandlerExposesChannelGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRegCollector(reg)
	if err != nil {
		t.Fatalf("NewRegCollector: %v", err)
	}
	collector.SetChannelCounts(0, map[model.ChannelState]int{model.StateEnable: 37, model.StateDFS: 11})
	collector.SetNOLCount(0, 2)
	collector.IncAFCEvent(0, "granted")
	collector.IncCountryChange(model.SourceUserspace)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`regchan_channels{phy="0",state="enable"} 37`,
		`regchan_channels{phy="0",state="dfs"} 11`,
		`regchan_channels{phy="0",state="invalid"} 0`,
		`regchan_nol_channels{phy="0"} 2`,
		`regchan_afc_events_total{outcome="granted",phy="0"} 1`,
		`regchan_country_changes_total{source="userspace"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in /metrics output:\n%s", want, body)
		}
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var rc *RegCollector
	rc.ObserveRecompute(0, "x", 0, nil)
	rc.SetNOLCount(0, 1)

	var nc *NotifierCollector
	nc.SetQueueDepth("north", 1)
	nc.ObserveDelivered("north", time.Millisecond)
	nc.IncSuperseded("north")
	nc.SetSubscribers(1)
}

func TestNotifierCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewNotifierCollector(reg)
	if err != nil {
		t.Fatalf("NewNotifierCollector: %v", err)
	}
	c.SetQueueDepth("north", 3)
	c.ObserveDelivered("north", time.Millisecond)
	c.IncSuperseded("south")
	c.SetSubscribers(4)

	if got := testutil.ToFloat64(c.QueueDepth.WithLabelValues("north")); got != 3 {
		t.Fatalf("queue depth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Superseded.WithLabelValues("south")); got != 1 {
		t.Fatalf("superseded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Subscribers); got != 4 {
		t.Fatalf("subscribers = %v, want 4", got)
	}
	if count := histogramSampleCount(t, c.Gatherer(), "regchan_notification_latency_seconds", nil); count != 1 {
		t.Fatalf("latency sample_count = %d, want 1", count)
	}
}

func TestStartRecomputeSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	ctx := logging.ContextWithTriggerID(context.Background(), "trig-1")
	_, span := tp.Tracer(TracerName).Start(ctx, "probe")
	EndSpan(span, errors.New("boom"))

	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Status().Description != "boom" {
		t.Fatalf("unexpected spans %+v", ended)
	}

	// The global provider is the noop one after InitTracing(disabled).
	_, noopSpan := StartRecompute(ctx, 0, "policy")
	if noopSpan.SpanContext().IsValid() {
		t.Fatalf("expected a non-recording span from the noop provider")
	}
	EndSpan(noopSpan, nil)
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("REG_TRACING_ENABLED", "TRUE")
	t.Setenv("REG_TRACING_EXPORTER", "OTLP")
	t.Setenv("REG_TRACING_SAMPLE_RATIO", "2")
	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.ServiceName != "regchan" || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
