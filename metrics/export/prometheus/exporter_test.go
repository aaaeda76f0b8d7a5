package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"

	goRecovery "github.com/MrEthical07/goRecovery"
)

type fakeSource struct {
	snapshot goRecovery.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goRecovery.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func scrape(t *testing.T, h http.Handler) (string, *http.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body), res
}

func TestScrapeEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecovery.MetricsSnapshot{
			Counters:   map[goRecovery.MetricID]uint64{},
			Histograms: map[goRecovery.MetricID][]uint64{},
		},
	})

	if out, _ := scrape(t, exp.Handler()); strings.TrimSpace(out) != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", out)
	}
}

func TestScrapeIncludesCountersAndHistograms(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecovery.MetricsSnapshot{
			Counters: map[goRecovery.MetricID]uint64{
				goRecovery.MetricCodeIssued:      7,
				goRecovery.MetricAccountLocked:   1,
				goRecovery.MetricValidateFailure: 3,
			},
			Histograms: map[goRecovery.MetricID][]uint64{
				goRecovery.MetricResolveLatency:  {1, 2, 3, 4, 5, 6, 7, 8},
				goRecovery.MetricValidateLatency: {0, 1},
			},
		},
		dropped: 2,
	})

	out, _ := scrape(t, exp.Handler())
	for _, want := range []string{
		"gorecovery_code_issued_total 7",
		"gorecovery_account_locked_total 1",
		"gorecovery_validate_failure_total 3",
		"gorecovery_no_user_found_total 0",
		"# TYPE gorecovery_resolve_latency_seconds histogram",
		"gorecovery_resolve_latency_seconds_bucket{le=\"0.005\"} 1",
		"gorecovery_resolve_latency_seconds_bucket{le=\"0.5\"} 28",
		"gorecovery_resolve_latency_seconds_bucket{le=\"+Inf\"} 36",
		"gorecovery_resolve_latency_seconds_count 36",
		"gorecovery_validate_latency_seconds_bucket{le=\"+Inf\"} 1",
		"gorecovery_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestScrapeSkipsHistogramsWhenLatencyDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecovery.MetricsSnapshot{
			Counters:   map[goRecovery.MetricID]uint64{goRecovery.MetricResolveSuccess: 1},
			Histograms: map[goRecovery.MetricID][]uint64{},
		},
	})

	out, _ := scrape(t, exp.Handler())
	if strings.Contains(out, "latency_seconds") {
		t.Fatalf("expected no histogram output, got:\n%s", out)
	}
	if !strings.Contains(out, "gorecovery_resolve_success_total 1") {
		t.Fatalf("expected resolve success counter, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecovery.MetricsSnapshot{
			Counters:   map[goRecovery.MetricID]uint64{goRecovery.MetricResolveSuccess: 1},
			Histograms: map[goRecovery.MetricID][]uint64{},
		},
	})

	_, res := scrape(t, exp.Handler())
	if got := res.Header.Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
}

func TestExporterRegistersOnExternalRegistry(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecovery.MetricsSnapshot{
			Counters:   map[goRecovery.MetricID]uint64{goRecovery.MetricExpiredCode: 4},
			Histograms: map[goRecovery.MetricID][]uint64{},
		},
	})

	reg := prom.NewRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "gorecovery_expired_code_total" {
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 4 {
				t.Fatalf("expected 4, got %v", got)
			}
			return
		}
	}
	t.Fatal("gorecovery_expired_code_total not gathered")
}

func TestNilExporterServesEmptyRegistry(t *testing.T) {
	var exp *PrometheusExporter
	if out, _ := scrape(t, exp.Handler()); strings.TrimSpace(out) != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func BenchmarkGather(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecovery.MetricsSnapshot{
			Counters: map[goRecovery.MetricID]uint64{
				goRecovery.MetricResolveSuccess:  1000,
				goRecovery.MetricResolveFailure:  40,
				goRecovery.MetricCodeIssued:      1000,
				goRecovery.MetricValidateSuccess: 800,
				goRecovery.MetricInvalidCode:     12,
			},
			Histograms: map[goRecovery.MetricID][]uint64{
				goRecovery.MetricResolveLatency:  {10, 20, 30, 40, 50, 60, 70, 80},
				goRecovery.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = exp.Registry().Gather()
	}
}
