package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) ActivityDropped() uint64                   { return f.dropped }

func TestRenderEmptyWhenDisabled(t *testing.T) {
	exp := New(fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters:   map[authcore.MetricID]uint64{},
		Histograms: map[authcore.MetricID][]uint64{},
	}})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got:\n%s", got)
	}
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:     7,
				authcore.MetricLockoutTriggered: 2,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE authcore_login_success_total counter\nauthcore_login_success_total 7\n",
		"authcore_lockout_triggered_total 2\n",
		"authcore_login_failure_total 0\n",
		`authcore_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_authenticate_latency_seconds_bucket{le="0.025"} 6`,
		`authcore_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"authcore_authenticate_latency_seconds_count 36\n",
		"authcore_activity_dropped_total 3\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if out != exp.Render() {
		t.Fatal("render is not deterministic")
	}
}

func TestRenderSkipsDisabledHistogram(t *testing.T) {
	exp := New(fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{authcore.MetricLogout: 1},
	}})
	if strings.Contains(exp.Render(), "latency") {
		t.Fatal("histogram rendered without data")
	}
}

func TestHandlerContentType(t *testing.T) {
	exp := New(fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
	}})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := New(fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{
			authcore.MetricLoginSuccess: 1000,
			authcore.MetricLoginFailure: 40,
			authcore.MetricLogout:       800,
		},
		Histograms: map[authcore.MetricID][]uint64{
			authcore.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
		},
	}})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
