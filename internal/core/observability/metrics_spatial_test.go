package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestFeatureAndTagMetrics_LabelsAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)

	AddFeaturesEmitted("way", 3)
	AddFeaturesEmitted("node", 1)
	IncTagError("secondary_mismatch")

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	t.Cleanup(func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("close body: %v", cerr)
		}
	})
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	body := string(b)

	if !strings.Contains(body, `features_emitted_total{kind="way"} 3`) {
		t.Fatalf("missing features_emitted_total{kind=\"way\"}:\n%s", body)
	}
	if !strings.Contains(body, `tag_errors_total{kind="secondary_mismatch"} 1`) {
		t.Fatalf("missing tag_errors_total{kind=\"secondary_mismatch\"}:\n%s", body)
	}
}
