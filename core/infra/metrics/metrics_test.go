package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.ObserveRequest("GET", "cdn", "200", 0.1)
	m.IncResolve("ok")
	m.ObserveUpstream("pack_store", "ok", 0.2)
}

func TestEdgeMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewEdgeProm("packedge")
	m.ObserveRequest("GET", "cdn", "200", 0.01)
	m.IncResolve("fallback")
	m.ObserveUpstream("pack_store", "ok", 0.05)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "packedge_http_requests_total", map[string]string{"method": "GET", "route": "cdn", "status": "200"}) {
		t.Fatalf("expected http_requests metric")
	}
	if !hasMetric(families, "packedge_http_request_duration_seconds", map[string]string{"method": "GET", "route": "cdn"}) {
		t.Fatalf("expected http_request_duration metric")
	}
	if !hasMetric(families, "packedge_pack_resolutions_total", map[string]string{"outcome": "fallback"}) {
		t.Fatalf("expected pack_resolutions metric")
	}
	if !hasMetric(families, "packedge_upstream_request_duration_seconds", map[string]string{"target": "pack_store", "outcome": "ok"}) {
		t.Fatalf("expected upstream_request_duration metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewEdgeProm("packedge")
	m.IncResolve("ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
