package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordAuthAttempt_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthAttempt("login", "failure")
	c.RecordAuthAttempt("login", "failure")
	c.RecordAuthAttempt("login", "success")

	m := findMetric(t, reg, "ebuddy_auth_attempts_total", map[string]string{"operation": "login", "result": "failure"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("auth_attempts_total{failure} = %v, want 2", v)
	}
}

func TestRecordProfileRequest_CountsAndObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProfileRequest("fetch", "mock", "success", 500*time.Millisecond)

	m := findMetric(t, reg, "ebuddy_profile_requests_total", map[string]string{"operation": "fetch", "mode": "mock", "outcome": "success"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("profile_requests_total = %v, want 1", v)
	}
	h := findMetric(t, reg, "ebuddy_profile_latency_seconds", map[string]string{"operation": "fetch", "mode": "mock"})
	if got := h.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("latency sample count = %d, want 1", got)
	}
	if got := h.GetHistogram().GetSampleSum(); got != 0.5 {
		t.Errorf("latency sum = %v, want 0.5", got)
	}
}

func TestRecordSyncTransition_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncTransition("syncing", "synced_auth")

	m := findMetric(t, reg, "ebuddy_session_sync_transitions_total", map[string]string{"from": "syncing", "to": "synced_auth"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("sync_transitions_total = %v, want 1", v)
	}
}

func TestSetBrowserContexts_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetBrowserContexts(3)
	c.SetBrowserContexts(2)

	m := findMetric(t, reg, "ebuddy_browser_contexts", nil)
	if v := m.GetGauge().GetValue(); v != 2 {
		t.Errorf("browser_contexts = %v, want 2", v)
	}
}

// TestRecordHTTPStatus_LabelsByStatusCode はステータスコード別にカウントされることを検証する。
func TestRecordHTTPStatus_LabelsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordHTTPStatus(200)

	m := findMetric(t, reg, "ebuddy_http_status_total", map[string]string{"status_code": "200"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("http_status_total{200} = %v, want 2", v)
	}
}
