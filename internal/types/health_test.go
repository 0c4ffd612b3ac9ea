package types

import (
	"testing"
	"time"
)

func TestAggregateHealthy(t *testing.T) {
	r := Aggregate("sb-1", HealthBasic, true, nil, HealthDetails{ContainerRunning: true}, time.Now())
	if r.Status != HealthStatusHealthy || !r.Healthy {
		t.Fatalf("expected healthy, got %+v", r)
	}
}

func TestAggregateBasicFailureAlwaysUnhealthy(t *testing.T) {
	r := Aggregate("sb-1", HealthFull, false, nil, HealthDetails{}, time.Now())
	if r.Status != HealthStatusUnhealthy || r.Healthy {
		t.Fatalf("expected unhealthy when basic fails, got %+v", r)
	}
}

func TestAggregateDegradedRequiresServicesLevel(t *testing.T) {
	r := Aggregate("sb-1", HealthMCP, true, []string{"desktop down"}, HealthDetails{}, time.Now())
	if r.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy for single failure below SERVICES level, got %s", r.Status)
	}

	r = Aggregate("sb-1", HealthServices, true, []string{"desktop down"}, HealthDetails{}, time.Now())
	if r.Status != HealthStatusDegraded || !r.Healthy {
		t.Fatalf("expected degraded+healthy for one optional failure at SERVICES, got %+v", r)
	}
}

func TestAggregateTwoFailuresUnhealthy(t *testing.T) {
	r := Aggregate("sb-1", HealthFull, true, []string{"desktop down", "terminal down"}, HealthDetails{}, time.Now())
	if r.Status != HealthStatusUnhealthy || r.Healthy {
		t.Fatalf("expected unhealthy for two failures, got %+v", r)
	}
}

func TestPortTripletContains(t *testing.T) {
	pt := PortTriplet{MCP: 18765, Desktop: 18766, Terminal: 18767}
	if !pt.Contains(18766) {
		t.Error("expected triplet to contain desktop port")
	}
	if pt.Contains(1) {
		t.Error("expected triplet to not contain unrelated port")
	}
}

func TestLabelsBitExact(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := Labels("sb-1", "proj-1", "ten-1", now)
	want := map[string]string{
		LabelSandbox:   "true",
		LabelSandboxID: "sb-1",
		LabelProjectID: "proj-1",
		LabelTenantID:  "ten-1",
		LabelCreatedAt: "2026-01-02T03:04:05Z",
	}
	for k, v := range want {
		if l[k] != v {
			t.Errorf("label %s: got %q, want %q", k, l[k], v)
		}
	}
}
