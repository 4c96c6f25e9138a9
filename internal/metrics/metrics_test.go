package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if candidatesTotal == nil || mergesTotal == nil || sourceFailuresTotal == nil ||
		runsTotal == nil || browserSessionsActive == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCounters(t *testing.T) {
	Init()

	ObserveCandidate("metrics-test-source")
	ObserveCandidate("metrics-test-source")
	if val := testutil.ToFloat64(candidatesTotal.WithLabelValues("metrics-test-source")); val != 2 {
		t.Errorf("expected candidatesTotal to be 2, got %f", val)
	}

	ObserveMerge("metrics-test-source")
	if val := testutil.ToFloat64(mergesTotal.WithLabelValues("metrics-test-source")); val != 1 {
		t.Errorf("expected mergesTotal to be 1, got %f", val)
	}

	ObserveSourceFailure("metrics-test-source", "navigation_timeout")
	if val := testutil.ToFloat64(sourceFailuresTotal.WithLabelValues("metrics-test-source", "navigation_timeout")); val != 1 {
		t.Errorf("expected sourceFailuresTotal to be 1, got %f", val)
	}

	ObserveRun("succeeded", 3*time.Second)
	if val := testutil.ToFloat64(runsTotal.WithLabelValues("succeeded")); val != 1 {
		t.Errorf("expected runsTotal to be 1, got %f", val)
	}
}

func TestBrowserSessionGauge(t *testing.T) {
	Init()

	before := testutil.ToFloat64(browserSessionsActive)
	IncBrowserSessions()
	IncBrowserSessions()
	DecBrowserSessions()
	if val := testutil.ToFloat64(browserSessionsActive); val != before+1 {
		t.Errorf("expected gauge %f, got %f", before+1, val)
	}
}

func TestObserveBeforeInitIsNoop(t *testing.T) {
	// Observing with nil collectors must not panic; the guards make metric
	// calls safe in unit tests that never touch Init.
	var saved = candidatesTotal
	candidatesTotal = nil
	defer func() { candidatesTotal = saved }()
	ObserveCandidate("whatever")
}
