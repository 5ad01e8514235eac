package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New("")

	m.RecordSessionStart()
	m.RecordSessionStart()
	m.RecordSessionEnd("client_closed", 3*time.Second)
	m.RecordTurn("ok")
	m.RecordTurn("ok")
	m.RecordTurn("error")
	m.RecordStageFailure("synthesis")
	m.RecordStage("transcribe", 120*time.Millisecond)

	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("turns_total{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("synthesis")); got != 1 {
		t.Errorf("stage_failures_total{synthesis} = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionStart()
	m.RecordSessionEnd("x", time.Second)
	m.RecordTurn("ok")
	m.RecordStage("s", time.Second)
	m.RecordStageFailure("k")
	m.RecordGreeting("hit")
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("voicegate")
	m.RecordTurn("apology")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `voicegate_turns_total{outcome="apology"} 1`) {
		t.Fatalf("metrics output missing turns_total:\n%s", body)
	}
}
