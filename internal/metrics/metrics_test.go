package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSave(t *testing.T) {
	m := New()
	m.RecordSave("characters", "primary")
	m.RecordSave("characters", "primary")
	m.RecordSave("characters", "fallback")

	if got := testutil.ToFloat64(m.SavesTotal.WithLabelValues("characters", "primary")); got != 2 {
		t.Errorf("primary saves = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SavesTotal.WithLabelValues("characters", "fallback")); got != 1 {
		t.Errorf("fallback saves = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSave("characters", "primary")
	m.RecordFallback("save")
	m.RecordPersistenceFailure("worldBooks")
	m.RecordMigration("ok")
	m.SetStorageUsed(10)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordFallback("load")

	if got := testutil.ToFloat64(b.FallbacksTotal.WithLabelValues("load")); got != 0 {
		t.Errorf("second registry saw %v fallbacks, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordMigration("ok")
	m.SetStorageUsed(4096)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`chronicler_migrations_total{result="ok"} 1`,
		"chronicler_storage_used_bytes 4096",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
