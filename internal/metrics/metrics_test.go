package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestNew_PrivateRegistries(t *testing.T) {
	a := New()
	b := New()

	a.RecordDoseTaken()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.dosesTaken))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.dosesTaken))
}

func TestRecordDoseTakenAndUnmarked(t *testing.T) {
	m := New()
	m.RecordDoseTaken()
	m.RecordDoseTaken()
	m.RecordDoseUnmarked()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dosesTaken))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dosesUnmarked))
}

func TestRecordReminderOp(t *testing.T) {
	m := New()
	m.RecordReminderOp("schedule", nil)
	m.RecordReminderOp("schedule", nil)
	m.RecordReminderOp("cancel", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reminderOps.WithLabelValues("schedule", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reminderOps.WithLabelValues("cancel", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.reminderOps.WithLabelValues("list", "ok")))
}

func TestRecordValidationError(t *testing.T) {
	m := New()
	m.RecordValidationError("VALIDATION_001")

	assert.Equal(t, 1, testutil.CollectAndCount(m.validationErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationErrors.WithLabelValues("VALIDATION_001")))
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetDueSoon(3)
	m.SetMedications(5)
	m.SetDueSoon(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dueSoon))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.medications))
}

func TestRecordHTTPRequest(t *testing.T) {
	tests := []struct {
		status int
		class  string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{302, "3xx"},
		{404, "4xx"},
		{502, "5xx"},
	}

	for _, tt := range tests {
		m := New()
		m.RecordHTTPRequest("GET", "/api/medications", tt.status, 10*time.Millisecond)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/medications", tt.class)), tt.status)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.RecordAlert("runner", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), `medtracker_alerts_sent_total{result="ok",source="runner"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}

func TestUptime(t *testing.T) {
	m := New()
	time.Sleep(5 * time.Millisecond)

	assert.GreaterOrEqual(t, m.Uptime(), 5*time.Millisecond)
}
