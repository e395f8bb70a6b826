package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Component: ComponentPayslip,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestLogPayslipRecalculated(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(jsonLogger(&buf))

	sl.LogPayslipRecalculated(context.Background(), OpUpdate, "p1", "Ana", "2025-03", 3, "auto", "950.00")

	e := lastEntry(t, &buf)
	assert.Equal(t, "Payslip recalculated", e["msg"])
	assert.Equal(t, "p1", e[FieldPayslipID])
	assert.Equal(t, "2025-03", e[FieldPeriod])
	assert.Equal(t, float64(3), e[FieldVersion])
	assert.Equal(t, "auto", e[FieldMode])
	assert.Equal(t, "950.00", e[FieldNetPayable])
	assert.Equal(t, OpUpdate, e[FieldOperation])
}

func TestLogPayslipExported(t *testing.T) {
	var buf bytes.Buffer
	NewStructuredLogger(jsonLogger(&buf)).LogPayslipExported(context.Background(), "p1", 2, "Boletas!A2:J2")

	e := lastEntry(t, &buf)
	assert.Equal(t, ComponentExport, e[FieldComponent])
	assert.Equal(t, "Boletas!A2:J2", e[FieldExportRef])
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	fields := NewFields()
	fields[FieldLineIndex] = "4"
	NewStructuredLogger(jsonLogger(&buf)).LogError(context.Background(), "boom", errors.New("disk full"), ComponentHTTP, OpUpdate, fields)

	e := lastEntry(t, &buf)
	assert.Equal(t, "ERROR", e["level"])
	assert.Equal(t, "disk full", e[FieldError])
	assert.Equal(t, "4", e[FieldLineIndex])
}

func TestMiddlewareCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf)

	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	e := lastEntry(t, &buf)
	assert.Equal(t, "inside", e["msg"])
	assert.Equal(t, "req_1", e[FieldRequestID])
}

func TestFromContextDefault(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, ComponentApp, l.Component())
}

func TestLoggerComponentAttachedOnce(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf).With("request_id", "req_9").WithComponent(ComponentWorker).WithPayslip("p7")

	l.Info("synced")

	line := bytes.TrimSpace(buf.Bytes())
	assert.Equal(t, 1, bytes.Count(line, []byte(`"component"`)), string(line))
	e := lastEntry(t, &buf)
	assert.Equal(t, ComponentWorker, e[FieldComponent])
	assert.Equal(t, "req_9", e["request_id"])
	assert.Equal(t, "p7", e[FieldPayslipID])
	assert.Equal(t, ComponentWorker, l.Component())
}

func TestNewDefaultsComponent(t *testing.T) {
	assert.Equal(t, ComponentApp, New(Config{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)}).Component())
}
