package cmdlog

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"mentionwatch/internal/logging"
	"mentionwatch/internal/metrics"
)

func TestRunCountsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Options{Level: "info", Writer: &buf})
	t.Cleanup(func() { logging.Init(logging.Options{Level: "info"}) })

	assert.NoError(t, Run("probe", func() error { return nil }))
	boom := errors.New("boom")
	assert.Same(t, boom, Run("probe", func() error { return boom }))

	assert.Contains(t, buf.String(), `"message":"probe_ok"`)
	assert.Contains(t, buf.String(), `"message":"probe_error"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
	assert.Contains(t, buf.String(), `"cmd":"probe"`)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `mentionwatch_command_runs_total{cmd="probe"} 2`)
	assert.Contains(t, body, `mentionwatch_command_errors_total{cmd="probe"} 1`)
}
