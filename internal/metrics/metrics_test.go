package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/sandbox"
)

func TestInstrumentedSandboxAndGrades(t *testing.T) {
	reg, m := NewRegistry()

	sb := m.Instrument(sandbox.NewGojaSandbox(sandbox.DefaultPolicy()))
	_, err := sb.Exec(context.Background(), sandbox.ExecOpts{Code: `console.log(1)`})
	require.NoError(t, err)
	_, err = sb.Exec(context.Background(), sandbox.ExecOpts{Code: `throw 1`})
	require.NoError(t, err)

	m.ObserveGrade(&grader.Report{State: grader.StateScored, Score: 7.5}, 0)
	m.ObserveGrade(&grader.Report{State: grader.StateRejectedForbidden}, 0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, `gradebox_executions_total{outcome="success"} 1`)
	assert.Contains(t, out, `gradebox_executions_total{outcome="error"} 1`)
	assert.Contains(t, out, `gradebox_execution_duration_seconds_count 2`)
	assert.Contains(t, out, `gradebox_gradings_total{state="SCORED"} 1`)
	assert.Contains(t, out, `gradebox_gradings_total{state="REJECTED_FORBIDDEN"} 1`)
	assert.Contains(t, out, `gradebox_grading_score_count 1`)
	assert.Contains(t, out, `gradebox_forbidden_rejections_total 1`)
}

func TestMetricsSatisfyObserver(t *testing.T) {
	_, m := NewRegistry()
	var _ grader.Observer = m
}
