package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/extract"
	"github.com/wwwzy/PumpCPQ/internal/llm"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

// 编译期确认签名匹配
var (
	_ agent.Observer   = (*Recorder)(nil)
	_ extract.Observer = (*Recorder)(nil).ObserveExtraction
	_ llm.CallObserver = (*Recorder)(nil).ObserveProviderCall
)

func TestRecorderCounters(t *testing.T) {
	r := New()

	r.StepObserved(model.PhaseGathering)
	r.StepObserved(model.PhaseGathering)
	r.StepObserved(model.PhasePricing)
	r.ViolationsObserved(2)
	r.QuoteCompleted(model.ApprovalTimedOut)
	r.ObserveExtraction("heuristic", "extracted")
	r.ObserveProviderCall("openai", "failed", 150*time.Millisecond)
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps.WithLabelValues("gathering")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.steps.WithLabelValues("pricing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.violations))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.quotes.WithLabelValues("timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.extractions.WithLabelValues("heuristic", "extracted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerCalls.WithLabelValues("openai", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeSessions))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.QuoteCompleted(model.ApprovalNotRequired)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `pumpcpq_quotes_completed_total{approval="not_required"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ViolationsObserved(3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.violations))
}
