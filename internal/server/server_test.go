package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/metrics"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

const violatingMessage = "75 gpm at 100 ft of water, 230V single phase, non-ATEX, cast iron, budget"

func newTestServer(t *testing.T, approvalTimeout time.Duration, opts ...Option) *Server {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	cfg := agent.DefaultConfig()
	cfg.ApprovalTimeout = approvalTimeout

	s, err := New(func(seed model.CustomerInfo) (*agent.Agent, error) {
		return agent.New(cat, seed, agent.WithConfig(cfg))
	}, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, s *Server, seed *CustomerSeed) ReplyResponse {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{Customer: seed})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ReplyResponse](t, rec)
}

func step(t *testing.T, s *Server, id, text string) ReplyResponse {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/steps", StepRequest{Text: &text})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[ReplyResponse](t, rec)
}

func seededCustomer() *CustomerSeed {
	company := "Acme"
	return &CustomerSeed{Name: "Dana", Company: &company, Email: "dana@example.com"}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 10*time.Millisecond)
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)

	s = newTestServer(t, 10*time.Millisecond, WithHealthCheck(func(context.Context) error { return errors.New("db down") }))
	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, 10*time.Millisecond)

	created := createSession(t, s, nil)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, model.FieldName, created.Asked)
	assert.False(t, created.Done)
	id := created.SessionID

	r := step(t, s, id, "Dana")
	assert.Equal(t, model.FieldGPM, r.Asked)

	rec := do(t, s, http.MethodGet, "/api/v1/sessions/"+id+"/canvas", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	step(t, s, id, "40 gpm at 60 ft of water, 230V single phase, non-ATEX, cast iron, budget")
	step(t, s, id, "skip")
	r = step(t, s, id, "dana@example.com")
	assert.True(t, r.Done)
	assert.Equal(t, model.PhaseComplete, r.Phase)
	assert.Contains(t, r.Reply, "Net total: $1412.00")

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id+"/canvas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	canvas := decode[model.Canvas](t, rec)
	assert.Equal(t, "P100", canvas.Configuration.Family)
	assert.Equal(t, 1412.0, canvas.Pricing.NetTotal)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[agent.State](t, rec)
	assert.Equal(t, model.PhaseComplete, st.Phase)
	assert.Equal(t, 40.0, st.Requirements.GPM)

	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/approval", ApprovalRequest{Approved: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, s.SessionCount())
}

func TestStepUnknownSession(t *testing.T) {
	s := newTestServer(t, 10*time.Millisecond)
	rec := do(t, s, http.MethodPost, "/api/v1/sessions/nope/steps", StepRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// 审批请求不经过会话锁，Step 阻塞等待审批时也能送达。
func TestApprovalDuringBlockedStep(t *testing.T) {
	s := newTestServer(t, 5*time.Second)
	id := createSession(t, s, seededCustomer()).SessionID

	var (
		wg    sync.WaitGroup
		reply ReplyResponse
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		text := violatingMessage
		rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/steps", StepRequest{Text: &text})
		if rec.Code == http.StatusOK {
			_ = json.Unmarshal(rec.Body.Bytes(), &reply)
		}
	}()

	// 会话进入等待审批之前投递会得到 409，重试直到被接受
	start := time.Now()
	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/approval", ApprovalRequest{Approved: true, Note: "ok by engineering"})
	for rec.Code == http.StatusConflict && time.Since(start) < 3*time.Second {
		time.Sleep(2 * time.Millisecond)
		rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/approval", ApprovalRequest{Approved: true, Note: "ok by engineering"})
	}
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	wg.Wait()

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.True(t, reply.Done)
	assert.Contains(t, reply.Reply, "approved the exception")

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id+"/canvas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	canvas := decode[model.Canvas](t, rec)
	assert.Equal(t, model.ApprovalApproved, canvas.Approval)
	assert.Contains(t, canvas.Rationale, "ok by engineering")
}

func TestApprovalWithoutPendingViolation(t *testing.T) {
	s := newTestServer(t, 20*time.Millisecond)
	id := createSession(t, s, seededCustomer()).SessionID

	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/approval", ApprovalRequest{Approved: true, Note: "blanket"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	text := violatingMessage
	rec = do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/steps", StepRequest{Text: &text})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[ReplyResponse](t, rec).Done)

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/"+id+"/canvas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	canvas := decode[model.Canvas](t, rec)
	assert.Equal(t, model.ApprovalTimedOut, canvas.Approval)
	assert.NotContains(t, canvas.Rationale, "blanket")
}

func TestConcurrentSessions(t *testing.T) {
	s := newTestServer(t, 10*time.Millisecond)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = createSession(t, s, seededCustomer()).SessionID
	}

	var wg sync.WaitGroup
	results := make([]ReplyResponse, n)
	codes := make([]int, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			text := "40 gpm at 60 ft of water, 230V single phase, non-ATEX, cast iron, budget"
			rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/steps", StepRequest{Text: &text})
			codes[i] = rec.Code
			_ = json.Unmarshal(rec.Body.Bytes(), &results[i])
		}(i, id)
	}
	wg.Wait()

	for i := range ids {
		assert.Equal(t, http.StatusOK, codes[i])
		assert.True(t, results[i].Done)
		assert.Equal(t, ids[i], results[i].SessionID)
	}
	assert.Equal(t, n, s.SessionCount())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.New()
	s := newTestServer(t, 10*time.Millisecond, WithMetrics(rec))
	createSession(t, s, nil)

	resp := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "pumpcpq_active_sessions 1")
}
