package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

func newAgent(t *testing.T, timeout time.Duration, opts ...agent.Option) *agent.Agent {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	cfg := agent.DefaultConfig()
	cfg.ApprovalTimeout = timeout
	seed := model.CustomerInfo{Name: "Dana", Company: model.Ptr("Acme"), Email: "dana@example.com"}
	a, err := agent.New(cat, seed, append([]agent.Option{agent.WithConfig(cfg)}, opts...)...)
	require.NoError(t, err)
	return a
}

func TestConsoleChatCompletesQuote(t *testing.T) {
	a := newAgent(t, 10*time.Millisecond)
	in := strings.NewReader("\n40 gpm at 60 ft of water, 230V single phase, non-ATEX, cast iron, budget\n")
	var out bytes.Buffer

	u := &ConsoleChatUI{In: in, Out: &out}
	require.NoError(t, u.Run(context.Background(), a, ChatOptions{}))

	text := out.String()
	assert.Contains(t, text, "What flow rate")
	assert.Contains(t, text, "Net total: $1412.00")
	_, ok := a.Canvas()
	assert.True(t, ok)
}

func TestConsoleChatExit(t *testing.T) {
	a := newAgent(t, 10*time.Millisecond)
	var out bytes.Buffer
	u := &ConsoleChatUI{In: strings.NewReader("quit\n"), Out: &out}
	require.NoError(t, u.Run(context.Background(), a, ChatOptions{}))
	assert.Contains(t, out.String(), "已退出")
	_, ok := a.Canvas()
	assert.False(t, ok)
}

func TestConsoleChatApprovalPrompt(t *testing.T) {
	approver := NewPromptApprover()
	a := newAgent(t, 5*time.Second, agent.WithApprover(approver))
	in := strings.NewReader("75 gpm at 100 ft of water, 230V single phase, non-ATEX, cast iron, budget\ny\n")
	var out bytes.Buffer

	u := &ConsoleChatUI{In: in, Out: &out}
	require.NoError(t, u.Run(context.Background(), a, ChatOptions{Approvals: approver}))

	assert.Contains(t, out.String(), "批准例外并继续报价")
	c, ok := a.Canvas()
	require.True(t, ok)
	assert.Equal(t, model.ApprovalApproved, c.Approval)
	assert.Contains(t, c.Rationale, "confirmed in console")
}

func TestPromptApproverTimeout(t *testing.T) {
	p := NewPromptApprover()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	go func() {
		req := <-p.Requests()
		assert.Equal(t, []string{"too big"}, req.Violations)
		// 不回复，等待方应当超时
	}()
	_, err := p.Await(ctx, "sess", []string{"too big"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPromptApproverRespond(t *testing.T) {
	p := NewPromptApprover()
	go func() {
		req := <-p.Requests()
		req.Respond(agent.Decision{Approved: true, Note: "fine"})
		req.Respond(agent.Decision{Approved: false}) // 重复回复被丢弃
	}()
	d, err := p.Await(context.Background(), "sess", nil)
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, "fine", d.Note)
}
