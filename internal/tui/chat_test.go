package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/model"
	"github.com/wwwzy/PumpCPQ/internal/ui"
)

type fakeBackend struct {
	canvas model.Canvas
	done   bool
}

func (f *fakeBackend) Step(context.Context, *string) (agent.Reply, error) {
	return agent.Reply{Text: "ok", Done: f.done}, nil
}

func (f *fakeBackend) Canvas() (model.Canvas, bool) { return f.canvas, f.done }

func update(t *testing.T, m chatModel, msg tea.Msg) chatModel {
	t.Helper()
	next, _ := m.Update(msg)
	cm, ok := next.(chatModel)
	require.True(t, ok)
	return cm
}

func TestStepResultAppendsReply(t *testing.T) {
	m := newChatModel(context.Background(), &fakeBackend{}, ui.ChatOptions{})
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = update(t, m, stepResultMsg{reply: agent.Reply{Text: "What flow rate do you need?"}})

	require.Len(t, m.messages, 1)
	assert.Equal(t, "What flow rate do you need?", m.messages[0].Content)
	assert.False(t, m.thinking)
	assert.False(t, m.done)
}

func TestDoneAppendsQuoteSheet(t *testing.T) {
	b := &fakeBackend{done: true, canvas: model.Canvas{SessionID: "sess-9", Pricing: model.Pricing{NetTotal: 1412}}}
	m := newChatModel(context.Background(), b, ui.ChatOptions{})
	m = update(t, m, stepResultMsg{reply: agent.Reply{Text: "Net total: $1412.00", Done: true}})

	assert.True(t, m.done)
	require.Len(t, m.messages, 2)
	assert.Contains(t, m.messages[1].Content, "# Quote sess-9")
}

func TestApprovalDialog(t *testing.T) {
	approver := ui.NewPromptApprover()
	m := newChatModel(context.Background(), &fakeBackend{}, ui.ChatOptions{Approvals: approver})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result := make(chan agent.Decision, 1)
	go func() {
		d, err := approver.Await(ctx, "sess", []string{"Motor exceeds 230V limit"})
		if err == nil {
			result <- d
		}
	}()

	msg := waitApproval(approver)()
	m = update(t, m, msg)
	require.NotNil(t, m.approval)
	assert.Contains(t, m.View(), "Motor exceeds 230V limit")

	// 默认选中"拒绝"，切换到"批准"后回车
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, m.approval)

	select {
	case d := <-result:
		assert.True(t, d.Approved)
		assert.Equal(t, "approved in chat", d.Note)
	case <-ctx.Done():
		t.Fatal("approval not delivered")
	}
}
