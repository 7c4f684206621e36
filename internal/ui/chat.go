package ui

import (
	"context"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

// ChatBackend 是界面驱动的会话，*agent.Agent 实现了它。
type ChatBackend interface {
	Step(ctx context.Context, userText *string) (agent.Reply, error)
	Canvas() (model.Canvas, bool)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	// Approvals 非空时，校验失败会在界面上询问是否批准例外；为空则按配置超时自动继续。
	Approvals *PromptApprover
}
