package ui

import (
	"context"

	"github.com/wwwzy/PumpCPQ/internal/agent"
)

// ApprovalRequest 是一次等待人工确认的审批请求。
type ApprovalRequest struct {
	SessionID  string
	Violations []string

	reply chan agent.Decision
}

// Respond 回复审批结论。等待方已经超时离开时回复被丢弃。
func (r ApprovalRequest) Respond(d agent.Decision) {
	select {
	case r.reply <- d:
	default:
	}
}

// PromptApprover 把审批请求转交给界面，实现 agent.Approver。
type PromptApprover struct {
	requests chan ApprovalRequest
}

func NewPromptApprover() *PromptApprover {
	return &PromptApprover{requests: make(chan ApprovalRequest)}
}

// Requests 供界面读取待处理的审批请求。
func (p *PromptApprover) Requests() <-chan ApprovalRequest {
	if p == nil {
		return nil
	}
	return p.requests
}

func (p *PromptApprover) Await(ctx context.Context, sessionID string, violations []string) (agent.Decision, error) {
	req := ApprovalRequest{
		SessionID:  sessionID,
		Violations: append([]string(nil), violations...),
		reply:      make(chan agent.Decision, 1),
	}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return agent.Decision{}, ctx.Err()
	}
	select {
	case d := <-req.reply:
		return d, nil
	case <-ctx.Done():
		return agent.Decision{}, ctx.Err()
	}
}
