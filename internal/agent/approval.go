package agent

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

// Decision 是外部对违规配置给出的审批结论。
type Decision struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

// Approver 等待外部审批信号。ctx 到期即返回 ctx.Err()。
type Approver interface {
	Await(ctx context.Context, sessionID string, violations []string) (Decision, error)
}

// ChannelApprover 通过 channel 接收审批信号，可以被任意 goroutine 调用 Signal。
// 只有会话正在等待审批时才接受信号，提前送达的结论不会被留给之后的违规项。
type ChannelApprover struct {
	mu       sync.Mutex
	awaiting bool
	ch       chan Decision
}

func NewChannelApprover() *ChannelApprover {
	return &ChannelApprover{ch: make(chan Decision, 1)}
}

// Signal 投递审批结论。没有正在等待的审批时返回 ErrNoApprovalPending，
// 已有未消费的信号时返回 ErrApprovalPending。
func (a *ChannelApprover) Signal(d Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.awaiting {
		return ErrNoApprovalPending
	}
	select {
	case a.ch <- d:
		return nil
	default:
		return ErrApprovalPending
	}
}

// Awaiting 报告当前是否有审批在等待。
func (a *ChannelApprover) Awaiting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.awaiting
}

func (a *ChannelApprover) Await(ctx context.Context, _ string, _ []string) (Decision, error) {
	a.mu.Lock()
	a.awaiting = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.awaiting = false
		// 超时后才到的信号直接丢弃
		select {
		case <-a.ch:
		default:
		}
		a.mu.Unlock()
	}()

	select {
	case d := <-a.ch:
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// awaitApproval 在有限时间内等待审批，超时后照常继续（fail-open）。
// 只有调用方自己的 ctx 被取消时才返回错误。
func (a *Agent) awaitApproval(ctx context.Context, violations []string) (model.ApprovalOutcome, string, error) {
	if a.approver == nil || a.cfg.ApprovalTimeout <= 0 {
		return model.ApprovalTimedOut, "", nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ApprovalTimeout)
	defer cancel()

	d, err := a.approver.Await(waitCtx, a.state.SessionID, violations)
	switch {
	case err == nil && d.Approved:
		return model.ApprovalApproved, d.Note, nil
	case err == nil:
		return model.ApprovalRejected, d.Note, nil
	case ctx.Err() != nil:
		return "", "", ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return model.ApprovalTimedOut, "", nil
	default:
		// 审批通道本身出错同样不阻塞报价
		a.logger.Warn("approval wait failed", zap.Error(err))
		return model.ApprovalTimedOut, "", nil
	}
}
