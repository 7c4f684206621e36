package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/engine"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

// outcome 是一个阶段处理函数的结论：提问、切换阶段或结束。
type outcome struct {
	ask  model.Field
	next model.Phase
	done bool
}

type handler func(ctx context.Context, a *Agent) (outcome, error)

// transitions 阶段转移表
var transitions = map[model.Phase]handler{
	model.PhaseGathering:    gathering,
	model.PhaseCustomerInfo: customerInfo,
	model.PhaseProposing:    proposing,
	model.PhaseValidating:   validating,
	model.PhasePricing:      pricing,
	model.PhaseComplete:     complete,
}

// gathering 先问选型参数；开场时姓名未知则先问一次姓名。
func gathering(_ context.Context, a *Agent) (outcome, error) {
	s := &a.state
	if !s.Customer.Has(model.FieldName) && !s.NameAsked {
		return outcome{ask: model.FieldName}, nil
	}
	if f, missing := s.Requirements.FirstMissing(); missing {
		return outcome{ask: f}, nil
	}
	if !s.Customer.HasContact() {
		return outcome{next: model.PhaseCustomerInfo}, nil
	}
	return outcome{next: model.PhaseProposing}, nil
}

// customerInfo 按 姓名 → 公司 → 联系方式 的顺序补齐客户信息。
func customerInfo(_ context.Context, a *Agent) (outcome, error) {
	s := &a.state
	if f, missing := s.Customer.FirstMissing(); missing {
		return outcome{ask: f}, nil
	}
	if s.Requirements.Complete() {
		return outcome{next: model.PhaseProposing}, nil
	}
	return outcome{next: model.PhaseGathering}, nil
}

func proposing(_ context.Context, a *Agent) (outcome, error) {
	s := &a.state
	sel, err := engine.Select(a.catalog, s.Requirements)
	if err != nil {
		return outcome{}, fmt.Errorf("propose configuration: %w", err)
	}
	cfg := sel.Config
	s.Configuration = &cfg
	s.SelectionFallback = sel.Fallback
	s.Validation = nil
	s.Pricing = nil
	if sel.Fallback {
		a.logger.Warn("no flow map row matched, using default selection",
			zap.Float64("gpm", s.Requirements.GPM), zap.Float64("head_ft", s.Requirements.HeadFt))
	}
	a.logger.Info("configuration proposed",
		zap.String("family", cfg.Family), zap.Float64("motor_hp", cfg.MotorHP), zap.Int("row", sel.RowIndex))
	a.pending = append(a.pending, proposalText(sel))
	return outcome{next: model.PhaseValidating}, nil
}

// validating 记录全部违规项。违规时在有限时间内等待外部审批，
// 无论结论如何都继续定价，保证会话总能完成。
func validating(ctx context.Context, a *Agent) (outcome, error) {
	s := &a.state
	if s.Configuration == nil {
		return outcome{next: model.PhaseProposing}, nil
	}
	v := engine.Validate(*s.Configuration, s.Requirements)
	s.Validation = &v
	if v.IsValid {
		s.Approval = model.ApprovalNotRequired
		return outcome{next: model.PhasePricing}, nil
	}

	a.observer.ViolationsObserved(len(v.Violations))
	a.pending = append(a.pending, violationsText(v))
	result, note, err := a.awaitApproval(ctx, v.Violations)
	if err != nil {
		return outcome{}, err
	}
	s.Approval, s.ApprovalNote = result, note
	a.logger.Info("validation violations resolved",
		zap.Int("violations", len(v.Violations)), zap.String("approval", string(result)))
	a.pending = append(a.pending, approvalText(result, note))
	return outcome{next: model.PhasePricing}, nil
}

// pricing 价格缺失是致命错误，不会用 0 价格代替。
func pricing(ctx context.Context, a *Agent) (outcome, error) {
	s := &a.state
	if s.Configuration == nil {
		return outcome{next: model.PhaseProposing}, nil
	}
	var opts []engine.PriceOption
	if a.discount >= 0 {
		opts = append(opts, engine.WithDiscount(a.discount))
	}
	p, err := engine.Price(a.catalog, *s.Configuration, opts...)
	if err != nil {
		return outcome{}, fmt.Errorf("price configuration: %w", err)
	}
	s.Pricing = &p
	s.CompletedAt = time.Now().UTC()
	a.pending = append(a.pending, quoteText(p))

	s.Phase = model.PhaseComplete
	a.done.Store(true)
	a.observer.QuoteCompleted(s.Approval)
	a.logger.Info("quote completed",
		zap.Float64("list_total", p.ListTotal), zap.Float64("net_total", p.NetTotal))
	a.persist(ctx)
	return outcome{next: model.PhaseComplete}, nil
}

func complete(_ context.Context, _ *Agent) (outcome, error) {
	return outcome{done: true}, nil
}

// persist 把 Canvas 交给持久化层。只有定价完成且有联系方式时才保存。
// 保存失败只记录日志，报价本身已经完成。
func (a *Agent) persist(ctx context.Context) {
	if a.sink == nil || !a.state.Customer.HasContact() {
		return
	}
	c, ok := a.Canvas()
	if !ok {
		return
	}
	if err := a.sink.SaveCanvas(ctx, c); err != nil {
		a.logger.Error("failed to save canvas", zap.Error(err))
	}
}
