// Package extract 把一句自由文本回复转换成结构化的字段补丁。
//
// 抽取由若干 Strategy 依次尝试：先用语言模型，模型报错或没有得到任何新字段时
// 再退回到确定性的关键词/正则规则。
package extract

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

// ErrUnavailable 表示主策略暂时不可用，且兜底策略也没有抽到任何内容。
var ErrUnavailable = errors.New("extract: no strategy produced a result")

// Request 是一次抽取的输入。
type Request struct {
	Phase model.Phase
	// Asked 是上一轮询问的字段，为空表示没有明确的提问（例如首轮自由描述）。
	Asked    model.Field
	Question string
	Customer model.CustomerInfo
	// Requirements 是当前已累计的需求，用于判断哪些字段仍可写入。
	Requirements model.PumpRequirements
	Message      string
}

// Result 是一次抽取的输出。
type Result struct {
	Patch model.Patch
	// Strategy 产出补丁的策略名；什么都没抽到时为空。
	Strategy string
	// Extracted 表示补丁里至少有一个当前仍未设置的字段。
	Extracted bool
	// Fallback 表示结果来自兜底策略。
	Fallback bool
}

// Strategy 是单一抽取策略。
type Strategy interface {
	Name() string
	Extract(ctx context.Context, req Request) (model.Patch, error)
}

// Observer 在每次策略执行后被通知，outcome 为 extracted / empty / error。
type Observer func(strategy, outcome string)

// Chain 依次尝试策略，第一个产出新字段的策略胜出。
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
	observer   Observer
}

type ChainOption func(*Chain)

func WithLogger(l *zap.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) ChainOption {
	return func(c *Chain) { c.observer = o }
}

// NewChain 按顺序组装策略，nil 策略会被跳过。
func NewChain(strategies []Strategy, opts ...ChainOption) *Chain {
	c := &Chain{logger: zap.NewNop()}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New 构造默认链：有模型时 LLM → 启发式，否则只有启发式。
func New(primary *LLMStrategy, opts ...ChainOption) *Chain {
	var strategies []Strategy
	if primary != nil {
		strategies = append(strategies, primary)
	}
	strategies = append(strategies, Heuristic{})
	return NewChain(strategies, opts...)
}

// Extract 执行抽取。
//
// 只有当某个策略报错且后续策略全部一无所获时才返回 ErrUnavailable；
// 单纯没有抽到内容返回 Extracted=false 的结果。
func (c *Chain) Extract(ctx context.Context, req Request) (Result, error) {
	var firstErr error
	for i, s := range c.strategies {
		patch, err := s.Extract(ctx, req)
		if err != nil {
			c.observe(s.Name(), "error")
			c.logger.Warn("extraction strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("asked", string(req.Asked)),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", s.Name(), err)
			}
			continue
		}
		if !Useful(patch, req.Customer, req.Requirements) {
			c.observe(s.Name(), "empty")
			continue
		}
		c.observe(s.Name(), "extracted")
		patch = withPersonalUse(patch, req)
		return Result{Patch: patch, Strategy: s.Name(), Extracted: true, Fallback: i > 0}, nil
	}

	// 没有策略抽到内容时仍然允许私人用途判断单独生效
	patch := withPersonalUse(model.Patch{}, req)
	if Useful(patch, req.Customer, req.Requirements) {
		return Result{Patch: patch, Strategy: "personal_use", Extracted: true}, nil
	}
	if firstErr != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, firstErr)
	}
	return Result{}, nil
}

func (c *Chain) observe(strategy, outcome string) {
	if c.observer != nil {
		c.observer(strategy, outcome)
	}
}

// Useful 判断补丁合并进当前状态后是否会写入至少一个新字段。
func Useful(p model.Patch, customer model.CustomerInfo, req model.PumpRequirements) bool {
	return len(customer.Apply(p.Customer)) > 0 || len(req.Apply(p.Requirements)) > 0
}

// withPersonalUse 在公司名尚未确定且回复明显是私人/家用时，把公司标记为跳过。
func withPersonalUse(p model.Patch, req Request) model.Patch {
	if req.Customer.CompanyResolved() || p.Customer.Company != nil {
		return p
	}
	if IsPersonalUse(req.Message) {
		p.Customer.Company = model.Ptr("")
	}
	return p
}
