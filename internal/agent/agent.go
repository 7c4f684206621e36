// Package agent 实现报价会话的状态机：逐轮抽取客户回答，决定下一个问题，
// 需求齐全后依次执行选型、校验、定价并生成 Canvas。
//
// 一个 Agent 对应一个会话，不做内部同步；同一会话的 Step 必须由调用方串行调用。
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/extract"
	"github.com/wwwzy/PumpCPQ/internal/llm"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

var (
	// ErrTransitionLimit 表示一轮 Step 内的阶段切换超过上限，通常意味着转移表配置错误。
	ErrTransitionLimit = errors.New("agent: transition limit exceeded")
	// ErrSessionComplete 表示会话已结束，不再接受审批等操作。
	ErrSessionComplete = errors.New("agent: session already complete")
	// ErrNoApprovalChannel 表示当前 Approver 不支持外部投递信号。
	ErrNoApprovalChannel = errors.New("agent: approver does not accept signals")
	// ErrApprovalPending 表示已有一个审批信号尚未被消费。
	ErrApprovalPending = errors.New("agent: an approval signal is already pending")
	// ErrNoApprovalPending 表示会话当前没有等待审批的违规项。
	ErrNoApprovalPending = errors.New("agent: no approval is pending")
)

// Phraser 名称
const (
	PhraserLLM      = "llm"
	PhraserTemplate = "template"
)

type Config struct {
	// ApprovalTimeout 校验失败后等待外部审批的最长时间，到期后继续定价
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	// Phraser 问题措辞方式：llm 或 template
	Phraser string `mapstructure:"phraser"`
	// QuestionFallback 为 true 时模型措辞失败退回模板，否则本轮返回错误
	QuestionFallback bool `mapstructure:"question_fallback"`
	// MaxTransitions 单轮 Step 内最多执行的阶段处理次数
	MaxTransitions int `mapstructure:"max_transitions"`
}

func DefaultConfig() Config {
	return Config{
		ApprovalTimeout:  2 * time.Second,
		Phraser:          PhraserTemplate,
		QuestionFallback: true,
		MaxTransitions:   8,
	}
}

func (c Config) Validate() error {
	switch c.Phraser {
	case PhraserLLM, PhraserTemplate:
	default:
		return fmt.Errorf("unknown agent.phraser %q (supported: llm, template)", c.Phraser)
	}
	if c.ApprovalTimeout < 0 {
		return fmt.Errorf("agent.approval_timeout must be >= 0")
	}
	if c.MaxTransitions < 1 {
		return fmt.Errorf("agent.max_transitions must be >= 1")
	}
	return nil
}

// Extractor 从一句回复中抽取字段，*extract.Chain 满足该接口。
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (extract.Result, error)
}

// CanvasSink 接收完成的报价包，例如写入数据库。
type CanvasSink interface {
	SaveCanvas(ctx context.Context, c model.Canvas) error
}

// Observer 接收会话事件，用于指标统计。
type Observer interface {
	StepObserved(phase model.Phase)
	ViolationsObserved(n int)
	QuoteCompleted(approval model.ApprovalOutcome)
}

type nopObserver struct{}

func (nopObserver) StepObserved(model.Phase)             {}
func (nopObserver) ViolationsObserved(int)               {}
func (nopObserver) QuoteCompleted(model.ApprovalOutcome) {}

// Reply 是一轮 Step 的输出。
type Reply struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Agent 持有一个会话的全部状态。
type Agent struct {
	cfg             Config
	catalog         *catalog.Catalog
	discount        float64
	provider        llm.Provider
	extractor       Extractor
	phraser         Phraser
	approver        Approver
	sink            CanvasSink
	observer        Observer
	extractObserver extract.Observer
	logger          *zap.Logger

	state   State
	pending []string
	// done 供其他 goroutine（例如审批接口）无锁读取会话是否结束
	done atomic.Bool
}

type Option func(*Agent)

func WithConfig(cfg Config) Option { return func(a *Agent) { a.cfg = cfg } }

// WithProvider 使用语言模型抽取字段；Phraser 为 llm 时也用它措辞问题。
func WithProvider(p llm.Provider) Option { return func(a *Agent) { a.provider = p } }

func WithExtractor(e Extractor) Option { return func(a *Agent) { a.extractor = e } }

func WithPhraser(p Phraser) Option { return func(a *Agent) { a.phraser = p } }

func WithApprover(ap Approver) Option { return func(a *Agent) { a.approver = ap } }

func WithCanvasSink(s CanvasSink) Option { return func(a *Agent) { a.sink = s } }

func WithObserver(o Observer) Option {
	return func(a *Agent) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithExtractionObserver 统计各抽取策略的结果，只对默认构造的抽取链生效。
func WithExtractionObserver(o extract.Observer) Option {
	return func(a *Agent) { a.extractObserver = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSessionID 指定会话 ID，默认生成 UUID。
func WithSessionID(id string) Option { return func(a *Agent) { a.state.SessionID = id } }

// WithDiscount 覆盖目录默认折扣；负数表示使用目录默认值。
func WithDiscount(percent float64) Option { return func(a *Agent) { a.discount = percent } }

// New 创建一个会话。seed 是已知的客户信息（可以为空）。
func New(cat *catalog.Catalog, seed model.CustomerInfo, opts ...Option) (*Agent, error) {
	if cat == nil {
		return nil, fmt.Errorf("agent: catalog is required")
	}
	a := &Agent{
		cfg:      DefaultConfig(),
		catalog:  cat,
		discount: -1,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	a.state = newState("", seed)
	for _, opt := range opts {
		opt(a)
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	if a.discount > 100 {
		return nil, fmt.Errorf("agent: discount %g%% out of range", a.discount)
	}
	if a.state.SessionID == "" {
		a.state.SessionID = uuid.NewString()
	}
	a.logger = a.logger.With(zap.String("session_id", a.state.SessionID))

	if a.extractor == nil {
		a.extractor = extract.New(
			extract.NewLLMStrategy(a.provider, a.logger),
			extract.WithLogger(a.logger),
			extract.WithObserver(a.extractObserver),
		)
	}
	if a.phraser == nil {
		a.phraser = TemplatePhraser{}
		if a.cfg.Phraser == PhraserLLM && a.provider != nil {
			var p Phraser = NewLLMPhraser(a.provider)
			if a.cfg.QuestionFallback {
				p = WithFallback(p, TemplatePhraser{}, a.logger)
			}
			a.phraser = p
		}
	}
	if a.approver == nil {
		a.approver = NewChannelApprover()
	}
	return a, nil
}

// SessionID 返回会话 ID。
func (a *Agent) SessionID() string { return a.state.SessionID }

// State 返回状态快照，调用方修改它不会影响会话。
func (a *Agent) State() State { return a.state.clone() }

// Done 报告会话是否已结束。
func (a *Agent) Done() bool { return a.done.Load() }

// Approve 投递外部审批结论，只在会话等待审批时有效：
// 会话结束后返回 ErrSessionComplete，没有等待中的审批时返回 ErrNoApprovalPending。
// 可以在任意 goroutine 调用。
func (a *Agent) Approve(d Decision) error {
	if a.done.Load() {
		return ErrSessionComplete
	}
	ch, ok := a.approver.(*ChannelApprover)
	if !ok {
		return ErrNoApprovalChannel
	}
	return ch.Signal(d)
}

// Canvas 返回完成后的报价包；会话未完成时 ok 为 false。
func (a *Agent) Canvas() (model.Canvas, bool) {
	s := a.state
	if s.Phase != model.PhaseComplete || s.Configuration == nil || s.Pricing == nil {
		return model.Canvas{}, false
	}
	snap := s.clone()
	c := model.Canvas{
		SessionID:         snap.SessionID,
		Customer:          snap.Customer,
		Requirements:      snap.Requirements,
		Configuration:     *snap.Configuration,
		SelectionFallback: snap.SelectionFallback,
		Violations:        []string{},
		Rationale:         rationale(snap),
		Approval:          snap.Approval,
		BOM:               snap.Pricing.BOM,
		Pricing:           *snap.Pricing,
		Timestamp:         snap.CompletedAt,
	}
	if snap.Validation != nil {
		c.Violations = snap.Validation.Violations
	}
	return c, true
}

// Step 处理一轮对话。userText 为 nil 表示没有新输入（例如会话开场）。
//
// 有输入时先追加到对话记录并抽取字段，再按转移表推进阶段，
// 直到需要向客户提问或会话完成。
func (a *Agent) Step(ctx context.Context, userText *string) (Reply, error) {
	ctx = llm.WithSessionID(llm.WithTraceID(ctx, uuid.NewString()), a.state.SessionID)
	a.pending = a.pending[:0]

	if a.state.Phase == model.PhaseComplete {
		if userText != nil {
			a.appendUser(*userText)
		}
		a.appendAssistant(closingMessage)
		return Reply{Text: closingMessage, Done: true}, nil
	}

	if userText != nil {
		text := strings.TrimSpace(*userText)
		a.appendUser(text)
		if isReset(text) {
			a.logger.Info("quote reset by customer", zap.String("phase", string(a.state.Phase)))
			a.state.resetQuote()
			a.pending = append(a.pending, "No problem, let's start the pump selection over.")
		} else if err := a.absorb(ctx, text); err != nil {
			return Reply{}, err
		}
	}

	return a.advance(ctx)
}

// absorb 抽取并合并本轮回答，更新重试计数。
func (a *Agent) absorb(ctx context.Context, text string) error {
	s := &a.state
	asked := s.Asked

	res, err := a.extractor.Extract(ctx, extract.Request{
		Phase:        s.Phase,
		Asked:        asked,
		Question:     s.LastQuestion,
		Customer:     s.Customer,
		Requirements: s.Requirements,
		Message:      text,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// 抽取不可用按"没有抽到内容"处理，下面会重新提问
		a.logger.Warn("extraction unavailable", zap.String("asked", string(asked)), zap.Error(err))
	}

	custSet := s.Customer.Apply(res.Patch.Customer)
	reqSet := s.Requirements.Apply(res.Patch.Requirements)

	// 公司名是可选项：空回答就是明确跳过
	if asked == model.FieldCompany && !s.Customer.CompanyResolved() && text == "" {
		s.Customer.Company = model.Ptr("")
		custSet = append(custSet, model.FieldCompany)
	}
	if len(custSet)+len(reqSet) > 0 {
		a.logger.Debug("fields extracted",
			zap.String("strategy", res.Strategy),
			zap.Bool("fallback", res.Fallback),
			zap.Any("customer", custSet),
			zap.Any("requirements", reqSet))
	}

	switch {
	case asked == "":
	case s.has(asked):
		s.Retries = 0
	case asked == model.FieldName && s.Phase == model.PhaseGathering:
		// 开场的姓名可以跳过，不计入重试
		s.Retries = 0
	default:
		s.Retries++
	}
	return nil
}

// advance 执行转移表直到需要提问或会话完成。
func (a *Agent) advance(ctx context.Context) (Reply, error) {
	for i := 0; i < a.cfg.MaxTransitions; i++ {
		phase := a.state.Phase
		a.observer.StepObserved(phase)

		handler, ok := transitions[phase]
		if !ok {
			return Reply{}, fmt.Errorf("agent: no handler for phase %q", phase)
		}
		out, err := handler(ctx, a)
		if err != nil {
			return Reply{}, err
		}

		switch {
		case out.ask != "":
			q, err := a.ask(ctx, out.ask)
			if err != nil {
				return Reply{}, err
			}
			a.pending = append(a.pending, q)
			return a.reply(false), nil
		case out.done:
			a.pending = append(a.pending, closingMessage)
			return a.reply(true), nil
		}

		if out.next != phase {
			a.logger.Debug("phase transition", zap.String("from", string(phase)), zap.String("to", string(out.next)))
			a.state.Phase = out.next
		}
	}
	return Reply{}, fmt.Errorf("%w (%d)", ErrTransitionLimit, a.cfg.MaxTransitions)
}

// ask 生成问题文本并记录提问状态。同一字段连续追问时使用提醒语。
func (a *Agent) ask(ctx context.Context, f model.Field) (string, error) {
	s := &a.state
	reminder := s.Asked == f && s.Retries > 0
	if s.Asked != f {
		s.Retries = 0
	}
	q, err := a.phraser.Phrase(ctx, QuestionRequest{
		Phase:    s.Phase,
		Field:    f,
		Reminder: reminder,
		Attempt:  s.Retries,
		Customer: s.Customer,
		History:  s.Transcript,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrQuestionGeneration, f, err)
	}
	if f == model.FieldName && s.Phase == model.PhaseGathering {
		s.NameAsked = true
	}
	s.Asked = f
	s.LastQuestion = q
	return q, nil
}

func (a *Agent) reply(done bool) Reply {
	text := strings.Join(a.pending, "\n\n")
	a.pending = a.pending[:0]
	a.appendAssistant(text)
	return Reply{Text: text, Done: done}
}

func (a *Agent) appendUser(text string) {
	a.state.Transcript = append(a.state.Transcript, schema.UserMessage(text))
}

func (a *Agent) appendAssistant(text string) {
	a.state.Transcript = append(a.state.Transcript, schema.AssistantMessage(text, nil))
}

var resetPhrases = map[string]bool{
	"start over": true, "reset": true, "reset quote": true, "restart": true, "new quote": true,
}

func isReset(text string) bool {
	return resetPhrases[strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!")]
}
