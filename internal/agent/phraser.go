package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/llm"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

// ErrQuestionGeneration 表示生成下一个问题失败，本轮 Step 以错误结束。
var ErrQuestionGeneration = errors.New("agent: question generation failed")

// QuestionRequest 描述需要生成的问题。
type QuestionRequest struct {
	Phase model.Phase
	Field model.Field
	// Reminder 为 true 表示上一轮没有得到有效回答，需要带提示重新询问
	Reminder bool
	Attempt  int
	Customer model.CustomerInfo
	History  []*schema.Message
}

// Phraser 把待询问的字段变成面向客户的问题文本。
type Phraser interface {
	Phrase(ctx context.Context, req QuestionRequest) (string, error)
}

// TemplatePhraser 使用固定文本，不依赖模型。
type TemplatePhraser struct{}

func (TemplatePhraser) Phrase(_ context.Context, req QuestionRequest) (string, error) {
	q, ok := templateQuestions[req.Field]
	if !ok {
		return "", fmt.Errorf("no question template for field %q", req.Field)
	}
	if req.Field == model.FieldName && req.Phase == model.PhaseGathering {
		q = openingNameQuestion
	}
	if !req.Reminder {
		return q, nil
	}
	// 提醒语随尝试次数变化，避免一字不差地重复
	lead := "Sorry, I didn't catch that."
	if req.Attempt > 1 {
		lead = fmt.Sprintf("I still need %s to continue (attempt %d).", fieldLabel[req.Field], req.Attempt)
	}
	return fmt.Sprintf("%s %s For example: %s.", lead, q, fieldHint[req.Field]), nil
}

// 问题生成图的节点名
const (
	nodeQuestionPrompt = "question_prompt"
	nodeQuestionModel  = "question_model"
	nodeQuestionClean  = "question_clean"
)

// LLMPhraser 让模型按对话上下文措辞问题。模型出错直接返回错误。
//
// 处理流程是一张 eino 图：模板格式化 → 调用 Provider → 清理输出，首次使用时编译。
type LLMPhraser struct {
	provider llm.Provider
	template prompt.ChatTemplate

	once     sync.Once
	runnable compose.Runnable[map[string]any, string]
	buildErr error
}

func NewLLMPhraser(p llm.Provider) *LLMPhraser {
	return &LLMPhraser{provider: p, template: NewQuestionTemplate()}
}

// buildQuestionGraph 构建问题生成图，输入为模板变量，输出为问题文本。
func buildQuestionGraph(ctx context.Context, tpl prompt.ChatTemplate, provider llm.Provider) (compose.Runnable[map[string]any, string], error) {
	g := compose.NewGraph[map[string]any, string]()

	if err := g.AddChatTemplateNode(nodeQuestionPrompt, tpl); err != nil {
		return nil, err
	}
	// 模板固定产出 system + user 两条消息
	err := g.AddLambdaNode(nodeQuestionModel, compose.InvokableLambda(func(ctx context.Context, msgs []*schema.Message) (string, error) {
		if len(msgs) < 2 {
			return "", fmt.Errorf("format question prompt: got %d messages", len(msgs))
		}
		return provider.Chat(ctx, msgs[0].Content, msgs[1].Content, false)
	}))
	if err != nil {
		return nil, err
	}
	err = g.AddLambdaNode(nodeQuestionClean, compose.InvokableLambda(func(_ context.Context, out string) (string, error) {
		out = strings.Trim(strings.TrimSpace(out), `"`)
		if out == "" {
			return "", llm.ErrEmptyResponse
		}
		return out, nil
	}))
	if err != nil {
		return nil, err
	}

	for _, edge := range [][2]string{
		{compose.START, nodeQuestionPrompt},
		{nodeQuestionPrompt, nodeQuestionModel},
		{nodeQuestionModel, nodeQuestionClean},
		{nodeQuestionClean, compose.END},
	} {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}
	return g.Compile(ctx)
}

func (p *LLMPhraser) Phrase(ctx context.Context, req QuestionRequest) (string, error) {
	p.once.Do(func() {
		p.runnable, p.buildErr = buildQuestionGraph(ctx, p.template, p.provider)
	})
	if p.buildErr != nil {
		return "", fmt.Errorf("build question graph: %w", p.buildErr)
	}

	reminder := ""
	if req.Reminder {
		reminder = fmt.Sprintf("The customer's previous answer did not contain this information (attempt %d). Gently remind them what is needed and give a short example.", req.Attempt)
	}
	customer := req.Customer.Name
	if customer == "" {
		customer = "(unknown)"
	}
	return p.runnable.Invoke(ctx, map[string]any{
		"field":    fieldLabel[req.Field],
		"hint":     fieldHint[req.Field],
		"reminder": reminder,
		"customer": customer,
		"history":  renderHistory(req.History, 12),
	})
}

// fallbackPhraser 主 Phraser 失败时改用备用 Phraser。
type fallbackPhraser struct {
	primary  Phraser
	fallback Phraser
	logger   *zap.Logger
}

// WithFallback 组合两个 Phraser，primary 出错时记录日志并使用 fallback。
func WithFallback(primary, fallback Phraser, logger *zap.Logger) Phraser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackPhraser{primary: primary, fallback: fallback, logger: logger}
}

func (f *fallbackPhraser) Phrase(ctx context.Context, req QuestionRequest) (string, error) {
	q, err := f.primary.Phrase(ctx, req)
	if err == nil {
		return q, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	f.logger.Warn("question phrasing failed, using fallback",
		zap.String("field", string(req.Field)), zap.Error(err))
	return f.fallback.Phrase(ctx, req)
}

// renderHistory 把最近 limit 条消息渲染成纯文本。
func renderHistory(history []*schema.Message, limit int) string {
	if len(history) == 0 {
		return "(conversation just started)"
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, m := range history {
		role := "customer"
		if m.Role == schema.Assistant {
			role = "assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
