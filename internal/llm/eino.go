package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoProvider 把任意 eino ChatModel 适配为 Provider。
// eino 没有统一的 JSON 模式开关，forceJSON 只体现在提示词里，由 FirstJSONObject 兜底解析。
type EinoProvider struct {
	name  string
	model einomodel.BaseChatModel
}

func NewEinoProvider(name string, m einomodel.BaseChatModel) *EinoProvider {
	return &EinoProvider{name: name, model: m}
}

// NewArkProvider 初始化火山方舟 ChatModel。
func NewArkProvider(ctx context.Context, cfg Config) (*EinoProvider, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return NewEinoProvider(ProviderArk, chatModel), nil
}

func (p *EinoProvider) Name() string { return p.name }

func (p *EinoProvider) Chat(ctx context.Context, system, user string, forceJSON bool) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs, schema.UserMessage(user))

	out, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", p.name, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Content, nil
}
