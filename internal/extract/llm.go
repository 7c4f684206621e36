package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/llm"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

const extractSystemPrompt = `You extract structured data for an industrial pump quotation.
The conversation is currently in the "{phase}" phase.
Read the assistant's last question and the customer's answer, then reply with ONE JSON object.
Use only these keys:
{fields}
Rules:
- Include a key only when the answer states it; use null otherwise.
- Never guess or invent values, and never copy values from the question.
- Numbers must be plain numbers without units.
- Reply with the JSON object only.`

const extractUserPrompt = `Question: {question}
Answer: {answer}`

const customerFields = `- "name": the customer's name
- "company": the company name
- "company_skipped": true when the customer declines to name a company or buys for personal/home use
- "email": email address
- "phone": phone number`

const requirementFields = `- "gpm": flow rate in US gallons per minute (number)
- "head_ft": total head in feet (number)
- "fluid": short fluid category such as water, wastewater, oil, chemical, slurry, fuel
- "power_available": "230V_1ph" or "460V_3ph"
- "environment": "ATEX" for explosive/hazardous areas, otherwise "non-ATEX"
- "material_pref": "CastIron" or "Stainless"
- "maintenance_bias": "budget" or "low-maintenance"`

// LLMStrategy 让语言模型按当前阶段对应的字段集返回 JSON，再清洗后转换为补丁。
type LLMStrategy struct {
	provider llm.Provider
	template prompt.ChatTemplate
	logger   *zap.Logger
}

func NewLLMStrategy(p llm.Provider, logger *zap.Logger) *LLMStrategy {
	if p == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMStrategy{
		provider: p,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(extractSystemPrompt),
			schema.UserMessage(extractUserPrompt),
		),
		logger: logger,
	}
}

func (s *LLMStrategy) Name() string { return "llm:" + s.provider.Name() }

func (s *LLMStrategy) Extract(ctx context.Context, req Request) (model.Patch, error) {
	if strings.TrimSpace(req.Message) == "" {
		return model.Patch{}, nil
	}
	customerGroup := wantsCustomerFields(req)
	fields := requirementFields
	if customerGroup {
		fields = customerFields
	}
	question := req.Question
	if question == "" {
		question = "(no specific question)"
	}

	msgs, err := s.template.Format(ctx, map[string]any{
		"phase":    string(req.Phase),
		"fields":   fields,
		"question": question,
		"answer":   req.Message,
	})
	if err != nil {
		return model.Patch{}, fmt.Errorf("format extraction prompt: %w", err)
	}
	if len(msgs) < 2 {
		return model.Patch{}, fmt.Errorf("format extraction prompt: got %d messages", len(msgs))
	}

	reply, err := s.provider.Chat(ctx, msgs[0].Content, msgs[1].Content, true)
	if err != nil {
		return model.Patch{}, err
	}

	var raw map[string]any
	if !llm.DecodeFirstJSON(reply, &raw) {
		// 格式错误视为什么都没抽到，交给兜底策略
		s.logger.Debug("no json object in extraction reply", zap.Int("reply_len", len(reply)))
		return model.Patch{}, nil
	}
	flattenGroups(raw)

	var p model.Patch
	if customerGroup {
		p.Customer = customerPatchFrom(raw)
	} else {
		p.Requirements = requirementsPatchFrom(raw)
	}
	return p, nil
}

// wantsCustomerFields 根据当前提问的字段（没有提问时按阶段）选择字段集。
func wantsCustomerFields(req Request) bool {
	if req.Asked != "" {
		return req.Asked.IsCustomerField()
	}
	return req.Phase == model.PhaseCustomerInfo
}

// flattenGroups 兼容模型把字段嵌套在 customer/requirements 下的回复。
func flattenGroups(raw map[string]any) {
	for _, group := range []string{"customer", "requirements"} {
		nested, ok := raw[group].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range nested {
			if _, exists := raw[k]; !exists {
				raw[k] = v
			}
		}
	}
}

func customerPatchFrom(raw map[string]any) model.CustomerPatch {
	var c model.CustomerPatch
	if v, ok := cleanString(raw["name"]); ok {
		c.Name = &v
	}
	if v, ok := cleanString(raw["company"]); ok {
		c.Company = &v
	} else if skipped, _ := raw["company_skipped"].(bool); skipped {
		c.Company = model.Ptr("")
	}
	if v, ok := cleanString(raw["email"]); ok && emailRe.MatchString(v) {
		c.Email = &v
	}
	if v, ok := cleanString(raw["phone"]); ok && countDigits(v) >= 7 {
		c.Phone = &v
	}
	return c
}

func requirementsPatchFrom(raw map[string]any) model.RequirementsPatch {
	var r model.RequirementsPatch
	if v, ok := cleanNumber(raw["gpm"]); ok {
		r.GPM = &v
	}
	if v, ok := cleanNumber(raw["head_ft"]); ok {
		r.HeadFt = &v
	}
	if v, ok := cleanString(raw["fluid"]); ok {
		if known, hit := MatchFluid(strings.ToLower(v)); hit {
			v = known
		}
		r.Fluid = model.Ptr(strings.ToLower(v))
	}
	if v, ok := cleanString(raw["power_available"]); ok {
		if p, hit := MatchPower(strings.ToLower(v), true); hit {
			r.PowerAvailable = &p
		}
	}
	if v, ok := cleanString(raw["environment"]); ok {
		if e, hit := MatchEnvironment(strings.ToLower(v), false); hit {
			r.Environment = &e
		}
	}
	if v, ok := cleanString(raw["material_pref"]); ok {
		if m, hit := MatchMaterial(strings.ToLower(v), false); hit {
			r.MaterialPref = &m
		}
	}
	if v, ok := cleanString(raw["maintenance_bias"]); ok {
		if b, hit := MatchMaintenance(strings.ToLower(v), false); hit {
			r.MaintenanceBias = &b
		}
	}
	return r
}

var nullish = map[string]bool{
	"": true, "null": true, "nil": true, "none": true, "unknown": true, "n/a": true,
	"na": true, "not provided": true, "not specified": true, "not given": true, "undefined": true,
}

// cleanString 拒绝空值和 "null" 之类的占位文本。
func cleanString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if nullish[strings.ToLower(s)] {
			return "", false
		}
		return s, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

func cleanNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, t > 0
	case string:
		m := numberRe.FindString(t)
		if m == "" {
			return 0, false
		}
		f := parseFloat(m)
		return f, f > 0
	}
	return 0, false
}
