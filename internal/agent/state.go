package agent

import (
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

// State 是一个会话的全部状态，只由所属的 Agent 修改。
type State struct {
	SessionID string      `json:"session_id"`
	Phase     model.Phase `json:"phase"`

	Customer     model.CustomerInfo     `json:"customer"`
	Requirements model.PumpRequirements `json:"requirements"`

	Configuration     *model.PumpConfiguration `json:"configuration,omitempty"`
	SelectionFallback bool                     `json:"selection_fallback"`
	Validation        *model.ValidationResult  `json:"validation,omitempty"`
	Approval          model.ApprovalOutcome    `json:"approval,omitempty"`
	ApprovalNote      string                   `json:"approval_note,omitempty"`
	Pricing           *model.Pricing           `json:"pricing,omitempty"`

	// 对话记录 (User / Assistant 消息)
	Transcript []*schema.Message `json:"transcript"`

	// Asked 是最近一次提问的字段，LastQuestion 是对应的问题原文
	Asked        model.Field `json:"asked,omitempty"`
	LastQuestion string      `json:"last_question,omitempty"`
	// Retries 是当前字段连续没有得到有效回答的次数
	Retries int `json:"retries"`
	// NameAsked 开场已经问过一次姓名，之后不再在 gathering 阶段重复询问
	NameAsked bool `json:"name_asked"`

	CompletedAt time.Time `json:"completed_at,omitempty"`
}

func newState(sessionID string, seed model.CustomerInfo) State {
	return State{
		SessionID:  sessionID,
		Phase:      model.PhaseGathering,
		Customer:   seed,
		Transcript: make([]*schema.Message, 0, 16),
	}
}

// clone 返回可以安全交给调用方的副本。
func (s State) clone() State {
	out := s
	if s.Customer.Company != nil {
		out.Customer.Company = model.Ptr(*s.Customer.Company)
	}
	if s.Configuration != nil {
		cfg := *s.Configuration
		out.Configuration = &cfg
	}
	if s.Validation != nil {
		v := *s.Validation
		v.Violations = append([]string(nil), s.Validation.Violations...)
		out.Validation = &v
	}
	if s.Pricing != nil {
		p := *s.Pricing
		p.BOM = append([]model.BOMItem(nil), s.Pricing.BOM...)
		out.Pricing = &p
	}
	out.Transcript = make([]*schema.Message, len(s.Transcript))
	for i, m := range s.Transcript {
		if m == nil {
			continue
		}
		cp := *m
		out.Transcript[i] = &cp
	}
	return out
}

// resetQuote 清空选型相关的累计数据，客户信息和对话记录保留。
func (s *State) resetQuote() {
	s.Phase = model.PhaseGathering
	s.Requirements = model.PumpRequirements{}
	s.Configuration = nil
	s.SelectionFallback = false
	s.Validation = nil
	s.Approval = ""
	s.ApprovalNote = ""
	s.Pricing = nil
	s.Asked = ""
	s.LastQuestion = ""
	s.Retries = 0
}

// has 判断某个可询问字段是否已经满足。
func (s *State) has(f model.Field) bool {
	if f.IsCustomerField() {
		return s.Customer.Has(f)
	}
	return s.Requirements.Has(f)
}
