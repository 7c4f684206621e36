package server

import "github.com/wwwzy/PumpCPQ/internal/model"

// CustomerSeed 是创建会话时可选的客户信息。Company 为 null 表示未知，"" 表示明确不提供。
type CustomerSeed struct {
	Name    string  `json:"name"`
	Company *string `json:"company"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
}

func (c *CustomerSeed) toModel() model.CustomerInfo {
	if c == nil {
		return model.CustomerInfo{}
	}
	return model.CustomerInfo{Name: c.Name, Company: c.Company, Email: c.Email, Phone: c.Phone}
}

// CreateSessionRequest 是 POST /api/v1/sessions 的请求体。
type CreateSessionRequest struct {
	Customer *CustomerSeed `json:"customer,omitempty"`
}

// StepRequest 是 POST /api/v1/sessions/:id/steps 的请求体。Text 缺省表示没有新的用户输入。
type StepRequest struct {
	Text *string `json:"text"`
}

type ApprovalRequest struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note"`
}

// ReplyResponse 是创建会话和每一轮 Step 的响应。
type ReplyResponse struct {
	SessionID string      `json:"session_id"`
	Reply     string      `json:"reply"`
	Done      bool        `json:"done"`
	Phase     model.Phase `json:"phase"`
	Asked     model.Field `json:"asked,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Error    string `json:"error,omitempty"`
}
