package storage

import "time"

// Quote 表示一份已完成的报价（会话结束时交付的 Canvas）。
//
// 常用检索字段（客户、系列、金额）单独成列，完整内容以 JSON 存放在 CanvasJSON 中，
// 便于以后扩展 Canvas 字段而不需要迁移表结构。
type Quote struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// SessionID 为会话 ID，一个会话最多落盘一份报价。
	SessionID string `gorm:"size:64;not null;uniqueIndex"`
	// CustomerName/Company/Email/Phone 为客户信息快照。Company 为空可能表示客户选择跳过。
	CustomerName string `gorm:"size:255;index"`
	Company      string `gorm:"size:255"`
	Email        string `gorm:"size:255"`
	Phone        string `gorm:"size:64"`
	// Family/MotorHP/ATEX 为选型结果摘要。
	Family  string  `gorm:"size:32;not null;index"`
	MotorHP float64 `gorm:"not null"`
	ATEX    bool    `gorm:"not null"`
	// Valid 为校验是否通过；未通过的报价仍然会落盘，违规项保留在 CanvasJSON 中。
	Valid bool `gorm:"not null;index"`
	// Approval 为审批结果（not_required/approved/rejected/timed_out）。
	Approval string `gorm:"size:32"`
	// ListTotal/DiscountPercent/NetTotal 为报价金额（已四舍五入到分）。
	ListTotal       float64 `gorm:"not null"`
	DiscountPercent float64 `gorm:"not null"`
	NetTotal        float64 `gorm:"not null"`
	// CanvasJSON 为完整 Canvas 的 JSON。
	CanvasJSON string `gorm:"type:text;not null"`
	// QuotedAt 为报价生成时间（Canvas 时间戳）。
	QuotedAt time.Time `gorm:"not null;index"`
	// CreatedAt 为写入数据库时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

// AuditRecord 记录一次模型调用及其结果，用于审计、追溯与排障。
//
// 一条记录对应一次 Provider.Chat 调用（抽取或问题生成）。
// 提示词与回复以截断后的文本存放。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一次 Step 内的所有调用。
	TraceID string `gorm:"size:64;index"`
	// SessionID 为所属会话（可选）。
	SessionID string `gorm:"size:64;index"`
	// Action 为调用动作，例如 llm.openai.chat。
	Action string `gorm:"size:128;not null;index"`
	// ParamsJSON 存放调用入参（system/user 提示词等）。
	ParamsJSON string `gorm:"type:text"`
	// ResultJSON 存放模型原始回复。
	ResultJSON string `gorm:"type:text"`
	// Status 为 running/success/failed。
	Status string `gorm:"size:32;not null;index"`
	// ErrorMessage 存放失败时的错误信息。
	ErrorMessage string `gorm:"type:text"`
	// StartedAt/FinishedAt 为调用起止时间。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time `gorm:"index"`
	// CreatedAt 为记录写入数据库的时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}
