package model

import (
	"strings"
	"time"
)

// PowerSupply 现场可用电源。
type PowerSupply string

const (
	Power230V1Ph PowerSupply = "230V_1ph"
	Power460V3Ph PowerSupply = "460V_3ph"
)

// Environment 安装环境，ATEX 表示防爆区域。
type Environment string

const (
	EnvATEX    Environment = "ATEX"
	EnvNonATEX Environment = "non-ATEX"
)

type Material string

const (
	MaterialCastIron  Material = "CastIron"
	MaterialStainless Material = "Stainless"
)

type MaintenanceBias string

const (
	MaintenanceBudget MaintenanceBias = "budget"
	MaintenanceLow    MaintenanceBias = "low-maintenance"
)

type SealType string

const (
	SealMechanical SealType = "Mechanical"
	SealPacking    SealType = "Packing"
)

type Mount string

const (
	MountBase         Mount = "Base"
	MountCloseCoupled Mount = "CloseCoupled"
)

func (p PowerSupply) Valid() bool { return p == Power230V1Ph || p == Power460V3Ph }

func (e Environment) Valid() bool { return e == EnvATEX || e == EnvNonATEX }

func (m Material) Valid() bool { return m == MaterialCastIron || m == MaterialStainless }

func (b MaintenanceBias) Valid() bool { return b == MaintenanceBudget || b == MaintenanceLow }

// Phase 会话状态机的阶段。
type Phase string

const (
	PhaseGathering    Phase = "gathering"
	PhaseCustomerInfo Phase = "customer_info"
	PhaseProposing    Phase = "proposing"
	PhaseValidating   Phase = "validating"
	PhasePricing      Phase = "pricing"
	PhaseComplete     Phase = "complete"
)

// Field 标识会话中可以被询问/抽取的一个字段。
type Field string

const (
	FieldName    Field = "name"
	FieldCompany Field = "company"
	FieldContact Field = "email_or_phone"

	FieldGPM         Field = "gpm"
	FieldHeadFt      Field = "head_ft"
	FieldFluid       Field = "fluid"
	FieldPower       Field = "power_available"
	FieldEnvironment Field = "environment"
	FieldMaterial    Field = "material_pref"
	FieldMaintenance Field = "maintenance_bias"

	// FieldEmail/FieldPhone 只用于抽取结果，询问时统一为 FieldContact。
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
)

// RequirementOrder 是选型字段的固定询问顺序。
var RequirementOrder = []Field{
	FieldGPM,
	FieldHeadFt,
	FieldFluid,
	FieldPower,
	FieldEnvironment,
	FieldMaterial,
	FieldMaintenance,
}

// CustomerOrder 是客户信息的固定询问顺序。
var CustomerOrder = []Field{FieldName, FieldCompany, FieldContact}

// IsCustomerField 判断字段是否属于客户信息组。
func (f Field) IsCustomerField() bool {
	switch f {
	case FieldName, FieldCompany, FieldContact, FieldEmail, FieldPhone:
		return true
	}
	return false
}

// CustomerInfo 客户信息。
//
// Company 是三态字段：nil 表示尚未询问/回答；指向空串表示客户明确跳过；
// 非空表示已提供。
type CustomerInfo struct {
	Name    string  `json:"name"`
	Company *string `json:"company"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
}

func (c CustomerInfo) HasContact() bool {
	return strings.TrimSpace(c.Email) != "" || strings.TrimSpace(c.Phone) != ""
}

func (c CustomerInfo) CompanyResolved() bool { return c.Company != nil }

// CompanyName 返回公司名；跳过或未设置时为空串。
func (c CustomerInfo) CompanyName() string {
	if c.Company == nil {
		return ""
	}
	return *c.Company
}

// Has 判断某个客户字段是否已经满足。
func (c CustomerInfo) Has(f Field) bool {
	switch f {
	case FieldName:
		return strings.TrimSpace(c.Name) != ""
	case FieldCompany:
		return c.CompanyResolved()
	case FieldContact:
		return c.HasContact()
	case FieldEmail:
		return strings.TrimSpace(c.Email) != ""
	case FieldPhone:
		return strings.TrimSpace(c.Phone) != ""
	}
	return false
}

// FirstMissing 按 name → company → email_or_phone 顺序返回第一个缺失项。
func (c CustomerInfo) FirstMissing() (Field, bool) {
	for _, f := range CustomerOrder {
		if !c.Has(f) {
			return f, true
		}
	}
	return "", false
}

// PumpRequirements 选型需求。零值（0 或空串）表示缺失。
type PumpRequirements struct {
	GPM             float64         `json:"gpm,omitempty"`
	HeadFt          float64         `json:"head_ft,omitempty"`
	Fluid           string          `json:"fluid,omitempty"`
	PowerAvailable  PowerSupply     `json:"power_available,omitempty"`
	Environment     Environment     `json:"environment,omitempty"`
	MaterialPref    Material        `json:"material_pref,omitempty"`
	MaintenanceBias MaintenanceBias `json:"maintenance_bias,omitempty"`
}

func (r PumpRequirements) Has(f Field) bool {
	switch f {
	case FieldGPM:
		return r.GPM > 0
	case FieldHeadFt:
		return r.HeadFt > 0
	case FieldFluid:
		return strings.TrimSpace(r.Fluid) != ""
	case FieldPower:
		return r.PowerAvailable != ""
	case FieldEnvironment:
		return r.Environment != ""
	case FieldMaterial:
		return r.MaterialPref != ""
	case FieldMaintenance:
		return r.MaintenanceBias != ""
	}
	return false
}

func (r PumpRequirements) Missing() []Field {
	var out []Field
	for _, f := range RequirementOrder {
		if !r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (r PumpRequirements) FirstMissing() (Field, bool) {
	missing := r.Missing()
	if len(missing) == 0 {
		return "", false
	}
	return missing[0], true
}

func (r PumpRequirements) Complete() bool { return len(r.Missing()) == 0 }

// PumpConfiguration 由需求和目录确定性推导出的泵配置。
type PumpConfiguration struct {
	Family       string      `json:"family"`
	ImpellerCode string      `json:"impeller_code"`
	MotorHP      float64     `json:"motor_hp"`
	Voltage      PowerSupply `json:"voltage"`
	SealType     SealType    `json:"seal_type"`
	Material     Material    `json:"material"`
	Mount        Mount       `json:"mount"`
	ATEX         bool        `json:"atex"`
}

type ValidationResult struct {
	IsValid    bool     `json:"is_valid"`
	Violations []string `json:"violations"`
	Suggestion string   `json:"suggestion"`
}

// BOMItem 物料清单中的一行。ExtendedPrice = Quantity × UnitPrice，保留全部精度。
type BOMItem struct {
	SKU           string  `json:"sku"`
	Description   string  `json:"description"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	ExtendedPrice float64 `json:"extended_price"`
}

type Pricing struct {
	ListTotal       float64   `json:"list_total"`
	DiscountPercent float64   `json:"discount_percent"`
	NetTotal        float64   `json:"net_total"`
	BOM             []BOMItem `json:"bom"`
}

// ApprovalOutcome 记录校验失败后外部审批信号的结果。
type ApprovalOutcome string

const (
	ApprovalNotRequired ApprovalOutcome = "not_required"
	ApprovalApproved    ApprovalOutcome = "approved"
	ApprovalRejected    ApprovalOutcome = "rejected"
	ApprovalTimedOut    ApprovalOutcome = "timed_out"
)

// Canvas 是会话完成后交给持久化层的最终报价包。
type Canvas struct {
	SessionID         string            `json:"session_id"`
	Customer          CustomerInfo      `json:"customer"`
	Requirements      PumpRequirements  `json:"requirements"`
	Configuration     PumpConfiguration `json:"configuration"`
	SelectionFallback bool              `json:"selection_fallback"`
	Violations        []string          `json:"violations"`
	Rationale         string            `json:"rationale"`
	Approval          ApprovalOutcome   `json:"approval"`
	BOM               []BOMItem         `json:"bom"`
	Pricing           Pricing           `json:"pricing"`
	Timestamp         time.Time         `json:"timestamp"`
}
