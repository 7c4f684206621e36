package model

import "strings"

// CustomerPatch 是一次抽取得到的客户字段更新，nil 表示本轮没有该字段。
// Company 指向空串表示客户明确跳过公司名。
type CustomerPatch struct {
	Name    *string `json:"name,omitempty"`
	Company *string `json:"company,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
}

type RequirementsPatch struct {
	GPM             *float64         `json:"gpm,omitempty"`
	HeadFt          *float64         `json:"head_ft,omitempty"`
	Fluid           *string          `json:"fluid,omitempty"`
	PowerAvailable  *PowerSupply     `json:"power_available,omitempty"`
	Environment     *Environment     `json:"environment,omitempty"`
	MaterialPref    *Material        `json:"material_pref,omitempty"`
	MaintenanceBias *MaintenanceBias `json:"maintenance_bias,omitempty"`
}

// Patch 汇总一轮抽取的全部字段更新。
type Patch struct {
	Customer     CustomerPatch     `json:"customer"`
	Requirements RequirementsPatch `json:"requirements"`
}

func (p CustomerPatch) IsEmpty() bool {
	return p.Name == nil && p.Company == nil && p.Email == nil && p.Phone == nil
}

func (p RequirementsPatch) IsEmpty() bool {
	return p.GPM == nil && p.HeadFt == nil && p.Fluid == nil && p.PowerAvailable == nil &&
		p.Environment == nil && p.MaterialPref == nil && p.MaintenanceBias == nil
}

func (p Patch) IsEmpty() bool { return p.Customer.IsEmpty() && p.Requirements.IsEmpty() }

// Fill 用 other 补齐 p 中为 nil 的字段，已有值不被覆盖。
func (p *Patch) Fill(other Patch) {
	c, o := &p.Customer, other.Customer
	if c.Name == nil {
		c.Name = o.Name
	}
	if c.Company == nil {
		c.Company = o.Company
	}
	if c.Email == nil {
		c.Email = o.Email
	}
	if c.Phone == nil {
		c.Phone = o.Phone
	}
	r, q := &p.Requirements, other.Requirements
	if r.GPM == nil {
		r.GPM = q.GPM
	}
	if r.HeadFt == nil {
		r.HeadFt = q.HeadFt
	}
	if r.Fluid == nil {
		r.Fluid = q.Fluid
	}
	if r.PowerAvailable == nil {
		r.PowerAvailable = q.PowerAvailable
	}
	if r.Environment == nil {
		r.Environment = q.Environment
	}
	if r.MaterialPref == nil {
		r.MaterialPref = q.MaterialPref
	}
	if r.MaintenanceBias == nil {
		r.MaintenanceBias = q.MaintenanceBias
	}
}

// Apply 把补丁合并进客户信息，返回本次新写入的字段。
// 先写者胜：已设置的字段不会被覆盖或清空。
func (c *CustomerInfo) Apply(p CustomerPatch) []Field {
	var set []Field
	if v, ok := nonEmpty(p.Name); ok && !c.Has(FieldName) {
		c.Name = v
		set = append(set, FieldName)
	}
	if p.Company != nil && c.Company == nil {
		v := strings.TrimSpace(*p.Company)
		c.Company = &v
		set = append(set, FieldCompany)
	}
	if v, ok := nonEmpty(p.Email); ok && !c.Has(FieldEmail) {
		c.Email = v
		set = append(set, FieldEmail)
	}
	if v, ok := nonEmpty(p.Phone); ok && !c.Has(FieldPhone) {
		c.Phone = v
		set = append(set, FieldPhone)
	}
	return set
}

// Apply 把补丁合并进需求，非法值（非正数、未知枚举）被忽略。
func (r *PumpRequirements) Apply(p RequirementsPatch) []Field {
	var set []Field
	if p.GPM != nil && *p.GPM > 0 && !r.Has(FieldGPM) {
		r.GPM = *p.GPM
		set = append(set, FieldGPM)
	}
	if p.HeadFt != nil && *p.HeadFt > 0 && !r.Has(FieldHeadFt) {
		r.HeadFt = *p.HeadFt
		set = append(set, FieldHeadFt)
	}
	if v, ok := nonEmpty(p.Fluid); ok && !r.Has(FieldFluid) {
		r.Fluid = v
		set = append(set, FieldFluid)
	}
	if p.PowerAvailable != nil && p.PowerAvailable.Valid() && !r.Has(FieldPower) {
		r.PowerAvailable = *p.PowerAvailable
		set = append(set, FieldPower)
	}
	if p.Environment != nil && p.Environment.Valid() && !r.Has(FieldEnvironment) {
		r.Environment = *p.Environment
		set = append(set, FieldEnvironment)
	}
	if p.MaterialPref != nil && p.MaterialPref.Valid() && !r.Has(FieldMaterial) {
		r.MaterialPref = *p.MaterialPref
		set = append(set, FieldMaterial)
	}
	if p.MaintenanceBias != nil && p.MaintenanceBias.Valid() && !r.Has(FieldMaintenance) {
		r.MaintenanceBias = *p.MaintenanceBias
		set = append(set, FieldMaintenance)
	}
	return set
}

func nonEmpty(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	v := strings.TrimSpace(*p)
	return v, v != ""
}

// Ptr 返回 v 的指针，便于构造补丁。
func Ptr[T any](v T) *T { return &v }
