package engine

import (
	"fmt"
	"strings"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

// 电机功率不超过该值时采用直联安装，否则采用底座安装。
const closeCoupledMaxHP = 7.5

// Selection 是一次选型的结果。
// Fallback 为 true 表示选型表没有任何一行命中，使用了表中第一行作为默认值。
type Selection struct {
	Config   model.PumpConfiguration
	Row      catalog.FlowRow
	RowIndex int
	Fallback bool
}

// Select 根据需求从目录中推导泵配置。
//
// 选型表按原始顺序线性扫描，取第一条 gpm/扬程 同时落入闭区间的记录；
// 全部未命中时退回第一行，不返回错误。
func Select(c *catalog.Catalog, req model.PumpRequirements) (Selection, error) {
	if c == nil || len(c.FlowMap) == 0 {
		return Selection{}, fmt.Errorf("select: catalog has no flow map")
	}
	var missing []string
	for _, f := range []model.Field{model.FieldGPM, model.FieldHeadFt, model.FieldPower, model.FieldEnvironment} {
		if !req.Has(f) {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return Selection{}, fmt.Errorf("select: requirements missing %s", strings.Join(missing, ", "))
	}

	sel := Selection{RowIndex: -1}
	for i, row := range c.FlowMap {
		if row.Matches(req.GPM, req.HeadFt) {
			sel.Row, sel.RowIndex = row, i
			break
		}
	}
	if sel.RowIndex < 0 {
		sel.Row, sel.RowIndex, sel.Fallback = c.FlowMap[0], 0, true
	}

	atex := req.Environment == model.EnvATEX
	cfg := model.PumpConfiguration{
		Family:       sel.Row.Family,
		ImpellerCode: sel.Row.ImpellerCode,
		MotorHP:      sel.Row.MotorHP,
		Voltage:      req.PowerAvailable,
		SealType:     model.SealPacking,
		Material:     req.MaterialPref,
		Mount:        model.MountBase,
		ATEX:         atex,
	}
	if req.MaintenanceBias == model.MaintenanceLow {
		cfg.SealType = model.SealMechanical
	}
	if cfg.Material == "" {
		cfg.Material = model.MaterialCastIron
		if atex {
			cfg.Material = model.MaterialStainless
		}
	}
	if cfg.MotorHP <= closeCoupledMaxHP {
		cfg.Mount = model.MountCloseCoupled
	}
	sel.Config = cfg
	return sel, nil
}
