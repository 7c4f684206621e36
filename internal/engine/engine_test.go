package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func TestQuoteScenarios(t *testing.T) {
	c := defaultCatalog(t)

	cases := []struct {
		name    string
		req     model.PumpRequirements
		family  string
		hp      float64
		seal    model.SealType
		mount   model.Mount
		atex    bool
		list    float64
		net     float64
		bomSize int
	}{
		{
			name: "small single phase budget",
			req: model.PumpRequirements{GPM: 40, HeadFt: 60, Fluid: "water", PowerAvailable: model.Power230V1Ph,
				Environment: model.EnvNonATEX, MaterialPref: model.MaterialCastIron, MaintenanceBias: model.MaintenanceBudget},
			family: "P100", hp: 3, seal: model.SealPacking, mount: model.MountCloseCoupled,
			list: 1765, net: 1412, bomSize: 8,
		},
		{
			name: "three phase low maintenance",
			req: model.PumpRequirements{GPM: 75, HeadFt: 100, Fluid: "water", PowerAvailable: model.Power460V3Ph,
				Environment: model.EnvNonATEX, MaterialPref: model.MaterialCastIron, MaintenanceBias: model.MaintenanceLow},
			family: "P100", hp: 5, seal: model.SealMechanical, mount: model.MountCloseCoupled,
			list: 2385, net: 1908, bomSize: 8,
		},
		{
			name: "atex stainless",
			req: model.PumpRequirements{GPM: 120, HeadFt: 150, Fluid: "solvent", PowerAvailable: model.Power460V3Ph,
				Environment: model.EnvATEX, MaterialPref: model.MaterialStainless, MaintenanceBias: model.MaintenanceLow},
			family: "P200", hp: 10, seal: model.SealMechanical, mount: model.MountBase, atex: true,
			list: 5415, net: 4332, bomSize: 9,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel, err := Select(c, tc.req)
			require.NoError(t, err)
			assert.False(t, sel.Fallback)

			cfg := sel.Config
			assert.Equal(t, tc.family, cfg.Family)
			assert.Equal(t, tc.hp, cfg.MotorHP)
			assert.Equal(t, tc.seal, cfg.SealType)
			assert.Equal(t, tc.mount, cfg.Mount)
			assert.Equal(t, tc.atex, cfg.ATEX)
			assert.Equal(t, tc.req.PowerAvailable, cfg.Voltage)

			res := Validate(cfg, tc.req)
			assert.True(t, res.IsValid, res.Violations)
			assert.Equal(t, SuggestionValid, res.Suggestion)

			p, err := Price(c, cfg)
			require.NoError(t, err)
			assert.InDelta(t, tc.list, p.ListTotal, 0.001)
			assert.InDelta(t, tc.net, p.NetTotal, 0.001)
			assert.Equal(t, 20.0, p.DiscountPercent)
			assert.Len(t, p.BOM, tc.bomSize)
		})
	}
}

func TestSelectFirstMatchWins(t *testing.T) {
	c := defaultCatalog(t)
	base := model.PumpRequirements{PowerAvailable: model.Power460V3Ph, Environment: model.EnvNonATEX}

	// 40/60 同时落在第 1、2 行，取第 1 行
	req := base
	req.GPM, req.HeadFt = 40, 60
	sel, err := Select(c, req)
	require.NoError(t, err)
	assert.Equal(t, 0, sel.RowIndex)
	assert.Equal(t, "IMP-100-S", sel.Config.ImpellerCode)

	// 区间端点是闭区间
	req.GPM, req.HeadFt = 50, 80
	sel, err = Select(c, req)
	require.NoError(t, err)
	assert.Equal(t, 0, sel.RowIndex)

	// 每一行的中点都应当选中该行或者更靠前的行
	for i, row := range c.FlowMap {
		req.GPM = (row.GPM().Min + row.GPM().Max) / 2
		req.HeadFt = (row.Head().Min + row.Head().Max) / 2
		sel, err := Select(c, req)
		require.NoError(t, err)
		assert.LessOrEqual(t, sel.RowIndex, i)
		assert.True(t, c.FlowMap[sel.RowIndex].Matches(req.GPM, req.HeadFt))
	}
}

func TestSelectFallback(t *testing.T) {
	c := defaultCatalog(t)
	req := model.PumpRequirements{GPM: 900, HeadFt: 500, PowerAvailable: model.Power460V3Ph, Environment: model.EnvNonATEX}

	sel, err := Select(c, req)
	require.NoError(t, err)
	assert.True(t, sel.Fallback)
	assert.Equal(t, 0, sel.RowIndex)
	assert.Equal(t, c.FlowMap[0].Family, sel.Config.Family)
}

func TestSelectDerivedFields(t *testing.T) {
	c := defaultCatalog(t)

	// ATEX 且无材质偏好：默认不锈钢
	sel, err := Select(c, model.PumpRequirements{GPM: 120, HeadFt: 150, PowerAvailable: model.Power460V3Ph, Environment: model.EnvATEX})
	require.NoError(t, err)
	assert.Equal(t, model.MaterialStainless, sel.Config.Material)
	assert.Equal(t, model.SealPacking, sel.Config.SealType)
	assert.True(t, sel.Config.ATEX)

	// 非 ATEX 无偏好：默认铸铁；7.5HP 仍为直联
	sel, err = Select(c, model.PumpRequirements{GPM: 100, HeadFt: 50, PowerAvailable: model.Power460V3Ph, Environment: model.EnvNonATEX})
	require.NoError(t, err)
	assert.Equal(t, model.MaterialCastIron, sel.Config.Material)
	assert.Equal(t, 7.5, sel.Config.MotorHP)
	assert.Equal(t, model.MountCloseCoupled, sel.Config.Mount)

	_, err = Select(c, model.PumpRequirements{GPM: 10})
	assert.ErrorContains(t, err, "head_ft")
}

func TestValidateReportsAllViolations(t *testing.T) {
	req := model.PumpRequirements{Environment: model.EnvATEX}

	// 单相 + 10HP + 直联 + ATEX 不合规：三条独立违规
	cfg := model.PumpConfiguration{
		Family: "P200", ImpellerCode: "IMP-200-L", MotorHP: 10, Voltage: model.Power230V1Ph,
		SealType: model.SealPacking, Material: model.MaterialCastIron, Mount: model.MountCloseCoupled, ATEX: true,
	}
	res := Validate(cfg, req)
	assert.False(t, res.IsValid)
	assert.Len(t, res.Violations, 3)
	assert.Equal(t, SuggestionInvalid, res.Suggestion)

	// ATEX 规则只产生一条合并后的违规
	atexOnly := 0
	for _, v := range res.Violations {
		if assert.NotEmpty(t, v) && v[:4] == "ATEX" {
			atexOnly++
		}
	}
	assert.Equal(t, 1, atexOnly)

	// 需求非 ATEX 时不检查 ATEX 组合
	res = Validate(cfg, model.PumpRequirements{Environment: model.EnvNonATEX})
	assert.Len(t, res.Violations, 2)
}

func TestValidateThreePhaseMinimumAndMissingFields(t *testing.T) {
	res := Validate(model.PumpConfiguration{
		Family: "P100", MotorHP: 3, Voltage: model.Power460V3Ph,
		SealType: model.SealPacking, Material: model.MaterialCastIron, Mount: model.MountCloseCoupled,
	}, model.PumpRequirements{Environment: model.EnvNonATEX})
	require.Len(t, res.Violations, 1)
	assert.Contains(t, res.Violations[0], "at least 5 HP")

	res = Validate(model.PumpConfiguration{}, model.PumpRequirements{})
	assert.False(t, res.IsValid)
	assert.Len(t, res.Violations, 6)
}

func TestPriceDiscountRounding(t *testing.T) {
	c := defaultCatalog(t)
	cfg := model.PumpConfiguration{
		Family: "P150", ImpellerCode: "IMP-150-H", MotorHP: 7.5, Voltage: model.Power460V3Ph,
		SealType: model.SealMechanical, Material: model.MaterialStainless, Mount: model.MountCloseCoupled,
	}
	for _, d := range []float64{0, 12.5, 33.333, 50, 99.99, 100} {
		p, err := Price(c, cfg, WithDiscount(d))
		require.NoError(t, err)
		assert.Equal(t, Round2(p.ListTotal*(1-d/100)), p.NetTotal, "discount %v", d)
		assert.Equal(t, d, p.DiscountPercent)
	}

	_, err := Price(c, cfg, WithDiscount(120))
	assert.Error(t, err)
}

func TestPriceATEXLineAndUnits(t *testing.T) {
	c := defaultCatalog(t)
	cfg := model.PumpConfiguration{
		Family: "P200", ImpellerCode: "IMP-200-L", MotorHP: 10, Voltage: model.Power460V3Ph,
		SealType: model.SealMechanical, Material: model.MaterialStainless, Mount: model.MountBase,
	}
	hasATEX := func(p model.Pricing) bool {
		for _, it := range p.BOM {
			if it.SKU == "ATEX-PKG" {
				return true
			}
		}
		return false
	}

	p, err := Price(c, cfg)
	require.NoError(t, err)
	assert.False(t, hasATEX(p))

	cfg.ATEX = true
	p, err = Price(c, cfg)
	require.NoError(t, err)
	assert.True(t, hasATEX(p))
	assert.Equal(t, "CAS-P200-SS", p.BOM[0].SKU)
	assert.Equal(t, "FIN-EPX", p.BOM[len(p.BOM)-1].SKU)

	two, err := Price(c, cfg, WithUnits(2))
	require.NoError(t, err)
	assert.Equal(t, 2, two.BOM[0].Quantity)
	assert.Equal(t, 2*p.BOM[0].UnitPrice, two.BOM[0].ExtendedPrice)
	assert.InDelta(t, 2*p.ListTotal, two.ListTotal, 0.001)
}

func TestPriceMissingKeyIsFatal(t *testing.T) {
	c := defaultCatalog(t)
	cfg := model.PumpConfiguration{
		Family: "P100", ImpellerCode: "IMP-100-S", MotorHP: 4, Voltage: model.Power230V1Ph,
		SealType: model.SealPacking, Material: model.MaterialCastIron, Mount: model.MountCloseCoupled,
	}
	_, err := Price(c, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrPriceNotFound)
}
