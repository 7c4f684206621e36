package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("80-150")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 80, Max: 150}, r)
	assert.True(t, r.Contains(80))
	assert.True(t, r.Contains(150))
	assert.False(t, r.Contains(150.01))
	assert.Equal(t, "80-150", r.String())

	r, err = ParseRange(" 0 - 7.5 ")
	require.NoError(t, err)
	assert.Equal(t, 7.5, r.Max)

	for _, bad := range []string{"", "10", "a-b", "20-10", "-5-10"} {
		_, err := ParseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 20.0, c.DefaultDiscountPercent)
	require.NotEmpty(t, c.FlowMap)
	assert.Equal(t, "P100", c.FlowMap[0].Family)
	assert.True(t, c.FlowMap[0].Matches(40, 60))
	assert.False(t, c.FlowMap[0].Matches(75, 100))

	fam, ok := c.FamilyByCode("P200")
	require.True(t, ok)
	assert.Equal(t, 10.0, fam.MaxHP)

	p, err := c.Casing("P100", model.MaterialCastIron)
	require.NoError(t, err)
	assert.Equal(t, 600.0, p.Price)

	p, err = c.Motor(7.5, model.Power460V3Ph)
	require.NoError(t, err)
	assert.Equal(t, "MTR-7.5-460-3", p.SKU)

	p, err = c.ATEXPackage()
	require.NoError(t, err)
	assert.Equal(t, 850.0, p.Price)
}

// 每个选型行派生出的叶轮和电机在价格表中都必须存在
func TestDefaultCatalogFlowRowsArePriced(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	for _, row := range c.FlowMap {
		_, err := c.Impeller(row.ImpellerCode)
		assert.NoError(t, err, row.ImpellerCode)
		for _, v := range []model.PowerSupply{model.Power230V1Ph, model.Power460V3Ph} {
			_, err := c.Motor(row.MotorHP, v)
			assert.NoError(t, err, "%g/%s", row.MotorHP, v)
		}
		for _, m := range []model.Material{model.MaterialCastIron, model.MaterialStainless} {
			_, err := c.Casing(row.Family, m)
			assert.NoError(t, err, "%s/%s", row.Family, m)
		}
	}
}

func TestLookupMissingKey(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, err = c.Motor(15, model.Power460V3Ph)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPriceNotFound))
	assert.Contains(t, err.Error(), "15HP")

	_, err = c.Casing("P999", model.MaterialStainless)
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestParseRejectsBadCatalog(t *testing.T) {
	_, err := Parse([]byte("default_discount_percent: 10\nflow_map: []\n"))
	assert.ErrorContains(t, err, "flow_map is empty")

	_, err = Parse([]byte(`
default_discount_percent: 120
flow_map:
  - {gpm_range: "0-10", head_range: "0-10", family: X, motor_hp: 1, impeller_code: I}
`))
	assert.ErrorContains(t, err, "out of [0,100]")

	_, err = Parse([]byte(`
flow_map:
  - {gpm_range: "ten", head_range: "0-10", family: X, motor_hp: 1, impeller_code: I}
`))
	assert.ErrorContains(t, err, "gpm_range")

	_, err = Parse([]byte("flow_map: [oops"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_discount_percent: 5
flow_map:
  - {gpm_range: "0-10", head_range: "0-10", family: X1, motor_hp: 1, impeller_code: IX}
prices:
  fasteners: {sku: F, description: f, price: 1}
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, c.DefaultDiscountPercent)
	assert.Equal(t, "X1", c.FlowMap[0].Family)

	_, err = c.Finish()
	assert.ErrorIs(t, err, ErrPriceNotFound)

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 20.0, c.DefaultDiscountPercent)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateHandBuiltCatalog(t *testing.T) {
	c := &Catalog{DefaultDiscountPercent: 10}
	assert.Error(t, c.Validate())

	c.FlowMap = []FlowRow{{GPMRange: "0-50", HeadRange: "0-80", Family: "P100", MotorHP: 3, ImpellerCode: "I-100-S"}}
	require.NoError(t, c.Validate())
	assert.True(t, c.FlowMap[0].Matches(40, 60))
	assert.Equal(t, Range{Min: 0, Max: 50}, c.FlowMap[0].GPM())

	_, err := c.Coupling()
	assert.True(t, errors.Is(err, ErrPriceNotFound))
}
