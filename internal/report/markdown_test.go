package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

func sampleCanvas() model.Canvas {
	bom := []model.BOMItem{
		{SKU: "CAS-P100-CI", Description: "P100 casing, cast iron", Quantity: 1, UnitPrice: 500, ExtendedPrice: 500},
		{SKU: "MTR-3-230V_1ph", Description: "3 HP motor | 230V", Quantity: 1, UnitPrice: 700, ExtendedPrice: 700},
	}
	return model.Canvas{
		SessionID: "sess-42",
		Customer:  model.CustomerInfo{Name: "Dana", Company: model.Ptr(""), Email: "dana@example.com"},
		Requirements: model.PumpRequirements{
			GPM: 40, HeadFt: 60, Fluid: "water", PowerAvailable: model.Power230V1Ph,
			Environment: model.EnvNonATEX, MaterialPref: model.MaterialCastIron, MaintenanceBias: model.MaintenanceBudget,
		},
		Configuration: model.PumpConfiguration{Family: "P100", ImpellerCode: "IMP-100-S", MotorHP: 3,
			Voltage: model.Power230V1Ph, SealType: model.SealPacking, Material: model.MaterialCastIron, Mount: model.MountCloseCoupled},
		Violations: []string{},
		Approval:   model.ApprovalNotRequired,
		Rationale:  "Selected P100 with a 3 HP motor for 40 GPM at 60 ft.",
		BOM:        bom,
		Pricing:    model.Pricing{ListTotal: 1765, DiscountPercent: 20, NetTotal: 1412, BOM: bom},
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleCanvas())

	assert.True(t, strings.HasPrefix(md, "# Quote sess-42\n"))
	assert.Contains(t, md, "- **Company:** (not provided)")
	assert.Contains(t, md, "| CAS-P100-CI | P100 casing, cast iron | 1 | $500.00 | $500.00 |")
	assert.Contains(t, md, `3 HP motor \| 230V`)
	assert.Contains(t, md, "**Net total: $1412.00**")
	assert.Contains(t, md, "## Rationale")
	assert.NotContains(t, md, "## Violations")
}

func TestMarkdownViolations(t *testing.T) {
	c := sampleCanvas()
	c.Violations = []string{"Flow 75 GPM exceeds the P100 limit."}
	c.Approval = model.ApprovalTimedOut
	md := Markdown(c)
	assert.Contains(t, md, "## Violations")
	assert.Contains(t, md, "- Flow 75 GPM exceeds the P100 limit.")
	assert.Contains(t, md, "Approval: **timed_out**")
}

func TestRender(t *testing.T) {
	out, err := Render(sampleCanvas(), 100)
	require.NoError(t, err)
	assert.Contains(t, out, "sess-42")
	assert.Contains(t, out, "1412.00")
}
