package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

func setQuoteFlags(t *testing.T, gpm, head float64, power, env, material, maintenance string) {
	t.Helper()
	old := []any{quoteGPM, quoteHead, quotePower, quoteEnvironment, quoteMaterial, quoteMaintenance, quoteFluid}
	t.Cleanup(func() {
		quoteGPM, quoteHead = old[0].(float64), old[1].(float64)
		quotePower, quoteEnvironment = old[2].(string), old[3].(string)
		quoteMaterial, quoteMaintenance, quoteFluid = old[4].(string), old[5].(string), old[6].(string)
	})
	quoteGPM, quoteHead = gpm, head
	quotePower, quoteEnvironment, quoteMaterial, quoteMaintenance = power, env, material, maintenance
	quoteFluid = "water"
}

func TestQuoteRequirementsNormalizesFlags(t *testing.T) {
	setQuoteFlags(t, 40, 60, "230V", "non-ATEX", "CastIron", "budget")
	req, err := quoteRequirements()
	require.NoError(t, err)
	assert.Equal(t, model.Power230V1Ph, req.PowerAvailable)
	assert.Equal(t, model.EnvNonATEX, req.Environment)
	assert.Equal(t, model.MaterialCastIron, req.MaterialPref)
	assert.Equal(t, model.MaintenanceBudget, req.MaintenanceBias)

	setQuoteFlags(t, 40, 60, "460V_3ph", "ATEX", "ss", "low-maintenance")
	req, err = quoteRequirements()
	require.NoError(t, err)
	assert.Equal(t, model.Power460V3Ph, req.PowerAvailable)
	assert.Equal(t, model.EnvATEX, req.Environment)
	assert.Equal(t, model.MaterialStainless, req.MaterialPref)
	assert.Equal(t, model.MaintenanceLow, req.MaintenanceBias)
}

func TestQuoteRequirementsRejectsBadInput(t *testing.T) {
	setQuoteFlags(t, 0, 60, "230V", "non-ATEX", "CastIron", "budget")
	_, err := quoteRequirements()
	assert.Error(t, err)

	setQuoteFlags(t, 40, 60, "dc", "non-ATEX", "CastIron", "budget")
	_, err = quoteRequirements()
	assert.ErrorContains(t, err, "供电")
}

func TestBuildQuote(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	setQuoteFlags(t, 40, 60, "230V", "non-ATEX", "CastIron", "budget")
	req, err := quoteRequirements()
	require.NoError(t, err)

	c, err := buildQuote(cat, req, -1)
	require.NoError(t, err)
	assert.Empty(t, c.Violations)
	assert.Equal(t, model.ApprovalNotRequired, c.Approval)
	assert.Equal(t, 1765.0, c.Pricing.ListTotal)
	assert.Equal(t, 1412.0, c.Pricing.NetTotal)

	c, err = buildQuote(cat, req, 0)
	require.NoError(t, err)
	assert.Equal(t, 1765.0, c.Pricing.NetTotal)
}

func TestBuildQuoteWithViolations(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	setQuoteFlags(t, 75, 100, "230V", "non-ATEX", "CastIron", "budget")
	req, err := quoteRequirements()
	require.NoError(t, err)

	c, err := buildQuote(cat, req, -1)
	require.NoError(t, err)
	assert.NotEmpty(t, c.Violations)
	assert.Equal(t, model.ApprovalTimedOut, c.Approval)
	assert.NotEmpty(t, c.BOM)
}

func TestPrintQuoteFormats(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	setQuoteFlags(t, 40, 60, "230V", "non-ATEX", "CastIron", "budget")
	req, err := quoteRequirements()
	require.NoError(t, err)
	c, err := buildQuote(cat, req, -1)
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, printQuote(&text, c, "text"))
	assert.Contains(t, text.String(), "Net total:  1412.00")
	assert.Contains(t, text.String(), c.BOM[0].SKU)

	var js bytes.Buffer
	require.NoError(t, printQuote(&js, c, "json"))
	var decoded model.Canvas
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, c.Pricing.NetTotal, decoded.Pricing.NetTotal)

	var md bytes.Buffer
	require.NoError(t, printQuote(&md, c, "markdown"))
	assert.Contains(t, md.String(), "**Net total: $1412.00**")

	assert.Error(t, printQuote(&bytes.Buffer{}, c, "xml"))
}
