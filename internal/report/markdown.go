// Package report 把 Canvas 渲染为可读的报价单。
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

// Markdown 生成报价单的 Markdown 文本。
func Markdown(c model.Canvas) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quote %s\n\n", c.SessionID)
	if !c.Timestamp.IsZero() {
		fmt.Fprintf(&b, "_Issued %s_\n\n", c.Timestamp.UTC().Format(time.RFC1123))
	}

	b.WriteString("## Customer\n\n")
	writeKV(&b, "Name", c.Customer.Name)
	company := c.Customer.CompanyName()
	if company == "" && c.Customer.CompanyResolved() {
		company = "(not provided)"
	}
	writeKV(&b, "Company", company)
	writeKV(&b, "Email", c.Customer.Email)
	writeKV(&b, "Phone", c.Customer.Phone)

	r := c.Requirements
	b.WriteString("\n## Requirements\n\n")
	writeKV(&b, "Flow", fmt.Sprintf("%g GPM", r.GPM))
	writeKV(&b, "Head", fmt.Sprintf("%g ft", r.HeadFt))
	writeKV(&b, "Fluid", r.Fluid)
	writeKV(&b, "Power", string(r.PowerAvailable))
	writeKV(&b, "Environment", string(r.Environment))
	writeKV(&b, "Material", string(r.MaterialPref))
	writeKV(&b, "Maintenance", string(r.MaintenanceBias))

	cfg := c.Configuration
	b.WriteString("\n## Configuration\n\n")
	writeKV(&b, "Family", cfg.Family)
	writeKV(&b, "Impeller", cfg.ImpellerCode)
	writeKV(&b, "Motor", fmt.Sprintf("%g HP, %s", cfg.MotorHP, cfg.Voltage))
	writeKV(&b, "Seal", string(cfg.SealType))
	writeKV(&b, "Material", string(cfg.Material))
	writeKV(&b, "Mount", string(cfg.Mount))
	if cfg.ATEX {
		writeKV(&b, "Certification", "ATEX")
	}
	if c.SelectionFallback {
		b.WriteString("\n> Duty point outside the flow map; default selection used.\n")
	}

	if len(c.Violations) > 0 {
		b.WriteString("\n## Violations\n\n")
		for _, v := range c.Violations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
		fmt.Fprintf(&b, "\nApproval: **%s**\n", c.Approval)
	}

	b.WriteString("\n## Bill of materials\n\n")
	b.WriteString("| SKU | Description | Qty | Unit | Extended |\n")
	b.WriteString("|---|---|---:|---:|---:|\n")
	bom := c.BOM
	if len(bom) == 0 {
		bom = c.Pricing.BOM
	}
	for _, item := range bom {
		fmt.Fprintf(&b, "| %s | %s | %d | $%.2f | $%.2f |\n",
			item.SKU, escapeCell(item.Description), item.Quantity, item.UnitPrice, item.ExtendedPrice)
	}
	fmt.Fprintf(&b, "\n- List total: $%.2f\n- Discount: %g%%\n- **Net total: $%.2f**\n",
		c.Pricing.ListTotal, c.Pricing.DiscountPercent, c.Pricing.NetTotal)

	if c.Rationale != "" {
		b.WriteString("\n## Rationale\n\n")
		b.WriteString(c.Rationale)
		b.WriteString("\n")
	}
	return b.String()
}

// Render 用 glamour 渲染到终端，width<=0 时使用 80 列。
func Render(c model.Canvas, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("init renderer: %w", err)
	}
	out, err := r.Render(Markdown(c))
	if err != nil {
		return "", fmt.Errorf("render quote: %w", err)
	}
	return out, nil
}

func writeKV(b *strings.Builder, k, v string) {
	if v == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", k, v)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
