package agent

import (
	"fmt"
	"strings"

	"github.com/wwwzy/PumpCPQ/internal/engine"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

const closingMessage = "Your quote is complete. Start a new session if you need another configuration."

func proposalText(sel engine.Selection) string {
	cfg := sel.Config
	var b strings.Builder
	fmt.Fprintf(&b, "Proposed configuration: %s pump, impeller %s, %g HP motor (%s), %s seal, %s construction, %s mount",
		cfg.Family, cfg.ImpellerCode, cfg.MotorHP, cfg.Voltage, cfg.SealType, cfg.Material, cfg.Mount)
	if cfg.ATEX {
		b.WriteString(", ATEX certified")
	}
	b.WriteString(".")
	if sel.Fallback {
		b.WriteString(" No catalog row covers your exact duty point, so this is the default entry-level selection; an engineer should confirm it.")
	}
	return b.String()
}

func violationsText(v model.ValidationResult) string {
	var b strings.Builder
	b.WriteString("This configuration has issues that need attention:")
	for _, msg := range v.Violations {
		b.WriteString("\n- ")
		b.WriteString(msg)
	}
	b.WriteString("\n")
	b.WriteString(v.Suggestion)
	return b.String()
}

func approvalText(outcome model.ApprovalOutcome, note string) string {
	var s string
	switch outcome {
	case model.ApprovalApproved:
		s = "An engineer approved the exception, continuing with pricing."
	case model.ApprovalRejected:
		s = "The exception was not approved; the quote is issued for reference and flagged for review."
	default:
		s = "No approval was received in time; the quote is issued and flagged for review."
	}
	if note != "" {
		s += " Note: " + note
	}
	return s
}

func quoteText(p model.Pricing) string {
	var b strings.Builder
	b.WriteString("Bill of materials:")
	for _, item := range p.BOM {
		fmt.Fprintf(&b, "\n- %s %s x%d @ $%.2f = $%.2f", item.SKU, item.Description, item.Quantity, item.UnitPrice, item.ExtendedPrice)
	}
	fmt.Fprintf(&b, "\nList total: $%.2f\nDiscount: %g%%\nNet total: $%.2f", p.ListTotal, p.DiscountPercent, p.NetTotal)
	return b.String()
}

// rationale 汇总选型依据、校验结果和审批结论，写入 Canvas。
func rationale(s State) string {
	var parts []string
	if s.Configuration != nil {
		cfg := s.Configuration
		parts = append(parts, fmt.Sprintf("Selected %s with a %g HP motor for %g GPM at %g ft.",
			cfg.Family, cfg.MotorHP, s.Requirements.GPM, s.Requirements.HeadFt))
		if s.SelectionFallback {
			parts = append(parts, "Duty point outside the flow map; default selection used.")
		}
		seal := "packing seal for lowest cost"
		if cfg.SealType == model.SealMechanical {
			seal = "mechanical seal for low maintenance"
		}
		parts = append(parts, fmt.Sprintf("%s mount for %g HP, %s.", cfg.Mount, cfg.MotorHP, seal))
	}
	if s.Validation != nil {
		if s.Validation.IsValid {
			parts = append(parts, s.Validation.Suggestion)
		} else {
			parts = append(parts, fmt.Sprintf("%d constraint violation(s); approval outcome: %s.", len(s.Validation.Violations), s.Approval))
			if s.ApprovalNote != "" {
				parts = append(parts, "Approval note: "+s.ApprovalNote)
			}
		}
	}
	return strings.Join(parts, " ")
}
