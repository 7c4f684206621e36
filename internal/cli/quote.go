package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/engine"
	"github.com/wwwzy/PumpCPQ/internal/extract"
	"github.com/wwwzy/PumpCPQ/internal/model"
	"github.com/wwwzy/PumpCPQ/internal/report"
)

var (
	quoteGPM         float64
	quoteHead        float64
	quoteFluid       string
	quotePower       string
	quoteEnvironment string
	quoteMaterial    string
	quoteMaintenance string
	quoteDiscount    float64
	quoteFormat      string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "不经对话直接选型、校验并定价",
	Long: `根据命令行给出的工况参数直接执行 选型 → 校验 → 定价，输出物料清单。
枚举参数支持常见写法，例如 --power 460、--environment atex、--material ss。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := quoteRequirements()
		if err != nil {
			return err
		}
		cat, err := loadCatalog()
		if err != nil {
			return fmt.Errorf("加载产品目录失败: %w", err)
		}
		discount := cfg.Catalog.DiscountPercent
		if cmd.Flags().Changed("discount") {
			discount = quoteDiscount
		}
		c, err := buildQuote(cat, req, discount)
		if err != nil {
			return err
		}
		return printQuote(os.Stdout, c, quoteFormat)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().Float64Var(&quoteGPM, "gpm", 0, "流量（GPM）")
	quoteCmd.Flags().Float64Var(&quoteHead, "head", 0, "扬程（ft）")
	quoteCmd.Flags().StringVar(&quoteFluid, "fluid", "water", "介质")
	quoteCmd.Flags().StringVar(&quotePower, "power", "", "供电：230V_1ph / 460V_3ph")
	quoteCmd.Flags().StringVar(&quoteEnvironment, "environment", "non-ATEX", "环境：ATEX / non-ATEX")
	quoteCmd.Flags().StringVar(&quoteMaterial, "material", "CastIron", "材质：CastIron / Stainless")
	quoteCmd.Flags().StringVar(&quoteMaintenance, "maintenance", "budget", "维护偏好：budget / low-maintenance")
	quoteCmd.Flags().Float64Var(&quoteDiscount, "discount", 0, "折扣百分比，默认使用目录折扣")
	quoteCmd.Flags().StringVar(&quoteFormat, "format", "text", "输出格式：text / markdown / json")
	_ = quoteCmd.MarkFlagRequired("gpm")
	_ = quoteCmd.MarkFlagRequired("head")
	_ = quoteCmd.MarkFlagRequired("power")
}

// quoteRequirements 把命令行参数规范化为选型需求，复用对话抽取的词表。
func quoteRequirements() (model.PumpRequirements, error) {
	req := model.PumpRequirements{GPM: quoteGPM, HeadFt: quoteHead, Fluid: strings.TrimSpace(quoteFluid)}
	if req.GPM <= 0 || req.HeadFt <= 0 {
		return req, fmt.Errorf("--gpm 和 --head 必须大于 0")
	}
	var ok bool
	if req.PowerAvailable, ok = extract.MatchPower(strings.ToLower(quotePower), true); !ok {
		return req, fmt.Errorf("无法识别的供电: %q", quotePower)
	}
	if req.Environment, ok = extract.MatchEnvironment(strings.ToLower(quoteEnvironment), true); !ok {
		return req, fmt.Errorf("无法识别的环境: %q", quoteEnvironment)
	}
	if req.MaterialPref, ok = extract.MatchMaterial(strings.ToLower(quoteMaterial), true); !ok {
		return req, fmt.Errorf("无法识别的材质: %q", quoteMaterial)
	}
	if req.MaintenanceBias, ok = extract.MatchMaintenance(strings.ToLower(quoteMaintenance), true); !ok {
		return req, fmt.Errorf("无法识别的维护偏好: %q", quoteMaintenance)
	}
	return req, nil
}

// buildQuote 依次执行选型、校验和定价。
// 命令行没有审批渠道，违规时与对话中等待超时的处理一致，记为 timed_out。
func buildQuote(cat *catalog.Catalog, req model.PumpRequirements, discount float64) (model.Canvas, error) {
	sel, err := engine.Select(cat, req)
	if err != nil {
		return model.Canvas{}, err
	}
	v := engine.Validate(sel.Config, req)

	var opts []engine.PriceOption
	if discount >= 0 {
		opts = append(opts, engine.WithDiscount(discount))
	}
	p, err := engine.Price(cat, sel.Config, opts...)
	if err != nil {
		return model.Canvas{}, err
	}

	c := model.Canvas{
		Requirements:      req,
		Configuration:     sel.Config,
		SelectionFallback: sel.Fallback,
		Violations:        append([]string{}, v.Violations...),
		Rationale:         v.Suggestion,
		BOM:               p.BOM,
		Pricing:           p,
		Timestamp:         time.Now().UTC(),
	}
	c.Approval = model.ApprovalNotRequired
	if !v.IsValid {
		c.Approval = model.ApprovalTimedOut
	}
	return c, nil
}

func printQuote(w io.Writer, c model.Canvas, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	case "markdown", "md":
		_, err := io.WriteString(w, report.Markdown(c))
		return err
	case "text", "":
	default:
		return fmt.Errorf("未知输出格式: %s (支持: text, markdown, json)", format)
	}

	cfgc := c.Configuration
	fmt.Fprintf(w, "Configuration: %s / %s / %g HP %s / %s seal / %s / %s",
		cfgc.Family, cfgc.ImpellerCode, cfgc.MotorHP, cfgc.Voltage, cfgc.SealType, cfgc.Material, cfgc.Mount)
	if cfgc.ATEX {
		fmt.Fprint(w, " / ATEX")
	}
	fmt.Fprintln(w)
	if c.SelectionFallback {
		fmt.Fprintln(w, "Note: duty point outside the flow map, default selection used.")
	}
	if len(c.Violations) > 0 {
		fmt.Fprintln(w, "Violations:")
		for _, v := range c.Violations {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SKU\tDescription\tQty\tUnit\tExtended")
	fmt.Fprintln(tw, "---\t-----------\t---\t----\t--------")
	for _, item := range c.BOM {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\n", item.SKU, item.Description, item.Quantity, item.UnitPrice, item.ExtendedPrice)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nList total: %.2f\nDiscount:   %g%%\nNet total:  %.2f\n",
		c.Pricing.ListTotal, c.Pricing.DiscountPercent, c.Pricing.NetTotal)
	return nil
}
