package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
)

var (
	catalogFormat string
	catalogRaw    bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "查看产品目录",
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "显示泵系列、选型表和默认折扣",
	RunE: func(cmd *cobra.Command, args []string) error {
		if catalogRaw {
			data := catalog.DefaultYAML()
			if cfg.Catalog.Path != "" {
				var err error
				if data, err = os.ReadFile(cfg.Catalog.Path); err != nil {
					return fmt.Errorf("读取产品目录失败: %w", err)
				}
			}
			_, err := os.Stdout.Write(data)
			return err
		}
		cat, err := loadCatalog()
		if err != nil {
			return fmt.Errorf("加载产品目录失败: %w", err)
		}
		if catalogFormat == "yaml" {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cat)
		}

		source := cfg.Catalog.Path
		if source == "" {
			source = "(built-in)"
		}
		fmt.Printf("Catalog: %s\nDefault discount: %g%%\n\n", source, cat.DefaultDiscountPercent)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Family\tGPM\tMax Head (ft)\tMax HP\tNote")
		fmt.Fprintln(w, "------\t---\t-------------\t------\t----")
		for _, f := range cat.Families {
			fmt.Fprintf(w, "%s\t%g-%g\t%g\t%g\t%s\n", f.Family, f.MinGPM, f.MaxGPM, f.MaxHeadFt, f.MaxHP, f.Note)
		}
		w.Flush()
		fmt.Println()

		w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "#\tGPM\tHead (ft)\tFamily\tMotor HP\tImpeller")
		fmt.Fprintln(w, "-\t---\t---------\t------\t--------\t--------")
		for i, row := range cat.FlowMap {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%g\t%s\n", i, row.GPM(), row.Head(), row.Family, row.MotorHP, row.ImpellerCode)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogShowCmd.Flags().StringVar(&catalogFormat, "format", "table", "输出格式：table / yaml")
	catalogShowCmd.Flags().BoolVar(&catalogRaw, "raw", false, "原样输出目录 YAML 文件")
}
