package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/PumpCPQ/internal/report"
	"github.com/wwwzy/PumpCPQ/internal/retention"
	"github.com/wwwzy/PumpCPQ/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、查询已保存的报价、清理审计记录和过期数据的命令。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	Run:   runInfo,
}

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "列出已保存的报价",
	Run:   runQuotes,
}

var showQuoteCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "按会话 ID 显示报价单",
	Args:  cobra.ExactArgs(1),
	Run:   runShowQuote,
}

// pruneAuditCmd represents the prune-audit command
var pruneAuditCmd = &cobra.Command{
	Use:   "prune-audit",
	Short: "清理审计记录",
	Long:  `根据用户指定的保留条数或天数，清理旧的审计记录。`,
	Run:   runPruneAudit,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "根据配置文件立即执行一次数据清理",
	Long:  `忽略定时任务间隔，立即按 retention 配置清理过期的审计记录和报价。`,
	Run:   runPrune,
}

var (
	keepAuditCount int
	keepAuditDays  int

	quotesCustomer string
	quotesFamily   string
	quotesInvalid  bool
	quotesLimit    int

	showRaw bool
)

func init() {
	pruneAuditCmd.Flags().IntVar(&keepAuditCount, "keep", 0, "保留最近的 N 条记录")
	pruneAuditCmd.Flags().IntVar(&keepAuditDays, "days", 0, "保留最近 N 天的记录")

	quotesCmd.Flags().StringVar(&quotesCustomer, "customer", "", "按客户名或公司名过滤（子串匹配）")
	quotesCmd.Flags().StringVar(&quotesFamily, "family", "", "按泵系列过滤")
	quotesCmd.Flags().BoolVar(&quotesInvalid, "invalid", false, "只显示校验未通过的报价")
	quotesCmd.Flags().IntVar(&quotesLimit, "limit", 20, "最多显示条数")

	showQuoteCmd.Flags().BoolVar(&showRaw, "raw", false, "输出原始 Canvas JSON")

	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd)
	storageCmd.AddCommand(quotesCmd)
	storageCmd.AddCommand(showQuoteCmd)
	storageCmd.AddCommand(pruneAuditCmd)
	storageCmd.AddCommand(pruneCmd)
}

func mustOpenStore(ctx context.Context) *storage.Storage {
	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runPruneAudit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if keepAuditCount <= 0 && keepAuditDays <= 0 {
		fmt.Println("Error: must specify either --keep or --days")
		cmd.Usage()
		os.Exit(1)
	}

	fmt.Println("Opening database...")
	store := mustOpenStore(ctx)
	defer store.Close()

	var deletedCount int64

	if keepAuditCount > 0 {
		fmt.Printf("Pruning audit records, keeping latest %d records...\n", keepAuditCount)
		count, err := store.DeleteAuditRecordsKeepLatest(ctx, keepAuditCount)
		if err != nil {
			fmt.Printf("Error pruning by count: %v\n", err)
			os.Exit(1)
		}
		deletedCount += count
	}

	if keepAuditDays > 0 {
		before := time.Now().UTC().AddDate(0, 0, -keepAuditDays)
		fmt.Printf("Pruning audit records older than %d days (before %s)...\n", keepAuditDays, before.Format(time.RFC3339))
		count, err := store.DeleteAuditRecordsBefore(ctx, before)
		if err != nil {
			fmt.Printf("Error pruning by days: %v\n", err)
			os.Exit(1)
		}
		deletedCount += count
	}

	fmt.Printf("Prune completed. Deleted %d records.\n", deletedCount)

	if count, err := store.CountAuditRecords(ctx); err == nil {
		fmt.Printf("Remaining Audit Records: %d\n", count)
	}
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	fmt.Println("Opening database...")
	store := mustOpenStore(ctx)
	defer store.Close()

	policy := cfg.Retention
	quotes := "forever"
	if policy.KeepQuotes > 0 {
		quotes = policy.KeepQuotes.String()
	}
	fmt.Printf("Policy: audit records %s, quotes %s\n", policy.KeepAudit, quotes)

	res, err := retention.Prune(ctx, store, policy)
	if err != nil {
		fmt.Printf("Prune failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Prune completed. Deleted %d audit records, %d quotes.\n", res.AuditRecords, res.Quotes)
}

func runQuotes(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := mustOpenStore(ctx)
	defer store.Close()

	quotes, err := store.QueryQuotes(ctx, storage.QuoteQuery{
		Customer:    quotesCustomer,
		Family:      quotesFamily,
		OnlyInvalid: quotesInvalid,
		Limit:       quotesLimit,
		Desc:        true,
	})
	if err != nil {
		fmt.Printf("Error querying quotes: %v\n", err)
		os.Exit(1)
	}
	if len(quotes) == 0 {
		fmt.Println("No quotes found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Session\tQuoted At\tCustomer\tCompany\tFamily\tHP\tApproval\tNet Total")
	fmt.Fprintln(w, "-------\t---------\t--------\t-------\t------\t--\t--------\t---------")
	for _, q := range quotes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%g\t%s\t%.2f\n",
			q.SessionID, q.QuotedAt.Local().Format("2006-01-02 15:04"), q.CustomerName, q.Company,
			q.Family, q.MotorHP, q.Approval, q.NetTotal)
	}
	w.Flush()
}

func runShowQuote(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := mustOpenStore(ctx)
	defer store.Close()

	q, err := store.GetQuoteBySession(ctx, args[0])
	if err != nil {
		if storage.IsNotFound(err) {
			fmt.Printf("Quote not found: %s\n", args[0])
		} else {
			fmt.Printf("Error loading quote: %v\n", err)
		}
		os.Exit(1)
	}
	c, err := q.Canvas()
	if err != nil {
		fmt.Printf("Error decoding quote: %v\n", err)
		os.Exit(1)
	}

	if showRaw {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(c)
		return
	}
	out, err := report.Render(c, 100)
	if err != nil {
		// 渲染失败时退回纯 Markdown
		out = report.Markdown(c)
	}
	fmt.Print(out)
}

func runInfo(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}

	// 1. 获取数据库文件信息
	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			dbSizeStr = "Not Found (Will be created on first run)"
		} else {
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		}
	} else {
		sizeMB := float64(info.Size()) / 1024 / 1024
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", sizeMB, dbPath)
	}

	// 2. 连接数据库，失败时只打印文件信息
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Database File: %s\n", dbSizeStr)
		fmt.Printf("Error opening database: %v\n", err)
		return
	}
	defer store.Close()

	// 3. 获取统计信息
	sum, err := store.Summary(ctx)
	if err != nil {
		fmt.Printf("Error reading summary: %v\n", err)
	}

	fmt.Printf("Database File: %s\n", dbSizeStr)
	if sum.LatestQuote != nil {
		fmt.Printf("Latest Quote: %s\n", sum.LatestQuote.Local().Format(time.RFC3339))
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "Quotes\t%d\n", sum.Quotes)
	fmt.Fprintf(w, "AuditRecords\t%d\n", sum.AuditRecords)
	w.Flush()
}
