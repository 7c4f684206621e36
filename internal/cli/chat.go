package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/model"
	"github.com/wwwzy/PumpCPQ/internal/storage"
	"github.com/wwwzy/PumpCPQ/internal/tui"
	"github.com/wwwzy/PumpCPQ/internal/ui"
)

var (
	chatUI              string
	chatProvider        string
	chatLogFile         string
	chatConfirm         bool
	chatApprovalTimeout time.Duration
	chatNoSave          bool
	chatSeed            model.CustomerInfo
	chatCompany         string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式报价对话",
	Long: `进入对话模式，由助手逐项询问客户信息与工况参数，完成选型、校验和定价。
报价完成后会保存到数据库（需要提供邮箱或电话）。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		logger, closeLog, err := newLogger(chatLogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		cat, err := loadCatalog()
		if err != nil {
			return fmt.Errorf("加载产品目录失败: %w", err)
		}

		var store *storage.Storage
		if !chatNoSave {
			store, err = storage.Open(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("打开存储失败: %w", err)
			}
			defer store.Close()
		}

		llmCfg := cfg.LLM
		if chatProvider != "" {
			llmCfg.Provider = chatProvider
		}
		provider, err := buildProvider(ctx, llmCfg, store, nil, logger)
		if err != nil {
			return err
		}

		agentCfg := cfg.Agent
		opts := []agent.Option{
			agent.WithLogger(logger),
			agent.WithProvider(provider),
			agent.WithDiscount(cfg.Catalog.DiscountPercent),
		}
		var approvals *ui.PromptApprover
		if chatConfirm {
			approvals = ui.NewPromptApprover()
			opts = append(opts, agent.WithApprover(approvals))
			agentCfg.ApprovalTimeout = chatApprovalTimeout
		}
		opts = append(opts, agent.WithConfig(agentCfg))
		if store != nil {
			opts = append(opts, agent.WithCanvasSink(store))
		}

		seed := chatSeed
		if cmd.Flags().Changed("company") {
			seed.Company = model.Ptr(chatCompany)
		}
		a, err := agent.New(cat, seed, opts...)
		if err != nil {
			return fmt.Errorf("创建会话失败: %w", err)
		}

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		if err := uiImpl.Run(ctx, a, ui.ChatOptions{Approvals: approvals}); err != nil {
			return err
		}

		if c, ok := a.Canvas(); ok {
			if store != nil && c.Customer.HasContact() {
				fmt.Printf("报价已保存，会话 ID: %s（pumpcpq storage show %s 查看）\n", c.SessionID, c.SessionID)
			} else {
				fmt.Printf("报价已完成，会话 ID: %s（未保存）\n", c.SessionID)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "覆盖配置中的 llm.provider（ark/openai/anthropic/ollama/gemini/none）")
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "", "日志输出文件，- 表示 stderr，默认不输出")
	chatCmd.Flags().BoolVar(&chatConfirm, "confirm-exceptions", true, "校验不通过时在界面上询问是否批准例外")
	chatCmd.Flags().DurationVar(&chatApprovalTimeout, "approval-timeout", 2*time.Minute, "询问批准例外时的最长等待时间")
	chatCmd.Flags().BoolVar(&chatNoSave, "no-save", false, "不打开数据库，报价不落盘")
	chatCmd.Flags().StringVar(&chatSeed.Name, "name", "", "预先提供的客户姓名")
	chatCmd.Flags().StringVar(&chatCompany, "company", "", "预先提供的公司名，传空串表示不提供")
	chatCmd.Flags().StringVar(&chatSeed.Email, "email", "", "预先提供的邮箱")
	chatCmd.Flags().StringVar(&chatSeed.Phone, "phone", "", "预先提供的电话")
}
