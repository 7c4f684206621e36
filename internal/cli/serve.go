package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/metrics"
	"github.com/wwwzy/PumpCPQ/internal/model"
	"github.com/wwwzy/PumpCPQ/internal/retention"
	"github.com/wwwzy/PumpCPQ/internal/server"
	"github.com/wwwzy/PumpCPQ/internal/storage"
)

var (
	serveAddr    string
	serveLogFile string
)

// serveCmd 代表 serve 命令
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 PumpCPQ HTTP 服务",
	Long: `启动 HTTP 服务，通过 REST 接口创建和推进报价会话。
这将初始化数据库、模型 Provider 和指标，并在后台按 retention 配置清理过期数据。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 上下文用于优雅退出
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		logger, closeLog, err := newLogger(serveLogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		// 2. 初始化存储和产品目录
		fmt.Println("正在初始化存储...")
		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		cat, err := loadCatalog()
		if err != nil {
			return fmt.Errorf("加载产品目录失败: %w", err)
		}

		// 3. 指标和模型 Provider
		rec := metrics.New()
		provider, err := buildProvider(ctx, cfg.LLM, store, rec, logger)
		if err != nil {
			return err
		}

		factory := func(seed model.CustomerInfo) (*agent.Agent, error) {
			return agent.New(cat, seed,
				agent.WithConfig(cfg.Agent),
				agent.WithLogger(logger),
				agent.WithProvider(provider),
				agent.WithDiscount(cfg.Catalog.DiscountPercent),
				agent.WithCanvasSink(store),
				agent.WithObserver(rec),
				agent.WithExtractionObserver(rec.ObserveExtraction),
			)
		}

		srv, err := server.New(factory,
			server.WithLogger(logger),
			server.WithMetrics(rec),
			server.WithHealthCheck(store.Ping),
		)
		if err != nil {
			return fmt.Errorf("创建 HTTP 服务失败: %w", err)
		}

		// 4. 后台数据清理
		collector, err := retention.NewCollector(store, cfg.Retention, logger)
		if err != nil {
			return fmt.Errorf("创建 retention 采集器失败: %w", err)
		}
		mgr := retention.NewManager(cfg.Retention, collector)
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动清理任务失败: %w", err)
		}

		// 5. 启动 HTTP 服务
		addr := cfg.Server.Addr()
		if serveAddr != "" {
			addr = serveAddr
		}
		serveErr := make(chan error, 1)
		go func() {
			if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		// 6. 等待信号
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		fmt.Printf("PumpCPQ 已启动，监听 %s。按 Ctrl+C 停止。\n", addr)

		var runErr error
		select {
		case sig := <-sigChan:
			fmt.Printf("收到信号: %s, 正在关闭...\n", sig)
		case err, ok := <-serveErr:
			if ok {
				runErr = fmt.Errorf("HTTP 服务异常退出: %w", err)
			}
		case <-ctx.Done():
			fmt.Println("上下文已取消, 正在关闭...")
		}

		// 7. 优雅停止
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", zap.Error(err))
		}
		mgr.Stop()
		if err := mgr.Wait(); err != nil && runErr == nil {
			runErr = fmt.Errorf("清理任务停止时发生错误: %w", err)
		}
		if runErr != nil {
			return runErr
		}

		fmt.Println("关闭完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址，覆盖配置中的 server.host/server.port")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "-", "日志输出文件，- 表示 stderr")
}
