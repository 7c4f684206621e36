package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/catalog"
	"github.com/wwwzy/PumpCPQ/internal/llm"
	"github.com/wwwzy/PumpCPQ/internal/logging"
	"github.com/wwwzy/PumpCPQ/internal/metrics"
	"github.com/wwwzy/PumpCPQ/internal/storage"
)

// newLogger 按配置构建日志；logFile 为 "-" 写 stderr，为空则丢弃。
func newLogger(logFile string) (*zap.Logger, func(), error) {
	var (
		out     io.Writer = io.Discard
		closeFn           = func() {}
	)
	switch logFile {
	case "":
	case "-":
		out = os.Stderr
	default:
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, logging.WithOutput(out))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

// loadCatalog 优先使用配置中的目录文件，否则使用内置目录。
func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.Catalog.Path)
}

// buildProvider 按配置构造模型 Provider，并在有存储时包上审计。
// provider 为 none 时返回 nil，会话只使用确定性抽取。
func buildProvider(ctx context.Context, llmCfg llm.Config, store *storage.Storage, rec *metrics.Recorder, logger *zap.Logger) (llm.Provider, error) {
	var opts []llm.ResilientOption
	if rec != nil {
		opts = append(opts, llm.WithObserver(rec.ObserveProviderCall))
	}
	p, err := llm.New(ctx, llmCfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("初始化模型失败: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	if store != nil {
		p = llm.WithAudit(p, store, logger)
	}
	logger.Info("llm provider ready", zap.String("provider", p.Name()), zap.String("model", llmCfg.Model))
	return p, nil
}
