package retention

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Store 是清理所需的存储能力，*storage.Storage 实现了它。
type Store interface {
	DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error)
	DeleteQuotesBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Result 是一次清理删除的行数。
type Result struct {
	AuditRecords int64
	Quotes       int64
}

type Collector struct {
	cfg    Config
	store  Store
	logger *zap.Logger
}

func NewCollector(store Store, cfg Config, logger *zap.Logger) (*Collector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{cfg: cfg.withDefaults(), store: store, logger: logger}, nil
}

// Run 立即清理一次，之后按 Interval 周期执行，直到 ctx 结束。
func (c *Collector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	if _, err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// RunOnce 以 now 为基准执行一轮清理。审计记录和报价两个任务并发执行。
func (c *Collector) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	if c == nil || c.store == nil {
		return Result{}, errors.New("retention collector not initialized")
	}

	var (
		audit, quotes atomic.Int64
		tasks         []func(context.Context) error
	)
	if c.cfg.KeepAudit > 0 {
		cut := now.Add(-c.cfg.KeepAudit)
		tasks = append(tasks, func(ctx context.Context) error {
			return c.deleteBatches(ctx, &audit, func(ctx context.Context) (int64, error) {
				return c.store.DeleteAuditRecordsBeforeLimited(ctx, cut, c.cfg.BatchRows)
			})
		})
	}
	if c.cfg.KeepQuotes > 0 {
		cut := now.Add(-c.cfg.KeepQuotes)
		tasks = append(tasks, func(ctx context.Context) error {
			return c.deleteBatches(ctx, &quotes, func(ctx context.Context) (int64, error) {
				return c.store.DeleteQuotesBeforeLimited(ctx, cut, c.cfg.BatchRows)
			})
		})
	}

	errs := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task func(context.Context) error) {
			defer wg.Done()
			if err := task(ctx); err != nil {
				errs <- err
			}
		}(task)
	}
	wg.Wait()
	close(errs)

	res := Result{AuditRecords: audit.Load(), Quotes: quotes.Load()}
	for err := range errs {
		if !errors.Is(err, context.Canceled) {
			c.cfg.OnError(err)
		}
		return res, err
	}
	if res.AuditRecords > 0 || res.Quotes > 0 {
		c.logger.Info("retention pass finished",
			zap.Int64("audit_records", res.AuditRecords), zap.Int64("quotes", res.Quotes))
	}
	return res, nil
}

// deleteBatches 反复删除直到某一批没有命中。
func (c *Collector) deleteBatches(ctx context.Context, total *atomic.Int64, del func(context.Context) (int64, error)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		affected, err := del(ctx)
		if err != nil {
			return err
		}
		total.Add(affected)
		if affected == 0 {
			return nil
		}
		if err := c.sleepIdle(ctx); err != nil {
			return err
		}
	}
}

func (c *Collector) sleepIdle(ctx context.Context) error {
	if c.cfg.IdleSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Prune 执行一次性清理，供命令行使用。
func Prune(ctx context.Context, store Store, cfg Config) (Result, error) {
	c, err := NewCollector(store, cfg, nil)
	if err != nil {
		return Result{}, err
	}
	return c.RunOnce(ctx, time.Now().UTC())
}
