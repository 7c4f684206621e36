package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultBusyTimeout = 5 * time.Second

// Config 为报价库（sqlite）配置。
type Config struct {
	// Path 为数据库文件路径，所在目录不存在时自动创建。
	Path string `mapstructure:"path"`
	// InMemory 为 true 时使用内存库，每次 Open 得到一个独立的库，主要用于测试。
	InMemory  bool `mapstructure:"in_memory"`
	EnableWAL bool `mapstructure:"enable_wal"`
	// Synchronous 对应 PRAGMA synchronous；为空时 WAL 模式用 NORMAL，否则保持 sqlite 默认值。
	Synchronous     string           `mapstructure:"synchronous"`
	BusyTimeout     time.Duration    `mapstructure:"busy_timeout"`
	MaxOpenConns    int              `mapstructure:"max_open_conns"`
	MaxIdleConns    int              `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration    `mapstructure:"conn_max_lifetime"`
	Logger          logger.Interface `mapstructure:"-"`
}

// Storage 封装 gorm 连接，报价与模型调用审计都写入同一个 sqlite 文件。
type Storage struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Summary 是 `storage info` 展示的库概况。
type Summary struct {
	Quotes       int64
	AuditRecords int64
	// LatestQuote 为最近一份报价的时间，没有报价时为 nil。
	LatestQuote *time.Time
}

// Open 打开报价库并完成迁移。
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}

	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.InMemory {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	// gorm 默认把慢查询打到 stdout，会打乱对话界面，未指定时静默
	gormLogger := cfg.Logger
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &Storage{db: db, sqlDB: sqlDB}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// pragmas 返回每个新连接都要执行的 pragma。
// 连接池里的连接各自独立，pragma 通过 DSN 的 _pragma 参数下发，不能只在一个连接上 Exec。
// 内存库不支持 WAL。
func pragmas(cfg Config) []string {
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}
	out := []string{
		fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()),
		"foreign_keys(1)",
	}
	sync := strings.ToUpper(strings.TrimSpace(cfg.Synchronous))
	if cfg.EnableWAL && !cfg.InMemory {
		out = append(out, "journal_mode(WAL)")
		if sync == "" {
			sync = "NORMAL"
		}
	}
	if sync != "" {
		out = append(out, "synchronous("+sync+")")
	}
	return out
}

func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return errors.New("storage not initialized")
	}
	return s.sqlDB.PingContext(ctx)
}

// Migrate 建表：quotes 保存完成的报价，audit_records 保存模型调用。
func (s *Storage) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&Quote{}, &AuditRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Storage) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Summary 统计报价和审计记录数量，以及最近一份报价的时间。
func (s *Storage) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	var err error
	if sum.Quotes, err = s.CountQuotes(ctx); err != nil {
		return sum, err
	}
	if sum.AuditRecords, err = s.CountAuditRecords(ctx); err != nil {
		return sum, err
	}
	if sum.Quotes == 0 {
		return sum, nil
	}
	var latest Quote
	if err := s.db.WithContext(ctx).Select("quoted_at").Order("quoted_at desc").Take(&latest).Error; err != nil {
		return sum, fmt.Errorf("latest quote: %w", err)
	}
	sum.LatestQuote = &latest.QuotedAt
	return sum, nil
}

func dsnFromConfig(cfg Config) (string, error) {
	params := url.Values{}
	for _, p := range pragmas(cfg) {
		params.Add("_pragma", p)
	}

	if cfg.InMemory {
		// 库名带随机后缀，同一进程里的多个内存库互不干扰
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return "file:pumpcpq-" + uuid.NewString() + "?" + params.Encode(), nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return "", errors.New("storage.path is required unless storage.in_memory is set")
	}
	return "file:" + cfg.Path + "?" + params.Encode(), nil
}
