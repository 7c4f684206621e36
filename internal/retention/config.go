package retention

import "time"

type ErrorHandler func(err error)

// Config 控制数据库定期清理。
type Config struct {
	// Enabled 控制 serve 时是否启动后台清理。
	Enabled bool `mapstructure:"enabled"`
	// Interval 为清理周期；启动时会先执行一次。
	Interval time.Duration `mapstructure:"interval"`
	// KeepAudit 为模型调用审计记录的保留时长；<=0 表示不清理。
	KeepAudit time.Duration `mapstructure:"keep_audit"`
	// KeepQuotes 为报价的保留时长；<=0 表示永久保留。
	KeepQuotes time.Duration `mapstructure:"keep_quotes"`
	// BatchRows 为单次 DELETE 的最大行数，避免长时间持有写锁。
	BatchRows int `mapstructure:"batch_rows"`
	// IdleSleep 为两批删除之间的休眠时间。
	IdleSleep time.Duration `mapstructure:"idle_sleep"`

	// OnError 为异步错误回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Interval:   time.Hour,
		KeepAudit:  7 * 24 * time.Hour,
		KeepQuotes: 0,
		BatchRows:  500,
		IdleSleep:  50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.BatchRows <= 0 {
		c.BatchRows = 500
	}
	if c.IdleSleep < 0 {
		c.IdleSleep = 0
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
