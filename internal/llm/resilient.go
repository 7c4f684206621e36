package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseBackoff = 500 * time.Millisecond

// CallObserver 在每次调用（含重试）结束后被通知，用于指标上报。
type CallObserver func(provider, status string, elapsed time.Duration)

// Resilient 为 Provider 增加单次超时、限流与指数退避重试。
type Resilient struct {
	inner       Provider
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	forceJSON   bool
	limiter     *rate.Limiter
	logger      *zap.Logger
	observer    CallObserver
}

type ResilientOption func(*Resilient)

func WithObserver(o CallObserver) ResilientOption {
	return func(r *Resilient) { r.observer = o }
}

// WithBaseBackoff 覆盖首次重试等待时间，主要用于测试。
func WithBaseBackoff(d time.Duration) ResilientOption {
	return func(r *Resilient) { r.baseBackoff = d }
}

func NewResilient(inner Provider, cfg Config, logger *zap.Logger, opts ...ResilientOption) *Resilient {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resilient{
		inner:       inner,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: defaultBaseBackoff,
		forceJSON:   cfg.ForceJSON,
		logger:      logger,
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Name() string { return r.inner.Name() }

func (r *Resilient) Chat(ctx context.Context, system, user string, forceJSON bool) (string, error) {
	start := time.Now()
	out, err := r.chat(ctx, system, user, forceJSON && r.forceJSON)
	if r.observer != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		r.observer(r.inner.Name(), status, time.Since(start))
	}
	return out, err
}

func (r *Resilient) chat(ctx context.Context, system, user string, forceJSON bool) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.baseBackoff * time.Duration(1<<(attempt-1))
			r.logger.Debug("retrying llm call",
				zap.String("provider", r.inner.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		// 每次尝试（包括重试）都要经过限流
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter error: %w", err)
			}
		}

		out, err := r.once(ctx, system, user, forceJSON)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !IsRetryable(err) {
			return "", err
		}
	}

	r.logger.Warn("llm call failed after retries",
		zap.String("provider", r.inner.Name()),
		zap.Int("max_retries", r.maxRetries),
		zap.Error(lastErr))
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (r *Resilient) once(ctx context.Context, system, user string, forceJSON bool) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.inner.Chat(ctx, system, user, forceJSON)
}

// IsRetryable 判断错误是否值得重试：空回复、超时、429 与 5xx。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if code := statusCode(err); code != 0 {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return false
}

// statusCode 从各 SDK 的错误类型中取出 HTTP 状态码，取不到返回 0。
func statusCode(err error) int {
	var oe *openai.Error
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	var se api.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
