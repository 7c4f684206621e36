// Package server 通过 HTTP 暴露报价会话。
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/metrics"
	"github.com/wwwzy/PumpCPQ/internal/model"
)

// AgentFactory 为新会话构造 Agent，seed 为调用方预先提供的客户信息。
type AgentFactory func(seed model.CustomerInfo) (*agent.Agent, error)

// session 包装一个 Agent。同一会话的 Step 由 mu 串行化，审批信号不需要持锁。
type session struct {
	mu    sync.Mutex
	agent *agent.Agent
}

type Server struct {
	echo    *echo.Echo
	factory AgentFactory
	logger  *zap.Logger
	metrics *metrics.Recorder
	health  func(ctx context.Context) error

	mu       sync.RWMutex
	sessions map[string]*session
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics 挂载 /metrics 并统计在线会话数。
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck 让 /health 同时检查依赖（例如数据库）。
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

func New(factory AgentFactory, opts ...Option) (*Server, error) {
	if factory == nil {
		return nil, errors.New("agent factory is required")
	}
	s := &Server{
		factory:  factory,
		logger:   zap.NewNop(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// 先交给 echo 写响应，日志里才能拿到最终状态码
				c.Error(err)
			}
			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})
	s.echo = e
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.POST("/sessions/:id/steps", s.handleStep)
	v1.POST("/sessions/:id/approval", s.handleApproval)
	v1.GET("/sessions/:id/canvas", s.handleCanvas)
}

// Handler 返回底层 http.Handler，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// SessionCount 返回当前持有的会话数。
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (s *Server) add(sess *session) {
	s.mu.Lock()
	s.sessions[sess.agent.SessionID()] = sess
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
}

func (s *Server) remove(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok && s.metrics != nil {
		s.metrics.SessionClosed()
	}
	return ok
}
