package retention

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Manager 管理后台清理任务的生命周期。
type Manager struct {
	cfg       Config
	collector *Collector

	started atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error
}

func NewManager(cfg Config, collector *Collector) *Manager {
	return &Manager{cfg: cfg, collector: collector}
}

func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if !m.cfg.Enabled {
		return nil
	}
	if m.collector == nil {
		m.cancel()
		return errors.New("retention collector is required when retention enabled")
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.collector.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			m.runErrMu.Lock()
			if m.runErr == nil {
				m.runErr = err
			}
			m.runErrMu.Unlock()
			m.cancel()
		}
	}()
	return nil
}

func (m *Manager) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
}

func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}
	m.wg.Wait()
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}
