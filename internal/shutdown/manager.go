// Package shutdown turns SIGINT/SIGTERM into cancellation of the run context.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
)

type Manager struct {
	logger  logger.Logger
	mu      sync.Mutex
	done    chan struct{}
	signals chan os.Signal
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewManager(parent context.Context, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(parent)

	return &Manager{
		logger: log,
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Listen starts watching for SIGINT and SIGTERM. Call Stop to restore default handling.
func (m *Manager) Listen() {
	m.mu.Lock()
	if m.signals != nil {
		m.mu.Unlock()
		return
	}
	m.signals = make(chan os.Signal, 1)
	signal.Notify(m.signals, os.Interrupt, syscall.SIGTERM)
	sigs := m.signals
	m.mu.Unlock()

	go func() {
		select {
		case sig := <-sigs:
			m.logger.Info("ShutdownManager", "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			m.Shutdown()
		case <-m.done:
		}
	}()
}

// Stop releases the signal handler and the context.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.signals != nil {
		signal.Stop(m.signals)
	}
	m.closeDone()
	m.cancel()
}

// Shutdown cancels the run context. Repeated calls are no-ops.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return
	default:
	}
	m.closeDone()

	m.logger.Info("ShutdownManager", "cancelling run", nil)
	m.cancel()
}

func (m *Manager) closeDone() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// Context is cancelled on shutdown or Stop.
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}
