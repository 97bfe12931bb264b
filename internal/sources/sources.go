// Package sources holds the per-origin event producers. Each adapter
// translates origin-specific payloads into canonical events and feeds them
// to the ingestion path through a single emit callback, so events from one
// source reach the matcher in source-emitted order.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/retry"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// EmitFunc delivers one event to the ingestion path. Adapters call it
// sequentially from a single goroutine.
type EmitFunc func(ctx context.Context, event types.Event) error

// Adapter produces a restartable sequence of events. Run blocks until the
// sequence is exhausted (finite adapters), the context is cancelled, or the
// origin fails.
type Adapter interface {
	Name() string
	Run(ctx context.Context, emit EmitFunc) error
}

// SourceState is reported by the health endpoint.
type SourceState string

const (
	SourceStateRunning     SourceState = "running"
	SourceStateFinished    SourceState = "finished"
	SourceStateUnavailable SourceState = "unavailable"
)

// Manager runs one goroutine per adapter, restarting failed adapters with
// exponential backoff. A source that exhausts its retries is marked
// unavailable and logged; the other sources keep running.
type Manager struct {
	logger   logging.Logger
	retryCfg *retry.Config

	mu       sync.Mutex
	adapters []Adapter
	states   map[string]SourceState
	wg       sync.WaitGroup
}

func NewManager(logger logging.Logger) *Manager {
	return &Manager{
		logger: logger,
		retryCfg: &retry.Config{
			MaxRetries:      5,
			InitialDelay:    2 * time.Second,
			MaxDelay:        time.Minute,
			BackoffFactor:   2.0,
			JitterFactor:    0.2,
			LogRetryAttempt: true,
		},
		states: make(map[string]SourceState),
	}
}

// Register adds an adapter. Must be called before Start.
func (m *Manager) Register(adapter Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = append(m.adapters, adapter)
	m.states[adapter.Name()] = SourceStateRunning
}

// Start launches all registered adapters against the given emit callback.
func (m *Manager) Start(ctx context.Context, emit EmitFunc) {
	m.mu.Lock()
	adapters := make([]Adapter, len(m.adapters))
	copy(adapters, m.adapters)
	m.mu.Unlock()

	for _, adapter := range adapters {
		m.wg.Add(1)
		go func(adapter Adapter) {
			defer m.wg.Done()
			m.runAdapter(ctx, adapter, emit)
		}(adapter)
	}
}

// Wait blocks until every adapter goroutine has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// States snapshots the per-source health states.
func (m *Manager) States() map[string]SourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]SourceState, len(m.states))
	for name, state := range m.states {
		out[name] = state
	}
	return out
}

func (m *Manager) runAdapter(ctx context.Context, adapter Adapter, emit EmitFunc) {
	name := adapter.Name()
	m.logger.Infof("[SourceManager] starting source %s", name)

	err := retry.RetryFunc(ctx, func() error {
		return adapter.Run(ctx, emit)
	}, m.retryCfg, m.logger)

	switch {
	case err == nil:
		m.logger.Infof("[SourceManager] source %s finished", name)
		m.setState(name, SourceStateFinished)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		m.setState(name, SourceStateFinished)
	default:
		wrapped := fmt.Errorf("source %s: %w: %w", name, faaserrors.ErrSourceUnavailable, err)
		m.logger.Errorf("[SourceManager] %v", wrapped)
		m.setState(name, SourceStateUnavailable)
	}
}

func (m *Manager) setState(name string, state SourceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
}
