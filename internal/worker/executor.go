package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// TaskSource is the engine-side protocol the executor pulls from. Satisfied
// by tasksource.Client.
type TaskSource interface {
	UID() uint64
	AcquireTask(ctx context.Context, fidHint uint64, wait time.Duration) (*types.TaskAssignment, error)
	AcquireFunc(ctx context.Context, fid, version uint64) (types.AcquireFuncResponse, error)
	AckTask(ctx context.Context, taskID string, outcome types.TaskOutcome, errMsg, output string) error
	Release(ctx context.Context) error
}

type Config struct {
	PollWait     time.Duration
	IdleBackoff  time.Duration
	CodeCacheCap int
}

func DefaultConfig() Config {
	return Config{
		PollWait:     30 * time.Second,
		IdleBackoff:  time.Second,
		CodeCacheCap: 256,
	}
}

type codeKey struct {
	fid     uint64
	version uint64
}

// Executor is the worker's main loop: acquire a task, load the code version
// it names, run it in the sandbox, acknowledge the outcome. Every lease ends
// in exactly one ack attempt; a lost ack is reclaimed by the engine's lease
// sweep.
type Executor struct {
	source  TaskSource
	sandbox Sandbox
	cfg     Config
	logger  logging.Logger

	// gate defers acquisition while the host is overloaded.
	gate func() bool

	mu      sync.Mutex
	code    map[codeKey]types.AcquireFuncResponse
	lastFID uint64
}

func NewExecutor(source TaskSource, sandbox Sandbox, cfg Config, logger logging.Logger) *Executor {
	if cfg.PollWait <= 0 {
		cfg.PollWait = DefaultConfig().PollWait
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = DefaultConfig().IdleBackoff
	}
	if cfg.CodeCacheCap <= 0 {
		cfg.CodeCacheCap = DefaultConfig().CodeCacheCap
	}
	return &Executor{
		source:  source,
		sandbox: sandbox,
		cfg:     cfg,
		logger:  logger,
		code:    make(map[codeKey]types.AcquireFuncResponse),
	}
}

// SetLoadGate installs a predicate consulted before each acquisition; while
// it returns true the executor backs off instead of pulling work.
func (e *Executor) SetLoadGate(gate func() bool) {
	e.gate = gate
}

// Run blocks until the context is cancelled, then releases any leases still
// held by this worker.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Infof("[Executor] worker %d polling for tasks", e.source.UID())

	for {
		if ctx.Err() != nil {
			break
		}

		if e.gate != nil && e.gate() {
			e.logger.Warnf("[Executor] host overloaded, deferring acquisition")
			e.sleep(ctx, e.cfg.IdleBackoff)
			continue
		}

		task, err := e.source.AcquireTask(ctx, e.lastFID, e.cfg.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			e.logger.Errorf("[Executor] acquire failed: %v", err)
			e.sleep(ctx, e.cfg.IdleBackoff)
			continue
		}
		if task == nil {
			// Empty sentinel; poll again immediately.
			continue
		}

		e.lastFID = task.FID
		e.execute(ctx, *task)
	}

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.source.Release(releaseCtx); err != nil {
		e.logger.Warnf("[Executor] failed to release leases on shutdown: %v", err)
	}
	return ctx.Err()
}

func (e *Executor) execute(ctx context.Context, task types.TaskAssignment) {
	started := time.Now()

	code, err := e.loadCode(ctx, task.FID, task.FuncVersion)
	if err != nil {
		e.logger.Errorf("[Executor] code load for task %s failed: %v", task.TaskID, err)
		e.ack(task.TaskID, types.OutcomeFailed, "code load failed: "+err.Error(), "")
		return
	}

	result, runErr := e.sandbox.Run(ctx, RunSpec{
		FID:         task.FID,
		FuncVersion: task.FuncVersion,
		Code:        code.Code,
		Event:       task.Event,
		Limits:      code.Resources,
		Permissions: code.Permissions,
	})

	outcome, errMsg := outcomeFor(runErr)
	e.logger.Infof("[Executor] task %s function %d finished %s in %v",
		task.TaskID, task.FID, outcome, time.Since(started).Round(time.Millisecond))
	e.ack(task.TaskID, outcome, errMsg, result.Output)
}

// outcomeFor maps sandbox errors onto the ack taxonomy. Deadline and
// resource violations are terminal and must stay distinguishable from plain
// failures.
func outcomeFor(err error) (types.TaskOutcome, string) {
	switch {
	case err == nil:
		return types.OutcomeSucceeded, ""
	case errors.Is(err, faaserrors.ErrTimedOut):
		return types.OutcomeTimedOut, err.Error()
	case errors.Is(err, faaserrors.ErrResourceExceeded):
		return types.OutcomeResourceExceeded, err.Error()
	default:
		return types.OutcomeFailed, err.Error()
	}
}

func (e *Executor) ack(taskID string, outcome types.TaskOutcome, errMsg, output string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.source.AckTask(ctx, taskID, outcome, errMsg, output); err != nil {
		// The lease will expire and the task redelivers; at-least-once holds.
		e.logger.Errorf("[Executor] ack for task %s failed: %v", taskID, err)
	}
}

// loadCode fetches function code by exact version, cached so repeat tasks
// for a warm version skip the round trip.
func (e *Executor) loadCode(ctx context.Context, fid, version uint64) (types.AcquireFuncResponse, error) {
	key := codeKey{fid: fid, version: version}

	e.mu.Lock()
	if cached, ok := e.code[key]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	code, err := e.source.AcquireFunc(ctx, fid, version)
	if err != nil {
		return types.AcquireFuncResponse{}, err
	}

	e.mu.Lock()
	if len(e.code) >= e.cfg.CodeCacheCap {
		for k := range e.code {
			delete(e.code, k)
			break
		}
	}
	e.code[key] = code
	e.mu.Unlock()

	return code, nil
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
