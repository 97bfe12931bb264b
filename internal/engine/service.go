// Package engine assembles the ingestion pipeline: source adapters feed
// events into the registry, the matcher turns them into task assignments,
// and the task pool hands those to pulling workers.
package engine

import (
	"context"
	"time"

	"github.com/R3E-Network/r3e-faas-go/internal/engine/metrics"
	"github.com/R3E-Network/r3e-faas-go/internal/matcher"
	"github.com/R3E-Network/r3e-faas-go/internal/registry"
	"github.com/R3E-Network/r3e-faas-go/internal/sources"
	"github.com/R3E-Network/r3e-faas-go/internal/taskpool"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

const evictInterval = time.Minute

type Engine struct {
	registry *registry.Registry
	matcher  *matcher.Matcher
	pool     *taskpool.Pool
	sources  *sources.Manager
	request  *sources.RequestAdapter
	logger   logging.Logger

	startedAt time.Time
}

func New(
	reg *registry.Registry,
	m *matcher.Matcher,
	pool *taskpool.Pool,
	mgr *sources.Manager,
	request *sources.RequestAdapter,
	logger logging.Logger,
) *Engine {
	e := &Engine{
		registry:  reg,
		matcher:   m,
		pool:      pool,
		sources:   mgr,
		request:   request,
		logger:    logger,
		startedAt: time.Now(),
	}
	pool.SetLeaseExpiredHook(func(types.TaskAssignment) {
		metrics.LeasesExpired.Inc()
	})
	return e
}

// Start launches the pool sweeper, the source adapters, and the retention
// sweep. It returns immediately; cancel the context to stop.
func (e *Engine) Start(ctx context.Context) {
	if fns, err := e.registry.AllFunctions(ctx); err == nil {
		metrics.RegisteredFunctions.Set(float64(len(fns)))
	}

	e.pool.Start(ctx)
	e.sources.Start(ctx, func(ctx context.Context, event types.Event) error {
		_, err := e.Ingest(ctx, event)
		return err
	})

	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := e.registry.EvictExpired(ctx); n > 0 {
					e.logger.Infof("[Engine] evicted %d expired events", n)
				}
			}
		}
	}()
}

// Ingest runs one event through the pipeline: register, match, enqueue.
// Matching happens inline so decisions stay ordered with event arrival per
// source. Returns the number of tasks created; zero for duplicates.
func (e *Engine) Ingest(ctx context.Context, event types.Event) (int, error) {
	source := string(event.Context.Source)

	accepted, err := e.registry.RegisterEvent(ctx, event)
	if err != nil {
		return 0, err
	}
	if !accepted {
		metrics.EventsDeduplicated.WithLabelValues(source).Inc()
		return 0, nil
	}
	metrics.EventsIngested.WithLabelValues(source).Inc()

	matches, err := e.matcher.MatchEvent(ctx, event)
	if err != nil {
		return 0, err
	}

	for _, match := range matches {
		// The event stays pinned until the task's terminal acknowledgment.
		e.registry.PinEvent(event)
		taskID := e.pool.Submit(match.FID, match.FuncVersion, event)
		e.logger.Debugf("[Engine] event %s matched function %d (trigger %d), task %s",
			event.Data.ID, match.FID, match.TriggerIndex, taskID)
	}
	metrics.TriggerMatches.Add(float64(len(matches)))
	metrics.PoolDepth.Set(float64(e.pool.Depth()))

	return len(matches), nil
}

// SubmitRequest hands a direct request to the request adapter. Emission into
// the pipeline is asynchronous; the returned id can be used to query
// executions later.
func (e *Engine) SubmitRequest(ctx context.Context, id string, payload types.Value) (string, error) {
	return e.request.Submit(ctx, id, payload)
}

// AcquireTask long-polls for the next assignment for worker uid.
func (e *Engine) AcquireTask(ctx context.Context, uid, fidHint uint64) (types.TaskAssignment, bool) {
	task, ok := e.pool.Acquire(ctx, uid, fidHint)
	if ok {
		metrics.TasksDelivered.Inc()
		metrics.PoolDepth.Set(float64(e.pool.Depth()))
	}
	return task, ok
}

// AckTask destroys the lease, releases the event pin, and records the
// execution outcome.
func (e *Engine) AckTask(ctx context.Context, taskID string, req types.AckTaskRequest) error {
	task, err := e.pool.Ack(taskID, req.UID, req.Outcome)
	if err != nil {
		return err
	}

	e.registry.UnpinEvent(task.Event)
	metrics.TaskOutcomes.WithLabelValues(string(req.Outcome)).Inc()

	rec := types.ExecutionRecord{
		TaskID:      task.TaskID,
		FID:         task.FID,
		FuncVersion: task.FuncVersion,
		EventID:     task.Event.Data.ID,
		UID:         req.UID,
		Outcome:     req.Outcome,
		Error:       req.Error,
		Output:      req.Output,
		StartedAt:   task.AcquiredAt,
		FinishedAt:  time.Now().UTC(),
	}
	if err := e.registry.RecordExecution(ctx, rec); err != nil {
		e.logger.Errorf("[AckTask] failed to record execution for task %s: %v", taskID, err)
	}
	return nil
}

// ReleaseWorker returns a disconnected worker's leases to the pool.
func (e *Engine) ReleaseWorker(uid uint64) int {
	return e.pool.ReleaseWorker(uid)
}

func (e *Engine) Registry() *registry.Registry { return e.registry }

// Health is the payload of the health endpoint.
type Health struct {
	Uptime    string                         `json:"uptime"`
	Sources   map[string]sources.SourceState `json:"sources"`
	PoolDepth int                            `json:"pool_depth"`
	TasksOut  int                            `json:"tasks_leased"`
}

func (e *Engine) Health() Health {
	return Health{
		Uptime:    time.Since(e.startedAt).Round(time.Second).String(),
		Sources:   e.sources.States(),
		PoolDepth: e.pool.Depth(),
		TasksOut:  e.pool.Leased(),
	}
}
