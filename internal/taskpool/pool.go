// Package taskpool holds matched (function, event) assignments until a
// worker claims them, and tracks leases for at-least-once delivery.
package taskpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

type Config struct {
	// LeaseTimeout bounds how long a claimed task may go unacknowledged
	// before it returns to the unclaimed pool.
	LeaseTimeout time.Duration
	// SweepInterval is how often expired leases are reclaimed.
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		LeaseTimeout:  2 * time.Minute,
		SweepInterval: 5 * time.Second,
	}
}

// OutcomeHook observes acknowledged tasks. LeaseExpiredHook observes
// reclaimed leases.
type OutcomeHook func(task types.TaskAssignment, outcome types.TaskOutcome)
type LeaseExpiredHook func(task types.TaskAssignment)

type lease struct {
	task      types.TaskAssignment
	expiresAt time.Time
}

type waiter struct {
	uid     uint64
	fidHint uint64
	ch      chan types.TaskAssignment
}

// Pool is the single logically shared unclaimed-task structure. Every
// dequeue happens under the pool mutex, so a task is handed to exactly one
// caller; redelivery only ever happens through lease expiry.
type Pool struct {
	cfg    Config
	logger logging.Logger

	mu      sync.Mutex
	queue   []types.TaskAssignment
	waiters []*waiter
	leases  map[string]*lease

	onOutcome      OutcomeHook
	onLeaseExpired LeaseExpiredHook
}

func New(cfg Config, logger logging.Logger) *Pool {
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = DefaultConfig().LeaseTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Pool{
		cfg:    cfg,
		logger: logger,
		leases: make(map[string]*lease),
	}
}

// SetOutcomeHook registers the ack observer. Must be called before Start.
func (p *Pool) SetOutcomeHook(hook OutcomeHook) { p.onOutcome = hook }

// SetLeaseExpiredHook registers the reclaim observer. Must be called before
// Start.
func (p *Pool) SetLeaseExpiredHook(hook LeaseExpiredHook) { p.onLeaseExpired = hook }

// Start runs the lease sweeper until the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.reclaimExpired()
			}
		}
	}()
}

// Submit enqueues a matched assignment and returns its task id. If a worker
// is already waiting, the task is handed over directly.
func (p *Pool) Submit(fid, funcVersion uint64, event types.Event) string {
	task := types.TaskAssignment{
		TaskID:      uuid.New().String(),
		FID:         fid,
		FuncVersion: funcVersion,
		Event:       event,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if w := p.pickWaiter(fid); w != nil {
		task.UID = w.uid
		w.ch <- p.leaseLocked(task)
		return task.TaskID
	}

	p.queue = append(p.queue, task)
	return task.TaskID
}

// Acquire returns the next unclaimed assignment for the calling worker,
// biased toward fidHint when one is queued. It suspends until a task is
// available or the context deadline elapses; the false return is the empty
// sentinel. Cancelling the context releases any lease granted in the
// delivery race.
func (p *Pool) Acquire(ctx context.Context, uid, fidHint uint64) (types.TaskAssignment, bool) {
	p.mu.Lock()
	if task, ok := p.dequeueLocked(fidHint); ok {
		task.UID = uid
		task = p.leaseLocked(task)
		p.mu.Unlock()
		return task, true
	}

	w := &waiter{uid: uid, fidHint: fidHint, ch: make(chan types.TaskAssignment, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case task := <-w.ch:
		return task, true
	case <-ctx.Done():
		p.mu.Lock()
		p.removeWaiterLocked(w)
		p.mu.Unlock()
		// A submit may have raced the cancellation; hand the task back.
		select {
		case task := <-w.ch:
			p.releaseLease(task.TaskID)
		default:
		}
		return types.TaskAssignment{}, false
	}
}

// Ack destroys the lease and reports the outcome. Acking a lease that has
// already expired (and may have been redelivered) fails with
// ErrLeaseExpired.
func (p *Pool) Ack(taskID string, uid uint64, outcome types.TaskOutcome) (types.TaskAssignment, error) {
	if !outcome.Valid() {
		return types.TaskAssignment{}, faaserrors.Invalid("unknown outcome %q", outcome)
	}

	p.mu.Lock()
	l, ok := p.leases[taskID]
	if !ok {
		p.mu.Unlock()
		return types.TaskAssignment{}, fmt.Errorf("task %s: %w", taskID, faaserrors.ErrLeaseExpired)
	}
	if l.task.UID != uid {
		p.mu.Unlock()
		return types.TaskAssignment{}, fmt.Errorf("task %s leased to worker %d, not %d: %w",
			taskID, l.task.UID, uid, faaserrors.ErrLeaseExpired)
	}
	delete(p.leases, taskID)
	task := l.task
	p.mu.Unlock()

	if p.onOutcome != nil {
		p.onOutcome(task, outcome)
	}
	return task, nil
}

// ReleaseWorker drops all leases held by a disconnected worker, returning
// its tasks to the unclaimed pool immediately instead of waiting for the
// lease timeout.
func (p *Pool) ReleaseWorker(uid uint64) int {
	p.mu.Lock()
	var released []types.TaskAssignment
	for id, l := range p.leases {
		if l.task.UID == uid {
			delete(p.leases, id)
			released = append(released, l.task)
		}
	}
	p.mu.Unlock()

	for _, task := range released {
		p.requeue(task)
	}
	return len(released)
}

// Depth reports unclaimed tasks; Leased reports outstanding claims.
func (p *Pool) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) Leased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leases)
}

// leaseLocked grants the claim: it stamps the acquisition time and starts
// the lease clock. The stamped copy is what the worker receives.
func (p *Pool) leaseLocked(task types.TaskAssignment) types.TaskAssignment {
	task.AcquiredAt = time.Now().UTC()
	p.leases[task.TaskID] = &lease{
		task:      task,
		expiresAt: time.Now().Add(p.cfg.LeaseTimeout),
	}
	return task
}

func (p *Pool) releaseLease(taskID string) {
	p.mu.Lock()
	l, ok := p.leases[taskID]
	if ok {
		delete(p.leases, taskID)
	}
	p.mu.Unlock()
	if ok {
		p.requeue(l.task)
	}
}

// dequeueLocked prefers a task for the hinted function (worker affinity,
// keeping a warm sandbox), falling back to FIFO order.
func (p *Pool) dequeueLocked(fidHint uint64) (types.TaskAssignment, bool) {
	if len(p.queue) == 0 {
		return types.TaskAssignment{}, false
	}
	idx := 0
	if fidHint != 0 {
		for i, task := range p.queue {
			if task.FID == fidHint {
				idx = i
				break
			}
		}
	}
	task := p.queue[idx]
	p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
	return task, true
}

func (p *Pool) pickWaiter(fid uint64) *waiter {
	for i, w := range p.waiters {
		if w.fidHint == fid {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return w
		}
	}
	if len(p.waiters) == 0 {
		return nil
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	return w
}

func (p *Pool) removeWaiterLocked(target *waiter) {
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// requeue puts a task back at the head of the unclaimed pool, stripped of
// its previous claim, or hands it straight to a waiting worker.
func (p *Pool) requeue(task types.TaskAssignment) {
	task.UID = 0
	task.AcquiredAt = time.Time{}

	p.mu.Lock()
	defer p.mu.Unlock()

	if w := p.pickWaiter(task.FID); w != nil {
		task.UID = w.uid
		w.ch <- p.leaseLocked(task)
		return
	}
	p.queue = append([]types.TaskAssignment{task}, p.queue...)
}

func (p *Pool) reclaimExpired() {
	now := time.Now()

	p.mu.Lock()
	var expired []types.TaskAssignment
	for id, l := range p.leases {
		if now.After(l.expiresAt) {
			delete(p.leases, id)
			expired = append(expired, l.task)
		}
	}
	p.mu.Unlock()

	for _, task := range expired {
		p.logger.Warnf("[LeaseSweep] lease expired for task %s (fid=%d, worker=%d), requeueing", task.TaskID, task.FID, task.UID)
		if p.onLeaseExpired != nil {
			p.onLeaseExpired(task)
		}
		p.requeue(task)
	}
}
