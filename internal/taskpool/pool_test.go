package taskpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

func newTestPool(cfg Config) *Pool {
	return New(cfg, logging.NewNoopLogger())
}

func testEvent(id string) types.Event {
	return types.NewEvent(types.TriggerBlockchain, types.SourceMock, id, types.MapValue(map[string]types.Value{
		"index": types.Int64Value(1),
	}))
}

func TestAcquireReturnsQueuedTask(t *testing.T) {
	p := newTestPool(DefaultConfig())
	taskID := p.Submit(7, 1, testEvent("evt-1"))

	task, ok := p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)
	assert.Equal(t, taskID, task.TaskID)
	assert.Equal(t, uint64(7), task.FID)
	assert.Equal(t, uint64(100), task.UID)
	assert.Equal(t, 0, p.Depth())
	assert.Equal(t, 1, p.Leased())
}

func TestLeaseStampsAcquisitionTime(t *testing.T) {
	p := newTestPool(DefaultConfig())

	before := time.Now().UTC()
	p.Submit(7, 1, testEvent("evt-1"))

	task, ok := p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)
	assert.False(t, task.AcquiredAt.IsZero())
	assert.False(t, task.AcquiredAt.Before(before))

	// The ack returns the same stamped assignment, so execution records can
	// carry the lease grant time as their start.
	acked, err := p.Ack(task.TaskID, 100, types.OutcomeSucceeded)
	require.NoError(t, err)
	assert.Equal(t, task.AcquiredAt, acked.AcquiredAt)
}

func TestRedeliveryRestampsAcquisitionTime(t *testing.T) {
	p := newTestPool(DefaultConfig())
	p.Submit(7, 1, testEvent("evt-1"))

	first, ok := p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)
	require.Equal(t, 1, p.ReleaseWorker(100))

	time.Sleep(5 * time.Millisecond)
	second, ok := p.Acquire(context.Background(), 200, 0)
	require.True(t, ok)
	assert.True(t, second.AcquiredAt.After(first.AcquiredAt))
}

func TestAcquireBlocksUntilSubmit(t *testing.T) {
	p := newTestPool(DefaultConfig())

	got := make(chan types.TaskAssignment, 1)
	go func() {
		task, ok := p.Acquire(context.Background(), 100, 0)
		if ok {
			got <- task
		}
	}()

	// Give the acquirer time to park.
	time.Sleep(20 * time.Millisecond)
	p.Submit(7, 1, testEvent("evt-1"))

	select {
	case task := <-got:
		assert.Equal(t, uint64(7), task.FID)
		assert.Equal(t, uint64(100), task.UID)
	case <-time.After(time.Second):
		t.Fatal("acquire never completed after submit")
	}
}

func TestAcquireDeadlineReturnsEmptySentinel(t *testing.T) {
	p := newTestPool(DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, ok := p.Acquire(ctx, 100, 0)
	assert.False(t, ok)
}

func TestExactlyOneWorkerWinsSingleTask(t *testing.T) {
	// Scenario: two workers, one pending task.
	p := newTestPool(DefaultConfig())
	p.Submit(7, 1, testEvent("evt-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	for uid := uint64(1); uid <= 2; uid++ {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			_, ok := p.Acquire(ctx, uid, 0)
			results <- ok
		}(uid)
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one worker must receive the task")
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	// Scenario: worker acquires, never acks; the same (fid, event) pair
	// becomes acquirable again.
	cfg := Config{LeaseTimeout: 30 * time.Millisecond, SweepInterval: 10 * time.Millisecond}
	p := newTestPool(cfg)

	expired := make(chan types.TaskAssignment, 1)
	p.SetLeaseExpiredHook(func(task types.TaskAssignment) { expired <- task })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Submit(7, 1, testEvent("evt-1"))
	first, ok := p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)

	second, ok := p.Acquire(ctx, 200, 0)
	require.True(t, ok)
	assert.Equal(t, first.FID, second.FID)
	assert.Equal(t, first.Event.Data.ID, second.Event.Data.ID)
	assert.Equal(t, uint64(200), second.UID)

	select {
	case task := <-expired:
		assert.Equal(t, first.TaskID, task.TaskID)
	case <-time.After(time.Second):
		t.Fatal("lease expiry hook never fired")
	}

	// The original worker's late ack is rejected.
	_, err := p.Ack(first.TaskID, 100, types.OutcomeSucceeded)
	if err == nil {
		// The redelivered lease shares the task id; ensure the stale uid
		// cannot ack it.
		t.Fatal("stale ack must not succeed")
	}
}

func TestAckDestroysLease(t *testing.T) {
	p := newTestPool(DefaultConfig())

	var acked types.TaskAssignment
	var ackedOutcome types.TaskOutcome
	p.SetOutcomeHook(func(task types.TaskAssignment, outcome types.TaskOutcome) {
		acked = task
		ackedOutcome = outcome
	})

	p.Submit(7, 1, testEvent("evt-1"))
	task, ok := p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)

	_, err := p.Ack(task.TaskID, 100, types.OutcomeSucceeded)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, acked.TaskID)
	assert.Equal(t, types.OutcomeSucceeded, ackedOutcome)
	assert.Equal(t, 0, p.Leased())

	_, err = p.Ack(task.TaskID, 100, types.OutcomeSucceeded)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faaserrors.ErrLeaseExpired))
}

func TestAckWrongWorkerRejected(t *testing.T) {
	p := newTestPool(DefaultConfig())
	p.Submit(7, 1, testEvent("evt-1"))
	task, ok := p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)

	_, err := p.Ack(task.TaskID, 999, types.OutcomeSucceeded)
	require.Error(t, err)
	assert.Equal(t, 1, p.Leased())
}

func TestFidHintAffinity(t *testing.T) {
	p := newTestPool(DefaultConfig())
	p.Submit(1, 1, testEvent("evt-a"))
	p.Submit(2, 1, testEvent("evt-b"))
	p.Submit(3, 1, testEvent("evt-c"))

	task, ok := p.Acquire(context.Background(), 100, 2)
	require.True(t, ok)
	assert.Equal(t, uint64(2), task.FID, "hinted function preferred over FIFO head")

	task, ok = p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(1), task.FID, "no hint falls back to FIFO")
}

func TestReleaseWorkerReturnsLeases(t *testing.T) {
	p := newTestPool(DefaultConfig())
	p.Submit(7, 1, testEvent("evt-1"))

	_, ok := p.Acquire(context.Background(), 100, 0)
	require.True(t, ok)
	require.Equal(t, 1, p.Leased())

	released := p.ReleaseWorker(100)
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, p.Leased())
	assert.Equal(t, 1, p.Depth())
}

func TestConcurrentSubmitAcquireNoLossNoDup(t *testing.T) {
	p := newTestPool(DefaultConfig())
	const tasks = 50
	const workers = 8

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan string, tasks)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			for {
				task, ok := p.Acquire(ctx, uid, 0)
				if !ok {
					return
				}
				received <- task.TaskID
				if _, err := p.Ack(task.TaskID, uid, types.OutcomeSucceeded); err != nil {
					return
				}
			}
		}(uint64(w + 1))
	}

	want := make(map[string]bool, tasks)
	for i := 0; i < tasks; i++ {
		id := p.Submit(uint64(i%5), 1, testEvent(time.Now().String()+string(rune('a'+i%26))+string(rune('0'+i/26))))
		want[id] = true
	}

	got := make(map[string]bool, tasks)
	for i := 0; i < tasks; i++ {
		select {
		case id := <-received:
			assert.False(t, got[id], "task %s delivered twice before ack", id)
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d tasks delivered", i, tasks)
		}
	}
	cancel()
	wg.Wait()

	assert.Equal(t, want, got)
}
