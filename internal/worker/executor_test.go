package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

type ackRecord struct {
	TaskID  string
	Outcome types.TaskOutcome
	Error   string
	Output  string
}

// fakeSource feeds a fixed task list and records every ack. Once the list is
// drained, AcquireTask blocks until the context is cancelled.
type fakeSource struct {
	mu        sync.Mutex
	tasks     []types.TaskAssignment
	code      map[uint64]types.AcquireFuncResponse
	codeCalls int
	acks      []ackRecord
	released  bool

	acked chan ackRecord
}

func newFakeSource(tasks ...types.TaskAssignment) *fakeSource {
	return &fakeSource{
		tasks: tasks,
		code:  make(map[uint64]types.AcquireFuncResponse),
		acked: make(chan ackRecord, 16),
	}
}

func (f *fakeSource) UID() uint64 { return 42 }

func (f *fakeSource) AcquireTask(ctx context.Context, fidHint uint64, wait time.Duration) (*types.TaskAssignment, error) {
	f.mu.Lock()
	if len(f.tasks) > 0 {
		task := f.tasks[0]
		f.tasks = f.tasks[1:]
		f.mu.Unlock()
		return &task, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSource) AcquireFunc(ctx context.Context, fid, version uint64) (types.AcquireFuncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeCalls++
	code, ok := f.code[fid]
	if !ok {
		return types.AcquireFuncResponse{}, fmt.Errorf("function %d: %w", fid, faaserrors.ErrNotFound)
	}
	code.Version = version
	return code, nil
}

func (f *fakeSource) AckTask(ctx context.Context, taskID string, outcome types.TaskOutcome, errMsg, output string) error {
	rec := ackRecord{TaskID: taskID, Outcome: outcome, Error: errMsg, Output: output}
	f.mu.Lock()
	f.acks = append(f.acks, rec)
	f.mu.Unlock()
	f.acked <- rec
	return nil
}

func (f *fakeSource) Release(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	return nil
}

// fakeSandbox scripts the result per function id.
type fakeSandbox struct {
	mu    sync.Mutex
	runs  []RunSpec
	run   func(spec RunSpec) (RunResult, error)
	close bool
}

func (s *fakeSandbox) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	s.mu.Lock()
	s.runs = append(s.runs, spec)
	s.mu.Unlock()
	if s.run == nil {
		return RunResult{Output: "ok"}, nil
	}
	return s.run(spec)
}

func (s *fakeSandbox) Close() error {
	s.close = true
	return nil
}

func testTask(taskID string, fid, version uint64) types.TaskAssignment {
	return types.TaskAssignment{
		TaskID:      taskID,
		UID:         42,
		FID:         fid,
		FuncVersion: version,
		Event:       types.NewEvent(types.TriggerRequest, types.SourceRequest, "evt-"+taskID, types.StringValue("x")),
	}
}

func runExecutor(t *testing.T, source *fakeSource, sandbox Sandbox, wantAcks int) []ackRecord {
	t.Helper()

	exec := NewExecutor(source, sandbox, Config{PollWait: time.Second, IdleBackoff: time.Millisecond}, logging.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = exec.Run(ctx)
		close(done)
	}()

	var acks []ackRecord
	for i := 0; i < wantAcks; i++ {
		select {
		case rec := <-source.acked:
			acks = append(acks, rec)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for ack %d of %d", i+1, wantAcks)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not stop after cancel")
	}
	return acks
}

func TestExecuteSuccessAcksWithOutput(t *testing.T) {
	source := newFakeSource(testTask("t1", 7, 1))
	source.code[7] = types.AcquireFuncResponse{FID: 7, Code: "export default () => 'pong'", Resources: types.DefaultResourceLimits()}
	sandbox := &fakeSandbox{run: func(RunSpec) (RunResult, error) {
		return RunResult{Output: "pong"}, nil
	}}

	acks := runExecutor(t, source, sandbox, 1)

	require.Len(t, acks, 1)
	assert.Equal(t, "t1", acks[0].TaskID)
	assert.Equal(t, types.OutcomeSucceeded, acks[0].Outcome)
	assert.Equal(t, "pong", acks[0].Output)
	assert.Empty(t, acks[0].Error)
	assert.True(t, source.released)
}

func TestSandboxReceivesLimitsAndEvent(t *testing.T) {
	source := newFakeSource(testTask("t1", 7, 3))
	source.code[7] = types.AcquireFuncResponse{
		FID:       7,
		Code:      "code",
		Resources: types.ResourceLimits{MemoryMB: 64, CPUMs: 500, ExecutionTimeMs: 1000, StorageKB: 128},
	}
	sandbox := &fakeSandbox{}

	runExecutor(t, source, sandbox, 1)

	require.Len(t, sandbox.runs, 1)
	spec := sandbox.runs[0]
	assert.Equal(t, uint64(7), spec.FID)
	assert.Equal(t, uint64(3), spec.FuncVersion)
	assert.Equal(t, uint64(64), spec.Limits.MemoryMB)
	assert.Equal(t, "evt-t1", spec.Event.Data.ID)
}

func TestTimedOutDistinguishedFromFailed(t *testing.T) {
	source := newFakeSource(
		testTask("t-timeout", 1, 1),
		testTask("t-resource", 2, 1),
		testTask("t-failed", 3, 1),
	)
	for fid := uint64(1); fid <= 3; fid++ {
		source.code[fid] = types.AcquireFuncResponse{FID: fid, Code: "code", Resources: types.DefaultResourceLimits()}
	}

	sandbox := &fakeSandbox{run: func(spec RunSpec) (RunResult, error) {
		switch spec.FID {
		case 1:
			return RunResult{}, fmt.Errorf("deadline: %w", faaserrors.ErrTimedOut)
		case 2:
			return RunResult{}, fmt.Errorf("oom: %w", faaserrors.ErrResourceExceeded)
		default:
			return RunResult{}, errors.New("script threw")
		}
	}}

	acks := runExecutor(t, source, sandbox, 3)

	byTask := map[string]ackRecord{}
	for _, rec := range acks {
		byTask[rec.TaskID] = rec
	}
	assert.Equal(t, types.OutcomeTimedOut, byTask["t-timeout"].Outcome)
	assert.Equal(t, types.OutcomeResourceExceeded, byTask["t-resource"].Outcome)
	assert.Equal(t, types.OutcomeFailed, byTask["t-failed"].Outcome)
	assert.Contains(t, byTask["t-failed"].Error, "script threw")
}

func TestCodeCachedByVersion(t *testing.T) {
	source := newFakeSource(
		testTask("t1", 7, 1),
		testTask("t2", 7, 1),
		testTask("t3", 7, 2),
	)
	source.code[7] = types.AcquireFuncResponse{FID: 7, Code: "code", Resources: types.DefaultResourceLimits()}
	sandbox := &fakeSandbox{}

	runExecutor(t, source, sandbox, 3)

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Equal(t, 2, source.codeCalls, "same version served from cache, version bump refetched")
}

func TestCodeLoadFailureAcksFailed(t *testing.T) {
	source := newFakeSource(testTask("t1", 99, 1))
	sandbox := &fakeSandbox{}

	acks := runExecutor(t, source, sandbox, 1)

	require.Len(t, acks, 1)
	assert.Equal(t, types.OutcomeFailed, acks[0].Outcome)
	assert.Contains(t, acks[0].Error, "code load failed")
	assert.Empty(t, sandbox.runs, "sandbox never runs without code")
}

func TestLoadGateDefersAcquisition(t *testing.T) {
	source := newFakeSource(testTask("t1", 7, 1))
	source.code[7] = types.AcquireFuncResponse{FID: 7, Code: "code", Resources: types.DefaultResourceLimits()}
	sandbox := &fakeSandbox{}

	exec := NewExecutor(source, sandbox, Config{PollWait: time.Second, IdleBackoff: time.Millisecond}, logging.NewNoopLogger())

	var overloaded sync.Mutex
	gateOn := true
	exec.SetLoadGate(func() bool {
		overloaded.Lock()
		defer overloaded.Unlock()
		return gateOn
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = exec.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	source.mu.Lock()
	assert.Len(t, source.tasks, 1, "no acquisition while gated")
	source.mu.Unlock()

	overloaded.Lock()
	gateOn = false
	overloaded.Unlock()

	select {
	case rec := <-source.acked:
		assert.Equal(t, "t1", rec.TaskID)
	case <-time.After(5 * time.Second):
		t.Fatal("task never executed after gate lifted")
	}

	cancel()
	<-done
}

func TestOutcomeForMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.TaskOutcome
	}{
		{"nil is success", nil, types.OutcomeSucceeded},
		{"wrapped timeout", fmt.Errorf("x: %w", faaserrors.ErrTimedOut), types.OutcomeTimedOut},
		{"wrapped resource", fmt.Errorf("x: %w", faaserrors.ErrResourceExceeded), types.OutcomeResourceExceeded},
		{"anything else", errors.New("boom"), types.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := outcomeFor(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}
