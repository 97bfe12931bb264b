package sources

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

type staticLister struct {
	functions []types.FunctionMetadata
}

func (l *staticLister) AllFunctions(context.Context) ([]types.FunctionMetadata, error) {
	return l.functions, nil
}

func scheduledFn(id uint64, spec, tz string) types.FunctionMetadata {
	return types.FunctionMetadata{
		ID:      id,
		Name:    "scheduled",
		Version: 1,
		Trigger: types.TriggerConfig{
			Type:     types.TriggerTypeSchedule,
			Schedule: &types.ScheduleTrigger{Cron: spec, Timezone: tz},
		},
		Code: "export default function(e) {}",
	}
}

func TestTimerSyncAddsAndRemovesEntries(t *testing.T) {
	lister := &staticLister{functions: []types.FunctionMetadata{
		scheduledFn(1, "*/5 * * * *", ""),
		scheduledFn(2, "0 0 * * *", "UTC"),
		// Same spec as function 1: one shared cron entry.
		scheduledFn(3, "*/5 * * * *", ""),
	}}
	a := NewTimerAdapter(DefaultTimerConfig(), lister, logging.NewNoopLogger())

	runner := cron.New()
	ticks := make(chan timerTick, 8)
	require.NoError(t, a.syncEntries(context.Background(), runner, ticks))
	assert.Len(t, a.entries, 2, "duplicate specs share one entry")

	lister.functions = lister.functions[:1]
	require.NoError(t, a.syncEntries(context.Background(), runner, ticks))
	assert.Len(t, a.entries, 1)
	_, ok := a.entries["|*/5 * * * *"]
	assert.True(t, ok, "surviving entry is the still-registered spec")
}

func TestTimerSyncRejectsBadSpecWithoutFailing(t *testing.T) {
	lister := &staticLister{functions: []types.FunctionMetadata{
		scheduledFn(1, "not a cron spec", ""),
		scheduledFn(2, "*/5 * * * *", ""),
	}}
	a := NewTimerAdapter(DefaultTimerConfig(), lister, logging.NewNoopLogger())

	runner := cron.New()
	require.NoError(t, a.syncEntries(context.Background(), runner, make(chan timerTick, 8)))
	assert.Len(t, a.entries, 1)
}

func TestTimerRunRestartKeepsSchedulesLive(t *testing.T) {
	lister := &staticLister{functions: []types.FunctionMetadata{
		scheduledFn(1, "@every 50ms", ""),
	}}
	a := NewTimerAdapter(DefaultTimerConfig(), lister, logging.NewNoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// First run dies on an emit failure.
	err := a.Run(ctx, func(context.Context, types.Event) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	// The manager restarts the adapter; ticks must flow again.
	got := make(chan types.Event, 1)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(runCtx, func(_ context.Context, e types.Event) error {
			select {
			case got <- e:
			default:
			}
			return nil
		})
	}()

	select {
	case e := <-got:
		assert.Equal(t, types.TriggerSchedule, e.Context.Trigger)
	case <-ctx.Done():
		t.Fatal("no tick fired after restart")
	}
	stop()
	<-done
}

func TestTickEventShape(t *testing.T) {
	firedAt := time.Unix(1700000000, 0)
	e := tickEvent(timerTick{spec: "*/5 * * * *", timezone: "UTC", firedAt: firedAt})

	assert.Equal(t, types.TriggerSchedule, e.Context.Trigger)
	assert.Equal(t, types.SourceTimer, e.Context.Source)
	assert.Equal(t, "*/5 * * * *@1700000000", e.Data.ID, "tick ids are deterministic per fire")

	spec, ok := e.Data.Payload.Lookup("cron")
	require.True(t, ok)
	assert.Equal(t, "*/5 * * * *", spec.Stringify())

	fireTime, ok := e.Data.Payload.Lookup("fire_time")
	require.True(t, ok)
	ts, _ := fireTime.AsInt64()
	assert.Equal(t, int64(1700000000), ts)
}

func TestCronSpecTimezonePrefix(t *testing.T) {
	assert.Equal(t, "CRON_TZ=Asia/Tokyo 0 9 * * *",
		cronSpec(&types.ScheduleTrigger{Cron: "0 9 * * *", Timezone: "Asia/Tokyo"}))
	assert.Equal(t, "0 9 * * *", cronSpec(&types.ScheduleTrigger{Cron: "0 9 * * *"}))
}
