package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

func mockEvent(id string) types.Event {
	return types.NewEvent(types.TriggerBlockchain, types.SourceMock, id, types.MapValue(nil))
}

func TestManagerRunsFiniteAdapter(t *testing.T) {
	m := NewManager(logging.NewNoopLogger())
	adapter := &MockAdapter{Events: []types.Event{mockEvent("a"), mockEvent("b")}}
	m.Register(adapter)

	var got []string
	m.Start(context.Background(), func(_ context.Context, e types.Event) error {
		got = append(got, e.Data.ID)
		return nil
	})
	m.Wait()

	assert.Equal(t, []string{"a", "b"}, got, "events arrive in source order")
	assert.Equal(t, SourceStateFinished, m.States()["mock"])
}

func TestManagerIsolatesFailedSource(t *testing.T) {
	m := NewManager(logging.NewNoopLogger())
	m.retryCfg.MaxRetries = 2
	m.retryCfg.InitialDelay = time.Millisecond

	m.Register(&MockAdapter{AdapterName: "broken", Fail: errors.New("rpc down")})
	m.Register(&MockAdapter{AdapterName: "healthy", Events: []types.Event{mockEvent("a")}})

	delivered := 0
	m.Start(context.Background(), func(_ context.Context, e types.Event) error {
		delivered++
		return nil
	})
	m.Wait()

	states := m.States()
	assert.Equal(t, SourceStateUnavailable, states["broken"])
	assert.Equal(t, SourceStateFinished, states["healthy"])
	// The healthy adapter delivered despite its sibling failing; the broken
	// one re-emitted its (empty) sequence per retry.
	assert.Equal(t, 1, delivered)
}

func TestManagerRetriesBeforeGivingUp(t *testing.T) {
	m := NewManager(logging.NewNoopLogger())
	m.retryCfg.MaxRetries = 3
	m.retryCfg.InitialDelay = time.Millisecond

	runs := 0
	m.Register(adapterFunc(func(ctx context.Context, emit EmitFunc) error {
		runs++
		if runs < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	m.Start(context.Background(), func(context.Context, types.Event) error { return nil })
	m.Wait()

	assert.Equal(t, 3, runs)
	assert.Equal(t, SourceStateFinished, m.States()["func"])
}

type adapterFunc func(ctx context.Context, emit EmitFunc) error

func (f adapterFunc) Name() string                                { return "func" }
func (f adapterFunc) Run(ctx context.Context, emit EmitFunc) error { return f(ctx, emit) }

func TestRequestAdapterEmitsOncePerSubmit(t *testing.T) {
	a := NewRequestAdapter(logging.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan types.Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx, func(_ context.Context, e types.Event) error {
			got <- e
			return nil
		})
	}()

	id, err := a.Submit(ctx, "req-1", types.StringValue("hello"))
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)

	generated, err := a.Submit(ctx, "", types.StringValue("anon"))
	require.NoError(t, err)
	assert.NotEmpty(t, generated)

	first := <-got
	assert.Equal(t, "req-1", first.Data.ID)
	assert.Equal(t, types.TriggerRequest, first.Context.Trigger)
	assert.Equal(t, types.SourceRequest, first.Context.Source)

	second := <-got
	assert.Equal(t, generated, second.Data.ID)

	cancel()
	<-done
	select {
	case e := <-got:
		t.Fatalf("unexpected extra emission %s", e.Data.ID)
	default:
	}
}
