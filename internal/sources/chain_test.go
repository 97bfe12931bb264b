package sources

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/r3e-faas-go/internal/cache"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

type fakeChain struct {
	head   uint64
	blocks map[uint64]*ethtypes.Block
}

func newFakeChain(head uint64) *fakeChain {
	f := &fakeChain{head: head, blocks: make(map[uint64]*ethtypes.Block)}
	for n := uint64(0); n <= head; n++ {
		header := &ethtypes.Header{
			Number: new(big.Int).SetUint64(n),
			Time:   1700000000 + n,
		}
		f.blocks[n] = ethtypes.NewBlock(header, &ethtypes.Body{}, nil, nil)
	}
	return f
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeChain) BlockByNumber(_ context.Context, number *big.Int) (*ethtypes.Block, error) {
	return f.blocks[number.Uint64()], nil
}

func testChainConfig() ChainConfig {
	cfg := DefaultChainConfig()
	cfg.Chain = "neo-mainnet"
	cfg.PollInterval = time.Hour // live tail never fires in tests
	cfg.EmitTransactions = false
	return cfg
}

// runBackfill runs the adapter until n events arrive, then cancels.
func runBackfill(t *testing.T, a *ChainAdapter, n int) []types.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collected := make(chan types.Event, n+8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx, func(_ context.Context, e types.Event) error {
			collected <- e
			return nil
		})
	}()

	var events []types.Event
	for len(events) < n {
		select {
		case e := <-collected:
			events = append(events, e)
		case <-ctx.Done():
			t.Fatalf("received %d of %d events before deadline", len(events), n)
		}
	}
	cancel()
	<-done
	return events
}

func TestChainAdapterBackfillRange(t *testing.T) {
	cfg := testChainConfig()
	cfg.ProcessHistorical = true
	cfg.MinIndex = 10
	cfg.MaxIndex = 14
	cfg.BatchSize = 2

	a := NewChainAdapter(cfg, newFakeChain(100), cache.NewMemoryCache(), logging.NewNoopLogger())
	events := runBackfill(t, a, 5)

	for i, e := range events {
		assert.Equal(t, types.TriggerBlockchain, e.Context.Trigger)
		assert.Equal(t, types.SourceChain, e.Context.Source)

		index, ok := e.Data.Payload.Lookup("index")
		require.True(t, ok)
		got, _ := index.AsInt64()
		assert.Equal(t, int64(10+i), got, "blocks emitted in source order")

		chainField, ok := e.Data.Payload.Lookup("chain")
		require.True(t, ok)
		assert.Equal(t, "neo-mainnet", chainField.Stringify())

		eventType, ok := e.Data.Payload.Lookup("event_type")
		require.True(t, ok)
		assert.Equal(t, "block", eventType.Stringify())
	}
}

func TestChainAdapterResumesFromCursor(t *testing.T) {
	cfg := testChainConfig()
	cfg.ProcessHistorical = true
	cfg.MinIndex = 0
	cfg.MaxIndex = 20
	c := cache.NewMemoryCache()
	require.NoError(t, c.Set(context.Background(), "cursor:neo-mainnet", "17", 0))

	a := NewChainAdapter(cfg, newFakeChain(100), c, logging.NewNoopLogger())
	events := runBackfill(t, a, 3)

	index, _ := events[0].Data.Payload.Lookup("index")
	first, _ := index.AsInt64()
	assert.Equal(t, int64(18), first, "restart continues after the persisted cursor")
}

func TestChainAdapterDedupWindowSkipsSeen(t *testing.T) {
	cfg := testChainConfig()
	cfg.ProcessHistorical = true
	cfg.MinIndex = 0
	cfg.MaxIndex = 4

	chain := newFakeChain(100)
	c := cache.NewMemoryCache()

	// Mark block 2 as already emitted by a previous run.
	seen := "seen:neo-mainnet:" + chain.blocks[2].Hash().Hex()
	require.NoError(t, c.Set(context.Background(), seen, "1", time.Hour))

	a := NewChainAdapter(cfg, chain, c, logging.NewNoopLogger())
	events := runBackfill(t, a, 4)

	var indices []int64
	for _, e := range events {
		index, _ := e.Data.Payload.Lookup("index")
		v, _ := index.AsInt64()
		indices = append(indices, v)
	}
	assert.Equal(t, []int64{0, 1, 3, 4}, indices)
}

func TestChainAdapterRetriesBlockAfterEmitFailure(t *testing.T) {
	cfg := testChainConfig()
	cfg.ProcessHistorical = true
	cfg.MinIndex = 5
	cfg.MaxIndex = 5

	chain := newFakeChain(100)
	c := cache.NewMemoryCache()

	// First run: downstream rejects the event and the run aborts.
	a := NewChainAdapter(cfg, chain, c, logging.NewNoopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx, func(context.Context, types.Event) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	// A restart over the same cache must still deliver the block: it is
	// marked seen only once an emit succeeds.
	a = NewChainAdapter(cfg, chain, c, logging.NewNoopLogger())
	events := runBackfill(t, a, 1)

	index, _ := events[0].Data.Payload.Lookup("index")
	got, _ := index.AsInt64()
	assert.Equal(t, int64(5), got)
}

func TestChainAdapterConfirmationDepth(t *testing.T) {
	cfg := testChainConfig()
	cfg.ProcessHistorical = true
	cfg.MinIndex = 95
	cfg.MaxIndex = 0 // up to safe head
	cfg.Confirmations = 3

	a := NewChainAdapter(cfg, newFakeChain(100), cache.NewMemoryCache(), logging.NewNoopLogger())
	events := runBackfill(t, a, 3)

	var indices []int64
	for _, e := range events {
		index, _ := e.Data.Payload.Lookup("index")
		v, _ := index.AsInt64()
		indices = append(indices, v)
	}
	// Head is 100; with 3 confirmations only blocks up to 97 are final.
	assert.Equal(t, []int64{95, 96, 97}, indices)
}
