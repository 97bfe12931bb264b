package sources

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/R3E-Network/r3e-faas-go/internal/cache"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// BlockReader is the slice of the RPC client the chain adapter needs.
// *ethclient.Client satisfies it.
type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error)
}

type ChainConfig struct {
	// Chain names the origin network, e.g. "neo-mainnet". Stamped into
	// every payload so triggers can subscribe per chain.
	Chain  string
	RPCURL string

	PollInterval  time.Duration
	Confirmations uint64
	BatchSize     uint64

	// Backfill: replay [MinIndex, MaxIndex] before live tailing. MaxIndex 0
	// means up to the current safe head.
	ProcessHistorical bool
	MinIndex          uint64
	MaxIndex          uint64

	// EmitTransactions adds one event per transaction in addition to the
	// per-block event.
	EmitTransactions bool

	// DedupWindow bounds how long emitted ids are remembered.
	DedupWindow time.Duration
}

func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		PollInterval:     15 * time.Second,
		Confirmations:    1,
		BatchSize:        50,
		EmitTransactions: true,
		DedupWindow:      time.Hour,
	}
}

// ChainAdapter polls a blockchain node for finalized blocks and emits a
// block event plus transaction events per block, in source order. The
// resume cursor and dedup window live in the cache so a restart neither
// skips nor repeats blocks.
type ChainAdapter struct {
	cfg    ChainConfig
	client BlockReader
	cache  cache.Cache
	logger logging.Logger
}

func NewChainAdapter(cfg ChainConfig, client BlockReader, c cache.Cache, logger logging.Logger) *ChainAdapter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultChainConfig().PollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultChainConfig().BatchSize
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultChainConfig().DedupWindow
	}
	return &ChainAdapter{cfg: cfg, client: client, cache: c, logger: logger}
}

// DialChainAdapter connects to the configured RPC endpoint.
func DialChainAdapter(ctx context.Context, cfg ChainConfig, c cache.Cache, logger logging.Logger) (*ChainAdapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s node at %s: %w", cfg.Chain, cfg.RPCURL, err)
	}
	return NewChainAdapter(cfg, client, c, logger), nil
}

func (a *ChainAdapter) Name() string {
	return "chain:" + a.cfg.Chain
}

func (a *ChainAdapter) Run(ctx context.Context, emit EmitFunc) error {
	next, err := a.resumeIndex(ctx)
	if err != nil {
		return err
	}

	if a.cfg.ProcessHistorical {
		if err := a.backfill(ctx, emit, &next); err != nil {
			return err
		}
		a.logger.Infof("[ChainAdapter] %s backfill complete at block %d, switching to live tail", a.cfg.Chain, next-1)
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.pollOnce(ctx, emit, &next); err != nil {
				return err
			}
		}
	}
}

// resumeIndex picks the first block to process: the stored cursor plus one,
// the backfill floor, or the current safe head for a fresh live-only start.
func (a *ChainAdapter) resumeIndex(ctx context.Context) (uint64, error) {
	val, err := a.cache.Get(ctx, a.cursorKey())
	switch {
	case err == nil:
		cursor, parseErr := strconv.ParseUint(val, 10, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("corrupt cursor for %s: %w", a.cfg.Chain, parseErr)
		}
		if a.cfg.ProcessHistorical && a.cfg.MinIndex > cursor+1 {
			return a.cfg.MinIndex, nil
		}
		return cursor + 1, nil
	case errors.Is(err, cache.ErrNotFound):
		if a.cfg.ProcessHistorical {
			return a.cfg.MinIndex, nil
		}
		head, headErr := a.safeHead(ctx)
		if headErr != nil {
			return 0, headErr
		}
		return head + 1, nil
	default:
		return 0, fmt.Errorf("failed to read cursor for %s: %w", a.cfg.Chain, err)
	}
}

func (a *ChainAdapter) backfill(ctx context.Context, emit EmitFunc, next *uint64) error {
	ceiling := a.cfg.MaxIndex
	if ceiling == 0 {
		head, err := a.safeHead(ctx)
		if err != nil {
			return err
		}
		ceiling = head
	}

	for *next <= ceiling {
		to := *next + a.cfg.BatchSize - 1
		if to > ceiling {
			to = ceiling
		}
		if err := a.processRange(ctx, emit, *next, to); err != nil {
			return err
		}
		*next = to + 1
	}
	return nil
}

func (a *ChainAdapter) pollOnce(ctx context.Context, emit EmitFunc, next *uint64) error {
	head, err := a.safeHead(ctx)
	if err != nil {
		return err
	}

	for *next <= head {
		to := *next + a.cfg.BatchSize - 1
		if to > head {
			to = head
		}
		if err := a.processRange(ctx, emit, *next, to); err != nil {
			return err
		}
		*next = to + 1
	}
	return nil
}

// safeHead is the newest block old enough to be considered final.
func (a *ChainAdapter) safeHead(ctx context.Context) (uint64, error) {
	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number for %s: %w", a.cfg.Chain, err)
	}
	if head < a.cfg.Confirmations {
		return 0, nil
	}
	return head - a.cfg.Confirmations, nil
}

func (a *ChainAdapter) processRange(ctx context.Context, emit EmitFunc, from, to uint64) error {
	for n := from; n <= to; n++ {
		block, err := a.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return fmt.Errorf("failed to fetch %s block %d: %w", a.cfg.Chain, n, err)
		}
		if err := a.emitBlock(ctx, emit, block); err != nil {
			return err
		}
		if err := a.cache.Set(ctx, a.cursorKey(), strconv.FormatUint(n, 10), 0); err != nil {
			a.logger.Warnf("[ChainAdapter] failed to persist cursor for %s at %d: %v", a.cfg.Chain, n, err)
		}
	}
	return nil
}

func (a *ChainAdapter) emitBlock(ctx context.Context, emit EmitFunc, block *ethtypes.Block) error {
	hash := block.Hash().Hex()
	seen, err := a.alreadyEmitted(ctx, hash)
	if err != nil {
		return err
	}
	if !seen {
		payload := types.MapValue(map[string]types.Value{
			"chain":      types.StringValue(a.cfg.Chain),
			"event_type": types.StringValue("block"),
			"index":      types.Int64Value(int64(block.NumberU64())),
			"hash":       types.StringValue(hash),
			"time":       types.Int64Value(int64(block.Time())),
			"tx_count":   types.Int64Value(int64(len(block.Transactions()))),
		})
		if err := emit(ctx, types.NewEvent(types.TriggerBlockchain, types.SourceChain, hash, payload)); err != nil {
			return err
		}
		a.markEmitted(ctx, hash)
	}

	if !a.cfg.EmitTransactions {
		return nil
	}
	for i, tx := range block.Transactions() {
		if err := a.emitTransaction(ctx, emit, block, i, tx); err != nil {
			return err
		}
	}
	return nil
}

func (a *ChainAdapter) emitTransaction(ctx context.Context, emit EmitFunc, block *ethtypes.Block, txIndex int, tx *ethtypes.Transaction) error {
	txHash := tx.Hash().Hex()
	seen, err := a.alreadyEmitted(ctx, txHash)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	fields := map[string]types.Value{
		"chain":      types.StringValue(a.cfg.Chain),
		"event_type": types.StringValue("transaction"),
		"index":      types.Int64Value(int64(block.NumberU64())),
		"tx_hash":    types.StringValue(txHash),
		"tx_index":   types.Int64Value(int64(txIndex)),
		"value":      types.StringValue(tx.Value().String()),
		"gas":        types.Int64Value(int64(tx.Gas())),
	}
	if to := tx.To(); to != nil {
		fields["to"] = types.StringValue(to.Hex())
	}
	if err := emit(ctx, types.NewEvent(types.TriggerBlockchain, types.SourceChain, txHash, types.MapValue(fields))); err != nil {
		return err
	}
	a.markEmitted(ctx, txHash)
	return nil
}

// alreadyEmitted reports whether a previous run delivered this source-native
// id within the dedup window.
func (a *ChainAdapter) alreadyEmitted(ctx context.Context, id string) (bool, error) {
	_, err := a.cache.Get(ctx, a.seenKey(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, cache.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("dedup check failed for %s: %w", id, err)
}

// markEmitted records the id only after a successful emit, so an emit that
// fails mid-range is retried on the next run. A failed mark at worst causes
// one re-emission, which event registration absorbs.
func (a *ChainAdapter) markEmitted(ctx context.Context, id string) {
	if err := a.cache.Set(ctx, a.seenKey(id), "1", a.cfg.DedupWindow); err != nil {
		a.logger.Warnf("[ChainAdapter] failed to mark %s as emitted: %v", id, err)
	}
}

func (a *ChainAdapter) seenKey(id string) string {
	return "seen:" + a.cfg.Chain + ":" + id
}

func (a *ChainAdapter) cursorKey() string {
	return "cursor:" + a.cfg.Chain
}
