// Package matcher is the scheduling decision point: it evaluates registered
// triggers against each incoming event, synchronously on the ingestion path.
package matcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/r3e-faas-go/internal/registry"
	"github.com/R3E-Network/r3e-faas-go/pkg/filter"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// Match identifies one (function, sub-trigger) pair that matched an event.
// A multi-trigger function may appear once per applicable sub-trigger, each
// becoming a distinct task.
type Match struct {
	FID          uint64
	FuncVersion  uint64
	TriggerIndex int
}

// Matcher evaluates trigger configurations against events. Matching is
// re-entrant and side-effect-free so backfill replays produce identical
// matches; the only mutable state is the compiled-filter cache.
type Matcher struct {
	registry *registry.Registry
	logger   logging.Logger

	mu    sync.RWMutex
	cache map[filterKey]*filter.Filter
}

type filterKey struct {
	fid     uint64
	version uint64
	index   int
}

func New(reg *registry.Registry, logger logging.Logger) *Matcher {
	return &Matcher{
		registry: reg,
		logger:   logger,
		cache:    make(map[filterKey]*filter.Filter),
	}
}

// MatchEvent returns the functions whose triggers match the event. Filter
// evaluation errors are logged and treated as non-match; one misbehaving
// filter never blocks the others.
func (m *Matcher) MatchEvent(ctx context.Context, event types.Event) ([]Match, error) {
	functions, err := m.registry.AllFunctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}

	var matches []Match
	for _, fn := range functions {
		for idx, sub := range fn.Trigger.SubTriggers() {
			if m.subTriggerMatches(fn, idx, sub, event) {
				matches = append(matches, Match{FID: fn.ID, FuncVersion: fn.Version, TriggerIndex: idx})
			}
		}
	}
	return matches, nil
}

func (m *Matcher) subTriggerMatches(fn types.FunctionMetadata, idx int, sub types.TriggerConfig, event types.Event) bool {
	kind, ok := sub.Type.Kind()
	if !ok || kind != event.Context.Trigger {
		return false
	}

	if sub.Type == types.TriggerTypeSchedule {
		return scheduleFieldsMatch(sub.Schedule, event)
	}

	if sub.Type == types.TriggerTypeBlockchain {
		if !blockchainFieldsMatch(sub.Blockchain, event) {
			return false
		}
		if len(sub.Blockchain.Filter) > 0 {
			compiled, err := m.compiledFilter(fn, idx, sub.Blockchain.Filter)
			if err != nil {
				m.logger.Warnf("[MatchEvent] function %d trigger %d has uncompilable filter: %v", fn.ID, idx, err)
				return false
			}
			result, err := compiled.Evaluate(event)
			if err != nil {
				m.logger.Warnf("[MatchEvent] function %d trigger %d filter error on event %s: %v", fn.ID, idx, event.Data.ID, err)
				return false
			}
			return result
		}
	}

	return true
}

// scheduleFieldsMatch narrows a timer tick to the functions subscribed to
// that cron spec. Ticks always carry the spec in the payload.
func scheduleFieldsMatch(trigger *types.ScheduleTrigger, event types.Event) bool {
	if trigger == nil {
		return false
	}
	if spec, ok := event.Data.Payload.Lookup("cron"); ok {
		return spec.Stringify() == trigger.Cron
	}
	return true
}

// blockchainFieldsMatch narrows by the chain and event type the trigger
// subscribed to, when the adapter stamped them into the payload.
func blockchainFieldsMatch(trigger *types.BlockchainTrigger, event types.Event) bool {
	if trigger == nil {
		return false
	}
	if trigger.Source != "" {
		if chain, ok := event.Data.Payload.Lookup("chain"); ok && chain.Stringify() != trigger.Source {
			return false
		}
	}
	if trigger.EventType != "" {
		if eventType, ok := event.Data.Payload.Lookup("event_type"); ok && eventType.Stringify() != trigger.EventType {
			return false
		}
	}
	return true
}

// compiledFilter returns the cached compiled filter for a function version,
// compiling on first use. Entries for superseded versions are dropped as
// they are encountered.
func (m *Matcher) compiledFilter(fn types.FunctionMetadata, idx int, raw []byte) (*filter.Filter, error) {
	key := filterKey{fid: fn.ID, version: fn.Version, index: idx}

	m.mu.RLock()
	compiled, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := filter.Parse(raw)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for stale := range m.cache {
		if stale.fid == fn.ID && stale.version != fn.Version {
			delete(m.cache, stale)
		}
	}
	m.cache[key] = compiled
	m.mu.Unlock()

	return compiled, nil
}
