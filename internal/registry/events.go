package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// RegisterEvent appends an event to the log. Registration is idempotent per
// source+trigger+id within the retention window: a duplicate is dropped
// without error so adapters can replay safely. The bool reports whether the
// event was newly accepted; callers skip matching for duplicates.
func (r *Registry) RegisterEvent(ctx context.Context, event types.Event) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	key := event.DedupKey()

	r.evMu.Lock()
	if _, dup := r.seen[key]; dup {
		r.evMu.Unlock()
		return false, nil
	}
	entry := &eventEntry{event: event, registeredAt: time.Now()}
	r.seen[key] = entry
	r.byTrigger[event.Context.Trigger] = append(r.byTrigger[event.Context.Trigger], entry)
	r.evMu.Unlock()

	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.evMu.Lock()
		delete(r.seen, key)
		r.evMu.Unlock()
		return false, fmt.Errorf("failed to append event %s: %w", event.Data.ID, err)
	}

	r.evictOverflow(ctx, event.Context.Trigger)
	return true, nil
}

// GetEventsByTrigger returns stored events of a trigger class within
// [from, to] unix seconds; to == 0 means no upper bound.
func (r *Registry) GetEventsByTrigger(ctx context.Context, kind types.TriggerKind, from, to uint64) ([]types.Event, error) {
	return r.store.ListEventsByTrigger(ctx, kind, from, to)
}

// PinEvent marks an event as referenced by an in-flight task so eviction
// holds off until the lease is acknowledged (or the hard ceiling passes).
func (r *Registry) PinEvent(event types.Event) {
	r.evMu.Lock()
	defer r.evMu.Unlock()
	if entry, ok := r.seen[event.DedupKey()]; ok {
		entry.pins++
	}
}

// UnpinEvent releases one task reference on the event.
func (r *Registry) UnpinEvent(event types.Event) {
	r.evMu.Lock()
	defer r.evMu.Unlock()
	if entry, ok := r.seen[event.DedupKey()]; ok && entry.pins > 0 {
		entry.pins--
	}
}

// EventCount reports the retained entries for one trigger class.
func (r *Registry) EventCount(kind types.TriggerKind) int {
	r.evMu.Lock()
	defer r.evMu.Unlock()
	return len(r.byTrigger[kind])
}

// evictOverflow enforces MaxEventsPerTrigger, oldest first, skipping pinned
// entries unless they are past the hard ceiling.
func (r *Registry) evictOverflow(ctx context.Context, kind types.TriggerKind) {
	now := time.Now()

	r.evMu.Lock()
	var victims []*eventEntry
	entries := r.byTrigger[kind]
	for len(entries) > r.cfg.MaxEventsPerTrigger {
		idx := -1
		for i, entry := range entries {
			if entry.pins == 0 || now.Sub(entry.registeredAt) >= r.cfg.HardTTLCeiling {
				idx = i
				break
			}
		}
		if idx < 0 {
			// Everything old is leased; let the TTL sweep catch up later.
			break
		}
		victims = append(victims, entries[idx])
		entries = append(entries[:idx], entries[idx+1:]...)
	}
	r.byTrigger[kind] = entries
	for _, v := range victims {
		delete(r.seen, v.event.DedupKey())
	}
	r.evMu.Unlock()

	r.deleteEvicted(ctx, victims)
}

// EvictExpired applies the TTL bound: unpinned entries older than EventTTL
// go, pinned entries only once past the hard ceiling. Called periodically by
// the engine.
func (r *Registry) EvictExpired(ctx context.Context) int {
	now := time.Now()

	r.evMu.Lock()
	var victims []*eventEntry
	for kind, entries := range r.byTrigger {
		kept := entries[:0]
		for _, entry := range entries {
			age := now.Sub(entry.registeredAt)
			expired := (entry.pins == 0 && age >= r.cfg.EventTTL) || age >= r.cfg.HardTTLCeiling
			if expired {
				victims = append(victims, entry)
				delete(r.seen, entry.event.DedupKey())
				continue
			}
			kept = append(kept, entry)
		}
		r.byTrigger[kind] = kept
	}
	r.evMu.Unlock()

	r.deleteEvicted(ctx, victims)
	return len(victims)
}

func (r *Registry) deleteEvicted(ctx context.Context, victims []*eventEntry) {
	for _, v := range victims {
		if err := r.store.DeleteEvent(ctx, v.event); err != nil {
			r.logger.Warnf("[EvictEvents] failed to delete event %s: %v", v.event.Data.ID, err)
		}
	}
}

// RecordExecution persists the outcome of a task against its (function,
// event) pair. Failures are recorded, never silently dropped.
func (r *Registry) RecordExecution(ctx context.Context, rec types.ExecutionRecord) error {
	if err := r.store.AppendExecution(ctx, rec); err != nil {
		return fmt.Errorf("failed to record execution %s: %w", rec.TaskID, err)
	}
	return nil
}

// ListExecutions returns the most recent execution records for a function.
func (r *Registry) ListExecutions(ctx context.Context, fid uint64, limit int) ([]types.ExecutionRecord, error) {
	return r.store.ListExecutions(ctx, fid, limit)
}
