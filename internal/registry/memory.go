package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// MemoryStore is the in-process Store used by tests and dev mode. The same
// prefix discipline as the Scylla store, without the network.
type MemoryStore struct {
	mu         sync.RWMutex
	functions  map[uint64]types.FunctionMetadata
	versions   map[string]types.FunctionCode
	events     map[types.TriggerKind][]types.Event
	executions map[uint64][]types.ExecutionRecord
	nextID     uint64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		functions:  make(map[uint64]types.FunctionMetadata),
		versions:   make(map[string]types.FunctionCode),
		events:     make(map[types.TriggerKind][]types.Event),
		executions: make(map[uint64][]types.ExecutionRecord),
	}
}

func versionKey(id, version uint64) string {
	return fmt.Sprintf("fnver:%d:%d", id, version)
}

func (s *MemoryStore) PutFunction(ctx context.Context, fn types.FunctionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[fn.ID] = fn
	return nil
}

func (s *MemoryStore) GetFunction(ctx context.Context, id uint64) (types.FunctionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.functions[id]
	if !ok {
		return types.FunctionMetadata{}, fmt.Errorf("function %d: %w", id, faaserrors.ErrNotFound)
	}
	return fn, nil
}

func (s *MemoryStore) DeleteFunction(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.functions[id]; !ok {
		return fmt.Errorf("function %d: %w", id, faaserrors.ErrNotFound)
	}
	delete(s.functions, id)
	return nil
}

func (s *MemoryStore) ListFunctions(ctx context.Context) ([]types.FunctionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.FunctionMetadata, 0, len(s.functions))
	for _, fn := range s.functions {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) NextFunctionID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *MemoryStore) PutFunctionVersion(ctx context.Context, code types.FunctionCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[versionKey(code.FID, code.Version)] = code
	return nil
}

func (s *MemoryStore) GetFunctionVersion(ctx context.Context, id, version uint64) (types.FunctionCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.versions[versionKey(id, version)]
	if !ok {
		return types.FunctionCode{}, fmt.Errorf("function %d version %d: %w", id, version, faaserrors.ErrNotFound)
	}
	return code, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := event.Context.Trigger
	s.events[kind] = append(s.events[kind], event)
	return nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := event.Context.Trigger
	kept := s.events[kind][:0]
	for _, e := range s.events[kind] {
		if e.DedupKey() != event.DedupKey() {
			kept = append(kept, e)
		}
	}
	s.events[kind] = kept
	return nil
}

func (s *MemoryStore) ListEventsByTrigger(ctx context.Context, kind types.TriggerKind, from, to uint64) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Event
	for _, e := range s.events[kind] {
		if e.Context.TriggeredTime >= from && (to == 0 || e.Context.TriggeredTime <= to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendExecution(ctx context.Context, rec types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[rec.FID] = append(s.executions[rec.FID], rec)
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, fid uint64, limit int) ([]types.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.executions[fid]
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]types.ExecutionRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) Close() {}
