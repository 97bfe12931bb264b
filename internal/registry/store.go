package registry

import (
	"context"

	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// Store is the durable keyspace behind the registry. Keys follow a
// prefix-per-table discipline (fn:, fnver:, evt:, exec:) so each table can
// be retained and iterated independently. Implementations must accept
// concurrent readers; the registry serializes writes per function id above
// this layer.
type Store interface {
	// Function metadata table (fn:<id>).
	PutFunction(ctx context.Context, fn types.FunctionMetadata) error
	GetFunction(ctx context.Context, id uint64) (types.FunctionMetadata, error)
	DeleteFunction(ctx context.Context, id uint64) error
	ListFunctions(ctx context.Context) ([]types.FunctionMetadata, error)
	NextFunctionID(ctx context.Context) (uint64, error)

	// Versioned code table (fnver:<id>:<version>). Updates create a new
	// version without deleting prior versions.
	PutFunctionVersion(ctx context.Context, code types.FunctionCode) error
	GetFunctionVersion(ctx context.Context, id, version uint64) (types.FunctionCode, error)

	// Event log (evt:<trigger>:<seq>), append-only.
	AppendEvent(ctx context.Context, event types.Event) error
	DeleteEvent(ctx context.Context, event types.Event) error
	ListEventsByTrigger(ctx context.Context, kind types.TriggerKind, from, to uint64) ([]types.Event, error)

	// Execution history (exec:<fid>:<task>).
	AppendExecution(ctx context.Context, rec types.ExecutionRecord) error
	ListExecutions(ctx context.Context, fid uint64, limit int) ([]types.ExecutionRecord, error)

	Close()
}
