package sources

import (
	"context"
	"fmt"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// RequestAdapter bridges the API intake into the ingestion path. Submissions
// are queued and emitted asynchronously; a resubmitted request id is dropped
// downstream by event registration, not rejected at intake.
type RequestAdapter struct {
	logger logging.Logger
	inbox  chan types.Event
}

const requestInboxSize = 256

func NewRequestAdapter(logger logging.Logger) *RequestAdapter {
	return &RequestAdapter{
		logger: logger,
		inbox:  make(chan types.Event, requestInboxSize),
	}
}

func (a *RequestAdapter) Name() string { return "request" }

// Submit hands a direct request to the adapter. The id is caller-assigned;
// pass "" to generate one. The returned event id identifies the emission.
func (a *RequestAdapter) Submit(ctx context.Context, id string, payload types.Value) (string, error) {
	event := types.NewEvent(types.TriggerRequest, types.SourceRequest, id, payload)
	select {
	case a.inbox <- event:
		return event.Data.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", fmt.Errorf("request intake full: %w", faaserrors.ErrResourceExceeded)
	}
}

func (a *RequestAdapter) Run(ctx context.Context, emit EmitFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-a.inbox:
			if err := emit(ctx, event); err != nil {
				a.logger.Errorf("[RequestAdapter] failed to emit request %s: %v", event.Data.ID, err)
				return err
			}
		}
	}
}
