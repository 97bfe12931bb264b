package sources

import (
	"context"

	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// MockAdapter emits a fixed sequence and finishes. Test-only.
type MockAdapter struct {
	AdapterName string
	Events      []types.Event
	// Fail makes Run return this error after emitting Events.
	Fail error
}

func (a *MockAdapter) Name() string {
	if a.AdapterName == "" {
		return "mock"
	}
	return a.AdapterName
}

func (a *MockAdapter) Run(ctx context.Context, emit EmitFunc) error {
	for _, event := range a.Events {
		if err := emit(ctx, event); err != nil {
			return err
		}
	}
	return a.Fail
}
