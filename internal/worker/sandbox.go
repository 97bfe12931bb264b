// Package worker pulls task assignments from the engine, executes function
// code inside a resource-capped sandbox, and acknowledges each lease with a
// terminal outcome.
package worker

import (
	"context"

	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// RunSpec is one sandboxed invocation: the code to run, the triggering event
// and the caps the sandbox must enforce.
type RunSpec struct {
	FID         uint64
	FuncVersion uint64
	Code        string
	Event       types.Event
	Limits      types.ResourceLimits
	Permissions types.Permissions
}

// RunResult carries the function's output on success.
type RunResult struct {
	Output string
}

// Sandbox executes untrusted function code under the caps in RunSpec.
// Implementations return errors wrapping faaserrors.ErrTimedOut when the
// wall-clock deadline is hit and faaserrors.ErrResourceExceeded when a
// resource cap is violated; any other error is a plain execution failure.
type Sandbox interface {
	Run(ctx context.Context, spec RunSpec) (RunResult, error)
	Close() error
}
