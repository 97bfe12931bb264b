package types

import (
	"time"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
)

// ResourceLimits are hard ceilings enforced by the worker executor.
// CPUMs is a scheduling-priority hint rather than a hard kill.
type ResourceLimits struct {
	MemoryMB        uint64 `json:"memory_mb"`
	CPUMs           uint64 `json:"cpu_ms"`
	ExecutionTimeMs uint64 `json:"execution_time_ms"`
	StorageKB       uint64 `json:"storage_kb"`
}

// DefaultResourceLimits are applied when registration omits limits.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MemoryMB:        128,
		CPUMs:           1000,
		ExecutionTimeMs: 30000,
		StorageKB:       1024,
	}
}

func (r ResourceLimits) Validate() error {
	if r.MemoryMB == 0 {
		return faaserrors.Invalid("memory_mb must be positive")
	}
	if r.ExecutionTimeMs == 0 {
		return faaserrors.Invalid("execution_time_ms must be positive")
	}
	return nil
}

// NetworkPermissions holds the outbound allow-list.
type NetworkPermissions struct {
	Outbound []string `json:"outbound,omitempty"`
}

// StoragePermissions scope persistent storage access to a namespace.
type StoragePermissions struct {
	Read      bool   `json:"read"`
	Write     bool   `json:"write"`
	Namespace string `json:"namespace,omitempty"`
}

// BlockchainPermissions hold the contract allow-list for chain access.
type BlockchainPermissions struct {
	Read      bool     `json:"read"`
	Write     bool     `json:"write"`
	Contracts []string `json:"contracts,omitempty"`
}

type Permissions struct {
	Network    NetworkPermissions    `json:"network"`
	Storage    StoragePermissions    `json:"storage"`
	Blockchain BlockchainPermissions `json:"blockchain"`
}

// FunctionMetadata is owned exclusively by the registry; mutation only
// through explicit register/update/delete operations.
type FunctionMetadata struct {
	ID          uint64         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     uint64         `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Trigger     TriggerConfig  `json:"trigger"`
	Permissions Permissions    `json:"permissions"`
	Resources   ResourceLimits `json:"resources"`
	Code        string         `json:"code"`
}

func (f FunctionMetadata) Validate() error {
	if f.Name == "" {
		return faaserrors.Invalid("function name is required")
	}
	if f.Code == "" {
		return faaserrors.Invalid("function code is required")
	}
	if err := f.Trigger.Validate(); err != nil {
		return err
	}
	return f.Resources.Validate()
}

// FunctionCode is the versioned code payload served to workers.
type FunctionCode struct {
	FID     uint64 `json:"fid"`
	Version uint64 `json:"version"`
	Code    string `json:"code"`
}
