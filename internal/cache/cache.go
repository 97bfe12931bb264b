// Package cache provides the small key-value store the source adapters use
// for emission dedup windows and resume cursors. Redis when configured,
// in-memory otherwise.
package cache

import (
	"context"
	"time"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores the value only if the key is absent. The bool reports
	// whether this call claimed the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = faaserrors.ErrNotFound
