// Package registry owns function metadata and the recent-event log. All
// metadata mutation goes through explicit register/update/delete operations;
// no other component writes it.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// Config bounds event retention per trigger class.
type Config struct {
	// EventTTL is the soft retention window. Leased events outlive it.
	EventTTL time.Duration
	// MaxEventsPerTrigger caps each trigger class, oldest evicted first.
	MaxEventsPerTrigger int
	// HardTTLCeiling evicts regardless of outstanding leases.
	HardTTLCeiling time.Duration
}

func DefaultConfig() Config {
	return Config{
		EventTTL:            time.Hour,
		MaxEventsPerTrigger: 10000,
		HardTTLCeiling:      24 * time.Hour,
	}
}

// CodeFetcher resolves function code supplied by URI at registration time.
type CodeFetcher interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

type eventEntry struct {
	event        types.Event
	registeredAt time.Time
	pins         int
}

// Registry is an explicit store handle passed to every component; open one
// with Open and inject it, there is no process-wide singleton.
type Registry struct {
	store   Store
	cfg     Config
	logger  logging.Logger
	fetcher CodeFetcher

	// fnMu serializes function metadata writes; reads go straight to the
	// store. Version counters detect stale concurrent updates.
	fnMu sync.Mutex

	// evMu guards the in-memory retention index over the append-only log.
	evMu      sync.Mutex
	byTrigger map[types.TriggerKind][]*eventEntry
	seen      map[string]*eventEntry
}

// Open wraps a store into a live registry handle.
func Open(store Store, cfg Config, logger logging.Logger) *Registry {
	if cfg.MaxEventsPerTrigger <= 0 {
		cfg.MaxEventsPerTrigger = DefaultConfig().MaxEventsPerTrigger
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = DefaultConfig().EventTTL
	}
	if cfg.HardTTLCeiling <= 0 {
		cfg.HardTTLCeiling = DefaultConfig().HardTTLCeiling
	}
	return &Registry{
		store:     store,
		cfg:       cfg,
		logger:    logger,
		byTrigger: make(map[types.TriggerKind][]*eventEntry),
		seen:      make(map[string]*eventEntry),
	}
}

// WithCodeFetcher enables URI-addressed code at registration time.
func (r *Registry) WithCodeFetcher(fetcher CodeFetcher) *Registry {
	r.fetcher = fetcher
	return r
}

func (r *Registry) Close() error {
	r.store.Close()
	return nil
}
