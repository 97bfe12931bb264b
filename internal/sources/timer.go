package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// ScheduleLister exposes the registered functions the timer needs to derive
// its cron entries from.
type ScheduleLister interface {
	AllFunctions(ctx context.Context) ([]types.FunctionMetadata, error)
}

type TimerConfig struct {
	// RefreshInterval is how often cron entries are resynced against the
	// registered schedule triggers.
	RefreshInterval time.Duration
}

func DefaultTimerConfig() TimerConfig {
	return TimerConfig{RefreshInterval: 30 * time.Second}
}

// TimerAdapter emits one schedule event per cron fire. It keeps one cron
// entry per distinct (spec, timezone) pair across all registered functions;
// the matcher fans a tick out to every function subscribed to that spec.
type TimerAdapter struct {
	cfg    TimerConfig
	lister ScheduleLister
	logger logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

type timerTick struct {
	spec     string
	timezone string
	firedAt  time.Time
}

func NewTimerAdapter(cfg TimerConfig, lister ScheduleLister, logger logging.Logger) *TimerAdapter {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultTimerConfig().RefreshInterval
	}
	return &TimerAdapter{
		cfg:     cfg,
		lister:  lister,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

func (a *TimerAdapter) Name() string { return "timer" }

// Run drives the cron runner and drains fires through a channel, so events
// are emitted from this one goroutine in fire order.
func (a *TimerAdapter) Run(ctx context.Context, emit EmitFunc) error {
	// Entry ids belong to one runner; a restarted Run gets a fresh one.
	a.mu.Lock()
	a.entries = make(map[string]cron.EntryID)
	a.mu.Unlock()

	ticks := make(chan timerTick, 64)
	runner := cron.New()
	runner.Start()
	defer runner.Stop()

	if err := a.syncEntries(ctx, runner, ticks); err != nil {
		return err
	}

	refresh := time.NewTicker(a.cfg.RefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refresh.C:
			if err := a.syncEntries(ctx, runner, ticks); err != nil {
				a.logger.Warnf("[TimerAdapter] failed to resync schedules: %v", err)
			}
		case tick := <-ticks:
			if err := emit(ctx, tickEvent(tick)); err != nil {
				return err
			}
		}
	}
}

// syncEntries reconciles the cron runner against the schedule triggers
// currently registered: new specs are added, specs no longer referenced by
// any function are removed.
func (a *TimerAdapter) syncEntries(ctx context.Context, runner *cron.Cron, ticks chan<- timerTick) error {
	functions, err := a.lister.AllFunctions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list functions: %w", err)
	}

	wanted := make(map[string]*types.ScheduleTrigger)
	for _, fn := range functions {
		for _, sub := range fn.Trigger.SubTriggers() {
			if sub.Type == types.TriggerTypeSchedule && sub.Schedule != nil {
				wanted[entryKey(sub.Schedule)] = sub.Schedule
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, schedule := range wanted {
		if _, ok := a.entries[key]; ok {
			continue
		}
		schedule := schedule
		id, err := runner.AddFunc(cronSpec(schedule), func() {
			select {
			case ticks <- timerTick{spec: schedule.Cron, timezone: schedule.Timezone, firedAt: time.Now()}:
			default:
				a.logger.Warnf("[TimerAdapter] tick buffer full, dropping fire of %q", schedule.Cron)
			}
		})
		if err != nil {
			a.logger.Warnf("[TimerAdapter] rejected schedule %q: %v", schedule.Cron, err)
			continue
		}
		a.entries[key] = id
		a.logger.Infof("[TimerAdapter] added schedule %q (tz=%s)", schedule.Cron, schedule.Timezone)
	}

	for key, id := range a.entries {
		if _, ok := wanted[key]; !ok {
			runner.Remove(id)
			delete(a.entries, key)
			a.logger.Infof("[TimerAdapter] removed schedule %s", key)
		}
	}
	return nil
}

func tickEvent(tick timerTick) types.Event {
	id := fmt.Sprintf("%s@%d", tick.spec, tick.firedAt.Unix())
	payload := types.MapValue(map[string]types.Value{
		"cron":      types.StringValue(tick.spec),
		"timezone":  types.StringValue(tick.timezone),
		"fire_time": types.Int64Value(tick.firedAt.Unix()),
	})
	return types.NewEvent(types.TriggerSchedule, types.SourceTimer, id, payload)
}

func cronSpec(schedule *types.ScheduleTrigger) string {
	if schedule.Timezone != "" {
		return "CRON_TZ=" + schedule.Timezone + " " + schedule.Cron
	}
	return schedule.Cron
}

func entryKey(schedule *types.ScheduleTrigger) string {
	return schedule.Timezone + "|" + schedule.Cron
}
