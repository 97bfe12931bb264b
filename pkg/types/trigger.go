package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
)

// TriggerType tags the trigger configuration variant.
type TriggerType string

const (
	TriggerTypeBlockchain TriggerType = "blockchain"
	TriggerTypeSchedule   TriggerType = "schedule"
	TriggerTypeHTTP       TriggerType = "request"
	TriggerTypeOracle     TriggerType = "oracle"
	TriggerTypeMultiEvent TriggerType = "multi_event"
)

// Kind maps a trigger type onto the event trigger kind it subscribes to.
// MultiEvent has no kind of its own; its sub-triggers are matched
// independently.
func (t TriggerType) Kind() (TriggerKind, bool) {
	switch t {
	case TriggerTypeBlockchain:
		return TriggerBlockchain, true
	case TriggerTypeSchedule:
		return TriggerSchedule, true
	case TriggerTypeHTTP:
		return TriggerRequest, true
	case TriggerTypeOracle:
		return TriggerOracle, true
	}
	return "", false
}

// BlockchainTrigger subscribes to chain events, optionally narrowed by a
// filter expression. The filter stays in its JSON form here; the matcher
// compiles it once per function version.
type BlockchainTrigger struct {
	Source    string          `json:"source"`
	EventType string          `json:"event_type"`
	Filter    json.RawMessage `json:"filter,omitempty"`
}

// ScheduleTrigger fires on a cron schedule in the given timezone.
type ScheduleTrigger struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

// HTTPTrigger fires on direct requests routed through the API intake.
type HTTPTrigger struct {
	Path         string   `json:"path"`
	Methods      []string `json:"methods"`
	AuthRequired bool     `json:"auth_required"`
}

// OracleTrigger fires on oracle update events of the given type.
type OracleTrigger struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// TriggerConfig is a tagged variant; exactly one branch is set, matching
// Type. Invalid combinations are rejected at registration time.
type TriggerConfig struct {
	Type       TriggerType        `json:"-"`
	Blockchain *BlockchainTrigger `json:"-"`
	Schedule   *ScheduleTrigger   `json:"-"`
	HTTP       *HTTPTrigger       `json:"-"`
	Oracle     *OracleTrigger     `json:"-"`
	MultiEvent []TriggerConfig    `json:"-"`
}

type triggerEnvelope struct {
	Type   TriggerType     `json:"type"`
	Config json.RawMessage `json:"config"`
}

func (t TriggerConfig) MarshalJSON() ([]byte, error) {
	var config interface{}
	switch t.Type {
	case TriggerTypeBlockchain:
		config = t.Blockchain
	case TriggerTypeSchedule:
		config = t.Schedule
	case TriggerTypeHTTP:
		config = t.HTTP
	case TriggerTypeOracle:
		config = t.Oracle
	case TriggerTypeMultiEvent:
		config = map[string]interface{}{"triggers": t.MultiEvent}
	default:
		return nil, fmt.Errorf("unknown trigger type %q", t.Type)
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(triggerEnvelope{Type: t.Type, Config: raw})
}

func (t *TriggerConfig) UnmarshalJSON(data []byte) error {
	var envelope triggerEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if len(envelope.Config) == 0 {
		envelope.Config = []byte("{}")
	}

	parsed := TriggerConfig{Type: envelope.Type}
	switch envelope.Type {
	case TriggerTypeBlockchain:
		parsed.Blockchain = &BlockchainTrigger{}
		if err := json.Unmarshal(envelope.Config, parsed.Blockchain); err != nil {
			return err
		}
	case TriggerTypeSchedule:
		parsed.Schedule = &ScheduleTrigger{}
		if err := json.Unmarshal(envelope.Config, parsed.Schedule); err != nil {
			return err
		}
	case TriggerTypeHTTP:
		parsed.HTTP = &HTTPTrigger{}
		if err := json.Unmarshal(envelope.Config, parsed.HTTP); err != nil {
			return err
		}
	case TriggerTypeOracle:
		parsed.Oracle = &OracleTrigger{}
		if err := json.Unmarshal(envelope.Config, parsed.Oracle); err != nil {
			return err
		}
	case TriggerTypeMultiEvent:
		var multi struct {
			Triggers []TriggerConfig `json:"triggers"`
		}
		if err := json.Unmarshal(envelope.Config, &multi); err != nil {
			return err
		}
		parsed.MultiEvent = multi.Triggers
	default:
		return fmt.Errorf("unknown trigger type %q", envelope.Type)
	}

	*t = parsed
	return nil
}

// SubTriggers flattens the configuration into its matchable sub-triggers:
// a single-element slice for plain triggers, the declared list for
// multi_event triggers.
func (t TriggerConfig) SubTriggers() []TriggerConfig {
	if t.Type == TriggerTypeMultiEvent {
		return t.MultiEvent
	}
	return []TriggerConfig{t}
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate rejects malformed trigger configurations with
// ErrRegistrationInvalid.
func (t TriggerConfig) Validate() error {
	switch t.Type {
	case TriggerTypeBlockchain:
		if t.Blockchain == nil || t.Blockchain.Source == "" {
			return faaserrors.Invalid("blockchain trigger requires a source")
		}
	case TriggerTypeSchedule:
		if t.Schedule == nil || t.Schedule.Cron == "" {
			return faaserrors.Invalid("schedule trigger requires a cron expression")
		}
		if _, err := cronParser.Parse(t.Schedule.Cron); err != nil {
			return faaserrors.Invalid("bad cron expression %q: %v", t.Schedule.Cron, err)
		}
		if t.Schedule.Timezone != "" {
			if _, err := time.LoadLocation(t.Schedule.Timezone); err != nil {
				return faaserrors.Invalid("bad timezone %q", t.Schedule.Timezone)
			}
		}
	case TriggerTypeHTTP:
		if t.HTTP == nil || t.HTTP.Path == "" {
			return faaserrors.Invalid("request trigger requires a path")
		}
	case TriggerTypeOracle:
		if t.Oracle == nil || t.Oracle.Type == "" {
			return faaserrors.Invalid("oracle trigger requires a type")
		}
	case TriggerTypeMultiEvent:
		if len(t.MultiEvent) == 0 {
			return faaserrors.Invalid("multi_event trigger requires at least one sub-trigger")
		}
		for i, sub := range t.MultiEvent {
			if sub.Type == TriggerTypeMultiEvent {
				return faaserrors.Invalid("multi_event triggers cannot nest")
			}
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("sub-trigger %d: %w", i, err)
			}
		}
	default:
		return faaserrors.Invalid("unknown trigger type %q", t.Type)
	}
	return nil
}
