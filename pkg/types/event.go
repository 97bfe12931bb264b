package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerKind classifies the occurrence an event represents.
type TriggerKind string

const (
	TriggerBlockchain TriggerKind = "blockchain"
	TriggerSchedule   TriggerKind = "schedule"
	TriggerRequest    TriggerKind = "request"
	TriggerOracle     TriggerKind = "oracle"
)

func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerBlockchain, TriggerSchedule, TriggerRequest, TriggerOracle:
		return true
	}
	return false
}

// SourceKind identifies the origin system that produced an event.
type SourceKind string

const (
	SourceChain   SourceKind = "chain"
	SourceTimer   SourceKind = "timer"
	SourceRequest SourceKind = "request"
	SourceMock    SourceKind = "mock"
)

// EventContext carries the scheduling-relevant envelope of an event.
type EventContext struct {
	Trigger       TriggerKind `json:"trigger"`
	TriggeredTime uint64      `json:"triggered_time"`
	Source        SourceKind  `json:"source"`
}

// EventData carries the source-assigned identity and the payload tree.
type EventData struct {
	ID      string `json:"id"`
	Payload Value  `json:"payload"`
}

// Event is the canonical, source-agnostic representation of an occurrence.
// Events are immutable once registered.
type Event struct {
	Context EventContext `json:"context"`
	Data    EventData    `json:"data"`
}

// NewEvent builds an event stamped with the current time. The id is
// source-assigned; pass "" to generate one.
func NewEvent(trigger TriggerKind, source SourceKind, id string, payload Value) Event {
	if id == "" {
		id = uuid.New().String()
	}
	return Event{
		Context: EventContext{
			Trigger:       trigger,
			TriggeredTime: uint64(time.Now().Unix()),
			Source:        source,
		},
		Data: EventData{
			ID:      id,
			Payload: payload,
		},
	}
}

// DedupKey is unique within a source+trigger pair for the retention window.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s/%s/%s", e.Context.Source, e.Context.Trigger, e.Data.ID)
}

func (e Event) Validate() error {
	if !e.Context.Trigger.Valid() {
		return fmt.Errorf("invalid trigger kind: %q", e.Context.Trigger)
	}
	if e.Context.Source == "" {
		return fmt.Errorf("missing event source")
	}
	if e.Data.ID == "" {
		return fmt.Errorf("missing event id")
	}
	return nil
}
