package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
)

func TestTriggerConfigUnmarshal(t *testing.T) {
	raw := `{"type":"blockchain","config":{"source":"neo-mainnet","event_type":"notification","filter":{"type":"value","field":"index","operator":">=","value":1000000}}}`

	var trigger TriggerConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &trigger))
	assert.Equal(t, TriggerTypeBlockchain, trigger.Type)
	require.NotNil(t, trigger.Blockchain)
	assert.Equal(t, "neo-mainnet", trigger.Blockchain.Source)
	assert.NotEmpty(t, trigger.Blockchain.Filter)
}

func TestTriggerConfigMultiEvent(t *testing.T) {
	raw := `{"type":"multi_event","config":{"triggers":[
		{"type":"blockchain","config":{"source":"neo-mainnet","event_type":"block"}},
		{"type":"schedule","config":{"cron":"*/5 * * * *"}}
	]}}`

	var trigger TriggerConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &trigger))
	require.NoError(t, trigger.Validate())
	assert.Len(t, trigger.SubTriggers(), 2)
}

func TestTriggerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		trigger TriggerConfig
		wantErr bool
	}{
		{
			name: "valid blockchain",
			trigger: TriggerConfig{
				Type:       TriggerTypeBlockchain,
				Blockchain: &BlockchainTrigger{Source: "neo-mainnet"},
			},
		},
		{
			name: "blockchain without source",
			trigger: TriggerConfig{
				Type:       TriggerTypeBlockchain,
				Blockchain: &BlockchainTrigger{},
			},
			wantErr: true,
		},
		{
			name: "valid schedule",
			trigger: TriggerConfig{
				Type:     TriggerTypeSchedule,
				Schedule: &ScheduleTrigger{Cron: "0 * * * *", Timezone: "UTC"},
			},
		},
		{
			name: "bad cron expression",
			trigger: TriggerConfig{
				Type:     TriggerTypeSchedule,
				Schedule: &ScheduleTrigger{Cron: "not a cron"},
			},
			wantErr: true,
		},
		{
			name: "nested multi_event rejected",
			trigger: TriggerConfig{
				Type: TriggerTypeMultiEvent,
				MultiEvent: []TriggerConfig{
					{Type: TriggerTypeMultiEvent},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, faaserrors.ErrRegistrationInvalid))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTriggerConfigRoundtrip(t *testing.T) {
	original := TriggerConfig{
		Type:     TriggerTypeSchedule,
		Schedule: &ScheduleTrigger{Cron: "*/10 * * * *", Timezone: "America/New_York"},
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded TriggerConfig
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original.Type, decoded.Type)
	require.NotNil(t, decoded.Schedule)
	assert.Equal(t, original.Schedule.Cron, decoded.Schedule.Cron)
}
