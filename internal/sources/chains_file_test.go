package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChainsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadChainConfigs(t *testing.T) {
	path := writeChainsFile(t, `
chains:
  - chain: neo-mainnet
    rpc_url: http://mainnet:10332
    poll_interval: 15s
    confirmations: 2
  - chain: neo-testnet
    rpc_url: http://testnet:20332
    process_historical: true
    min_index: 100
    emit_transactions: false
`)

	configs, err := LoadChainConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, "neo-mainnet", configs[0].Chain)
	assert.Equal(t, 15*time.Second, configs[0].PollInterval)
	assert.Equal(t, uint64(2), configs[0].Confirmations)
	assert.True(t, configs[0].EmitTransactions, "defaults apply when omitted")

	assert.True(t, configs[1].ProcessHistorical)
	assert.Equal(t, uint64(100), configs[1].MinIndex)
	assert.False(t, configs[1].EmitTransactions)
	assert.Equal(t, DefaultChainConfig().BatchSize, configs[1].BatchSize)
}

func TestLoadChainConfigsRejectsDuplicates(t *testing.T) {
	path := writeChainsFile(t, `
chains:
  - chain: neo-mainnet
    rpc_url: http://a:10332
  - chain: neo-mainnet
    rpc_url: http://b:10332
`)

	_, err := LoadChainConfigs(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate chain name")
}

func TestLoadChainConfigsRequiresFields(t *testing.T) {
	path := writeChainsFile(t, "chains:\n  - chain: neo-mainnet\n")
	_, err := LoadChainConfigs(path)
	require.Error(t, err)

	path = writeChainsFile(t, "chains: []\n")
	_, err = LoadChainConfigs(path)
	require.Error(t, err)
}
