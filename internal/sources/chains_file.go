package sources

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// chainsFile is the on-disk shape of a multi-chain source definition. One
// entry per network; zero values fall back to DefaultChainConfig.
type chainsFile struct {
	Chains []chainEntry `yaml:"chains"`
}

type chainEntry struct {
	Chain             string `yaml:"chain"`
	RPCURL            string `yaml:"rpc_url"`
	PollInterval      string `yaml:"poll_interval"`
	Confirmations     uint64 `yaml:"confirmations"`
	BatchSize         uint64 `yaml:"batch_size"`
	ProcessHistorical bool   `yaml:"process_historical"`
	MinIndex          uint64 `yaml:"min_index"`
	MaxIndex          uint64 `yaml:"max_index"`
	EmitTransactions  *bool  `yaml:"emit_transactions"`
	DedupWindow       string `yaml:"dedup_window"`
}

func parseDuration(name, field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("chain %s: bad %s %q: %w", name, field, raw, err)
	}
	return d, nil
}

// LoadChainConfigs reads a YAML definition of chain sources. Every entry
// must name a chain and an RPC endpoint; chain names must be unique since
// they key the resume cursors.
func LoadChainConfigs(path string) ([]ChainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain sources file: %w", err)
	}

	var file chainsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chain sources file %s: %w", path, err)
	}
	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("chain sources file %s defines no chains", path)
	}

	seen := make(map[string]bool, len(file.Chains))
	configs := make([]ChainConfig, 0, len(file.Chains))
	for i, entry := range file.Chains {
		if entry.Chain == "" {
			return nil, fmt.Errorf("chain entry %d is missing a chain name", i)
		}
		if entry.RPCURL == "" {
			return nil, fmt.Errorf("chain %s is missing rpc_url", entry.Chain)
		}
		if seen[entry.Chain] {
			return nil, fmt.Errorf("duplicate chain name %s", entry.Chain)
		}
		seen[entry.Chain] = true

		cfg := DefaultChainConfig()
		cfg.Chain = entry.Chain
		cfg.RPCURL = entry.RPCURL
		cfg.ProcessHistorical = entry.ProcessHistorical
		cfg.MinIndex = entry.MinIndex
		cfg.MaxIndex = entry.MaxIndex
		poll, err := parseDuration(entry.Chain, "poll_interval", entry.PollInterval)
		if err != nil {
			return nil, err
		}
		if poll > 0 {
			cfg.PollInterval = poll
		}
		dedup, err := parseDuration(entry.Chain, "dedup_window", entry.DedupWindow)
		if err != nil {
			return nil, err
		}
		if dedup > 0 {
			cfg.DedupWindow = dedup
		}
		if entry.Confirmations > 0 {
			cfg.Confirmations = entry.Confirmations
		}
		if entry.BatchSize > 0 {
			cfg.BatchSize = entry.BatchSize
		}
		if entry.EmitTransactions != nil {
			cfg.EmitTransactions = *entry.EmitTransactions
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
