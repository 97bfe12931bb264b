package config

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/R3E-Network/r3e-faas-go/pkg/env"
)

type Config struct {
	devMode bool

	apiPort     string
	metricsPort string

	eventTTL            time.Duration
	maxEventsPerTrigger int
	leaseTimeout        time.Duration

	scyllaEnabled  bool
	scyllaHosts    string
	scyllaKeyspace string

	redisEnabled bool
	redisAddr    string
	redisDB      int

	chainSourcesFile  string
	chainEnabled      bool
	chainName         string
	chainRPCURL       string
	pollInterval      time.Duration
	confirmations     int64
	processHistorical bool
	minIndex          int64
	maxIndex          int64
	batchSize         int64

	ipfsAPIURL string
}

var cfg Config

func Init() error {
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	cfg = Config{
		devMode:             env.GetEnvBool("DEV_MODE", false),
		apiPort:             env.GetEnvString("ENGINE_RPC_PORT", "9010"),
		metricsPort:         env.GetEnvString("ENGINE_METRICS_PORT", "9011"),
		eventTTL:            env.GetEnvDuration("EVENT_TTL", time.Hour),
		maxEventsPerTrigger: env.GetEnvInt("MAX_EVENTS_PER_TRIGGER", 10000),
		leaseTimeout:        env.GetEnvDuration("TASK_LEASE_TIMEOUT", 2*time.Minute),
		scyllaEnabled:       env.GetEnvBool("SCYLLA_ENABLED", false),
		scyllaHosts:         env.GetEnvString("SCYLLA_HOSTS", "localhost:9042"),
		scyllaKeyspace:      env.GetEnvString("SCYLLA_KEYSPACE", "r3e_faas"),
		redisEnabled:        env.GetEnvBool("REDIS_ENABLED", false),
		redisAddr:           env.GetEnvString("REDIS_ADDR", "localhost:6379"),
		redisDB:             env.GetEnvInt("REDIS_DB", 0),
		chainSourcesFile:    env.GetEnvString("CHAIN_SOURCES_FILE", ""),
		chainEnabled:        env.GetEnvBool("CHAIN_SOURCE_ENABLED", false),
		chainName:           env.GetEnvString("CHAIN_NAME", "neo-mainnet"),
		chainRPCURL:         env.GetEnvString("CHAIN_RPC_URL", ""),
		pollInterval:        env.GetEnvDuration("CHAIN_POLL_INTERVAL", 15*time.Second),
		confirmations:       env.GetEnvInt64("CHAIN_CONFIRMATIONS", 1),
		processHistorical:   env.GetEnvBool("CHAIN_PROCESS_HISTORICAL", false),
		minIndex:            env.GetEnvInt64("CHAIN_MIN_INDEX", 0),
		maxIndex:            env.GetEnvInt64("CHAIN_MAX_INDEX", 0),
		batchSize:           env.GetEnvInt64("CHAIN_BATCH_SIZE", 50),
		ipfsAPIURL:          env.GetEnvString("IPFS_API_URL", ""),
	}

	if !cfg.devMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.chainEnabled && env.IsEmpty(cfg.chainRPCURL) {
		return fmt.Errorf("CHAIN_RPC_URL is required when CHAIN_SOURCE_ENABLED is true")
	}

	return nil
}

func IsDevMode() bool                { return cfg.devMode }
func GetAPIPort() string             { return cfg.apiPort }
func GetMetricsPort() string         { return cfg.metricsPort }
func GetEventTTL() time.Duration     { return cfg.eventTTL }
func GetMaxEventsPerTrigger() int    { return cfg.maxEventsPerTrigger }
func GetLeaseTimeout() time.Duration { return cfg.leaseTimeout }
func IsScyllaEnabled() bool          { return cfg.scyllaEnabled }
func GetScyllaHosts() string         { return cfg.scyllaHosts }
func GetScyllaKeyspace() string      { return cfg.scyllaKeyspace }
func IsRedisEnabled() bool           { return cfg.redisEnabled }
func GetRedisAddr() string           { return cfg.redisAddr }
func GetRedisDB() int                { return cfg.redisDB }
func GetChainSourcesFile() string    { return cfg.chainSourcesFile }
func IsChainSourceEnabled() bool     { return cfg.chainEnabled }
func GetChainName() string           { return cfg.chainName }
func GetChainRPCURL() string         { return cfg.chainRPCURL }
func GetPollInterval() time.Duration { return cfg.pollInterval }
func GetConfirmations() uint64       { return uint64(cfg.confirmations) }
func IsProcessHistorical() bool      { return cfg.processHistorical }
func GetMinIndex() uint64            { return uint64(cfg.minIndex) }
func GetMaxIndex() uint64            { return uint64(cfg.maxIndex) }
func GetBatchSize() uint64           { return uint64(cfg.batchSize) }
func GetIPFSAPIURL() string          { return cfg.ipfsAPIURL }
