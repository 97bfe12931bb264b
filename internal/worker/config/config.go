package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/r3e-faas-go/pkg/env"
)

type Config struct {
	devMode bool

	engineRPCURL string
	workerUID    int64

	pollWait     time.Duration
	idleBackoff  time.Duration
	codeCacheCap int

	dockerEnabled bool
	dockerImage   string

	statsInterval time.Duration
}

var cfg Config

func Init() error {
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	cfg = Config{
		devMode:       env.GetEnvBool("DEV_MODE", false),
		engineRPCURL:  env.GetEnvString("ENGINE_RPC_URL", "http://localhost:9010"),
		workerUID:     env.GetEnvInt64("WORKER_UID", 0),
		pollWait:      env.GetEnvDuration("WORKER_POLL_WAIT", 30*time.Second),
		idleBackoff:   env.GetEnvDuration("WORKER_IDLE_BACKOFF", time.Second),
		codeCacheCap:  env.GetEnvInt("WORKER_CODE_CACHE_CAP", 256),
		dockerEnabled: env.GetEnvBool("DOCKER_SANDBOX_ENABLED", true),
		dockerImage:   env.GetEnvString("DOCKER_SANDBOX_IMAGE", "denoland/deno:alpine-1.46.3"),
		statsInterval: env.GetEnvDuration("WORKER_STATS_INTERVAL", time.Minute),
	}

	if cfg.workerUID <= 0 {
		return fmt.Errorf("WORKER_UID must be a positive integer")
	}
	if env.IsEmpty(cfg.engineRPCURL) {
		return fmt.Errorf("ENGINE_RPC_URL is required")
	}

	return nil
}

func IsDevMode() bool                 { return cfg.devMode }
func GetEngineRPCURL() string         { return cfg.engineRPCURL }
func GetWorkerUID() uint64            { return uint64(cfg.workerUID) }
func GetPollWait() time.Duration      { return cfg.pollWait }
func GetIdleBackoff() time.Duration   { return cfg.idleBackoff }
func GetCodeCacheCap() int            { return cfg.codeCacheCap }
func IsDockerEnabled() bool           { return cfg.dockerEnabled }
func GetDockerImage() string          { return cfg.dockerImage }
func GetStatsInterval() time.Duration { return cfg.statsInterval }
