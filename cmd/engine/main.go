package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/R3E-Network/r3e-faas-go/internal/cache"
	"github.com/R3E-Network/r3e-faas-go/internal/engine"
	"github.com/R3E-Network/r3e-faas-go/internal/engine/api"
	"github.com/R3E-Network/r3e-faas-go/internal/engine/config"
	"github.com/R3E-Network/r3e-faas-go/internal/engine/metrics"
	"github.com/R3E-Network/r3e-faas-go/internal/matcher"
	"github.com/R3E-Network/r3e-faas-go/internal/registry"
	"github.com/R3E-Network/r3e-faas-go/internal/sources"
	"github.com/R3E-Network/r3e-faas-go/internal/taskpool"
	"github.com/R3E-Network/r3e-faas-go/pkg/ipfs"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	logConfig := logging.NewDefaultConfig(logging.EngineProcess)
	if !config.IsDevMode() {
		logConfig.Environment = logging.Production
		logConfig.UseColors = false
	}
	logger, err := logging.NewZapLogger(logConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	logger.Info("Starting scheduling engine...",
		"mode", config.IsDevMode(),
		"port", config.GetAPIPort(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}

	reg := registry.Open(store, registry.Config{
		EventTTL:            config.GetEventTTL(),
		MaxEventsPerTrigger: config.GetMaxEventsPerTrigger(),
	}, logger)
	defer func() { _ = reg.Close() }()

	if url := config.GetIPFSAPIURL(); url != "" {
		fetcher, err := ipfs.NewFetcher(logger, url)
		if err != nil {
			logger.Fatalf("Failed to initialize IPFS fetcher: %v", err)
		}
		reg = reg.WithCodeFetcher(fetcher)
	}

	sharedCache, err := openCache(ctx, logger)
	if err != nil {
		logger.Fatalf("Failed to open cache: %v", err)
	}
	defer func() { _ = sharedCache.Close() }()

	pool := taskpool.New(taskpool.Config{LeaseTimeout: config.GetLeaseTimeout()}, logger)
	m := matcher.New(reg, logger)

	request := sources.NewRequestAdapter(logger)
	mgr := sources.NewManager(logger)
	mgr.Register(request)
	mgr.Register(sources.NewTimerAdapter(sources.DefaultTimerConfig(), reg, logger))

	for _, chainCfg := range chainConfigs(logger) {
		chain, err := sources.DialChainAdapter(ctx, chainCfg, sharedCache, logger)
		if err != nil {
			logger.Fatalf("Failed to connect chain source %s: %v", chainCfg.Chain, err)
		}
		mgr.Register(chain)
	}

	e := engine.New(reg, m, pool, mgr, request, logger)
	e.Start(ctx)

	metricsServer := metrics.NewServer(config.GetMetricsPort(), logger)
	metricsServer.Start()

	apiServer := api.NewServer(e, config.GetAPIPort(), logger)
	serverErrors := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			serverErrors <- err
		}
	}()

	logger.Infof("Engine ready on port %s, metrics on %s", config.GetAPIPort(), config.GetMetricsPort())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error received", "error", err)
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown error: %v", err)
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Errorf("Metrics server shutdown error: %v", err)
	}
	logger.Info("Engine stopped")
}

// chainConfigs prefers the multi-chain YAML file; the flat env settings
// cover the single-chain case.
func chainConfigs(logger logging.Logger) []sources.ChainConfig {
	if path := config.GetChainSourcesFile(); path != "" {
		configs, err := sources.LoadChainConfigs(path)
		if err != nil {
			logger.Fatalf("Failed to load chain sources file: %v", err)
		}
		return configs
	}

	if !config.IsChainSourceEnabled() {
		return nil
	}

	chainCfg := sources.DefaultChainConfig()
	chainCfg.Chain = config.GetChainName()
	chainCfg.RPCURL = config.GetChainRPCURL()
	chainCfg.PollInterval = config.GetPollInterval()
	chainCfg.Confirmations = config.GetConfirmations()
	chainCfg.BatchSize = config.GetBatchSize()
	chainCfg.ProcessHistorical = config.IsProcessHistorical()
	chainCfg.MinIndex = config.GetMinIndex()
	chainCfg.MaxIndex = config.GetMaxIndex()
	return []sources.ChainConfig{chainCfg}
}

func openStore(logger logging.Logger) (registry.Store, error) {
	if !config.IsScyllaEnabled() {
		logger.Info("Using in-memory store")
		return registry.NewMemoryStore(), nil
	}

	cfg := &registry.ScyllaConfig{
		Hosts:       strings.Split(config.GetScyllaHosts(), ","),
		Keyspace:    config.GetScyllaKeyspace(),
		Timeout:     30 * time.Second,
		Retries:     5,
		ConnectWait: 10 * time.Second,
	}
	logger.Infof("Connecting to ScyllaDB at %s", config.GetScyllaHosts())
	return registry.NewScyllaStore(cfg)
}

func openCache(ctx context.Context, logger logging.Logger) (cache.Cache, error) {
	if !config.IsRedisEnabled() {
		logger.Info("Using in-memory cache")
		return cache.NewMemoryCache(), nil
	}

	cfg := cache.DefaultRedisConfig()
	cfg.Addr = config.GetRedisAddr()
	cfg.DB = config.GetRedisDB()
	logger.Infof("Connecting to Redis at %s", cfg.Addr)
	return cache.NewRedisCache(ctx, cfg, logger)
}
