package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/r3e-faas-go/internal/worker"
	"github.com/R3E-Network/r3e-faas-go/internal/worker/config"
	"github.com/R3E-Network/r3e-faas-go/pkg/client/tasksource"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

func main() {
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	logConfig := logging.NewDefaultConfig(logging.WorkerProcess)
	if !config.IsDevMode() {
		logConfig.Environment = logging.Production
		logConfig.UseColors = false
	}
	logger, err := logging.NewZapLogger(logConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	logger.Info("Starting worker...",
		"uid", config.GetWorkerUID(),
		"engine", config.GetEngineRPCURL(),
	)

	source, err := tasksource.NewClient(logger, config.GetEngineRPCURL(), config.GetWorkerUID())
	if err != nil {
		logger.Fatalf("Failed to create task source client: %v", err)
	}

	healthCtx, healthCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := source.HealthCheck(healthCtx); err != nil {
		logger.Warnf("Engine not reachable yet: %v", err)
	}
	healthCancel()

	sandbox, err := openSandbox(logger)
	if err != nil {
		logger.Fatalf("Failed to initialize sandbox: %v", err)
	}
	defer func() { _ = sandbox.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := worker.NewLoadMonitor(logger, config.GetStatsInterval(), 95.0, 90.0)
	monitor.Start(ctx)

	exec := worker.NewExecutor(source, sandbox, worker.Config{
		PollWait:     config.GetPollWait(),
		IdleBackoff:  config.GetIdleBackoff(),
		CodeCacheCap: config.GetCodeCacheCap(),
	}, logger)
	exec.SetLoadGate(monitor.Overloaded)

	done := make(chan struct{})
	go func() {
		_ = exec.Run(ctx)
		close(done)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("Received shutdown signal", "signal", sig.String())

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("Executor did not stop in time")
	}
	logger.Info("Worker stopped")
}

func openSandbox(logger logging.Logger) (worker.Sandbox, error) {
	if !config.IsDockerEnabled() {
		return nil, fmt.Errorf("no sandbox backend enabled, set DOCKER_SANDBOX_ENABLED=true")
	}
	logger.Infof("Using docker sandbox image %s", config.GetDockerImage())
	return worker.NewDockerSandbox(logger, config.GetDockerImage())
}
