package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

const (
	containerNamePrefix = "r3e-fn"
	cleanupTimeout      = 10 * time.Second
	outputTailBytes     = 64 * 1024
)

// DockerSandbox runs function code in a throwaway container per invocation.
// Memory and CPU caps map onto cgroup limits; the wall-clock cap is a
// context deadline that force-removes the container when it fires.
type DockerSandbox struct {
	cli    *client.Client
	image  string
	logger logging.Logger
}

func NewDockerSandbox(logger logging.Logger, image string) (*DockerSandbox, error) {
	if image == "" {
		return nil, fmt.Errorf("sandbox image cannot be empty")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerSandbox{cli: cli, image: image, logger: logger}, nil
}

func (s *DockerSandbox) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	eventJSON, err := json.Marshal(spec.Event)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to encode event: %w", err)
	}

	deadline := time.Duration(spec.Limits.ExecutionTimeMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	containerCfg := &container.Config{
		Image: s.image,
		Cmd:   []string{"eval", "--no-check", spec.Code},
		Env: []string{
			"R3E_EVENT=" + string(eventJSON),
			fmt.Sprintf("R3E_FUNCTION_ID=%d", spec.FID),
			fmt.Sprintf("R3E_FUNCTION_VERSION=%d", spec.FuncVersion),
		},
		// No outbound allow-list means no network at all.
		NetworkDisabled: len(spec.Permissions.Network.Outbound) == 0,
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(spec.Limits.MemoryMB) << 20,
			NanoCPUs: int64(spec.Limits.CPUMs) * 1e6,
		},
	}
	if spec.Limits.StorageKB > 0 {
		hostCfg.StorageOpt = map[string]string{
			"size": fmt.Sprintf("%dk", spec.Limits.StorageKB),
		}
	}

	name := fmt.Sprintf("%s-%d-%s", containerNamePrefix, spec.FID, uuid.New().String()[:8])
	created, err := s.cli.ContainerCreate(runCtx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to create container: %w", err)
	}
	defer s.cleanup(created.ID)

	if err := s.cli.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := s.cli.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if runCtx.Err() == context.DeadlineExceeded {
			return RunResult{}, fmt.Errorf("function %d exceeded %v: %w", spec.FID, deadline, faaserrors.ErrTimedOut)
		}
		return RunResult{}, fmt.Errorf("container wait failed: %w", err)
	case status := <-statusCh:
		output := s.collectOutput(created.ID)
		switch {
		case status.StatusCode == 0:
			return RunResult{Output: output}, nil
		case status.StatusCode == 137:
			// SIGKILL from the OOM killer once the memory cgroup cap is hit.
			return RunResult{}, fmt.Errorf("function %d killed at %dMB: %w",
				spec.FID, spec.Limits.MemoryMB, faaserrors.ErrResourceExceeded)
		default:
			return RunResult{}, fmt.Errorf("function %d exited with status %d: %s",
				spec.FID, status.StatusCode, tail(output))
		}
	case <-runCtx.Done():
		return RunResult{}, fmt.Errorf("function %d exceeded %v: %w", spec.FID, deadline, faaserrors.ErrTimedOut)
	}
}

// collectOutput reads the demuxed stdout after the container has stopped.
// Best effort: a failed read only loses the output, not the outcome.
func (s *DockerSandbox) collectOutput(containerID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	logReader, err := s.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		s.logger.Warnf("[Sandbox] failed to read logs for %s: %v", containerID, err)
		return ""
	}
	defer func() { _ = logReader.Close() }()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logReader); err != nil {
		s.logger.Warnf("[Sandbox] failed to demux logs for %s: %v", containerID, err)
	}
	if stdout.Len() == 0 {
		return strings.TrimSpace(stderr.String())
	}
	return strings.TrimSpace(stdout.String())
}

func (s *DockerSandbox) cleanup(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := s.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		s.logger.Errorf("[Sandbox] failed to remove container %s: %v", containerID, err)
	}
}

func (s *DockerSandbox) Close() error {
	return s.cli.Close()
}

func tail(output string) string {
	if len(output) <= outputTailBytes {
		return output
	}
	return output[len(output)-outputTailBytes:]
}
