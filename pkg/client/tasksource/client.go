// Package tasksource is the worker-side client for the engine's task
// acquisition protocol: long-poll AcquireTask, versioned AcquireFunc, and
// outcome acknowledgment.
package tasksource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/r3e-faas-go/pkg/httpclient"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

type Client struct {
	logger    logging.Logger
	engineURL string
	uid       uint64
	http      *httpclient.Client

	// longPoll runs without retries and with a timeout sized for the
	// server-side wait.
	longPoll *http.Client
}

func NewClient(logger logging.Logger, engineURL string, uid uint64) (*Client, error) {
	if engineURL == "" {
		return nil, fmt.Errorf("engine URL cannot be empty")
	}
	if uid == 0 {
		return nil, fmt.Errorf("worker uid cannot be zero")
	}

	httpClient, err := httpclient.NewClient(httpclient.DefaultRetryConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		logger:    logger,
		engineURL: engineURL,
		uid:       uid,
		http:      httpClient,
		longPoll:  &http.Client{Timeout: 90 * time.Second},
	}, nil
}

func (c *Client) UID() uint64 { return c.uid }

// AcquireTask long-polls for the next assignment. A nil task with nil error
// is the empty sentinel: the wait elapsed with nothing to hand out.
func (c *Client) AcquireTask(ctx context.Context, fidHint uint64, wait time.Duration) (*types.TaskAssignment, error) {
	reqBody := types.AcquireTaskRequest{
		UID:     c.uid,
		FIDHint: fidHint,
		WaitMs:  uint64(wait / time.Millisecond),
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/tasks/acquire", reqBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.longPoll.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acquire request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("acquire failed: status code %d", resp.StatusCode)
	}

	var acquired types.AcquireTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&acquired); err != nil {
		return nil, fmt.Errorf("failed to decode acquire response: %w", err)
	}
	if !acquired.Found {
		return nil, nil
	}
	return acquired.Task, nil
}

// AcquireFunc fetches the code for a function at a version; version 0 means
// current.
func (c *Client) AcquireFunc(ctx context.Context, fid, version uint64) (types.AcquireFuncResponse, error) {
	path := fmt.Sprintf("/api/functions/%d/code", fid)
	if version != 0 {
		path = fmt.Sprintf("%s?version=%d", path, version)
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return types.AcquireFuncResponse{}, err
	}

	resp, err := c.http.DoWithRetry(req)
	if err != nil {
		return types.AcquireFuncResponse{}, fmt.Errorf("code fetch for function %d failed: %w", fid, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var code types.AcquireFuncResponse
	if err := json.NewDecoder(resp.Body).Decode(&code); err != nil {
		return types.AcquireFuncResponse{}, fmt.Errorf("failed to decode code response: %w", err)
	}
	return code, nil
}

// AckTask reports the terminal outcome of a leased task.
func (c *Client) AckTask(ctx context.Context, taskID string, outcome types.TaskOutcome, errMsg, output string) error {
	reqBody := types.AckTaskRequest{
		UID:     c.uid,
		Outcome: outcome,
		Error:   errMsg,
		Output:  output,
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/tasks/"+taskID+"/ack", reqBody)
	if err != nil {
		return err
	}

	resp, err := c.http.DoWithRetry(req)
	if err != nil {
		return fmt.Errorf("ack for task %s failed: %w", taskID, err)
	}
	_ = resp.Body.Close()
	return nil
}

// Release hands back any leases this worker still holds, for clean
// shutdown.
func (c *Client) Release(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/workers/release", map[string]uint64{"uid": c.uid})
	if err != nil {
		return err
	}

	resp, err := c.http.DoWithRetry(req)
	if err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

// HealthCheck verifies the engine is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.DoWithRetry(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.engineURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
