package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/logger"
	"github.com/ayusman/handsign/internal/metrics"
)

// DefaultTimeout bounds a single plugin run.
const DefaultTimeout = 5 * time.Second

// Executor handles the execution of plugins with timeout support.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor. A non-positive timeout uses DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Timeout returns the per-run timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs a plugin with req on stdin and parses its stdout as a Response.
// The plugin's manifest config is attached to the request when it has none.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if req.Config == nil {
		req.Config = plugin.Manifest.Config
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, plugin.Executable)
	cmd.Dir = plugin.Path
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("plugin execution timeout after %s", e.timeout)
	}
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("plugin execution failed: %w, stderr: %s", err, stderr.String())
		}
		return nil, fmt.Errorf("plugin execution failed: %w", err)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse plugin response: %w, stdout: %s", err, stdout.String())
	}

	return &response, nil
}

// Dispatcher runs every matching plugin in the background for each
// recognized sign.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over the manager's plugins.
func NewDispatcher(manager *Manager, executor *Executor, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		log:      logger.OrNop(log),
	}
}

// Dispatch starts every plugin that handles req.Sign and returns how many
// were started. Failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) int {
	plugins := d.manager.ForSign(req.Sign)
	for _, p := range plugins {
		d.wg.Add(1)
		go func(p *Plugin, req Request) {
			defer d.wg.Done()
			resp, err := d.executor.Execute(ctx, p, &req)
			status := "ok"
			defer func() { metrics.PluginRunsTotal.WithLabelValues(p.Manifest.Name, status).Inc() }()
			switch {
			case err != nil:
				status = "failed"
				d.log.Warn("plugin failed", zap.String("plugin", p.Manifest.Name), zap.String("sign", req.Sign), zap.Error(err))
			case !resp.Success:
				status = "error"
				d.log.Warn("plugin reported error", zap.String("plugin", p.Manifest.Name), zap.String("sign", req.Sign), zap.String("error", resp.Error))
			default:
				d.log.Debug("plugin ran", zap.String("plugin", p.Manifest.Name), zap.String("sign", req.Sign))
			}
		}(p, req)
	}
	return len(plugins)
}

// Wait blocks until all dispatched plugins have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
