// Package sandbox provides secure execution of untrusted program submissions.
//
// The ContyBackend runs programs under the conty kernel-level sandbox. It
// shares the host-side staging layout with the unconfined backend but wraps
// execution in the conty binary, which confines the process to bind-mounted
// paths.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ContyBackend implements Backend using the conty sandbox binary
type ContyBackend struct {
	logger    *zap.Logger
	config    *Config
	cmdRunner CommandRunner

	// mu serializes conty invocations; concurrent sandbox mounts are
	// unreliable.
	mu sync.Mutex
}

// ContyBackendOption defines a functional option for ContyBackend
type ContyBackendOption func(*ContyBackend)

// WithContyCommandRunner sets the CommandRunner for ContyBackend
func WithContyCommandRunner(cmdRunner CommandRunner) ContyBackendOption {
	return func(c *ContyBackend) {
		c.cmdRunner = cmdRunner
	}
}

// NewContyBackend creates a new ContyBackend with default implementations
// and optional interfaces
func NewContyBackend(logger *zap.Logger, executorConfig *Config, opts ...ContyBackendOption) *ContyBackend {
	backend := &ContyBackend{
		logger:    logger,
		config:    executorConfig,
		cmdRunner: &RealCommandRunner{}, // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(backend)
	}

	return backend
}

// Name returns the backend name
func (*ContyBackend) Name() string {
	return "conty"
}

// Stage uses the host-side layout: program files under src/ plus the
// executable run.sh wrapper.
func (*ContyBackend) Stage(program Program, cctx ComputeContext) (FileSystemMapping, error) {
	return stageHostMapping(program, cctx)
}

// ExecuteRaw runs the staged wrapper inside the conty sandbox with the
// working directory bind-mounted read-write.
func (c *ContyBackend) ExecuteRaw(ctx context.Context, runID string, _ Program, workdir string, _ ComputeContext) (RawResult, error) {
	if c.config.ContyPath == "" {
		return RawResult{}, fmt.Errorf("conty binary path is not configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cmdArgs := []string{
		c.config.ContyPath,
		"--bind", workdir, workdir,
		"sh", fmt.Sprintf("%s/%s", workdir, runScriptName),
	}
	env := []string{"SANDBOX=1", "SANDBOX_LEVEL=1", "QUIET_MODE=1"}

	c.logger.Debug("spawning conty sandbox",
		zap.String("run_id", runID),
		zap.String("workdir", workdir))

	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, cmdArgs, workdir, env)
	if err != nil {
		return RawResult{}, fmt.Errorf("failed to run conty sandbox: %w", err)
	}

	return RawResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}
