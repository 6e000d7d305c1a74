// Package sandbox provides secure execution of untrusted program submissions.
//
// The ContainerBackend runs programs in containers via a container engine
// binary (Docker or Podman) with security constraints including memory
// limits, network isolation, and dropped capabilities.
package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// ContainerBackend implements Backend using a container engine (docker or podman)
type ContainerBackend struct {
	logger    *zap.Logger
	config    *Config
	cfg       *config.Config // Reference to the full configuration for language images
	engine    string
	cmdRunner CommandRunner
}

// ContainerBackendOption defines a functional option for ContainerBackend
type ContainerBackendOption func(*ContainerBackend)

// WithContainerCommandRunner sets the CommandRunner for ContainerBackend
func WithContainerCommandRunner(cmdRunner CommandRunner) ContainerBackendOption {
	return func(c *ContainerBackend) {
		c.cmdRunner = cmdRunner
	}
}

// NewContainerBackend creates a new ContainerBackend for the given engine
// with default implementations and optional interfaces
func NewContainerBackend(logger *zap.Logger, executorConfig *Config, cfg *config.Config, engine string, opts ...ContainerBackendOption) *ContainerBackend {
	backend := &ContainerBackend{
		logger:    logger,
		config:    executorConfig,
		cfg:       cfg,
		engine:    engine,
		cmdRunner: &RealCommandRunner{}, // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(backend)
	}

	return backend
}

// Name returns the engine name
func (c *ContainerBackend) Name() string {
	return c.engine
}

// Stage maps the program's files unchanged into the working directory; the
// container mounts the directory and runs the entrypoint in place.
func (*ContainerBackend) Stage(program Program, _ ComputeContext) (FileSystemMapping, error) {
	mapping := make(FileSystemMapping, 0, len(program.Files))
	for _, file := range program.Files {
		mapping = append(mapping, FileEntry{Path: file.FileName, Content: file.Content})
	}
	return mapping, nil
}

// ExecuteRaw runs the entrypoint in a container with the working directory
// mounted at /run. The memory limit is enforced by the engine (an OOM kill
// surfaces as exit code 137) and the time limit by timeout(1) inside the
// container (exit code 124).
func (c *ContainerBackend) ExecuteRaw(ctx context.Context, runID string, program Program, workdir string, cctx ComputeContext) (RawResult, error) {
	runCmd, err := GetRunCommand(cctx.Language, program.Entrypoint)
	if err != nil {
		return RawResult{}, fmt.Errorf("failed to get run command: %w", err)
	}

	imageName := c.languageImage(cctx.Language)
	containerName := fmt.Sprintf("%s_run", runID)

	cmdArgs := []string{
		c.engine, "run",
		"--name", containerName,
		"--rm", // Remove container after execution
		"-v", fmt.Sprintf("%s:/run", workdir),
		"--workdir", "/run",
		"--memory", fmt.Sprintf("%dm", cctx.MemoryLimitMB),
		"--network", "none",
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL", // Drop all capabilities
		imageName,
		"sh", "-c", fmt.Sprintf("timeout --verbose %ds %s", cctx.TimeLimitSecs, runCmd),
	}

	c.logger.Debug("spawning container",
		zap.String("engine", c.engine),
		zap.String("container", containerName),
		zap.String("image", imageName))

	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, cmdArgs, "", nil)
	if err != nil {
		return RawResult{}, fmt.Errorf("failed to run container: %w", err)
	}

	return RawResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

// languageImage resolves the container image for a language, preferring the
// configured override over the built-in default.
func (c *ContainerBackend) languageImage(language string) string {
	if c.cfg != nil {
		if lang, exists := c.cfg.Languages[language]; exists && lang.Image != "" {
			return lang.Image
		}
	}
	return GetLanguageImage(language)
}
