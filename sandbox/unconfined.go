// Package sandbox provides secure execution of untrusted program submissions.
//
// The UnconfinedBackend runs programs directly on the host (for development
// only) with limits applied through ulimit and timeout(1) in a staged wrapper
// script rather than a sandbox boundary.
package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	// codeDirName is the subdirectory program files are staged under for
	// host-side backends.
	codeDirName = "src"
	// runScriptName is the staged wrapper that applies limits before
	// handing off to the program.
	runScriptName = "run.sh"
	// requirementsOption is the ComputeContext extra option carrying a
	// requirements.txt payload.
	requirementsOption = "requirements"
)

// UnconfinedBackend implements Backend by running programs on the host
// (WARNING: development only, gated by runner.enable_unconfined_backend)
type UnconfinedBackend struct {
	logger    *zap.Logger
	config    *Config
	cmdRunner CommandRunner
}

// UnconfinedBackendOption defines a functional option for UnconfinedBackend
type UnconfinedBackendOption func(*UnconfinedBackend)

// WithUnconfinedCommandRunner sets the CommandRunner for UnconfinedBackend
func WithUnconfinedCommandRunner(cmdRunner CommandRunner) UnconfinedBackendOption {
	return func(u *UnconfinedBackend) {
		u.cmdRunner = cmdRunner
	}
}

// NewUnconfinedBackend creates a new UnconfinedBackend with default
// implementations and optional interfaces
func NewUnconfinedBackend(logger *zap.Logger, executorConfig *Config, opts ...UnconfinedBackendOption) *UnconfinedBackend {
	backend := &UnconfinedBackend{
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
func (*UnconfinedBackend) Name() string {
	return "unconfined"
}

// Stage places program files under src/ next to an executable run.sh wrapper
// and an optional requirements.txt taken from the context's extra options.
func (*UnconfinedBackend) Stage(program Program, cctx ComputeContext) (FileSystemMapping, error) {
	return stageHostMapping(program, cctx)
}

// ExecuteRaw runs the staged wrapper script in the working directory.
func (u *UnconfinedBackend) ExecuteRaw(ctx context.Context, runID string, _ Program, workdir string, _ ComputeContext) (RawResult, error) {
	u.logger.Debug("running program unconfined",
		zap.String("run_id", runID),
		zap.String("workdir", workdir))

	stdout, stderr, exitCode, err := u.cmdRunner.RunCommand(ctx, []string{"sh", runScriptName}, workdir, nil)
	if err != nil {
		return RawResult{}, fmt.Errorf("failed to run wrapper script: %w", err)
	}

	return RawResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

// stageHostMapping builds the working-directory layout shared by the
// host-side backends (unconfined and conty): program files under src/, an
// executable run.sh applying the memory and time limits, and a
// requirements.txt when the context supplies one.
func stageHostMapping(program Program, cctx ComputeContext) (FileSystemMapping, error) {
	runCmd, err := GetRunCommand(cctx.Language, fmt.Sprintf("%s/%s", codeDirName, program.Entrypoint))
	if err != nil {
		return nil, fmt.Errorf("failed to get run command: %w", err)
	}

	mapping := make(FileSystemMapping, 0, len(program.Files)+2)
	for _, file := range program.Files {
		mapping = append(mapping, FileEntry{
			Path:    fmt.Sprintf("%s/%s", codeDirName, file.FileName),
			Content: file.Content,
		})
	}

	mapping = append(mapping, FileEntry{
		Path:       runScriptName,
		Content:    buildRunScript(runCmd, cctx),
		Executable: true,
	})

	if requirements, exists := cctx.ExtraOptions[requirementsOption]; exists {
		mapping = append(mapping, FileEntry{Path: "requirements.txt", Content: requirements})
	}

	return mapping, nil
}

// buildRunScript renders the wrapper that applies the context's limits:
// ulimit -v caps the address space (an OOM kill surfaces as exit code 137)
// and timeout(1) caps wall time (exit code 124).
func buildRunScript(runCmd string, cctx ComputeContext) string {
	return fmt.Sprintf("#!/bin/sh\nulimit -v %d\nexec timeout --verbose %ds %s\n",
		cctx.MemoryLimitMB*1024, cctx.TimeLimitSecs, runCmd)
}
