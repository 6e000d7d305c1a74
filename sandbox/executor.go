package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/metrics"
)

// Backend is one sandboxing mechanism. Stage decides which files a run needs;
// ExecuteRaw launches the prepared working directory and reports the raw exit
// code plus captured output. Everything before and after ExecuteRaw is shared
// orchestration in Executor.Run.
type Backend interface {
	Name() string
	Stage(program Program, context ComputeContext) (FileSystemMapping, error)
	ExecuteRaw(ctx context.Context, runID string, program Program, workdir string, context ComputeContext) (RawResult, error)
}

// Config holds configuration shared by all executor backends
type Config struct {
	RootDir       string
	TimeLimitSecs int
	MemoryLimitMB int
	MaxParallel   int
	ContyPath     string
}

// Executor runs programs through one Backend. It owns the working-directory
// lifecycle: every run gets a uniquely named directory under RootDir which is
// removed on every exit path.
type Executor struct {
	logger  *zap.Logger
	config  *Config
	backend Backend
	fs      FileSystem
}

// ExecutorOption defines a functional option for Executor
type ExecutorOption func(*Executor)

// WithFileSystem sets the FileSystem for Executor
func WithFileSystem(fs FileSystem) ExecutorOption {
	return func(e *Executor) {
		e.fs = fs
	}
}

// NewExecutorWithBackend creates an Executor around the given backend with
// default implementations and optional interfaces
func NewExecutorWithBackend(logger *zap.Logger, config *Config, backend Backend, opts ...ExecutorOption) *Executor {
	executor := &Executor{
		logger:  logger,
		config:  config,
		backend: backend,
		fs:      &RealFileSystem{}, // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Backend returns the backend this executor dispatches to.
func (e *Executor) Backend() Backend {
	return e.backend
}

// Run executes one program: stage its files into a fresh leased working
// directory, invoke the backend, classify the exit code, and merge the
// program's tracking fields into the result. The leased directory is removed
// before Run returns, on the error paths included. A backend that fails to
// launch is an infrastructure error and propagates; it is never folded into
// a Status.
func (e *Executor) Run(ctx context.Context, program Program, cctx ComputeContext) (ProgramResult, error) {
	if err := program.Validate(); err != nil {
		return ProgramResult{}, fmt.Errorf("invalid program: %w", err)
	}

	cctx = e.effectiveContext(cctx)
	runID := uuid.NewString()
	start := time.Now()

	metrics.ActiveExecutions.Inc()
	defer metrics.ActiveExecutions.Dec()

	e.logger.Debug("starting program run",
		zap.String("run_id", runID),
		zap.String("backend", e.backend.Name()),
		zap.String("entrypoint", program.Entrypoint),
		zap.String("language", cctx.Language))

	mapping, err := e.backend.Stage(program, cctx)
	if err != nil {
		return ProgramResult{}, fmt.Errorf("failed to stage program: %w", err)
	}

	workdir, err := AcquireWorkdir(e.fs, e.config.RootDir, runID)
	if err != nil {
		return ProgramResult{}, err
	}
	defer func() {
		if rmErr := workdir.Release(); rmErr != nil {
			e.logger.Error("failed to remove workdir", zap.String("path", workdir.Path()), zap.Error(rmErr))
		}
	}()

	if err := workdir.Materialize(mapping); err != nil {
		return ProgramResult{}, err
	}

	raw, err := e.backend.ExecuteRaw(ctx, runID, program, workdir.Path(), cctx)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(e.backend.Name(), "error").Inc()
		return ProgramResult{}, fmt.Errorf("backend %s failed: %w", e.backend.Name(), err)
	}

	status := ClassifyExitCode(raw.ExitCode)

	metrics.ExecutionsTotal.WithLabelValues(e.backend.Name(), string(status)).Inc()
	metrics.ExecutionDuration.Observe(time.Since(start).Seconds())

	e.logger.Info("program run completed",
		zap.String("run_id", runID),
		zap.Int("exit_code", raw.ExitCode),
		zap.String("status", string(status)),
		zap.Duration("duration", time.Since(start)))

	return ProgramResult{
		Status:   status,
		Stdout:   raw.Stdout,
		Stderr:   raw.Stderr,
		Tracking: program.Tracking,
	}, nil
}

// effectiveContext overlays configured default limits onto a context that
// does not carry its own.
func (e *Executor) effectiveContext(cctx ComputeContext) ComputeContext {
	if cctx.TimeLimitSecs <= 0 {
		cctx.TimeLimitSecs = e.config.TimeLimitSecs
	}
	if cctx.MemoryLimitMB <= 0 {
		cctx.MemoryLimitMB = e.config.MemoryLimitMB
	}
	return cctx
}
