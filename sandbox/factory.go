package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// NewExecutor creates an Executor with the appropriate backend based on the
// configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (*Executor, error) {
	executorConfig := &Config{
		RootDir:       cfg.Runner.RootDir,
		TimeLimitSecs: cfg.Runner.TimeLimitSecs,
		MemoryLimitMB: cfg.Runner.MemoryLimitMB,
		MaxParallel:   cfg.Runner.MaxParallel,
		ContyPath:     cfg.Runner.ContyPath,
	}

	switch cfg.Runner.Backend {
	case "docker", "podman":
		backend := NewContainerBackend(logger, executorConfig, cfg, cfg.Runner.Backend)
		return NewExecutorWithBackend(logger, executorConfig, backend), nil
	case "conty":
		backend := NewContyBackend(logger, executorConfig)
		return NewExecutorWithBackend(logger, executorConfig, backend), nil
	case "unconfined":
		if !cfg.Runner.EnableUnconfinedBackend {
			return nil, fmt.Errorf("unconfined backend is disabled, set runner.enable_unconfined_backend to use it")
		}
		backend := NewUnconfinedBackend(logger, executorConfig)
		return NewExecutorWithBackend(logger, executorConfig, backend), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Runner.Backend)
	}
}
