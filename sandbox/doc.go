// Package sandbox provides secure execution of untrusted program submissions.
//
// The sandbox package implements the execution pipeline for running untrusted
// programs in isolated environments. It supports multiple backends including
// container engines (Docker, Podman), the conty kernel sandbox, and
// unconfined host execution (for development).
//
// The package defines the Backend interface and provides concrete
// implementations for different execution backends. The shared Executor
// handles the full lifecycle of a run: staging the program's files into a
// uniquely named working directory, invoking the backend, classifying the
// exit code into a Status, and removing the directory on every exit path.
// The batch runner fans out the programs of one submission concurrently and
// aggregates their results in input order.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	result, err := executor.Run(ctx, program, sandbox.ComputeContext{
//	    Language:      "python",
//	    TimeLimitSecs: 10,
//	    MemoryLimitMB: 512,
//	})
package sandbox
