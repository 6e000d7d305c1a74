package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubBackend implements Backend for testing. Stage defaults to the
// program's files mapped unchanged; ExecuteRaw defaults to a zero exit.
type stubBackend struct {
	name     string
	stageErr error
	execute  func(ctx context.Context, runID string, program Program, workdir string, cctx ComputeContext) (RawResult, error)
}

func (s *stubBackend) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubBackend) Stage(program Program, _ ComputeContext) (FileSystemMapping, error) {
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	mapping := make(FileSystemMapping, 0, len(program.Files))
	for _, file := range program.Files {
		mapping = append(mapping, FileEntry{Path: file.FileName, Content: file.Content})
	}
	return mapping, nil
}

func (s *stubBackend) ExecuteRaw(ctx context.Context, runID string, program Program, workdir string, cctx ComputeContext) (RawResult, error) {
	if s.execute != nil {
		return s.execute(ctx, runID, program, workdir, cctx)
	}
	return RawResult{}, nil
}

func testExecutor(t *testing.T, backend Backend) *Executor {
	t.Helper()
	return NewExecutorWithBackend(zaptest.NewLogger(t), &Config{
		RootDir:       t.TempDir(),
		TimeLimitSecs: 10,
		MemoryLimitMB: 512,
	}, backend)
}

func TestExecutorRun(t *testing.T) {
	t.Run("ClassifiesOOMKill", func(t *testing.T) {
		backend := &stubBackend{
			execute: func(_ context.Context, _ string, _ Program, _ string, _ ComputeContext) (RawResult, error) {
				return RawResult{ExitCode: 137, Stdout: "", Stderr: "Killed"}, nil
			},
		}
		executor := testExecutor(t, backend)

		program, err := NewProgram("main.sh", []File{{FileName: "main.sh", Content: "exit 137"}}, nil)
		require.NoError(t, err)

		result, err := executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.NoError(t, err)
		assert.Equal(t, StatusMLE, result.Status)
		assert.Equal(t, "Killed", result.Stderr)
	})

	t.Run("PassesThroughTrackingFields", func(t *testing.T) {
		backend := &stubBackend{
			execute: func(_ context.Context, _ string, _ Program, _ string, _ ComputeContext) (RawResult, error) {
				return RawResult{ExitCode: 0, Stdout: "hello\n"}, nil
			},
		}
		executor := testExecutor(t, backend)

		program, err := NewProgram("main.py",
			[]File{{FileName: "main.py", Content: "print('hello')"}},
			map[string]any{"testcase_id": 42})
		require.NoError(t, err)

		result, err := executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.NoError(t, err)
		assert.Equal(t, StatusOK, result.Status)
		assert.Equal(t, "hello\n", result.Stdout)
		assert.Equal(t, 42, result.Tracking["testcase_id"])
	})

	t.Run("RejectsInvalidProgram", func(t *testing.T) {
		invoked := false
		backend := &stubBackend{
			execute: func(_ context.Context, _ string, _ Program, _ string, _ ComputeContext) (RawResult, error) {
				invoked = true
				return RawResult{}, nil
			},
		}
		executor := testExecutor(t, backend)

		program := Program{Entrypoint: "missing.py", Files: []File{{FileName: "main.py", Content: ""}}}

		_, err := executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found in program files")
		assert.False(t, invoked, "backend must not run for an invalid program")
	})

	t.Run("PropagatesBackendLaunchFailure", func(t *testing.T) {
		launchErr := errors.New("engine unavailable")
		backend := &stubBackend{
			execute: func(_ context.Context, _ string, _ Program, _ string, _ ComputeContext) (RawResult, error) {
				return RawResult{}, launchErr
			},
		}
		executor := testExecutor(t, backend)

		program, err := NewProgram("main.py", []File{{FileName: "main.py", Content: ""}}, nil)
		require.NoError(t, err)

		_, err = executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.Error(t, err)
		assert.ErrorIs(t, err, launchErr)
	})

	t.Run("AppliesDefaultLimits", func(t *testing.T) {
		var seen ComputeContext
		backend := &stubBackend{
			execute: func(_ context.Context, _ string, _ Program, _ string, cctx ComputeContext) (RawResult, error) {
				seen = cctx
				return RawResult{}, nil
			},
		}
		executor := testExecutor(t, backend)

		program, err := NewProgram("main.py", []File{{FileName: "main.py", Content: ""}}, nil)
		require.NoError(t, err)

		_, err = executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.NoError(t, err)
		assert.Equal(t, 10, seen.TimeLimitSecs)
		assert.Equal(t, 512, seen.MemoryLimitMB)
	})
}

func TestExecutorRunStagesFiles(t *testing.T) {
	var stagedContent []byte
	var stagedMode os.FileMode

	backend := &stubBackend{
		execute: func(_ context.Context, _ string, _ Program, workdir string, _ ComputeContext) (RawResult, error) {
			path := filepath.Join(workdir, "lib", "util.py")
			var err error
			stagedContent, err = os.ReadFile(path)
			if err != nil {
				return RawResult{}, err
			}
			info, err := os.Stat(filepath.Join(workdir, "main.py"))
			if err != nil {
				return RawResult{}, err
			}
			stagedMode = info.Mode()
			return RawResult{}, nil
		},
	}
	backend.name = "stage-check"

	executor := NewExecutorWithBackend(zaptest.NewLogger(t), &Config{
		RootDir:       t.TempDir(),
		TimeLimitSecs: 10,
		MemoryLimitMB: 512,
	}, &mappingBackend{
		mapping: FileSystemMapping{
			{Path: "main.py", Content: "print('hi')", Executable: true},
			{Path: "lib/util.py", Content: "# util"},
		},
		inner: backend,
	})

	program, err := NewProgram("main.py", []File{{FileName: "main.py", Content: "print('hi')"}}, nil)
	require.NoError(t, err)

	_, err = executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
	require.NoError(t, err)
	assert.Equal(t, "# util", string(stagedContent))
	assert.NotZero(t, stagedMode&ExecPermission, "entrypoint should have execute permission")
}

// mappingBackend overrides Stage with a fixed mapping and delegates
// execution to the wrapped backend.
type mappingBackend struct {
	mapping FileSystemMapping
	inner   Backend
}

func (m *mappingBackend) Name() string { return m.inner.Name() }

func (m *mappingBackend) Stage(Program, ComputeContext) (FileSystemMapping, error) {
	return m.mapping, nil
}

func (m *mappingBackend) ExecuteRaw(ctx context.Context, runID string, program Program, workdir string, cctx ComputeContext) (RawResult, error) {
	return m.inner.ExecuteRaw(ctx, runID, program, workdir, cctx)
}

func TestExecutorRunRemovesWorkdir(t *testing.T) {
	t.Run("OnSuccess", func(t *testing.T) {
		var workdirPath string
		backend := &stubBackend{
			execute: func(_ context.Context, _ string, _ Program, workdir string, _ ComputeContext) (RawResult, error) {
				workdirPath = workdir
				return RawResult{ExitCode: 0}, nil
			},
		}
		executor := testExecutor(t, backend)

		program, err := NewProgram("main.py", []File{{FileName: "main.py", Content: ""}}, nil)
		require.NoError(t, err)

		_, err = executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.NoError(t, err)
		require.NotEmpty(t, workdirPath)
		assert.NoDirExists(t, workdirPath)
	})

	t.Run("OnBackendError", func(t *testing.T) {
		var workdirPath string
		backend := &stubBackend{
			execute: func(_ context.Context, _ string, _ Program, workdir string, _ ComputeContext) (RawResult, error) {
				workdirPath = workdir
				if _, err := os.Stat(workdir); err != nil {
					return RawResult{}, fmt.Errorf("workdir missing during run: %w", err)
				}
				return RawResult{}, errors.New("backend crashed")
			},
		}
		executor := testExecutor(t, backend)

		program, err := NewProgram("main.py", []File{{FileName: "main.py", Content: ""}}, nil)
		require.NoError(t, err)

		_, err = executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend crashed")
		require.NotEmpty(t, workdirPath)
		assert.NoDirExists(t, workdirPath)
	})

	t.Run("OnStageError", func(t *testing.T) {
		backend := &stubBackend{stageErr: errors.New("stage failed")}
		root := t.TempDir()
		executor := NewExecutorWithBackend(zaptest.NewLogger(t), &Config{
			RootDir:       root,
			TimeLimitSecs: 10,
			MemoryLimitMB: 512,
		}, backend)

		program, err := NewProgram("main.py", []File{{FileName: "main.py", Content: ""}}, nil)
		require.NoError(t, err)

		_, err = executor.Run(context.Background(), program, ComputeContext{Language: LanguagePython})
		require.Error(t, err)

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		assert.Empty(t, entries, "no workdir may survive a failed run")
	})
}
