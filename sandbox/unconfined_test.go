package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestUnconfinedBackendStage(t *testing.T) {
	backend := NewUnconfinedBackend(zaptest.NewLogger(t), &Config{})

	program, err := NewProgram("main.py", []File{
		{FileName: "main.py", Content: "print('hi')"},
		{FileName: "util.py", Content: ""},
	}, nil)
	require.NoError(t, err)

	t.Run("StagesCodeUnderSrc", func(t *testing.T) {
		mapping, err := backend.Stage(program, ComputeContext{
			Language:      LanguagePython,
			TimeLimitSecs: 5,
			MemoryLimitMB: 256,
		})
		require.NoError(t, err)

		byPath := map[string]FileEntry{}
		for _, entry := range mapping {
			byPath[entry.Path] = entry
		}

		assert.Contains(t, byPath, "src/main.py")
		assert.Contains(t, byPath, "src/util.py")

		wrapper, exists := byPath["run.sh"]
		require.True(t, exists)
		assert.True(t, wrapper.Executable)
		assert.Contains(t, wrapper.Content, "ulimit -v 262144")
		assert.Contains(t, wrapper.Content, "timeout --verbose 5s")
		assert.Contains(t, wrapper.Content, "python src/main.py")
	})

	t.Run("StagesRequirementsFromExtraOptions", func(t *testing.T) {
		mapping, err := backend.Stage(program, ComputeContext{
			Language:      LanguagePython,
			TimeLimitSecs: 5,
			MemoryLimitMB: 256,
			ExtraOptions:  map[string]string{"requirements": "requests==2.32.0\n"},
		})
		require.NoError(t, err)

		var found bool
		for _, entry := range mapping {
			if entry.Path == "requirements.txt" {
				found = true
				assert.Equal(t, "requests==2.32.0\n", entry.Content)
			}
		}
		assert.True(t, found)
	})
}

func TestUnconfinedBackendExecuteRaw(t *testing.T) {
	runner := &MockCommandRunner{exitCode: 124, stderr: "timeout: sending signal"}
	backend := NewUnconfinedBackend(zaptest.NewLogger(t), &Config{},
		WithUnconfinedCommandRunner(runner))

	result, err := backend.ExecuteRaw(context.Background(), "run-1", Program{}, "/tmp/work/run-1", ComputeContext{})
	require.NoError(t, err)
	assert.Equal(t, 124, result.ExitCode)
	assert.Equal(t, []string{"sh", "run.sh"}, runner.gotArgs)
	assert.Equal(t, "/tmp/work/run-1", runner.gotDir)
}
