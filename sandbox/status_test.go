package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExitCode(t *testing.T) {
	t.Run("KnownCodes", func(t *testing.T) {
		assert.Equal(t, StatusMLE, ClassifyExitCode(137))
		assert.Equal(t, StatusTLE, ClassifyExitCode(124))
		assert.Equal(t, StatusRTE, ClassifyExitCode(1))
		assert.Equal(t, StatusOK, ClassifyExitCode(0))
	})

	t.Run("EverythingElseIsOK", func(t *testing.T) {
		for _, code := range []int{2, 3, 42, 100, 125, 126, 127, 136, 138, 255, -1} {
			assert.Equal(t, StatusOK, ClassifyExitCode(code), "exit code %d", code)
		}
	})
}
