package sandbox

// Status is the normalized classification of a program's termination.
type Status string

const (
	// StatusOK marks normal completion.
	StatusOK Status = "OK"
	// StatusMLE marks a process killed by the out-of-memory signal.
	StatusMLE Status = "MLE"
	// StatusTLE marks a process killed by timeout.
	StatusTLE Status = "TLE"
	// StatusRTE marks a runtime error in the program itself.
	StatusRTE Status = "RTE"
	// StatusWA is reserved for the output comparison stage and is never
	// assigned by the runner.
	StatusWA Status = "WA"
)

// Exit codes produced by the conventional kill mechanisms.
const (
	exitCodeOOMKilled    = 137 // 128 + SIGKILL, as set by the OOM killer
	exitCodeTimeoutKill  = 124 // coreutils timeout(1)
	exitCodeRuntimeError = 1
)

// ClassifyExitCode maps a raw process exit code to a Status. The mapping is
// total and backend-independent; any new termination condition gets a new
// case here, not a special case elsewhere.
func ClassifyExitCode(exitCode int) Status {
	switch exitCode {
	case exitCodeOOMKilled:
		return StatusMLE
	case exitCodeTimeoutKill:
		return StatusTLE
	case exitCodeRuntimeError:
		return StatusRTE
	default:
		return StatusOK
	}
}
