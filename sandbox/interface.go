// Package sandbox provides secure execution of untrusted program submissions.
//
// The sandbox package implements the execution pipeline for running untrusted
// programs in isolated working directories. It supports multiple backends
// including container engines (Docker, Podman), the conty kernel sandbox, and
// unconfined host execution (for development).
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// File is a single named source file within a program submission.
type File struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Program is one untrusted submission: an entrypoint, its files, and an
// open-ended bag of caller-supplied tracking fields. Tracking fields are
// never interpreted by the runner; they are echoed back on the result so the
// upstream scheduler can reconcile submissions.
type Program struct {
	Entrypoint string
	Files      []File
	Tracking   map[string]any
}

// NewProgram constructs a validated Program.
func NewProgram(entrypoint string, files []File, tracking map[string]any) (Program, error) {
	p := Program{Entrypoint: entrypoint, Files: files, Tracking: tracking}
	if err := p.Validate(); err != nil {
		return Program{}, err
	}
	return p, nil
}

// Validate checks the Program invariants. The entrypoint must name one of the
// program's files; this is a configuration error surfaced before any
// execution starts.
func (p Program) Validate() error {
	for _, f := range p.Files {
		if f.FileName == p.Entrypoint {
			return nil
		}
	}
	return fmt.Errorf("entrypoint %q not found in program files", p.Entrypoint)
}

// programAlias carries the typed fields of Program for JSON (de)serialization.
type programAlias struct {
	Entrypoint string `json:"entrypoint"`
	Files      []File `json:"files"`
}

// UnmarshalJSON decodes the typed fields and captures every unknown key into
// the Tracking bag.
func (p *Program) UnmarshalJSON(data []byte) error {
	var a programAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "entrypoint")
	delete(raw, "files")
	if len(raw) == 0 {
		raw = nil
	}

	p.Entrypoint = a.Entrypoint
	p.Files = a.Files
	p.Tracking = raw
	return nil
}

// MarshalJSON emits the typed fields alongside the tracking fields. Typed
// fields win on key collision.
func (p Program) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(p.Tracking)+2)
	for k, v := range p.Tracking {
		merged[k] = v
	}
	merged["entrypoint"] = p.Entrypoint
	merged["files"] = p.Files
	return json.Marshal(merged)
}

// ComputeContext describes the execution environment a program runs under.
// It is owned by the caller and consumed read-only by staging and backends.
type ComputeContext struct {
	Language      string            `json:"language"`
	TimeLimitSecs int               `json:"time_limit_secs"`
	MemoryLimitMB int               `json:"memory_limit_mb"`
	ExtraOptions  map[string]string `json:"extra_options,omitempty"`
}

// FileEntry is one staged file: a path relative to the leased working
// directory, its content, and whether execute permission should be added.
type FileEntry struct {
	Path       string
	Content    string
	Executable bool
}

// FileSystemMapping is the ordered set of files a backend stages into a fresh
// working directory before execution.
type FileSystemMapping []FileEntry

// RawResult is the unclassified outcome of exactly one backend invocation.
type RawResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ProgramResult is the normalized outcome of one program run: the raw
// stdout/stderr, the classified status, and the program's tracking fields.
type ProgramResult struct {
	Status   Status
	Stdout   string
	Stderr   string
	Tracking map[string]any
}

// MarshalJSON merges the tracking fields with the derived fields. Derived
// fields (status, stdout, stderr) win on key collision.
func (r ProgramResult) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(r.Tracking)+3)
	for k, v := range r.Tracking {
		merged[k] = v
	}
	merged["status"] = r.Status
	merged["stdout"] = r.Stdout
	merged["stderr"] = r.Stderr
	return json.Marshal(merged)
}

// UnmarshalJSON restores the derived fields and captures every other key into
// the Tracking bag, mirroring MarshalJSON.
func (r *ProgramResult) UnmarshalJSON(data []byte) error {
	var a struct {
		Status Status `json:"status"`
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "status")
	delete(raw, "stdout")
	delete(raw, "stderr")
	if len(raw) == 0 {
		raw = nil
	}

	r.Status = a.Status
	r.Stdout = a.Stdout
	r.Stderr = a.Stderr
	r.Tracking = raw
	return nil
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string, dir string, env []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments in dir. A nil env
// inherits the parent environment; a non-nil env is appended to it.
func (RealCommandRunner) RunCommand(ctx context.Context, args []string, dir string, env []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	RemoveAll(path string) error
	Stat(path string) (os.FileMode, error)
	Chmod(path string, mode os.FileMode) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (RealFileSystem) Stat(path string) (os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Mode(), nil
}

func (RealFileSystem) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

// LanguageName constants
const (
	LanguagePython = "python"
	LanguageNodeJS = "nodejs"
	LanguageGo     = "go"
	LanguageCPP    = "cpp"
)

// File permission constants
const (
	DirPermission  = 0755
	FilePermission = 0644
	ExecPermission = 0111
)

// GetRunCommand returns the command that runs entrypoint for the given language
func GetRunCommand(language, entrypoint string) (string, error) {
	switch language {
	case LanguagePython:
		return fmt.Sprintf("python %s", entrypoint), nil
	case LanguageNodeJS:
		return fmt.Sprintf("node %s", entrypoint), nil
	case LanguageGo:
		return fmt.Sprintf("go run %s", entrypoint), nil
	case LanguageCPP:
		return fmt.Sprintf("g++ -std=c++17 -O2 -o app %s && ./app", entrypoint), nil
	default:
		return "", fmt.Errorf("unsupported language: %s", language)
	}
}

// GetLanguageImage returns the default container image for the given language
func GetLanguageImage(language string) string {
	switch language {
	case LanguagePython:
		return "python:3.11-slim"
	case LanguageNodeJS:
		return "node:20-alpine"
	case LanguageGo:
		return "golang:1.23-alpine"
	case LanguageCPP:
		return "gcc:13"
	default:
		return "alpine:latest" // fallback
	}
}
