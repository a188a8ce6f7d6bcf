package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// Job is one stage execution request.
type Job struct {
	ProjectID    string
	Stage        Stage
	Requirements string
}

// Result is the outcome of a successful stage.
type Result struct {
	Output    string
	Truncated bool
}

// Executor runs a single stage. Implementations must return promptly once
// ctx is cancelled.
type Executor interface {
	Execute(ctx context.Context, job Job) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, job Job) (Result, error) {
	return f(ctx, job)
}

// CommandExecutor runs stage commands as child processes inside a
// per-project workspace directory. Requirements are written to stdin.
type CommandExecutor struct {
	WorkspaceDir string
	MaxOutput    int
	Logger       *zerolog.Logger
}

// NewCommandExecutor creates an executor rooted at workspaceDir.
func NewCommandExecutor(workspaceDir string, logger *zerolog.Logger) *CommandExecutor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CommandExecutor{
		WorkspaceDir: workspaceDir,
		MaxOutput:    constants.OutputBufferSize,
		Logger:       logger,
	}
}

// Workspace returns the directory a project's stages run in.
func (e *CommandExecutor) Workspace(projectID string) string {
	return filepath.Join(e.WorkspaceDir, filepath.Base(filepath.Clean("/"+projectID)))
}

// Execute implements Executor.
func (e *CommandExecutor) Execute(ctx context.Context, job Job) (Result, error) {
	dir := e.Workspace(job.ProjectID)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return Result{}, errors.WrapIO("create", dir, err)
	}

	if len(job.Stage.Command) == 0 {
		out := fmt.Sprintf("%s: %s\n", job.Stage.Name, job.Stage.Description)
		if err := e.writeLog(dir, job.Stage.Name, out); err != nil {
			return Result{}, err
		}
		return Result{Output: out}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, job.Stage.TimeoutDuration())
	defer cancel()

	cmd := exec.CommandContext(ctx, job.Stage.Command[0], job.Stage.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), stageEnv(job)...)
	cmd.Stdin = strings.NewReader(job.Requirements)
	buf := &boundedBuffer{limit: e.MaxOutput}
	cmd.Stdout = buf
	cmd.Stderr = buf

	e.Logger.Debug().
		Str("project_id", job.ProjectID).
		Str("node", job.Stage.Name).
		Strs("command", job.Stage.Command).
		Msg("Executing stage")

	err := cmd.Run()
	output := buf.String()
	if logErr := e.writeLog(dir, job.Stage.Name, output); logErr != nil {
		e.Logger.Warn().Err(logErr).Str("node", job.Stage.Name).Msg("Failed to write stage log")
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: stage %s exceeded %s", errors.ErrTimeout, job.Stage.Name, job.Stage.TimeoutDuration())
		}
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		return Result{Output: output, Truncated: buf.truncated}, errors.NewProcessError(
			"stage "+job.Stage.Name, strings.Join(job.Stage.Command, " "), output, exitCode, err)
	}
	return Result{Output: output, Truncated: buf.truncated}, nil
}

func (e *CommandExecutor) writeLog(dir, stage, output string) error {
	path := filepath.Join(dir, stage+".log")
	if err := os.WriteFile(path, []byte(output), constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

func stageEnv(job Job) []string {
	env := []string{
		"APPGEN_PROJECT_ID=" + job.ProjectID,
		"APPGEN_STAGE=" + job.Stage.Name,
	}
	keys := make([]string, 0, len(job.Stage.Env))
	for k := range job.Stage.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+job.Stage.Env[k])
	}
	return env
}

// boundedBuffer keeps the first limit bytes written to it.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 {
		room := b.limit - b.buf.Len()
		if room <= 0 {
			b.truncated = true
			return len(p), nil
		}
		if len(p) > room {
			b.truncated = true
			b.buf.Write(p[:room])
			return len(p), nil
		}
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
