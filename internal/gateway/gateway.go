// Package gateway runs the external media tools (yt-dlp, ffmpeg, aria2c) as
// subprocesses. Callers receive captured stdout/stderr and the exit status; a
// non-zero exit is reported in the Result, never as an error.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const waitDelay = 5 * time.Second

// Tool identifies one of the external executables.
type Tool string

const (
	YtDlp  Tool = "yt-dlp"
	Ffmpeg Tool = "ffmpeg"
	Aria2c Tool = "aria2c"
)

// Result is the outcome of a single tool invocation.
type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// OK reports whether the tool exited with status zero.
func (r Result) OK() bool {
	return r.ExitStatus == 0
}

// Runner executes a tool with an ordered argument list.
// The returned error is non-nil only when the process could not be run to
// completion (missing binary, context cancelled); exit status is in Result.
type Runner interface {
	Run(ctx context.Context, tool Tool, args []string) (Result, error)
}

// RunnerFunc adapts an ordinary function to the Runner interface.
type RunnerFunc func(ctx context.Context, tool Tool, args []string) (Result, error)

// Run calls f(ctx, tool, args).
func (f RunnerFunc) Run(ctx context.Context, tool Tool, args []string) (Result, error) {
	return f(ctx, tool, args)
}

// ExecRunner runs tools through os/exec.
type ExecRunner struct {
	paths   Paths
	sem     *semaphore.Weighted // nil = unbounded
	timeout time.Duration       // 0 = none
}

// NewExecRunner creates a runner bound to the given executable paths.
// maxConcurrent <= 0 leaves the number of simultaneous subprocesses unbounded;
// timeout <= 0 lets a tool run as long as the context allows.
func NewExecRunner(paths Paths, maxConcurrent int, timeout time.Duration) *ExecRunner {
	r := &ExecRunner{paths: paths, timeout: timeout}
	if maxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return r
}

// Paths returns the executable paths this runner was built with.
func (r *ExecRunner) Paths() Paths {
	return r.paths
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, tool Tool, args []string) (Result, error) {
	exe, err := r.paths.Lookup(tool)
	if err != nil {
		return Result{}, err
	}

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return Result{}, fmt.Errorf("waiting for a free %s slot: %w", tool, err)
		}
		defer r.sem.Release(1)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	// grandchildren (ffmpeg, aria2c) may keep the pipes open after a kill
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithField("tool", tool).Debugf("Running %s %v", exe, args)
	runErr := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && ctx.Err() == nil {
			res.ExitStatus = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s interrupted: %w", tool, ctx.Err())
		}
		return res, fmt.Errorf("running %s (%s): %w", tool, exe, runErr)
	}
	return res, nil
}
