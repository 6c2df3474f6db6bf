// Package modelproc runs the trained PW model as an external process.
//
// Each call writes its payload to a request-unique JSON file, runs the configured
// command with that file as the last argument, and reads one JSON reply from stdout.
// The process is killed when the timeout elapses.
package modelproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/prediction"
)

// Config holds configuration for the model runner.
type Config struct {
	// Command is the executable, e.g. "python3".
	Command string

	// Args precede the input file path, e.g. the script path.
	Args []string

	// ArtifactPath is the trained model file. The runner is unavailable when it is missing.
	ArtifactPath string

	// Dir is the working directory of the process (default: current directory).
	Dir string

	// TempDir holds input files (default: os.TempDir()).
	TempDir string

	// Timeout bounds a single run (default: 30 seconds).
	Timeout time.Duration

	// WaitDelay bounds how long to wait for output pipes after the process is
	// killed (default: 2 seconds).
	WaitDelay time.Duration

	Logger zerolog.Logger
}

// Runner implements prediction.ModelRunner with os/exec.
type Runner struct {
	command      string
	args         []string
	artifactPath string
	dir          string
	tempDir      string
	timeout      time.Duration
	waitDelay    time.Duration
	logger       zerolog.Logger
}

var _ prediction.ModelRunner = (*Runner)(nil)

// New creates a Runner.
func New(cfg Config) *Runner {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	waitDelay := cfg.WaitDelay
	if waitDelay == 0 {
		waitDelay = 2 * time.Second
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Runner{
		command:      cfg.Command,
		args:         slices.Clone(cfg.Args),
		artifactPath: cfg.ArtifactPath,
		dir:          cfg.Dir,
		tempDir:      tempDir,
		timeout:      timeout,
		waitDelay:    waitDelay,
		logger:       cfg.Logger,
	}
}

// Available reports whether a command is configured and the model artifact exists.
func (r *Runner) Available() bool {
	if r.command == "" || r.artifactPath == "" {
		return false
	}
	info, err := os.Stat(r.artifactPath)
	return err == nil && info.Mode().IsRegular()
}

// Run executes the model once and returns exactly one outcome.
func (r *Runner) Run(ctx context.Context, payload []byte) prediction.Outcome {
	inputPath, err := r.writeInput(payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to write model input")
		return prediction.ProcessFailed(-1, err.Error())
	}
	defer r.removeInput(inputPath)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.command, append(slices.Clone(r.args), inputPath)...)
	cmd.Dir = r.dir
	cmd.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()

	r.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("stdout_bytes", stdout.Len()).
		Int("stderr_bytes", stderr.Len()).
		Msg("model process finished")

	return classify(runErr, runCtx.Err(), stdout.Bytes(), stderr.String())
}

// classify maps a finished run to its outcome. A clean exit is judged on its
// output alone, even when the deadline passed while it was being collected.
func classify(runErr, ctxErr error, stdout []byte, stderr string) prediction.Outcome {
	if runErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return prediction.TimedOut()
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() >= 0 {
			return prediction.ProcessFailed(exitErr.ExitCode(), stderr)
		}
		return prediction.ProcessFailed(-1, fmt.Sprintf("%v: %s", runErr, stderr))
	}

	reply, ok := prediction.ParseReply(stdout)
	if !ok {
		return prediction.ParseFailed(string(stdout))
	}
	return prediction.Succeeded(reply)
}

// inputFileName is unique per call: nanosecond timestamp plus a random UUID.
func inputFileName(now time.Time) string {
	return fmt.Sprintf("model_input_%d_%s.json", now.UnixNano(), uuid.NewString())
}

func (r *Runner) writeInput(payload []byte) (string, error) {
	path := filepath.Join(r.tempDir, inputFileName(time.Now()))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating input file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		r.removeInput(path)
		return "", fmt.Errorf("writing input file: %w", err)
	}
	if err := f.Close(); err != nil {
		r.removeInput(path)
		return "", fmt.Errorf("closing input file: %w", err)
	}
	return path, nil
}

func (r *Runner) removeInput(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn().Err(err).Str("path", path).Msg("failed to remove model input file")
	}
}
