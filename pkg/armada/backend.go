/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package armada

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	harnesserrors "github.com/org/armada-harness/pkg/errors"
	"github.com/org/armada-harness/pkg/metrics"
)

const (
	// LegacyHomeEnvVar points 1.x tools at their credential/state dir.
	LegacyHomeEnvVar = "ARMADA_HOME"
	// ModernHomeEnvVar points 2.x tools at their credential/state dir.
	ModernHomeEnvVar = "ARMADA_DATA"
	// FeatureFlagEnvVar enables optional dev features in the tool.
	FeatureFlagEnvVar = "ARMADA_DEV_FEATURE_FLAGS"

	// timeoutPath is the wrapper used to enforce hard command timeouts.
	timeoutPath = "/usr/bin/timeout"
)

// ProcessError reports a CLI invocation that exited non-zero.
type ProcessError struct {
	Argv     []string
	ExitCode int
	Output   []byte
	Stderr   []byte
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("command failed with exit status %d: %s",
		e.ExitCode, strings.Join(e.Argv, " "))
	if len(e.Stderr) > 0 {
		msg += ": " + strings.TrimSpace(string(e.Stderr))
	}
	return msg
}

// SoftDeadlineExceededError is returned when an operation is refused
// because the run's soft deadline has passed.
type SoftDeadlineExceededError struct {
	Deadline time.Time
}

func (e *SoftDeadlineExceededError) Error() string {
	return "Operation exceeded deadline."
}

// IsSoftDeadlineExceeded reports whether err is a soft deadline refusal.
func IsSoftDeadlineExceeded(err error) bool {
	var deadlineErr *SoftDeadlineExceededError
	return errors.As(err, &deadlineErr)
}

type ignoreDeadlineKey struct{}

// WithoutSoftDeadline returns a context under which backend calls skip
// the soft deadline check. Teardown paths use it so cleanup still runs
// after the deadline has passed.
func WithoutSoftDeadline(ctx context.Context) context.Context {
	return context.WithValue(ctx, ignoreDeadlineKey{}, true)
}

func deadlineIgnored(ctx context.Context) bool {
	ignored, _ := ctx.Value(ignoreDeadlineKey{}).(bool)
	return ignored
}

// CommandTiming records one backend invocation for the timing log.
type CommandTiming struct {
	Command string
	Argv    []string
	Start   time.Time
	End     time.Time
	Err     error
}

// RunOptions adjusts a single backend invocation.
type RunOptions struct {
	// Timeout wraps the command with a hard kill after this duration.
	Timeout time.Duration
	// IgnoreExit swallows non-zero exit status. Used for best-effort
	// commands like kill-controller.
	IgnoreExit bool
	// MergeStderr redirects the child's stderr into captured stdout.
	MergeStderr bool
	// Stdin feeds the child's standard input when non-nil.
	Stdin io.Reader
}

// BackendConfig holds construction parameters for a Backend.
type BackendConfig struct {
	// FullPath is the path to the armada binary. Empty means "armada"
	// resolved via PATH.
	FullPath string
	// Version is the tool version string the backend was built for.
	Version string
	// Debug selects --debug over --show-log verbosity.
	Debug bool
	// FeatureFlags are dev feature flags exported to the child process.
	FeatureFlags sets.Set[string]
	// SoftDeadline refuses new operations after this instant. Zero
	// disables the check.
	SoftDeadline time.Time
	// Log receives per-command debug logging.
	Log logr.Logger
	// Out and Err are the sinks for streamed (non-captured) commands.
	// They default to os.Stdout and os.Stderr.
	Out io.Writer
	Err io.Writer
}

// Backend launches armada subprocesses. It owns verbosity, feature
// flags, the soft deadline and per-command telemetry; clients own
// argument construction. A backend is shared by reference across client
// clones so they keep one deadline and one timing log.
type Backend struct {
	fullPath     string
	version      string
	debug        bool
	featureFlags sets.Set[string]
	softDeadline time.Time
	log          logr.Logger
	out          io.Writer
	errOut       io.Writer

	now func() time.Time

	mu      sync.Mutex
	timings []CommandTiming
}

// NewBackend creates a backend from cfg.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.FullPath == "" {
		cfg.FullPath = "armada"
	}
	if cfg.FeatureFlags == nil {
		cfg.FeatureFlags = sets.New[string]()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Err == nil {
		cfg.Err = os.Stderr
	}
	if cfg.Log.GetSink() == nil {
		cfg.Log = logr.Discard()
	}
	return &Backend{
		fullPath:     cfg.FullPath,
		version:      cfg.Version,
		debug:        cfg.Debug,
		featureFlags: cfg.FeatureFlags,
		softDeadline: cfg.SoftDeadline,
		log:          cfg.Log,
		out:          cfg.Out,
		errOut:       cfg.Err,
		now:          time.Now,
	}
}

// Clone derives a backend with a different binary, version, verbosity or
// flag set while keeping the soft deadline and output sinks.
func (b *Backend) Clone(fullPath, version string, debug bool, featureFlags sets.Set[string]) *Backend {
	if fullPath == "" {
		fullPath = b.fullPath
	}
	if featureFlags == nil {
		featureFlags = b.featureFlags.Clone()
	}
	return &Backend{
		fullPath:     fullPath,
		version:      version,
		debug:        debug,
		featureFlags: featureFlags,
		softDeadline: b.softDeadline,
		log:          b.log,
		out:          b.out,
		errOut:       b.errOut,
		now:          b.now,
	}
}

// FullPath returns the binary path launched by this backend.
func (b *Backend) FullPath() string { return b.fullPath }

// Version returns the tool version this backend was built for.
func (b *Backend) Version() string { return b.version }

// Debug reports whether commands run with --debug verbosity.
func (b *Backend) Debug() bool { return b.debug }

// FeatureFlags returns the dev feature flags exported to children.
func (b *Backend) FeatureFlags() sets.Set[string] { return b.featureFlags }

// SoftDeadline returns the instant after which operations are refused.
func (b *Backend) SoftDeadline() time.Time { return b.softDeadline }

// verbosityFlag is the log flag inserted right after the binary path.
func (b *Backend) verbosityFlag() string {
	if b.debug {
		return "--debug"
	}
	return "--show-log"
}

// CheckDeadline refuses the operation when the soft deadline has passed,
// unless the context carries a WithoutSoftDeadline scope.
func (b *Backend) CheckDeadline(ctx context.Context) error {
	if b.softDeadline.IsZero() || deadlineIgnored(ctx) {
		return nil
	}
	if b.now().After(b.softDeadline) {
		metrics.SoftDeadlineTotal.Inc()
		return &SoftDeadlineExceededError{Deadline: b.softDeadline}
	}
	return nil
}

// ShellEnv builds the child process environment from a copy of the
// current one: the binary's directory is prepended to PATH, the
// generation's home variable is set and feature flags are exported as a
// sorted comma-joined list. The global environment is never mutated.
func (b *Backend) ShellEnv(homeVar, home string) []string {
	env := map[string]string{}
	order := []string{}
	for _, entry := range os.Environ() {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, seen := env[k]; !seen {
			order = append(order, k)
		}
		env[k] = v
	}
	set := func(k, v string) {
		if _, seen := env[k]; !seen {
			order = append(order, k)
		}
		env[k] = v
	}
	if dir := filepath.Dir(b.fullPath); dir != "" && dir != "." {
		set("PATH", dir+string(os.PathListSeparator)+env["PATH"])
	}
	if home != "" {
		set(homeVar, home)
	}
	if b.featureFlags.Len() > 0 {
		set(FeatureFlagEnvVar, strings.Join(sets.List(b.featureFlags), ","))
	}
	result := make([]string, 0, len(order))
	for _, k := range order {
		result = append(result, k+"="+env[k])
	}
	return result
}

// wrapTimeout prefixes argv with the hard-timeout wrapper.
func wrapTimeout(argv []string, timeout time.Duration) []string {
	wrapped := []string{timeoutPath, fmt.Sprintf("%.2f", timeout.Seconds())}
	return append(wrapped, argv...)
}

func (b *Backend) recordTiming(t CommandTiming) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timings = append(b.timings, t)
}

// Timings returns the ordered per-command timing log.
func (b *Backend) Timings() []CommandTiming {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CommandTiming, len(b.timings))
	copy(out, b.timings)
	return out
}

func (b *Backend) command(ctx context.Context, argv, env []string, opts RunOptions) *exec.Cmd {
	if opts.Timeout > 0 {
		argv = wrapTimeout(argv, opts.Timeout)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdin = opts.Stdin
	return cmd
}

// exitError converts a child failure into a typed error.
func exitError(argv []string, output, stderr []byte, err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		if stderr == nil {
			stderr = exitErr.Stderr
		}
		return &ProcessError{
			Argv:     argv,
			ExitCode: exitErr.ExitCode(),
			Output:   output,
			Stderr:   stderr,
		}
	}
	return harnesserrors.CLIError(err, strings.Join(argv, " "))
}

// Run executes argv, streaming its output to the backend's sinks. The
// command label is used for telemetry only.
func (b *Backend) Run(ctx context.Context, command string, argv, env []string, opts RunOptions) error {
	if err := b.CheckDeadline(ctx); err != nil {
		return err
	}
	timer := metrics.NewCommandTimer(command)
	start := b.now()
	b.log.V(1).Info("running command", "argv", argv)

	cmd := b.command(ctx, argv, env, opts)
	cmd.Stdout = b.out
	if opts.MergeStderr {
		cmd.Stderr = b.out
	} else {
		cmd.Stderr = b.errOut
	}
	err := cmd.Run()
	b.recordTiming(CommandTiming{Command: command, Argv: argv, Start: start, End: b.now(), Err: err})
	if err != nil {
		if opts.IgnoreExit {
			if _, ok := err.(*exec.ExitError); ok {
				timer.RecordSuccess()
				return nil
			}
		}
		timer.RecordError()
		return exitError(argv, nil, nil, err)
	}
	timer.RecordSuccess()
	return nil
}

// Output executes argv and returns its captured standard output.
func (b *Backend) Output(ctx context.Context, command string, argv, env []string, opts RunOptions) ([]byte, error) {
	if err := b.CheckDeadline(ctx); err != nil {
		return nil, err
	}
	timer := metrics.NewCommandTimer(command)
	start := b.now()
	b.log.V(1).Info("running command", "argv", argv)

	cmd := b.command(ctx, argv, env, opts)
	var output []byte
	var err error
	if opts.MergeStderr {
		output, err = cmd.CombinedOutput()
	} else {
		output, err = cmd.Output()
	}
	b.recordTiming(CommandTiming{Command: command, Argv: argv, Start: start, End: b.now(), Err: err})
	if err != nil {
		timer.RecordError()
		return output, exitError(argv, output, nil, err)
	}
	timer.RecordSuccess()
	return output, nil
}

// AsyncCommand is a handle on a command started with StartAsync.
type AsyncCommand struct {
	backend *Backend
	command string
	argv    []string
	start   time.Time
	cmd     *exec.Cmd
	timer   *metrics.CommandTimer
}

// Wait blocks until the command exits and reports its result.
func (a *AsyncCommand) Wait() error {
	err := a.cmd.Wait()
	a.backend.recordTiming(CommandTiming{
		Command: a.command,
		Argv:    a.argv,
		Start:   a.start,
		End:     a.backend.now(),
		Err:     err,
	})
	if err != nil {
		a.timer.RecordError()
		return exitError(a.argv, nil, nil, err)
	}
	a.timer.RecordSuccess()
	return nil
}

// Kill forcibly terminates the running command.
func (a *AsyncCommand) Kill() error {
	return a.cmd.Process.Kill()
}

// StartAsync launches argv without waiting for it. Output streams to the
// backend's sinks; the returned handle must be waited on.
func (b *Backend) StartAsync(ctx context.Context, command string, argv, env []string, opts RunOptions) (*AsyncCommand, error) {
	if err := b.CheckDeadline(ctx); err != nil {
		return nil, err
	}
	b.log.V(1).Info("starting command", "argv", argv)
	cmd := b.command(ctx, argv, env, opts)
	cmd.Stdout = b.out
	cmd.Stderr = b.errOut
	start := b.now()
	if err := cmd.Start(); err != nil {
		return nil, harnesserrors.CLIError(err, strings.Join(argv, " "))
	}
	return &AsyncCommand{
		backend: b,
		command: command,
		argv:    argv,
		start:   start,
		cmd:     cmd,
		timer:   metrics.NewCommandTimer(command),
	}, nil
}
