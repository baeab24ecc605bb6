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
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	harnesserrors "github.com/org/armada-harness/pkg/errors"
)

// controllerModelName is the reserved model holding the controller
// machines on modern generations.
const controllerModelName = "controller"

// NotSupportedError reports a feature absent from the client's tool
// generation.
type NotSupportedError struct {
	Feature string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by this client", e.Feature)
}

// IncompatibleEnvironmentError reports an environment descriptor paired
// with a client generation that cannot drive it.
type IncompatibleEnvironmentError struct {
	Generation Generation
}

func (e *IncompatibleEnvironmentError) Error() string {
	return fmt.Sprintf("a modern environment cannot be used with a %s client", e.Generation)
}

// ClientConfig holds construction parameters for a Client.
type ClientConfig struct {
	// Env is the deployment target. May be nil for unbound clients that
	// only run model-less commands.
	Env *Environment
	// Version is the normalized tool version; it selects the generation.
	Version string
	// FullPath locates the armada binary. Empty means PATH lookup.
	FullPath string
	// Debug switches command verbosity from --show-log to --debug.
	Debug bool
	// FeatureFlags overrides the generation's default dev flags.
	FeatureFlags sets.Set[string]
	// SoftDeadline refuses new operations after this instant.
	SoftDeadline time.Time
	// Log receives harness logging.
	Log logr.Logger
	// Progress receives wait-loop progress output. Defaults to stdout.
	Progress io.Writer
	// Backend overrides the subprocess backend, mainly for tests and
	// clones that must share a deadline.
	Backend *Backend
}

// Client drives one armada binary against one environment. Clones share
// the backend so the soft deadline and timing log stay common.
type Client struct {
	env          *Environment
	version      string
	fullPath     string
	debug        bool
	featureFlags sets.Set[string]
	gen          Generation
	backend      *Backend
	log          logr.Logger
	progress     io.Writer

	sleep func(time.Duration)
}

// NewClient builds a client for cfg, dispatching cfg.Version onto a
// generation. Untested versions are refused with VersionNotTestedError;
// a modern descriptor with a legacy generation is refused with
// IncompatibleEnvironmentError.
func NewClient(cfg ClientConfig) (*Client, error) {
	gen, err := generationFor(cfg.Version)
	if err != nil {
		return nil, err
	}
	return newClientForGeneration(cfg, gen)
}

func newClientForGeneration(cfg ClientConfig, gen Generation) (*Client, error) {
	variant := variants[gen]
	env := cfg.Env
	if env != nil {
		if variant.modern {
			env = env.asModern()
		} else if env.Kind == ModernEnvironment {
			return nil, &IncompatibleEnvironmentError{Generation: gen}
		}
	}
	flags := cfg.FeatureFlags
	if flags == nil {
		flags = sets.New(variant.defaultFeatureFlags...)
	}
	if cfg.Progress == nil {
		cfg.Progress = os.Stdout
	}
	if cfg.Log.GetSink() == nil {
		cfg.Log = logr.Discard()
	}
	backend := cfg.Backend
	if backend == nil {
		backend = NewBackend(BackendConfig{
			FullPath:     cfg.FullPath,
			Version:      cfg.Version,
			Debug:        cfg.Debug,
			FeatureFlags: flags,
			SoftDeadline: cfg.SoftDeadline,
			Log:          cfg.Log,
		})
	}
	return &Client{
		env:          env,
		version:      cfg.Version,
		fullPath:     backend.FullPath(),
		debug:        cfg.Debug,
		featureFlags: flags,
		gen:          gen,
		backend:      backend,
		log:          cfg.Log,
		progress:     cfg.Progress,
		sleep:        time.Sleep,
	}, nil
}

// ToolVersion probes the installed binary for its version string.
func ToolVersion(ctx context.Context, fullPath string) (string, error) {
	if fullPath == "" {
		fullPath = "armada"
	}
	out, err := exec.CommandContext(ctx, fullPath, "--version").Output()
	if err != nil {
		return "", harnesserrors.CLIError(err, fullPath+" --version")
	}
	return normalizeToolVersion(string(out))
}

// ClientFromConfig builds a client for env by interrogating the
// installed tool's version and selecting the matching generation.
func ClientFromConfig(ctx context.Context, env *Environment, cfg ClientConfig) (*Client, error) {
	if cfg.Version == "" {
		version, err := ToolVersion(ctx, cfg.FullPath)
		if err != nil {
			return nil, err
		}
		cfg.Version = version
	}
	cfg.Env = env
	return NewClient(cfg)
}

// Env returns the bound environment, or nil for unbound clients.
func (c *Client) Env() *Environment { return c.env }

// Version returns the tool version the client was built for.
func (c *Client) Version() string { return c.version }

// FullPath returns the armada binary path.
func (c *Client) FullPath() string { return c.fullPath }

// Generation returns the dispatched client generation.
func (c *Client) Generation() Generation { return c.gen }

// Backend returns the shared subprocess backend.
func (c *Client) Backend() *Backend { return c.backend }

// FeatureFlags returns the enabled dev feature flags.
func (c *Client) FeatureFlags() sets.Set[string] { return c.featureFlags }

func (c *Client) variant() variantSpec { return variants[c.gen] }

// CloneOptions selects the attributes a clone overrides. Unset fields
// keep the current client's values.
type CloneOptions struct {
	Env        *Environment
	Version    string
	FullPath   string
	Debug      *bool
	Generation *Generation
}

// cloneCarriedFlags are the flags a clone keeps from its parent on top
// of the target generation's defaults.
var cloneCarriedFlags = sets.New("jes")

// Clone derives a sibling client, reusing the backend (and with it the
// soft deadline and timing log). A Generation override steps between
// generations for upgrade flows.
func (c *Client) Clone(opts CloneOptions) (*Client, error) {
	env := c.env
	if opts.Env != nil {
		env = opts.Env
	}
	version := c.version
	if opts.Version != "" {
		version = opts.Version
	}
	fullPath := c.fullPath
	if opts.FullPath != "" {
		fullPath = opts.FullPath
	}
	debug := c.debug
	if opts.Debug != nil {
		debug = *opts.Debug
	}
	gen := opts.Generation
	if gen == nil {
		dispatched, err := generationFor(version)
		if err != nil {
			return nil, err
		}
		gen = &dispatched
	}
	flags := sets.New(variants[*gen].defaultFeatureFlags...).
		Union(c.featureFlags.Intersection(cloneCarriedFlags))
	backend := c.backend.Clone(fullPath, version, debug, flags)
	clone, err := newClientForGeneration(ClientConfig{
		Env:          env,
		Version:      version,
		FullPath:     fullPath,
		Debug:        debug,
		FeatureFlags: flags,
		Log:          c.log,
		Progress:     c.progress,
		Backend:      backend,
	}, *gen)
	if err != nil {
		return nil, err
	}
	clone.sleep = c.sleep
	return clone, nil
}

// GetControllerClient clones this client against the controller's own
// model, where the controller machines report status.
func (c *Client) GetControllerClient() (*Client, error) {
	if !c.variant().modern {
		return nil, &NotSupportedError{Feature: "controller models"}
	}
	env := c.env.Clone()
	env.SetModelName(controllerModelName, false)
	return c.Clone(CloneOptions{Env: env})
}

// modelTarget is the CONTROLLER:MODEL pair used for modern addressing.
func (c *Client) modelTarget() string {
	return fmt.Sprintf("%s:%s", c.env.Controller().Name, c.env.Name)
}

// controllerTarget addresses the controller's own model.
func (c *Client) controllerTarget() string {
	return fmt.Sprintf("%s:%s", c.env.Controller().Name, controllerModelName)
}

// fullArgs builds the complete argument vector for a command: binary,
// verbosity flag, the command (split when it embeds a sub-argument),
// the generation's addressing flag and the caller's arguments.
func (c *Client) fullArgs(command string, includeE, controller bool, args ...string) []string {
	full := []string{c.binary(), c.backend.verbosityFlag()}
	full = append(full, strings.Split(command, " ")...)
	if c.env != nil && includeE {
		if c.variant().modern {
			target := c.modelTarget()
			if controller {
				target = c.controllerTarget()
			}
			full = append(full, "-m", target)
		} else {
			full = append(full, "-e", c.env.Name)
		}
	}
	return append(full, args...)
}

func (c *Client) binary() string {
	if c.fullPath == "" {
		return "armada"
	}
	return c.fullPath
}

// shellEnv builds the child environment for this client's generation.
// A non-empty homeOverride substitutes the state directory, which
// legacy bootstrap uses to point the tool at a sanitized temp home.
func (c *Client) shellEnv(homeOverride string) []string {
	home := homeOverride
	if home == "" && c.env != nil {
		home = c.env.Home
	}
	return c.backend.ShellEnv(c.variant().homeVar, home)
}

// runOpts adjusts one client command invocation.
type runOpts struct {
	// noModel drops the addressing flag entirely.
	noModel bool
	// controller addresses the controller model instead of the bound one.
	controller bool
	// timeout applies the hard external timeout wrapper.
	timeout time.Duration
	// ignoreExit swallows non-zero exit status.
	ignoreExit bool
	// mergeStderr folds stderr into captured output.
	mergeStderr bool
	// homeOverride substitutes the state directory for this call.
	homeOverride string
}

// run executes a command, streaming output to the backend sinks.
func (c *Client) run(ctx context.Context, command string, args []string, opts runOpts) error {
	argv := c.fullArgs(command, !opts.noModel, opts.controller, args...)
	return c.backend.Run(ctx, command, argv, c.shellEnv(opts.homeOverride), RunOptions{
		Timeout:     opts.timeout,
		IgnoreExit:  opts.ignoreExit,
		MergeStderr: opts.mergeStderr,
	})
}

// output executes a command and captures its standard output.
func (c *Client) output(ctx context.Context, command string, args []string, opts runOpts) ([]byte, error) {
	argv := c.fullArgs(command, !opts.noModel, opts.controller, args...)
	return c.backend.Output(ctx, command, argv, c.shellEnv(opts.homeOverride), RunOptions{
		Timeout:     opts.timeout,
		MergeStderr: opts.mergeStderr,
	})
}

// startAsync launches a command without waiting for it.
func (c *Client) startAsync(ctx context.Context, command string, args []string, opts runOpts) (*AsyncCommand, error) {
	argv := c.fullArgs(command, !opts.noModel, opts.controller, args...)
	return c.backend.StartAsync(ctx, command, argv, c.shellEnv(opts.homeOverride), RunOptions{
		Timeout: opts.timeout,
	})
}

// GetMatchingAgentVersion derives the agent version matching this
// client's tool version.
func (c *Client) GetMatchingAgentVersion(noBuild bool) string {
	return matchingAgentVersion(c.version, noBuild)
}

// MakeSafeConfig projects the environment's provider config onto the
// shareable allow-list, stamping test-mode and the matching agent
// version. The projection is idempotent.
func (c *Client) MakeSafeConfig() map[string]interface{} {
	config := safeConfig(c.env.Config)
	config["agent-version"] = c.GetMatchingAgentVersion(false)
	return config
}
