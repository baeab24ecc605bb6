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
	"time"

	"github.com/cenkalti/backoff/v4"
	"sigs.k8s.io/yaml"

	harnesserrors "github.com/org/armada-harness/pkg/errors"
)

const (
	// defaultStatusBudget bounds the retry loop around the status query.
	defaultStatusBudget = 60 * time.Second
	// statusRetryInterval is the initial backoff between failing status
	// queries, so an instantly-crashing tool cannot busy-loop the budget.
	statusRetryInterval = time.Second

	// teardownTimeout is the hard timeout on destroy/kill commands.
	teardownTimeout = 10 * time.Minute
	// azureTeardownTimeout allows for azure's slow deallocation.
	azureTeardownTimeout = 30 * time.Minute
)

// sshRetryPause is the wait before retrying the first failed ssh
// machine addition.
var sshRetryPause = 30 * time.Second

// DeployOptions adjusts a charm deployment.
type DeployOptions struct {
	// Service names the deployed application when it should differ from
	// the charm name.
	Service string
	// To places the first unit.
	To string
	// Series forces a charm series.
	Series string
	// Force deploys despite series mismatches.
	Force bool
	// Resource attaches a resource as name=path.
	Resource string
	// Storage requests storage as label=pool,size.
	Storage string
	// Constraints applies machine constraints.
	Constraints string
}

// Deploy deploys a charm into the bound model.
func (c *Client) Deploy(ctx context.Context, charm string, opts DeployOptions) error {
	args := []string{charm}
	if opts.Service != "" {
		args = append(args, opts.Service)
	}
	if opts.To != "" {
		args = append(args, "--to", opts.To)
	}
	if opts.Series != "" {
		args = append(args, "--series", opts.Series)
	}
	if opts.Force {
		args = append(args, "--force")
	}
	if opts.Resource != "" {
		args = append(args, "--resource", opts.Resource)
	}
	if opts.Storage != "" {
		args = append(args, "--storage", opts.Storage)
	}
	if opts.Constraints != "" {
		args = append(args, "--constraints", opts.Constraints)
	}
	return c.run(ctx, "deploy", args, runOpts{})
}

// RemoveApplication removes a deployed application.
func (c *Client) RemoveApplication(ctx context.Context, application string) error {
	command := "remove-application"
	if !c.variant().modern {
		command = "destroy-service"
	}
	return c.run(ctx, command, []string{application}, runOpts{})
}

// UpgradeCharm upgrades an application from a local charm path.
func (c *Client) UpgradeCharm(ctx context.Context, application, path string) error {
	args := []string{application}
	if path != "" {
		args = append(args, "--path", path)
	}
	return c.run(ctx, "upgrade-charm", args, runOpts{})
}

// AttachResource attaches a resource to a deployed application.
func (c *Client) AttachResource(ctx context.Context, application, resource string) error {
	return c.run(ctx, "attach", []string{application, resource}, runOpts{})
}

// AddSSHMachines registers manually provisioned machines over ssh. Only
// the first addition is retried, once, after a fixed pause; later
// failures mean the target is genuinely broken.
func (c *Client) AddSSHMachines(ctx context.Context, machines []string) error {
	for i, machine := range machines {
		add := func() error {
			err := c.run(ctx, "add-machine", []string{"ssh:" + machine}, runOpts{})
			if err == nil {
				return nil
			}
			var procErr *ProcessError
			if errors.As(err, &procErr) {
				return err
			}
			return backoff.Permanent(err)
		}
		var err error
		if i == 0 {
			policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(sshRetryPause), 1)
			err = backoff.Retry(add, backoff.WithContext(policy, ctx))
		} else {
			err = add()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// teardownHardTimeout picks the hard timeout for destructive commands.
func (c *Client) teardownHardTimeout() time.Duration {
	if c.env != nil && c.env.Provider() == "azure" {
		return azureTeardownTimeout
	}
	return teardownTimeout
}

// DestroyModel destroys the bound model on a modern controller.
func (c *Client) DestroyModel(ctx context.Context) error {
	if !c.variant().modern {
		return c.DestroyEnvironment(ctx, false)
	}
	args := []string{c.modelTarget(), "-y"}
	return c.run(ctx, c.variant().destroyModelCommand, args, runOpts{
		noModel: true,
		timeout: c.teardownHardTimeout(),
	})
}

// DestroyEnvironment destroys a legacy environment together with its
// state server.
func (c *Client) DestroyEnvironment(ctx context.Context, force bool) error {
	if c.variant().modern {
		return c.DestroyModel(ctx)
	}
	args := []string{c.env.Name}
	if force {
		args = append(args, "--force")
	}
	args = append(args, "-y")
	return c.run(ctx, c.variant().destroyModelCommand, args, runOpts{
		noModel: true,
		timeout: c.teardownHardTimeout(),
	})
}

// KillController forcibly destroys the controller and every model in
// it. A failing exit is swallowed since the command is best-effort by
// nature and callers are about to tear the environment down anyway.
func (c *Client) KillController(ctx context.Context) error {
	if !c.variant().supportsJES {
		return &NotSupportedError{Feature: "kill-controller"}
	}
	args := []string{c.env.Controller().Name, "-y"}
	return c.run(ctx, "kill-controller", args, runOpts{
		noModel:    true,
		ignoreExit: true,
		timeout:    c.teardownHardTimeout(),
	})
}

// IsJESEnabled reports whether bulk controller teardown is available.
func (c *Client) IsJESEnabled() bool {
	if c.variant().supportsJES {
		return true
	}
	return c.featureFlags.Has("jes")
}

// EnableJES enables bulk controller teardown. Modern generations have
// it by default; legacy generations lack it entirely.
func (c *Client) EnableJES(ctx context.Context) error {
	if c.variant().supportsJES {
		return nil
	}
	return &NotSupportedError{Feature: "jes"}
}

// DisableJES drops the jes feature flag if this client enabled it.
func (c *Client) DisableJES(ctx context.Context) {
	c.featureFlags.Delete("jes")
}

// AddModel creates a new model under this client's controller and
// returns a client bound to it.
func (c *Client) AddModel(ctx context.Context, env *Environment) (*Client, error) {
	if !c.variant().modern {
		return nil, &NotSupportedError{Feature: "add-model"}
	}
	modelClient, err := c.Clone(CloneOptions{Env: env})
	if err != nil {
		return nil, err
	}
	args := []string{"-c", c.env.Controller().Name, env.Name}
	if err := c.run(ctx, "add-model", args, runOpts{noModel: true}); err != nil {
		return nil, err
	}
	return modelClient, nil
}

// GetModels lists the models of this client's controller.
func (c *Client) GetModels(ctx context.Context) (map[string]interface{}, error) {
	if !c.variant().modern {
		return nil, &NotSupportedError{Feature: "list-models"}
	}
	args := []string{"-c", c.env.Controller().Name, "--format", "yaml"}
	out, err := c.output(ctx, "list-models", args, runOpts{noModel: true})
	if err != nil {
		return nil, err
	}
	var models map[string]interface{}
	if err := yaml.Unmarshal(out, &models); err != nil {
		return nil, harnesserrors.Wrap(err, "parse list-models output")
	}
	return models, nil
}

// ShowModel fetches the named model's details.
func (c *Client) ShowModel(ctx context.Context, model string) (map[string]interface{}, error) {
	if !c.variant().modern {
		return nil, &NotSupportedError{Feature: "show-model"}
	}
	target := c.env.Controller().Name + ":" + model
	out, err := c.output(ctx, "show-model", []string{target, "--format", "yaml"}, runOpts{noModel: true})
	if err != nil {
		return nil, err
	}
	var details map[string]interface{}
	if err := yaml.Unmarshal(out, &details); err != nil {
		return nil, harnesserrors.Wrap(err, "parse show-model output")
	}
	return details, nil
}

// ShowController fetches the bound controller's details.
func (c *Client) ShowController(ctx context.Context) (map[string]interface{}, error) {
	if !c.variant().modern {
		return nil, &NotSupportedError{Feature: "show-controller"}
	}
	args := []string{c.env.Controller().Name, "--format", "yaml"}
	out, err := c.output(ctx, "show-controller", args, runOpts{noModel: true})
	if err != nil {
		return nil, err
	}
	var details map[string]interface{}
	if err := yaml.Unmarshal(out, &details); err != nil {
		return nil, harnesserrors.Wrap(err, "parse show-controller output")
	}
	return details, nil
}

// UpgradeAgents upgrades the model's agents, pinning them to this
// client's matching agent version when forceVersion is set.
func (c *Client) UpgradeAgents(ctx context.Context, forceVersion bool) error {
	var args []string
	if forceVersion {
		args = append(args, c.variant().upgradeVersionFlag, c.GetMatchingAgentVersion(true))
	}
	return c.run(ctx, "upgrade-agents", args, runOpts{})
}

// GetStatus fetches and parses the model's status. Subprocess failures
// are retried with backoff inside a fixed time budget since status is
// commonly polled while the controller is still settling.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	return c.getStatus(ctx, false, defaultStatusBudget)
}

// GetControllerStatus fetches status for the controller model.
func (c *Client) GetControllerStatus(ctx context.Context) (*Status, error) {
	return c.getStatus(ctx, true, defaultStatusBudget)
}

func (c *Client) getStatus(ctx context.Context, controller bool, budget time.Duration) (*Status, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = statusRetryInterval
	policy.MaxElapsedTime = budget

	var status *Status
	query := func() error {
		if err := c.backend.CheckDeadline(ctx); err != nil {
			return backoff.Permanent(err)
		}
		out, err := c.output(ctx, c.variant().statusCommand, []string{"--format", "yaml"}, runOpts{
			controller: controller,
		})
		if err != nil {
			var procErr *ProcessError
			if errors.As(err, &procErr) {
				return err
			}
			return backoff.Permanent(err)
		}
		status, err = ParseStatus(out, c.variant().statusAppsKey)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(query, backoff.WithContext(policy, ctx)); err != nil {
		var procErr *ProcessError
		if errors.As(err, &procErr) {
			return nil, &WaitTimeoutError{Message: "Timed out waiting for armada status.", Cause: err}
		}
		return nil, err
	}
	return status, nil
}
