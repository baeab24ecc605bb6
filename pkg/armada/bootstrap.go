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
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	harnesserrors "github.com/org/armada-harness/pkg/errors"
)

// maasSpacesConstraint isolates controller traffic from the test
// endpoint-binding spaces on maas substrates.
const maasSpacesConstraint = "spaces=^endpoint-bindings-data,^endpoint-bindings-public"

// BootstrapOptions adjusts a bootstrap invocation.
type BootstrapOptions struct {
	// UploadTools builds and uploads agent binaries from the local tree
	// instead of fetching a released agent version.
	UploadTools bool
	// AgentVersion pins the agent version explicitly. Mutually
	// exclusive with UploadTools; empty derives it from the client
	// version.
	AgentVersion string
	// BootstrapSeries picks the series for the bootstrap machine.
	BootstrapSeries string
	// Credential names the credential to bootstrap with.
	Credential string
	// AutoUpgrade lets the controller upgrade itself after bootstrap.
	AutoUpgrade bool
	// MetadataSource points at a local simplestreams directory.
	MetadataSource string
	// To places the bootstrap machine.
	To string
	// NoGUI skips installing the controller GUI.
	NoGUI bool
}

// bootstrapConstraints builds the constraint string for the
// environment's substrate. Joyent instances need an explicit core count
// and maas needs space isolation unless the environment opts out.
func (c *Client) bootstrapConstraints() string {
	constraints := "mem=2G"
	switch c.env.Provider() {
	case "joyent":
		constraints += " cpu-cores=1"
	case "maas":
		if spaceless, _ := c.env.Config["spaceless"].(bool); !spaceless {
			constraints += " " + maasSpacesConstraint
		}
	}
	return constraints
}

// bootstrapConfig is the sanitized config written to the temporary
// bootstrap file. Keys passed as CLI arguments are stripped on modern
// generations since the tool rejects them in the file.
func (c *Client) bootstrapConfig() map[string]interface{} {
	config := c.MakeSafeConfig()
	if c.variant().modern {
		for _, key := range []string{"name", "type", "region", "agent-version"} {
			delete(config, key)
		}
	}
	return config
}

// writeBootstrapConfig persists the sanitized config to a temp file and
// returns its path with a cleanup function. The file is always written
// before bootstrap and removed afterward regardless of outcome.
func (c *Client) writeBootstrapConfig() (string, func(), error) {
	data, err := yaml.Marshal(c.bootstrapConfig())
	if err != nil {
		return "", nil, harnesserrors.Wrap(err, "marshal bootstrap config")
	}
	f, err := os.CreateTemp("", "armada-bootstrap-*.yaml")
	if err != nil {
		return "", nil, harnesserrors.Wrap(err, "create bootstrap config file")
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, harnesserrors.Wrap(err, "write bootstrap config file")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, harnesserrors.Wrap(err, "write bootstrap config file")
	}
	return path, cleanup, nil
}

// modernBootstrapArgs builds the bootstrap argument list for 2.x
// generations. Release candidates expect the model name before the
// cloud/region pair.
func (c *Client) modernBootstrapArgs(opts BootstrapOptions, configPath string) ([]string, error) {
	if opts.UploadTools && opts.AgentVersion != "" {
		return nil, harnesserrors.Validation("--upload-tools and agent-version cannot be used together")
	}
	cloudRegion, err := c.env.CloudRegion()
	if err != nil {
		return nil, err
	}
	var args []string
	if opts.UploadTools {
		args = append(args, "--upload-tools")
	}
	args = append(args, "--constraints", c.bootstrapConstraints())
	if c.variant().rcBootstrapOrder {
		args = append(args, c.env.Name, cloudRegion)
	} else {
		args = append(args, cloudRegion, c.env.Name)
	}
	args = append(args, "--config", configPath, "--default-model", c.env.Name)
	if !opts.UploadTools {
		agentVersion := opts.AgentVersion
		if agentVersion == "" {
			agentVersion = c.GetMatchingAgentVersion(true)
		}
		args = append(args, "--agent-version", agentVersion)
	}
	if opts.BootstrapSeries != "" {
		args = append(args, "--bootstrap-series", opts.BootstrapSeries)
	}
	if opts.Credential != "" {
		args = append(args, "--credential", opts.Credential)
	}
	if opts.AutoUpgrade {
		args = append(args, "--auto-upgrade")
	}
	if opts.MetadataSource != "" {
		args = append(args, "--metadata-source", opts.MetadataSource)
	}
	if opts.To != "" {
		args = append(args, "--to", opts.To)
	}
	if opts.NoGUI {
		args = append(args, "--no-gui")
	}
	return args, nil
}

// legacyBootstrapArgs builds the bootstrap argument list for 1.x
// generations, which take far fewer knobs.
func (c *Client) legacyBootstrapArgs(opts BootstrapOptions) ([]string, error) {
	if opts.UploadTools && opts.AgentVersion != "" {
		return nil, harnesserrors.Validation("--upload-tools and agent-version cannot be used together")
	}
	if opts.BootstrapSeries != "" {
		defaultSeries, _ := c.env.Config["default-series"].(string)
		if opts.BootstrapSeries != defaultSeries {
			return nil, harnesserrors.Validationf(
				"bootstrap-series %q does not match default-series %q",
				opts.BootstrapSeries, defaultSeries)
		}
	}
	var args []string
	if opts.UploadTools {
		args = append(args, "--upload-tools")
	}
	args = append(args, "--constraints", c.bootstrapConstraints())
	return args, nil
}

// writeLegacyBootstrapHome materializes a temporary state directory
// holding only the sanitized environment definition, so a 1.x bootstrap
// never reads operator credentials from the real home.
func (c *Client) writeLegacyBootstrapHome() (string, func(), error) {
	document := map[string]interface{}{
		"environments": map[string]interface{}{
			c.env.Name: c.bootstrapConfig(),
		},
	}
	data, err := yaml.Marshal(document)
	if err != nil {
		return "", nil, harnesserrors.Wrap(err, "marshal bootstrap config")
	}
	dir, err := os.MkdirTemp("", "armada-bootstrap-home-")
	if err != nil {
		return "", nil, harnesserrors.Wrap(err, "create bootstrap home")
	}
	cleanup := func() { os.RemoveAll(dir) }
	if err := os.WriteFile(filepath.Join(dir, "environments.yaml"), data, 0o644); err != nil {
		cleanup()
		return "", nil, harnesserrors.Wrap(err, "write bootstrap environments file")
	}
	return dir, cleanup, nil
}

// Bootstrap provisions the controller for the bound environment.
func (c *Client) Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	if c.variant().modern {
		configPath, cleanup, err := c.writeBootstrapConfig()
		if err != nil {
			return err
		}
		defer cleanup()
		args, err := c.modernBootstrapArgs(opts, configPath)
		if err != nil {
			return err
		}
		return c.run(ctx, "bootstrap", args, runOpts{noModel: true})
	}

	args, err := c.legacyBootstrapArgs(opts)
	if err != nil {
		return err
	}
	home, cleanup, err := c.writeLegacyBootstrapHome()
	if err != nil {
		return err
	}
	defer cleanup()
	return c.run(ctx, "bootstrap", args, runOpts{homeOverride: home})
}

// BootstrapAsync starts a modern bootstrap without waiting for it. The
// returned cleanup removes the temporary config file and must run after
// the command is waited on.
func (c *Client) BootstrapAsync(ctx context.Context, opts BootstrapOptions) (*AsyncCommand, func(), error) {
	if !c.variant().modern {
		return nil, nil, &NotSupportedError{Feature: "async bootstrap"}
	}
	configPath, cleanup, err := c.writeBootstrapConfig()
	if err != nil {
		return nil, nil, err
	}
	args, err := c.modernBootstrapArgs(opts, configPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cmd, err := c.startAsync(ctx, "bootstrap", args, runOpts{noModel: true})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return cmd, cleanup, nil
}
