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

// Package armada drives the armada cluster-management CLI for automated
// tests: environment descriptors, a subprocess execution backend, a
// version-dispatched client family, status snapshots and wait conditions.
package armada

import (
	"fmt"
	"regexp"

	"sigs.k8s.io/yaml"

	harnesserrors "github.com/org/armada-harness/pkg/errors"
)

// EnvironmentKind selects the descriptor layout for a tool generation.
type EnvironmentKind int

const (
	// LegacyEnvironment is the 1.x layout: the environment name doubles
	// as controller and model identity, state lives under ARMADA_HOME.
	LegacyEnvironment EnvironmentKind = iota
	// ModernEnvironment is the 2.x layout: controllers own models, state
	// lives under ARMADA_DATA.
	ModernEnvironment
)

// Controller names the control-plane instance that manages an
// environment's models. Clones of an environment share the controller.
type Controller struct {
	Name string
}

// Environment describes a named deployment target: its provider config,
// where credential/state files live, and the controller managing it.
type Environment struct {
	Name   string
	Kind   EnvironmentKind
	Config map[string]interface{}
	Home   string

	controller *Controller
}

// NewEnvironment builds a descriptor for name with the given provider
// config. The controller defaults to the environment name.
func NewEnvironment(name string, kind EnvironmentKind, config map[string]interface{}, home string) *Environment {
	if config == nil {
		config = map[string]interface{}{}
	}
	return &Environment{
		Name:       name,
		Kind:       kind,
		Config:     config,
		Home:       home,
		controller: &Controller{Name: name},
	}
}

// EnvironmentFromYAML parses a provider config document and builds a
// descriptor from it.
func EnvironmentFromYAML(name string, kind EnvironmentKind, data []byte, home string) (*Environment, error) {
	var config map[string]interface{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, harnesserrors.Wrapf(err, "parse config for environment %q", name)
	}
	return NewEnvironment(name, kind, config, home), nil
}

// Controller returns the controller managing this environment.
func (e *Environment) Controller() *Controller {
	if e.controller == nil {
		e.controller = &Controller{Name: e.Name}
	}
	return e.controller
}

// Clone copies the descriptor with an independent config map. The
// controller reference is shared so sibling clients agree on the
// controlling instance.
func (e *Environment) Clone() *Environment {
	config := make(map[string]interface{}, len(e.Config))
	for k, v := range e.Config {
		config[k] = v
	}
	return &Environment{
		Name:       e.Name,
		Kind:       e.Kind,
		Config:     config,
		Home:       e.Home,
		controller: e.Controller(),
	}
}

// asModern returns an equivalent modern descriptor. Modern client
// generations accept legacy descriptors by converting them.
func (e *Environment) asModern() *Environment {
	if e.Kind == ModernEnvironment {
		return e
	}
	clone := e.Clone()
	clone.Kind = ModernEnvironment
	return clone
}

// SetModelName renames the environment's model. When setController is
// true the controller is renamed along with it, which is the behavior
// wanted for a freshly bootstrapped target.
func (e *Environment) SetModelName(name string, setController bool) {
	e.Name = name
	if setController {
		e.Controller().Name = name
	}
	e.Config["name"] = name
}

// Provider returns the provider type from the config, or "" if unset.
func (e *Environment) Provider() string {
	provider, _ := e.Config["type"].(string)
	return provider
}

var joyentURLPattern = regexp.MustCompile(`https://(.*)\.api\.joyentcloud\.com`)

// Region reports the provider region for this environment. A few
// providers spell it differently: azure stores a location, joyent
// encodes it in the API endpoint URL, lxd defaults to localhost and
// manual targets are identified by their bootstrap host.
func (e *Environment) Region() (string, error) {
	switch e.Provider() {
	case "azure":
		location, ok := e.Config["location"].(string)
		if !ok {
			return "", harnesserrors.Validationf("environment %q has no location", e.Name)
		}
		return location, nil
	case "joyent":
		url, _ := e.Config["sdc-url"].(string)
		m := joyentURLPattern.FindStringSubmatch(url)
		if m == nil {
			return "", harnesserrors.Validationf("environment %q has unparseable sdc-url %q", e.Name, url)
		}
		return m[1], nil
	case "lxd":
		if region, ok := e.Config["region"].(string); ok {
			return region, nil
		}
		return "localhost", nil
	case "manual":
		host, _ := e.Config["bootstrap-host"].(string)
		return host, nil
	case "maas":
		return "", nil
	default:
		region, _ := e.Config["region"].(string)
		return region, nil
	}
}

// CloudRegion returns the PROVIDER/REGION pair used as the bootstrap
// target argument, or just the provider when the region is empty.
func (e *Environment) CloudRegion() (string, error) {
	region, err := e.Region()
	if err != nil {
		return "", err
	}
	if region == "" {
		return e.Provider(), nil
	}
	return fmt.Sprintf("%s/%s", e.Provider(), region), nil
}

// safeConfigKeys is the allow-list of provider config keys that may be
// written to shared files. Everything else is treated as operator-only.
var safeConfigKeys = map[string]bool{
	"agent-metadata-url":        true,
	"agent-stream":              true,
	"authorized-keys":           true,
	"availability-sets-enabled": true,
	"bootstrap-timeout":         true,
	"bootstrap-user":            true,
	"container":                 true,
	"default-series":            true,
	"development":               true,
	"enable-os-upgrade":         true,
	"image-metadata-url":        true,
	"prefer-ipv6":               true,
	"test-mode":                 true,
}

// safeConfig projects config onto the allow-list, keeping name and type
// and migrating the deprecated tools-metadata-url key. The projection is
// idempotent.
func safeConfig(config map[string]interface{}) map[string]interface{} {
	safe := map[string]interface{}{}
	for k, v := range config {
		if safeConfigKeys[k] {
			safe[k] = v
		}
	}
	if name, ok := config["name"]; ok {
		safe["name"] = name
	}
	if typ, ok := config["type"]; ok {
		safe["type"] = typ
	}
	if url, ok := config["tools-metadata-url"]; ok {
		if _, present := safe["agent-metadata-url"]; !present {
			safe["agent-metadata-url"] = url
		}
	}
	safe["test-mode"] = true
	return safe
}
