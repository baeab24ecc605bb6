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
	"fmt"
	"regexp"
	"strings"

	"github.com/blang/semver/v4"
)

// Generation identifies a concrete client variant of the armada tool.
// The set is closed: version strings dispatch onto exactly these.
type Generation int

const (
	// Gen1X covers untagged 1.x releases.
	Gen1X Generation = iota
	// Gen22 is the 1.22 series, which needs the actions feature flag.
	Gen22
	// Gen24 is the 1.24 series.
	Gen24
	// Gen25 is the 1.25 series.
	Gen25
	// Gen2RC covers 2.0 release candidates, whose bootstrap puts the
	// model name before the cloud/region argument.
	Gen2RC
	// Gen2 is the 2.x mainline.
	Gen2
)

// String returns the variant's display name.
func (g Generation) String() string {
	return variants[g].name
}

// Modern reports whether the generation uses controller:model
// addressing rather than single-environment addressing.
func (g Generation) Modern() bool {
	return variants[g].modern
}

// variantSpec carries the per-generation behavior differences. Every
// Generation has exactly one entry in variants.
type variantSpec struct {
	name   string
	modern bool

	// homeVar is the env var naming the credential/state directory.
	homeVar string
	// defaultFeatureFlags are enabled on every client of this variant.
	defaultFeatureFlags []string

	// statusCommand fetches the status document.
	statusCommand string
	// statusAppsKey is the top-level status key listing applications.
	statusAppsKey string
	// memberStatusKey is the machine key reporting HA voting state.
	memberStatusKey string

	// destroyModelArgs invokes single-model destruction.
	destroyModelCommand string
	// upgradeVersionFlag selects the agent version on upgrade-agents.
	upgradeVersionFlag string

	// rcBootstrapOrder puts the model name before cloud/region.
	rcBootstrapOrder bool
	// supportsJES allows bulk controller teardown.
	supportsJES bool
}

var variants = map[Generation]variantSpec{
	Gen1X: {
		name:                "1.x",
		homeVar:             LegacyHomeEnvVar,
		statusCommand:       "status",
		statusAppsKey:       "services",
		memberStatusKey:     "state-server-member-status",
		destroyModelCommand: "destroy-environment",
		upgradeVersionFlag:  "--version",
	},
	Gen22: {
		name:                "1.22",
		homeVar:             LegacyHomeEnvVar,
		defaultFeatureFlags: []string{"actions"},
		statusCommand:       "status",
		statusAppsKey:       "services",
		memberStatusKey:     "state-server-member-status",
		destroyModelCommand: "destroy-environment",
		upgradeVersionFlag:  "--version",
	},
	Gen24: {
		name:                "1.24",
		homeVar:             LegacyHomeEnvVar,
		statusCommand:       "status",
		statusAppsKey:       "services",
		memberStatusKey:     "state-server-member-status",
		destroyModelCommand: "destroy-environment",
		upgradeVersionFlag:  "--version",
	},
	Gen25: {
		name:                "1.25",
		homeVar:             LegacyHomeEnvVar,
		statusCommand:       "status",
		statusAppsKey:       "services",
		memberStatusKey:     "state-server-member-status",
		destroyModelCommand: "destroy-environment",
		upgradeVersionFlag:  "--version",
	},
	Gen2RC: {
		name:                "2.0-rc",
		modern:              true,
		homeVar:             ModernHomeEnvVar,
		statusCommand:       "show-status",
		statusAppsKey:       "applications",
		memberStatusKey:     "controller-member-status",
		destroyModelCommand: "destroy-model",
		upgradeVersionFlag:  "--agent-version",
		rcBootstrapOrder:    true,
		supportsJES:         true,
	},
	Gen2: {
		name:                "2.x",
		modern:              true,
		homeVar:             ModernHomeEnvVar,
		statusCommand:       "show-status",
		statusAppsKey:       "applications",
		memberStatusKey:     "controller-member-status",
		destroyModelCommand: "destroy-model",
		upgradeVersionFlag:  "--agent-version",
		supportsJES:         true,
	},
}

// VersionNotTestedError reports a tool version this harness refuses to
// drive.
type VersionNotTestedError struct {
	Version string
}

func (e *VersionNotTestedError) Error() string {
	return fmt.Sprintf("tests for armada %s are not supported", e.Version)
}

var (
	gen22Pattern = regexp.MustCompile(`^1\.22[.-]`)
	gen24Pattern = regexp.MustCompile(`^1\.24[.-]`)
	gen25Pattern = regexp.MustCompile(`^1\.25[.-]`)
	gen26Pattern = regexp.MustCompile(`^1\.26[.-]`)
)

// generationFor dispatches a normalized version string onto a client
// variant. Versions outside the tested allow-list are refused rather
// than guessed at.
func generationFor(version string) (Generation, error) {
	switch {
	case strings.HasPrefix(version, "1.16"):
		return 0, &VersionNotTestedError{Version: version}
	case gen22Pattern.MatchString(version):
		return Gen22, nil
	case gen24Pattern.MatchString(version):
		return Gen24, nil
	case gen25Pattern.MatchString(version):
		return Gen25, nil
	case gen26Pattern.MatchString(version):
		return 0, &VersionNotTestedError{Version: version}
	case strings.HasPrefix(version, "1."):
		return Gen1X, nil
	case strings.HasPrefix(version, "2.0-alpha"),
		strings.HasPrefix(version, "2.0-beta"):
		return 0, &VersionNotTestedError{Version: version}
	case strings.HasPrefix(version, "2.0-rc"):
		return Gen2RC, nil
	default:
		return Gen2, nil
	}
}

// baseVersion parses the numeric core of a reported tool version, e.g.
// "1.25.1-trusty-amd64" yields 1.25.1.
func baseVersion(version string) (semver.Version, error) {
	core := strings.SplitN(version, "-", 2)[0]
	return semver.ParseTolerant(core)
}

// normalizeToolVersion trims a raw `armada --version` report down to the
// version token and checks that it parses.
func normalizeToolVersion(raw string) (string, error) {
	version := strings.TrimSpace(raw)
	if fields := strings.Fields(version); len(fields) > 0 {
		version = fields[len(fields)-1]
	}
	if _, err := baseVersion(version); err != nil {
		return "", fmt.Errorf("unparseable tool version %q: %w", raw, err)
	}
	return version, nil
}

// matchingAgentVersion derives the agent version corresponding to a
// built tool version: the series and architecture suffix is stripped
// and, unless noBuild is set, the build number 1 is appended.
func matchingAgentVersion(version string, noBuild bool) string {
	parts := strings.Split(version, "-")
	number := parts[0]
	if len(parts) == 4 {
		number = strings.Join(parts[0:2], "-")
	}
	if !noBuild {
		number += ".1"
	}
	return number
}
