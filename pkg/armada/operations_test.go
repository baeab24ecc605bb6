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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a stub body that appends every invocation's arguments to
// calls.log next to the binary.
const recorder = `echo "$@" >> "$(dirname "$0")/calls.log"`

func recordedCalls(t *testing.T, c *Client) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(c.FullPath()), "calls.log"))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestDeploy(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)

	require.NoError(t, c.Deploy(context.Background(), "local:blah", DeployOptions{}))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{"--show-log deploy -m foo:foo local:blah"}, calls)
}

func TestDeployOptions(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)

	require.NoError(t, c.Deploy(context.Background(), "local:blah", DeployOptions{
		Service:     "front",
		To:          "lxd:1",
		Series:      "xenial",
		Force:       true,
		Resource:    "bin=somefile",
		Storage:     "data=ebs,10G",
		Constraints: "mem=8G",
	}))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{
		"--show-log deploy -m foo:foo local:blah front --to lxd:1 --series xenial --force" +
			" --resource bin=somefile --storage data=ebs,10G --constraints mem=8G",
	}, calls)
}

func TestRemoveApplication(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)
	require.NoError(t, c.RemoveApplication(context.Background(), "front"))
	assert.Equal(t, []string{"--show-log remove-application -m foo:foo front"}, recordedCalls(t, c))

	legacy, _ := newTestClient(t, "1.25.1", LegacyEnvironment, recorder)
	require.NoError(t, legacy.RemoveApplication(context.Background(), "front"))
	assert.Equal(t, []string{"--show-log destroy-service -e foo front"}, recordedCalls(t, legacy))
}

func TestAddSSHMachinesRetriesFirstOnly(t *testing.T) {
	old := sshRetryPause
	sshRetryPause = time.Millisecond
	t.Cleanup(func() { sshRetryPause = old })

	// Fail the very first invocation, succeed afterwards.
	body := `
dir="$(dirname "$0")"
echo "$@" >> "$dir/calls.log"
if [ ! -f "$dir/failed-once" ]; then
  touch "$dir/failed-once"
  exit 1
fi
`
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, body)

	require.NoError(t, c.AddSSHMachines(context.Background(), []string{"m-foo", "m-bar"}))
	calls := recordedCalls(t, c)
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0], "add-machine -m foo:foo ssh:m-foo")
	assert.Contains(t, calls[1], "add-machine -m foo:foo ssh:m-foo")
	assert.Contains(t, calls[2], "add-machine -m foo:foo ssh:m-bar")
}

func TestAddSSHMachinesLaterFailureNotRetried(t *testing.T) {
	old := sshRetryPause
	sshRetryPause = time.Millisecond
	t.Cleanup(func() { sshRetryPause = old })

	// Succeed on the first machine, fail on every later one.
	body := `
dir="$(dirname "$0")"
echo "$@" >> "$dir/calls.log"
case "$*" in
  *ssh:m-foo*) exit 0 ;;
  *) exit 1 ;;
esac
`
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, body)

	err := c.AddSSHMachines(context.Background(), []string{"m-foo", "m-bar"})
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Len(t, recordedCalls(t, c), 2)
}

func TestDestroyModel(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)
	require.NoError(t, c.DestroyModel(context.Background()))
	assert.Equal(t, []string{"--show-log destroy-model foo:foo -y"}, recordedCalls(t, c))
}

func TestDestroyEnvironment(t *testing.T) {
	c, _ := newTestClient(t, "1.25.1", LegacyEnvironment, recorder)
	require.NoError(t, c.DestroyEnvironment(context.Background(), false))
	require.NoError(t, c.DestroyEnvironment(context.Background(), true))
	assert.Equal(t, []string{
		"--show-log destroy-environment foo -y",
		"--show-log destroy-environment foo --force -y",
	}, recordedCalls(t, c))
}

func TestKillController(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder+"\nexit 1")

	// kill-controller is best effort; a failing exit is swallowed.
	require.NoError(t, c.KillController(context.Background()))
	assert.Equal(t, []string{"--show-log kill-controller foo -y"}, recordedCalls(t, c))
}

func TestKillControllerLegacy(t *testing.T) {
	c := argClient(t, "1.25.1", LegacyEnvironment)
	err := c.KillController(context.Background())
	var notSupported *NotSupportedError
	require.ErrorAs(t, err, &notSupported)
}

func TestJESCapability(t *testing.T) {
	modern := argClient(t, "2.0.1", ModernEnvironment)
	assert.True(t, modern.IsJESEnabled())
	assert.NoError(t, modern.EnableJES(context.Background()))

	legacy := argClient(t, "1.25.1", LegacyEnvironment)
	assert.False(t, legacy.IsJESEnabled())
	err := legacy.EnableJES(context.Background())
	var notSupported *NotSupportedError
	require.ErrorAs(t, err, &notSupported)

	legacy.featureFlags.Insert("jes")
	assert.True(t, legacy.IsJESEnabled())
	legacy.DisableJES(context.Background())
	assert.False(t, legacy.IsJESEnabled())
}

func TestAddModel(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)

	newEnv := NewEnvironment("qux", ModernEnvironment, map[string]interface{}{"type": "bar"}, c.env.Home)
	modelClient, err := c.AddModel(context.Background(), newEnv)
	require.NoError(t, err)
	assert.Equal(t, "qux", modelClient.Env().Name)
	assert.Equal(t, []string{"--show-log add-model -c foo qux"}, recordedCalls(t, c))
}

func TestAddModelLegacy(t *testing.T) {
	c := argClient(t, "1.25.1", LegacyEnvironment)
	_, err := c.AddModel(context.Background(), testEnv(LegacyEnvironment))
	var notSupported *NotSupportedError
	require.ErrorAs(t, err, &notSupported)
}

func TestGetModels(t *testing.T) {
	body := `
case "$*" in
  *list-models*)
    printf 'models:\n- name: controller\n- name: foo\ncurrent-model: foo\n'
    ;;
esac
`
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, body)

	models, err := c.GetModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "foo", models["current-model"])
	assert.Len(t, models["models"], 2)
}

func TestUpgradeAgents(t *testing.T) {
	c, _ := newTestClient(t, "2.0-zeta1", ModernEnvironment, recorder)
	require.NoError(t, c.UpgradeAgents(context.Background(), true))
	assert.Equal(t, []string{"--show-log upgrade-agents -m foo:foo --agent-version 2.0"}, recordedCalls(t, c))

	legacy, _ := newTestClient(t, "1.25.1-series-arch", LegacyEnvironment, recorder)
	require.NoError(t, legacy.UpgradeAgents(context.Background(), true))
	assert.Equal(t, []string{"--show-log upgrade-agents -e foo --version 1.25.1"}, recordedCalls(t, legacy))
}

func TestGetStatus(t *testing.T) {
	body := `
case "$*" in
  *show-status*)
    printf 'machines:\n  "0":\n    agent-status:\n      current: idle\napplications: {}\n'
    ;;
esac
`
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, body)

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	states, err := status.AgentStates()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"idle": {"0"}}, states)
}

func TestGetStatusLegacyCommand(t *testing.T) {
	body := `
echo "$@" >> "$(dirname "$0")/calls.log"
printf 'machines: {}\nservices: {}\n'
`
	c, _ := newTestClient(t, "1.25.1", LegacyEnvironment, body)

	_, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"--show-log status -e foo --format yaml"}, recordedCalls(t, c))
}

func TestGetStatusRetriesThenSucceeds(t *testing.T) {
	body := `
dir="$(dirname "$0")"
if [ ! -f "$dir/failed-once" ]; then
  touch "$dir/failed-once"
  exit 1
fi
printf 'machines: {}\napplications: {}\n'
`
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, body)

	_, err := c.GetStatus(context.Background())
	require.NoError(t, err)
}

func TestGetStatusBudgetExhausted(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, `exit 1`)

	_, err := c.getStatus(context.Background(), false, 50*time.Millisecond)
	var timeout *WaitTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "Timed out waiting for armada status.", err.Error())

	// The underlying subprocess failure stays visible for debugging.
	var procErr *ProcessError
	assert.ErrorAs(t, err, &procErr)
}
