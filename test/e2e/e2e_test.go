//go:build e2e
// +build e2e

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

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/org/armada-harness/pkg/armada"
)

// stubScript simulates an armada binary for one full run. Status output
// moves from pending to idle after a couple of polls, and grows a
// workload once something was deployed. State lives next to the script.
const stubScript = `#!/bin/sh
state="$(dirname "$0")"
echo "$@" >> "$state/calls.log"
if [ "$1" = "--version" ]; then
	echo "2.0.1-xenial-amd64"
	exit 0
fi
case "$2" in
bootstrap)
	: > "$state/bootstrapped"
	;;
deploy)
	: > "$state/deployed"
	;;
status|show-status)
	polls=$(cat "$state/polls" 2>/dev/null || echo 0)
	polls=$((polls + 1))
	echo "$polls" > "$state/polls"
	if [ "$polls" -lt 3 ]; then
		cat <<'EOF'
machines:
  "0":
    agent-status:
      current: pending
applications: {}
EOF
	elif [ ! -f "$state/deployed" ]; then
		cat <<'EOF'
machines:
  "0":
    agent-status:
      current: idle
      version: 2.0.1
applications: {}
EOF
	else
		cat <<'EOF'
machines:
  "0":
    agent-status:
      current: idle
      version: 2.0.1
applications:
  wordpress:
    units:
      wordpress/0:
        agent-status:
          current: idle
        workload-status:
          current: active
EOF
	fi
	;;
kill-controller)
	rm -f "$state/bootstrapped" "$state/deployed"
	;;
esac
exit 0
`

var _ = Describe("Harness run", Ordered, func() {
	var (
		ctx      context.Context
		stateDir string
		binary   string
		client   *armada.Client
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		stateDir, err = os.MkdirTemp("", "armada-e2e-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(stateDir) })

		binary = os.Getenv("ARMADA_E2E_BINARY")
		if binary == "" {
			By("installing the scripted armada binary")
			binary = filepath.Join(stateDir, "armada")
			Expect(os.WriteFile(binary, []byte(stubScript), 0o755)).To(Succeed())
		}

		By("building a client by probing the binary version")
		env := armada.NewEnvironment("e2e-test", armada.ModernEnvironment, map[string]interface{}{
			"type":   "lxd",
			"region": "localhost",
		}, filepath.Join(stateDir, "home"))
		client, err = armada.ClientFromConfig(ctx, env, armada.ClientConfig{
			FullPath: binary,
			Progress: GinkgoWriter,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Version()).To(HavePrefix("2.0"))
	})

	AfterEach(func() {
		if CurrentSpecReport().Failed() {
			calls, err := os.ReadFile(filepath.Join(stateDir, "calls.log"))
			if err == nil {
				_, _ = GinkgoWriter.Write(calls)
			}
		}
	})

	It("should bootstrap the environment", func() {
		By("running bootstrap")
		Expect(client.Bootstrap(ctx, armada.BootstrapOptions{})).To(Succeed())

		By("verifying the bootstrap invocation")
		calls := recordedCalls(stateDir)
		Expect(calls).To(ContainElement(SatisfyAll(
			ContainSubstring("bootstrap"),
			ContainSubstring("--constraints mem=2G"),
			ContainSubstring("lxd/localhost"),
		)))
		Expect(filepath.Join(stateDir, "bootstrapped")).To(BeAnExistingFile())
	})

	It("should see the agents start", func() {
		status, err := client.WaitForStarted(ctx, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Machines(false)).To(HaveLen(1))
	})

	It("should deploy a workload and watch it settle", func() {
		By("deploying an application")
		Expect(client.Deploy(ctx, "cs:wordpress", armada.DeployOptions{})).To(Succeed())

		By("waiting for the application to appear")
		Expect(client.WaitForDeployStarted(ctx, 1, time.Minute)).To(Succeed())

		By("waiting for the workload to become active")
		Expect(client.WaitForWorkloads(ctx, time.Minute)).To(Succeed())
	})

	It("should report agent states", func() {
		status, err := client.GetStatus(ctx)
		Expect(err).NotTo(HaveOccurred())

		states, err := status.AgentStates()
		Expect(err).NotTo(HaveOccurred())
		Expect(states).To(HaveKey("idle"))
		Expect(states["idle"]).To(ContainElement("wordpress/0"))
	})

	It("should tear everything down", func() {
		Expect(armada.TearDown(ctx, client, true, false)).To(Succeed())

		calls := recordedCalls(stateDir)
		Expect(calls).To(ContainElement(ContainSubstring("kill-controller e2e-test -y")))
		Expect(filepath.Join(stateDir, "bootstrapped")).NotTo(BeAnExistingFile())
	})
})

// recordedCalls returns the argument lines the stub binary logged.
func recordedCalls(stateDir string) []string {
	data, err := os.ReadFile(filepath.Join(stateDir, "calls.log"))
	Expect(err).NotTo(HaveOccurred())
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}
