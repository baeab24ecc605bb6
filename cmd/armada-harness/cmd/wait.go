package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/org/armada-harness/pkg/armada"
)

// waitConditions names the conditions the wait subcommand understands.
var waitConditions = []string{"started", "workloads", "deploys", "ha", "version"}

func newWaitCmd() *cobra.Command {
	var timeout time.Duration
	var agentVersion string
	var appCount int

	cmd := &cobra.Command{
		Use:       "wait <condition>",
		Short:     "Block until a status condition is met",
		Long:      `Polls status until the named condition holds: started, workloads, deploys, ha, or version.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: waitConditions,
		Example: `  # Wait for every agent to start
  armada-harness wait started --config harness.yaml

  # Wait for all agents to report a version
  armada-harness wait version --agent-version 2.0.1 --timeout 30m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWait(cmd.Context(), args[0], timeout, agentVersion, appCount)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", armada.DefaultWaitTimeout, "Give up after this long")
	cmd.Flags().StringVar(&agentVersion, "agent-version", "", "Target version for the version condition")
	cmd.Flags().IntVar(&appCount, "app-count", 1, "Application count for the deploys condition")

	return cmd
}

func runWait(ctx context.Context, condition string, timeout time.Duration, agentVersion string, appCount int) error {
	client, _, err := loadClient(ctx)
	if err != nil {
		return err
	}

	switch condition {
	case "started":
		_, err = client.WaitForStarted(ctx, timeout)
	case "workloads":
		err = client.WaitForWorkloads(ctx, timeout)
	case "deploys":
		err = client.WaitForDeployStarted(ctx, appCount, timeout)
	case "ha":
		err = client.WaitForHA(ctx, timeout)
	case "version":
		if agentVersion == "" {
			return fmt.Errorf("the version condition requires --agent-version")
		}
		err = client.WaitForVersion(ctx, agentVersion, timeout)
	default:
		return fmt.Errorf("unknown wait condition %q", condition)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Condition %s met\n", condition)
	return nil
}
