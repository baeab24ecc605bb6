package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/org/armada-harness/pkg/armada"
)

func newStatusCmd() *cobra.Command {
	var outputFormat string
	var controller bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current status snapshot",
		Example: `  # Summarize agent states
  armada-harness status --config harness.yaml

  # Raw status document of the controller model
  armada-harness status --config harness.yaml --controller -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), outputFormat, controller)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml)")
	cmd.Flags().BoolVar(&controller, "controller", false, "Query the controller model instead of the workload model")

	return cmd
}

func runStatus(ctx context.Context, outputFormat string, controller bool) error {
	client, _, err := loadClient(ctx)
	if err != nil {
		return err
	}

	var status *armada.Status
	if controller {
		status, err = client.GetControllerStatus(ctx)
	} else {
		status, err = client.GetStatus(ctx)
	}
	if err != nil {
		return err
	}

	if outputFormat == "yaml" {
		fmt.Print(string(status.Raw()))
		return nil
	}

	states, err := status.AgentStates()
	if err != nil {
		return err
	}
	groups := make([]string, 0, len(states))
	for group := range states {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tAGENTS")
	for _, group := range groups {
		for _, name := range states[group] {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", group, name)
		}
	}
	return w.Flush()
}
