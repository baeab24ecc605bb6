package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/org/armada-harness/pkg/armada"
)

func newTeardownCmd() *cobra.Command {
	var tryJES bool

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Destroy the environment or controller",
		Long: `Destroys everything the run created. Controller-capable generations get
a bulk kill; older ones fall back to plain destruction, retried with
--force when the first attempt fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTeardown(cmd.Context(), tryJES)
		},
	}

	cmd.Flags().BoolVar(&tryJES, "try-jes", false, "Attempt to enable bulk controller teardown before destroying")

	return cmd
}

func runTeardown(ctx context.Context, tryJES bool) error {
	client, _, err := loadClient(ctx)
	if err != nil {
		return err
	}

	log.Info("tearing down", "environment", client.Env().Name)
	if err := armada.TearDown(ctx, client, client.IsJESEnabled(), tryJES); err != nil {
		return err
	}
	fmt.Printf("Environment %s destroyed\n", client.Env().Name)
	return nil
}
