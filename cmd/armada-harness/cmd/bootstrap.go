package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/org/armada-harness/pkg/armada"
)

func newBootstrapCmd() *cobra.Command {
	var opts armada.BootstrapOptions
	var uniqueModel bool
	var waitStarted bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap an environment",
		Long:  `Bootstraps the configured environment and optionally waits for its agents to start.`,
		Example: `  # Bootstrap and wait for the agents
  armada-harness bootstrap --config harness.yaml --wait

  # Bootstrap a uniquely named model for a parallel run
  armada-harness bootstrap --config harness.yaml --unique-model`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context(), opts, uniqueModel, waitStarted)
		},
	}

	cmd.Flags().BoolVar(&opts.UploadTools, "upload-tools", false, "Build and upload agent binaries instead of fetching them")
	cmd.Flags().StringVar(&opts.AgentVersion, "agent-version", "", "Agent version to bootstrap with")
	cmd.Flags().StringVar(&opts.BootstrapSeries, "bootstrap-series", "", "Series for the bootstrap machine")
	cmd.Flags().StringVar(&opts.Credential, "credential", "", "Credential name to bootstrap with")
	cmd.Flags().BoolVar(&opts.AutoUpgrade, "auto-upgrade", false, "Allow automatic agent upgrades after bootstrap")
	cmd.Flags().StringVar(&opts.MetadataSource, "metadata-source", "", "Local simplestreams metadata directory")
	cmd.Flags().StringVar(&opts.To, "to", "", "Placement directive for the bootstrap machine")
	cmd.Flags().BoolVar(&opts.NoGUI, "no-gui", false, "Skip installing the GUI")
	cmd.Flags().BoolVar(&uniqueModel, "unique-model", false, "Suffix the model name with a run id so parallel runs do not collide")
	cmd.Flags().BoolVar(&waitStarted, "wait", false, "Wait for all agents to start after bootstrap")

	return cmd
}

func runBootstrap(ctx context.Context, opts armada.BootstrapOptions, uniqueModel, waitStarted bool) error {
	client, cfg, err := loadClient(ctx)
	if err != nil {
		return err
	}

	if uniqueModel {
		name := uniqueModelName(cfg.Environment)
		client.Env().SetModelName(name, true)
		log.Info("using unique model name", "model", name)
	}

	log.Info("bootstrapping", "environment", client.Env().Name, "version", client.Version())
	if err := client.Bootstrap(ctx, opts); err != nil {
		return err
	}

	if waitStarted {
		if _, err := client.WaitForStarted(ctx, armada.DefaultWaitTimeout); err != nil {
			return err
		}
	}
	fmt.Printf("Environment %s bootstrapped\n", client.Env().Name)
	return nil
}

// uniqueModelName appends a short run id so concurrent runs against the
// same provider account never share a model name.
func uniqueModelName(base string) string {
	runID := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%s", base, runID)
}
