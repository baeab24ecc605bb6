package cmd

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/org/armada-harness/pkg/version"
)

var (
	configPath string
	debugLogs  bool

	log logr.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "armada-harness",
	Short: "Functional test harness for the armada CLI",
	Long: `armada-harness exercises an installed armada binary end to end:
it bootstraps an environment, waits for agents and workloads to settle,
and destroys everything afterwards.

The environment is described by a YAML config file; the tool generation
is detected from the binary unless pinned in the config.

Examples:
  # Bootstrap the environment from harness.yaml
  armada-harness bootstrap --config harness.yaml

  # Wait for all agents to start
  armada-harness wait started --config harness.yaml

  # Destroy it again
  armada-harness teardown --config harness.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapLog, err := buildZap(debugLogs)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		log = zapr.NewLogger(zapLog)
		return nil
	},
}

func buildZap(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		PrintError("%v", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "harness.yaml", "Path to the harness config file")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logging and pass --debug to armada")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newBootstrapCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWaitCmd())
	rootCmd.AddCommand(newTeardownCmd())
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("armada-harness %s\n", info.Version)
			fmt.Printf("  Git commit: %s\n", info.Commit)
			fmt.Printf("  Build date: %s\n", info.BuildTime)
		},
	}
}

// PrintError prints an error message to stderr
func PrintError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
