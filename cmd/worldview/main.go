package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "worldview",
	Short: "Multi-device recording session sync",
	Long: `worldview hosts recording devices in one process and keeps their
sessions in sync: one Director owns the session, Cameras mirror it and
start and stop recording in lock-step.

  worldview serve                 # run the control API
  worldview simulate --cameras 3  # run a Director with three Cameras`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
