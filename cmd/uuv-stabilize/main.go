package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ofu951/UUV-Position-Stabilization/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "uuv-stabilize",
		Short:        "Hold a UUV in front of an ArUco marker with four PID axes",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (built-in defaults when empty)")

	root.AddCommand(
		newRunCmd(&configPath),
		newReplayCmd(&configPath),
		newCheckConfigCmd(&configPath),
	)
	return root
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
