package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/internal/cfg"
	"github.com/peter-kozarec/simutrade/internal/dbg"
	"github.com/peter-kozarec/simutrade/pkg/protocol"
)

var (
	Version    = "0.1.0"
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "simutrade",
		Short:         "Tick-driven market simulation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "simutrade %s (protocol %s)\n", Version, protocol.Version)
		},
	}
}

// setup loads the configuration and the logger every command starts from.
func setup() (cfg.Config, *zap.Logger, error) {
	c, err := cfg.Load(configPath)
	if err != nil {
		return cfg.Config{}, nil, err
	}
	logger, err := dbg.NewLogger(c.Log)
	if err != nil {
		return cfg.Config{}, nil, err
	}
	return c, logger, nil
}
