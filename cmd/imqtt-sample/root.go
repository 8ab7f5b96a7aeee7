package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const cliName = "imqtt-sample"

var configFile string

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "imqtt-sample connects to an MQTT broker through the imqtt client",
	Long: "imqtt-sample connects to an MQTT broker with the configured back-end, " +
		"subscribes to sample topics, publishes telemetry and serves Prometheus metrics.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "Path to the YAML configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Oops. An error occurred while executing %s: %v\n", cliName, err)
		os.Exit(1)
	}
}
