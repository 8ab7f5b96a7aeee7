package main

import (
	"fmt"

	"github.com/benmeehan/imqtt/pkg/mqtt/backend"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of imqtt-sample",
	Long:  "Print the version of imqtt-sample and of every MQTT back-end it links",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s version %s (built at %s)\n", cliName, Version, BuildTime)
		for _, name := range backend.Names() {
			b, err := backend.New(name)
			if err != nil {
				continue
			}
			fmt.Printf("  %s: %s\n", name, b.Library().Version())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
