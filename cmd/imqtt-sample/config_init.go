package main

import (
	"fmt"
	"os"

	"github.com/benmeehan/imqtt/internal/utils"
	"github.com/benmeehan/imqtt/pkg/file"
	"github.com/spf13/cobra"
)

var overwriteConfig bool

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write a configuration file with the default settings",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConfigInitCommand(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&overwriteConfig, "force", false, "Overwrite an existing configuration file")
	rootCmd.AddCommand(configInitCmd)
}

func runConfigInitCommand() error {
	fileClient := file.NewFileService()

	exists, err := fileClient.IsFileExists(configFile)
	if err != nil {
		return err
	}
	if exists && !overwriteConfig {
		return fmt.Errorf("%s already exists, use --force to overwrite it", configFile)
	}

	if err := fileClient.WriteYamlFile(configFile, utils.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to write %s: %w", configFile, err)
	}
	fmt.Printf("Wrote default configuration to %s\n", configFile)
	return nil
}
