package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/imqtt/internal/metrics"
	"github.com/benmeehan/imqtt/internal/service_registry"
	"github.com/benmeehan/imqtt/internal/utils"
	"github.com/benmeehan/imqtt/pkg/file"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/benmeehan/imqtt/pkg/mqtt/backend"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the broker and run the sample services until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRunCommand(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRunCommand() error {
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(configFile, fileClient)
	if err != nil {
		return err
	}

	log, err := utils.NewLogger(os.Stdout, config.Log.Level, config.Log.Format)
	if err != nil {
		return err
	}
	log.Info().Str("client_id", config.MQTT.ClientID).Str("backend", config.MQTT.Backend).Msg("Configuration loaded")

	params, err := config.Parameters()
	if err != nil {
		return err
	}

	mqttBackend, err := backend.New(config.MQTT.Backend)
	if err != nil {
		return err
	}

	client, err := mqtt.NewClient(params, mqttBackend, mqtt.WithFileOperations(fileClient))
	if err != nil {
		return fmt.Errorf("failed to create MQTT client: %w", err)
	}
	log.Info().Str("library", client.LibVersion()).Msg("MQTT client created")

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(client, log)
	if err := serviceRegistry.RegisterServices(config); err != nil {
		_ = client.Close(context.Background())
		return err
	}

	callbacks := serviceRegistry.Callbacks(mqtt.NewZerologLogger(log))

	var metricsServer *metrics.Server
	if config.Metrics.Enabled {
		collector := metrics.NewCollector(client)
		callbacks = collector.Wrap(callbacks)
		metricsServer = metrics.NewServer(config.Metrics.Address, collector, log)
	}
	client.SetCallbacks(callbacks)

	if err := serviceRegistry.StartServices(); err != nil {
		_ = client.Close(context.Background())
		return err
	}
	log.Info().Msg("All services started successfully")

	if metricsServer != nil {
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Metrics server not started")
			metricsServer = nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if rc := client.ConnectAsync(ctx); rc != mqtt.ReasonOK {
		log.Error().Str("rc", rc.String()).Msg("Connect was not accepted")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	var shutdownErr error
	if err := serviceRegistry.StopServices(); err != nil {
		shutdownErr = err
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), config.DisconnectTimeout)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("MQTT client did not close cleanly")
		shutdownErr = err
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(closeCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server did not stop cleanly")
		}
	}
	return shutdownErr
}
