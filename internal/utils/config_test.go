package utils_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/imqtt/internal/utils"
	"github.com/benmeehan/imqtt/pkg/file"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/benmeehan/imqtt/tests/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig_FromYamlFile tests decoding a real file over the defaults.
func TestLoadConfig_FromYamlFile(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mqtt:
  backend: paho-v3
  host: broker.local
  port: 8883
  client_id: dev
  keep_alive: 30s
  reconnect:
    min: 2s
    min_upper: 500ms
    max: 1m
  queue:
    max_messages: 100
    overflow: drop_oldest
services:
  publisher:
    interval: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Execute
	config, err := utils.LoadConfig(path, file.NewFileService())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "paho-v3", config.MQTT.Backend)
	assert.Equal(t, "broker.local", config.MQTT.Host)
	assert.Equal(t, 8883, config.MQTT.Port)
	assert.Equal(t, "dev", config.MQTT.ClientID)
	assert.Equal(t, 30*time.Second, config.MQTT.KeepAlive)
	assert.Equal(t, 2*time.Second, config.MQTT.Reconnect.Min)
	assert.Equal(t, 500*time.Millisecond, config.MQTT.Reconnect.MinUpper)
	assert.Equal(t, time.Minute, config.MQTT.Reconnect.Max)
	assert.Equal(t, 15*time.Second, config.Services.Publisher.Interval)

	// untouched keys keep their defaults
	assert.Equal(t, "imqtt/sample/telemetry", config.Services.Publisher.Topic)
	assert.Equal(t, []string{"imqtt/sample/#"}, config.Services.Subscriber.Topics)
	assert.Equal(t, 5*time.Second, config.DisconnectTimeout)

	params, err := config.Parameters()
	require.NoError(t, err)
	assert.Equal(t, mqtt.QueueOptions{MaxMessages: 100, Overflow: mqtt.OverflowDropOldest}, params.Queue)
	assert.Equal(t, 2*time.Second, params.ReconnectDelayMin)
	assert.Equal(t, 500*time.Millisecond, params.ReconnectDelayMinUpper)
}

func TestLoadConfig_WriteThenRead(t *testing.T) {
	// Setup
	fileClient := file.NewFileService()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, fileClient.WriteYamlFile(path, utils.DefaultConfig()))

	// Execute
	config, err := utils.LoadConfig(path, fileClient)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultConfig(), config)

	raw, err := fileClient.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, raw, "interval: 5s")
}

func TestLoadConfig_UniqueClientID(t *testing.T) {
	// Setup
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadYamlFile", "config.yaml", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		config := args.Get(1).(*utils.Config)
		config.MQTT.ClientID = "sensor"
		config.MQTT.UniqueClientID = true
	})

	// Execute
	first, err := utils.LoadConfig("config.yaml", fileClient)
	require.NoError(t, err)
	second, err := utils.LoadConfig("config.yaml", fileClient)
	require.NoError(t, err)

	// Assert
	assert.True(t, strings.HasPrefix(first.MQTT.ClientID, "sensor-"))
	assert.Len(t, first.MQTT.ClientID, len("sensor-")+36)
	assert.NotEqual(t, first.MQTT.ClientID, second.MQTT.ClientID)
	fileClient.AssertExpectations(t)
}

func TestLoadConfig_ReadError(t *testing.T) {
	// Setup
	readErr := errors.New("permission denied")
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadYamlFile", "config.yaml", mock.Anything).Return(readErr)

	// Execute
	config, err := utils.LoadConfig("config.yaml", fileClient)

	// Assert
	assert.Nil(t, config)
	assert.ErrorIs(t, err, readErr)
}

func TestConfig_Parameters(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*utils.Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*utils.Config) {}},
		{name: "empty overflow means block", modify: func(c *utils.Config) { c.MQTT.Queue.Overflow = "" }},
		{name: "unknown overflow", modify: func(c *utils.Config) { c.MQTT.Queue.Overflow = "drop_newest" }, wantErr: true},
		{name: "max below min", modify: func(c *utils.Config) { c.MQTT.Reconnect.Max = time.Millisecond }, wantErr: true},
		{name: "missing host", modify: func(c *utils.Config) { c.MQTT.Host = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			config := utils.DefaultConfig()
			tt.modify(config)

			// Execute
			params, err := config.Parameters()

			// Assert
			if tt.wantErr {
				assert.ErrorIs(t, err, mqtt.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, config.MQTT.Host, params.Host)
			assert.Equal(t, config.MQTT.ClientID, params.ClientID)
			assert.Equal(t, mqtt.OverflowBlock, params.Queue.Overflow)
			assert.Equal(t, config.MQTT.Reconnect.Auto, params.AutoReconnect)
		})
	}
}
