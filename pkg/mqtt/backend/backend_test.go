package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/benmeehan/imqtt/pkg/mqtt/backend"
	"github.com/benmeehan/imqtt/pkg/mqtt/pahov3"
	"github.com/benmeehan/imqtt/pkg/mqtt/pahov5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_KnownBackends(t *testing.T) {
	// Execute
	v3, err3 := backend.New("paho-v3")
	v5, err5 := backend.New("PAHO-V5")

	// Assert
	require.NoError(t, err3)
	require.NoError(t, err5)
	assert.IsType(t, &pahov3.Backend{}, v3)
	assert.IsType(t, &pahov5.Backend{}, v5)
	assert.Equal(t, "paho.mqtt.golang", v3.Library().Name())
	assert.Equal(t, "paho.golang", v5.Library().Name())
}

func TestNew_UnknownBackend(t *testing.T) {
	b, err := backend.New("mosquitto")

	assert.Nil(t, b)
	assert.True(t, errors.Is(err, mqtt.ErrInvalidConfig))
	assert.ErrorContains(t, err, "paho-v3, paho-v5")
}

// TestNewClient_WithEachBackend tests that a client can be created and closed
// on every registered back-end without a broker.
func TestNewClient_WithEachBackend(t *testing.T) {
	for _, name := range backend.Names() {
		t.Run(name, func(t *testing.T) {
			// Setup
			b, err := backend.New(name)
			require.NoError(t, err)

			// Execute
			client, err := mqtt.NewClient(mqtt.DefaultParameters(), b)
			require.NoError(t, err)

			// Assert
			assert.Equal(t, 1, b.Library().Refs())
			assert.Equal(t, mqtt.StateDisconnected, client.State())
			assert.NoError(t, client.Close(context.Background()))
			assert.Equal(t, 0, b.Library().Refs())
		})
	}
}
