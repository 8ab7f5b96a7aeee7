package metrics_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/benmeehan/imqtt/internal/metrics"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/benmeehan/imqtt/tests/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct{}

func (fixedSource) QueueLen() int        { return 4 }
func (fixedSource) QueueDropped() uint64 { return 2 }
func (fixedSource) Pending() int         { return 3 }

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// TestCollector_WrapRecordsAndForwards tests that the decorated callbacks
// count events and still call the wrapped ones.
func TestCollector_WrapRecordsAndForwards(t *testing.T) {
	// Setup
	collector := metrics.NewCollector(fixedSource{})
	connection := new(mocks.MockConnectionCallbacks)
	command := new(mocks.MockCommandCallbacks)
	messages := &mocks.MessageRecorder{}
	ok := mqtt.V5Reason(mqtt.Mqtt5Success)

	connection.On("OnConnectionStatusChanged", mqtt.Connected, mqtt.ReasonOK, ok).Once()
	command.On("OnPublish", 1, mqtt.ReasonOK, ok).Once()
	command.On("OnPublish", 2, mqtt.ReasonGeneralError, ok).Once()
	command.On("OnSubscribe", 3, mqtt.ReasonOK, ok).Once()
	command.On("OnUnSubscribe", 4, mqtt.ReasonOK, ok).Once()

	cbs := collector.Wrap(mqtt.Callbacks{Connection: connection, Command: command, Message: messages})

	// Execute
	cbs.Connection.OnConnectionStatusChanged(mqtt.Connected, mqtt.ReasonOK, ok)
	cbs.Command.OnPublish(1, mqtt.ReasonOK, ok)
	cbs.Command.OnPublish(2, mqtt.ReasonGeneralError, ok)
	cbs.Command.OnSubscribe(3, mqtt.ReasonOK, ok)
	cbs.Command.OnUnSubscribe(4, mqtt.ReasonOK, ok)
	cbs.Message.OnMqttMessage(mqtt.NewMessage("a", nil, mqtt.QOS1, false))

	server := metrics.NewServer("127.0.0.1:0", collector, zerolog.Nop())
	require.NoError(t, server.Start())
	defer server.Stop(context.Background())
	body := scrape(t, "http://"+server.Addr()+"/metrics")

	// Assert
	connection.AssertExpectations(t)
	command.AssertExpectations(t)
	assert.Len(t, messages.Messages(), 1)

	assert.Contains(t, body, `imqtt_command_completions_total{kind="publish",rc="OKAY"} 1`)
	assert.Contains(t, body, `imqtt_command_completions_total{kind="publish",rc="ERROR_GENERAL"} 1`)
	assert.Contains(t, body, `imqtt_command_completions_total{kind="subscribe",rc="OKAY"} 1`)
	assert.Contains(t, body, `imqtt_command_completions_total{kind="unsubscribe",rc="OKAY"} 1`)
	assert.Contains(t, body, `imqtt_connection_changes_total{rc="OKAY",status="connected"} 1`)
	assert.Contains(t, body, "imqtt_connected 1")
	assert.Contains(t, body, `imqtt_messages_received_total{qos="1"} 1`)
	assert.Contains(t, body, "imqtt_dispatch_queue_length 4")
	assert.Contains(t, body, "imqtt_dispatch_queue_dropped_total 2")
	assert.Contains(t, body, "imqtt_pending_operations 3")
}

func TestCollector_WrapToleratesNilSlots(t *testing.T) {
	// Setup
	collector := metrics.NewCollector(nil)
	cbs := collector.Wrap(mqtt.Callbacks{})

	// Execute & Assert
	assert.NotPanics(t, func() {
		cbs.Connection.OnConnectionStatusChanged(mqtt.Disconnected, mqtt.ReasonNoConnection, mqtt.V311Reason(3))
		cbs.Command.OnPublish(1, mqtt.ReasonOK, mqtt.V311Reason(0))
		cbs.Message.OnMqttMessage(mqtt.NewMessage("a", nil, mqtt.QOS0, false))
	})
	assert.Nil(t, cbs.Log)
}

// TestCollector_WrapKeepsUnhandledMessageWarning tests that wrapping a
// callback set without a message callback still warns about the message.
func TestCollector_WrapKeepsUnhandledMessageWarning(t *testing.T) {
	// Setup
	collector := metrics.NewCollector(nil)
	log := &mocks.LogRecorder{}
	cbs := collector.Wrap(mqtt.Callbacks{Log: log})

	// Execute
	cbs.Message.OnMqttMessage(mqtt.NewMessage("a", nil, mqtt.QOS2, false))

	server := metrics.NewServer("127.0.0.1:0", collector, zerolog.Nop())
	require.NoError(t, server.Start())
	defer server.Stop(context.Background())
	body := scrape(t, "http://"+server.Addr()+"/metrics")

	// Assert
	assert.Equal(t, 1, log.Count(mqtt.LogWarning, mqtt.NoMessageHandler))
	assert.Contains(t, body, `imqtt_messages_received_total{qos="2"} 1`)
}

func TestCollector_WrappedClientWarnsWithoutMessageHandler(t *testing.T) {
	// Setup
	collector := metrics.NewCollector(nil)
	log := &mocks.LogRecorder{}
	transport := new(mocks.MockTransport)
	transport.On("Version").Return("mock 1.0")
	backend := mocks.NewMockBackend(transport)
	client, err := mqtt.NewClient(mqtt.DefaultParameters(), backend)
	require.NoError(t, err)
	client.SetCallbacks(collector.Wrap(mqtt.Callbacks{Log: log}))

	// Execute
	backend.Events().OnMessage(mqtt.NewMessage("a", nil, mqtt.QOS0, false))

	// Assert
	assert.Eventually(t, func() bool {
		return log.Count(mqtt.LogWarning, mqtt.NoMessageHandler) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServer_Health(t *testing.T) {
	// Setup
	server := metrics.NewServer("127.0.0.1:0", metrics.NewCollector(nil), zerolog.Nop())
	require.NoError(t, server.Start())

	// Execute
	body := scrape(t, "http://"+server.Addr()+"/health")

	// Assert
	assert.Equal(t, "OK", body)
	assert.NoError(t, server.Stop(context.Background()))
}

func TestServer_BindFailure(t *testing.T) {
	server := metrics.NewServer("256.0.0.1:bad", metrics.NewCollector(nil), zerolog.Nop())

	assert.ErrorContains(t, server.Start(), "failed to bind")
}
