package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/benmeehan/imqtt/internal/models"
	"github.com/benmeehan/imqtt/internal/services"
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/benmeehan/imqtt/tests/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestPublisherService_StartStop tests the lifecycle errors of the PublisherService.
func TestPublisherService_StartStop(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	client.On("ConnectionStatus").Return(mqtt.Disconnected).Maybe()
	p := services.NewPublisherService("t", time.Hour, mqtt.QOS1, false, "dev", client, zerolog.Nop())

	// Execute
	err := p.Start()

	// Assert
	require.NoError(t, err)
	err = p.Start()
	assert.EqualError(t, err, "publisher service is already running")

	assert.NoError(t, p.Stop())
	err = p.Stop()
	assert.EqualError(t, err, "publisher service is not running")
}

func TestPublisherService_RejectsNonPositiveInterval(t *testing.T) {
	p := services.NewPublisherService("t", 0, mqtt.QOS1, false, "dev", new(mocks.MockMQTTClient), zerolog.Nop())

	assert.Error(t, p.Start())
}

// TestPublisherService_PublishesTelemetry tests that samples carry the JSON
// payload and the MQTT 5 metadata.
func TestPublisherService_PublishesTelemetry(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	published := make(chan *mqtt.Message, 10)
	client.On("ConnectionStatus").Return(mqtt.Connected)
	client.On("QueueLen").Return(3)
	client.On("PublishAsync", mock.Anything).Return(mqtt.ReasonOK, 7).Run(func(args mock.Arguments) {
		select {
		case published <- args.Get(0).(*mqtt.Message):
		default:
		}
	})

	p := services.NewPublisherService("imqtt/telemetry", 10*time.Millisecond, mqtt.QOS1, true, "dev-1", client, zerolog.Nop())

	// Execute
	require.NoError(t, p.Start())
	defer p.Stop()

	// Assert
	var msg *mqtt.Message
	select {
	case msg = <-published:
	case <-time.After(time.Second):
		t.Fatal("no telemetry sample published")
	}

	assert.Equal(t, "imqtt/telemetry", msg.Topic())
	assert.Equal(t, mqtt.QOS1, msg.QOS())
	assert.True(t, msg.Retained())
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, mqtt.FormatUTF8, msg.PayloadFormat)
	assert.Len(t, msg.CorrelationData, 16)
	assert.Equal(t, []mqtt.UserProperty{{Key: "client_id", Value: "dev-1"}}, msg.UserProperties)
	require.NoError(t, mqtt.ValidateProperties(msg))

	var sample models.Telemetry
	require.NoError(t, json.Unmarshal(msg.Payload(), &sample))
	assert.Equal(t, "dev-1", sample.ClientID)
	assert.Equal(t, uint64(1), sample.Sequence)
	assert.Equal(t, 3, sample.QueueDepth)
	assert.Positive(t, sample.Goroutines)
}

func TestPublisherService_SkipsWhileDisconnected(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	client.On("ConnectionStatus").Return(mqtt.Disconnected)
	p := services.NewPublisherService("t", 5*time.Millisecond, mqtt.QOS0, false, "dev", client, zerolog.Nop())

	// Execute
	require.NoError(t, p.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Stop())

	// Assert
	client.AssertNotCalled(t, "PublishAsync", mock.Anything)
	client.AssertNotCalled(t, "QueueLen")
}

func TestPublisherService_OnPublishIgnoresForeignTokens(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	done := make(chan struct{}, 10)
	client.On("ConnectionStatus").Return(mqtt.Connected)
	client.On("QueueLen").Return(0)
	client.On("PublishAsync", mock.Anything).Return(mqtt.ReasonOK, 11).Run(func(mock.Arguments) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	p := services.NewPublisherService("t", 5*time.Millisecond, mqtt.QOS1, false, "dev", client, zerolog.Nop())
	require.NoError(t, p.Start())
	<-done
	require.NoError(t, p.Stop())

	// Execute & Assert
	assert.NotPanics(t, func() {
		p.OnPublish(99, mqtt.ReasonOK, mqtt.V5Reason(mqtt.Mqtt5Success))
		p.OnPublish(11, mqtt.ReasonGeneralError, mqtt.V5Reason(mqtt.Mqtt5Success))
		p.OnPublish(11, mqtt.ReasonOK, mqtt.V5Reason(mqtt.Mqtt5Success))
	})
}

// TestPublisherService_AckDuringPublishIsMatched tests that an acknowledgement
// arriving before PublishAsync returns still clears the pending sample.
func TestPublisherService_AckDuringPublishIsMatched(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	client.On("ConnectionStatus").Return(mqtt.Connected)
	client.On("QueueLen").Return(0)
	p := services.NewPublisherService("t", 5*time.Millisecond, mqtt.QOS1, false, "dev", client, zerolog.Nop())

	acked := make(chan struct{})
	client.On("PublishAsync", mock.Anything).Return(mqtt.ReasonOK, 7).Run(func(mock.Arguments) {
		go func() {
			p.OnPublish(7, mqtt.ReasonOK, mqtt.V5Reason(mqtt.Mqtt5Success))
			close(acked)
		}()
		select {
		case <-acked:
		case <-time.After(20 * time.Millisecond):
		}
	}).Once()
	client.On("PublishAsync", mock.Anything).Return(mqtt.ReasonNoConnection, 0)

	// Execute
	require.NoError(t, p.Start())
	defer p.Stop()

	// Assert
	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("acknowledgement was never handled")
	}
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPublisherService_RefusedPublishIsNotPending(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	attempted := make(chan struct{}, 10)
	client.On("ConnectionStatus").Return(mqtt.Connected)
	client.On("QueueLen").Return(0)
	client.On("PublishAsync", mock.Anything).Return(mqtt.ReasonNoConnection, 3).Run(func(mock.Arguments) {
		select {
		case attempted <- struct{}{}:
		default:
		}
	})
	p := services.NewPublisherService("t", 5*time.Millisecond, mqtt.QOS2, false, "dev", client, zerolog.Nop())

	// Execute
	require.NoError(t, p.Start())
	<-attempted
	require.NoError(t, p.Stop())

	// Assert
	assert.Zero(t, p.Pending())
}
