package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingConnection struct{ calls int }

func (c *countingConnection) OnConnectionStatusChanged(ConnectionStatus, ReasonCode, ProtocolReason) {
	c.calls++
}

func TestCallbackRegistry_UnsetSlotsUseDefaults(t *testing.T) {
	// Setup
	r := newCallbackRegistry(Callbacks{})

	// Execute
	cbs := r.load()

	// Assert
	assert.NotNil(t, cbs.Log)
	assert.NotNil(t, cbs.Connection)
	assert.NotNil(t, cbs.Command)
	assert.NotNil(t, cbs.Message)
	assert.NotPanics(t, func() {
		cbs.Connection.OnConnectionStatusChanged(Connected, ReasonOK, V5Reason(Mqtt5Success))
		cbs.Command.OnPublish(1, ReasonOK, V5Reason(Mqtt5Success))
		cbs.Message.OnMqttMessage(NewMessage("a", nil, QOS0, false))
	})
}

// TestCallbackRegistry_DefaultMessageHandlerWarns tests that an unhandled
// message is logged through whatever log callback is installed at that time.
func TestCallbackRegistry_DefaultMessageHandlerWarns(t *testing.T) {
	// Setup
	r := newCallbackRegistry(Callbacks{})
	log := &logRecorder{}
	r.update(func(cbs *Callbacks) { cbs.Log = log })

	// Execute
	r.load().Message.OnMqttMessage(NewMessage("a", nil, QOS0, false))

	// Assert
	assert.Equal(t, 1, log.count(LogWarning, "no handler installed"))
}

func TestCallbackRegistry_UpdateKeepsOtherSlots(t *testing.T) {
	// Setup
	conn := &countingConnection{}
	log := &logRecorder{}
	r := newCallbackRegistry(Callbacks{Connection: conn})

	// Execute
	r.update(func(cbs *Callbacks) { cbs.Log = log })
	r.load().Connection.OnConnectionStatusChanged(Disconnected, ReasonOK, ProtocolReason{})
	r.load().Log.Log(LogInfo, "hello")

	// Assert
	assert.Equal(t, 1, conn.calls)
	assert.Equal(t, 1, log.count(LogInfo, "hello"))
}

func TestCallbackRegistry_SetReplacesEverySlot(t *testing.T) {
	// Setup
	conn := &countingConnection{}
	r := newCallbackRegistry(Callbacks{Connection: conn})
	before := r.load()

	// Execute
	r.set(Callbacks{})
	r.load().Connection.OnConnectionStatusChanged(Connected, ReasonOK, ProtocolReason{})

	// Assert
	assert.Equal(t, 0, conn.calls)
	assert.Same(t, conn, before.Connection.(*countingConnection), "old snapshot stays intact")
}

func TestCallbackAdapters(t *testing.T) {
	var gotLevel LogLevel
	var gotTopic string

	LogFunc(func(level LogLevel, _ string) { gotLevel = level }).Log(LogError, "x")
	MessageFunc(func(msg *Message) { gotTopic = msg.Topic() }).OnMqttMessage(NewMessage("a/b", nil, QOS1, false))

	assert.Equal(t, LogError, gotLevel)
	assert.Equal(t, "a/b", gotTopic)
	assert.Equal(t, "warning", LogWarning.String())
	assert.Equal(t, "connected", Connected.String())
}
