package mqtt

import (
	"context"
	"crypto/tls"
	"time"
)

// RetainHandling is the MQTT 5 subscription option controlling retained
// message delivery.
type RetainHandling byte

const (
	RetainSendAlways RetainHandling = 0
	RetainSendNew    RetainHandling = 1
	RetainSendNever  RetainHandling = 2
)

// ConnectOptions carries everything a Transport needs for one connect attempt.
type ConnectOptions struct {
	Host         string
	Port         int
	ClientID     string
	Username     string
	Password     string
	KeepAlive    time.Duration
	CleanSession bool
	TLSConfig    *tls.Config

	// ReconnectMin is the jittered floor computed for this attempt.
	ReconnectMin       time.Duration
	ReconnectMax       time.Duration
	AutoReconnect      bool
	ExponentialBackoff bool
}

// SubscribeOptions are honored by MQTT 5 transports only.
type SubscribeOptions struct {
	NoLocal        bool
	RetainHandling RetainHandling
}

// Transport is the boundary to a concrete MQTT client library. Operations
// start the work and return; outcomes are reported through TransportEvents
// from the transport's own goroutines.
//
// Subscribe, Unsubscribe and Publish return the token the completion event
// will carry.
type Transport interface {
	Version() string
	Connect(ctx context.Context, opts ConnectOptions) error
	Disconnect(ctx context.Context, reason Mqtt5ReasonCode) error
	Subscribe(topic string, qos QOS, opts SubscribeOptions) (int, error)
	Unsubscribe(topic string) (int, error)
	Publish(msg *Message) (int, error)
	IsConnected() bool
	Close() error
}

// TransportEvents receives transport outcomes. A nil error means success.
// The errors wrap the package sentinels so Normalize can classify them.
type TransportEvents interface {
	OnConnect(err error, reason ProtocolReason)
	OnConnectionLost(err error, reason ProtocolReason)
	OnDisconnect(err error, reason ProtocolReason)
	OnSubscribe(token int, err error, reason ProtocolReason)
	OnUnsubscribe(token int, err error, reason ProtocolReason)
	OnPublish(token int, err error, reason ProtocolReason)
	OnMessage(msg *Message)
	OnLog(level LogLevel, text string)
}

// Backend creates transports for one client library.
type Backend interface {
	Library() *Library
	NewTransport(events TransportEvents) (Transport, error)
}
