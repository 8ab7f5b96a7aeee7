package mocks

import (
	"context"
	"sync"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of the mqtt.Transport interface
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Version() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockTransport) Connect(ctx context.Context, opts mqtt.ConnectOptions) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

func (m *MockTransport) Disconnect(ctx context.Context, reason mqtt.Mqtt5ReasonCode) error {
	args := m.Called(ctx, reason)
	return args.Error(0)
}

func (m *MockTransport) Subscribe(topic string, qos mqtt.QOS, opts mqtt.SubscribeOptions) (int, error) {
	args := m.Called(topic, qos, opts)
	return args.Int(0), args.Error(1)
}

func (m *MockTransport) Unsubscribe(topic string) (int, error) {
	args := m.Called(topic)
	return args.Int(0), args.Error(1)
}

func (m *MockTransport) Publish(msg *mqtt.Message) (int, error) {
	args := m.Called(msg)
	return args.Int(0), args.Error(1)
}

func (m *MockTransport) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockBackend hands out a fixed transport and keeps the events it was given,
// so tests can play the transport's side.
type MockBackend struct {
	Transport mqtt.Transport
	Lib       *mqtt.Library
	Err       error

	mu     sync.Mutex
	events mqtt.TransportEvents
}

// NewMockBackend creates a backend around transport with an inert library.
func NewMockBackend(transport mqtt.Transport) *MockBackend {
	return &MockBackend{
		Transport: transport,
		Lib:       mqtt.NewLibrary("mock", "github.com/benmeehan/imqtt/tests/mocks", nil, nil),
	}
}

func (b *MockBackend) Library() *mqtt.Library { return b.Lib }

func (b *MockBackend) NewTransport(events mqtt.TransportEvents) (mqtt.Transport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Transport, nil
}

// Events returns the sink the client registered.
func (b *MockBackend) Events() mqtt.TransportEvents {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events
}

// TransportEvent is one recorded TransportEvents call.
type TransportEvent struct {
	Kind   string
	Token  int
	Err    error
	Reason mqtt.ProtocolReason
	Msg    *mqtt.Message
	Level  mqtt.LogLevel
	Text   string
}

// EventRecorder implements mqtt.TransportEvents and keeps every call.
type EventRecorder struct {
	mu     sync.Mutex
	events []TransportEvent
}

func (r *EventRecorder) add(e TransportEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *EventRecorder) OnConnect(err error, reason mqtt.ProtocolReason) {
	r.add(TransportEvent{Kind: "connect", Err: err, Reason: reason})
}

func (r *EventRecorder) OnConnectionLost(err error, reason mqtt.ProtocolReason) {
	r.add(TransportEvent{Kind: "lost", Err: err, Reason: reason})
}

func (r *EventRecorder) OnDisconnect(err error, reason mqtt.ProtocolReason) {
	r.add(TransportEvent{Kind: "disconnect", Err: err, Reason: reason})
}

func (r *EventRecorder) OnSubscribe(token int, err error, reason mqtt.ProtocolReason) {
	r.add(TransportEvent{Kind: "subscribe", Token: token, Err: err, Reason: reason})
}

func (r *EventRecorder) OnUnsubscribe(token int, err error, reason mqtt.ProtocolReason) {
	r.add(TransportEvent{Kind: "unsubscribe", Token: token, Err: err, Reason: reason})
}

func (r *EventRecorder) OnPublish(token int, err error, reason mqtt.ProtocolReason) {
	r.add(TransportEvent{Kind: "publish", Token: token, Err: err, Reason: reason})
}

func (r *EventRecorder) OnMessage(msg *mqtt.Message) {
	r.add(TransportEvent{Kind: "message", Msg: msg})
}

func (r *EventRecorder) OnLog(level mqtt.LogLevel, text string) {
	r.add(TransportEvent{Kind: "log", Level: level, Text: text})
}

// Events returns the recorded calls of kind, in order.
func (r *EventRecorder) Events(kind string) []TransportEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TransportEvent
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether at least n calls of kind were recorded.
func (r *EventRecorder) Has(kind string, n int) bool {
	return len(r.Events(kind)) >= n
}
