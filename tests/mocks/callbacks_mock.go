package mocks

import (
	"strings"
	"sync"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/stretchr/testify/mock"
)

// MockConnectionCallbacks is a mock implementation of mqtt.ConnectionCallbacks
type MockConnectionCallbacks struct {
	mock.Mock
}

func (m *MockConnectionCallbacks) OnConnectionStatusChanged(status mqtt.ConnectionStatus, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.Called(status, rc, reason)
}

// MockCommandCallbacks is a mock implementation of mqtt.CommandCallbacks
type MockCommandCallbacks struct {
	mock.Mock
}

func (m *MockCommandCallbacks) OnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.Called(token, rc, reason)
}

func (m *MockCommandCallbacks) OnUnSubscribe(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.Called(token, rc, reason)
}

func (m *MockCommandCallbacks) OnPublish(token int, rc mqtt.ReasonCode, reason mqtt.ProtocolReason) {
	m.Called(token, rc, reason)
}

// LogRecorder keeps every log line for later inspection.
type LogRecorder struct {
	mu    sync.Mutex
	lines []LogLine
}

// LogLine is one recorded log call.
type LogLine struct {
	Level mqtt.LogLevel
	Text  string
}

func (r *LogRecorder) Log(level mqtt.LogLevel, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, LogLine{Level: level, Text: text})
}

// Lines returns a copy of the recorded lines.
func (r *LogRecorder) Lines() []LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogLine(nil), r.lines...)
}

// Count returns how many lines at level contain text.
func (r *LogRecorder) Count(level mqtt.LogLevel, text string) int {
	n := 0
	for _, l := range r.Lines() {
		if l.Level == level && strings.Contains(l.Text, text) {
			n++
		}
	}
	return n
}

// MessageRecorder collects delivered messages in order.
type MessageRecorder struct {
	mu       sync.Mutex
	messages []*mqtt.Message
}

func (r *MessageRecorder) OnMqttMessage(msg *mqtt.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the delivered messages.
func (r *MessageRecorder) Messages() []*mqtt.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mqtt.Message(nil), r.messages...)
}
