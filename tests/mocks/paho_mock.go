package mocks

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockPahoClient is a mock implementation of the pahov3.Client interface
type MockPahoClient struct {
	mock.Mock
}

func (m *MockPahoClient) Connect() mqtt.Token {
	args := m.Called()
	return args.Get(0).(mqtt.Token)
}

func (m *MockPahoClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *MockPahoClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockPahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *MockPahoClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	args := m.Called(topic, qos, callback)
	return args.Get(0).(mqtt.Token)
}

func (m *MockPahoClient) Unsubscribe(topics ...string) mqtt.Token {
	args := m.Called(topics)
	return args.Get(0).(mqtt.Token)
}
