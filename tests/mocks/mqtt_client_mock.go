package mocks

import (
	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/stretchr/testify/mock"
)

// MockMQTTClient is a mock implementation of services.MQTTClient. The token
// handed back is taken from the second return value of the expectation.
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) SubscribeAsync(topic string, qos mqtt.QOS, token *int, getRetained bool) mqtt.ReasonCode {
	args := m.Called(topic, qos, getRetained)
	setToken(token, args)
	return args.Get(0).(mqtt.ReasonCode)
}

func (m *MockMQTTClient) UnSubscribeAsync(topic string, token *int) mqtt.ReasonCode {
	args := m.Called(topic)
	setToken(token, args)
	return args.Get(0).(mqtt.ReasonCode)
}

func (m *MockMQTTClient) PublishAsync(msg *mqtt.Message, token *int) mqtt.ReasonCode {
	args := m.Called(msg)
	setToken(token, args)
	return args.Get(0).(mqtt.ReasonCode)
}

func (m *MockMQTTClient) ConnectionStatus() mqtt.ConnectionStatus {
	args := m.Called()
	return args.Get(0).(mqtt.ConnectionStatus)
}

func (m *MockMQTTClient) QueueLen() int {
	args := m.Called()
	return args.Int(0)
}

func setToken(token *int, args mock.Arguments) {
	if token != nil && len(args) > 1 {
		*token = args.Int(1)
	}
}
