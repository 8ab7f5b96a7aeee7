package mocks

// MockMessage implements MQTT.Message for testing
type MockMessage struct {
	payload  []byte
	topic    string
	qos      byte
	retained bool
	id       uint16
}

// NewMockMessage creates a new mock MQTT message
func NewMockMessage(topic string, payload []byte, qos byte, retained bool, id uint16) *MockMessage {
	return &MockMessage{
		payload:  payload,
		topic:    topic,
		qos:      qos,
		retained: retained,
		id:       id,
	}
}

func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return m.qos }
func (m *MockMessage) Retained() bool    { return m.retained }
func (m *MockMessage) MessageID() uint16 { return m.id }
func (m *MockMessage) Ack()              {} // No-op for testing
