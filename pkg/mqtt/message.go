package mqtt

import (
	"fmt"
	"strings"
)

// QOS is the MQTT quality of service level.
type QOS byte

const (
	QOS0 QOS = 0
	QOS1 QOS = 1
	QOS2 QOS = 2
)

// QOSFromInt converts a configured integer into a QOS.
func QOSFromInt(qos int) (QOS, error) {
	if qos < 0 || qos > 2 {
		return 0, fmt.Errorf("%w: provide a valid qos [0,1,2], got %d", ErrInvalidConfig, qos)
	}
	return QOS(qos), nil
}

// FormatIndicator is the MQTT 5 payload format indicator.
type FormatIndicator byte

const (
	FormatUnspecified FormatIndicator = 0
	FormatUTF8        FormatIndicator = 1
)

// UserProperty is one MQTT 5 user property. Order is preserved on the wire.
type UserProperty struct {
	Key   string
	Value string
}

// Message is an MQTT application message. Topic, payload, QoS and retain are
// fixed at construction; the MQTT 5 metadata fields are optional.
type Message struct {
	topic   string
	payload []byte
	qos     QOS
	retain  bool

	MessageID       int
	UserProperties  []UserProperty
	CorrelationData []byte
	ResponseTopic   string
	PayloadFormat   FormatIndicator
	ContentType     string
}

// NewMessage creates a message. The payload slice is owned by the message afterwards.
func NewMessage(topic string, payload []byte, qos QOS, retain bool) *Message {
	return &Message{
		topic:     topic,
		payload:   payload,
		qos:       qos,
		retain:    retain,
		MessageID: -1,
	}
}

func (m *Message) Topic() string   { return m.topic }
func (m *Message) Payload() []byte { return m.payload }
func (m *Message) QOS() QOS        { return m.qos }
func (m *Message) Retained() bool  { return m.retain }

// PayloadString returns the payload interpreted as a string.
func (m *Message) PayloadString() string { return string(m.payload) }

// AddUserProperty appends a user property.
func (m *Message) AddUserProperty(key, value string) {
	m.UserProperties = append(m.UserProperties, UserProperty{Key: key, Value: value})
}

// HasProperties reports whether any MQTT 5 metadata is set.
func (m *Message) HasProperties() bool {
	return len(m.UserProperties) > 0 || len(m.CorrelationData) > 0 || m.ResponseTopic != "" ||
		m.ContentType != "" || m.PayloadFormat != FormatUnspecified
}

func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MqttMessage [topic]: %s\n", m.topic)
	fmt.Fprintf(&b, "MqttMessage [qos]: %d\n", m.qos)
	fmt.Fprintf(&b, "MqttMessage [retain]: %t\n", m.retain)
	fmt.Fprintf(&b, "MqttMessage [messageId]: %d\n", m.MessageID)
	if m.ResponseTopic != "" {
		fmt.Fprintf(&b, "MqttMessage [responseTopic]: %s\n", m.ResponseTopic)
	}
	if m.ContentType != "" {
		fmt.Fprintf(&b, "MqttMessage [contentType]: %s\n", m.ContentType)
	}
	b.WriteString("MqttMessage [userProps]:\n")
	for _, p := range m.UserProperties {
		fmt.Fprintf(&b, "\t[%s]: %s\n", p.Key, p.Value)
	}
	return b.String()
}
