package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateProperties(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(m *Message)
		wantErr bool
	}{
		{"no properties", func(*Message) {}, false},
		{"all fields set", func(m *Message) {
			m.AddUserProperty("source", "sensor-1")
			m.AddUserProperty("source", "sensor-2")
			m.CorrelationData = []byte{0, 1, 2}
			m.ResponseTopic = "reply/to/me"
			m.ContentType = "application/json"
			m.PayloadFormat = FormatUTF8
		}, false},
		{"invalid utf8 key", func(m *Message) { m.AddUserProperty("\xff", "v") }, true},
		{"nul in value", func(m *Message) { m.AddUserProperty("k", "a\x00b") }, true},
		{"oversized value", func(m *Message) { m.AddUserProperty("k", strings.Repeat("x", maxPropertyLen+1)) }, true},
		{"oversized correlation data", func(m *Message) { m.CorrelationData = make([]byte, maxPropertyLen+1) }, true},
		{"wildcard response topic", func(m *Message) { m.ResponseTopic = "reply/+" }, true},
		{"invalid content type", func(m *Message) { m.ContentType = "\xc3\x28" }, true},
		{"unknown payload format", func(m *Message) { m.PayloadFormat = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMessage("a/b", []byte("payload"), QOS1, false)
			tt.modify(m)

			err := ValidateProperties(m)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedProperty), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessage_Accessors(t *testing.T) {
	// Setup
	m := NewMessage("a/b", []byte("hello"), QOS2, true)

	// Assert
	assert.Equal(t, "a/b", m.Topic())
	assert.Equal(t, "hello", m.PayloadString())
	assert.Equal(t, QOS2, m.QOS())
	assert.True(t, m.Retained())
	assert.Equal(t, -1, m.MessageID)
	assert.False(t, m.HasProperties())

	m.AddUserProperty("k", "v")
	assert.True(t, m.HasProperties())
	assert.Contains(t, m.String(), "MqttMessage [topic]: a/b")
	assert.Contains(t, m.String(), "\t[k]: v")
}

func TestQOSFromInt(t *testing.T) {
	qos, err := QOSFromInt(1)
	assert.NoError(t, err)
	assert.Equal(t, QOS1, qos)

	_, err = QOSFromInt(3)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = QOSFromInt(-1)
	assert.Error(t, err)
}
