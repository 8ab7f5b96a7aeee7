package mqtt

import (
	"crypto/x509"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalize_Classification tests that back-end errors map onto the library codes.
func TestNormalize_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ReasonCode
	}{
		{"nil is ok", nil, ReasonOK},
		{"not connected", ErrNotConnected, ReasonNoConnection},
		{"wrapped connection lost", fmt.Errorf("read: %w", ErrConnectionLost), ReasonNoConnection},
		{"tls sentinel", fmt.Errorf("dial: %w", ErrTLS), ReasonTLSError},
		{"x509 unknown authority", x509.UnknownAuthorityError{}, ReasonTLSError},
		{"wrapped hostname error", fmt.Errorf("handshake: %w", x509.HostnameError{Host: "broker"}), ReasonTLSError},
		{"not authorized", ErrNotAuthorized, ReasonNotAllowed},
		{"anything else", errors.New("boom"), ReasonGeneralError},
		{"closed client", ErrClosed, ReasonGeneralError},
		{"malformed property", ErrMalformedProperty, ReasonGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.err, "op", nil))
		})
	}
}

func TestNormalize_LogsOneLine(t *testing.T) {
	// Setup
	log := &logRecorder{}

	// Execute
	okRC := Normalize(nil, "Subscribe a/b", log)
	errRC := Normalize(ErrNotConnected, "Publish a/b", log)

	// Assert
	assert.Equal(t, ReasonOK, okRC)
	assert.Equal(t, ReasonNoConnection, errRC)
	assert.Len(t, log.lines, 2)
	assert.Equal(t, LogDebug, log.lines[0].level)
	assert.Equal(t, "Subscribe a/b: OKAY (The operation was successful), transport error: none", log.lines[0].text)
	assert.Equal(t, LogWarning, log.lines[1].level)
	assert.Contains(t, log.lines[1].text, "ERROR_NO_CONNECTION")
	assert.Contains(t, log.lines[1].text, ErrNotConnected.Error())
}

func TestReasonCode_Repr(t *testing.T) {
	assert.Equal(t, "NOT_ALLOWED", ReasonNotAllowed.String())
	assert.Equal(t, CodeRepr{"UNKNOWN", "The provided reason code is unknown"}, ReasonCode(42).Repr())

	assert.Equal(t, "BAD_USERNAME_OR_PASSWORD", MqttBadUsernameOrPassword.String())
	assert.Equal(t, "UNKNOWN", MqttReasonCode(0x42).String())

	assert.Equal(t, "QUOTA_EXCEEDED", Mqtt5QuotaExceeded.String())
	assert.Equal(t, "UNKNOWN", Mqtt5ReasonCode(0x03).String())
	assert.True(t, Mqtt5UnspecifiedError.IsError())
	assert.False(t, Mqtt5NoMatchingSubscribers.IsError())
}

func TestProtocolReason_ResolvesInItsOwnCodeSpace(t *testing.T) {
	// 0x05 is NOT_AUTHORIZED in 3.1.1 but unassigned in MQTT 5
	assert.Equal(t, "NOT_AUTHORIZED", V311Reason(0x05).Repr().Short)
	assert.Equal(t, "UNKNOWN", V5Reason(0x05).Repr().Short)

	assert.Equal(t, "SERVER_BUSY (0x89)", V5Reason(Mqtt5ServerBusy).String())
	assert.Equal(t, "SUBACK_FAILURE (0x80)", V311Reason(0x80).String())
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "DISCONNECTING", StateDisconnecting.String())
	assert.Equal(t, "UNKNOWN", ConnectionState(9).String())
}
