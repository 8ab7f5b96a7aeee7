package mqtt

import "errors"

// Sentinel errors shared by every Transport. Adapters wrap their native errors
// with one of these so Normalize can classify them without knowing the back-end.
var (
	ErrNotConnected      = errors.New("not connected to broker")
	ErrConnectionLost    = errors.New("connection to broker lost")
	ErrTLS               = errors.New("tls handshake failed")
	ErrNotAuthorized     = errors.New("not authorized by broker")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMalformedProperty = errors.New("malformed message property")
	ErrClosed            = errors.New("client is closed")
)
