package mqtt

import (
	"fmt"
	"time"
)

// InitializeParameters configures a Client.
type InitializeParameters struct {
	Host         string
	Port         int
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	KeepAlive    time.Duration

	// The reconnect floor is ReconnectDelayMin plus a random value from
	// [ReconnectDelayMinLower, ReconnectDelayMinUpper].
	ReconnectDelayMin      time.Duration
	ReconnectDelayMinLower time.Duration
	ReconnectDelayMinUpper time.Duration
	ReconnectDelayMax      time.Duration

	AllowLocalTopics   bool
	AutoReconnect      bool
	ExponentialBackoff bool

	TLS       TLSOptions
	Queue     QueueOptions
	Callbacks Callbacks
}

// DefaultParameters returns parameters for a plain connection to localhost.
func DefaultParameters() InitializeParameters {
	return InitializeParameters{
		Host:              "localhost",
		Port:              1883,
		ClientID:          "clientId",
		CleanSession:      true,
		KeepAlive:         10 * time.Second,
		ReconnectDelayMin: time.Second,
		ReconnectDelayMax: 30 * time.Second,
		AutoReconnect:     true,
	}
}

// Validate checks the parameters without touching the network.
func (p InitializeParameters) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, p.Port)
	}
	if p.ClientID == "" {
		return fmt.Errorf("%w: client id is empty", ErrInvalidConfig)
	}
	if p.KeepAlive < 0 {
		return fmt.Errorf("%w: keepalive %s is negative", ErrInvalidConfig, p.KeepAlive)
	}
	if p.Queue.MaxMessages < 0 {
		return fmt.Errorf("%w: queue max messages %d is negative", ErrInvalidConfig, p.Queue.MaxMessages)
	}
	if _, err := p.backoff(); err != nil {
		return err
	}
	return nil
}

func (p InitializeParameters) backoff() (*Backoff, error) {
	return NewBackoff(p.ReconnectDelayMin, p.ReconnectDelayMinLower, p.ReconnectDelayMinUpper, p.ReconnectDelayMax)
}
