package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockToken is a mock implementation of the mqtt.Token interface
type MockToken struct {
	mock.Mock
}

// Error returns the error associated with the token
func (m *MockToken) Error() error {
	args := m.Called()
	return args.Error(0)
}

// Wait waits for the token to complete
func (m *MockToken) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

// Done channel returns the done channel for the token
func (m *MockToken) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

// WaitTimeout waits for the token to complete or timeout
func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}

// MockPublishToken adds the message id of a paho PublishToken
type MockPublishToken struct {
	MockToken
}

func (m *MockPublishToken) MessageID() uint16 {
	args := m.Called()
	return args.Get(0).(uint16)
}

// MockSubscribeToken adds the granted QoS table of a paho SubscribeToken
type MockSubscribeToken struct {
	MockToken
}

func (m *MockSubscribeToken) Result() map[string]byte {
	args := m.Called()
	return args.Get(0).(map[string]byte)
}

// MockConnectToken adds the CONNACK return code of a paho ConnectToken
type MockConnectToken struct {
	MockToken
}

func (m *MockConnectToken) ReturnCode() byte {
	args := m.Called()
	return args.Get(0).(byte)
}

// CompletedToken returns a MockToken that is already done with err.
func CompletedToken(err error) *MockToken {
	token := new(MockToken)
	SetCompleted(&token.Mock, err)
	return token
}

// SetCompleted programs Done and Error on a token mock.
func SetCompleted(m *mock.Mock, err error) {
	done := make(chan struct{})
	close(done)
	m.On("Done").Return((<-chan struct{})(done))
	m.On("Error").Return(err)
	m.On("Wait").Return(true).Maybe()
}
