package mocks

import (
	"context"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	paholog "github.com/eclipse/paho.golang/paho/log"
	"github.com/stretchr/testify/mock"
)

// MockPaho5Client is a mock implementation of the pahov5.Client interface
type MockPaho5Client struct {
	mock.Mock

	logMu     sync.Mutex
	errorLogs paholog.Logger
}

// SetErrorLogger records l without going through the expectations.
func (m *MockPaho5Client) SetErrorLogger(l paholog.Logger) {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	m.errorLogs = l
}

// ErrorLogger returns the logger installed by the transport, if any.
func (m *MockPaho5Client) ErrorLogger() paholog.Logger {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return m.errorLogs
}

func (m *MockPaho5Client) Connect(ctx context.Context, cp *paho.Connect) (*paho.Connack, error) {
	args := m.Called(ctx, cp)
	connack, _ := args.Get(0).(*paho.Connack)
	return connack, args.Error(1)
}

func (m *MockPaho5Client) Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error) {
	args := m.Called(ctx, s)
	suback, _ := args.Get(0).(*paho.Suback)
	return suback, args.Error(1)
}

func (m *MockPaho5Client) Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error) {
	args := m.Called(ctx, u)
	unsuback, _ := args.Get(0).(*paho.Unsuback)
	return unsuback, args.Error(1)
}

func (m *MockPaho5Client) Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	args := m.Called(ctx, p)
	resp, _ := args.Get(0).(*paho.PublishResponse)
	return resp, args.Error(1)
}

func (m *MockPaho5Client) Disconnect(d *paho.Disconnect) error {
	args := m.Called(d)
	return args.Error(0)
}
