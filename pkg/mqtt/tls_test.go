package mqtt_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/benmeehan/imqtt/pkg/mqtt"
	"github.com/benmeehan/imqtt/tests/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedPEM returns a throwaway certificate and its key, PEM encoded.
func selfSignedPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "broker.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestLoadTLSConfig_DisabledReturnsNil(t *testing.T) {
	// Setup
	mockFile := new(mocks.MockFileOperations)

	// Execute
	cfg, err := mqtt.LoadTLSConfig(mockFile, mqtt.TLSOptions{ServerName: "ignored"})

	// Assert
	assert.NoError(t, err)
	assert.Nil(t, cfg)
	mockFile.AssertNotCalled(t, "ReadFileRaw")
}

func TestLoadTLSConfig_CAFileAndClientCert(t *testing.T) {
	// Setup
	certPEM, keyPEM := selfSignedPEM(t)
	mockFile := new(mocks.MockFileOperations)
	mockFile.On("ReadFileRaw", "/certs/ca.pem").Return(certPEM, nil)
	mockFile.On("ReadFileRaw", "/certs/client.pem").Return(certPEM, nil)
	mockFile.On("ReadFileRaw", "/certs/client.key").Return(keyPEM, nil)

	// Execute
	cfg, err := mqtt.LoadTLSConfig(mockFile, mqtt.TLSOptions{
		CAFile:         "/certs/ca.pem",
		ClientCertFile: "/certs/client.pem",
		PrivateKeyFile: "/certs/client.key",
		ServerName:     "broker.test",
	})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "broker.test", cfg.ServerName)
	assert.NotNil(t, cfg.RootCAs)
	assert.Len(t, cfg.Certificates, 1)
	mockFile.AssertExpectations(t)
}

func TestLoadTLSConfig_CADirSkipsNonCertificates(t *testing.T) {
	// Setup
	certPEM, _ := selfSignedPEM(t)
	mockFile := new(mocks.MockFileOperations)
	mockFile.On("ListFiles", "/etc/ssl/certs").Return([]string{"/etc/ssl/certs/README", "/etc/ssl/certs/ca.pem"}, nil)
	mockFile.On("ReadFileRaw", "/etc/ssl/certs/README").Return([]byte("not a certificate"), nil)
	mockFile.On("ReadFileRaw", "/etc/ssl/certs/ca.pem").Return(certPEM, nil)

	// Execute
	cfg, err := mqtt.LoadTLSConfig(mockFile, mqtt.TLSOptions{CADir: "/etc/ssl/certs"})

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
}

func TestLoadTLSConfig_Errors(t *testing.T) {
	certPEM, _ := selfSignedPEM(t)

	tests := []struct {
		name  string
		opts  mqtt.TLSOptions
		setup func(m *mocks.MockFileOperations)
	}{
		{
			name:  "unreadable CA file",
			opts:  mqtt.TLSOptions{CAFile: "/missing.pem"},
			setup: func(m *mocks.MockFileOperations) { m.On("ReadFileRaw", "/missing.pem").Return(nil, errors.New("no such file")) },
		},
		{
			name:  "CA file without certificates",
			opts:  mqtt.TLSOptions{CAFile: "/garbage.pem"},
			setup: func(m *mocks.MockFileOperations) { m.On("ReadFileRaw", "/garbage.pem").Return([]byte("garbage"), nil) },
		},
		{
			name:  "unreadable CA dir",
			opts:  mqtt.TLSOptions{CADir: "/nope"},
			setup: func(m *mocks.MockFileOperations) { m.On("ListFiles", "/nope").Return(nil, errors.New("permission denied")) },
		},
		{
			name:  "certificate without key",
			opts:  mqtt.TLSOptions{ClientCertFile: "/client.pem"},
			setup: func(*mocks.MockFileOperations) {},
		},
		{
			name: "mismatched key pair",
			opts: mqtt.TLSOptions{ClientCertFile: "/client.pem", PrivateKeyFile: "/client.key"},
			setup: func(m *mocks.MockFileOperations) {
				m.On("ReadFileRaw", "/client.pem").Return(certPEM, nil)
				m.On("ReadFileRaw", "/client.key").Return([]byte("not a key"), nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockFile := new(mocks.MockFileOperations)
			tt.setup(mockFile)

			cfg, err := mqtt.LoadTLSConfig(mockFile, tt.opts)

			assert.Nil(t, cfg)
			assert.True(t, errors.Is(err, mqtt.ErrInvalidConfig), "got %v", err)
		})
	}
}
