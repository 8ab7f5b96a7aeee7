package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/benmeehan/imqtt/pkg/file"
)

// TLSOptions selects the certificate material for an encrypted connection.
// TLS is used when any CA source or a client certificate is configured.
type TLSOptions struct {
	CAFile             string `yaml:"ca_file"`
	CADir              string `yaml:"ca_dir"`
	ClientCertFile     string `yaml:"client_cert_file"`
	PrivateKeyFile     string `yaml:"private_key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Enabled reports whether the options ask for TLS.
func (o TLSOptions) Enabled() bool {
	return o.CAFile != "" || o.CADir != "" || o.ClientCertFile != ""
}

// LoadTLSConfig reads the configured certificates through fileClient and
// builds a tls.Config. It returns nil when TLS is not enabled.
func LoadTLSConfig(fileClient file.FileOperations, o TLSOptions) (*tls.Config, error) {
	if !o.Enabled() {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         o.ServerName,
		InsecureSkipVerify: o.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
	}

	if o.CAFile != "" || o.CADir != "" {
		caCertPool := x509.NewCertPool()
		if o.CAFile != "" {
			if err := appendCAFile(fileClient, caCertPool, o.CAFile); err != nil {
				return nil, err
			}
		}
		if o.CADir != "" {
			files, err := fileClient.ListFiles(o.CADir)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to read CA directory: %v", ErrInvalidConfig, err)
			}
			// Non-certificate files in a hashed CA directory are common; skip them.
			for _, f := range files {
				_ = appendCAFile(fileClient, caCertPool, f)
			}
		}
		tlsConfig.RootCAs = caCertPool
	}

	if o.ClientCertFile != "" || o.PrivateKeyFile != "" {
		if o.ClientCertFile == "" || o.PrivateKeyFile == "" {
			return nil, fmt.Errorf("%w: client certificate and private key must be set together", ErrInvalidConfig)
		}
		certPEM, err := fileClient.ReadFileRaw(o.ClientCertFile)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read client certificate: %v", ErrInvalidConfig, err)
		}
		keyPEM, err := fileClient.ReadFileRaw(o.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read private key: %v", ErrInvalidConfig, err)
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid client key pair: %v", ErrInvalidConfig, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func appendCAFile(fileClient file.FileOperations, pool *x509.CertPool, path string) error {
	caCert, err := fileClient.ReadFileRaw(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read CA certificate: %v", ErrInvalidConfig, err)
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("%w: failed to append CA certificate %s", ErrInvalidConfig, path)
	}
	return nil
}
