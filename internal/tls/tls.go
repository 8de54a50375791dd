package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vortexvpn/coremgr/internal/config"
)

const (
	certName = "coremgr.crt"
	keyName  = "coremgr.key"
)

// safeReadFile reads file content safely within base directory.
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// certificateFunc loads the key pair on every handshake so rotated
// certificates are picked up without a restart.
func certificateFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := safeReadFile(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		keyPEM, err := safeReadFile(baseDir, keyFile)
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		return &cert, err
	}
}

// Setup builds the tls.Config for the control API from the server config.
// It returns (nil, nil) when TLS is disabled.
func Setup(server config.ServerConfig) (*tls.Config, error) {
	if server.TLS == nil || !server.TLS.Enabled {
		return nil, nil
	}

	if server.TLS.CertFile != "" && server.TLS.KeyFile != "" {
		return newConfig(server.TLS.CertFile, server.TLS.KeyFile), nil
	}

	if server.TLS.Dir != "" {
		certPath := filepath.Join(server.TLS.Dir, certName)
		keyPath := filepath.Join(server.TLS.Dir, keyName)
		if server.TLS.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := os.MkdirAll(server.TLS.Dir, 0o750); err != nil {
				return nil, fmt.Errorf("create cert dir: %w", err)
			}
			if err := GenerateSelfSignedCert(CertConfig{
				CertPath: certPath,
				KeyPath:  keyPath,
			}); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
		return newConfig(certPath, keyPath), nil
	}

	return nil, errors.New("TLS enabled but no certificate configuration found")
}

func newConfig(certPath, keyPath string) *tls.Config {
	return &tls.Config{
		GetCertificate: certificateFunc(certPath, keyPath),
		MinVersion:     tls.VersionTLS12,
	}
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
