// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/pkg/errutil"
)

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA("health")
	require.NoError(t, err)

	require.NotNil(t, ca.Certificate)
	require.NotNil(t, ca.PrivateKey)
	assert.True(t, ca.Certificate.IsCA)
	assert.Equal(t, "Keyward CA health", ca.Certificate.Subject.CommonName)
	assert.True(t, ca.Certificate.NotAfter.After(ca.Certificate.NotBefore.AddDate(9, 0, 0)))
}

func TestGenerateServerCert(t *testing.T) {
	ca, err := GenerateCA("health")
	require.NoError(t, err)

	cert, err := GenerateServerCert(ca, "health", "auth.internal", "10.0.0.5", "")
	require.NoError(t, err)

	assert.Equal(t, "keyward-health", cert.Certificate.Subject.CommonName)
	assert.ElementsMatch(t, []string{"localhost", "auth.internal"}, cert.Certificate.DNSNames)
	require.Len(t, cert.Certificate.IPAddresses, 2)
	assert.True(t, cert.Certificate.IPAddresses[1].Equal(net.ParseIP("10.0.0.5")))

	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	_, err = cert.Certificate.Verify(x509.VerifyOptions{
		DNSName:   "auth.internal",
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	ca, err := GenerateCA("health")
	require.NoError(t, err)
	cert, err := GenerateServerCert(ca, "health")
	require.NoError(t, err)

	require.NoError(t, SaveCertificates(dir, ca, cert))

	for _, name := range []string{"root-ca.crt", "root-ca.key", "health.crt", "health.key"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}

	loaded, err := LoadCA(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Certificate.Equal(ca.Certificate))
	assert.True(t, loaded.PrivateKey.Equal(ca.PrivateKey))

	cfg, err := LoadServerTLS(dir, "health")
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(cryptotls.VersionTLS13), cfg.MinVersion)
}

func TestLoadCA_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "missing", files: nil},
		{name: "not PEM", files: map[string]string{"root-ca.crt": "garbage", "root-ca.key": "garbage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
			}

			_, err := LoadCA(dir)
			errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
		})
	}
}

func TestEnsureServerTLS(t *testing.T) {
	t.Run("generates then reuses", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "certs")

		first, err := EnsureServerTLS(dir, "health", nil, nil)
		require.NoError(t, err)
		second, err := EnsureServerTLS(dir, "health", nil, nil)
		require.NoError(t, err)

		assert.Equal(t, first.Certificates[0].Certificate[0], second.Certificates[0].Certificate[0])
	})

	t.Run("does not overwrite unreadable files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "health.crt"), []byte("corrupt"), 0o600))

		_, err := EnsureServerTLS(dir, "health", nil, nil)
		errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")

		data, err := os.ReadFile(filepath.Join(dir, "health.crt"))
		require.NoError(t, err)
		assert.Equal(t, "corrupt", string(data))
	})
}
