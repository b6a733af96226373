package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"smallbiznis-tokenomics/pkg/config"
)

func writeSelfSignedCert(t *testing.T, dir, cn string) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func leafCN(t *testing.T, r *certReloader) string {
	t.Helper()
	cert, err := r.get(nil)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}

func TestNewHttpServer(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = ":0"

	srv, err := NewHttpServer(Params{Config: cfg, Router: gin.New()})
	require.NoError(t, err)
	require.Nil(t, srv.server.TLSConfig)

	cfg.TLS.Enable = true
	cfg.TLS.CertPath = filepath.Join(t.TempDir(), "missing.crt")
	cfg.TLS.KeyPath = filepath.Join(t.TempDir(), "missing.key")
	_, err = NewHttpServer(Params{Config: cfg, Router: gin.New()})
	require.Error(t, err)
}

func TestCertReloader(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "first")

	r := &certReloader{certPath: certPath, keyPath: keyPath}
	_, err := r.get(nil)
	require.Error(t, err)

	require.NoError(t, r.reload())
	require.Equal(t, "first", leafCN(t, r))

	writeSelfSignedCert(t, dir, "second")
	require.NoError(t, r.reload())
	require.Equal(t, "second", leafCN(t, r))

	require.NoError(t, os.WriteFile(certPath, []byte("garbage"), 0o600))
	require.Error(t, r.reload())
	require.Equal(t, "second", leafCN(t, r))
}
