package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSelfSignedCert(t *testing.T, dir string, commonName string, notAfter time.Time) (certPath, keyPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	certPath = filepath.Join(dir, "server.crt")
	keyPath = filepath.Join(dir, "server.key")

	certOut, err := os.Create(certPath)
	if err != nil {
		t.Fatal(err)
	}
	defer certOut.Close()
	pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	defer keyOut.Close()
	pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	return certPath, keyPath
}

func TestCertWatcherLoadsInitialPair(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "original", time.Now().Add(time.Hour))

	cw, err := NewCertWatcher(certPath, keyPath)
	if err != nil {
		t.Fatalf("NewCertWatcher: %v", err)
	}
	defer cw.watcher.Close()

	cfg := cw.Config()
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if leaf.Subject.CommonName != "original" {
		t.Fatalf("expected original cert, got CN=%q", leaf.Subject.CommonName)
	}
}

func TestCertWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "original", time.Now().Add(time.Hour))

	cw, err := NewCertWatcher(certPath, keyPath)
	if err != nil {
		t.Fatalf("NewCertWatcher: %v", err)
	}
	cw.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cw.Run(ctx)

	writeSelfSignedCert(t, dir, "rotated", time.Now().Add(time.Hour))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cert, err := cw.Config().GetCertificate(&tls.ClientHelloInfo{})
		if err == nil {
			leaf, err := x509.ParseCertificate(cert.Certificate[0])
			if err == nil && leaf.Subject.CommonName == "rotated" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("cert watcher never picked up the rotated certificate")
}
