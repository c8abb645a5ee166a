package tlsca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"path/filepath"
	"testing"
	"time"
)

func makeTestCA(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "govy test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert, key
}

func TestMinterGeneratesAndCachesLeaf(t *testing.T) {
	caCert, caKey := makeTestCA(t)
	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	dir := t.TempDir()
	m := NewMinter(&Material{CACert: caCert, CAKey: caKey, SigningKey: signingKey, CertDirPath: dir})

	leaf, err := m.Leaf("example.com")
	if err != nil {
		t.Fatalf("Leaf: %v", err)
	}
	x509Leaf, err := x509.ParseCertificate(leaf.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if x509Leaf.Subject.CommonName != "example.com" {
		t.Fatalf("CN = %q, want %q", x509Leaf.Subject.CommonName, "example.com")
	}

	wantPath := filepath.Join(dir, "example.com.pem")
	if m.LeafPath("example.com") != wantPath {
		t.Fatalf("LeafPath = %q, want %q", m.LeafPath("example.com"), wantPath)
	}

	leaf2, err := m.Leaf("example.com")
	if err != nil {
		t.Fatalf("second Leaf call: %v", err)
	}
	if leaf2 != leaf {
		t.Fatal("expected the second Leaf call to return the cached certificate")
	}
}
